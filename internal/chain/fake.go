package chain

import (
	"fmt"
	"sync"
)

// FakeClient is an in-memory IChainClient for development and tests. It has
// no persistence and no consensus; every write takes effect immediately.
type FakeClient struct {
	mu sync.RWMutex

	registryDeployed bool
	nextSPID         int64
	spidByEndpoint   map[string]int64
	endpointBySPID   map[int64]string
	replicaSets      map[string]ReplicaSet
}

// NewFakeClient creates a FakeClient. If registryDeployed is false,
// IsRegistryDeployed returns false until SetRegistryDeployed(true) is called,
// letting tests exercise Identity Bootstrap's long-poll wait.
func NewFakeClient(registryDeployed bool) *FakeClient {
	return &FakeClient{
		registryDeployed: registryDeployed,
		nextSPID:         1,
		spidByEndpoint:   make(map[string]int64),
		endpointBySPID:   make(map[int64]string),
		replicaSets:      make(map[string]ReplicaSet),
	}
}

// SetRegistryDeployed flips the registry-deployed flag, for tests that
// simulate the registry contract appearing mid-bootstrap.
func (c *FakeClient) SetRegistryDeployed(deployed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registryDeployed = deployed
}

// SeedReplicaSet installs a replica set for wallet, for tests that need a
// known starting topology.
func (c *FakeClient) SeedReplicaSet(wallet string, rs ReplicaSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replicaSets[wallet] = rs
}

func (c *FakeClient) ResolveSPID(endpoint string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.spidByEndpoint[endpoint], nil
}

func (c *FakeClient) IsRegistryDeployed() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registryDeployed, nil
}

func (c *FakeClient) RegisterServiceProvider(spID int64, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.spidByEndpoint[endpoint]; ok && existing == spID {
		return nil
	}
	c.spidByEndpoint[endpoint] = spID
	c.endpointBySPID[spID] = endpoint
	return nil
}

func (c *FakeClient) GetReplicaSet(wallet string) (ReplicaSet, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rs, ok := c.replicaSets[wallet]
	if !ok {
		return ReplicaSet{}, fmt.Errorf("chain: no replica set recorded for wallet %s", wallet)
	}
	return rs, nil
}

func (c *FakeClient) ResolveEndpoint(spID int64) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	endpoint, ok := c.endpointBySPID[spID]
	if !ok {
		return "", fmt.Errorf("chain: no endpoint recorded for sp_id %d", spID)
	}
	return endpoint, nil
}

func (c *FakeClient) ProposeReplicaSetUpdate(wallet string, oldSecondaryID, newSecondaryID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rs, ok := c.replicaSets[wallet]
	if !ok {
		return fmt.Errorf("chain: no replica set recorded for wallet %s", wallet)
	}
	switch {
	case rs.Secondary1ID == newSecondaryID || rs.Secondary2ID == newSecondaryID:
		return nil // already applied
	case rs.Secondary1ID == oldSecondaryID:
		rs.Secondary1ID = newSecondaryID
	case rs.Secondary2ID == oldSecondaryID:
		rs.Secondary2ID = newSecondaryID
	default:
		return fmt.Errorf("chain: %d is not a current secondary for wallet %s", oldSecondaryID, wallet)
	}
	c.replicaSets[wallet] = rs
	return nil
}

func (c *FakeClient) AllServiceProviders() ([]ServiceProvider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ServiceProvider, 0, len(c.endpointBySPID))
	for spID, endpoint := range c.endpointBySPID {
		out = append(out, ServiceProvider{SPID: spID, Endpoint: endpoint})
	}
	return out, nil
}

// NextSPID reserves and returns the next unused service-provider ID, a
// convenience for tests assembling a fake registry.
func (c *FakeClient) NextSPID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSPID
	c.nextSPID++
	return id
}
