package snapback

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/GNARcollectiveDAO/audius-protocol/internal/chain"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/clocklog"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/jobqueue"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/logging"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/metrics"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/peerclient"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/syncexec"
)

// DefaultInterval is snapback_interval's default cadence.
const DefaultInterval = 60 * time.Second

// DefaultBatchSize bounds how many users a single tick processes, smoothing
// load across ticks rather than scanning every known user at once.
const DefaultBatchSize = 200

// DefaultUnreachableThreshold is the number of consecutive unreachable
// probes before a secondary's reconfiguration is proposed.
const DefaultUnreachableThreshold = 3

// DefaultTickConcurrency bounds how many users within one tick's batch are
// probed concurrently.
const DefaultTickConcurrency = 20

// SyncTask is the job-queue task name the controller enqueues for secondaries
// observed behind; cmd/serve's boot wiring registers the handler that
// consumes it via internal/syncexec.Executor.
const SyncTask = "sync"

// Config tunes the controller's cadence and thresholds.
type Config struct {
	SelfEndpoint         string
	Interval             time.Duration
	BatchSize            int
	UnreachableThreshold int
	TickConcurrency      int
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.UnreachableThreshold <= 0 {
		c.UnreachableThreshold = DefaultUnreachableThreshold
	}
	if c.TickConcurrency <= 0 {
		c.TickConcurrency = DefaultTickConcurrency
	}
}

// Controller is the Snapback state machine: it periodically probes every
// secondary of every user this node is primary for, enqueues sync jobs for
// secondaries observed behind, and proposes a replica-set reconfiguration
// for secondaries that stay unreachable past the threshold.
type Controller struct {
	cfg Config

	store       *clocklog.Store
	chainClient chain.IChainClient
	probe       *peerclient.Client
	jobs        jobqueue.IJobQueue
	log         *logging.ComponentLogger

	health *xsync.MapOf[pairKey, healthEntry]

	offset int
}

// New creates a Controller.
func New(
	cfg Config,
	store *clocklog.Store,
	chainClient chain.IChainClient,
	probe *peerclient.Client,
	jobs jobqueue.IJobQueue,
	log *logging.ComponentLogger,
) *Controller {
	cfg.applyDefaults()
	return &Controller{
		cfg:         cfg,
		store:       store,
		chainClient: chainClient,
		probe:       probe,
		jobs:        jobs,
		log:         log,
		health:      xsync.NewMapOf[pairKey, healthEntry](),
	}
}

// Run blocks, ticking every Interval until ctx is canceled.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Tick(ctx); err != nil {
				c.log.Warnf("tick failed: %v", err)
			}
		}
	}
}

// Tick runs one probe/classify/act pass over a bounded batch of users,
// round-robining through the known wallet set so every user is eventually
// revisited across ticks.
func (c *Controller) Tick(ctx context.Context) error {
	wallets, err := c.store.Wallets()
	if err != nil {
		return fmt.Errorf("snapback: list wallets: %w", err)
	}
	if len(wallets) == 0 {
		return nil
	}

	batch := nextBatch(wallets, c.offset, c.cfg.BatchSize)
	c.offset = (c.offset + len(batch)) % len(wallets)

	sem := semaphore.NewWeighted(int64(c.cfg.TickConcurrency))
	g, gctx := errgroup.WithContext(ctx)
	for _, wallet := range batch {
		wallet := wallet
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			c.processUser(wallet)
			return nil
		})
	}
	return g.Wait()
}

// nextBatch selects up to size wallets starting at offset, wrapping around.
func nextBatch(wallets []string, offset, size int) []string {
	if size >= len(wallets) {
		return wallets
	}
	out := make([]string, 0, size)
	for i := 0; i < size; i++ {
		out = append(out, wallets[(offset+i)%len(wallets)])
	}
	return out
}

// processUser probes every secondary of wallet, but only if this node is
// the user's current primary; otherwise Snapback has nothing to do for it.
func (c *Controller) processUser(wallet string) {
	rs, err := c.chainClient.GetReplicaSet(wallet)
	if err != nil {
		c.log.Warnf("snapback: replica set lookup failed for %s: %v", wallet, err)
		return
	}

	selfSPID, err := c.chainClient.ResolveSPID(c.cfg.SelfEndpoint)
	if err != nil || selfSPID == 0 || selfSPID != rs.PrimaryID {
		return
	}

	primaryUser, _, _, err := c.store.Slice(wallet, 0)
	if err != nil {
		c.log.Warnf("snapback: read primary clock for %s: %v", wallet, err)
		return
	}

	for _, secondarySPID := range []int64{rs.Secondary1ID, rs.Secondary2ID} {
		endpoint, err := c.chainClient.ResolveEndpoint(secondarySPID)
		if err != nil {
			continue
		}
		c.probeAndAct(wallet, rs, secondarySPID, endpoint, primaryUser.Clock)
	}
}

func (c *Controller) probeAndAct(wallet string, rs chain.ReplicaSet, secondarySPID int64, endpoint string, primaryClock int64) {
	k := pairKey{Wallet: wallet, SecondaryEndpoint: endpoint}
	entry, _ := c.health.LoadOrStore(k, healthEntry{State: stateHealthy})

	// Reconfiguration is terminal for this pair until the chain confirms a
	// new secondary; Identity Bootstrap / the next chain read will surface
	// the updated replica set, at which point a fresh pairKey takes over.
	if entry.State == stateReconfigProposed {
		return
	}

	start := time.Now()
	secondaryClock, err := c.probe.ProbeClock(endpoint, wallet)
	metrics.ObserveProbeLatency(time.Since(start).Seconds())

	switch {
	case err != nil:
		entry.UnreachableCount++
		metrics.RecordUnhealthySecondary()
		if entry.UnreachableCount < c.cfg.UnreachableThreshold {
			entry.State = stateUnhealthy
			c.health.Store(k, entry)
			return
		}
		if err := c.proposeReconfig(wallet, rs, secondarySPID); err != nil {
			c.log.Warnf("snapback: reconfig proposal failed for %s/%s: %v", wallet, endpoint, err)
			c.health.Store(k, entry)
			return
		}
		entry.State = stateReconfigProposed
		c.health.Store(k, entry)

	case secondaryClock >= primaryClock:
		entry.State = stateHealthy
		entry.UnreachableCount = 0
		c.health.Store(k, entry)

	default: // secondaryClock < primaryClock
		entry.UnreachableCount = 0
		if entry.State != stateSyncEnqueued {
			if _, err := c.jobs.Enqueue(SyncTask, syncexec.Job{
				Wallets:            []string{wallet},
				SourcePeerEndpoint: c.cfg.SelfEndpoint,
			}); err != nil {
				c.log.Warnf("snapback: enqueue sync for %s failed: %v", wallet, err)
				entry.State = stateBehindObserved
				c.health.Store(k, entry)
				return
			}
		}
		entry.State = stateSyncEnqueued
		c.health.Store(k, entry)
	}
}

// proposeReconfig swaps secondarySPID for a healthy, randomly chosen peer
// excluding self and the other secondary.
func (c *Controller) proposeReconfig(wallet string, rs chain.ReplicaSet, secondarySPID int64) error {
	all, err := c.chainClient.AllServiceProviders()
	if err != nil {
		return fmt.Errorf("snapback: list service providers: %w", err)
	}

	selfSPID, _ := c.chainClient.ResolveSPID(c.cfg.SelfEndpoint)
	excluded := map[int64]bool{
		rs.PrimaryID:    true,
		rs.Secondary1ID: true,
		rs.Secondary2ID: true,
		selfSPID:        true,
	}

	var candidates []int64
	for _, sp := range all {
		if !excluded[sp.SPID] {
			candidates = append(candidates, sp.SPID)
		}
	}
	if len(candidates) == 0 {
		return fmt.Errorf("snapback: no healthy replacement candidate available for %s", wallet)
	}

	replacement := candidates[rand.Intn(len(candidates))]
	if err := c.chainClient.ProposeReplicaSetUpdate(wallet, secondarySPID, replacement); err != nil {
		return err
	}
	metrics.RecordReconfigProposed()
	return nil
}
