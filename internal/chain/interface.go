package chain

// ReplicaSet is the ordered triple (primary, secondary1, secondary2) of
// service-provider IDs holding a user's data, as recorded on chain.
type ReplicaSet struct {
	PrimaryID     int64
	Secondary1ID  int64
	Secondary2ID  int64
}

// ServiceProvider is a node's advertised identity and endpoint as recorded
// in the chain's service-provider registry.
type ServiceProvider struct {
	SPID     int64
	Endpoint string
}

// IChainClient is the node's read-only view of the blockchain oracle: it
// never writes on-chain state directly except via ProposeReplicaSetUpdate
// and RegisterServiceProvider, both of which are idempotent from the
// caller's perspective.
type IChainClient interface {
	// ResolveSPID returns the service-provider ID advertised for endpoint,
	// or 0 if the endpoint is not yet registered.
	ResolveSPID(endpoint string) (int64, error)

	// IsRegistryDeployed reports whether the replica-set registry contract
	// has been deployed on the configured chain.
	IsRegistryDeployed() (bool, error)

	// RegisterServiceProvider registers this node's endpoint under spID.
	// Idempotent: registering an endpoint again under the same spID is a
	// no-op; registering it under a different spID replaces the mapping.
	RegisterServiceProvider(spID int64, endpoint string) error

	// GetReplicaSet returns the current replica set for wallet.
	GetReplicaSet(wallet string) (ReplicaSet, error)

	// ResolveEndpoint returns the advertised endpoint for a service-provider
	// ID, the inverse of ResolveSPID.
	ResolveEndpoint(spID int64) (string, error)

	// ProposeReplicaSetUpdate swaps oldSecondaryID for newSecondaryID in
	// wallet's replica set. Idempotent: proposing the same swap twice is a
	// no-op on the second call.
	ProposeReplicaSetUpdate(wallet string, oldSecondaryID, newSecondaryID int64) error

	// AllServiceProviders returns every currently registered service
	// provider, used by Snapback to pick a replacement secondary.
	AllServiceProviders() ([]ServiceProvider, error)
}
