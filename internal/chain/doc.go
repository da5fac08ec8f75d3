// Package chain defines IChainClient, the node's narrow view of the
// blockchain oracle: service-provider identity lookups and replica-set
// records. The actual chain SDK is out of scope (spec §1); this package
// ships only the interface and an in-memory fake used by every other
// component and by tests.
package chain
