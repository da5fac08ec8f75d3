// Package identity implements Identity Bootstrap: the startup sequence that
// binds this node instance to its on-chain service-provider identity before
// any chain-dependent component (Snapback, the Sync Executor's peer-set
// lookups) is allowed to run.
package identity
