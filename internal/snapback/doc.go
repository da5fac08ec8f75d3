// Package snapback implements the Snapback state machine: a periodic
// controller that, for every user this node is primary for, probes each
// secondary's clock, enqueues sync jobs for secondaries observed behind,
// and proposes a replica-set reconfiguration for secondaries that stay
// unreachable past a threshold.
package snapback
