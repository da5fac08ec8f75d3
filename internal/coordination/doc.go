// Package coordination implements the shared coordination store described
// in SPEC_FULL.md §4.9 and the "Shared coordination store" design note in
// spec.md §9: a narrow key-value interface with TTL-aware writes, atomic
// test-and-set, and small per-key sets, used by internal/lockmgr (per-user
// locks) and internal/jobstatus (per-job status records).
//
// Two backings implement ICoordinationStore: a single-process in-memory one
// (local.go) used in dev mode and by tests, and a Dragonboat-replicated one
// (raft_store.go and the other raft_*.go files) used when the node is configured with coordination cluster
// members, giving several creator-node processes a linearizable shared lock
// and status store instead of a single point of failure.
package coordination
