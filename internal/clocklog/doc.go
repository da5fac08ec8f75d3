// Package clocklog is the Clock Log Store: the per-user append-only log of
// mutations plus the materialized entity tables (users, tracks, files,
// audius-user records) that make up a user's replicated state.
//
// Every mutation carries a dense integer clock, enforced at commit time by
// recomputing the batch's expected starting clock and comparing it against
// the row actually affected by a guarded UPDATE — the same "optimistic
// concurrency via a conditional update" idiom the teacher's state machine
// uses to detect conflicting writes, adapted here to GORM transactions
// instead of a Raft apply loop.
package clocklog
