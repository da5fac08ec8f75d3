// Package syncexec implements the Sync Executor: the secondary-side
// pipeline that pulls an export from a named peer, validates contiguity,
// fetches missing content, and commits the new state atomically, all
// under a per-user exclusive lock held for the duration of the job.
package syncexec
