// Package jobqueue implements the async job queue shared by file processing
// and sync work: a bounded-concurrency FIFO-ish dispatcher with per-job
// status tracking visible to HTTP status probes.
//
// Job envelopes are recorded in the coordination store (so a crash between
// enqueue and dispatch is at least observable) and then handed to an
// in-process buffered channel that worker goroutines select on — the queue
// discipline itself is local to one node process, matching the original
// system's single-process worker pool; only locks and status records are
// actually shared across node processes via the coordination store.
package jobqueue
