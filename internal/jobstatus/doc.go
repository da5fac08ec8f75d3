// Package jobstatus tracks the terminal state of async jobs, keyed by
// (task, request_id), on top of the coordination store. The async job queue
// writes a status record on every state transition; HTTP callers poll
// status records by request ID without needing to see the queue itself.
package jobstatus
