package jobqueue

import (
	"context"
	"encoding/json"
)

// Handler processes one job's params and returns a JSON-marshalable result,
// or an error recorded as the job's failure.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// IJobQueue is the async job queue contract shared by file processing and
// sync work.
type IJobQueue interface {
	// Enqueue durably records a job envelope and returns immediately with a
	// generated job ID. The job is dispatched to whatever handler is
	// registered via Process for task.
	Enqueue(task string, params interface{}) (jobID string, err error)

	// Process registers handler for task and starts concurrency worker
	// goroutines pulling from that task's queue. Process must be called
	// before any jobs enqueued for task will be dispatched.
	Process(task string, concurrency int, handler Handler)

	// Shutdown stops accepting new work and waits for in-flight handlers to
	// finish or ctx to be canceled, whichever comes first.
	Shutdown(ctx context.Context) error
}
