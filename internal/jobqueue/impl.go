package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/GNARcollectiveDAO/audius-protocol/internal/coordination"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/jobstatus"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/logging"
)

const channelBufferSize = 256

// envelopeTTL bounds how long an enqueued-but-undispatched job envelope
// lingers in the coordination store; it exists only so an operator can see
// that a job was accepted even if the process crashes before dispatch.
const envelopeTTL = 1 * time.Hour

type envelope struct {
	JobID  string          `json:"job_id"`
	Task   string          `json:"task"`
	Params json.RawMessage `json:"params"`
}

type queue struct {
	store   coordination.ICoordinationStore
	tracker *jobstatus.Tracker
	log     *logging.ComponentLogger

	channels *xsync.MapOf[string, chan envelope]

	wg sync.WaitGroup
}

// New creates an IJobQueue backed by store for durability of job envelopes
// and status records.
func New(store coordination.ICoordinationStore, tracker *jobstatus.Tracker, log *logging.ComponentLogger) IJobQueue {
	return &queue{
		store:    store,
		tracker:  tracker,
		log:      log,
		channels: xsync.NewMapOf[string, chan envelope](),
	}
}

func envelopeKey(task, jobID string) string {
	return fmt.Sprintf("jobqueue:envelope:%s:%s", task, jobID)
}

func (q *queue) channelFor(task string) chan envelope {
	ch, _ := q.channels.LoadOrCompute(task, func() chan envelope {
		return make(chan envelope, channelBufferSize)
	})
	return ch
}

func (q *queue) Enqueue(task string, params interface{}) (string, error) {
	jobID := uuid.NewString()

	encoded, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("jobqueue: marshal params: %w", err)
	}
	env := envelope{JobID: jobID, Task: task, Params: encoded}

	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("jobqueue: marshal envelope: %w", err)
	}
	if err := q.store.Set(envelopeKey(task, jobID), raw, envelopeTTL); err != nil {
		return "", fmt.Errorf("jobqueue: record envelope: %w", err)
	}
	if err := q.tracker.MarkInProgress(task, jobID); err != nil {
		return "", fmt.Errorf("jobqueue: record status: %w", err)
	}

	q.channelFor(task) <- env
	return jobID, nil
}

func (q *queue) Process(task string, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	ch := q.channelFor(task)

	for i := 0; i < concurrency; i++ {
		q.wg.Add(1)
		go q.worker(task, ch, handler)
	}
}

func (q *queue) worker(task string, ch chan envelope, handler Handler) {
	defer q.wg.Done()
	for env := range ch {
		q.dispatch(task, env, handler)
	}
}

// dispatch runs handler for a single job, recovering from panics the same
// way a caught handler exception would be: the job is marked failed rather
// than crashing the worker goroutine.
func (q *queue) dispatch(task string, env envelope, handler Handler) {
	result, err := q.runHandler(handler, env.Params)

	if err != nil {
		q.log.Errorf("job %s/%s failed: %v", task, env.JobID, err)
		if markErr := q.tracker.MarkFailed(task, env.JobID, err); markErr != nil {
			q.log.Errorf("job %s/%s: failed to record failure status: %v", task, env.JobID, markErr)
		}
		return
	}

	if markErr := q.tracker.MarkDone(task, env.JobID, result); markErr != nil {
		q.log.Errorf("job %s/%s: failed to record done status: %v", task, env.JobID, markErr)
	}
	_ = q.store.Delete(envelopeKey(task, env.JobID))
}

func (q *queue) runHandler(handler Handler, params json.RawMessage) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("jobqueue: handler panicked: %v", r)
		}
	}()
	return handler(context.Background(), params)
}

func (q *queue) Shutdown(ctx context.Context) error {
	q.channels.Range(func(_ string, ch chan envelope) bool {
		close(ch)
		return true
	})

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
