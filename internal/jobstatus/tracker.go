package jobstatus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/GNARcollectiveDAO/audius-protocol/internal/coordination"
)

// State is the lifecycle of a tracked job.
type State string

const (
	StateInProgress State = "IN_PROGRESS"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// DefaultTTL is how long a terminal status record lingers after a job
// finishes, so a client polling by request_id can still observe it.
const DefaultTTL = 24 * time.Hour

// Record is the status record a status probe reads.
type Record struct {
	Status State           `json:"status"`
	Result json.RawMessage `json:"resp,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Tracker reads and writes job status records in the coordination store.
type Tracker struct {
	store coordination.ICoordinationStore
	ttl   time.Duration
}

// NewTracker creates a Tracker. ttl<=0 uses DefaultTTL.
func NewTracker(store coordination.ICoordinationStore, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{store: store, ttl: ttl}
}

func statusKey(task, requestID string) string {
	return fmt.Sprintf("%s:::%s", task, requestID)
}

// MarkInProgress records that a job has started.
func (t *Tracker) MarkInProgress(task, requestID string) error {
	return t.write(task, requestID, Record{Status: StateInProgress})
}

// MarkDone records a successful terminal result. result may be nil.
func (t *Tracker) MarkDone(task, requestID string, result interface{}) error {
	var raw json.RawMessage
	if result != nil {
		encoded, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("jobstatus: marshal result: %w", err)
		}
		raw = encoded
	}
	return t.write(task, requestID, Record{Status: StateDone, Result: raw})
}

// MarkFailed records a failed terminal result.
func (t *Tracker) MarkFailed(task, requestID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return t.write(task, requestID, Record{Status: StateFailed, Error: msg})
}

func (t *Tracker) write(task, requestID string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("jobstatus: marshal record: %w", err)
	}
	return t.store.Set(statusKey(task, requestID), data, t.ttl)
}

// Status returns the current status record for (task, requestID). found is
// false if no record exists (the job is unknown or its record expired).
func (t *Tracker) Status(task, requestID string) (rec Record, found bool, err error) {
	data, found, err := t.store.Get(statusKey(task, requestID))
	if err != nil || !found {
		return Record{}, found, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("jobstatus: unmarshal record: %w", err)
	}
	return rec, true, nil
}
