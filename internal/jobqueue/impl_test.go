package jobqueue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/GNARcollectiveDAO/audius-protocol/internal/coordination"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/jobqueue"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/jobstatus"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/logging"
)

func newTestQueue(t *testing.T) (jobqueue.IJobQueue, *jobstatus.Tracker, func()) {
	t.Helper()
	store := coordination.NewLocalStore()
	tracker := jobstatus.NewTracker(store, 0)
	log := logging.NewComponentLogger("jobqueue-test", logging.LevelError)
	q := jobqueue.New(store, tracker, log)
	return q, tracker, func() { store.Close() }
}

func TestEnqueueAndProcessSuccess(t *testing.T) {
	q, tracker, cleanup := newTestQueue(t)
	defer cleanup()

	type params struct {
		Wallet string `json:"wallet"`
	}

	done := make(chan struct{})
	q.Process("sync", 2, func(_ context.Context, raw json.RawMessage) (interface{}, error) {
		var p params
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		defer close(done)
		return map[string]string{"wallet": p.Wallet}, nil
	})

	jobID, err := q.Enqueue("sync", params{Wallet: "0xAA"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not run in time")
	}

	// Give the status write a moment to land after the handler returns.
	time.Sleep(10 * time.Millisecond)

	rec, found, err := tracker.Status("sync", jobID)
	if err != nil || !found || rec.Status != jobstatus.StateDone {
		t.Fatalf("expected done status, got %+v found=%v err=%v", rec, found, err)
	}
}

func TestHandlerFailureIsRecorded(t *testing.T) {
	q, tracker, cleanup := newTestQueue(t)
	defer cleanup()

	done := make(chan struct{})
	q.Process("skip-retry", 1, func(_ context.Context, _ json.RawMessage) (interface{}, error) {
		defer close(done)
		return nil, errors.New("peer fetch failed")
	})

	jobID, err := q.Enqueue("skip-retry", map[string]string{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not run in time")
	}
	time.Sleep(10 * time.Millisecond)

	rec, found, err := tracker.Status("skip-retry", jobID)
	if err != nil || !found || rec.Status != jobstatus.StateFailed {
		t.Fatalf("expected failed status, got %+v found=%v err=%v", rec, found, err)
	}
}
