package snapback_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GNARcollectiveDAO/audius-protocol/internal/chain"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/clocklog"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/jobqueue"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/logging"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/peerclient"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/snapback"
)

// fakeJobQueue records every task enqueued, standing in for the real async
// job queue so these tests can assert on scheduling behavior alone.
type fakeJobQueue struct {
	mu      sync.Mutex
	enqueued []string
}

func (f *fakeJobQueue) Enqueue(task string, params interface{}) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, task)
	return uuid.NewString(), nil
}
func (f *fakeJobQueue) Process(task string, concurrency int, handler jobqueue.Handler) {}
func (f *fakeJobQueue) Shutdown(ctx context.Context) error { return nil }

func (f *fakeJobQueue) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.enqueued)
}

func newTestStore(t *testing.T) *clocklog.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&clocklog.User{}, &clocklog.ClockLogRow{}, &clocklog.File{}, &clocklog.Track{}, &clocklog.AudiusUser{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return clocklog.New(db, 0)
}

func setupReplicaSet(t *testing.T, wallet, selfEndpoint string) (*chain.FakeClient, int64, int64, int64) {
	t.Helper()
	cc := chain.NewFakeClient(true)
	primarySPID := cc.NextSPID()
	if err := cc.RegisterServiceProvider(primarySPID, selfEndpoint); err != nil {
		t.Fatalf("register self: %v", err)
	}
	sec1SPID := cc.NextSPID()
	if err := cc.RegisterServiceProvider(sec1SPID, "https://secondary-1.example"); err != nil {
		t.Fatalf("register secondary1: %v", err)
	}
	sec2SPID := cc.NextSPID()
	if err := cc.RegisterServiceProvider(sec2SPID, "https://secondary-2.example"); err != nil {
		t.Fatalf("register secondary2: %v", err)
	}
	cc.SeedReplicaSet(wallet, chain.ReplicaSet{PrimaryID: primarySPID, Secondary1ID: sec1SPID, Secondary2ID: sec2SPID})
	return cc, primarySPID, sec1SPID, sec2SPID
}

// TestTickEnqueuesSyncForBehindSecondary exercises the behind branch: a
// secondary reporting a lower clock than the primary gets a sync job.
func TestTickEnqueuesSyncForBehindSecondary(t *testing.T) {
	const selfEndpoint = "https://primary.example"
	const wallet = "0xAA"

	store := newTestStore(t)
	userUUID := uuid.NewString()
	if _, err := store.Append(userUUID, wallet, 1000, []clocklog.Mutation{
		{SourceTable: "files", SourceRowID: "f1", File: &clocklog.File{FileUUID: uuid.NewString(), Multihash: "Qm1", StoragePath: "/a", Type: clocklog.FileTypeImage}},
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/users/clock_status/") {
			json.NewEncoder(w).Encode(map[string]int64{"clock": -1})
		}
	}))
	defer secondary.Close()

	cc, _, sec1SPID, _ := setupReplicaSet(t, wallet, selfEndpoint)
	cc.RegisterServiceProvider(sec1SPID, secondary.URL) // point secondary1 at our fake server

	probe := peerclient.New(selfEndpoint, []byte("shared-secret"))
	jobs := &fakeJobQueue{}
	log := logging.NewComponentLogger("snapback-test", logging.LevelError)

	ctrl := snapback.New(snapback.Config{SelfEndpoint: selfEndpoint}, store, cc, probe, jobs, log)
	if err := ctrl.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if jobs.count() == 0 {
		t.Fatalf("expected a sync job to be enqueued for the behind secondary")
	}
}

// TestTickProposesReconfigAfterThreshold exercises the unreachable branch:
// consecutive probe failures past the threshold trigger a reconfiguration
// proposal that swaps the unreachable secondary out of the replica set.
func TestTickProposesReconfigAfterThreshold(t *testing.T) {
	const selfEndpoint = "https://primary.example"
	const wallet = "0xBB"

	store := newTestStore(t)
	userUUID := uuid.NewString()
	if _, err := store.Append(userUUID, wallet, 1000, []clocklog.Mutation{
		{SourceTable: "files", SourceRowID: "f1", File: &clocklog.File{FileUUID: uuid.NewString(), Multihash: "Qm1", StoragePath: "/a", Type: clocklog.FileTypeImage}},
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	cc, _, sec1SPID, _ := setupReplicaSet(t, wallet, selfEndpoint)
	// A replacement candidate must exist for the reconfig proposal to succeed.
	replacementSPID := cc.NextSPID()
	cc.RegisterServiceProvider(replacementSPID, "https://replacement.example")
	// secondary1 is registered at an endpoint nothing listens on, so every
	// probe against it fails.
	cc.RegisterServiceProvider(sec1SPID, "http://127.0.0.1:1")

	probe := peerclient.New(selfEndpoint, []byte("shared-secret"))
	jobs := &fakeJobQueue{}
	log := logging.NewComponentLogger("snapback-test", logging.LevelError)

	ctrl := snapback.New(snapback.Config{SelfEndpoint: selfEndpoint, UnreachableThreshold: 2}, store, cc, probe, jobs, log)

	for i := 0; i < 2; i++ {
		if err := ctrl.Tick(context.Background()); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
	}

	rs, err := cc.GetReplicaSet(wallet)
	if err != nil {
		t.Fatalf("GetReplicaSet: %v", err)
	}
	if rs.Secondary1ID == sec1SPID {
		t.Fatalf("expected secondary1 to be reconfigured away from %d, got %+v", sec1SPID, rs)
	}

	// A further tick still runs cleanly: GetReplicaSet already reflects the
	// swap, so the old pair is no longer probed and the replacement starts
	// as a fresh pair below the threshold.
	if err := ctrl.Tick(context.Background()); err != nil {
		t.Fatalf("Tick 3: %v", err)
	}
}
