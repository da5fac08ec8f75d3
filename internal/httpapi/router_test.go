package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GNARcollectiveDAO/audius-protocol/internal/chain"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/clocklog"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/coordination"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/export"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/httpapi"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/jobqueue"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/jobstatus"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/logging"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/snapback"
)

const testSigningKey = "test-signing-key-shared-between-peers"

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

func newTestRouter(t *testing.T, store *clocklog.Store, chainClient chain.IChainClient) (http.Handler, jobqueue.IJobQueue, *jobstatus.Tracker) {
	t.Helper()
	coordStore := coordination.NewLocalStore()
	tracker := jobstatus.NewTracker(coordStore, 0)
	jobs := jobqueue.New(coordStore, tracker, logging.NewComponentLogger("jobqueue", logging.LevelInfo))
	jobs.Process(snapback.SyncTask, 1, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		return nil, nil
	})

	exporter := export.New(store, chainClient, "https://self.example")

	router, err := httpapi.NewRouter(httpapi.Dependencies{
		Store:       store,
		Exporter:    exporter,
		ChainClient: chainClient,
		Jobs:        jobs,
		Tracker:     tracker,
		SigningKey:  []byte(testSigningKey),
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return router, jobs, tracker
}

func signToken(t *testing.T, issuer string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss": issuer,
		"exp": time.Now().Add(time.Minute).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSigningKey))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestExportSucceedsForReplicaSetMember(t *testing.T) {
	store := newTestStore(t)
	userUUID := uuid.NewString()
	if _, err := store.Append(userUUID, "0xAA", 1000, []clocklog.Mutation{
		{SourceTable: "files", SourceRowID: "f1", File: &clocklog.File{FileUUID: uuid.NewString(), Multihash: "Qm1", StoragePath: "/a", Type: clocklog.FileTypeImage}},
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	chainClient := chain.NewFakeClient(true)
	chainClient.SeedReplicaSet("0xAA", chain.ReplicaSet{PrimaryID: 1, Secondary1ID: 2, Secondary2ID: 3})
	if err := chainClient.RegisterServiceProvider(2, "https://secondary.example"); err != nil {
		t.Fatalf("RegisterServiceProvider: %v", err)
	}

	router, _, _ := newTestRouter(t, store, chainClient)
	server := httptest.NewServer(router)
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL+"/export?wallet_public_key=0xAA", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+signToken(t, "https://secondary.example"))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestExportRejectsNonPeerIssuer(t *testing.T) {
	store := newTestStore(t)
	chainClient := chain.NewFakeClient(true)
	chainClient.SeedReplicaSet("0xAA", chain.ReplicaSet{PrimaryID: 1, Secondary1ID: 2, Secondary2ID: 3})
	if err := chainClient.RegisterServiceProvider(99, "https://stranger.example"); err != nil {
		t.Fatalf("RegisterServiceProvider: %v", err)
	}

	router, _, _ := newTestRouter(t, store, chainClient)
	server := httptest.NewServer(router)
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL+"/export?wallet_public_key=0xAA", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+signToken(t, "https://stranger.example"))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestClockStatusIsUnauthenticated(t *testing.T) {
	store := newTestStore(t)
	userUUID := uuid.NewString()
	if _, err := store.Append(userUUID, "0xAA", 1000, []clocklog.Mutation{
		{SourceTable: "files", SourceRowID: "f1", File: &clocklog.File{FileUUID: uuid.NewString(), Multihash: "Qm1", StoragePath: "/a", Type: clocklog.FileTypeImage}},
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	chainClient := chain.NewFakeClient(true)
	router, _, _ := newTestRouter(t, store, chainClient)
	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/users/clock_status/0xAA")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Clock int64 `json:"clock"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Clock != 0 {
		t.Fatalf("expected clock 0, got %d", body.Clock)
	}
}

func TestSyncEnqueuesJobForReplicaSetMember(t *testing.T) {
	store := newTestStore(t)
	chainClient := chain.NewFakeClient(true)
	chainClient.SeedReplicaSet("0xAA", chain.ReplicaSet{PrimaryID: 1, Secondary1ID: 2, Secondary2ID: 3})
	if err := chainClient.RegisterServiceProvider(1, "https://primary.example"); err != nil {
		t.Fatalf("RegisterServiceProvider: %v", err)
	}

	router, _, tracker := newTestRouter(t, store, chainClient)
	server := httptest.NewServer(router)
	defer server.Close()

	body, err := json.Marshal(map[string]interface{}{
		"wallet":                []string{"0xAA"},
		"creator_node_endpoint": "https://primary.example",
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, server.URL+"/sync", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signToken(t, "https://primary.example"))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var respBody struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if respBody.JobID == "" {
		t.Fatalf("expected non-empty job_id")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		rec, found, err := tracker.Status(snapback.SyncTask, respBody.JobID)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if found && rec.Status != jobstatus.StateInProgress {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal status", respBody.JobID)
}

func TestAsyncProcessingStatusReportsDone(t *testing.T) {
	store := newTestStore(t)
	chainClient := chain.NewFakeClient(true)

	coordStore := coordination.NewLocalStore()
	tracker := jobstatus.NewTracker(coordStore, 0)
	jobs := jobqueue.New(coordStore, tracker, logging.NewComponentLogger("jobqueue", logging.LevelInfo))
	jobs.Process(snapback.SyncTask, 1, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		return map[string]string{"status": "ok"}, nil
	})

	exporter := export.New(store, chainClient, "https://self.example")
	router, err := httpapi.NewRouter(httpapi.Dependencies{
		Store:       store,
		Exporter:    exporter,
		ChainClient: chainClient,
		Jobs:        jobs,
		Tracker:     tracker,
		SigningKey:  []byte(testSigningKey),
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	server := httptest.NewServer(router)
	defer server.Close()

	jobID, err := jobs.Enqueue(snapback.SyncTask, map[string]string{"wallet": "0xAA"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		rec, found, statusErr := tracker.Status(snapback.SyncTask, jobID)
		if statusErr != nil {
			t.Fatalf("Status: %v", statusErr)
		}
		if found && rec.Status == jobstatus.StateDone {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get(server.URL + "/async_processing_status?uuid=" + jobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var rec jobstatus.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Status != jobstatus.StateDone {
		t.Fatalf("expected DONE, got %s", rec.Status)
	}
}

func TestAsyncProcessingStatusUnknownUUID(t *testing.T) {
	store := newTestStore(t)
	chainClient := chain.NewFakeClient(true)
	router, _, _ := newTestRouter(t, store, chainClient)
	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/async_processing_status?uuid=" + uuid.NewString())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
