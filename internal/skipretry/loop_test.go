package skipretry_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GNARcollectiveDAO/audius-protocol/internal/chain"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/clocklog"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/content"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/logging"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/skipretry"
)

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

func TestPassRecoversSkippedFile(t *testing.T) {
	store := newTestStore(t)
	payload := []byte("recovered bytes")
	mh := content.Multihash(payload)

	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == content.FetchPath+mh {
			w.Write(payload)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer peer.Close()

	const wallet = "0xAA"
	userUUID := uuid.NewString()
	fileUUID := uuid.NewString()
	if _, err := store.Append(userUUID, wallet, 1000, []clocklog.Mutation{
		{SourceTable: "files", SourceRowID: "f1", File: &clocklog.File{
			FileUUID: fileUUID, Multihash: mh, StoragePath: "", Type: clocklog.FileTypeImage, Skipped: true,
		}},
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	cc := chain.NewFakeClient(true)
	spID := cc.NextSPID()
	cc.RegisterServiceProvider(spID, peer.URL)
	cc.SeedReplicaSet(wallet, chain.ReplicaSet{PrimaryID: spID, Secondary1ID: spID, Secondary2ID: spID})

	fetcher := content.NewFetcher(0)
	storageRoot := t.TempDir()
	log := logging.NewComponentLogger("skipretry-test", logging.LevelError)

	loop := skipretry.New(skipretry.Config{}, store, cc, fetcher, storageRoot, log)
	loop.Pass()

	if !content.Exists(storageRoot, mh) {
		t.Fatalf("expected recovered content to be written")
	}

	files, err := store.SkippedFiles(0)
	if err != nil {
		t.Fatalf("SkippedFiles: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected no skipped files remaining, got %+v", files)
	}
}

func TestPassLeavesFileSkippedWhenPeerUnreachable(t *testing.T) {
	store := newTestStore(t)
	mh := content.Multihash([]byte("unreachable bytes"))

	const wallet = "0xBB"
	userUUID := uuid.NewString()
	fileUUID := uuid.NewString()
	if _, err := store.Append(userUUID, wallet, 1000, []clocklog.Mutation{
		{SourceTable: "files", SourceRowID: "f1", File: &clocklog.File{
			FileUUID: fileUUID, Multihash: mh, StoragePath: "", Type: clocklog.FileTypeImage, Skipped: true,
		}},
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	cc := chain.NewFakeClient(true)
	spID := cc.NextSPID()
	cc.RegisterServiceProvider(spID, "http://127.0.0.1:1")
	cc.SeedReplicaSet(wallet, chain.ReplicaSet{PrimaryID: spID, Secondary1ID: spID, Secondary2ID: spID})

	fetcher := content.NewFetcher(0)
	storageRoot := t.TempDir()
	log := logging.NewComponentLogger("skipretry-test", logging.LevelError)

	loop := skipretry.New(skipretry.Config{}, store, cc, fetcher, storageRoot, log)
	loop.Pass()

	files, err := store.SkippedFiles(0)
	if err != nil {
		t.Fatalf("SkippedFiles: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected the file to remain skipped, got %+v", files)
	}
}
