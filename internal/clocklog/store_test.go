package clocklog_test

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/GNARcollectiveDAO/audius-protocol/internal/clocklog"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&clocklog.User{}, &clocklog.ClockLogRow{}, &clocklog.File{}, &clocklog.Track{}, &clocklog.AudiusUser{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestAppendProducesDenseClockLog(t *testing.T) {
	db := newTestDB(t)
	store := clocklog.New(db, 0)
	userUUID := uuid.NewString()

	newClock, err := store.Append(userUUID, "0xAA", 1000, []clocklog.Mutation{
		{SourceTable: "files", SourceRowID: "f1", File: &clocklog.File{FileUUID: uuid.NewString(), Multihash: "Qm1", StoragePath: "/a", Type: clocklog.FileTypeImage}},
		{SourceTable: "files", SourceRowID: "f2", File: &clocklog.File{FileUUID: uuid.NewString(), Multihash: "Qm2", StoragePath: "/b", Type: clocklog.FileTypeMetadata}},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if newClock != 1 {
		t.Fatalf("expected clock 1, got %d", newClock)
	}

	user, rows, _, err := store.Slice("0xAA", 0)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if user.Clock != 1 {
		t.Fatalf("expected user clock 1, got %d", user.Clock)
	}
	if len(rows) != 2 || rows[0].Clock != 0 || rows[1].Clock != 1 {
		t.Fatalf("expected dense rows [0,1], got %+v", rows)
	}
}

func TestSliceAbsentUserReturnsNegativeClock(t *testing.T) {
	db := newTestDB(t)
	store := clocklog.New(db, 0)

	user, rows, entities, err := store.Slice("0xDOESNOTEXIST", 0)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if user.Clock != -1 {
		t.Fatalf("expected clock -1 for absent user, got %d", user.Clock)
	}
	if len(rows) != 0 || len(entities.Files) != 0 {
		t.Fatalf("expected empty slice for absent user")
	}
}

// TestAppendUpsertsRepeatedTrackEdit covers an ordinary sync window that
// contains two metadata edits to the same track: the second Append against
// an already-present track_blockchain_id must overwrite the row, not hit a
// unique-key violation.
func TestAppendUpsertsRepeatedTrackEdit(t *testing.T) {
	db := newTestDB(t)
	store := clocklog.New(db, 0)
	userUUID := uuid.NewString()

	newClock, err := store.Append(userUUID, "0xAA", 1000, []clocklog.Mutation{
		{SourceTable: "tracks", SourceRowID: "100", Track: &clocklog.Track{TrackBlockchainID: 100, MetadataMultihash: "QmV1", CreatedAt: 1000}},
	})
	if err != nil {
		t.Fatalf("first Append: %v", err)
	}
	if newClock != 0 {
		t.Fatalf("expected clock 0 after first edit, got %d", newClock)
	}

	newClock, err = store.Append(userUUID, "0xAA", 1001, []clocklog.Mutation{
		{SourceTable: "tracks", SourceRowID: "100", Track: &clocklog.Track{TrackBlockchainID: 100, MetadataMultihash: "QmV2", CreatedAt: 1000}},
	})
	if err != nil {
		t.Fatalf("second Append to the same track: %v", err)
	}
	if newClock != 1 {
		t.Fatalf("expected clock 1 after second edit, got %d", newClock)
	}

	user, rows, entities, err := store.Slice("0xAA", 0)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if user.Clock != 1 {
		t.Fatalf("expected user clock 1, got %d", user.Clock)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 clock log rows (one per edit), got %d", len(rows))
	}
	if len(entities.Tracks) != 1 {
		t.Fatalf("expected exactly 1 track row (second edit overwrote the first), got %d", len(entities.Tracks))
	}
	if entities.Tracks[0].MetadataMultihash != "QmV2" {
		t.Fatalf("expected track to reflect the latest edit, got %q", entities.Tracks[0].MetadataMultihash)
	}
}

func TestTruncateRemovesAllRows(t *testing.T) {
	db := newTestDB(t)
	store := clocklog.New(db, 0)
	userUUID := uuid.NewString()

	if _, err := store.Append(userUUID, "0xBB", 1000, []clocklog.Mutation{
		{SourceTable: "files", SourceRowID: "f1", File: &clocklog.File{FileUUID: uuid.NewString(), Multihash: "Qm1", StoragePath: "/a", Type: clocklog.FileTypeImage}},
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := store.Truncate("0xBB"); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	user, rows, _, err := store.Slice("0xBB", 0)
	if err != nil {
		t.Fatalf("Slice after truncate: %v", err)
	}
	if user.Clock != -1 || len(rows) != 0 {
		t.Fatalf("expected user and rows gone after truncate, got user=%+v rows=%v", user, rows)
	}
}
