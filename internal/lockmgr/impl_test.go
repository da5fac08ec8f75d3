package lockmgr_test

import (
	"testing"
	"time"

	"github.com/GNARcollectiveDAO/audius-protocol/internal/coordination"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/lockmgr"
)

func TestAcquireAndReleaseLock(t *testing.T) {
	store := coordination.NewLocalStore()
	defer store.Close()

	mgr := lockmgr.NewLockManager(store)

	ok, owner, err := mgr.AcquireLock("user:1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected to acquire lock, got ok=%v err=%v", ok, err)
	}

	if ok, _, err := mgr.AcquireLock("user:1", time.Minute); err != nil || ok {
		t.Fatalf("expected second acquire to fail, got ok=%v err=%v", ok, err)
	}

	released, err := mgr.ReleaseLock("user:1", owner)
	if err != nil || !released {
		t.Fatalf("expected release to succeed, got ok=%v err=%v", released, err)
	}

	ok, _, err = mgr.AcquireLock("user:1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected acquire after release to succeed, got ok=%v err=%v", ok, err)
	}
}

func TestReleaseLockWrongOwner(t *testing.T) {
	store := coordination.NewLocalStore()
	defer store.Close()

	mgr := lockmgr.NewLockManager(store)

	ok, _, err := mgr.AcquireLock("user:2", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected to acquire lock, got ok=%v err=%v", ok, err)
	}

	released, err := mgr.ReleaseLock("user:2", []byte("not the real owner"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if released {
		t.Fatalf("expected release with wrong owner to fail")
	}
}
