package lockmgr

import (
	"bytes"
	"time"

	"github.com/GNARcollectiveDAO/audius-protocol/internal/coordination"
)

type manager struct {
	store coordination.ICoordinationStore
}

// NewLockManager creates an ILockManager backed by store. It holds no state
// of its own, so it is safe to construct one per call as long as every
// caller shares the same underlying coordination store.
func NewLockManager(store coordination.ICoordinationStore) ILockManager {
	return &manager{store: store}
}

func (m *manager) AcquireLock(key string, ttl time.Duration) (bool, []byte, error) {
	ownerID, err := generateOwnerID()
	if err != nil {
		return false, nil, err
	}

	won, err := m.store.SetNX(key, ownerID, ttl)
	if err != nil {
		return false, nil, err
	}
	if !won {
		return false, nil, nil
	}
	return true, ownerID, nil
}

func (m *manager) ReleaseLock(key string, ownerID []byte) (bool, error) {
	value, found, err := m.store.Get(key)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	if !bytes.Equal(ownerID, value) {
		return false, nil
	}
	if err := m.store.Delete(key); err != nil {
		return false, err
	}
	return true, nil
}
