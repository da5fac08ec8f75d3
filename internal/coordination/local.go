package coordination

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// entry mirrors the teacher's maple.Entry (value + expiry metadata), but
// keyed on wall-clock time instead of a logical write index: a coordination
// store shared across independent node processes has no single ordering
// clock to hang TTLs off of the way a single Raft log does.
type entry struct {
	value    []byte
	expireAt time.Time // zero means "no expiration"
}

func (e entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// localStore is a single-process coordination store backed by a concurrent
// map with lazy expiration plus a periodic sweep, the same two-pronged
// eviction strategy as the teacher's maple engine (lazy check on read,
// background GC to reclaim memory from keys nobody reads again).
type localStore struct {
	data *xsync.MapOf[string, entry]
	sets *xsync.MapOf[string, *setEntry]

	stopOnce sync.Once
	stopCh   chan struct{}
}

type setEntry struct {
	mu       sync.Mutex
	members  map[string]struct{}
	expireAt time.Time
}

// NewLocalStore creates a single-process ICoordinationStore. This backing is
// used in dev mode and by tests; it does not survive process restarts and is
// not shared across node processes.
func NewLocalStore() ICoordinationStore {
	s := &localStore{
		data:   xsync.NewMapOf[string, entry](),
		sets:   xsync.NewMapOf[string, *setEntry](),
		stopCh: make(chan struct{}),
	}
	go s.gcLoop()
	return s
}

const gcInterval = 1 * time.Second

func (s *localStore) gcLoop() {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *localStore) sweep() {
	now := time.Now()
	s.data.Range(func(key string, e entry) bool {
		if e.expired(now) {
			s.data.Compute(key, func(cur entry, loaded bool) (entry, bool) {
				return cur, true // delete
			})
		}
		return true
	})
	s.sets.Range(func(key string, se *setEntry) bool {
		se.mu.Lock()
		expired := !se.expireAt.IsZero() && !se.expireAt.After(now)
		se.mu.Unlock()
		if expired {
			s.sets.Delete(key)
		}
		return true
	})
}

func expireAtFromTTL(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

func (s *localStore) Get(key string) ([]byte, bool, error) {
	e, ok := s.data.Load(key)
	if !ok || e.expired(time.Now()) {
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (s *localStore) Set(key string, value []byte, ttl time.Duration) error {
	valueCopy := append([]byte(nil), value...)
	s.data.Store(key, entry{value: valueCopy, expireAt: expireAtFromTTL(ttl)})
	return nil
}

func (s *localStore) SetNX(key string, value []byte, ttl time.Duration) (bool, error) {
	valueCopy := append([]byte(nil), value...)
	newEntry := entry{value: valueCopy, expireAt: expireAtFromTTL(ttl)}

	var wonRace bool
	now := time.Now()
	s.data.Compute(key, func(old entry, loaded bool) (entry, bool) {
		if !loaded || old.expired(now) {
			wonRace = true
			return newEntry, false
		}
		wonRace = false
		return old, false
	})
	return wonRace, nil
}

func (s *localStore) Delete(key string) error {
	s.data.Delete(key)
	return nil
}

func (s *localStore) Expire(key string) error {
	s.data.Compute(key, func(old entry, loaded bool) (entry, bool) {
		if !loaded {
			return old, true
		}
		old.expireAt = time.Now().Add(-time.Second)
		return old, false
	})
	return nil
}

func (s *localStore) SAdd(key string, member string, ttl time.Duration) error {
	se, _ := s.sets.LoadOrCompute(key, func() *setEntry {
		return &setEntry{members: map[string]struct{}{}}
	})
	se.mu.Lock()
	se.members[member] = struct{}{}
	se.expireAt = expireAtFromTTL(ttl)
	se.mu.Unlock()
	return nil
}

func (s *localStore) SMembers(key string) ([]string, error) {
	se, ok := s.sets.Load(key)
	if !ok {
		return nil, nil
	}
	se.mu.Lock()
	defer se.mu.Unlock()
	if !se.expireAt.IsZero() && !se.expireAt.After(time.Now()) {
		return nil, nil
	}
	out := make([]string, 0, len(se.members))
	for m := range se.members {
		out = append(out, m)
	}
	return out, nil
}

func (s *localStore) SRem(key string, member string) error {
	se, ok := s.sets.Load(key)
	if !ok {
		return nil
	}
	se.mu.Lock()
	delete(se.members, member)
	se.mu.Unlock()
	return nil
}

func (s *localStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}
