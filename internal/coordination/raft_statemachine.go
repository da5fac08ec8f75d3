package coordination

import (
	"io"
	"sync"
	"time"

	sm "github.com/lni/dragonboat/v4/statemachine"
)

// coordinationStateMachine is the Raft-replicated apply target for the
// coordination store, following the shape of the teacher's
// lib/store/dstore.KVStateMachine: a Lookup for reads, an Update for writes,
// and Save/RecoverFromSnapshot for fuzzy snapshotting. Unlike the teacher's
// state machine (which delegates to a pluggable db.KVDB), this one owns a
// small in-memory map directly, since the coordination store only ever
// needs one storage shape.
type coordinationStateMachine struct {
	mu      sync.Mutex
	kv      map[string]entry
	setsRaw map[string]*rawSet
}

type rawSet struct {
	members  map[string]struct{}
	expireAt time.Time
}

// newCoordinationStateMachineFactory returns a Dragonboat state machine
// factory, mirroring CreateStateMaschineFactory from the teacher's
// lib/store/dstore/statemachine.go.
func newCoordinationStateMachineFactory() sm.CreateConcurrentStateMachineFunc {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &coordinationStateMachine{
			kv:      make(map[string]entry),
			setsRaw: make(map[string]*rawSet),
		}
	}
}

func expireAtFromUnixNano(nanos int64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

func (fsm *coordinationStateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(query)
	if !ok {
		return nil, NewError(ErrCodeInternal, "coordination: invalid query type")
	}

	fsm.mu.Lock()
	defer fsm.mu.Unlock()

	switch q.Type {
	case queryGet:
		e, found := fsm.kv[q.Key]
		if !found || e.expired(time.Now()) {
			return getResult{Ok: false}, nil
		}
		return getResult{Value: append([]byte(nil), e.value...), Ok: true}, nil
	case querySMembers:
		set, found := fsm.setsRaw[q.Key]
		if !found || (!set.expireAt.IsZero() && !set.expireAt.After(time.Now())) {
			return []string{}, nil
		}
		out := make([]string, 0, len(set.members))
		for m := range set.members {
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, NewError(ErrCodeInternal, "coordination: unknown query type")
	}
}

func (fsm *coordinationStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	fsm.mu.Lock()
	defer fsm.mu.Unlock()

	now := time.Now()
	for idx, e := range entries {
		var cmd command
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{Value: 0, Data: []byte(err.Error())}
			continue
		}

		switch cmd.Type {
		case cmdSet:
			fsm.kv[cmd.Key] = entry{value: cmd.Value, expireAt: expireAtFromUnixNano(cmd.ExpireAtUnixNano)}
		case cmdSetNX:
			if old, found := fsm.kv[cmd.Key]; !found || old.expired(now) {
				fsm.kv[cmd.Key] = entry{value: cmd.Value, expireAt: expireAtFromUnixNano(cmd.ExpireAtUnixNano)}
			}
		case cmdDelete:
			delete(fsm.kv, cmd.Key)
		case cmdExpire:
			if old, found := fsm.kv[cmd.Key]; found {
				old.expireAt = now.Add(-time.Second)
				fsm.kv[cmd.Key] = old
			}
		case cmdSAdd:
			set, found := fsm.setsRaw[cmd.Key]
			if !found {
				set = &rawSet{members: map[string]struct{}{}}
				fsm.setsRaw[cmd.Key] = set
			}
			set.members[cmd.Member] = struct{}{}
			set.expireAt = expireAtFromUnixNano(cmd.ExpireAtUnixNano)
		case cmdSRem:
			if set, found := fsm.setsRaw[cmd.Key]; found {
				delete(set.members, cmd.Member)
			}
		}

		entries[idx].Result = sm.Result{Value: 1}
	}
	return entries, nil
}

// PrepareSnapshot is not used; snapshotting below takes a fuzzy copy while
// holding the lock briefly, which is acceptable for a coordination store
// whose entries are all short-lived.
func (fsm *coordinationStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

func (fsm *coordinationStateMachine) SaveSnapshot(_ interface{}, w io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	fsm.mu.Lock()
	defer fsm.mu.Unlock()
	return gobEncodeSnapshot(w, fsm.kv, fsm.setsRaw)
}

func (fsm *coordinationStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	fsm.mu.Lock()
	defer fsm.mu.Unlock()
	kv, sets, err := gobDecodeSnapshot(r)
	if err != nil {
		return err
	}
	fsm.kv = kv
	fsm.setsRaw = sets
	return nil
}

func (fsm *coordinationStateMachine) Close() error {
	return nil
}
