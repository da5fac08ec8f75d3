package coordination

import (
	"encoding/gob"
	"io"
	"time"
)

// snapshotEntry and snapshotSet are plain, exported-field mirrors of entry
// and rawSet used only for gob encoding: gob ignores unexported fields, so
// the internal types above can't be encoded directly.
type snapshotEntry struct {
	Value    []byte
	ExpireAt time.Time
}

type snapshotSet struct {
	Members  []string
	ExpireAt time.Time
}

type snapshotDoc struct {
	KV   map[string]snapshotEntry
	Sets map[string]snapshotSet
}

func gobEncodeSnapshot(w io.Writer, kv map[string]entry, sets map[string]*rawSet) error {
	doc := snapshotDoc{
		KV:   make(map[string]snapshotEntry, len(kv)),
		Sets: make(map[string]snapshotSet, len(sets)),
	}
	for k, e := range kv {
		doc.KV[k] = snapshotEntry{Value: e.value, ExpireAt: e.expireAt}
	}
	for k, s := range sets {
		members := make([]string, 0, len(s.members))
		for m := range s.members {
			members = append(members, m)
		}
		doc.Sets[k] = snapshotSet{Members: members, ExpireAt: s.expireAt}
	}
	return gob.NewEncoder(w).Encode(doc)
}

func gobDecodeSnapshot(r io.Reader) (map[string]entry, map[string]*rawSet, error) {
	var doc snapshotDoc
	if err := gob.NewDecoder(r).Decode(&doc); err != nil {
		return nil, nil, err
	}
	kv := make(map[string]entry, len(doc.KV))
	for k, e := range doc.KV {
		kv[k] = entry{value: e.Value, expireAt: e.ExpireAt}
	}
	sets := make(map[string]*rawSet, len(doc.Sets))
	for k, s := range doc.Sets {
		members := make(map[string]struct{}, len(s.Members))
		for _, m := range s.Members {
			members[m] = struct{}{}
		}
		sets[k] = &rawSet{members: members, expireAt: s.ExpireAt}
	}
	return kv, sets, nil
}
