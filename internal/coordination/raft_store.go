package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/config"
	dlogger "github.com/lni/dragonboat/v4/logger"
)

var raftLog = dlogger.GetLogger("coordination")

const raftRetries = 5

// raftStore is the Raft-replicated ICoordinationStore backing, grounded
// directly on the teacher's lib/store/dstore.storeImpl: the same
// SyncPropose/SyncRead-with-retry shape, retargeted at the command/query
// types in raft_command.go instead of the teacher's generic KVDB commands.
type raftStore struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
}

// RaftClusterConfig describes the coordination cluster this node joins.
type RaftClusterConfig struct {
	ReplicaID          uint64
	ShardID            uint64
	ClusterMembers     map[uint64]string
	DataDir            string
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	Timeout            time.Duration
}

// NewRaftStore creates (or joins) the coordination cluster's Raft shard and
// returns an ICoordinationStore backed by it. It owns the *dragonboat.NodeHost
// it creates; callers should Close() the returned store on shutdown.
func NewRaftStore(cfg RaftClusterConfig) (ICoordinationStore, error) {
	nhConfig := config.NodeHostConfig{
		WALDir:         cfg.DataDir,
		NodeHostDir:    cfg.DataDir,
		RTTMillisecond: cfg.RTTMillisecond,
		RaftAddress:    cfg.ClusterMembers[cfg.ReplicaID],
	}

	nh, err := dragonboat.NewNodeHost(nhConfig)
	if err != nil {
		return nil, fmt.Errorf("coordination: failed to create node host: %w", err)
	}

	raftConfig := config.Config{
		ReplicaID:          cfg.ReplicaID,
		ShardID:            cfg.ShardID,
		ElectionRTT:        10,
		HeartbeatRTT:       1,
		CheckQuorum:        true,
		SnapshotEntries:    cfg.SnapshotEntries,
		CompactionOverhead: cfg.CompactionOverhead,
	}

	if err := nh.StartConcurrentReplica(cfg.ClusterMembers, false, newCoordinationStateMachineFactory(), raftConfig); err != nil {
		nh.Close()
		return nil, fmt.Errorf("coordination: failed to start replica for shard %d: %w", cfg.ShardID, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &raftStore{
		nh:      nh,
		shardID: cfg.ShardID,
		cs:      nh.GetNoOPSession(cfg.ShardID),
		timeout: timeout,
	}, nil
}

func (s *raftStore) write(cmd command) error {
	for i := 0; i < raftRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		_, err := s.nh.SyncPropose(ctx, s.cs, cmd.Serialize())
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			raftLog.Infof("SyncPropose: system busy, retrying (%d/%d)", i+1, raftRetries)
			time.Sleep(s.timeout / 10)
			continue
		}
		if err != nil {
			return NewError(ErrCodeInternal, err.Error())
		}
		return nil
	}
	return NewError(ErrCodeUnavailable, "coordination: propose timed out after retries")
}

func read[R any](s *raftStore, q query) (R, error) {
	var zero R
	for i := 0; i < raftRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		res, err := s.nh.SyncRead(ctx, s.shardID, q)
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			raftLog.Infof("SyncRead: system busy, retrying (%d/%d)", i+1, raftRetries)
			time.Sleep(s.timeout / 10)
			continue
		}
		if err != nil {
			return zero, NewError(ErrCodeInternal, err.Error())
		}
		casted, ok := res.(R)
		if !ok {
			return zero, NewError(ErrCodeInternal, fmt.Sprintf("coordination: unexpected result type %T", res))
		}
		return casted, nil
	}
	return zero, NewError(ErrCodeUnavailable, "coordination: read timed out after retries")
}

func (s *raftStore) Get(key string) ([]byte, bool, error) {
	res, err := read[getResult](s, query{Type: queryGet, Key: key})
	if err != nil {
		return nil, false, err
	}
	return res.Value, res.Ok, nil
}

func (s *raftStore) Set(key string, value []byte, ttl time.Duration) error {
	return s.write(command{Type: cmdSet, Key: key, Value: value, ExpireAtUnixNano: expireAtNanosFromTTL(ttl)})
}

func (s *raftStore) SetNX(key string, value []byte, ttl time.Duration) (bool, error) {
	if err := s.write(command{Type: cmdSetNX, Key: key, Value: value, ExpireAtUnixNano: expireAtNanosFromTTL(ttl)}); err != nil {
		return false, err
	}
	// SetNX's "did we win" answer requires a follow-up read of what's stored,
	// mirroring the teacher's lockmgr.AcquireLock which checks ownership
	// after the write rather than relying on the store to report a race.
	stored, found, err := s.Get(key)
	if err != nil || !found {
		return false, err
	}
	return string(stored) == string(value), nil
}

func (s *raftStore) Delete(key string) error {
	return s.write(command{Type: cmdDelete, Key: key})
}

func (s *raftStore) Expire(key string) error {
	return s.write(command{Type: cmdExpire, Key: key})
}

func (s *raftStore) SAdd(key string, member string, ttl time.Duration) error {
	return s.write(command{Type: cmdSAdd, Key: key, Member: member, ExpireAtUnixNano: expireAtNanosFromTTL(ttl)})
}

func (s *raftStore) SMembers(key string) ([]string, error) {
	return read[[]string](s, query{Type: querySMembers, Key: key})
}

func (s *raftStore) SRem(key string, member string) error {
	return s.write(command{Type: cmdSRem, Key: key, Member: member})
}

func (s *raftStore) Close() error {
	s.nh.Close()
	return nil
}

func expireAtNanosFromTTL(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return time.Now().Add(ttl).UnixNano()
}
