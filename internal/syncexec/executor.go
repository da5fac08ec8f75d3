package syncexec

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/GNARcollectiveDAO/audius-protocol/internal/chain"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/clocklog"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/content"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/coordination"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/export"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/lockmgr"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/logging"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/metrics"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/nodeerr"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/peerclient"
)

// DefaultMaxFailureCountBeforeSkip is sync_request_max_user_failure_count_before_skip.
const DefaultMaxFailureCountBeforeSkip = 3

// DefaultFileSaveMaxConcurrency is node_sync_file_save_max_concurrency.
const DefaultFileSaveMaxConcurrency = 10

// DefaultMaxSyncConcurrency bounds concurrently in-flight sync jobs across
// all users.
const DefaultMaxSyncConcurrency = 100

// DefaultLockTTL is max_lock_hold_duration_ms: the TTL set on a per-user
// sync lock, after which the coordination store treats the lock as
// abandoned and lets it expire. The running sync itself is not interrupted.
const DefaultLockTTL = 10 * time.Minute

// Config tunes the executor's concurrency and failure-threshold behavior.
type Config struct {
	SelfEndpoint           string
	StorageRoot            string
	MaxFailureCountBeforeSkip int
	FileSaveMaxConcurrency int
	MaxSyncConcurrency     int
	LockTTL                time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxFailureCountBeforeSkip <= 0 {
		c.MaxFailureCountBeforeSkip = DefaultMaxFailureCountBeforeSkip
	}
	if c.FileSaveMaxConcurrency <= 0 {
		c.FileSaveMaxConcurrency = DefaultFileSaveMaxConcurrency
	}
	if c.MaxSyncConcurrency <= 0 {
		c.MaxSyncConcurrency = DefaultMaxSyncConcurrency
	}
	if c.LockTTL <= 0 {
		c.LockTTL = DefaultLockTTL
	}
}

// Executor runs Sync Jobs. It is safe for concurrent use by many goroutines
// (the async job queue's sync handlers); the executor itself bounds
// cross-user parallelism via a semaphore so the queue's own worker count
// doesn't have to match max_sync_concurrency exactly.
type Executor struct {
	cfg Config

	store       *clocklog.Store
	locks       lockmgr.ILockManager
	coord       coordination.ICoordinationStore
	peers       *peerclient.Client
	fetcher     *content.Fetcher
	chainClient chain.IChainClient
	log         *logging.ComponentLogger

	sem *semaphore.Weighted
}

// New creates an Executor.
func New(
	cfg Config,
	store *clocklog.Store,
	locks lockmgr.ILockManager,
	coord coordination.ICoordinationStore,
	peers *peerclient.Client,
	fetcher *content.Fetcher,
	chainClient chain.IChainClient,
	log *logging.ComponentLogger,
) *Executor {
	cfg.applyDefaults()
	return &Executor{
		cfg:         cfg,
		store:       store,
		locks:       locks,
		coord:       coord,
		peers:       peers,
		fetcher:     fetcher,
		chainClient: chainClient,
		log:         log,
		sem:         semaphore.NewWeighted(int64(cfg.MaxSyncConcurrency)),
	}
}

// Execute runs job, syncing every wallet it names. Per-wallet results are
// independent: one wallet failing does not abort the others.
func (e *Executor) Execute(job Job) []Outcome {
	outcomes := make([]Outcome, len(job.Wallets))

	var g errgroup.Group
	for i, wallet := range job.Wallets {
		i, wallet := i, wallet
		g.Go(func() error {
			if err := e.sem.Acquire(context.Background(), 1); err != nil {
				outcomes[i] = Outcome{Wallet: wallet, Success: false, Err: err}
				return nil
			}
			defer e.sem.Release(1)

			err := e.syncOne(job, wallet)
			success := err == nil
			metrics.RecordSyncOutcome(success)
			outcomes[i] = Outcome{Wallet: wallet, Success: success, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// syncOne is the ten-step pipeline for a single wallet.
func (e *Executor) syncOne(job Job, wallet string) error {
	lockKey := "node_sync:" + wallet

	// Step 1: lock acquisition.
	ok, ownerID, err := e.locks.AcquireLock(lockKey, e.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("syncexec: acquire lock for %s: %w", wallet, err)
	}
	if !ok {
		return nodeerr.New(nodeerr.KindSyncInProgress, "lock held by another sync", nil)
	}
	defer func() {
		if _, err := e.locks.ReleaseLock(lockKey, ownerID); err != nil {
			e.log.Warnf("failed to release lock for %s: %v", wallet, err)
		}
	}()

	// Step 2: clock baseline.
	localClock, err := e.clockBaseline(job, wallet)
	if err != nil {
		return err
	}

	// Step 3: fetch export.
	payload, err := e.peers.FetchExport(job.SourcePeerEndpoint, []string{wallet}, localClock+1)
	if err != nil {
		return nodeerr.New(nodeerr.KindExportInvalid, "export request failed", err)
	}
	fetched, ok := payload.CNodeUsers[wallet]
	if !ok {
		return nodeerr.New(nodeerr.KindExportInvalid, "export payload missing requested wallet", nil)
	}

	// Step 4: contiguity check.
	if fetched.Clock == localClock {
		return nil // already up to date
	}
	if fetched.Clock < localClock {
		return nodeerr.New(nodeerr.KindExportRegression, fmt.Sprintf("peer clock %d < local clock %d", fetched.Clock, localClock), nil)
	}
	if localClock >= 0 && len(fetched.ClockRecords) > 0 && fetched.ClockRecords[0].Clock != localClock+1 {
		return nodeerr.New(nodeerr.KindExportNonContiguous, fmt.Sprintf("expected next clock %d, got %d", localClock+1, fetched.ClockRecords[0].Clock), nil)
	}

	// Step 5: peer-set discovery.
	peers, err := e.discoverPeers(wallet, job.SourcePeerEndpoint)
	if err != nil {
		e.log.Warnf("peer-set discovery failed for %s, falling back to source peer only: %v", wallet, err)
		peers = []string{job.SourcePeerEndpoint}
	}

	// Step 6: batched content fetch.
	skippedMultihashes, failedCIDs := e.fetchContent(fetched, peers)

	// Step 7: failure gating.
	if len(failedCIDs) > 0 {
		count, err := e.incrementFailureCount(wallet)
		if err != nil {
			return fmt.Errorf("syncexec: update failure count for %s: %w", wallet, err)
		}
		if count < int64(e.cfg.MaxFailureCountBeforeSkip) {
			return nodeerr.New(nodeerr.KindContentFetchFailed, fmt.Sprintf("%d CIDs failed, failure count %d", len(failedCIDs), count), nil)
		}
		// Threshold reached: continue with the failed files marked skipped
		// rather than failing the job again, and reset the counter.
		if err := e.resetFailureCount(wallet); err != nil {
			e.log.Warnf("failed to reset failure count for %s: %v", wallet, err)
		}
	} else if err := e.resetFailureCount(wallet); err != nil {
		e.log.Warnf("failed to reset failure count for %s: %v", wallet, err)
	}

	// Step 8: atomic commit.
	if err := e.commit(wallet, fetched, skippedMultihashes); err != nil {
		return nodeerr.New(nodeerr.KindCommitFailed, "transaction rolled back", err)
	}

	// Steps 9 (lock release) and 10 (outcome) happen in the deferred release
	// above and the caller's metrics.RecordSyncOutcome call respectively.
	return nil
}

func (e *Executor) clockBaseline(job Job, wallet string) (int64, error) {
	if job.ForceResync {
		if err := e.store.Truncate(wallet); err != nil {
			return 0, fmt.Errorf("syncexec: truncate for force resync: %w", err)
		}
		return -1, nil
	}
	user, _, _, err := e.store.Slice(wallet, 0)
	if err != nil {
		return 0, fmt.Errorf("syncexec: read clock baseline: %w", err)
	}
	return user.Clock, nil
}

func (e *Executor) discoverPeers(wallet, sourceEndpoint string) ([]string, error) {
	rs, err := e.chainClient.GetReplicaSet(wallet)
	if err != nil {
		return nil, err
	}

	var out []string
	seen := map[string]struct{}{sourceEndpoint: {}}
	for _, spID := range []int64{rs.PrimaryID, rs.Secondary1ID, rs.Secondary2ID} {
		endpoint, err := e.chainClient.ResolveEndpoint(spID)
		if err != nil || endpoint == e.cfg.SelfEndpoint {
			continue
		}
		if _, dup := seen[endpoint]; dup {
			continue
		}
		seen[endpoint] = struct{}{}
		out = append(out, endpoint)
	}
	// The source endpoint the job was scheduled against always comes first.
	return append([]string{sourceEndpoint}, out...), nil
}

// fetchContent partitions files into track and non-track groups and fetches
// each group (tracks first) with at most FileSaveMaxConcurrency fetches in
// flight at a time. Directory-type files carry no payload and are skipped
// structurally.
func (e *Executor) fetchContent(fetched export.CNodeUser, peers []string) (skipped map[string]bool, failed []string) {
	skipped = make(map[string]bool)

	var trackFiles, nonTrackFiles []clocklog.File
	for _, f := range fetched.Files {
		if f.Type == clocklog.FileTypeDir {
			continue
		}
		if f.Type == clocklog.FileTypeTrack || f.Type == clocklog.FileTypeCopy320 {
			trackFiles = append(trackFiles, f)
		} else {
			nonTrackFiles = append(nonTrackFiles, f)
		}
	}

	for _, group := range [][]clocklog.File{trackFiles, nonTrackFiles} {
		groupFailed, groupSkipped := e.fetchGroup(group, peers)
		failed = append(failed, groupFailed...)
		for k, v := range groupSkipped {
			skipped[k] = v
		}
	}
	return skipped, failed
}

func (e *Executor) fetchGroup(files []clocklog.File, peers []string) (failed []string, skipped map[string]bool) {
	skipped = make(map[string]bool)
	sem := semaphore.NewWeighted(int64(e.cfg.FileSaveMaxConcurrency))
	var g errgroup.Group

	type result struct {
		multihash string
		ok        bool
	}
	results := make([]result, len(files))

	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := sem.Acquire(context.Background(), 1); err != nil {
				results[i] = result{multihash: f.Multihash, ok: false}
				return nil
			}
			defer sem.Release(1)

			if content.Exists(e.cfg.StorageRoot, f.Multihash) {
				results[i] = result{multihash: f.Multihash, ok: true}
				return nil
			}
			var data []byte
			var err error
			if f.Type == clocklog.FileTypeImage && f.DirMultihash != nil && f.FileName != nil {
				data, err = e.fetcher.FetchInDir(peers, *f.DirMultihash, *f.FileName, f.Multihash)
			} else {
				data, err = e.fetcher.Fetch(peers, f.Multihash)
			}
			if err != nil {
				results[i] = result{multihash: f.Multihash, ok: false}
				return nil
			}
			if _, err := content.Write(e.cfg.StorageRoot, f.Multihash, data); err != nil {
				results[i] = result{multihash: f.Multihash, ok: false}
				return nil
			}
			results[i] = result{multihash: f.Multihash, ok: true}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.ok {
			continue
		}
		failed = append(failed, r.multihash)
		skipped[r.multihash] = true
	}
	return failed, skipped
}

// commit replays fetched.ClockRecords one-for-one into a Mutation batch, not
// the deduplicated entity lists: the snapshot tables (Files excepted) only
// keep the latest state of a row, so a row edited twice inside the export
// window shows up as two ClockRecords but one Tracks/AudiusUsers entry.
// Building the batch from the entity lists would under-count those
// mutations and leave this wallet's clock behind the source peer's even
// though the commit itself succeeds. Every record with a missing entity
// (possible only if fetched is internally inconsistent) is dropped rather
// than failing the whole sync.
func (e *Executor) commit(wallet string, fetched export.CNodeUser, skippedMultihashes map[string]bool) error {
	userUUID := fetched.UserUUID
	if userUUID == "" {
		local, _, _, err := e.store.Slice(wallet, 0)
		if err != nil {
			return err
		}
		userUUID = local.UserUUID
	}
	if userUUID == "" {
		userUUID = newUserUUID(wallet)
	}

	filesByID := make(map[string]clocklog.File, len(fetched.Files))
	for _, f := range fetched.Files {
		filesByID[f.FileUUID] = f
	}
	tracksByID := make(map[string]clocklog.Track, len(fetched.Tracks))
	for _, t := range fetched.Tracks {
		tracksByID[fmt.Sprintf("%d", t.TrackBlockchainID)] = t
	}
	audiusUsersByID := make(map[string]clocklog.AudiusUser, len(fetched.AudiusUsers))
	for _, au := range fetched.AudiusUsers {
		audiusUsersByID[au.UserUUID] = au
	}

	mutations := make([]clocklog.Mutation, 0, len(fetched.ClockRecords))
	for _, rec := range fetched.ClockRecords {
		switch rec.SourceTable {
		case "files":
			f, ok := filesByID[rec.SourceRowID]
			if !ok {
				continue
			}
			f.Skipped = skippedMultihashes[f.Multihash]
			mutations = append(mutations, clocklog.Mutation{SourceTable: rec.SourceTable, SourceRowID: rec.SourceRowID, File: &f})
		case "tracks":
			t, ok := tracksByID[rec.SourceRowID]
			if !ok {
				continue
			}
			mutations = append(mutations, clocklog.Mutation{SourceTable: rec.SourceTable, SourceRowID: rec.SourceRowID, Track: &t})
		case "audius_users":
			au, ok := audiusUsersByID[rec.SourceRowID]
			if !ok {
				continue
			}
			mutations = append(mutations, clocklog.Mutation{SourceTable: rec.SourceTable, SourceRowID: rec.SourceRowID, AudiusUser: &au})
		}
	}
	if len(mutations) == 0 {
		return nil
	}

	_, err := e.store.Append(userUUID, wallet, time.Now().Unix(), mutations)
	return err
}

func (e *Executor) incrementFailureCount(wallet string) (int64, error) {
	key := "sync_failure_count:" + wallet
	data, found, err := e.coord.Get(key)
	var count int64
	if err != nil {
		return 0, err
	}
	if found {
		count = int64(binary.BigEndian.Uint64(data))
	}
	count++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(count))
	if err := e.coord.Set(key, buf, 0); err != nil {
		return 0, err
	}
	return count, nil
}

func (e *Executor) resetFailureCount(wallet string) error {
	return e.coord.Delete("sync_failure_count:" + wallet)
}
