package skipretry

import (
	"context"
	"time"

	"github.com/GNARcollectiveDAO/audius-protocol/internal/chain"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/clocklog"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/content"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/logging"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/metrics"
)

// DefaultInterval is how often the loop scans for skipped files.
const DefaultInterval = 5 * time.Minute

// DefaultBatchSize bounds how many skipped files one pass attempts.
const DefaultBatchSize = 100

// Config tunes the loop's cadence and batch size.
type Config struct {
	Interval  time.Duration
	BatchSize int
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
}

// Loop is the Skipped-CID Retry Loop.
type Loop struct {
	cfg Config

	store       *clocklog.Store
	chainClient chain.IChainClient
	fetcher     *content.Fetcher
	storageRoot string
	log         *logging.ComponentLogger
}

// New creates a Loop.
func New(
	cfg Config,
	store *clocklog.Store,
	chainClient chain.IChainClient,
	fetcher *content.Fetcher,
	storageRoot string,
	log *logging.ComponentLogger,
) *Loop {
	cfg.applyDefaults()
	return &Loop{
		cfg:         cfg,
		store:       store,
		chainClient: chainClient,
		fetcher:     fetcher,
		storageRoot: storageRoot,
		log:         log,
	}
}

// Run blocks, scanning every Interval until ctx is canceled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Pass()
		}
	}
}

// Pass runs one bounded scan-and-retry cycle over skipped files.
func (l *Loop) Pass() {
	files, err := l.store.SkippedFiles(l.cfg.BatchSize)
	if err != nil {
		l.log.Warnf("skipretry: list skipped files: %v", err)
		return
	}

	for _, f := range files {
		if err := l.retryOne(f); err != nil {
			l.log.Warnf("skipretry: retry %s: %v", f.FileUUID, err)
		}
	}
}

func (l *Loop) retryOne(f clocklog.File) error {
	wallet, err := l.store.WalletForUser(f.UserUUID)
	if err != nil {
		return err
	}

	peers, err := l.resolvePeers(wallet)
	if err != nil || len(peers) == 0 {
		return err
	}

	data, err := l.fetcher.Fetch(peers, f.Multihash)
	if err != nil {
		return err
	}

	path, err := content.Write(l.storageRoot, f.Multihash, data)
	if err != nil {
		// Write already re-verifies the hash; a mismatch here means a
		// misbehaving peer, not a local bug. Leave Skipped set for the next pass.
		return err
	}

	if err := l.store.ClearSkipped(f.FileUUID, path); err != nil {
		return err
	}
	metrics.RecordSkippedFileRecovered()
	return nil
}

func (l *Loop) resolvePeers(wallet string) ([]string, error) {
	rs, err := l.chainClient.GetReplicaSet(wallet)
	if err != nil {
		return nil, err
	}

	var peers []string
	for _, spID := range []int64{rs.PrimaryID, rs.Secondary1ID, rs.Secondary2ID} {
		endpoint, err := l.chainClient.ResolveEndpoint(spID)
		if err != nil {
			continue
		}
		peers = append(peers, endpoint)
	}
	return peers, nil
}
