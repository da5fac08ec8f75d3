package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdUtil "github.com/GNARcollectiveDAO/audius-protocol/cmd/util"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/chain"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/clocklog"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/config"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/content"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/coordination"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/export"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/httpapi"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/identity"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/jobqueue"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/jobstatus"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/lockmgr"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/logging"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/peerclient"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/skipretry"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/snapback"
	"github.com/GNARcollectiveDAO/audius-protocol/internal/syncexec"
)

var ServeCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the creator node",
	Long:    `Start the creator node with the given configuration. Configuration can be set via flags or environment variables of the form CNODE_<flag> (e.g. CNODE_DATABASE_PATH=/data/cn.db).`,
	PreRunE: processConfig,
	RunE:    run,
}

func init() {
	cobra.OnInitialize(initConfig)

	ServeCmd.PersistentFlags().String("creator-node-endpoint", "", cmdUtil.WrapString("This node's own advertised HTTP endpoint (required)"))
	ServeCmd.PersistentFlags().String("delegate-private-key", "", cmdUtil.WrapString("This node's delegate private key, also used as the node-to-node JWT signing secret (required)"))

	ServeCmd.PersistentFlags().Int64("snapback-interval-ms", 60_000, cmdUtil.WrapString("How often Snapback probes secondary replica health, in milliseconds"))
	ServeCmd.PersistentFlags().Int64("export-window", 10_000, cmdUtil.WrapString("Max clock log rows returned per export call"))
	ServeCmd.PersistentFlags().Int("node-sync-file-save-max-concurrency", 10, cmdUtil.WrapString("Max concurrent file fetches within one sync job"))
	ServeCmd.PersistentFlags().Int("sync-request-max-user-failure-count-before-skip", 3, cmdUtil.WrapString("Consecutive sync failures for a user before its files are marked skipped instead of retried"))
	ServeCmd.PersistentFlags().Int("max-sync-concurrency", 100, cmdUtil.WrapString("Max sync jobs in flight across all users"))
	ServeCmd.PersistentFlags().Int64("max-lock-hold-duration-ms", 600_000, cmdUtil.WrapString("Max time a per-user sync lock may be held before it is considered abandoned"))

	ServeCmd.PersistentFlags().String("database-path", "creator_node.db", cmdUtil.WrapString("Path to the clock log SQLite database"))
	ServeCmd.PersistentFlags().String("storage-path", "./storage", cmdUtil.WrapString("Root directory for content-addressed file storage"))
	ServeCmd.PersistentFlags().Int("max-storage-used-percent", 90, cmdUtil.WrapString("Disk usage percentage limit; read into the node config but not checked on writes"))

	ServeCmd.PersistentFlags().String("coordination-mode", "local", cmdUtil.WrapString("Coordination store backing: local (single process) or raft (replicated cluster)"))
	ServeCmd.PersistentFlags().String("coordination-data-dir", "data/coordination", cmdUtil.WrapString("(raft mode) Directory for Raft WAL and snapshots"))
	ServeCmd.PersistentFlags().Uint64("coordination-shard-id", 1, cmdUtil.WrapString("(raft mode) Raft shard ID for the coordination store"))
	ServeCmd.PersistentFlags().String("coordination-replica-id", "", cmdUtil.WrapString("(raft mode) This node's unique replica ID within the coordination cluster"))
	ServeCmd.PersistentFlags().String("coordination-cluster-members", "", cmdUtil.WrapString("(raft mode) Comma-separated replica-id=address list for every coordination cluster member"))
	ServeCmd.PersistentFlags().Uint64("coordination-rtt-millisecond", 100, cmdUtil.WrapString("(raft mode) Average round-trip time between coordination cluster members, in milliseconds"))
	ServeCmd.PersistentFlags().Uint64("coordination-snapshot-entries", 10, cmdUtil.WrapString("(raft mode) Raft log entries between automatic snapshots"))
	ServeCmd.PersistentFlags().Uint64("coordination-compaction-overhead", 5, cmdUtil.WrapString("(raft mode) Snapshots retained beyond the most recent one"))
	ServeCmd.PersistentFlags().Int64("coordination-timeout-second", 5, cmdUtil.WrapString("(raft mode) Per-operation timeout against the coordination cluster, in seconds"))

	ServeCmd.PersistentFlags().String("http-address", "0.0.0.0:4000", cmdUtil.WrapString("Address the node-to-node HTTP API listens on"))
	ServeCmd.PersistentFlags().String("log-level", "info", cmdUtil.WrapString("Log level (debug, info, warn, error)"))
	ServeCmd.PersistentFlags().Bool("dev-mode", false, cmdUtil.WrapString("Shortens Identity Bootstrap's registry long-poll interval for local development"))

	ServeCmd.PersistentFlags().String("peer-whitelist", "", cmdUtil.WrapString("Comma-separated list of peer endpoints this node will accept sync requests from, overriding replica-set membership checks"))
	ServeCmd.PersistentFlags().String("peer-blacklist", "", cmdUtil.WrapString("Comma-separated list of peer endpoints this node refuses regardless of replica-set membership"))
}

// processConfig binds every flag on cmd to viper, so config.Load sees flag,
// env, and .env values through a single lookup path.
func processConfig(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlags(cmd.Flags())
}

// initConfig loads .env files and registers viper's env-prefix bindings and
// defaults before any flag lookup happens.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
	config.ApplyDefaults(viper.GetViper())
}

// run assembles every component in dependency order and blocks serving the
// node-to-node HTTP API until SIGINT/SIGTERM, then shuts down gracefully.
func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	log := logging.NewComponentLogger("creatornode", logging.ParseLevel(cfg.LogLevel))
	accessLogger, err := logging.NewAccessLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("serve: build access logger: %w", err)
	}
	defer func() { _ = accessLogger.Sync() }()

	log.Infof("starting creator node\n%s", cfg.String())

	db, err := clocklog.OpenDB(cfg.DatabasePath, accessLogger)
	if err != nil {
		return err
	}
	store := clocklog.New(db, int(cfg.ExportWindow))

	coordStore, err := newCoordinationStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = coordStore.Close() }()

	locks := lockmgr.NewLockManager(coordStore)
	chainClient := chain.NewFakeClient(true)
	signingKey := []byte(cfg.DelegatePrivateKey)

	peers := peerclient.New(cfg.CreatorNodeEndpoint, signingKey)
	fetcher := content.NewFetcher(0)
	exporter := export.New(store, chainClient, cfg.CreatorNodeEndpoint)

	tracker := jobstatus.NewTracker(coordStore, 0)
	jobs := jobqueue.New(coordStore, tracker, logging.NewComponentLogger("jobqueue", logging.ParseLevel(cfg.LogLevel)))

	executor := syncexec.New(
		syncexec.Config{
			SelfEndpoint:              cfg.CreatorNodeEndpoint,
			StorageRoot:               cfg.StoragePath,
			MaxFailureCountBeforeSkip: cfg.SyncRequestMaxUserFailureCount,
			FileSaveMaxConcurrency:    cfg.NodeSyncFileSaveMaxConcurrency,
			MaxSyncConcurrency:        cfg.MaxSyncConcurrency,
			LockTTL:                   cfg.MaxLockHoldDuration,
		},
		store, locks, coordStore, peers, fetcher, chainClient,
		logging.NewComponentLogger("syncexec", logging.ParseLevel(cfg.LogLevel)),
	)

	jobs.Process(snapback.SyncTask, cfg.NodeSyncFileSaveMaxConcurrency, func(_ context.Context, params json.RawMessage) (interface{}, error) {
		var job syncexec.Job
		if err := json.Unmarshal(params, &job); err != nil {
			return nil, fmt.Errorf("serve: unmarshal sync job: %w", err)
		}
		return executor.Execute(job), nil
	})

	signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gate := identity.Run(signalCtx, chainClient, identity.Config{
		Endpoint: cfg.CreatorNodeEndpoint,
		DevMode:  cfg.DevMode,
	}, logging.NewComponentLogger("identity", logging.ParseLevel(cfg.LogLevel)))

	go func() {
		if err := gate.Wait(signalCtx); err != nil {
			return
		}
		cfg.SPID = uint64(gate.SPID())
		log.Infof("identity bootstrap complete, sp_id=%d", cfg.SPID)
	}()

	snapbackController := snapback.New(
		snapback.Config{SelfEndpoint: cfg.CreatorNodeEndpoint, Interval: cfg.SnapbackInterval},
		store, chainClient, peers, jobs,
		logging.NewComponentLogger("snapback", logging.ParseLevel(cfg.LogLevel)),
	)

	skipLoop := skipretry.New(
		skipretry.Config{},
		store, chainClient, fetcher, cfg.StoragePath,
		logging.NewComponentLogger("skipretry", logging.ParseLevel(cfg.LogLevel)),
	)

	router, err := httpapi.NewRouter(httpapi.Dependencies{
		Store:       store,
		Exporter:    exporter,
		ChainClient: chainClient,
		Jobs:        jobs,
		Tracker:     tracker,
		SigningKey:    signingKey,
		Logger:        accessLogger,
		Gate:          gate,
		PeerWhitelist: cfg.PeerWhitelist,
		PeerBlacklist: cfg.PeerBlacklist,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: cfg.HTTPAddress, Handler: router}

	// Snapback needs this node's bootstrapped service-provider identity to
	// know which users it is primary for, so it waits on the gate before its
	// first tick; the skipped-CID retry loop has no such dependency.
	var background sync.WaitGroup
	background.Add(2)
	go func() {
		defer background.Done()
		if err := gate.Wait(signalCtx); err != nil {
			return
		}
		snapbackController.Run(signalCtx)
	}()
	go func() {
		defer background.Done()
		skipLoop.Run(signalCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("http api listening on %s", cfg.HTTPAddress)
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		log.Infof("shutdown signal received, draining")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("serve: http shutdown: %w", err)
		}
		if err := jobs.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("serve: job queue shutdown: %w", err)
		}
		background.Wait()
		return nil
	case err := <-errCh:
		return err
	}
}

func newCoordinationStore(cfg *config.NodeConfig) (coordination.ICoordinationStore, error) {
	if cfg.CoordinationMode != config.CoordinationModeRaft {
		return coordination.NewLocalStore(), nil
	}
	return coordination.NewRaftStore(coordination.RaftClusterConfig{
		ReplicaID:          cfg.CoordinationReplicaID,
		ShardID:            cfg.CoordinationShardID,
		ClusterMembers:     cfg.CoordinationClusterMembers,
		DataDir:            cfg.CoordinationDataDir,
		RTTMillisecond:     cfg.CoordinationRTTMillisecond,
		SnapshotEntries:    cfg.CoordinationSnapshotEntries,
		CompactionOverhead: cfg.CoordinationCompactionOverhead,
		Timeout:            cfg.CoordinationTimeout,
	})
}
