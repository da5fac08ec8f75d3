// Package config defines the node's runtime configuration and how it is
// loaded from flags, environment variables and .env files.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvPrefix = "CNODE"

	defaultHTTPAddress         = "0.0.0.0:4000"
	defaultDatabasePath        = "creator_node.db"
	defaultStoragePath         = "./storage"
	defaultLogLevel            = "info"
	defaultSnapbackIntervalMs  = 60_000
	defaultExportWindow        = 10_000
	defaultFileSaveConcurrency = 10
	defaultMaxUserFailures     = 3
	defaultMaxSyncConcurrency  = 100
	defaultMaxLockHoldMs       = 10 * 60 * 1000
	defaultCoordinationMode    = "local"
	defaultCoordinationDataDir = "data/coordination"
	defaultCoordinationShardID = 1
	defaultRTTMillisecond      = 100
	defaultSnapshotEntries     = 10
	defaultCompactionOverhead  = 5
	defaultCoordinationTimeoutSec = 5
)

// CoordinationMode selects the backing of the Coordination Store.
type CoordinationMode string

const (
	CoordinationModeLocal CoordinationMode = "local"
	CoordinationModeRaft  CoordinationMode = "raft"
)

// NodeConfig captures every runtime parameter enumerated in SPEC_FULL.md §6.
type NodeConfig struct {
	// Identity
	CreatorNodeEndpoint string
	SPID                uint64 // filled in by Identity Bootstrap, zero until then
	DelegatePrivateKey  string

	// Snapback / sync tuning
	SnapbackInterval              time.Duration
	NodeSyncFileSaveMaxConcurrency int
	SyncRequestMaxUserFailureCount int
	ExportWindow                   int64
	MaxSyncConcurrency             int
	MaxLockHoldDuration             time.Duration

	// Storage
	DatabasePath       string
	StoragePath        string
	MaxStorageUsedPct  int

	// Coordination store
	CoordinationMode           CoordinationMode
	CoordinationDataDir        string
	CoordinationShardID        uint64
	CoordinationReplicaID      uint64
	CoordinationClusterMembers map[uint64]string
	CoordinationRTTMillisecond uint64
	CoordinationSnapshotEntries uint64
	CoordinationCompactionOverhead uint64
	CoordinationTimeout        time.Duration

	// HTTP
	HTTPAddress string

	// Misc
	LogLevel string
	DevMode  bool

	PeerWhitelist []string
	PeerBlacklist []string
}

// Validate checks required fields and internal consistency, mirroring the
// validate() split gravity's config package uses.
func (c *NodeConfig) Validate() error {
	if strings.TrimSpace(c.CreatorNodeEndpoint) == "" {
		return fmt.Errorf("creator_node_endpoint is required")
	}
	if strings.TrimSpace(c.DelegatePrivateKey) == "" {
		return fmt.Errorf("delegate_private_key is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database_path is required")
	}
	if strings.TrimSpace(c.StoragePath) == "" {
		return fmt.Errorf("storage_path is required")
	}
	if c.CoordinationMode == CoordinationModeRaft {
		if _, ok := c.CoordinationClusterMembers[c.CoordinationReplicaID]; !ok {
			return fmt.Errorf("no address found for coordination replica ID %d in cluster members", c.CoordinationReplicaID)
		}
	}
	return nil
}

// ApplyDefaults registers default values and environment bindings on the
// provided viper instance.
func ApplyDefaults(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("http-address", defaultHTTPAddress)
	v.SetDefault("database-path", defaultDatabasePath)
	v.SetDefault("storage-path", defaultStoragePath)
	v.SetDefault("log-level", defaultLogLevel)
	v.SetDefault("snapback-interval-ms", defaultSnapbackIntervalMs)
	v.SetDefault("export-window", defaultExportWindow)
	v.SetDefault("node-sync-file-save-max-concurrency", defaultFileSaveConcurrency)
	v.SetDefault("sync-request-max-user-failure-count-before-skip", defaultMaxUserFailures)
	v.SetDefault("max-sync-concurrency", defaultMaxSyncConcurrency)
	v.SetDefault("max-lock-hold-duration-ms", defaultMaxLockHoldMs)
	v.SetDefault("coordination-mode", defaultCoordinationMode)
	v.SetDefault("coordination-data-dir", defaultCoordinationDataDir)
	v.SetDefault("coordination-shard-id", defaultCoordinationShardID)
	v.SetDefault("coordination-rtt-millisecond", defaultRTTMillisecond)
	v.SetDefault("coordination-snapshot-entries", defaultSnapshotEntries)
	v.SetDefault("coordination-compaction-overhead", defaultCompactionOverhead)
	v.SetDefault("coordination-timeout-second", defaultCoordinationTimeoutSec)
	v.SetDefault("max-storage-used-percent", 90)
	v.SetDefault("dev-mode", false)
}

// Load parses a NodeConfig from viper (flags + env + .env already bound).
func Load(v *viper.Viper) (*NodeConfig, error) {
	cfg := &NodeConfig{
		CreatorNodeEndpoint:            v.GetString("creator-node-endpoint"),
		DelegatePrivateKey:             v.GetString("delegate-private-key"),
		SnapbackInterval:               time.Duration(v.GetInt64("snapback-interval-ms")) * time.Millisecond,
		NodeSyncFileSaveMaxConcurrency: v.GetInt("node-sync-file-save-max-concurrency"),
		SyncRequestMaxUserFailureCount: v.GetInt("sync-request-max-user-failure-count-before-skip"),
		ExportWindow:                   v.GetInt64("export-window"),
		MaxSyncConcurrency:             v.GetInt("max-sync-concurrency"),
		MaxLockHoldDuration:            time.Duration(v.GetInt64("max-lock-hold-duration-ms")) * time.Millisecond,
		DatabasePath:                   v.GetString("database-path"),
		StoragePath:                    v.GetString("storage-path"),
		MaxStorageUsedPct:              v.GetInt("max-storage-used-percent"),
		CoordinationMode:               CoordinationMode(v.GetString("coordination-mode")),
		CoordinationDataDir:            v.GetString("coordination-data-dir"),
		CoordinationShardID:            v.GetUint64("coordination-shard-id"),
		CoordinationRTTMillisecond:     v.GetUint64("coordination-rtt-millisecond"),
		CoordinationSnapshotEntries:    v.GetUint64("coordination-snapshot-entries"),
		CoordinationCompactionOverhead: v.GetUint64("coordination-compaction-overhead"),
		CoordinationTimeout:            time.Duration(v.GetInt64("coordination-timeout-second")) * time.Second,
		HTTPAddress:                    v.GetString("http-address"),
		LogLevel:                       v.GetString("log-level"),
		DevMode:                        v.GetBool("dev-mode"),
	}

	if wl := v.GetString("peer-whitelist"); wl != "" {
		cfg.PeerWhitelist = strings.Split(wl, ",")
	}
	if bl := v.GetString("peer-blacklist"); bl != "" {
		cfg.PeerBlacklist = strings.Split(bl, ",")
	}

	if id := v.GetString("coordination-replica-id"); id != "" {
		parsed, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid coordination-replica-id %q: %w", id, err)
		}
		cfg.CoordinationReplicaID = parsed
	}

	if members := v.GetString("coordination-cluster-members"); members != "" {
		cfg.CoordinationClusterMembers = map[uint64]string{}
		for _, member := range strings.Split(members, ",") {
			parts := strings.SplitN(member, "=", 2)
			if len(parts) != 2 {
				return nil, fmt.Errorf("invalid coordination cluster member %q (expected ID=address)", member)
			}
			id, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid coordination member ID %q: %w", parts[0], err)
			}
			cfg.CoordinationClusterMembers[id] = strings.TrimSpace(parts[1])
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// String renders a human-readable configuration summary, in the vein of
// rpc/common.ServerConfig.String() from the teacher repo.
func (c *NodeConfig) String() string {
	var sb strings.Builder
	section := func(title string) {
		sb.WriteString("\n" + strings.ToUpper(title) + "\n")
	}
	field := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-32s: %s\n", name, value))
	}

	section("Identity")
	field("Endpoint", c.CreatorNodeEndpoint)
	field("SP ID", strconv.FormatUint(c.SPID, 10))

	section("Sync / Snapback")
	field("Snapback Interval", c.SnapbackInterval.String())
	field("File Save Max Concurrency", strconv.Itoa(c.NodeSyncFileSaveMaxConcurrency))
	field("Max User Failures Before Skip", strconv.Itoa(c.SyncRequestMaxUserFailureCount))
	field("Export Window", strconv.FormatInt(c.ExportWindow, 10))
	field("Max Sync Concurrency", strconv.Itoa(c.MaxSyncConcurrency))

	section("Storage")
	field("Database Path", c.DatabasePath)
	field("Storage Path", c.StoragePath)

	section("Coordination Store")
	field("Mode", string(c.CoordinationMode))
	if c.CoordinationMode == CoordinationModeRaft {
		field("Data Dir", c.CoordinationDataDir)
		field("Replica ID", strconv.FormatUint(c.CoordinationReplicaID, 10))
	}

	section("HTTP")
	field("Address", c.HTTPAddress)
	field("Dev Mode", strconv.FormatBool(c.DevMode))

	return sb.String()
}
