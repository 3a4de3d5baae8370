// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

// Package config loads and validates runtime configuration. Settings are
// layered: struct defaults, then an optional YAML file, then environment
// variables, with environment taking highest precedence.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config/config.yaml",
	"/etc/watchrank/config.yaml",
}

// Config is the root configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	NATS        NATSConfig        `koanf:"nats"`
	Database    DatabaseConfig    `koanf:"database"`
	Dedup       DedupConfig       `koanf:"dedup"`
	Ledger      LedgerConfig      `koanf:"ledger"`
	Rollup      RollupConfig      `koanf:"rollup"`
	Leaderboard LeaderboardConfig `koanf:"leaderboard"`
	Resolver    ResolverConfig    `koanf:"resolver"`
	API         APIConfig         `koanf:"api"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// NATSConfig controls the messaging layer. When Embedded is true the process
// runs its own JetStream-enabled server and ignores URL.
type NATSConfig struct {
	Embedded      bool          `koanf:"embedded"`
	URL           string        `koanf:"url"`
	StoreDir      string        `koanf:"store_dir"`
	StreamName    string        `koanf:"stream_name" validate:"required"`
	DurableName   string        `koanf:"durable_name" validate:"required"`
	QueueGroup    string        `koanf:"queue_group"`
	Subscribers   int           `koanf:"subscribers" validate:"min=1,max=64"`
	AckWait       time.Duration `koanf:"ack_wait"`
	MaxDeliver    int           `koanf:"max_deliver" validate:"min=1"`
	MaxAckPending int           `koanf:"max_ack_pending"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
	DuplicateWin  time.Duration `koanf:"duplicate_window"`
	StreamMaxAge  time.Duration `koanf:"stream_max_age"`
	RetryMax      int           `koanf:"retry_max" validate:"min=0"`
	RetryInterval time.Duration `koanf:"retry_interval"`
}

// DatabaseConfig controls the DuckDB durable store.
type DatabaseConfig struct {
	Path            string        `koanf:"path" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"min=1"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	MemoryLimit     string        `koanf:"memory_limit"`
	Threads         int           `koanf:"threads"`
}

// DedupConfig controls duplicate suppression for inbound events.
type DedupConfig struct {
	Path        string        `koanf:"path" validate:"required"`
	TTL         time.Duration `koanf:"ttl"`
	WindowSize  int           `koanf:"window_size" validate:"min=1"`
	GCInterval  time.Duration `koanf:"gc_interval"`
	GCDiscard   float64       `koanf:"gc_discard" validate:"min=0,max=1"`
	SyncWrites  bool          `koanf:"sync_writes"`
	InMemory    bool          `koanf:"in_memory"`
	LeaseTTL    time.Duration `koanf:"lease_ttl"`
	LeaseOwner  string        `koanf:"lease_owner"`
	LeaseEnable bool          `koanf:"lease_enable"`
}

// LedgerConfig controls the in-memory view ledger.
type LedgerConfig struct {
	RetentionDays int `koanf:"retention_days" validate:"min=1"`
}

// Retention returns the ledger horizon as a duration.
func (c LedgerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// RollupConfig controls the periodic aggregation job.
type RollupConfig struct {
	Interval        time.Duration `koanf:"interval"`
	SafetyLag       time.Duration `koanf:"safety_lag"`
	RetentionDays   int           `koanf:"retention_days" validate:"min=1"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	BucketRetries   int           `koanf:"bucket_retries" validate:"min=0"`
	RetryBackoff    time.Duration `koanf:"retry_backoff"`
}

// LeaderboardConfig controls the snapshot builder.
type LeaderboardConfig struct {
	Interval time.Duration `koanf:"interval"`
	TopK     int           `koanf:"top_k" validate:"min=1,max=10000"`
}

// ResolverConfig controls tiered query resolution.
type ResolverConfig struct {
	// FreshnessFactor multiplies the builder interval to decide when a
	// snapshot is too old to serve from tier 1.
	FreshnessFactor float64       `koanf:"freshness_factor" validate:"min=1"`
	RawScanTimeout  time.Duration `koanf:"raw_scan_timeout"`
	RawScanPerSec   float64       `koanf:"raw_scan_per_sec" validate:"min=0"`
	RawScanBurst    int           `koanf:"raw_scan_burst" validate:"min=1"`
}

// APIConfig controls the public HTTP surface.
type APIConfig struct {
	MaxTopK         int           `koanf:"max_top_k" validate:"min=1,max=10000"`
	RateLimit       int           `koanf:"rate_limit" validate:"min=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins" validate:"min=1"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		NATS: NATSConfig{
			Embedded:      true,
			URL:           "nats://127.0.0.1:4222",
			StoreDir:      "data/nats",
			StreamName:    "VIEWS",
			DurableName:   "watchrank-ingest",
			QueueGroup:    "watchrank",
			Subscribers:   4,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			MaxAckPending: 1024,
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			DuplicateWin:  2 * time.Minute,
			StreamMaxAge:  72 * time.Hour,
			RetryMax:      3,
			RetryInterval: time.Second,
		},
		Database: DatabaseConfig{
			Path:            "data/watchrank.db",
			MaxOpenConns:    8,
			MaxIdleConns:    4,
			ConnMaxLifetime: time.Hour,
			MemoryLimit:     "1GB",
			Threads:         4,
		},
		Dedup: DedupConfig{
			Path:        "data/dedup",
			TTL:         24 * time.Hour,
			WindowSize:  100_000,
			GCInterval:  10 * time.Minute,
			GCDiscard:   0.5,
			LeaseTTL:    2 * time.Minute,
			LeaseEnable: true,
		},
		Ledger: LedgerConfig{
			RetentionDays: 30,
		},
		Rollup: RollupConfig{
			Interval:        5 * time.Minute,
			SafetyLag:       5 * time.Minute,
			RetentionDays:   90,
			CleanupInterval: 24 * time.Hour,
			BucketRetries:   3,
			RetryBackoff:    2 * time.Second,
		},
		Leaderboard: LeaderboardConfig{
			Interval: 5 * time.Minute,
			TopK:     100,
		},
		Resolver: ResolverConfig{
			FreshnessFactor: 2,
			RawScanTimeout:  5 * time.Second,
			RawScanPerSec:   1,
			RawScanBurst:    3,
		},
		API: APIConfig{
			MaxTopK:         100,
			RateLimit:       100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
	}
}

// Validate checks cross-field constraints after loading.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Leaderboard.TopK > c.API.MaxTopK {
		return fmt.Errorf("leaderboard.top_k (%d) must not exceed api.max_top_k (%d)", c.Leaderboard.TopK, c.API.MaxTopK)
	}
	if c.Rollup.SafetyLag < time.Minute {
		return fmt.Errorf("rollup.safety_lag must be at least 1m, got %s", c.Rollup.SafetyLag)
	}
	if !c.NATS.Embedded && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats.embedded is false")
	}
	return nil
}

// Addr returns the host:port the HTTP server binds.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
