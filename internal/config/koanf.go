// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Load builds the runtime configuration in three layers:
//
//  1. Struct defaults
//  2. Optional YAML config file
//  3. Environment variables (highest precedence)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unknown variables map to the empty string and are ignored, so unrelated
// environment noise cannot leak into the configuration.
func envTransformFunc(key string) string {
	mappings := map[string]string{
		"HTTP_HOST":        "server.host",
		"HTTP_PORT":        "server.port",
		"SHUTDOWN_TIMEOUT": "server.shutdown_timeout",

		"LOG_LEVEL":  "logging.level",
		"LOG_FORMAT": "logging.format",
		"LOG_CALLER": "logging.caller",

		"NATS_EMBEDDED":         "nats.embedded",
		"NATS_URL":              "nats.url",
		"NATS_STORE_DIR":        "nats.store_dir",
		"NATS_STREAM_NAME":      "nats.stream_name",
		"NATS_DURABLE_NAME":     "nats.durable_name",
		"NATS_QUEUE_GROUP":      "nats.queue_group",
		"NATS_SUBSCRIBERS":      "nats.subscribers",
		"NATS_ACK_WAIT":         "nats.ack_wait",
		"NATS_MAX_DELIVER":      "nats.max_deliver",
		"NATS_MAX_ACK_PENDING":  "nats.max_ack_pending",
		"NATS_DUPLICATE_WINDOW": "nats.duplicate_window",
		"NATS_STREAM_MAX_AGE":   "nats.stream_max_age",
		"NATS_RETRY_MAX":        "nats.retry_max",
		"NATS_RETRY_INTERVAL":   "nats.retry_interval",

		"DUCKDB_PATH":           "database.path",
		"DUCKDB_MEMORY_LIMIT":   "database.memory_limit",
		"DUCKDB_THREADS":        "database.threads",
		"DUCKDB_MAX_OPEN_CONNS": "database.max_open_conns",

		"DEDUP_PATH":        "dedup.path",
		"DEDUP_TTL":         "dedup.ttl",
		"DEDUP_WINDOW_SIZE": "dedup.window_size",
		"DEDUP_GC_INTERVAL":  "dedup.gc_interval",
		"DEDUP_IN_MEMORY":    "dedup.in_memory",
		"DEDUP_LEASE_ENABLE": "dedup.lease_enable",
		"DEDUP_LEASE_TTL":    "dedup.lease_ttl",
		"DEDUP_LEASE_OWNER":  "dedup.lease_owner",

		"LEDGER_RETENTION_DAYS": "ledger.retention_days",

		"ROLLUP_INTERVAL":         "rollup.interval",
		"ROLLUP_SAFETY_LAG":       "rollup.safety_lag",
		"ROLLUP_RETENTION_DAYS":   "rollup.retention_days",
		"ROLLUP_CLEANUP_INTERVAL": "rollup.cleanup_interval",

		"LEADERBOARD_INTERVAL": "leaderboard.interval",
		"LEADERBOARD_TOP_K":    "leaderboard.top_k",

		"RESOLVER_FRESHNESS_FACTOR": "resolver.freshness_factor",
		"RESOLVER_RAW_SCAN_TIMEOUT": "resolver.raw_scan_timeout",
		"RESOLVER_RAW_SCAN_PER_SEC": "resolver.raw_scan_per_sec",
		"RESOLVER_RAW_SCAN_BURST":   "resolver.raw_scan_burst",

		"API_MAX_TOP_K":         "api.max_top_k",
		"API_RATE_LIMIT":        "api.rate_limit",
		"API_RATE_LIMIT_WINDOW": "api.rate_limit_window",
		"API_CORS_ORIGINS":      "api.cors_origins",
	}

	if path, ok := mappings[strings.ToUpper(key)]; ok {
		return path
	}
	return ""
}
