// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

// Package main is the entry point for the WatchRank server.
//
// WatchRank ingests video view events from NATS JetStream, maintains an
// in-memory time-indexed ledger of recent views, aggregates history into
// hourly and daily rollups in DuckDB, and serves leaderboard and per-video
// analytics queries over HTTP.
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered loading (defaults, YAML file, env vars)
//  2. Database: DuckDB with the views, rollup, and totals schema
//  3. Ledger recovery: warm the in-memory ledger from durable state
//  4. Dedup store: BadgerDB-backed duplicate suppression and job leases
//  5. NATS: embedded or external JetStream, stream provisioning
//  6. Ingest pipeline: Watermill router with retry and poison-queue middleware
//  7. Background jobs: rollup aggregator and leaderboard builder
//  8. HTTP server: analytics API, health probes, Prometheus metrics
//
// Everything runs under a suture supervision tree; SIGINT and SIGTERM
// trigger graceful shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	natsgo "github.com/nats-io/nats.go"

	"github.com/watchrank/watchrank/internal/api"
	"github.com/watchrank/watchrank/internal/config"
	"github.com/watchrank/watchrank/internal/database"
	"github.com/watchrank/watchrank/internal/dedup"
	"github.com/watchrank/watchrank/internal/ingest"
	"github.com/watchrank/watchrank/internal/leaderboard"
	"github.com/watchrank/watchrank/internal/ledger"
	"github.com/watchrank/watchrank/internal/logging"
	"github.com/watchrank/watchrank/internal/resolver"
	"github.com/watchrank/watchrank/internal/rollup"
	"github.com/watchrank/watchrank/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("stream", cfg.NATS.StreamName).
		Bool("nats_embedded", cfg.NATS.Embedded).
		Msg("Starting WatchRank")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Durable store.
	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	// In-memory state, rebuilt from the durable store on every start.
	lg := ledger.New(cfg.Ledger.Retention())
	snapshots := ledger.NewSnapshotStore()
	if err := recoverLedger(ctx, db, lg); err != nil {
		logging.Fatal().Err(err).Msg("Failed to recover ledger from durable store")
	}

	// Dedup index and job leases share one Badger store.
	dedupStore, err := dedup.OpenStore(&cfg.Dedup)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open dedup store")
	}
	defer func() {
		if err := dedupStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing dedup store")
		}
	}()
	deduper := dedup.New(dedupStore, &cfg.Dedup)

	// Leases single-flight the periodic jobs across processes sharing the
	// data directory. A single-process deployment can switch them off.
	var leases *dedup.Leases
	if cfg.Dedup.LeaseEnable {
		leases = dedup.NewLeases(dedupStore, leaseOwner(&cfg.Dedup), cfg.Dedup.LeaseTTL)
	} else {
		logging.Warn().Msg("Job leases disabled, assuming a single process")
	}

	// Messaging. The embedded server rewrites the client URL to itself.
	if cfg.NATS.Embedded {
		embedded, err := ingest.NewEmbeddedServer(&cfg.NATS)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to start embedded NATS server")
		}
		defer func() {
			if err := embedded.Shutdown(context.Background()); err != nil {
				logging.Error().Err(err).Msg("Error shutting down embedded NATS server")
			}
		}()
		cfg.NATS.URL = embedded.ClientURL()
		logging.Info().Str("url", cfg.NATS.URL).Msg("Embedded NATS server running")
	}

	if err := provisionStream(ctx, cfg); err != nil {
		logging.Fatal().Err(err).Msg("Failed to provision JetStream stream")
	}

	// Ingest pipeline.
	wmLogger := logging.NewWatermillAdapter(logging.With("watermill"))

	poisonPub, err := ingest.NewPublisher(ingest.PublisherConfigFrom(&cfg.NATS), wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create poison queue publisher")
	}
	defer func() {
		if err := poisonPub.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing publisher")
		}
	}()

	routerCfg := ingest.RouterConfigFrom(&cfg.NATS)
	wmRouter, err := ingest.NewRouter(&routerCfg, poisonPub, wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create consumer router")
	}

	subCfg := ingest.SubscriberConfigFrom(&cfg.NATS)
	subscriber, err := ingest.NewSubscriber(&subCfg, wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create JetStream subscriber")
	}
	defer func() {
		if err := subscriber.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing subscriber")
		}
	}()

	breaker := ingest.NewStoreBreaker(ingest.DefaultBreakerConfig())
	ingestor := ingest.NewIngestor(db, lg, deduper, breaker)
	ingestSvc := ingest.NewService(wmRouter, subscriber, ingestor)

	// Background jobs.
	aggregator := rollup.New(db, leases, cfg.Rollup)
	builder := leaderboard.New(lg, snapshots, db, leases, cfg.Leaderboard)

	// Query surface.
	res := resolver.New(lg, snapshots, db, cfg.Resolver, cfg.API.MaxTopK, cfg.Leaderboard.Interval)
	handler := api.NewHandler(res, cfg.API.MaxTopK,
		api.ReadinessCheck{Name: "database", Check: db.Ping},
		api.ReadinessCheck{Name: "ingest", Check: func(context.Context) error {
			if !ingestSvc.Healthy() {
				return errors.New("consumer router not running")
			}
			return nil
		}},
	)
	httpServer := api.NewServer(api.NewRouter(handler, cfg.API), cfg.Server)

	// Supervision tree.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddIngestService(ingestSvc)
	tree.AddIngestService(dedup.NewGCService(dedupStore, &cfg.Dedup))
	tree.AddJobService(aggregator)
	tree.AddJobService(builder)
	tree.AddAPIService(httpServer)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Stopped gracefully")
}

// provisionStream creates or updates the backing JetStream stream over a
// short-lived connection. The subscriber binds to the stream by name, so it
// must exist before the router starts.
func provisionStream(ctx context.Context, cfg *config.Config) error {
	nc, err := natsgo.Connect(cfg.NATS.URL,
		natsgo.MaxReconnects(cfg.NATS.MaxReconnects),
		natsgo.ReconnectWait(cfg.NATS.ReconnectWait),
	)
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer nc.Close()

	streamCfg := ingest.StreamConfigFrom(&cfg.NATS)
	mgr, err := ingest.NewStreamManager(nc, &streamCfg)
	if err != nil {
		return err
	}
	if _, err := mgr.EnsureStream(ctx); err != nil {
		return err
	}
	logging.Info().Str("stream", streamCfg.Name).Msg("JetStream stream provisioned")
	return nil
}

// leaseOwner picks this process's identity for job leases.
func leaseOwner(cfg *config.DedupConfig) string {
	if cfg.LeaseOwner != "" {
		return cfg.LeaseOwner
	}
	host, err := os.Hostname()
	if err != nil {
		return fmt.Sprintf("watchrank-%d", os.Getpid())
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
