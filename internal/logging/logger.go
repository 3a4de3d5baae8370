// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

// Package logging configures the process-wide structured logger. All
// components log through zerolog; the package also bridges zerolog into
// log/slog for the supervision tree and into Watermill's logger interface
// for the messaging router.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls logger initialization.
type Config struct {
	// Level is one of trace, debug, info, warn, error, fatal.
	Level string
	// Format is "json" for machine consumption or "console" for humans.
	Format string
	// Caller adds file:line to each entry.
	Caller bool
	// Output overrides the destination, defaulting to stderr.
	Output io.Writer
}

var initOnce sync.Once

// Init configures the global logger. Safe to call more than once; only the
// first call takes effect.
func Init(cfg Config) {
	initOnce.Do(func() {
		initLogger(cfg)
	})
}

func initLogger(cfg Config) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	return log.Logger
}

// With returns a logger tagged with a component name. Components use this at
// construction time so every entry carries its origin.
func With(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// Level-scoped event constructors on the global logger.

func Trace() *zerolog.Event { return log.Trace() }
func Debug() *zerolog.Event { return log.Debug() }
func Info() *zerolog.Event  { return log.Info() }
func Warn() *zerolog.Event  { return log.Warn() }
func Error() *zerolog.Event { return log.Error() }
func Fatal() *zerolog.Event { return log.Fatal() }

// NewTestLogger returns a logger that writes to the given writer, for
// capturing output in tests without touching global state.
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
