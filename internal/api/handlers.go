// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/watchrank/watchrank/internal/logging"
	"github.com/watchrank/watchrank/internal/models"
	"github.com/watchrank/watchrank/internal/resolver"
)

// Resolver answers analytics queries. Implemented by resolver.Resolver.
type Resolver interface {
	TopK(ctx context.Context, k int, tf models.Timeframe) (*resolver.TopResult, error)
	Stats(ctx context.Context, videoID int64) (*models.VideoStats, error)
}

// ReadinessCheck probes one dependency. A non-nil error marks the process
// not ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler serves the analytics endpoints.
type Handler struct {
	resolver Resolver
	defaultK int
	checks   []ReadinessCheck
}

// NewHandler creates the endpoint handler. defaultK is used when the top
// endpoint is called without an explicit k.
func NewHandler(res Resolver, defaultK int, checks ...ReadinessCheck) *Handler {
	return &Handler{
		resolver: res,
		defaultK: defaultK,
		checks:   checks,
	}
}

// Top handles GET /api/v1/analytics/top?timeframe=day&k=10.
func (h *Handler) Top(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	tf := models.TimeframeAllTime
	if raw := r.URL.Query().Get("timeframe"); raw != "" {
		parsed, err := models.ParseTimeframe(raw)
		if err != nil {
			rw.BadRequest(err.Error())
			return
		}
		tf = parsed
	}

	k := h.defaultK
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			rw.BadRequest("k must be an integer")
			return
		}
		k = parsed
	}

	result, err := h.resolver.TopK(r.Context(), k, tf)
	if err != nil {
		h.writeResolverError(rw, r, err)
		return
	}
	rw.Success(result)
}

// VideoStats handles GET /api/v1/analytics/videos/{id}/stats.
func (h *Handler) VideoStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	videoID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		rw.BadRequest("video id must be an integer")
		return
	}

	stats, err := h.resolver.Stats(r.Context(), videoID)
	if err != nil {
		h.writeResolverError(rw, r, err)
		return
	}
	rw.Success(stats)
}

// Health handles GET /healthz. Liveness only: the process is up.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "ok"})
}

// Ready handles GET /readyz. The process is ready once every dependency
// check passes.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := make(map[string]string, len(h.checks))
	ready := true
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Str("check", check.Name).Msg("Readiness check failed")
			status[check.Name] = err.Error()
			ready = false
			continue
		}
		status[check.Name] = "ok"
	}

	if !ready {
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "not ready")
		return
	}
	rw.Success(status)
}

func (h *Handler) writeResolverError(rw *ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, resolver.ErrInvalidArgument):
		rw.BadRequest(err.Error())
	case errors.Is(err, resolver.ErrUnavailable):
		rw.ServiceUnavailable("analytics temporarily unavailable, try again later")
	case errors.Is(err, resolver.ErrDataLoss):
		rw.Error(http.StatusGone, ErrCodeDataLoss, "requested range predates retained data")
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("Analytics query failed")
		rw.InternalError("analytics query failed")
	}
}
