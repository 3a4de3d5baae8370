// WatchRank - Real-Time View Analytics and Leaderboards
// Copyright 2026 WatchRank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchrank/watchrank

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/watchrank/watchrank/internal/config"
	"github.com/watchrank/watchrank/internal/models"
	"github.com/watchrank/watchrank/internal/resolver"
)

type fakeResolver struct {
	topResult *resolver.TopResult
	topErr    error
	stats     *models.VideoStats
	statsErr  error

	gotK  int
	gotTF models.Timeframe
	gotID int64
}

func (f *fakeResolver) TopK(_ context.Context, k int, tf models.Timeframe) (*resolver.TopResult, error) {
	f.gotK, f.gotTF = k, tf
	if f.topErr != nil {
		return nil, f.topErr
	}
	return f.topResult, nil
}

func (f *fakeResolver) Stats(_ context.Context, videoID int64) (*models.VideoStats, error) {
	f.gotID = videoID
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return f.stats, nil
}

func apiConfig() config.APIConfig {
	return config.APIConfig{
		MaxTopK:         100,
		RateLimit:       1000,
		RateLimitWindow: time.Minute,
		CORSOrigins:     []string{"https://dashboard.example.com"},
	}
}

func newTestRouter(res Resolver, checks ...ReadinessCheck) http.Handler {
	return NewRouter(NewHandler(res, 10, checks...), apiConfig())
}

func doRequest(t *testing.T, handler http.Handler, method, target string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(method, target, nil))

	var body APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return rec, body
}

func TestTopReturnsRanking(t *testing.T) {
	res := &fakeResolver{
		topResult: &resolver.TopResult{
			Timeframe: models.TimeframeDay,
			Entries: []models.LeaderboardEntry{
				{VideoID: 1, Score: 42},
				{VideoID: 2, Score: 7},
			},
			Source:  models.SourceSnapshot,
			BuiltAt: time.Now(),
		},
	}
	router := newTestRouter(res)

	rec, body := doRequest(t, router, http.MethodGet, "/api/v1/analytics/top?timeframe=day&k=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if !body.Success {
		t.Fatal("success = false")
	}
	if res.gotK != 2 || res.gotTF != models.TimeframeDay {
		t.Fatalf("resolver called with k=%d tf=%s", res.gotK, res.gotTF)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}
}

func TestTopDefaults(t *testing.T) {
	res := &fakeResolver{topResult: &resolver.TopResult{Timeframe: models.TimeframeAllTime}}
	router := newTestRouter(res)

	rec, _ := doRequest(t, router, http.MethodGet, "/api/v1/analytics/top")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if res.gotK != 10 || res.gotTF != models.TimeframeAllTime {
		t.Fatalf("defaults: k=%d tf=%s, want k=10 tf=all_time", res.gotK, res.gotTF)
	}
}

func TestTopBadInput(t *testing.T) {
	cases := []struct {
		name   string
		target string
		err    error
	}{
		{"bad timeframe", "/api/v1/analytics/top?timeframe=fortnight", nil},
		{"non-integer k", "/api/v1/analytics/top?k=ten", nil},
		{"resolver rejects", "/api/v1/analytics/top?k=5000", resolver.ErrInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&fakeResolver{topErr: tc.err})
			rec, body := doRequest(t, router, http.MethodGet, tc.target)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if body.Error == nil || body.Error.Code != ErrCodeBadRequest {
				t.Fatalf("error = %+v, want code %s", body.Error, ErrCodeBadRequest)
			}
		})
	}
}

func TestTopUnavailableMapsTo503(t *testing.T) {
	router := newTestRouter(&fakeResolver{topErr: resolver.ErrUnavailable})

	rec, body := doRequest(t, router, http.MethodGet, "/api/v1/analytics/top?timeframe=hour")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if body.Error == nil || body.Error.Code != ErrCodeServiceUnavailable {
		t.Fatalf("error = %+v, want code %s", body.Error, ErrCodeServiceUnavailable)
	}
}

func TestVideoStats(t *testing.T) {
	hour := int64(3)
	res := &fakeResolver{
		stats: &models.VideoStats{VideoID: 42, TotalViews: 100, LastHour: &hour, Source: models.SourceLedger},
	}
	router := newTestRouter(res)

	rec, body := doRequest(t, router, http.MethodGet, "/api/v1/analytics/videos/42/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if res.gotID != 42 {
		t.Fatalf("resolver called with id=%d, want 42", res.gotID)
	}

	raw, err := json.Marshal(body.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	var stats models.VideoStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalViews != 100 || stats.LastHour == nil || *stats.LastHour != 3 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.LastDay != nil {
		t.Fatal("absent window should stay nil through serialization")
	}
}

func TestVideoStatsBadID(t *testing.T) {
	router := newTestRouter(&fakeResolver{statsErr: resolver.ErrInvalidArgument})

	for _, target := range []string{
		"/api/v1/analytics/videos/abc/stats",
		"/api/v1/analytics/videos/-1/stats",
	} {
		rec, _ := doRequest(t, router, http.MethodGet, target)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestUnexpectedErrorMapsTo500(t *testing.T) {
	router := newTestRouter(&fakeResolver{topErr: errors.New("boom")})

	rec, body := doRequest(t, router, http.MethodGet, "/api/v1/analytics/top")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if body.Error == nil || body.Error.Code != ErrCodeInternalError {
		t.Fatalf("error = %+v, want code %s", body.Error, ErrCodeInternalError)
	}
}

func TestHealthAlwaysOK(t *testing.T) {
	router := newTestRouter(&fakeResolver{topErr: resolver.ErrUnavailable})

	rec, body := doRequest(t, router, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK || !body.Success {
		t.Fatalf("healthz: status = %d success = %v", rec.Code, body.Success)
	}
}

func TestReadyReflectsChecks(t *testing.T) {
	healthy := ReadinessCheck{Name: "db", Check: func(context.Context) error { return nil }}
	broken := ReadinessCheck{Name: "nats", Check: func(context.Context) error { return fmt.Errorf("disconnected") }}

	rec, _ := doRequest(t, newTestRouter(&fakeResolver{}, healthy), http.MethodGet, "/readyz")
	if rec.Code != http.StatusOK {
		t.Fatalf("ready: status = %d, want 200", rec.Code)
	}

	rec, body := doRequest(t, newTestRouter(&fakeResolver{}, healthy, broken), http.MethodGet, "/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("not ready: status = %d, want 503", rec.Code)
	}
	if body.Success {
		t.Fatal("not ready but success = true")
	}
}

func TestUnknownRouteReturnsEnvelope(t *testing.T) {
	rec, body := doRequest(t, newTestRouter(&fakeResolver{}), http.MethodGet, "/api/v2/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body.Error == nil || body.Error.Code != ErrCodeNotFound {
		t.Fatalf("error = %+v, want code %s", body.Error, ErrCodeNotFound)
	}
}

func TestRateLimitEnforced(t *testing.T) {
	cfg := config.APIConfig{MaxTopK: 100, RateLimit: 2, RateLimitWindow: time.Minute}
	router := NewRouter(NewHandler(&fakeResolver{topResult: &resolver.TopResult{}}, 10), cfg)

	var last int
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/top", nil))
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("status after burst = %d, want 429", last)
	}
}

func TestCORSReflectsAllowedOrigin(t *testing.T) {
	router := newTestRouter(&fakeResolver{topResult: &resolver.TopResult{Timeframe: models.TimeframeDay}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/top", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dashboard.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q, want the configured origin", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/analytics/top", nil)
	req.Header.Set("Origin", "https://other.example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unlisted origin received Access-Control-Allow-Origin %q", got)
	}
}
