package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/featurize"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/stats"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission/handler"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission/validator"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, limiter *middleware.RateLimiter) (http.Handler, *stats.Aggregator) {
	t.Helper()
	agg := stats.NewAggregator()
	m := metrics.New(prometheus.NewRegistry())
	api := handler.New(handler.Config{
		Workers:  2,
		Policy:   featurize.FailFast,
		Limits:   validator.Limits{MaxLines: 10, MaxLineLength: 1024},
		Observer: agg,
	}, nil, nil, m)
	return New(Deps{
		API:     api,
		Stats:   stats.NewHandler(agg),
		Cache:   cache.NewHandler(nil),
		Health:  health.NewChecker(),
		Metrics: m,
		Limiter: limiter,
	}), agg
}

func TestParseThroughChain(t *testing.T) {
	h, agg := newRouter(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/parse", strings.NewReader(`{"lines":["1 |a x"]}`))
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "req-42", rec.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, int64(1), agg.Stats().ParsedLines)
}

func TestStatsAndProbeRoutes(t *testing.T) {
	h, _ := newRouter(t, nil)
	for _, path := range []string{"/api/v1/stats", "/api/v1/cache/stats", "/health", "/live", "/ready"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestUnknownRoute(t *testing.T) {
	h, _ := newRouter(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimitInChain(t *testing.T) {
	h, _ := newRouter(t, middleware.NewRateLimiter(1, 1))
	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/hash", strings.NewReader(`{"value":"a"}`))
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
