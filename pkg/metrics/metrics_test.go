package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/featurehash/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestObserveParse(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveParse("http", time.Microsecond, 3, 1, nil)
	m.ObserveParse("http", time.Microsecond, 0, 0, fmt.Errorf("line 2: %w", apperrors.ErrMalformedNumber))
	m.ObserveParse("worker", time.Microsecond, 0, 0, errors.New("boom"))

	body := scrape(t, reg)
	assert.Contains(t, body, `featurehash_lines_parsed_total{result="ok",source="http"} 1`)
	assert.Contains(t, body, `featurehash_lines_parsed_total{result="error",source="http"} 1`)
	assert.Contains(t, body, `featurehash_parse_errors_total{kind="malformed_number"} 1`)
	assert.Contains(t, body, `featurehash_parse_errors_total{kind="internal"} 1`)
	assert.Contains(t, body, `featurehash_features_per_line_count 1`)
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.CacheHitsTotal.Inc()

	assert.Contains(t, scrape(t, reg), "cache_hits_total 1")
}

func TestNewServeMuxMountsExtraRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	mux := NewServeMux(reg, map[string]http.Handler{
		"GET /live": http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "featurehash_parse_latency_seconds")
}
