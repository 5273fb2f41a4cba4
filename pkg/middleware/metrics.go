package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/metrics"
)

// Metrics records request count, latency and in-flight requests, labelled by
// method and route.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsInFlight.Inc()
			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			defer func() {
				m.HTTPRequestsInFlight.Dec()
				route := normalizePath(r.URL.Path)
				m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.code())).Inc()
				m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

// statusRecorder remembers the first status written. A handler that only
// calls Write has implicitly sent 200.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

// normalizePath folds batch ids into one label value.
func normalizePath(path string) string {
	const batches = "/api/v1/batches/"
	if id, ok := strings.CutPrefix(path, batches); ok && id != "" {
		return batches + "{id}"
	}
	return path
}
