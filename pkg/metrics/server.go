package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NewServeMux routes GET /metrics for g plus any extra routes, keyed by
// ServeMux pattern. The worker, which has no API port, mounts its
// health checks here.
func NewServeMux(g prometheus.Gatherer, extra map[string]http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler(g))
	for pattern, h := range extra {
		mux.Handle(pattern, h)
	}
	return mux
}

// StartServer serves NewServeMux(g, extra) on port in the background and
// returns its shutdown function.
func StartServer(port int, g prometheus.Gatherer, extra map[string]http.Handler) (shutdown func(context.Context) error) {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      NewServeMux(g, extra),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("metrics server listening", "addr", server.Addr, "extra_routes", len(extra))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return server.Shutdown
}
