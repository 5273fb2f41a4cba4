// Package router wires the featurizer HTTP routes and applies the middleware
// chain (RequestID → CORS → RateLimit → Metrics → Timeout).
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/stats"
	"github.com/Adithya-Monish-Kumar-K/featurehash/internal/submission/handler"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/middleware"
)

// Deps are the handlers and shared components behind the routes. Metrics
// and Limiter may be nil.
type Deps struct {
	API            *handler.Handler
	Stats          *stats.Handler
	Cache          *cache.Handler
	Health         *health.Checker
	Metrics        *metrics.Metrics
	Limiter        *middleware.RateLimiter
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// New builds the full featurizer HTTP handler.
//
// Route table:
//
//	POST   /api/v1/parse             → featurize lines synchronously
//	POST   /api/v1/hash              → hash one string
//	POST   /api/v1/examples          → submit a batch (async)
//	GET    /api/v1/batches/{id}      → batch progress
//	GET    /api/v1/stats             → parse statistics
//	GET    /api/v1/cache/stats       → parse cache hit rate
//	POST   /api/v1/cache/invalidate  → drop cached parses
//	GET    /health, /live, /ready    → health checks
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → RateLimit → Metrics → Timeout → mux
func New(d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", d.Health.Handler())
	mux.HandleFunc("GET /live", d.Health.LiveHandler())
	mux.HandleFunc("GET /ready", d.Health.ReadyHandler())

	d.API.Register(mux)
	mux.HandleFunc("GET /api/v1/stats", d.Stats.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", d.Cache.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", d.Cache.CacheInvalidate)

	var chain http.Handler = mux
	chain = middleware.Timeout(d.RequestTimeout)(chain)
	if d.Metrics != nil {
		chain = middleware.Metrics(d.Metrics)(chain)
	}
	if d.Limiter != nil {
		chain = middleware.RateLimit(d.Limiter)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig(d.CORSOrigins...))(chain)
	chain = middleware.RequestID(chain)
	return chain
}
