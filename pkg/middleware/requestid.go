// Package middleware provides reusable HTTP middleware for request IDs,
// Prometheus metrics, CORS, rate limiting and request timeouts.
package middleware

import (
	"context"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/featurehash/pkg/logger"
	"github.com/google/uuid"
)

// RequestIDHeader is read from incoming requests and echoed on responses.
const RequestIDHeader = "X-Request-ID"

// RequestID propagates the caller's request id, or generates one, and stores
// it on the request context for logging.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = newRequestID()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

// GetRequestID returns the id set by RequestID, or "" outside a request.
func GetRequestID(ctx context.Context) string {
	return logger.RequestID(ctx)
}

func newRequestID() string {
	return uuid.NewString()
}
