// Package health runs dependency checks for the featurizer and worker and
// serves them as /health, /live and /ready.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

func (s Status) rank() int {
	switch s {
	case StatusDown:
		return 2
	case StatusDegraded:
		return 1
	}
	return 0
}

// Check tests one dependency.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Report is the outcome of one Run. Status is the worst component status.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// Failing lists the components that are not up, sorted by name.
func (r Report) Failing() []string {
	var names []string
	for name, c := range r.Components {
		if c.Status != StatusUp {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// PingCheck wraps a ping such as db.Ping. A failing required dependency is
// down; an optional one (the Redis parse cache) only degrades the report.
func PingCheck(ping func(ctx context.Context) error, required bool) Check {
	failed := StatusDegraded
	if required {
		failed = StatusDown
	}
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: failed, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

type Checker struct {
	mu      sync.RWMutex
	checks  map[string]Check
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker returns a Checker that gives each check up to five seconds.
func NewChecker() *Checker {
	return &Checker{
		checks:  make(map[string]Check),
		timeout: 5 * time.Second,
		logger:  slog.Default().With("component", "health"),
	}
}

// Register adds or replaces the check called name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()
}

// Run checks every registered dependency in parallel.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type outcome struct {
		name   string
		health ComponentHealth
	}
	results := make(chan outcome, len(checks))
	for name, check := range checks {
		go func() {
			start := time.Now()
			h := check(ctx)
			h.Latency = time.Since(start).Round(time.Millisecond).String()
			results <- outcome{name, h}
		}()
	}

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for range checks {
		o := <-results
		report.Components[o.name] = o.health
		if o.health.Status.rank() > report.Status.rank() {
			report.Status = o.health.Status
		}
		if o.health.Status == StatusDown {
			c.logger.Warn("dependency down", "dependency", o.name, "message", o.health.Message)
		}
	}
	return report
}

// Handler serves the full report; 503 only when a required dependency is down.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		writeJSON(w, statusCode(report), report)
	}
}

// LiveHandler answers as long as the process can serve HTTP.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler serves a short verdict naming the components that are not up.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		writeJSON(w, statusCode(report), map[string]any{
			"status":  report.Status,
			"failing": report.Failing(),
		})
	}
}

func statusCode(r Report) int {
	if r.Status == StatusDown {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
