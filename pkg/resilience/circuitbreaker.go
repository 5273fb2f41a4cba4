// Package resilience guards calls to Kafka and Postgres: a circuit breaker,
// jittered retry and a deadline wrapper that maps overruns to ErrTimeout.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// CircuitBreakerConfig holds the trip threshold and cool-down. Zero fields take
// the defaults (5 failures, 30s, one trial request).
type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	// OnStateChange runs under the breaker lock and must not call back into it.
	OnStateChange func(name string, from, to State)
	// IsFailure filters which errors trip the breaker. Nil counts all of them.
	IsFailure func(err error) bool
}

// CircuitBreaker opens after FailureThreshold consecutive failures. Once
// ResetTimeout has passed it lets HalfOpenMaxRequests trial requests through; one
// success closes it again and one failure reopens it.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inFlight int
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
		now:    time.Now,
	}
}

func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn unless the breaker rejects the call with ErrCircuitOpen.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	state, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(state, err)
	return err
}

// GetState reports the state a call made now would see.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance()
	return cb.state
}

// Reset closes the breaker and clears its failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.inFlight = 0
	cb.transition(StateClosed)
}

// advance moves an open breaker to half-open once the cool-down is over.
func (cb *CircuitBreaker) advance() {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		cb.inFlight = 0
		cb.transition(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) admit() (State, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance()
	switch cb.state {
	case StateOpen:
		wait := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt)
		return cb.state, fmt.Errorf("%w: %s (retry in %v)", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
	case StateHalfOpen:
		if cb.inFlight >= cb.cfg.HalfOpenMaxRequests {
			return cb.state, fmt.Errorf("%w: %s (trial in flight)", ErrCircuitOpen, cb.name)
		}
		cb.inFlight++
	}
	return cb.state, nil
}

func (cb *CircuitBreaker) record(admittedIn State, err error) {
	failed := err != nil && (cb.cfg.IsFailure == nil || cb.cfg.IsFailure(err))

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if admittedIn == StateHalfOpen && cb.inFlight > 0 {
		cb.inFlight--
	}
	if !failed {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.transition(StateClosed)
		}
		return
	}
	cb.failures++
	switch {
	case cb.state == StateHalfOpen:
		cb.trip()
	case cb.state == StateClosed && cb.failures >= cb.cfg.FailureThreshold:
		cb.trip()
	}
}

func (cb *CircuitBreaker) trip() {
	cb.openedAt = cb.now()
	cb.transition(StateOpen)
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.logger.Info("circuit state changed", "from", from.String(), "to", to.String(), "failures", cb.failures)
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}
