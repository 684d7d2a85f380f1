package httpclient

import (
	"errors"
	"sync"
	"time"

	"github.com/IgorGrieder/short-url/internal/infrastructure/logger"
	"go.uber.org/zap"
)

type State int

const (
	StateClosed State = iota + 1
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
		return "half_open"
	default:
		return "unknown"
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calls to an upstream after maxFailures consecutive
// failures. After openTimeout a single trial call is let through; its result
// closes or reopens the circuit.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	maxFailures int
	openSince   time.Time
	openTimeout time.Duration
	now         func() time.Time
}

func NewCircuitBreaker(maxFailures int, openTimeout time.Duration) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	return &CircuitBreaker{
		state:       StateClosed,
		maxFailures: maxFailures,
		openTimeout: openTimeout,
		now:         time.Now,
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// CheckBeforeRequest returns ErrCircuitOpen while calls are refused.
func (cb *CircuitBreaker) CheckBeforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openSince) <= cb.openTimeout {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen, "open timeout elapsed")
		return nil
	case StateHalfOpen:
		// The trial call is still in flight.
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (cb *CircuitBreaker) OnSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.transition(StateClosed, "trial call succeeded")
	}
}

func (cb *CircuitBreaker) OnFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.transition(StateOpen, "trial call failed")
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.transition(StateOpen, "failure threshold reached")
			return
		}
		logger.Debug("circuit breaker failure recorded",
			zap.Int("failures", cb.failures),
			zap.Int("max_failures", cb.maxFailures),
		)
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to State, reason string) {
	fields := []zap.Field{
		zap.Stringer("from", cb.state),
		zap.Stringer("to", to),
		zap.String("reason", reason),
	}
	cb.state = to

	switch to {
	case StateOpen:
		cb.openSince = cb.now()
		logger.Warn("circuit breaker opened", append(fields, zap.Duration("open_for", cb.openTimeout))...)
	case StateClosed:
		cb.failures = 0
		logger.Info("circuit breaker closed", fields...)
	default:
		logger.Info("circuit breaker state changed", fields...)
	}
}
