package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shoply/gateway/internal/observability"
)

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed indicates the circuit is closed and calls pass through.
	StateClosed State = iota

	// StateOpen indicates the circuit is open and calls are
	// short-circuited without touching the backend.
	StateOpen

	// StateHalfOpen indicates the circuit is probing whether the
	// backend has recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker rejects a call
// without attempting it.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker implements the Closed/Open/Half-Open state machine.
type CircuitBreaker struct {
	name   string
	config *Config
	logger observability.Logger
	now    func() time.Time

	mu    sync.Mutex
	state State

	failures         int
	successes        int
	consecutiveFails int
	totalRequests    int
	halfOpenRequests int

	lastStateChange time.Time
	samplingStart   time.Time
}

// Option is a functional option for the circuit breaker.
type Option func(*CircuitBreaker)

// WithLogger sets the logger for the circuit breaker.
func WithLogger(logger observability.Logger) Option {
	return func(cb *CircuitBreaker) {
		cb.logger = logger
	}
}

// WithClock sets the time source, used by tests for deterministic
// state transitions.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// New creates a new circuit breaker.
func New(name string, config *Config, opts ...Option) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	config.Validate()

	cb := &CircuitBreaker{
		name:   name,
		config: config,
		logger: observability.NopLogger(),
		now:    time.Now,
		state:  StateClosed,
	}

	for _, opt := range opts {
		opt(cb)
	}

	now := cb.now()
	cb.lastStateChange = now
	cb.samplingStart = now

	return cb
}

// Execute runs fn with circuit breaker protection. When the circuit is
// open the call is rejected immediately with ErrCircuitOpen; no network
// attempt is made and no per-call timeout is waited out.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !cb.allow() {
		return ErrCircuitOpen
	}

	err := fn()

	if cb.isSuccessful(err) {
		cb.recordSuccess()
	} else {
		cb.recordFailure()
	}

	return err
}

// ExecuteWithFallback runs fn and substitutes the fallback result when
// the circuit rejects the call.
func (cb *CircuitBreaker) ExecuteWithFallback(ctx context.Context, fn func() error, fallback func(error) error) error {
	err := cb.Execute(ctx, fn)
	if errors.Is(err, ErrCircuitOpen) {
		return fallback(err)
	}
	return err
}

// allow checks whether a call may proceed, transitioning open circuits
// to half-open once the cool-down has elapsed.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if cb.now().Sub(cb.lastStateChange) >= cb.config.CoolDown {
			cb.transitionTo(StateHalfOpen)
			cb.halfOpenRequests = 1
			return true
		}
		return false

	case StateHalfOpen:
		if cb.halfOpenRequests < cb.config.HalfOpenMax {
			cb.halfOpenRequests++
			return true
		}
		return false

	default:
		return false
	}
}

// recordSuccess records a successful call.
func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successes++
	cb.consecutiveFails = 0
	cb.totalRequests++

	switch cb.state {
	case StateHalfOpen:
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(StateClosed)
		}
	case StateClosed:
		if cb.now().Sub(cb.samplingStart) >= cb.config.SamplingWindow {
			cb.resetCounters()
		}
	}
}

// recordFailure records a failed call.
func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.consecutiveFails++
	cb.totalRequests++

	switch cb.state {
	case StateClosed:
		if cb.shouldOpen() {
			cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		// Any probe failure reopens the circuit.
		cb.transitionTo(StateOpen)
	}
}

// shouldOpen determines whether the closed circuit should open.
func (cb *CircuitBreaker) shouldOpen() bool {
	if cb.consecutiveFails >= cb.config.MaxFailures {
		return true
	}

	if cb.config.FailureRatio > 0 && cb.totalRequests >= cb.config.MinRequests {
		ratio := float64(cb.failures) / float64(cb.totalRequests)
		if ratio >= cb.config.FailureRatio {
			return true
		}
	}

	return false
}

// transitionTo moves the breaker to a new state. Callers must hold the lock.
func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = cb.now()
	cb.resetCounters()

	cb.logger.Info("circuit breaker state changed",
		observability.String("name", cb.name),
		observability.String("from", oldState.String()),
		observability.String("to", newState.String()),
	)

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, oldState, newState)
	}
}

// resetCounters resets the counters and sampling window.
func (cb *CircuitBreaker) resetCounters() {
	cb.failures = 0
	cb.successes = 0
	cb.consecutiveFails = 0
	cb.totalRequests = 0
	cb.halfOpenRequests = 0
	cb.samplingStart = cb.now()
}

// isSuccessful classifies an error outcome.
func (cb *CircuitBreaker) isSuccessful(err error) bool {
	if cb.config.IsSuccessful != nil {
		return cb.config.IsSuccessful(err)
	}
	return err == nil
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}
