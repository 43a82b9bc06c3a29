package backend

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// CircuitClosed allows requests to pass through
	CircuitClosed CircuitState = iota
	// CircuitOpen blocks all requests
	CircuitOpen
	// CircuitHalfOpen allows a probe request through
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening the circuit
	MaxFailures uint32
	// ResetTimeout is how long the circuit stays open before a probe is allowed
	ResetTimeout time.Duration
}

// DefaultCircuitBreakerConfig returns the defaults used by NewHTTPClient.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:  5,
		ResetTimeout: 30 * time.Second,
	}
}

// ErrCircuitOpen is returned while the breaker is rejecting calls.
type ErrCircuitOpen struct {
	Since time.Duration
}

func (e ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker is open (last failure: %v ago)", e.Since.Round(time.Millisecond))
}

// CircuitBreaker stops hammering a backend that keeps failing.
type CircuitBreaker struct {
	config          CircuitBreakerConfig
	state           CircuitState
	failureCount    uint32
	lastFailureTime time.Time
	now             func() time.Time
	onChange        func(from, to CircuitState)

	mu sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		config: config,
		state:  CircuitClosed,
		now:    time.Now,
	}
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(CircuitClosed)
	cb.failureCount = 0
	cb.lastFailureTime = time.Time{}
}

// Call runs fn unless the circuit is open. Only errors for which counts
// returns true are recorded as failures.
func (cb *CircuitBreaker) Call(fn func() error, counts func(error) bool) error {
	cb.mu.Lock()
	if cb.state == CircuitOpen {
		since := cb.now().Sub(cb.lastFailureTime)
		if since < cb.config.ResetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen{Since: since}
		}
		cb.transition(CircuitHalfOpen)
		cb.failureCount = 0
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && (counts == nil || counts(err)) {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess()
	return err
}

// recordFailure must be called with lock held
func (cb *CircuitBreaker) recordFailure() {
	cb.failureCount++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case CircuitHalfOpen:
		cb.transition(CircuitOpen)
	case CircuitClosed:
		if cb.failureCount >= cb.config.MaxFailures {
			cb.transition(CircuitOpen)
		}
	}
}

// recordSuccess must be called with lock held
func (cb *CircuitBreaker) recordSuccess() {
	if cb.state == CircuitHalfOpen {
		cb.transition(CircuitClosed)
		cb.lastFailureTime = time.Time{}
	}
	cb.failureCount = 0
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	if from != to && cb.onChange != nil {
		cb.onChange(from, to)
	}
}

// FailureCount returns the current consecutive failure count
func (cb *CircuitBreaker) FailureCount() uint32 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}
