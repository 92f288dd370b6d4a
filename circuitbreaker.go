package eventsource

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// BreakerState is the circuit state for one event type.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
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

// CircuitBreakerOptions holds the static thresholds, constructed and
// injected by the composition root.
type CircuitBreakerOptions struct {
	// FailureThreshold is the number of consecutive failures in the closed
	// state that opens the circuit.
	FailureThreshold int

	// RecoveryTimeout is how long an open circuit rejects calls before a
	// probe call is let through (half-open).
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of successes in the half-open state
	// that closes the circuit again.
	SuccessThreshold int
}

// DefaultCircuitBreakerOptions returns the defaults: open after 5 failures,
// probe after 60s, close after 1 half-open success.
func DefaultCircuitBreakerOptions() CircuitBreakerOptions {
	return CircuitBreakerOptions{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 1,
	}
}

// CircuitBreakerState is the mutable per-event-type state machine. It is
// owned and mutated exclusively by the CircuitBreakerMiddleware that created
// it; the middleware's lock guards all access.
type CircuitBreakerState struct {
	state        BreakerState
	failureCount int
	successCount int
	openedAt     time.Time
}

// CircuitBreakerMiddleware isolates failing handlers per event type: once an
// event type accumulates FailureThreshold consecutive failures, its calls
// are rejected with *CircuitOpenError until RecoveryTimeout has elapsed, at
// which point a probe call is allowed through. Event types are fully
// independent; a failure storm on one never trips the breaker for another.
type CircuitBreakerMiddleware struct {
	mu     sync.Mutex
	opts   CircuitBreakerOptions
	log    *slog.Logger
	states map[string]*CircuitBreakerState
	clock  func() time.Time
}

// NewCircuitBreakerMiddleware creates the middleware. A nil logger falls
// back to slog.Default().
func NewCircuitBreakerMiddleware(opts CircuitBreakerOptions, log *slog.Logger) *CircuitBreakerMiddleware {
	if log == nil {
		log = slog.Default()
	}
	if opts.FailureThreshold < 1 {
		opts.FailureThreshold = 1
	}
	if opts.SuccessThreshold < 1 {
		opts.SuccessThreshold = 1
	}
	return &CircuitBreakerMiddleware{
		opts:   opts,
		log:    log,
		states: make(map[string]*CircuitBreakerState),
		clock:  time.Now,
	}
}

func (m *CircuitBreakerMiddleware) Process(ctx context.Context, hctx *EventHandlerContext, next Next) (any, error) {
	eventType := hctx.EventType()

	if !m.admit(eventType) {
		return nil, &CircuitOpenError{EventType: eventType}
	}

	out, err := next(ctx, hctx)
	m.record(eventType, err == nil)
	return out, err
}

// State reports the current circuit state for an event type.
func (m *CircuitBreakerMiddleware) State(eventType string) BreakerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateFor(eventType).state
}

// admit decides whether the call may proceed, moving an expired open
// circuit to half-open first.
func (m *CircuitBreakerMiddleware) admit(eventType string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	cb := m.stateFor(eventType)
	if cb.state != StateOpen {
		return true
	}
	if m.clock().Sub(cb.openedAt) < m.opts.RecoveryTimeout {
		return false
	}

	m.transition(cb, eventType, StateHalfOpen)
	cb.successCount = 0
	return true
}

func (m *CircuitBreakerMiddleware) record(eventType string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cb := m.stateFor(eventType)
	if success {
		m.onSuccess(cb, eventType)
	} else {
		m.onFailure(cb, eventType)
	}
}

func (m *CircuitBreakerMiddleware) onSuccess(cb *CircuitBreakerState, eventType string) {
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
		cb.successCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= m.opts.SuccessThreshold {
			m.transition(cb, eventType, StateClosed)
			cb.failureCount = 0
			cb.successCount = 0
		}
	}
}

func (m *CircuitBreakerMiddleware) onFailure(cb *CircuitBreakerState, eventType string) {
	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= m.opts.FailureThreshold {
			m.transition(cb, eventType, StateOpen)
			cb.openedAt = m.clock()
		}
	case StateHalfOpen:
		m.transition(cb, eventType, StateOpen)
		cb.openedAt = m.clock()
		cb.successCount = 0
	}
}

// stateFor lazily creates the per-event-type state. Callers hold m.mu.
func (m *CircuitBreakerMiddleware) stateFor(eventType string) *CircuitBreakerState {
	cb, ok := m.states[eventType]
	if !ok {
		cb = &CircuitBreakerState{state: StateClosed}
		m.states[eventType] = cb
	}
	return cb
}

func (m *CircuitBreakerMiddleware) transition(cb *CircuitBreakerState, eventType string, to BreakerState) {
	m.log.Info("circuit state changed",
		slog.String("event_type", eventType),
		slog.String("from", cb.state.String()),
		slog.String("to", to.String()),
		slog.Int("failure_count", cb.failureCount),
	)
	cb.state = to
}

var _ Middleware = (*CircuitBreakerMiddleware)(nil)
