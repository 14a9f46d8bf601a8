// Package breaker wraps a sink with a circuit breaker so a sink outage fails
// deliveries fast instead of waiting on timeouts for every event. A rejected
// delivery is an ordinary failure to the caller: Track falls back to the queue
// and a flush pass aborts, exactly as if the sink had been tried.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"beacon/internal/sink"
	"beacon/pkg/platform/sentinel"
)

// CircuitBreaker opens after a run of consecutive failures. Once the
// cooldown has passed it is half-open: exactly one caller is admitted as a
// trial and everyone else is rejected until that trial is recorded.
type CircuitBreaker struct {
	mu sync.Mutex

	threshold int           // failures to trigger open
	cooldown  time.Duration // how long to stay open
	now       func() time.Time

	failures  int       // consecutive failures
	openUntil time.Time // when to transition from open to half-open
	isOpen    bool
	trial     bool // half-open trial in flight
}

// NewCircuitBreaker creates a circuit breaker.
// threshold: number of consecutive failures to open the circuit
// cooldown: how long to stay open before trying again
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed. A true result while the circuit
// is open claims the single half-open trial; the caller must then record its
// outcome.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.isOpen {
		return true
	}
	if cb.trial || cb.now().Before(cb.openUntil) {
		return false
	}
	cb.trial = true
	return true
}

// RecordSuccess closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.isOpen = false
	cb.trial = false
}

// RecordFailure records a failed operation and reports whether the circuit
// is open afterwards. A failed trial reopens for a full cooldown.
func (cb *CircuitBreaker) RecordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.trial {
		cb.trial = false
		cb.failures = cb.threshold
	} else {
		cb.failures++
	}
	if cb.failures >= cb.threshold {
		cb.isOpen = true
		cb.openUntil = cb.now().Add(cb.cooldown)
	}
	return cb.isOpen
}

// IsOpen returns true while the circuit is open or half-open.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.isOpen
}

// Reset manually closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.isOpen = false
	cb.trial = false
}

// Sink guards another sink with a CircuitBreaker.
type Sink struct {
	next    sink.Sink
	breaker *CircuitBreaker
	onState func(open bool)
}

// Option configures a Sink.
type Option func(*Sink)

// WithStateHook is called after every delivery with the breaker state, for
// metrics.
func WithStateHook(fn func(open bool)) Option {
	return func(s *Sink) {
		s.onState = fn
	}
}

// Wrap guards next with breaker.
func Wrap(next sink.Sink, breaker *CircuitBreaker, opts ...Option) *Sink {
	s := &Sink{next: next, breaker: breaker}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Deliver forwards to the wrapped sink unless the circuit is open.
func (s *Sink) Deliver(ctx context.Context, event string, props map[string]any) error {
	if !s.breaker.Allow() {
		return fmt.Errorf("sink circuit open: %w", sentinel.ErrUnavailable)
	}
	err := s.next.Deliver(ctx, event, props)
	if err != nil {
		open := s.breaker.RecordFailure()
		s.report(open)
		return err
	}
	s.breaker.RecordSuccess()
	s.report(false)
	return nil
}

// Identify forwards to the wrapped sink when it supports identification.
func (s *Sink) Identify(ctx context.Context, distinctID string) error {
	if id, ok := s.next.(sink.Identifier); ok {
		return id.Identify(ctx, distinctID)
	}
	return nil
}

func (s *Sink) report(open bool) {
	if s.onState != nil {
		s.onState(open)
	}
}
