// Package tracker is the public entrypoint for recording telemetry events.
//
// Track tries the sink right away when the host is online and falls back to
// the durable queue otherwise or on failure. The queue is replayed by the
// flush coordinator on Init and on every offline to online transition.
// Neither Init nor Track reports errors to the caller.
package tracker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"beacon/internal/flush"
	"beacon/internal/platform/metrics"
	"beacon/internal/queue"
	"beacon/internal/sink"
)

// Queue is the part of queue.Store the tracker needs.
type Queue interface {
	Enqueue(ctx context.Context, event queue.Event) error
	Len(ctx context.Context) int
}

// Identity yields the pseudonymous distinct id.
type Identity interface {
	Ensure(ctx context.Context) string
}

// Connectivity is the host network signal.
type Connectivity interface {
	Online() bool
	Subscribe(fn func()) (unsubscribe func())
}

// Flusher starts background flush passes.
type Flusher interface {
	FlushAsync(ctx context.Context) <-chan flush.Result
}

// Outcome is what happened to one tracked event.
type Outcome string

const (
	// OutcomeDelivered means the sink accepted the event immediately.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeQueued means the event was persisted for a later flush.
	OutcomeQueued Outcome = "queued"
	// OutcomeDropped means the sink was not reached and the queue write failed.
	OutcomeDropped Outcome = "dropped"
)

// Tracker records events with an offline fallback.
type Tracker struct {
	sink     sink.Sink
	queue    Queue
	identity Identity
	conn     Connectivity
	flusher  Flusher

	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	initOnce     sync.Once
	identifyOnce sync.Once
	mu           sync.Mutex
	unsubscribe  func()
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithMetrics enables outcome and queue depth metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

// WithClock overrides the capture clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// New creates a Tracker. Call Init once the sink is ready.
func New(s sink.Sink, q Queue, id Identity, conn Connectivity, f Flusher, opts ...Option) (*Tracker, error) {
	switch {
	case s == nil:
		return nil, fmt.Errorf("sink is required")
	case q == nil:
		return nil, fmt.Errorf("queue is required")
	case id == nil:
		return nil, fmt.Errorf("identity is required")
	case conn == nil:
		return nil, fmt.Errorf("connectivity is required")
	case f == nil:
		return nil, fmt.Errorf("flusher is required")
	}
	t := &Tracker{
		sink:     s,
		queue:    q,
		identity: id,
		conn:     conn,
		flusher:  f,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Init establishes identity on the sink, subscribes flushing to online
// transitions and starts one initial flush. Only the first call does work;
// later calls return an already closed channel.
func (t *Tracker) Init(ctx context.Context) <-chan flush.Result {
	var initial <-chan flush.Result
	t.initOnce.Do(func() {
		t.identify(ctx)

		// Flushes triggered by the host outlive the caller's request.
		bg := context.WithoutCancel(ctx)
		unsubscribe := t.conn.Subscribe(func() {
			t.logger.DebugContext(bg, "connectivity restored, flushing queue")
			t.flusher.FlushAsync(bg)
		})
		t.mu.Lock()
		t.unsubscribe = unsubscribe
		t.mu.Unlock()

		initial = t.flusher.FlushAsync(ctx)
	})
	if initial == nil {
		done := make(chan flush.Result)
		close(done)
		return done
	}
	return initial
}

// Close stops reacting to connectivity transitions.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.unsubscribe != nil {
		t.unsubscribe()
		t.unsubscribe = nil
	}
}

// Track records one event. The device time is captured now, so replayed
// events keep their occurrence time.
func (t *Tracker) Track(ctx context.Context, name string, props map[string]any) Outcome {
	t.identify(ctx)

	ev := queue.NewEvent(name, props, t.now())

	if !t.conn.Online() {
		return t.observe(ctx, t.enqueue(ctx, ev))
	}

	if err := t.sink.Deliver(ctx, ev.EventName, ev.Properties); err != nil {
		t.logger.WarnContext(ctx, "capture failed, queueing event",
			"event", name,
			"error", err,
		)
		if t.metrics != nil {
			t.metrics.IncrementDeliveryFailures()
		}
		return t.observe(ctx, t.enqueue(ctx, ev))
	}
	return t.observe(ctx, OutcomeDelivered)
}

func (t *Tracker) enqueue(ctx context.Context, ev queue.Event) Outcome {
	if err := t.queue.Enqueue(ctx, ev); err != nil {
		t.logger.ErrorContext(ctx, "event dropped, queue write failed",
			"event", ev.EventName,
			"error", err,
		)
		return OutcomeDropped
	}
	return OutcomeQueued
}

func (t *Tracker) observe(ctx context.Context, o Outcome) Outcome {
	if t.metrics == nil {
		return o
	}
	t.metrics.ObserveTracked(string(o))
	if o == OutcomeQueued {
		t.metrics.SetQueueDepth(t.queue.Len(ctx))
	}
	return o
}

func (t *Tracker) identify(ctx context.Context) {
	t.identifyOnce.Do(func() {
		distinctID := t.identity.Ensure(ctx)
		id, ok := t.sink.(sink.Identifier)
		if !ok {
			return
		}
		if err := id.Identify(ctx, distinctID); err != nil {
			t.logger.WarnContext(ctx, "sink identify failed", "error", err)
		}
	})
}
