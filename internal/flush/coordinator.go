// Package flush replays the durable queue through the sink.
//
// A pass delivers events strictly in FIFO order and clears the queue only
// when every event in its snapshot was accepted. The first failure aborts the
// pass and leaves the queue untouched, so events delivered before the failure
// are sent again on the next successful pass. Delivery is therefore
// at-least-once; sinks needing exactly-once deduplicate on
// (distinct id, event name, device time).
package flush

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"beacon/internal/platform/metrics"
	"beacon/internal/queue"
	"beacon/internal/sink"
)

// Queue is the part of queue.Store a pass needs.
type Queue interface {
	Load(ctx context.Context) []queue.Event
	Trim(ctx context.Context, n int) error
}

// Connectivity reports whether the host believes the network is reachable.
type Connectivity interface {
	Online() bool
}

// Status is the outcome of one Flush call.
type Status string

const (
	// StatusBusy means another pass was already in flight; nothing was done.
	StatusBusy Status = "busy"
	// StatusOffline means the host is offline; nothing was done.
	StatusOffline Status = "offline"
	// StatusEmpty means the queue had nothing to deliver.
	StatusEmpty Status = "empty"
	// StatusDelivered means the whole snapshot was delivered and cleared.
	StatusDelivered Status = "delivered"
	// StatusFailed means a delivery or the final clear failed; the queue is unchanged.
	StatusFailed Status = "failed"
)

// Result describes one Flush call.
type Result struct {
	Status    Status `json:"status"`
	Queued    int    `json:"queued"`
	Delivered int    `json:"delivered"`
	Err       error  `json:"-"`
}

// Coordinator runs flush passes, at most one at a time.
type Coordinator struct {
	queue  Queue
	conn   Connectivity
	sink   sink.Sink
	logger *slog.Logger

	metrics *metrics.Metrics
	tracer  trace.Tracer

	running atomic.Bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithMetrics enables pass and delivery metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = t
	}
}

// New creates a Coordinator.
func New(q Queue, conn Connectivity, s sink.Sink, opts ...Option) (*Coordinator, error) {
	if q == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if conn == nil {
		return nil, fmt.Errorf("connectivity is required")
	}
	if s == nil {
		return nil, fmt.Errorf("sink is required")
	}
	c := &Coordinator{
		queue:  q,
		conn:   conn,
		sink:   s,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer: otel.Tracer("beacon/flush"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Flush runs one pass and reports what happened. It never returns an error
// to the trigger; failures are carried in Result and logged.
func (c *Coordinator) Flush(ctx context.Context) Result {
	if !c.running.CompareAndSwap(false, true) {
		return Result{Status: StatusBusy}
	}
	defer c.running.Store(false)

	ctx, span := c.tracer.Start(ctx, "flush.pass")
	defer span.End()

	res := c.pass(ctx)

	span.SetAttributes(
		attribute.String("flush.status", string(res.Status)),
		attribute.Int("flush.queued", res.Queued),
		attribute.Int("flush.delivered", res.Delivered),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	if c.metrics != nil {
		c.metrics.ObserveFlush(string(res.Status), res.Delivered)
	}
	return res
}

// FlushAsync starts a pass in the background. The channel receives the
// result and is closed; callers may ignore it.
func (c *Coordinator) FlushAsync(ctx context.Context) <-chan Result {
	done := make(chan Result, 1)
	go func() {
		defer close(done)
		done <- c.Flush(ctx)
	}()
	return done
}

func (c *Coordinator) pass(ctx context.Context) Result {
	if !c.conn.Online() {
		return Result{Status: StatusOffline}
	}

	snapshot := c.queue.Load(ctx)
	if len(snapshot) == 0 {
		c.observeDepth(0)
		return Result{Status: StatusEmpty}
	}

	for i, ev := range snapshot {
		if err := c.deliver(ctx, ev); err != nil {
			if c.metrics != nil {
				c.metrics.IncrementDeliveryFailures()
			}
			c.observeDepth(len(snapshot))
			c.logger.WarnContext(ctx, "flush failed, keeping events queued",
				"event", ev.EventName,
				"position", i,
				"queued", len(snapshot),
				"error", err,
			)
			return Result{
				Status:    StatusFailed,
				Queued:    len(snapshot),
				Delivered: i,
				Err:       fmt.Errorf("deliver %s: %w", ev.EventName, err),
			}
		}
	}

	if err := c.queue.Trim(ctx, len(snapshot)); err != nil {
		c.logger.ErrorContext(ctx, "flush delivered events but could not clear queue",
			"queued", len(snapshot),
			"error", err,
		)
		return Result{
			Status:    StatusFailed,
			Queued:    len(snapshot),
			Delivered: len(snapshot),
			Err:       fmt.Errorf("clear queue: %w", err),
		}
	}

	if c.metrics != nil {
		// Track calls during the pass may have appended after the snapshot.
		c.metrics.SetQueueDepth(len(c.queue.Load(ctx)))
	}
	c.logger.InfoContext(ctx, "offline analytics flushed", "count", len(snapshot))
	return Result{Status: StatusDelivered, Queued: len(snapshot), Delivered: len(snapshot)}
}

func (c *Coordinator) deliver(ctx context.Context, ev queue.Event) error {
	ctx, span := c.tracer.Start(ctx, "sink.deliver",
		trace.WithAttributes(attribute.String("event.name", ev.EventName)))
	defer span.End()

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := c.sink.Deliver(ctx, ev.EventName, ev.Properties); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (c *Coordinator) observeDepth(n int) {
	if c.metrics != nil {
		c.metrics.SetQueueDepth(n)
	}
}
