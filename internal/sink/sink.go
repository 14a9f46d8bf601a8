// Package sink defines the delivery contract to the remote analytics service.
//
// Deliver is all-or-nothing per call: a nil error means the sink accepted the
// event, any error means it did not and the caller keeps the event. Partial
// success is never signalled.
package sink

//go:generate mockgen -source=sink.go -destination=mocks/mocks.go -package=mocks Sink,Identifier

import (
	"context"
	"io"
	"log/slog"
)

// Sink delivers one event to the analytics service.
type Sink interface {
	Deliver(ctx context.Context, event string, props map[string]any) error
}

// Identifier is implemented by sinks that attribute events to a
// pseudonymous distinct ID.
type Identifier interface {
	Identify(ctx context.Context, distinctID string) error
}

// Func adapts a function to the Sink interface.
type Func func(ctx context.Context, event string, props map[string]any) error

func (f Func) Deliver(ctx context.Context, event string, props map[string]any) error {
	return f(ctx, event, props)
}

// LogSink writes events to a logger and always succeeds. Useful when running
// the agent without a remote service.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger discards output.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(ctx context.Context, event string, props map[string]any) error {
	s.logger.InfoContext(ctx, "telemetry event", "event", event, "properties", props)
	return nil
}
