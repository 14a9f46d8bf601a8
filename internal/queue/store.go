// Package queue persists the ordered telemetry event queue as one serialized
// blob under a fixed storage key.
//
// The blob is a JSON array of Event. Reading it and writing it straight back
// is lossless (numbers are decoded as json.Number). A missing or malformed
// blob reads as an empty queue and is overwritten by the next save. A failed
// storage read is not "missing": writes abort instead of replacing the blob.
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"beacon/internal/storage"
	"beacon/pkg/platform/sentinel"
)

// Store owns the read-modify-write cycle on the queue blob. All operations
// run under one mutex, so Enqueue and Trim never interleave within a process.
// Several processes sharing a storage key are not coordinated.
type Store struct {
	storage storage.Storage
	key     string
	logger  *slog.Logger

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a logger for corruption and storage diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithKey overrides the storage key. Intended for tests.
func WithKey(key string) Option {
	return func(s *Store) {
		s.key = key
	}
}

// NewStore creates a queue store over backend.
func NewStore(backend storage.Storage, opts ...Option) *Store {
	s := &Store{
		storage: backend,
		key:     storage.QueueKey,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the queued events in FIFO order. It never fails; unreadable
// state is reported as an empty queue.
func (s *Store) Load(ctx context.Context) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.load(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "queue read failed, treating as empty", "error", err)
		return []Event{}
	}
	return events
}

// Save overwrites the persisted queue with events.
func (s *Store) Save(ctx context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, events)
}

// Enqueue appends event to the persisted queue.
func (s *Store) Enqueue(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.load(ctx)
	if err != nil {
		return err
	}
	events = append(events, event)
	return s.save(ctx, events)
}

// Trim removes the first n events. Callers pass the length of a snapshot they
// fully delivered; events appended after the snapshot survive. When nothing
// was appended this is a single save of an empty queue.
func (s *Store) Trim(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.load(ctx)
	if err != nil {
		return err
	}
	if n >= len(events) {
		return s.save(ctx, nil)
	}
	return s.save(ctx, events[n:])
}

// Len returns the number of queued events.
func (s *Store) Len(ctx context.Context) int {
	return len(s.Load(ctx))
}

// load reads the queue. A missing or malformed blob is an empty queue; any
// other storage error is returned so callers do not overwrite data they could
// not see.
func (s *Store) load(ctx context.Context) ([]Event, error) {
	raw, err := s.storage.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return []Event{}, nil
		}
		return nil, fmt.Errorf("read queue: %w", err)
	}
	events, err := decode(raw)
	if err != nil {
		s.logger.WarnContext(ctx, "queue blob is malformed, treating as empty",
			"error", err,
			"bytes", len(raw),
		)
		return []Event{}, nil
	}
	return events, nil
}

func (s *Store) save(ctx context.Context, events []Event) error {
	if events == nil {
		events = []Event{}
	}
	raw, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("marshal queue: %w", err)
	}
	if err := s.storage.Set(ctx, s.key, string(raw)); err != nil {
		return fmt.Errorf("write queue: %w", err)
	}
	return nil
}

func decode(raw string) ([]Event, error) {
	if strings.TrimSpace(raw) == "" {
		return []Event{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var events []Event
	if err := dec.Decode(&events); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after queue")
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

// Encode renders events the way they are persisted. Exposed for tooling that
// prints or compares queue contents.
func Encode(events []Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if events == nil {
		events = []Event{}
	}
	if err := enc.Encode(events); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
