// Package connectivity mirrors the host's online/offline signal and notifies
// subscribers when the device comes back online.
//
// The Monitor never decides connectivity itself. Host adapters (FileSignal,
// Prober, the agent's HTTP endpoint) report what they observe through Set.
package connectivity

import (
	"io"
	"log/slog"
	"sync"
)

// Monitor holds the last reported connectivity state.
type Monitor struct {
	logger *slog.Logger

	mu     sync.Mutex
	online bool
	nextID int
	subs   []subscription
}

type subscription struct {
	id int
	fn func()
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets a logger for transition diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// NewMonitor creates a Monitor starting in the given state.
func NewMonitor(online bool, opts ...Option) *Monitor {
	m := &Monitor{
		online: online,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Online reports the last known state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records a new state. An offline->online transition calls every
// subscriber exactly once, after the lock is released and in subscription
// order. Reporting the current state again is a no-op.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	var notify []func()
	if online {
		notify = make([]func(), 0, len(m.subs))
		for _, s := range m.subs {
			notify = append(notify, s.fn)
		}
	}
	m.mu.Unlock()

	m.logger.Info("connectivity changed", "online", online)
	for _, fn := range notify {
		fn()
	}
}

// Subscribe registers fn for "became online" transitions. The returned
// function removes the subscription.
func (m *Monitor) Subscribe(fn func()) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.subs = append(m.subs, subscription{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				return
			}
		}
	}
}
