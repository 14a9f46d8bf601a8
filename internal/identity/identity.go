// Package identity owns the pseudonymous identifier attached to every
// delivered event. The identifier is created once per storage lifetime and is
// never rotated here.
package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"beacon/internal/storage"
	"beacon/pkg/platform/sentinel"
)

// Manager lazily creates and persists the identifier.
type Manager struct {
	store  storage.Storage
	key    string
	logger *slog.Logger
	newID  func() string

	mu     sync.Mutex
	cached string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets a logger for storage diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithGenerator replaces the UUID generator. Intended for tests.
func WithGenerator(fn func() string) Option {
	return func(m *Manager) {
		m.newID = fn
	}
}

// New creates a Manager over store.
func New(store storage.Storage, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		key:    storage.IdentityKey,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ensure returns the persisted identifier, generating and persisting one on
// first use. It never fails: storage errors are logged and the in-process
// value is still returned so repeated calls agree.
//
// A read error other than "not found" leaves storage untouched, since an
// identifier may already exist behind the failing backend and overwriting it
// would rotate the identity.
func (m *Manager) Ensure(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != "" {
		return m.cached
	}

	existing, err := m.store.Get(ctx, m.key)
	if err == nil && existing != "" {
		m.cached = existing
		return m.cached
	}

	id := m.newID()
	switch {
	case err == nil, errors.Is(err, sentinel.ErrNotFound):
		if setErr := m.store.Set(ctx, m.key, id); setErr != nil {
			m.logger.WarnContext(ctx, "failed to persist identity", "error", setErr)
		}
	default:
		m.logger.WarnContext(ctx, "identity lookup failed, using process-local identity", "error", err)
	}

	m.cached = id
	return m.cached
}
