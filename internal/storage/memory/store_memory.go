package memory

import (
	"context"
	"fmt"
	"sync"

	"beacon/pkg/platform/sentinel"
)

// InMemoryStore keeps values in a map. Contents are lost with the process, so
// it only suits tests and short-lived embedding.
type InMemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func New() *InMemoryStore {
	return &InMemoryStore{values: make(map[string]string)}
}

func (s *InMemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return "", fmt.Errorf("key %q: %w", key, sentinel.ErrNotFound)
	}
	return v, nil
}

func (s *InMemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Clear drops every key.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
}
