// Package storage defines the persistent key-value contract the telemetry
// subsystem is built on. Backends live in subpackages: memory for tests and
// embedding, sqlite for a single device, redis and postgres for hosted agents.
package storage

//go:generate mockgen -source=storage.go -destination=mocks/mocks.go -package=mocks Storage

import "context"

// Fixed keys owned by the telemetry subsystem.
const (
	// QueueKey holds the whole serialized event queue.
	QueueKey = "cq_event_queue"
	// IdentityKey holds the pseudonymous identifier.
	IdentityKey = "cq_user_id"
)

// Storage is a string key-value store. Get returns sentinel.ErrNotFound
// (possibly wrapped) when the key has never been written. Set overwrites the
// value in full. No cross-key transactions or locking are provided.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}
