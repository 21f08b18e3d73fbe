// Package store persists per-user progression records. Two implementations
// share one interface: a JSON file store (the default) and a PostgreSQL
// store for deployments that already run a database.
package store

import "levelbot/internal/models"

// Store is the durable mapping from user id to progression record.
// Get and All return copies; callers mutate and write back through Put.
// Per-user read-modify-write serialization is the caller's responsibility
// (see progression.Service); the store only guarantees that individual
// operations are safe under concurrent use.
type Store interface {
	// Get returns the record for a user, and whether one exists.
	Get(userID string) (models.UserProgression, bool)

	// Put replaces the record for a user and persists it.
	Put(userID string, rec models.UserProgression) error

	// All returns a copy of every record keyed by user id.
	All() map[string]models.UserProgression

	// Close releases underlying resources.
	Close() error
}
