package cache

import (
	"context"
	"time"
)

// Backend is the contract every cache storage engine satisfies.
//
// Payloads are opaque: engines store and return the bytes they are given.
// Deletions succeed when nothing matches, and a missing or expired entry is
// reported by Load as found == false rather than as an error.
type Backend interface {
	// Save stores payload under id, fully replacing any previous entry.
	Save(ctx context.Context, id string, payload []byte, tags []string, opts ...SaveOption) error
	// Load returns the payload stored under id. Expired entries are deleted
	// and reported as not found.
	Load(ctx context.Context, id string) ([]byte, bool, error)
	// Remove deletes the entry stored under id.
	Remove(ctx context.Context, id string) error
	// InvalidateTags deletes every entry carrying at least one of tags.
	InvalidateTags(ctx context.Context, tags []string) error
	// InvalidateExpired deletes every entry whose expiration is before now.
	InvalidateExpired(ctx context.Context) error
	// Clear deletes every entry in the backend's scope.
	Clear(ctx context.Context) error
	// Config returns the resolved base configuration.
	Config() Config
	// Close releases the connections held by the backend.
	Close() error
}

// Entry is a single cached item as engines persist it.
type Entry struct {
	ID        string
	Payload   []byte
	Tags      []string
	ExpiresAt *time.Time
}

// Expired reports whether the entry expired strictly before now.
func (e *Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && e.ExpiresAt.Before(now)
}

// HasAnyTag reports whether the entry carries at least one of tags.
func (e *Entry) HasAnyTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range e.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}
