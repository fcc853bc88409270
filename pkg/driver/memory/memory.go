// Package memory implements a process-local cache backend. It shares no
// state between processes and is mostly useful in tests and for hosts that
// have no external store configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pixelvide/cachely/pkg/cache"
)

// Name is the registry name of this engine.
const Name = "memory"

// Store keeps entries in a map guarded by a RWMutex.
type Store struct {
	cfg     cache.Config
	mu      sync.RWMutex
	entries map[string]*cache.Entry
	now     func() time.Time
}

// New creates an empty store.
func New(opts cache.Options) (*Store, error) {
	cfg, err := cache.NewConfig(opts)
	if err != nil {
		return nil, err
	}
	return &Store{
		cfg:     cfg,
		entries: make(map[string]*cache.Entry),
		now:     time.Now,
	}, nil
}

func (s *Store) Config() cache.Config { return s.cfg }

func (s *Store) Save(_ context.Context, id string, payload []byte, tags []string, opts ...cache.SaveOption) error {
	key := s.cfg.Key(id)
	entry := &cache.Entry{
		ID:        key,
		Payload:   append([]byte(nil), payload...),
		Tags:      append([]string(nil), tags...),
		ExpiresAt: s.cfg.ExpiresAt(s.now(), opts...),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return nil
}

func (s *Store) Load(_ context.Context, id string) ([]byte, bool, error) {
	key := s.cfg.Key(id)
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if entry.Expired(s.now()) {
		s.mu.Lock()
		// Only evict if nobody replaced it in between.
		if s.entries[key] == entry {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), entry.Payload...), true, nil
}

func (s *Store) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, s.cfg.Key(id))
	return nil
}

func (s *Store) InvalidateTags(_ context.Context, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		if entry.HasAnyTag(tags) {
			delete(s.entries, key)
		}
	}
	return nil
}

func (s *Store) InvalidateExpired(_ context.Context) error {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, key)
		}
	}
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*cache.Entry)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) Close() error { return nil }
