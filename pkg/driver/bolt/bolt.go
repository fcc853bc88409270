// Package bolt implements the cache backend on a bbolt database file.
//
// Entries are JSON records in a single bucket keyed by id. Tag invalidation
// and the expiry sweep walk the bucket, which suits the local, moderately
// sized caches this engine is meant for.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/pixelvide/cachely/pkg/cache"
	bolt "go.etcd.io/bbolt"
)

// Name is the registry name of this engine.
const Name = "bolt"

// Config holds the base cache configuration plus the database file.
type Config struct {
	cache.Config

	Path        string
	Bucket      string
	OpenTimeout time.Duration
}

// NewConfig resolves opts over the engine defaults.
func NewConfig(opts cache.Options) (Config, error) {
	base, err := cache.NewConfig(opts)
	if err != nil {
		return Config{}, err
	}
	extra := base.Extra
	return Config{
		Config:      base,
		Path:        extra.String("path", "cachely.db"),
		Bucket:      extra.String("bucket", "cache"),
		OpenTimeout: extra.Duration("open_timeout", time.Second),
	}, nil
}

type record struct {
	Payload   []byte     `json:"payload"`
	Tags      []string   `json:"tags"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (r *record) entry(id string) *cache.Entry {
	return &cache.Entry{ID: id, Payload: r.Payload, Tags: r.Tags, ExpiresAt: r.ExpiresAt}
}

// Store is a cache backend on one bbolt bucket. The file is opened on first
// use and stays open until Close.
type Store struct {
	cfg    Config
	bucket []byte

	mu sync.Mutex
	db *bolt.DB

	now func() time.Time
}

// New creates a store for the file named in opts.
func New(opts cache.Options) (*Store, error) {
	cfg, err := NewConfig(opts)
	if err != nil {
		return nil, err
	}
	return &Store{cfg: cfg, bucket: []byte(cfg.Bucket), now: time.Now}, nil
}

func (s *Store) Config() cache.Config { return s.cfg.Config }

func (s *Store) open() (*bolt.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}
	db, err := bolt.Open(s.cfg.Path, 0o600, &bolt.Options{Timeout: s.cfg.OpenTimeout})
	if err != nil {
		return nil, cache.Unavailable(err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, cache.Unavailable(err)
	}
	s.db = db
	return db, nil
}

func (s *Store) Save(_ context.Context, id string, payload []byte, tags []string, opts ...cache.SaveOption) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	buf, err := json.Marshal(record{
		Payload:   payload,
		Tags:      tags,
		ExpiresAt: s.cfg.ExpiresAt(s.now(), opts...),
	})
	if err != nil {
		return err
	}
	return cache.Unavailable(db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(s.cfg.Key(id)), buf)
	}))
}

func (s *Store) Load(_ context.Context, id string) ([]byte, bool, error) {
	db, err := s.open()
	if err != nil {
		return nil, false, err
	}
	key := []byte(s.cfg.Key(id))
	now := s.now()

	var rec *record
	if err := db.View(func(tx *bolt.Tx) error {
		rec, err = decode(tx.Bucket(s.bucket).Get(key))
		return err
	}); err != nil {
		return nil, false, cache.Unavailable(err)
	}
	if rec == nil {
		return nil, false, nil
	}
	if rec.entry(string(key)).Expired(now) {
		err := db.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket(s.bucket)
			// Re-read inside the write transaction so a concurrent
			// replacement is not evicted.
			current, err := decode(b.Get(key))
			if err != nil || current == nil || !current.entry(string(key)).Expired(now) {
				return err
			}
			return b.Delete(key)
		})
		return nil, false, cache.Unavailable(err)
	}
	return rec.Payload, true, nil
}

func (s *Store) Remove(_ context.Context, id string) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	return cache.Unavailable(db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(s.cfg.Key(id)))
	}))
}

func (s *Store) InvalidateTags(_ context.Context, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	return s.deleteWhere(func(e *cache.Entry) bool { return e.HasAnyTag(tags) })
}

func (s *Store) InvalidateExpired(_ context.Context) error {
	now := s.now()
	return s.deleteWhere(func(e *cache.Entry) bool { return e.Expired(now) })
}

// Clear drops and recreates the bucket.
func (s *Store) Clear(_ context.Context) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	return cache.Unavailable(db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(s.bucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(s.bucket)
		return err
	}))
}

// Close closes the database file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) deleteWhere(match func(e *cache.Entry) bool) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	return cache.Unavailable(db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		var doomed [][]byte
		err := b.ForEach(func(k, v []byte) error {
			rec, err := decode(v)
			if err != nil {
				return err
			}
			if rec != nil && match(rec.entry(string(k))) {
				doomed = append(doomed, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	}))
}

func decode(v []byte) (*record, error) {
	if v == nil {
		return nil, nil
	}
	var rec record
	if err := json.Unmarshal(v, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
