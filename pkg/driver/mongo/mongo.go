// Package mongo implements the cache backend on a MongoDB collection.
//
// Every entry is one document:
//
//	{_id: <id>, payload: <binary>, tags: [<tag>...], expires_at: <date|null>}
//
// The collection carries an index on tags and a descending index on
// expires_at so tag invalidation and expiry sweeps do not scan.
package mongo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pixelvide/cachely/pkg/cache"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Name is the registry name of this engine.
const Name = "mongo"

type document struct {
	ID        string     `bson:"_id"`
	Payload   []byte     `bson:"payload"`
	Tags      []string   `bson:"tags"`
	ExpiresAt *time.Time `bson:"expires_at"`
}

// Store is a cache backend on a single MongoDB collection. The client and
// collection handles are created on first use and kept until Close.
type Store struct {
	cfg Config

	mu         sync.Mutex
	client     *mongo.Client
	coll       *mongo.Collection
	ownsClient bool

	indexMu sync.Mutex
	indexed bool

	now func() time.Time
}

// New creates a store that connects lazily using opts.
func New(opts cache.Options) (*Store, error) {
	cfg, err := NewConfig(opts)
	if err != nil {
		return nil, err
	}
	return &Store{cfg: cfg, ownsClient: true, now: time.Now}, nil
}

// NewFromCollection creates a store on an existing collection. The caller
// keeps ownership of the collection's client.
func NewFromCollection(opts cache.Options, coll *mongo.Collection) (*Store, error) {
	cfg, err := NewConfig(opts)
	if err != nil {
		return nil, err
	}
	cfg.Database = coll.Database().Name()
	cfg.Collection = coll.Name()
	return &Store{cfg: cfg, client: coll.Database().Client(), coll: coll, now: time.Now}, nil
}

func (s *Store) Config() cache.Config { return s.cfg.Config }

func (s *Store) collection(ctx context.Context) (*mongo.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coll != nil {
		return s.coll, nil
	}
	client, err := mongo.Connect(ctx, s.cfg.ClientOptions())
	if err != nil {
		return nil, cache.Unavailable(err)
	}
	s.client = client
	s.coll = client.Database(s.cfg.Database).Collection(s.cfg.Collection)
	return s.coll, nil
}

func (s *Store) ensureIndexes(ctx context.Context, coll *mongo.Collection) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	if s.indexed {
		return nil
	}
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tags", Value: 1}}},
		{Keys: bson.D{{Key: "expires_at", Value: -1}}},
	})
	if err != nil {
		return cache.Unavailable(err)
	}
	s.indexed = true
	return nil
}

func (s *Store) Save(ctx context.Context, id string, payload []byte, tags []string, opts ...cache.SaveOption) error {
	coll, err := s.collection(ctx)
	if err != nil {
		return err
	}
	if err := s.ensureIndexes(ctx, coll); err != nil {
		return err
	}
	if tags == nil {
		tags = []string{}
	}
	doc := document{
		ID:        s.cfg.Key(id),
		Payload:   payload,
		Tags:      tags,
		ExpiresAt: s.cfg.ExpiresAt(s.now(), opts...),
	}
	_, err = coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return cache.Unavailable(err)
}

func (s *Store) Load(ctx context.Context, id string) ([]byte, bool, error) {
	coll, err := s.collection(ctx)
	if err != nil {
		return nil, false, err
	}
	var doc document
	err = coll.FindOne(ctx, bson.M{"_id": s.cfg.Key(id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, cache.Unavailable(err)
	}
	if now := s.now(); doc.ExpiresAt != nil && doc.ExpiresAt.Before(now) {
		// Only the expired version is deleted; a concurrent Save wins.
		filter := bson.M{"_id": doc.ID, "expires_at": bson.M{"$lt": now}}
		if _, err := coll.DeleteOne(ctx, filter); err != nil {
			return nil, false, cache.Unavailable(err)
		}
		return nil, false, nil
	}
	return doc.Payload, true, nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	coll, err := s.collection(ctx)
	if err != nil {
		return err
	}
	_, err = coll.DeleteOne(ctx, bson.M{"_id": s.cfg.Key(id)})
	return cache.Unavailable(err)
}

func (s *Store) InvalidateTags(ctx context.Context, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	coll, err := s.collection(ctx)
	if err != nil {
		return err
	}
	_, err = coll.DeleteMany(ctx, bson.M{"tags": bson.M{"$in": tags}})
	return cache.Unavailable(err)
}

func (s *Store) InvalidateExpired(ctx context.Context) error {
	coll, err := s.collection(ctx)
	if err != nil {
		return err
	}
	_, err = coll.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": s.now()}})
	return cache.Unavailable(err)
}

// Clear drops the whole collection. Indexes are recreated by the next Save.
func (s *Store) Clear(ctx context.Context) error {
	coll, err := s.collection(ctx)
	if err != nil {
		return err
	}
	if err := coll.Drop(ctx); err != nil {
		return cache.Unavailable(err)
	}
	s.indexMu.Lock()
	s.indexed = false
	s.indexMu.Unlock()
	return nil
}

// Close disconnects the client if the store created it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ownsClient || s.client == nil {
		return nil
	}
	err := s.client.Disconnect(context.Background())
	s.client = nil
	s.coll = nil
	return err
}
