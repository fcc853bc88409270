// Package redis implements the cache backend on Redis.
//
// Every key the engine writes lives under <prefix>cachely:. Each entry is a
// hash at <prefix>cachely:entry:<id> with the fields payload, tags (a JSON
// array) and expires_at (unix microseconds, empty when the entry never
// expires). Tag membership lives in one set per tag and expirations in a
// sorted set scored by expiry time in milliseconds, so tag invalidation and
// the expiry sweep never scan the keyspace.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pixelvide/cachely/pkg/cache"
	goredis "github.com/redis/go-redis/v9"
)

// Name is the registry name of this engine.
const Name = "redis"

const (
	fieldPayload   = "payload"
	fieldTags      = "tags"
	fieldExpiresAt = "expires_at"
	scanBatch      = 500
)

// Config holds the base cache configuration plus the Redis connection.
type Config struct {
	cache.Config

	Addr     string
	Password string
	DB       int
}

// NewConfig resolves opts over the engine defaults.
func NewConfig(opts cache.Options) (Config, error) {
	base, err := cache.NewConfig(opts)
	if err != nil {
		return Config{}, err
	}
	extra := base.Extra
	addr := extra.String("addr", "")
	if addr == "" {
		addr = extra.String("host", "localhost") + ":" + extra.String("port", "6379")
	}
	return Config{
		Config:   base,
		Addr:     addr,
		Password: extra.String("password", ""),
		DB:       extra.Int("db", 0),
	}, nil
}

// Store is a cache backend on a Redis database.
type Store struct {
	cfg        Config
	client     *goredis.Client
	ownsClient bool
	now        func() time.Time
}

// New creates a store with its own client. go-redis dials lazily, so no
// connection is made until the first operation.
func New(opts cache.Options) (*Store, error) {
	cfg, err := NewConfig(opts)
	if err != nil {
		return nil, err
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Store{cfg: cfg, client: client, ownsClient: true, now: time.Now}, nil
}

// NewFromClient creates a store on an existing client.
func NewFromClient(opts cache.Options, client *goredis.Client) (*Store, error) {
	cfg, err := NewConfig(opts)
	if err != nil {
		return nil, err
	}
	return &Store{cfg: cfg, client: client, now: time.Now}, nil
}

// Client exposes the underlying client, e.g. for schedule locks.
func (s *Store) Client() *goredis.Client { return s.client }

func (s *Store) Config() cache.Config { return s.cfg.Config }

// namespace is the root of every key this store owns.
func (s *Store) namespace() string {
	return s.cfg.IDPrefix + "cachely:"
}

func (s *Store) entryKey(id string) string {
	return s.namespace() + "entry:" + id
}

func (s *Store) tagKey(tag string) string {
	return s.namespace() + "tag:" + tag
}

func (s *Store) expiryKey() string {
	return s.namespace() + "expiry"
}

func (s *Store) Save(ctx context.Context, id string, payload []byte, tags []string, opts ...cache.SaveOption) error {
	key := s.entryKey(id)
	if tags == nil {
		tags = []string{}
	}
	encodedTags, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	expiresAt := s.cfg.ExpiresAt(s.now(), opts...)
	expires := ""
	if expiresAt != nil {
		expires = strconv.FormatInt(expiresAt.UnixMicro(), 10)
	}

	// The previous entry's tag memberships are dropped so invalidating
	// its old tags cannot reach the replacement.
	oldTags, err := s.entryTags(ctx, key)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, tag := range oldTags {
			pipe.SRem(ctx, s.tagKey(tag), key)
		}
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fieldPayload, payload, fieldTags, string(encodedTags), fieldExpiresAt, expires)
		for _, tag := range tags {
			pipe.SAdd(ctx, s.tagKey(tag), key)
		}
		if expiresAt != nil {
			pipe.PExpireAt(ctx, key, *expiresAt)
			pipe.ZAdd(ctx, s.expiryKey(), goredis.Z{Score: float64(expiresAt.UnixMilli()), Member: key})
		} else {
			pipe.ZRem(ctx, s.expiryKey(), key)
		}
		return nil
	})
	return cache.Unavailable(err)
}

func (s *Store) Load(ctx context.Context, id string) ([]byte, bool, error) {
	key := s.entryKey(id)
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, false, cache.Unavailable(err)
	}
	payload, ok := fields[fieldPayload]
	if !ok {
		return nil, false, nil
	}
	now := s.now()
	if expiresAt, ok := parseExpiry(fields[fieldExpiresAt]); ok && expiresAt.Before(now) {
		if err := s.evictExpired(ctx, key, now); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return []byte(payload), true, nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	return s.deleteEntries(ctx, s.entryKey(id))
}

func (s *Store) InvalidateTags(ctx context.Context, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	tagKeys := make([]string, len(tags))
	for i, tag := range tags {
		tagKeys[i] = s.tagKey(tag)
	}
	candidates, err := s.client.SUnion(ctx, tagKeys...).Result()
	if err != nil {
		return cache.Unavailable(err)
	}

	var doomed []string
	for _, key := range candidates {
		current, err := s.entryTags(ctx, key)
		if err != nil {
			return err
		}
		entry := cache.Entry{Tags: current}
		if entry.HasAnyTag(tags) {
			doomed = append(doomed, key)
		}
	}
	if err := s.deleteEntries(ctx, doomed...); err != nil {
		return err
	}
	return cache.Unavailable(s.client.Del(ctx, tagKeys...).Err())
}

func (s *Store) InvalidateExpired(ctx context.Context) error {
	now := s.now()
	candidates, err := s.client.ZRangeByScore(ctx, s.expiryKey(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return cache.Unavailable(err)
	}
	for _, key := range candidates {
		if err := s.evictExpired(ctx, key, now); err != nil {
			return err
		}
	}
	return nil
}

// Clear deletes every key in the store's namespace. Keys outside
// <prefix>cachely:, such as schedule locks, are left alone.
func (s *Store) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, escapePattern(s.namespace())+"*", scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return cache.Unavailable(err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return cache.Unavailable(err)
	}
	if len(batch) > 0 {
		return cache.Unavailable(s.client.Del(ctx, batch...).Err())
	}
	return nil
}

// Close closes the client if the store created it.
func (s *Store) Close() error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Close()
}

func (s *Store) entryTags(ctx context.Context, key string) ([]string, error) {
	raw, err := s.client.HGet(ctx, key, fieldTags).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, cache.Unavailable(err)
	}
	return decodeTags(key, raw)
}

// evictExpired deletes key only while it is still expired at now. The key
// is watched, so an entry saved again in the meantime survives.
func (s *Store) evictExpired(ctx context.Context, key string, now time.Time) error {
	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		values, err := tx.HMGet(ctx, key, fieldTags, fieldExpiresAt).Result()
		if err != nil {
			return err
		}
		rawTags, exists := values[0].(string)
		rawExpiry, _ := values[1].(string)

		if !exists {
			// Expired by Redis itself; only the index entries are left.
			_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.ZRem(ctx, s.expiryKey(), key)
				return nil
			})
			return err
		}
		if expiresAt, ok := parseExpiry(rawExpiry); !ok || !expiresAt.Before(now) {
			return nil
		}
		tags, err := decodeTags(key, rawTags)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			s.queueDelete(ctx, pipe, key, tags)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, goredis.TxFailedErr) {
		return nil
	}
	return cache.Unavailable(err)
}

// deleteEntries removes the entry hashes together with their tag and
// expiry index memberships.
func (s *Store) deleteEntries(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	tagsByKey := make(map[string][]string, len(keys))
	for _, key := range keys {
		tags, err := s.entryTags(ctx, key)
		if err != nil {
			return err
		}
		tagsByKey[key] = tags
	}
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for key, tags := range tagsByKey {
			s.queueDelete(ctx, pipe, key, tags)
		}
		return nil
	})
	return cache.Unavailable(err)
}

func (s *Store) queueDelete(ctx context.Context, pipe goredis.Pipeliner, key string, tags []string) {
	for _, tag := range tags {
		pipe.SRem(ctx, s.tagKey(tag), key)
	}
	pipe.ZRem(ctx, s.expiryKey(), key)
	pipe.Del(ctx, key)
}

func decodeTags(key, raw string) ([]string, error) {
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, cache.Unavailable(fmt.Errorf("decode tags of %s: %w", key, err))
	}
	return tags, nil
}

func parseExpiry(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	micros, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMicro(micros), true
}

// escapePattern quotes the glob metacharacters of a SCAN MATCH pattern.
func escapePattern(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
