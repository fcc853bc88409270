// Package database implements the cache backend on a SQL table.
//
// Entries live in <table>(id, payload, expires_at) and their tags in
// <table>_tags(cache_id, tag). expires_at holds unix microseconds and is NULL
// for entries that never expire. MySQL and PostgreSQL are supported.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pixelvide/cachely/pkg/cache"
	"github.com/pixelvide/cachely/pkg/config"
	dbconn "github.com/pixelvide/cachely/pkg/database"
)

// Name is the registry name of this engine.
const Name = "database"

// Config holds the base cache configuration plus the SQL connection.
type Config struct {
	cache.Config

	Database config.DatabaseConfig
	// CreateSchema creates the tables and indexes before the first operation.
	CreateSchema bool
}

// NewConfig resolves opts over the engine defaults.
func NewConfig(opts cache.Options) (Config, error) {
	base, err := cache.NewConfig(opts)
	if err != nil {
		return Config{}, err
	}
	extra := base.Extra
	return Config{
		Config: base,
		Database: config.DatabaseConfig{
			Connection: extra.String("connection", "mysql"),
			DSN:        extra.String("dsn", ""),
			Host:       extra.String("host", "127.0.0.1"),
			Port:       extra.String("port", "3306"),
			Database:   extra.String("database", "cachely"),
			Username:   extra.String("username", "root"),
			Password:   extra.String("password", ""),
			Table:      extra.String("table", "cache"),
		},
		CreateSchema: extra.Bool("create_schema", true),
	}, nil
}

// Store is a cache backend on two SQL tables.
type Store struct {
	cfg       Config
	table     string
	tagsTable string
	postgres  bool

	mu     sync.Mutex
	db     *sql.DB
	ownsDB bool

	schemaMu sync.Mutex
	migrated bool

	now func() time.Time
}

// New creates a store that opens its connection on first use.
func New(opts cache.Options) (*Store, error) {
	cfg, err := NewConfig(opts)
	if err != nil {
		return nil, err
	}
	return newStore(cfg, nil)
}

// NewFromDB creates a store on an existing connection pool.
func NewFromDB(opts cache.Options, db *sql.DB) (*Store, error) {
	cfg, err := NewConfig(opts)
	if err != nil {
		return nil, err
	}
	return newStore(cfg, db)
}

func newStore(cfg Config, db *sql.DB) (*Store, error) {
	driverName, err := dbconn.DriverName(cfg.Database.Connection)
	if err != nil {
		return nil, err
	}
	table := cfg.Database.Table
	if table == "" {
		table = "cache"
	}
	return &Store{
		cfg:       cfg,
		table:     table,
		tagsTable: table + "_tags",
		postgres:  driverName == "postgres",
		db:        db,
		ownsDB:    db == nil,
		now:       time.Now,
	}, nil
}

func (s *Store) Config() cache.Config { return s.cfg.Config }

// conn returns the connection pool with the schema in place.
func (s *Store) conn(ctx context.Context) (*sql.DB, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.migrate(ctx, db); err != nil {
		return nil, err
	}
	return db, nil
}

func (s *Store) open(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}
	db, err := dbconn.NewFactory().Connect(ctx, s.cfg.Database)
	if err != nil {
		return nil, cache.Unavailable(err)
	}
	s.db = db
	return db, nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) schema() []string {
	if s.postgres {
		return []string{
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id VARCHAR(255) PRIMARY KEY, payload BYTEA NOT NULL, expires_at BIGINT NULL)", s.table),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_expires_at_index ON %s (expires_at DESC)", s.table, s.table),
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (cache_id VARCHAR(255) NOT NULL, tag VARCHAR(255) NOT NULL, PRIMARY KEY (cache_id, tag))", s.tagsTable),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_tag_index ON %s (tag)", s.tagsTable, s.tagsTable),
		}
	}
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id VARCHAR(255) PRIMARY KEY, payload LONGBLOB NOT NULL, expires_at BIGINT NULL, INDEX %s_expires_at_index (expires_at DESC))", s.table, s.table),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (cache_id VARCHAR(255) NOT NULL, tag VARCHAR(255) NOT NULL, PRIMARY KEY (cache_id, tag), INDEX %s_tag_index (tag))", s.tagsTable, s.tagsTable),
	}
}

func (s *Store) migrate(ctx context.Context, db *sql.DB) error {
	if !s.cfg.CreateSchema {
		return nil
	}
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.migrated {
		return nil
	}
	for _, stmt := range s.schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return cache.Unavailable(err)
		}
	}
	s.migrated = true
	return nil
}

func (s *Store) Save(ctx context.Context, id string, payload []byte, tags []string, opts ...cache.SaveOption) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	key := s.cfg.Key(id)
	var expires sql.NullInt64
	if at := s.cfg.ExpiresAt(s.now(), opts...); at != nil {
		expires = sql.NullInt64{Int64: at.UnixMicro(), Valid: true}
	}
	if payload == nil {
		payload = []byte{}
	}

	return s.inTx(ctx, db, func(tx *sql.Tx) error {
		if err := s.deleteEntry(ctx, tx, key); err != nil {
			return err
		}
		insert := s.rebind(fmt.Sprintf("INSERT INTO %s (id, payload, expires_at) VALUES (?, ?, ?)", s.table))
		if _, err := tx.ExecContext(ctx, insert, key, payload, expires); err != nil {
			return err
		}
		insertTag := s.rebind(fmt.Sprintf("INSERT INTO %s (cache_id, tag) VALUES (?, ?)", s.tagsTable))
		for _, tag := range uniqueTags(tags) {
			if _, err := tx.ExecContext(ctx, insertTag, key, tag); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Load(ctx context.Context, id string) ([]byte, bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, false, err
	}
	key := s.cfg.Key(id)
	query := s.rebind(fmt.Sprintf("SELECT payload, expires_at FROM %s WHERE id = ?", s.table))

	var payload []byte
	var expires sql.NullInt64
	err = db.QueryRowContext(ctx, query, key).Scan(&payload, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, cache.Unavailable(err)
	}
	if now := s.now(); expires.Valid && time.UnixMicro(expires.Int64).Before(now) {
		if err := s.inTx(ctx, db, func(tx *sql.Tx) error { return s.evictExpired(ctx, tx, key, now) }); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return payload, true, nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	key := s.cfg.Key(id)
	return s.inTx(ctx, db, func(tx *sql.Tx) error { return s.deleteEntry(ctx, tx, key) })
}

func (s *Store) InvalidateTags(ctx context.Context, tags []string) error {
	tags = uniqueTags(tags)
	if len(tags) == 0 {
		return nil
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(tags)), ", ")
	args := make([]any, len(tags))
	for i, tag := range tags {
		args[i] = tag
	}
	query := s.rebind(fmt.Sprintf("DELETE FROM %s WHERE id IN (SELECT cache_id FROM %s WHERE tag IN (%s))",
		s.table, s.tagsTable, placeholders))

	return s.inTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		return s.deleteOrphanTags(ctx, tx)
	})
}

func (s *Store) InvalidateExpired(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	query := s.rebind(fmt.Sprintf("DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at < ?", s.table))
	now := s.now().UnixMicro()

	return s.inTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, now); err != nil {
			return err
		}
		return s.deleteOrphanTags(ctx, tx)
	})
}

func (s *Store) Clear(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return s.inTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.tagsTable)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.table))
		return err
	})
}

// Close closes the connection pool if the store opened it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ownsDB || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) deleteEntry(ctx context.Context, tx *sql.Tx, key string) error {
	if _, err := tx.ExecContext(ctx, s.rebind(fmt.Sprintf("DELETE FROM %s WHERE cache_id = ?", s.tagsTable)), key); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, s.rebind(fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.table)), key)
	return err
}

// evictExpired deletes key only while it is still expired at now, so a
// value saved again since it was read survives.
func (s *Store) evictExpired(ctx context.Context, tx *sql.Tx, key string, now time.Time) error {
	query := s.rebind(fmt.Sprintf("DELETE FROM %s WHERE id = ? AND expires_at < ?", s.table))
	res, err := tx.ExecContext(ctx, query, key, now.UnixMicro())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return err
	}
	_, err = tx.ExecContext(ctx, s.rebind(fmt.Sprintf("DELETE FROM %s WHERE cache_id = ?", s.tagsTable)), key)
	return err
}

func (s *Store) deleteOrphanTags(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE cache_id NOT IN (SELECT id FROM %s)", s.tagsTable, s.table))
	return err
}

func (s *Store) inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return cache.Unavailable(err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return cache.Unavailable(err)
	}
	return cache.Unavailable(tx.Commit())
}

func uniqueTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
