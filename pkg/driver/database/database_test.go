package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pixelvide/cachely/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func q(query string) string {
	return regexp.QuoteMeta(query)
}

func newMockStore(t *testing.T, opts cache.Options) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewFromDB(opts, db)
	require.NoError(t, err)
	return store, mock
}

func expectSchema(mock sqlmock.Sqlmock, table string) {
	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS " + table + " (")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS " + table + "_tags (")).WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestStore_Save(t *testing.T) {
	store, mock := newMockStore(t, nil)
	ctx := context.Background()

	expectSchema(mock, "cache")

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(q("DELETE FROM cache_tags WHERE cache_id = ?")).WithArgs("greeting").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(q("DELETE FROM cache WHERE id = ?")).WithArgs("greeting").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(q("INSERT INTO cache (id, payload, expires_at) VALUES (?, ?, ?)")).
			WithArgs("greeting", []byte("hello"), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(q("INSERT INTO cache_tags (cache_id, tag) VALUES (?, ?)")).
			WithArgs("greeting", "lang:en").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	// The schema is created once; duplicate tags collapse to one row.
	require.NoError(t, store.Save(ctx, "greeting", []byte("hello"), []string{"lang:en"}, cache.WithTTL(time.Second)))
	require.NoError(t, store.Save(ctx, "greeting", []byte("hello"), []string{"lang:en", "lang:en"}))

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestStore_Load(t *testing.T) {
	store, mock := newMockStore(t, nil)
	ctx := context.Background()

	expectSchema(mock, "cache")
	mock.ExpectQuery(q("SELECT payload, expires_at FROM cache WHERE id = ?")).
		WithArgs("greeting").
		WillReturnRows(sqlmock.NewRows([]string{"payload", "expires_at"}).
			AddRow([]byte("hello"), time.Now().Add(time.Minute).UnixMicro()))
	mock.ExpectQuery(q("SELECT payload, expires_at FROM cache WHERE id = ?")).
		WithArgs("forever").
		WillReturnRows(sqlmock.NewRows([]string{"payload", "expires_at"}).AddRow([]byte("v"), nil))
	mock.ExpectQuery(q("SELECT payload, expires_at FROM cache WHERE id = ?")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"payload", "expires_at"}))

	payload, found, err := store.Load(ctx, "greeting")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), payload)

	payload, found, err = store.Load(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), payload)

	_, found, err = store.Load(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestStore_LoadEvictsExpired(t *testing.T) {
	store, mock := newMockStore(t, nil)
	now := time.Now()
	store.now = func() time.Time { return now }

	expectSchema(mock, "cache")
	mock.ExpectQuery(q("SELECT payload, expires_at FROM cache WHERE id = ?")).
		WithArgs("greeting").
		WillReturnRows(sqlmock.NewRows([]string{"payload", "expires_at"}).
			AddRow([]byte("hello"), now.Add(-time.Second).UnixMicro()))
	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM cache WHERE id = ? AND expires_at < ?")).
		WithArgs("greeting", now.UnixMicro()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("DELETE FROM cache_tags WHERE cache_id = ?")).WithArgs("greeting").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, found, err := store.Load(context.Background(), "greeting")
	require.NoError(t, err)
	assert.False(t, found)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestStore_LoadKeepsEntrySavedAgain(t *testing.T) {
	store, mock := newMockStore(t, cache.Options{"create_schema": false})
	now := time.Now()
	store.now = func() time.Time { return now }

	mock.ExpectQuery(q("SELECT payload, expires_at FROM cache WHERE id = ?")).
		WithArgs("greeting").
		WillReturnRows(sqlmock.NewRows([]string{"payload", "expires_at"}).
			AddRow([]byte("hello"), now.Add(-time.Second).UnixMicro()))
	// Another writer replaced the row between the read and the eviction.
	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM cache WHERE id = ? AND expires_at < ?")).
		WithArgs("greeting", now.UnixMicro()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	_, found, err := store.Load(context.Background(), "greeting")
	require.NoError(t, err)
	assert.False(t, found)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestStore_FreshStoreCreatesSchemaOnRead(t *testing.T) {
	store, mock := newMockStore(t, nil)
	ctx := context.Background()

	expectSchema(mock, "cache")
	mock.ExpectQuery(q("SELECT payload, expires_at FROM cache WHERE id = ?")).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"payload", "expires_at"}))
	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM cache WHERE expires_at IS NOT NULL AND expires_at < ?")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("DELETE FROM cache_tags WHERE cache_id NOT IN (SELECT id FROM cache)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	_, found, err := store.Load(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, store.InvalidateExpired(ctx))

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestStore_LongTTLRoundTrip(t *testing.T) {
	store, mock := newMockStore(t, cache.Options{"create_schema": false})
	now := time.Now()
	store.now = func() time.Time { return now }
	ttl := 250 * 365 * 24 * time.Hour
	expires := now.Add(ttl).UnixMicro()

	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM cache_tags WHERE cache_id = ?")).WithArgs("k").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("DELETE FROM cache WHERE id = ?")).WithArgs("k").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("INSERT INTO cache (id, payload, expires_at) VALUES (?, ?, ?)")).
		WithArgs("k", []byte("v"), expires).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(q("SELECT payload, expires_at FROM cache WHERE id = ?")).
		WithArgs("k").
		WillReturnRows(sqlmock.NewRows([]string{"payload", "expires_at"}).AddRow([]byte("v"), expires))

	require.NoError(t, store.Save(context.Background(), "k", []byte("v"), nil, cache.WithTTL(ttl)))
	assert.Positive(t, expires)

	payload, found, err := store.Load(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), payload)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestStore_InvalidateTags(t *testing.T) {
	store, mock := newMockStore(t, nil)

	expectSchema(mock, "cache")
	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM cache WHERE id IN (SELECT cache_id FROM cache_tags WHERE tag IN (?, ?))")).
		WithArgs("x", "y").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(q("DELETE FROM cache_tags WHERE cache_id NOT IN (SELECT id FROM cache)")).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	require.NoError(t, store.InvalidateTags(context.Background(), []string{"x", "y", "x"}))
	require.NoError(t, store.InvalidateTags(context.Background(), nil))

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestStore_InvalidateExpired(t *testing.T) {
	store, mock := newMockStore(t, nil)
	now := time.Now()
	store.now = func() time.Time { return now }

	expectSchema(mock, "cache")
	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM cache WHERE expires_at IS NOT NULL AND expires_at < ?")).
		WithArgs(now.UnixMicro()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("DELETE FROM cache_tags WHERE cache_id NOT IN (SELECT id FROM cache)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, store.InvalidateExpired(context.Background()))

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestStore_Clear(t *testing.T) {
	store, mock := newMockStore(t, cache.Options{"table": "app_cache"})

	expectSchema(mock, "app_cache")
	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM app_cache_tags")).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(q("DELETE FROM app_cache")).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, store.Clear(context.Background()))

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestStore_PostgresPlaceholders(t *testing.T) {
	store, mock := newMockStore(t, cache.Options{
		"connection":          "pgsql",
		"create_schema":       false,
		cache.OptionIDPrefix: "app:",
	})

	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM cache_tags WHERE cache_id = $1")).WithArgs("app:a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("DELETE FROM cache WHERE id = $1")).WithArgs("app:a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("INSERT INTO cache (id, payload, expires_at) VALUES ($1, $2, $3)")).
		WithArgs("app:a", []byte("v"), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Save(context.Background(), "a", []byte("v"), nil, cache.WithoutExpiration()))

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestStore_StorageUnavailable(t *testing.T) {
	store, mock := newMockStore(t, nil)

	// The schema is retried after a failure.
	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS cache (")).WillReturnError(errors.New("connection refused"))
	expectSchema(mock, "cache")
	mock.ExpectQuery(q("SELECT payload, expires_at FROM cache WHERE id = ?")).
		WillReturnError(errors.New("connection refused"))
	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, _, err := store.Load(context.Background(), "a")
	assert.ErrorIs(t, err, cache.ErrStorageUnavailable)

	_, _, err = store.Load(context.Background(), "a")
	assert.ErrorIs(t, err, cache.ErrStorageUnavailable)

	err = store.Remove(context.Background(), "a")
	assert.ErrorIs(t, err, cache.ErrStorageUnavailable)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestStore_FailedWriteRollsBack(t *testing.T) {
	store, mock := newMockStore(t, cache.Options{"create_schema": "false"})

	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM cache_tags WHERE cache_id = ?")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("DELETE FROM cache WHERE id = ?")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("INSERT INTO cache")).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.Save(context.Background(), "a", []byte("v"), nil)
	assert.ErrorIs(t, err, cache.ErrStorageUnavailable)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestNewConfig(t *testing.T) {
	cfg, err := NewConfig(cache.Options{"connection": "pgsql", "port": 5432})
	require.NoError(t, err)
	assert.Equal(t, "pgsql", cfg.Database.Connection)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "cache", cfg.Database.Table)
	assert.True(t, cfg.CreateSchema)

	_, err = New(cache.Options{"connection": "sqlsrv"})
	assert.Error(t, err)
}
