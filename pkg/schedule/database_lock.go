package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"hash/crc32"
	"sync"
	"time"

	"github.com/pixelvide/cachely/pkg/database"
)

// mysqlMaxLockName is the longest name GET_LOCK accepts.
const mysqlMaxLockName = 64

// DatabaseLockProvider implements LockProvider using SQL database locks:
// GET_LOCK on MySQL, session advisory locks on Postgres. Both are held by
// the connection, so each lock pins one connection until released.
type DatabaseLockProvider struct {
	db     *sql.DB
	driver string // "mysql" or "postgres"
	prefix string

	mu    sync.Mutex
	conns map[string]*sql.Conn
}

// NewDatabaseLockProvider creates a new database lock provider for a
// Laravel style connection name (mysql, pgsql).
func NewDatabaseLockProvider(db *sql.DB, connection, prefix string) (*DatabaseLockProvider, error) {
	driver, err := database.DriverName(connection)
	if err != nil {
		return nil, err
	}
	return &DatabaseLockProvider{
		db:     db,
		driver: driver,
		prefix: prefix,
		conns:  make(map[string]*sql.Conn),
	}, nil
}

// GetLock attempts to acquire a lock. Duration is not enforced by the
// database; the lock lives until ReleaseLock or the connection drops.
func (d *DatabaseLockProvider) GetLock(ctx context.Context, name string, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, held := d.conns[name]; held {
		return false, nil
	}

	conn, err := d.db.Conn(ctx)
	if err != nil {
		return false, err
	}

	var acquired bool
	if d.driver == "postgres" {
		acquired, err = d.getPostgresLock(ctx, conn, name)
	} else {
		acquired, err = d.getMySQLLock(ctx, conn, name)
	}
	if err != nil || !acquired {
		_ = conn.Close()
		return false, err
	}

	d.conns[name] = conn
	return true, nil
}

// ReleaseLock releases the lock
func (d *DatabaseLockProvider) ReleaseLock(ctx context.Context, name string) error {
	d.mu.Lock()
	conn, ok := d.conns[name]
	delete(d.conns, name)
	d.mu.Unlock()

	if !ok {
		return nil
	}
	defer conn.Close()

	if d.driver == "postgres" {
		var released bool
		return conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", d.hashName(name)).Scan(&released)
	}
	var result sql.NullInt64
	return conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", d.lockName(name)).Scan(&result)
}

// GET_LOCK(str, timeout) returns 1 if success, 0 if timeout, NULL if error
func (d *DatabaseLockProvider) getMySQLLock(ctx context.Context, conn *sql.Conn, name string) (bool, error) {
	var result sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", d.lockName(name)).Scan(&result); err != nil {
		return false, err
	}
	if !result.Valid {
		return false, fmt.Errorf("GET_LOCK returned NULL")
	}
	return result.Int64 == 1, nil
}

func (d *DatabaseLockProvider) getPostgresLock(ctx context.Context, conn *sql.Conn, name string) (bool, error) {
	var success bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", d.hashName(name)).Scan(&success); err != nil {
		return false, err
	}
	return success, nil
}

func (d *DatabaseLockProvider) lockName(name string) string {
	full := d.prefix + name
	if len(full) > mysqlMaxLockName {
		return fmt.Sprintf("%s%08x", full[:mysqlMaxLockName-8], crc32.ChecksumIEEE([]byte(full)))
	}
	return full
}

// pg_advisory_lock takes a bigint key
func (d *DatabaseLockProvider) hashName(name string) int64 {
	return int64(crc32.ChecksumIEEE([]byte(d.prefix + name)))
}
