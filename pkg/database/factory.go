package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/pixelvide/cachely/pkg/config"
)

// Factory creates database connections
type Factory struct{}

// NewFactory creates a new Factory
func NewFactory() *Factory {
	return &Factory{}
}

// DriverName maps a Laravel style connection name to a database/sql driver.
func DriverName(connection string) (string, error) {
	switch connection {
	case "mysql", "":
		return "mysql", nil
	case "pgsql", "postgres", "pq":
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported database connection: %s", connection)
	}
}

// DSN builds the data source name for cfg, preferring an explicit DSN.
func DSN(cfg config.DatabaseConfig) (string, error) {
	driverName, err := DriverName(cfg.Connection)
	if err != nil {
		return "", err
	}
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if driverName == "postgres" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database), nil
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database), nil
}

// Connect creates a new database connection based on configuration
func (f *Factory) Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	driverName, err := DriverName(cfg.Connection)
	if err != nil {
		return nil, err
	}
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	// Basic configuration
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
