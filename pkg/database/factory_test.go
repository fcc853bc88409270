package database

import (
	"testing"

	"github.com/pixelvide/cachely/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverName(t *testing.T) {
	for connection, want := range map[string]string{
		"":         "mysql",
		"mysql":    "mysql",
		"pgsql":    "postgres",
		"postgres": "postgres",
	} {
		got, err := DriverName(connection)
		require.NoError(t, err)
		assert.Equal(t, want, got, connection)
	}

	_, err := DriverName("sqlsrv")
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Connection: "pgsql",
		Host:       "db",
		Port:       "5432",
		Database:   "app",
		Username:   "user",
		Password:   "secret",
	}
	dsn, err := DSN(cfg)
	require.NoError(t, err)
	assert.Equal(t, "host=db port=5432 user=user password=secret dbname=app sslmode=disable", dsn)

	cfg.Connection = "mysql"
	cfg.Port = "3306"
	dsn, err = DSN(cfg)
	require.NoError(t, err)
	assert.Equal(t, "user:secret@tcp(db:3306)/app?parseTime=true&loc=Local", dsn)

	cfg.DSN = "custom"
	dsn, err = DSN(cfg)
	require.NoError(t, err)
	assert.Equal(t, "custom", dsn)
}
