package mongo

import (
	"fmt"
	"net"
	"time"

	"github.com/pixelvide/cachely/pkg/cache"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Config holds the base cache configuration plus the MongoDB connection
// settings.
type Config struct {
	cache.Config

	URI            string
	Host           string
	Port           string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
	// Connection carries driver options: username, password, auth_source,
	// replica_set, app_name, max_pool_size and min_pool_size.
	Connection cache.Options
}

// NewConfig resolves opts over the engine defaults.
func NewConfig(opts cache.Options) (Config, error) {
	base, err := cache.NewConfig(opts)
	if err != nil {
		return Config{}, err
	}
	extra := base.Extra
	return Config{
		Config:         base,
		URI:            extra.String("uri", ""),
		Host:           extra.String("host", "localhost"),
		Port:           extra.String("port", "27017"),
		Database:       extra.String("dbname", "cachely"),
		Collection:     extra.String("collection", "cache"),
		ConnectTimeout: extra.Duration("connect_timeout", 0),
		Connection:     extra.Map("config"),
	}, nil
}

// ConnectionURI returns URI when set, otherwise one built from host and port.
func (c Config) ConnectionURI() string {
	if c.URI != "" {
		return c.URI
	}
	return fmt.Sprintf("mongodb://%s", net.JoinHostPort(c.Host, c.Port))
}

// ClientOptions builds the driver options for this configuration.
func (c Config) ClientOptions() *options.ClientOptions {
	opts := options.Client().ApplyURI(c.ConnectionURI())
	if c.ConnectTimeout > 0 {
		opts.SetConnectTimeout(c.ConnectTimeout)
	}
	conn := c.Connection
	if user := conn.String("username", ""); user != "" {
		opts.SetAuth(options.Credential{
			Username:   user,
			Password:   conn.String("password", ""),
			AuthSource: conn.String("auth_source", ""),
		})
	}
	if rs := conn.String("replica_set", ""); rs != "" {
		opts.SetReplicaSet(rs)
	}
	if name := conn.String("app_name", ""); name != "" {
		opts.SetAppName(name)
	}
	if n := conn.Int("max_pool_size", 0); n > 0 {
		opts.SetMaxPoolSize(uint64(n))
	}
	if n := conn.Int("min_pool_size", 0); n > 0 {
		opts.SetMinPoolSize(uint64(n))
	}
	return opts
}
