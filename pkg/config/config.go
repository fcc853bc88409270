package config

import (
	"time"

	"github.com/pixelvide/cachely/pkg/cache"
)

// Config is the environment driven configuration of the cachely CLI.
type Config struct {
	Cache    CacheConfig    `envPrefix:"CACHE_"`
	Mongo    MongoConfig    `envPrefix:"MONGO_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Database DatabaseConfig `envPrefix:"DB_"`
	Bolt     BoltConfig     `envPrefix:"BOLT_"`
	Schedule ScheduleConfig `envPrefix:"SCHEDULE_"`
	Log      LogConfig      `envPrefix:"LOG_"`
}

// CacheConfig selects the backend and holds the shared cache options
type CacheConfig struct {
	Store                  string        `env:"STORE" envDefault:"mongo"`
	Prefix                 string        `env:"PREFIX"`
	Lifetime               time.Duration `env:"LIFETIME" envDefault:"1h"`
	Forever                bool          `env:"FOREVER" envDefault:"false"`
	AutomaticSerialization bool          `env:"AUTOMATIC_SERIALIZATION" envDefault:"true"`
	Serializer             string        `env:"SERIALIZER" envDefault:"json"`
	Trace                  bool          `env:"TRACE" envDefault:"false"`
}

// MongoConfig holds configuration for MongoDB connection
type MongoConfig struct {
	URI        string `env:"URI"`
	Host       string `env:"HOST" envDefault:"localhost"`
	Port       string `env:"PORT" envDefault:"27017"`
	Database   string `env:"DATABASE" envDefault:"cachely"`
	Collection string `env:"COLLECTION" envDefault:"cache"`
	Username   string `env:"USERNAME"`
	Password   string `env:"PASSWORD"`
	AuthSource string `env:"AUTH_SOURCE"`
}

// RedisConfig holds configuration for Redis connection
type RedisConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     string `env:"PORT" envDefault:"6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

// DatabaseConfig holds configuration for SQL database connection
type DatabaseConfig struct {
	Connection string `env:"CONNECTION" envDefault:"mysql"` // mysql, pgsql
	DSN        string `env:"DSN"`                           // overrides the fields below
	Host       string `env:"HOST" envDefault:"127.0.0.1"`
	Port       string `env:"PORT" envDefault:"3306"`
	Database   string `env:"DATABASE" envDefault:"cachely"`
	Username   string `env:"USERNAME" envDefault:"root"`
	Password   string `env:"PASSWORD"`
	Table      string `env:"TABLE" envDefault:"cache"`
}

// BoltConfig holds configuration for the embedded file store
type BoltConfig struct {
	Path   string `env:"PATH" envDefault:"cachely.db"`
	Bucket string `env:"BUCKET" envDefault:"cache"`
}

// ScheduleConfig holds configuration for the expiry sweep scheduler
type ScheduleConfig struct {
	Sweep       string `env:"SWEEP" envDefault:"0 */5 * * * *"`
	Lock        string `env:"LOCK"` // redis, database; empty runs without a distributed lock
	MetricsAddr string `env:"METRICS_ADDR"`
}

// LogConfig holds configuration for the global logger
type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"console"` // console, json
}

// BackendOptions converts the configuration of the selected store into the
// option map the backend factory expects.
func (c *Config) BackendOptions() cache.Options {
	opts := cache.Options{
		cache.OptionIDPrefix:               c.Cache.Prefix,
		cache.OptionLifetime:               c.Cache.Lifetime,
		cache.OptionAutomaticSerialization: c.Cache.AutomaticSerialization,
		cache.OptionSerializer:             c.Cache.Serializer,
	}
	if c.Cache.Forever {
		opts[cache.OptionLifetime] = nil
	}

	switch c.Cache.Store {
	case "mongo":
		opts["uri"] = c.Mongo.URI
		opts["host"] = c.Mongo.Host
		opts["port"] = c.Mongo.Port
		opts["dbname"] = c.Mongo.Database
		opts["collection"] = c.Mongo.Collection
		opts["config"] = cache.Options{
			"username":    c.Mongo.Username,
			"password":    c.Mongo.Password,
			"auth_source": c.Mongo.AuthSource,
		}
	case "redis":
		opts["addr"] = c.Redis.Addr()
		opts["password"] = c.Redis.Password
		opts["db"] = c.Redis.DB
	case "database":
		opts["connection"] = c.Database.Connection
		opts["dsn"] = c.Database.DSN
		opts["host"] = c.Database.Host
		opts["port"] = c.Database.Port
		opts["database"] = c.Database.Database
		opts["username"] = c.Database.Username
		opts["password"] = c.Database.Password
		opts["table"] = c.Database.Table
	case "bolt":
		opts["path"] = c.Bolt.Path
		opts["bucket"] = c.Bolt.Bucket
	}
	return opts
}
