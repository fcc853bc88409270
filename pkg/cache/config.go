package cache

import (
	"fmt"
	"time"

	"github.com/spf13/cast"
)

// Option names understood by every engine.
const (
	OptionIDPrefix               = "cache_id_prefix"
	OptionLifetime               = "lifetime"
	OptionAutomaticSerialization = "automatic_serialization"
	OptionSerializer             = "serializer"
)

// Options is the raw option map a backend is created with. Unknown keys are
// kept and ignored.
type Options map[string]any

// Config is the base configuration shared by all engines. It is resolved
// once at construction and never mutated afterwards.
type Config struct {
	// IDPrefix is prepended to every id before it reaches the store.
	IDPrefix string
	// Lifetime is the default TTL; NoExpiration means entries never expire.
	Lifetime time.Duration
	// AutomaticSerialization makes Repository encode and decode payloads.
	AutomaticSerialization bool
	// Serializer names the codec Repository uses ("json" or "php").
	Serializer string
	// Extra holds the options not recognized above, engine options included.
	Extra Options
}

// DefaultConfig returns the base defaults.
func DefaultConfig() Config {
	return Config{
		Lifetime:               DefaultLifetime,
		AutomaticSerialization: true,
		Serializer:             "json",
		Extra:                  Options{},
	}
}

// NewConfig layers opts over DefaultConfig.
func NewConfig(opts Options) (Config, error) {
	cfg := DefaultConfig()
	for key, value := range opts {
		switch key {
		case OptionIDPrefix:
			prefix, err := cast.ToStringE(value)
			if err != nil {
				return Config{}, fmt.Errorf("cache: option %s: %w", key, err)
			}
			cfg.IDPrefix = prefix
		case OptionLifetime:
			lifetime, err := ParseLifetime(value)
			if err != nil {
				return Config{}, fmt.Errorf("cache: option %s: %w", key, err)
			}
			cfg.Lifetime = lifetime
		case OptionAutomaticSerialization:
			enabled, err := cast.ToBoolE(value)
			if err != nil {
				return Config{}, fmt.Errorf("cache: option %s: %w", key, err)
			}
			cfg.AutomaticSerialization = enabled
		case OptionSerializer:
			name, err := cast.ToStringE(value)
			if err != nil {
				return Config{}, fmt.Errorf("cache: option %s: %w", key, err)
			}
			if _, err := SerializerFor(name); err != nil {
				return Config{}, err
			}
			cfg.Serializer = name
		default:
			cfg.Extra[key] = value
		}
	}
	return cfg, nil
}

// Key applies the id prefix.
func (c Config) Key(id string) string {
	return c.IDPrefix + id
}

// ParseLifetime converts a lifetime option value. Numbers are seconds,
// strings may also be Go durations, and nil means never expires.
func ParseLifetime(value any) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return NoExpiration, nil
	case time.Duration:
		return v, nil
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d, nil
		}
	}
	seconds, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// String returns the option key as a string, or def when it is absent.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok && v != nil {
		if s, err := cast.ToStringE(v); err == nil && s != "" {
			return s
		}
	}
	return def
}

// Int returns the option key as an int, or def when it is absent.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok && v != nil {
		if n, err := cast.ToIntE(v); err == nil {
			return n
		}
	}
	return def
}

// Bool returns the option key as a bool, or def when it is absent.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok && v != nil {
		if b, err := cast.ToBoolE(v); err == nil {
			return b
		}
	}
	return def
}

// Duration returns the option key as a duration, or def when it is absent.
// Plain numbers are read as seconds.
func (o Options) Duration(key string, def time.Duration) time.Duration {
	if v, ok := o[key]; ok && v != nil {
		if d, err := ParseLifetime(v); err == nil {
			return d
		}
	}
	return def
}

// Map returns the option key as a nested option map.
func (o Options) Map(key string) Options {
	switch v := o[key].(type) {
	case nil:
		return Options{}
	case Options:
		return v
	default:
		if m, err := cast.ToStringMapE(v); err == nil {
			return Options(m)
		}
	}
	return Options{}
}
