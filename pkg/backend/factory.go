// Package backend selects and constructs cache engines by name.
package backend

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pixelvide/cachely/pkg/cache"
	"github.com/pixelvide/cachely/pkg/driver/bolt"
	"github.com/pixelvide/cachely/pkg/driver/database"
	"github.com/pixelvide/cachely/pkg/driver/memory"
	"github.com/pixelvide/cachely/pkg/driver/mongo"
	"github.com/pixelvide/cachely/pkg/driver/redis"
)

// Constructor builds an engine from its option map.
type Constructor func(opts cache.Options) (cache.Backend, error)

// registry is fixed at compile time; there is no runtime registration.
var registry = map[string]Constructor{
	mongo.Name:    constructor(mongo.New),
	redis.Name:    constructor(redis.New),
	database.Name: constructor(database.New),
	bolt.Name:     constructor(bolt.New),
	memory.Name:   constructor(memory.New),
}

// constructor adapts an engine's New so that a failed construction yields
// a nil interface rather than a typed nil *Store.
func constructor[T cache.Backend](fn func(cache.Options) (T, error)) Constructor {
	return func(opts cache.Options) (cache.Backend, error) {
		b, err := fn(opts)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// Create builds the engine registered under name. Names are matched
// case-insensitively.
func Create(name string, opts cache.Options) (cache.Backend, error) {
	ctor, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", cache.ErrBackendNotFound, name)
	}
	return ctor(opts)
}

// Names returns the registered engine names in order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
