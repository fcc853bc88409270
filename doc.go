// Package cachely provides a pluggable object cache with tag based and
// time based invalidation.
//
// Values are stored under string ids with an optional set of tags and an
// expiration instant. Every storage engine implements the same
// cache.Backend contract, so callers pick one by name at runtime.
//
// Key subpackages:
//
//	github.com/pixelvide/cachely/pkg/cache     - Backend contract, configuration, expiration, serializers, Repository
//	github.com/pixelvide/cachely/pkg/backend   - Factory resolving engine names to backends
//	github.com/pixelvide/cachely/pkg/driver    - Engines (mongo, redis, database, bolt, memory)
//	github.com/pixelvide/cachely/pkg/schedule  - Cron kernel running the expiry sweep with distributed locks
//	github.com/pixelvide/cachely/pkg/config    - Environment configuration for the CLI
//
// Example Usage:
//
//	package main
//
//	import (
//		"context"
//
//		"github.com/pixelvide/cachely/pkg/backend"
//		"github.com/pixelvide/cachely/pkg/cache"
//	)
//
//	func main() {
//		b, err := backend.Create("mongo", cache.Options{
//			cache.OptionIDPrefix: "app:",
//			cache.OptionLifetime: "10m",
//			"host":               "localhost",
//			"dbname":             "cachely",
//		})
//		if err != nil {
//			panic(err)
//		}
//		defer b.Close()
//
//		repo, _ := cache.NewRepository(b)
//		ctx := context.Background()
//		_ = repo.Put(ctx, "user:1", map[string]string{"name": "Ada"}, []string{"users"})
//		_ = repo.FlushTags(ctx, "users")
//	}
package cachely
