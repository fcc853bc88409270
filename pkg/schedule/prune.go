package schedule

import (
	"context"
	"time"

	"github.com/pixelvide/cachely/pkg/cache"
	"github.com/pixelvide/cachely/pkg/telemetry"
)

// PruneTask returns a task that removes the expired entries of b.
func PruneTask(b cache.Backend) Task {
	return func(ctx context.Context) error {
		started := time.Now()
		if err := b.InvalidateExpired(ctx); err != nil {
			return err
		}
		telemetry.LoggerFromContext(ctx).Info().
			Dur("took", time.Since(started)).
			Msg("Pruned expired cache entries")
		return nil
	}
}
