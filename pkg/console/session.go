package console

import (
	"context"
	"fmt"

	"github.com/pixelvide/cachely/pkg/backend"
	"github.com/pixelvide/cachely/pkg/cache"
	"github.com/pixelvide/cachely/pkg/config"
	"github.com/pixelvide/cachely/pkg/root"
	"github.com/pixelvide/cachely/pkg/telemetry"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var storeName string

// session holds what a single command invocation needs: the loaded
// configuration, the selected backend and a repository in front of it.
type session struct {
	cfg     *config.Config
	backend cache.Backend
	repo    *cache.Repository
	closers []func()
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	telemetry.SetGlobalLogger(cfg.Log.Level, cfg.Log.Format)

	if storeName != "" {
		cfg.Cache.Store = storeName
	}

	b, err := backend.Create(cfg.Cache.Store, cfg.BackendOptions())
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg}
	s.onClose(func() {
		if err := b.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing cache store")
		}
	})

	if cfg.Cache.Trace {
		tp, err := telemetry.InitTracer("cachely", cmd.ErrOrStderr())
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("initialize tracer: %w", err)
		}
		s.onClose(func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("Error shutting down tracer")
			}
		})
		b = cache.WithTracing(b, tp.Tracer("cachely"))
	}

	repo, err := cache.NewRepository(b)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.backend = b
	s.repo = repo

	log.Debug().Str("store", cfg.Cache.Store).Msg("Opened cache store")
	return s, nil
}

func (s *session) onClose(fn func()) {
	s.closers = append(s.closers, fn)
}

// Close runs the registered closers in reverse order.
func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func init() {
	root.GetRoot().PersistentFlags().StringVar(&storeName, "store", "", "cache store to use, overrides CACHE_STORE")
}
