package console

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pixelvide/cachely/pkg/cache"
	"github.com/pixelvide/cachely/pkg/database"
	"github.com/pixelvide/cachely/pkg/root"
	"github.com/pixelvide/cachely/pkg/schedule"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var metricsAddr string

var scheduleCmd = &cobra.Command{
	Use:   "schedule:run",
	Short: "Run the scheduled expiry sweep",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		lockProvider, err := newLockProvider(cmd.Context(), s)
		if err != nil {
			return err
		}

		// Handle SIGINT/SIGTERM
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		b := s.backend
		addr := s.cfg.Schedule.MetricsAddr
		if metricsAddr != "" {
			addr = metricsAddr
		}
		if addr != "" {
			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector())
			registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m, err := cache.NewMetrics("cachely", registry)
			if err != nil {
				return err
			}
			b = cache.WithMetrics(b, m, s.cfg.Cache.Store)
			serveMetrics(ctx, addr, registry)
		}

		kernel := schedule.GetGlobalKernel()
		kernel.SetLockProvider(lockProvider)

		err = kernel.Register(s.cfg.Schedule.Sweep, schedule.PruneTask(b),
			schedule.OnOneServer("cache:prune"),
			schedule.WithoutOverlapping(),
		)
		if err != nil {
			return err
		}

		log.Info().Str("store", s.cfg.Cache.Store).Msg("Starting scheduler...")
		kernel.Run(ctx)
		log.Info().Msg("Scheduler stopped.")
		return nil
	},
}

// serveMetrics exposes registry on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// newLockProvider builds the distributed lock named by SCHEDULE_LOCK. Its
// connections are released with the session.
func newLockProvider(ctx context.Context, s *session) (schedule.LockProvider, error) {
	cfg := s.cfg
	switch cfg.Schedule.Lock {
	case "":
		log.Info().Msg("No distributed lock provider configured. OnOneServer will not work across multiple servers.")
		return nil, nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.onClose(func() { _ = client.Close() })
		return schedule.NewRedisLockProvider(client, cfg.Cache.Prefix), nil
	case "database":
		db, err := database.NewFactory().Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to database for scheduler lock: %w", err)
		}
		s.onClose(func() { _ = db.Close() })
		return schedule.NewDatabaseLockProvider(db, cfg.Database.Connection, cfg.Cache.Prefix)
	default:
		return nil, fmt.Errorf("unsupported schedule lock: %s", cfg.Schedule.Lock)
	}
}

func init() {
	scheduleCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, overrides SCHEDULE_METRICS_ADDR")

	root.GetRoot().AddCommand(scheduleCmd)
}
