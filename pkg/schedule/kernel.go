package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	lockAcquireTimeout = 10 * time.Second
	defaultLockTTL     = time.Minute
)

// Kernel manages scheduled tasks
type Kernel struct {
	cron         *cron.Cron
	lockProvider LockProvider
	logger       zerolog.Logger
	ctx          context.Context
}

// JobOption configures a scheduled job
type JobOption func(*jobConfig)

type jobConfig struct {
	name               string
	withoutOverlapping bool
	onOneServer        bool
	lockTTL            time.Duration
	timeout            time.Duration
}

// NewKernel creates a new scheduler kernel
func NewKernel(lockProvider LockProvider) *Kernel {
	logger := log.With().Str("component", "schedule").Logger()
	return &Kernel{
		// Second-level precision: "s m h dom mon dow"
		cron:         cron.New(cron.WithSeconds(), cron.WithLogger(cron.PrintfLogger(&logger))),
		lockProvider: lockProvider,
		logger:       logger,
		ctx:          context.Background(),
	}
}

// SetLockProvider sets the distributed lock provider
func (k *Kernel) SetLockProvider(provider LockProvider) {
	k.lockProvider = provider
}

// Named sets the name used in logs.
func Named(name string) JobOption {
	return func(c *jobConfig) {
		c.name = name
	}
}

// WithoutOverlapping prevents the job from running if the previous instance is still running (local only)
func WithoutOverlapping() JobOption {
	return func(c *jobConfig) {
		c.withoutOverlapping = true
	}
}

// OnOneServer ensures the job runs on only one server at a time (distributed lock)
func OnOneServer(name string) JobOption {
	return func(c *jobConfig) {
		c.onOneServer = true
		c.name = name
	}
}

// LockFor overrides how long an OnOneServer lock is held at most.
func LockFor(d time.Duration) JobOption {
	return func(c *jobConfig) {
		c.lockTTL = d
	}
}

// Timeout bounds a single run of the job.
func Timeout(d time.Duration) JobOption {
	return func(c *jobConfig) {
		c.timeout = d
	}
}

// Register adds a task to be run on a given schedule.
// Schedule format: "s m h d m w" (Seconds Minutes Hours Day Month Week)
// or a descriptor such as "@every 5m".
func (k *Kernel) Register(schedule string, task Task, opts ...JobOption) error {
	cfg := &jobConfig{name: schedule, lockTTL: defaultLockTTL}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.onOneServer && k.lockProvider == nil {
		k.logger.Warn().Str("job", cfg.name).Msg("Ignoring OnOneServer: no lock provider configured")
		cfg.onOneServer = false
	}

	job := k.job(cfg, task)
	if cfg.withoutOverlapping {
		job = cron.SkipIfStillRunning(cron.PrintfLogger(&k.logger))(job)
	}

	if _, err := k.cron.AddJob(schedule, job); err != nil {
		return fmt.Errorf("register %s: %w", cfg.name, err)
	}
	k.logger.Info().Str("job", cfg.name).Str("schedule", schedule).Msg("Registered cron job")
	return nil
}

// Len returns the number of registered jobs.
func (k *Kernel) Len() int {
	return len(k.cron.Entries())
}

func (k *Kernel) job(cfg *jobConfig, task Task) cron.Job {
	return cron.FuncJob(func() {
		logger := k.logger.With().Str("job", cfg.name).Logger()
		ctx := logger.WithContext(k.ctx)

		if cfg.onOneServer {
			lockCtx, cancel := context.WithTimeout(ctx, lockAcquireTimeout)
			acquired, err := k.lockProvider.GetLock(lockCtx, cfg.name, cfg.lockTTL)
			cancel()
			if err != nil {
				logger.Error().Err(err).Msg("Error checking lock")
				return
			}
			if !acquired {
				logger.Debug().Msg("Skipping job: locked by another server")
				return
			}
			defer func() {
				if err := k.lockProvider.ReleaseLock(context.Background(), cfg.name); err != nil {
					logger.Warn().Err(err).Msg("Error releasing lock")
				}
			}()
		}

		if cfg.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
			defer cancel()
		}

		started := time.Now()
		if err := task(ctx); err != nil {
			logger.Error().Err(err).Dur("took", time.Since(started)).Msg("Job failed")
			return
		}
		logger.Debug().Dur("took", time.Since(started)).Msg("Job finished")
	})
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to finish.
func (k *Kernel) Run(ctx context.Context) {
	k.ctx = ctx
	k.logger.Info().Int("jobs", k.Len()).Msg("Starting task scheduler")
	k.cron.Start()

	<-ctx.Done()

	k.logger.Info().Msg("Stopping task scheduler")
	<-k.cron.Stop().Done()
}
