package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/river-data-aggregation/internal/hydro"
)

// DefaultInterval is used when no positive interval is configured.
const DefaultInterval = time.Hour

// Runner executes a batch of watch jobs. *hydro.Service implements it.
type Runner interface {
	RunJobs(ctx context.Context, jobs []hydro.WatchJob)
}

// Scheduler periodically runs the configured watch jobs.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	jobs      []hydro.WatchJob
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a new Scheduler. Each run is bounded by timeout, or by the
// interval itself when timeout is zero.
func New(jobs []hydro.WatchJob, interval, timeout time.Duration, runner Runner, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = interval
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		jobs:      jobs,
		interval:  interval,
		timeout:   timeout,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// The first run happens immediately.
func (s *Scheduler) Start() error {
	if len(s.jobs) == 0 {
		s.logger.Info("no watch jobs configured; nothing to schedule")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).Do(func() {
		s.logger.Info("running watch jobs", "jobs", len(s.jobs))
		started := time.Now()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.runner.RunJobs(ctx, s.jobs)

		s.logger.Info("completed watch jobs", "elapsed", time.Since(started).Round(time.Millisecond))
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
