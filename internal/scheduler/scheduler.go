// Package scheduler polls for due tasks and dispatches each to the executor.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"outbound-call-scheduler/internal/models"
	"outbound-call-scheduler/internal/telemetry"
)

// TaskSource lists tasks eligible for execution at a given instant.
type TaskSource interface {
	ListDue(ctx context.Context, now time.Time) ([]models.ScheduledCallTask, error)
}

// Runner drives one task to a terminal state.
type Runner interface {
	Execute(ctx context.Context, task models.ScheduledCallTask, now time.Time) error
}

// Scheduler is an explicit polling instance: interval and clock are injected
// so ticks are deterministic under test. Overlapping ticks (a slow tick still
// running when the next fires) are tolerated; the claim protocol arbitrates.
type Scheduler struct {
	source      TaskSource
	runner      Runner
	interval    time.Duration
	concurrency int
	clock       func() time.Time
	logger      *slog.Logger
}

func New(source TaskSource, runner Runner, interval time.Duration, concurrency int, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		source:      source,
		runner:      runner,
		interval:    interval,
		concurrency: concurrency,
		clock:       time.Now,
		logger:      logger,
	}
}

// WithClock overrides the time source; tests use it to place ticks precisely.
func (s *Scheduler) WithClock(clock func() time.Time) *Scheduler {
	s.clock = clock
	return s
}

// Run polls until the context is cancelled. A failed tick is logged and the
// next tick proceeds; a single bad store round trip never stops the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx); err != nil {
			s.logger.Error("scheduler tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one poll cycle: list due tasks and dispatch each independently.
// Per-task failures are logged and do not abort the batch; only the listing
// itself can fail the tick. Callable directly as an external trigger.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.clock()
	due, err := s.source.ListDue(ctx, now)
	if err != nil {
		return err
	}
	telemetry.TasksDueGauge.Set(float64(len(due)))
	if len(due) == 0 {
		return nil
	}
	s.logger.Info("dispatching due tasks", "count", len(due))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, task := range due {
		task := task
		g.Go(func() error {
			if err := s.runner.Execute(gctx, task, now); err != nil {
				s.logger.Error("task execution failed", "task_id", task.ID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}
