package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs jobs on six-field cron expressions (seconds first). A job
// still running when its next slot comes up is skipped for that slot.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	logger *slog.Logger
}

// NewScheduler creates an idle Scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		ctx:    context.Background(),
		logger: logger.With(slog.String("component", "scheduler")),
	}
}

// Add registers fn under name. It must be called before Run.
func (s *Scheduler) Add(name, schedule string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(schedule, func() {
		start := time.Now()
		if err := fn(s.ctx); err != nil {
			s.logger.ErrorContext(s.ctx, "job failed",
				slog.String("job", name),
				slog.String("error", err.Error()),
			)
			return
		}
		s.logger.InfoContext(s.ctx, "job done",
			slog.String("job", name),
			slog.Duration("took", time.Since(start)),
		)
	})
	if err != nil {
		return fmt.Errorf("pipeline: register %s (%q): %w", name, schedule, err)
	}
	s.logger.Info("job registered", slog.String("job", name), slog.String("schedule", schedule))
	return nil
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int { return len(s.cron.Entries()) }

// Run starts the schedule and blocks until ctx is cancelled, then waits for
// running jobs to return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}
