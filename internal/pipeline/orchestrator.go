// Package pipeline runs the long-lived background loops of a mode: the
// indexer, the bond publisher, cron jobs and the cold-storage archiver.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Loop is a blocking background task. It returns when ctx is cancelled.
type Loop func(ctx context.Context) error

type namedLoop struct {
	name string
	run  Loop
}

// Orchestrator runs a set of loops together. The first loop to fail for a
// reason other than cancellation stops all the others.
type Orchestrator struct {
	loops  []namedLoop
	logger *slog.Logger
}

// NewOrchestrator creates an empty Orchestrator.
func NewOrchestrator(logger *slog.Logger) *Orchestrator {
	return &Orchestrator{logger: logger.With(slog.String("component", "pipeline"))}
}

// Add registers a loop. Loops start in registration order.
func (o *Orchestrator) Add(name string, run Loop) {
	o.loops = append(o.loops, namedLoop{name: name, run: run})
}

// Len returns the number of registered loops.
func (o *Orchestrator) Len() int { return len(o.loops) }

// Run starts every loop and blocks until all have returned. A clean shutdown
// through ctx returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "pipeline orchestrator starting", slog.Int("loops", len(o.loops)))

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range o.loops {
		g.Go(func() error {
			o.logger.InfoContext(gctx, "loop started", slog.String("loop", l.name))
			err := l.run(gctx)
			if gctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)) {
				return nil
			}
			if err == nil {
				return fmt.Errorf("pipeline: %s: exited", l.name)
			}
			return fmt.Errorf("pipeline: %s: %w", l.name, err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.ErrorContext(ctx, "pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.InfoContext(ctx, "pipeline orchestrator stopped cleanly")
	return nil
}
