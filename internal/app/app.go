// Package app assembles neonvault for one run: it dials the vault chain and
// the optional stores, then drives the loops the configured mode calls for
// until the context ends.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/neonslash/neonvault/internal/config"
)

type modeFunc func(*App, context.Context, *Dependencies) error

var modes = map[string]modeFunc{
	"server":  (*App).ServerMode,
	"indexer": (*App).IndexerMode,
	"agent":   (*App).AgentMode,
	"full":    (*App).FullMode,
}

// App owns the configuration and the cleanup stack of one process.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	closers   []func()
	closeOnce sync.Once
}

// New creates an App.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies for the configured mode and blocks in that mode's
// loops. An unknown mode fails before anything is dialled.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	run, ok := modes[mode]
	if !ok {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	a.logger.InfoContext(ctx, "starting",
		slog.String("mode", mode),
		slog.Int64("chain_id", a.cfg.Chain.ChainID),
		slog.String("vault", a.cfg.Chain.VaultAddress),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire %s: %w", mode, err)
	}
	a.closers = append(a.closers, cleanup)

	return run(a, ctx, deps)
}

// Close runs the cleanup stack newest first. Only the first call does work.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.logger.Info("shutting down")
		for i := len(a.closers) - 1; i >= 0; i-- {
			a.closers[i]()
		}
		a.closers = nil
	})
}
