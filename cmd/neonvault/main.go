// Command neonvault runs the NeonSlashVault backend: the chain indexer, the
// market agent and the HTTP/WebSocket API, in whichever combination the
// configured mode selects.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/neonslash/neonvault/internal/app"
	"github.com/neonslash/neonvault/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	modeOverride := flag.String("mode", "", "override the configured mode (server, indexer, agent, full)")
	checkOnly := flag.Bool("check", false, "validate the configuration and exit")
	flag.Parse()

	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	if err := run(*configPath, *modeOverride, *checkOnly, &level, logger); err != nil {
		fmt.Fprintf(os.Stderr, "neonvault: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, modeOverride string, checkOnly bool, level *slog.LevelVar, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("path", configPath), slog.String("error", err.Error()))
		return err
	}
	if modeOverride != "" {
		cfg.Mode = modeOverride
	}
	level.Set(parseLevel(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return err
	}
	logger.Debug("effective configuration", slog.Any("config", config.RedactedConfig(cfg)))
	if checkOnly {
		logger.Info("configuration ok", slog.String("path", configPath), slog.String("mode", cfg.Mode))
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	defer application.Close()

	err = application.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("exited with error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("neonvault stopped")
	return nil
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}
