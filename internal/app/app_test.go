package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neonslash/neonvault/internal/config"
)

func TestRun_UnknownModeFailsBeforeWiring(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "trade"
	a := New(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported mode "trade"`)
	assert.Empty(t, a.closers)
}

func TestModesCoverEveryConfiguredMode(t *testing.T) {
	for _, m := range []string{"server", "indexer", "agent", "full"} {
		assert.Contains(t, modes, m)
	}
}

func TestClose_Idempotent(t *testing.T) {
	cfg := config.Defaults()
	a := New(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	calls := 0
	a.closers = append(a.closers, func() { calls++ })
	a.Close()
	a.Close()
	assert.Equal(t, 1, calls)
}

func TestNeeds(t *testing.T) {
	assert.True(t, needsPostgres("indexer"))
	assert.False(t, needsPostgres("agent"))
	assert.True(t, needsS3("full", config.ArchiveConfig{Enabled: true}))
	assert.False(t, needsS3("server", config.ArchiveConfig{Enabled: true}))
	assert.False(t, needsS3("full", config.ArchiveConfig{}))
}
