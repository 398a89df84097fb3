package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neonslash/neonvault/internal/config"
	"github.com/neonslash/neonvault/internal/domain"
	"github.com/neonslash/neonvault/internal/engine"
	"github.com/neonslash/neonvault/internal/service"
)

func TestRenderCatalog(t *testing.T) {
	var buf bytes.Buffer
	err := renderCatalog(&buf, service.CatalogPage{
		Mode: "active", Page: 1, PageCount: 1, Total: 1,
		Markets: []service.MarketJSON{{
			ID: 7, Description: "Will BTC close above 100k?", Category: "Crypto",
			TotalYes: 30, TotalNo: 10, YesPercent: 75, State: "active",
			Deadline: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Unix(),
		}},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "active | All | page 1/1 | 1 markets")
	assert.Contains(t, out, "Will BTC close above 100k?")
	assert.Contains(t, out, "75%")
	assert.Contains(t, out, "2026-03-01 12:00")
}

func TestRenderCatalog_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderCatalog(&buf, service.CatalogPage{Mode: "history", Category: "History", Page: 1}))
	assert.Contains(t, buf.String(), "page 1/1")
	assert.Contains(t, buf.String(), "no markets")
}

func TestRenderStats_SortsCategories(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderStats(&buf, engine.MarketStats{
		Total: 5, Active: 2, AwaitingResolution: 1, Resolved: 2,
		ByCategory: map[string]int{"Stocks": 2, "Football": 1},
	}))
	out := buf.String()
	assert.Contains(t, out, "total 5 | active 2 | awaiting resolution 1 | resolved 2")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("Football")), bytes.Index(buf.Bytes(), []byte("Stocks")))
}

func TestRenderAccount(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderAccount(&buf, service.AccountJSON{
		User: "0xabc", Points: 1200, Staked: "10.5", Locked: true, DaysLeft: 12,
		LockEnd: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC).Unix(), RewardEligible: true,
	}))
	out := buf.String()
	assert.Contains(t, out, "locked, 12 days left")
	assert.Contains(t, out, "eligible")
	assert.Contains(t, out, "10.5")
}

func TestRenderBets_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderBets(&buf, nil))
	assert.Equal(t, "no bets\n", buf.String())
}

func TestRenderBlobs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderBlobs(&buf, []domain.BlobInfo{
		{Path: "markets/2026-01.jsonl", Size: 100, LastModified: time.Unix(0, 0)},
		{Path: "audit/2026-01-02.jsonl", Size: 50, LastModified: time.Unix(0, 0)},
	}))
	out := buf.String()
	assert.Contains(t, out, "2 objects, 150 bytes")
	assert.Contains(t, out, "2026-01-02")
	assert.Contains(t, out, "markets")
}

func TestRenderResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderResult(&buf, "0xabc", service.ActionResult{
		Action:       service.ActionStake,
		TxHash:       "0xdead",
		Receipt:      domain.Receipt{BlockNumber: 42, GasUsed: 21000},
		Notification: domain.Notification{Message: "Staked 5 USDC"},
	}))
	out := buf.String()
	assert.Contains(t, out, "0xdead")
	assert.Contains(t, out, "21000")
	assert.Contains(t, out, "Staked 5 USDC")
}

func TestParsePrediction(t *testing.T) {
	for in, want := range map[string]bool{"yes": true, "Y": true, "true": true, "no": false, "N": false} {
		got, err := parsePrediction(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parsePrediction("maybe")
	assert.Error(t, err)
}

func TestArgMarketID(t *testing.T) {
	id, err := argMarketID([]string{"12"}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), id)

	_, err = argMarketID(nil, 0)
	assert.ErrorIs(t, err, errUsage)

	_, err = argMarketID([]string{"-1"}, 0)
	assert.Error(t, err)
}

func TestRun_Usage(t *testing.T) {
	cfg := config.Defaults()
	c := newCLI(&cfg, io.Discard, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, c.run(context.Background(), nil), errUsage)
	assert.ErrorIs(t, c.run(context.Background(), []string{"help"}), errUsage)
	assert.ErrorIs(t, c.run(context.Background(), []string{"encrypt-key"}), errUsage)
	assert.ErrorIs(t, c.run(context.Background(), []string{"keyfile"}), errUsage)
}

func TestCopyRecords(t *testing.T) {
	in := strings.NewReader("{\"id\":1}\n\n{\"id\":2}\n{\"id\":3}\n")
	var buf bytes.Buffer
	require.NoError(t, copyRecords(&buf, in, 2))
	assert.Equal(t, "{\"id\":1}\n{\"id\":2}\n... 1 more\n3 records\n", buf.String())
}
