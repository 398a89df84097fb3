package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type stubArchiver struct {
	marketErr, auditErr error
	cutoffs              []time.Time
}

func (s *stubArchiver) ArchiveResolvedMarkets(_ context.Context, before time.Time) (int64, error) {
	s.cutoffs = append(s.cutoffs, before)
	return 3, s.marketErr
}

func (s *stubArchiver) ArchiveAudit(_ context.Context, before time.Time) (int64, error) {
	s.cutoffs = append(s.cutoffs, before)
	return 7, s.auditErr
}

func TestArchiver_RunUsesRetentionCutoff(t *testing.T) {
	now := time.Date(2026, 3, 31, 3, 0, 0, 0, time.UTC)
	stub := &stubArchiver{}
	a := NewArchiver(stub, 30, discard())
	a.SetClock(func() time.Time { return now })

	require.NoError(t, a.Run(context.Background()))
	want := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, []time.Time{want, want}, stub.cutoffs)
}

func TestArchiver_AuditRunsAfterMarketFailure(t *testing.T) {
	stub := &stubArchiver{marketErr: errors.New("db down")}
	a := NewArchiver(stub, 0, discard())

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive markets")
	assert.Len(t, stub.cutoffs, 2)
}

func TestOrchestrator_CleanShutdown(t *testing.T) {
	o := NewOrchestrator(discard())
	for _, name := range []string{"indexer", "bond"} {
		o.Add(name, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, o.Run(ctx))
	assert.Equal(t, 2, o.Len())
}

func TestOrchestrator_FailureStopsPeers(t *testing.T) {
	o := NewOrchestrator(discard())
	stopped := make(chan struct{})
	o.Add("waiter", func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	})
	o.Add("broken", func(context.Context) error { return errors.New("rpc unreachable") })

	err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	<-stopped
}

func TestOrchestrator_EarlyExitIsAnError(t *testing.T) {
	o := NewOrchestrator(discard())
	o.Add("quitter", func(context.Context) error { return nil })
	err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quitter")
}

func TestScheduler_RejectsBadSpec(t *testing.T) {
	s := NewScheduler(discard())
	require.NoError(t, s.Add("wave", "0 */15 * * * *", func(context.Context) error { return nil }))
	err := s.Add("broken", "every now and then", func(context.Context) error { return nil })
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "broken"))
	assert.Equal(t, 1, s.Len())
}

func TestScheduler_RunsJobs(t *testing.T) {
	s := NewScheduler(discard())
	ran := make(chan struct{}, 4)
	require.NoError(t, s.Add("tick", "* * * * * *", func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job never ran")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
