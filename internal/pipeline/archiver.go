package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neonslash/neonvault/internal/domain"
)

// Archiver moves rows older than the retention window to cold storage.
type Archiver struct {
	blobArchiver  domain.Archiver
	retentionDays int
	clock         func() time.Time
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver. retentionDays below 1 is treated as 1.
func NewArchiver(blobArchiver domain.Archiver, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		retentionDays: max(retentionDays, 1),
		clock:         time.Now,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// SetClock overrides the time source used to compute the cutoff.
func (a *Archiver) SetClock(clock func() time.Time) { a.clock = clock }

// Cutoff returns the instant before which rows are archived.
func (a *Archiver) Cutoff() time.Time {
	return a.clock().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
}

// Run executes a single archive pass over resolved markets and the audit log.
// The audit pass still runs when the market pass fails.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := a.Cutoff()
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	markets, mErr := a.blobArchiver.ArchiveResolvedMarkets(ctx, cutoff)
	if mErr != nil {
		mErr = fmt.Errorf("pipeline: archive markets before %s: %w", cutoff.Format(time.RFC3339), mErr)
	}

	audit, aErr := a.blobArchiver.ArchiveAudit(ctx, cutoff)
	if aErr != nil {
		aErr = fmt.Errorf("pipeline: archive audit before %s: %w", cutoff.Format(time.RFC3339), aErr)
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("markets_archived", markets),
		slog.Int64("audit_archived", audit),
	)

	if mErr != nil {
		return mErr
	}
	return aErr
}
