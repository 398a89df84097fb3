package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neonslash/neonvault/internal/domain"
)

// auditDeleteBatch bounds each DELETE so pruning a large backlog does not
// hold one long lock on audit_log.
const auditDeleteBatch = 5000

// AuditStore keeps the action audit trail in audit_log.
type AuditStore struct {
	pool *pgxpool.Pool
}

var _ domain.AuditStore = (*AuditStore)(nil)

// NewAuditStore creates an AuditStore.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Log records one event. detail is stored as JSONB.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: audit %s: marshal detail: %w", event, err)
	}
	if _, err := s.pool.Exec(ctx, `INSERT INTO audit_log (event, detail) VALUES ($1, $2)`, event, raw); err != nil {
		return fmt.Errorf("postgres: audit %s: %w", event, err)
	}
	return nil
}

// auditQuery builds the SELECT for opts. Ranged reads come back oldest first
// for the archiver; unranged reads are newest first for the dashboard.
func auditQuery(opts domain.ListOpts) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if opts.Event != "" {
		where = append(where, "event = "+arg(opts.Event))
	}
	if opts.Since != nil {
		where = append(where, "created_at >= "+arg(opts.Since.UTC()))
	}
	if opts.Until != nil {
		where = append(where, "created_at < "+arg(opts.Until.UTC()))
	}

	var b strings.Builder
	b.WriteString("SELECT id, event, detail, created_at FROM audit_log")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if opts.Since != nil || opts.Until != nil {
		b.WriteString(" ORDER BY created_at, id")
	} else {
		b.WriteString(" ORDER BY created_at DESC, id DESC")
	}
	if opts.Limit > 0 {
		b.WriteString(" LIMIT " + arg(opts.Limit))
	}
	if opts.Offset > 0 {
		b.WriteString(" OFFSET " + arg(opts.Offset))
	}
	return b.String(), args
}

// List pages through the audit log.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query, args := auditQuery(opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AuditEntry, error) {
		var (
			e   domain.AuditEntry
			raw []byte
		)
		if err := row.Scan(&e.ID, &e.Event, &raw, &e.CreatedAt); err != nil {
			return e, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Detail); err != nil {
				return e, fmt.Errorf("detail of entry %d: %w", e.ID, err)
			}
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit: %w", err)
	}
	return entries, nil
}

// DeleteBefore prunes entries older than before in bounded batches and
// returns the total removed.
func (s *AuditStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	const query = `
		DELETE FROM audit_log WHERE id IN (
			SELECT id FROM audit_log WHERE created_at < $1 ORDER BY id LIMIT $2
		)`
	var total int64
	for {
		tag, err := s.pool.Exec(ctx, query, before.UTC(), auditDeleteBatch)
		if err != nil {
			return total, fmt.Errorf("postgres: prune audit before %s: %w", before.Format(time.RFC3339), err)
		}
		total += tag.RowsAffected()
		if tag.RowsAffected() < auditDeleteBatch {
			return total, nil
		}
	}
}
