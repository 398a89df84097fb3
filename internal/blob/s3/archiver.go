package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neonslash/neonvault/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"

	// Exports larger than this go through the multipart uploader.
	multipartThreshold = 8 * 1024 * 1024

	auditPageSize = 1000
)

// ArchiveImpl implements domain.Archiver by exporting rows to JSONL objects.
//
// Resolved markets are copied but kept in Postgres, since the indexer
// re-upserts every market it reads from the vault. Audit rows are deleted
// once their export has been confirmed in the bucket.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	reader  domain.BlobReader
	markets domain.MarketStore
	audit   domain.AuditStore
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, markets domain.MarketStore, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		reader:  reader,
		markets: markets,
		audit:   audit,
	}
}

type marketRecord struct {
	ID          uint64    `json:"id"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	TotalYes    uint64    `json:"total_yes"`
	TotalNo     uint64    `json:"total_no"`
	Result      bool      `json:"result"`
	Deadline    time.Time `json:"deadline"`
}

type auditRecord struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ArchiveResolvedMarkets writes every market resolved with a deadline before
// the cutoff to markets/YYYY-MM.jsonl. Re-running within the same month
// overwrites the object with a superset.
func (a *ArchiveImpl) ArchiveResolvedMarkets(ctx context.Context, before time.Time) (int64, error) {
	markets, err := a.markets.ListResolvedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive markets query: %w", err)
	}
	if len(markets) == 0 {
		return 0, nil
	}

	records := make([]marketRecord, len(markets))
	for i, m := range markets {
		records[i] = marketRecord{
			ID:          m.ID,
			Description: m.Description,
			Category:    m.Category,
			TotalYes:    m.TotalYes,
			TotalNo:     m.TotalNo,
			Result:      m.Result,
			Deadline:    m.Deadline.UTC(),
		}
	}

	path := domain.ArchiveMarkets.Path(before)
	if err := upload(ctx, a.writer, path, records); err != nil {
		return 0, fmt.Errorf("s3blob: archive markets: %w", err)
	}

	count := int64(len(records))
	if err := a.audit.Log(ctx, "archive.markets", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive markets audit log: %w", err)
	}
	return count, nil
}

// ArchiveAudit exports audit entries older than the cutoff to
// audit/YYYY-MM-DD.jsonl and then removes them from the store.
func (a *ArchiveImpl) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	var records []auditRecord
	for offset := 0; ; offset += auditPageSize {
		page, err := a.audit.List(ctx, domain.ListOpts{Limit: auditPageSize, Offset: offset, Until: &before})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
		}
		for _, e := range page {
			records = append(records, auditRecord{ID: e.ID, Event: e.Event, Detail: e.Detail, CreatedAt: e.CreatedAt.UTC()})
		}
		if len(page) < auditPageSize {
			break
		}
	}
	if len(records) == 0 {
		return 0, nil
	}

	path := domain.ArchiveAudit.Path(before)
	if err := upload(ctx, a.writer, path, records); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit: %w", err)
	}
	ok, err := a.reader.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit verify: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("s3blob: archive audit verify %s: %w", path, domain.ErrNotFound)
	}

	deleted, err := a.audit.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit prune: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.audit", map[string]any{
		"path":    path,
		"count":   len(records),
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}); err != nil {
		return int64(len(records)), fmt.Errorf("s3blob: archive audit log: %w", err)
	}
	return int64(len(records)), nil
}

// upload writes records as JSONL, switching to multipart for large exports.
func upload[T any](ctx context.Context, w domain.BlobWriter, path string, records []T) error {
	buf, err := marshalJSONL(records)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if len(buf) > multipartThreshold {
		return w.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	}
	return w.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
}

// marshalJSONL encodes each record as one compact JSON line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
