package s3blob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neonslash/neonvault/internal/domain"
)

type memBlobs struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	m.types[path] = contentType
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "multipart")
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	return out, nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

type marketRows struct {
	domain.MarketStore
	rows []domain.Market
}

func (s marketRows) ListResolvedBefore(_ context.Context, before time.Time) ([]domain.Market, error) {
	var out []domain.Market
	for _, m := range s.rows {
		if m.Resolved && m.Deadline.Before(before) {
			out = append(out, m)
		}
	}
	return out, nil
}

type auditRows struct {
	entries []domain.AuditEntry
	logged  []string
}

func (s *auditRows) Log(_ context.Context, event string, _ map[string]any) error {
	s.logged = append(s.logged, event)
	return nil
}

func (s *auditRows) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	var match []domain.AuditEntry
	for _, e := range s.entries {
		if opts.Until == nil || e.CreatedAt.Before(*opts.Until) {
			match = append(match, e)
		}
	}
	if opts.Offset >= len(match) {
		return nil, nil
	}
	match = match[opts.Offset:]
	if opts.Limit > 0 && len(match) > opts.Limit {
		match = match[:opts.Limit]
	}
	return match, nil
}

func (s *auditRows) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	var keep []domain.AuditEntry
	for _, e := range s.entries {
		if !e.CreatedAt.Before(before) {
			keep = append(keep, e)
		}
	}
	n := int64(len(s.entries) - len(keep))
	s.entries = keep
	return n, nil
}

var cutoff = time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)

func TestArchiveResolvedMarkets(t *testing.T) {
	blobs := newMemBlobs()
	audit := &auditRows{}
	markets := marketRows{rows: []domain.Market{
		{ID: 1, Description: "old & done", Category: "Gold", Resolved: true, Result: true, Deadline: cutoff.Add(-48 * time.Hour)},
		{ID: 2, Description: "open", Deadline: cutoff.Add(-48 * time.Hour)},
		{ID: 3, Description: "recent", Resolved: true, Deadline: cutoff.Add(time.Hour)},
	}}

	n, err := NewArchiver(blobs, blobs, markets, audit).ArchiveResolvedMarkets(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	body := string(blobs.objects["markets/2026-03.jsonl"])
	assert.Equal(t, jsonlContentType, blobs.types["markets/2026-03.jsonl"])
	assert.Equal(t, 1, strings.Count(body, "\n"))
	assert.Contains(t, body, `"description":"old & done"`)
	assert.Contains(t, body, `"result":true`)
	assert.Equal(t, []string{"archive.markets"}, audit.logged)
}

func TestArchiveResolvedMarkets_NothingToDo(t *testing.T) {
	blobs := newMemBlobs()
	audit := &auditRows{}

	n, err := NewArchiver(blobs, blobs, marketRows{}, audit).ArchiveResolvedMarkets(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, blobs.objects)
	assert.Empty(t, audit.logged)
}

func TestArchiveAudit_ExportsThenPrunes(t *testing.T) {
	blobs := newMemBlobs()
	audit := &auditRows{}
	for i := range auditPageSize + 5 {
		audit.entries = append(audit.entries, domain.AuditEntry{
			ID:        int64(i + 1),
			Event:     "action.bet",
			CreatedAt: cutoff.Add(-time.Duration(auditPageSize+10-i) * time.Minute),
		})
	}
	audit.entries = append(audit.entries, domain.AuditEntry{ID: 9999, Event: "action.stake", CreatedAt: cutoff.Add(time.Minute)})

	n, err := NewArchiver(blobs, blobs, marketRows{}, audit).ArchiveAudit(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, auditPageSize+5, n)

	body := blobs.objects["audit/2026-03-01.jsonl"]
	assert.Equal(t, auditPageSize+5, bytes.Count(body, []byte("\n")))
	require.Len(t, audit.entries, 1)
	assert.EqualValues(t, 9999, audit.entries[0].ID)
	assert.Equal(t, []string{"archive.audit"}, audit.logged)
}

func TestClientKeys(t *testing.T) {
	c := &Client{prefix: normalisePrefix("/archive/")}
	assert.Equal(t, "archive/markets/2026-03.jsonl", c.key("/markets/2026-03.jsonl"))
	assert.Equal(t, "markets/2026-03.jsonl", c.trim("archive/markets/2026-03.jsonl"))
	assert.Equal(t, "", normalisePrefix(""))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("http://localhost:9000", true))
}
