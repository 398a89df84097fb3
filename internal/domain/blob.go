package domain

import (
	"context"
	"io"
	"strings"
	"time"
)

// ArchiveKind names a family of cold-storage exports. Each kind lives under
// its own top-level folder, one JSONL object per period.
type ArchiveKind string

const (
	// ArchiveMarkets holds resolved markets, one object per month.
	ArchiveMarkets ArchiveKind = "markets"
	// ArchiveAudit holds pruned audit rows, one object per day.
	ArchiveAudit ArchiveKind = "audit"
)

func (k ArchiveKind) layout() string {
	if k == ArchiveMarkets {
		return "2006-01"
	}
	return "2006-01-02"
}

// Path returns the object path of the export covering the period that
// contains cutoff, e.g. markets/2026-03.jsonl or audit/2026-03-01.jsonl.
func (k ArchiveKind) Path(cutoff time.Time) string {
	return string(k) + "/" + cutoff.UTC().Format(k.layout()) + ".jsonl"
}

// ParseArchivePath is the inverse of ArchiveKind.Path. Objects that do not
// follow the layout report ok=false.
func ParseArchivePath(path string) (kind ArchiveKind, period time.Time, ok bool) {
	folder, file, found := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	stamp, isJSONL := strings.CutSuffix(file, ".jsonl")
	if !found || !isJSONL {
		return "", time.Time{}, false
	}
	kind = ArchiveKind(folder)
	if kind != ArchiveMarkets && kind != ArchiveAudit {
		return "", time.Time{}, false
	}
	period, err := time.Parse(kind.layout(), stamp)
	if err != nil {
		return "", time.Time{}, false
	}
	return kind, period, true
}

// BlobInfo describes one object in the archive bucket.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads archive exports.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	// PutMultipart is used for exports too large for a single PUT.
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader reads archive exports back.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver copies resolved markets and moves aged audit rows to cold
// storage, returning how many records each export holds.
type Archiver interface {
	ArchiveResolvedMarkets(ctx context.Context, before time.Time) (int64, error)
	ArchiveAudit(ctx context.Context, before time.Time) (int64, error)
}
