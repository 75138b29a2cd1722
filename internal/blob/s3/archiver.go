package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/alanyoungcy/policast/internal/domain"
)

// PurchaseArchiveStore is the part of the purchase store the archiver uses.
type PurchaseArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.PurchaseRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver implements domain.HistoryArchiver. Purchase rows older than the
// cutoff are written as one JSONL object, audited, and only then deleted
// from Postgres. Rows still awaiting a retry are kept.
type Archiver struct {
	writer    domain.BlobWriter
	reader    domain.BlobReader
	purchases PurchaseArchiveStore
	audit     domain.AuditStore
	prefix    string
}

// NewArchiver creates an Archiver writing under prefix.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, purchases PurchaseArchiveStore, audit domain.AuditStore, prefix string) *Archiver {
	if prefix == "" {
		prefix = "purchases"
	}
	return &Archiver{writer: writer, reader: reader, purchases: purchases, audit: audit, prefix: prefix}
}

// ArchivePurchases archives every row created before the cutoff and returns
// the number of rows deleted from the primary store. Re-running with the
// same cutoff does not upload twice.
func (a *Archiver) ArchivePurchases(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.purchases.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive purchases query: %w", err)
	}
	var done []domain.PurchaseRecord
	for _, r := range recs {
		if !r.RetryAvailable {
			done = append(done, r)
		}
	}
	if len(done) == 0 {
		return 0, nil
	}

	key := archivePath(a.prefix, before)
	exists, err := a.reader.Exists(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive purchases: %w", err)
	}
	if !exists {
		buf, err := marshalJSONL(done)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive purchases marshal: %w", err)
		}
		if err := a.writer.Put(ctx, key, buf, jsonlContentType); err != nil {
			return 0, fmt.Errorf("s3blob: archive purchases upload: %w", err)
		}
	}

	if err := a.audit.Log(ctx, "archive.purchases", map[string]any{
		"path":   key,
		"count":  len(done),
		"before": before.Format(time.RFC3339),
		"reused": exists,
	}); err != nil {
		return 0, fmt.Errorf("s3blob: archive purchases audit log: %w", err)
	}

	n, err := a.purchases.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive purchases prune: %w", err)
	}
	return n, nil
}

// Archives lists the archive objects written so far.
func (a *Archiver) Archives(ctx context.Context) ([]domain.BlobInfo, error) {
	return a.reader.List(ctx, a.prefix+"/")
}

// archivePath partitions archives by month and names them by cutoff day:
//
//	purchases/2026-01/2026-01-31.jsonl
func archivePath(prefix string, before time.Time) string {
	before = before.UTC()
	return path.Join(prefix, before.Format("2006-01"), before.Format("2006-01-02")+".jsonl")
}

// marshalJSONL encodes one compact JSON document per line.
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

var _ domain.HistoryArchiver = (*Archiver)(nil)
