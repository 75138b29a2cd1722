package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/policast/internal/domain"
)

type memBlobs struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlobs) Put(_ context.Context, p string, body []byte, ct string) error {
	m.objects[p] = append([]byte(nil), body...)
	m.types[p] = ct
	return nil
}

func (m *memBlobs) Exists(_ context.Context, p string) (bool, error) {
	_, ok := m.objects[p]
	return ok, nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for k, v := range m.objects {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, domain.BlobInfo{Path: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

type memPurchases struct {
	recs    []domain.PurchaseRecord
	deleted int
}

func (m *memPurchases) ListBefore(_ context.Context, before time.Time) ([]domain.PurchaseRecord, error) {
	var out []domain.PurchaseRecord
	for _, r := range m.recs {
		if r.CreatedAt.Before(before) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memPurchases) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	var keep []domain.PurchaseRecord
	var n int64
	for _, r := range m.recs {
		if r.CreatedAt.Before(before) && !r.RetryAvailable {
			n++
			continue
		}
		keep = append(keep, r)
	}
	m.recs = keep
	m.deleted += int(n)
	return n, nil
}

type memAudit struct{ events []string }

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestArchivePurchases(t *testing.T) {
	cutoff := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	old := cutoff.Add(-48 * time.Hour)
	store := &memPurchases{recs: []domain.PurchaseRecord{
		{ID: "a", CreatedAt: old, Outcome: domain.OutcomeSuccess},
		{ID: "b", CreatedAt: old, Outcome: domain.OutcomePartial, RetryAvailable: true},
		{ID: "c", CreatedAt: old, Outcome: domain.OutcomeFailure},
		{ID: "d", CreatedAt: cutoff.Add(time.Hour), Outcome: domain.OutcomeSuccess},
	}}
	blobs := newMemBlobs()
	audit := &memAudit{}
	a := NewArchiver(blobs, blobs, store, audit, "")

	n, err := a.ArchivePurchases(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	key := "purchases/2026-01/2026-01-31.jsonl"
	require.Contains(t, blobs.objects, key)
	assert.Equal(t, jsonlContentType, blobs.types[key])

	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(blobs.objects[key]))
	for sc.Scan() {
		var rec domain.PurchaseRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"a", "c"}, ids)
	assert.Equal(t, []string{"archive.purchases"}, audit.events)

	remaining := make([]string, 0, len(store.recs))
	for _, r := range store.recs {
		remaining = append(remaining, r.ID)
	}
	assert.Equal(t, []string{"b", "d"}, remaining)

	infos, err := a.Archives(context.Background())
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestArchivePurchasesNothingToDo(t *testing.T) {
	blobs := newMemBlobs()
	audit := &memAudit{}
	a := NewArchiver(blobs, blobs, &memPurchases{}, audit, "history")
	n, err := a.ArchivePurchases(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, blobs.objects)
	assert.Empty(t, audit.events)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("localhost:9000", false))
	assert.Equal(t, "https://s3.example.org", normaliseEndpoint("s3.example.org", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("http://minio:9000", true))
}
