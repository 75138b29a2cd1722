package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PurchaseStore persists the submission history shown in history views.
type PurchaseStore interface {
	Create(ctx context.Context, rec PurchaseRecord) error
	UpdateOutcome(ctx context.Context, rec PurchaseRecord) error
	GetByID(ctx context.Context, id string) (PurchaseRecord, error)
	ListByAccount(ctx context.Context, account string, opts ListOpts) ([]PurchaseRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]PurchaseRecord, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
