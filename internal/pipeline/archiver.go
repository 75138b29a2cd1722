package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// PurchaseArchiver moves purchase history older than a cutoff to object
// storage and returns how many rows it moved.
type PurchaseArchiver interface {
	ArchivePurchases(ctx context.Context, before time.Time) (int64, error)
}

// Archiver runs the history archive on a schedule.
type Archiver struct {
	blobArchiver  PurchaseArchiver
	retentionDays int
	now           func() time.Time
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(blobArchiver PurchaseArchiver, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		retentionDays: retentionDays,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Cutoff is the creation time before which rows are archived.
func (a *Archiver) Cutoff() time.Time {
	return a.now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
}

// Run executes a single archive run.
func (a *Archiver) Run(ctx context.Context) (int64, error) {
	cutoff := a.Cutoff()
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	n, err := a.blobArchiver.ArchivePurchases(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archiving purchases before %v: %w", cutoff, err)
	}
	a.logger.InfoContext(ctx, "archive run complete", slog.Int64("purchases_archived", n))
	return n, nil
}

// RunLoop archives on interval until ctx is cancelled.
func (a *Archiver) RunLoop(ctx context.Context, interval time.Duration) error {
	return every(ctx, interval, func() {
		if _, err := a.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
		}
	})
}
