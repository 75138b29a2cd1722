package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/policast/internal/domain"
)

// PurchaseStore implements domain.PurchaseStore using PostgreSQL. Amounts
// are NUMERIC(78,0) base units exchanged as decimal strings.
type PurchaseStore struct {
	db querier
}

// NewPurchaseStore creates a new PurchaseStore backed by the given pool.
func NewPurchaseStore(db querier) *PurchaseStore {
	return &PurchaseStore{db: db}
}

const purchaseSelectCols = `id, account, kind, version, market_id, option_id,
	quantity::text, cost::text, max_total_cost::text, spender, approval::text,
	action_to, action_data, path, calls_id, approval_tx, action_tx,
	outcome, message, retry_available, created_at, updated_at`

// Create inserts rec. Addresses are stored lower-cased so lookups by account
// are case-insensitive.
func (s *PurchaseStore) Create(ctx context.Context, rec domain.PurchaseRecord) error {
	const query = `
		INSERT INTO purchases (
			id, account, kind, version, market_id, option_id,
			quantity, cost, max_total_cost, spender, approval,
			action_to, action_data, path, calls_id, approval_tx, action_tx,
			outcome, message, retry_available, created_at, updated_at
		) VALUES (
			$1, lower($2), $3, $4, $5, $6,
			$7::numeric, $8::numeric, $9::numeric, $10, $11::numeric,
			$12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $21
		)`

	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, query,
		rec.ID, rec.Account, string(rec.Kind), string(rec.Version),
		int64(rec.MarketID), int64(rec.OptionID),
		zeroIfEmpty(rec.Quantity), zeroIfEmpty(rec.Cost), nullIfEmpty(rec.MaxTotalCost),
		nullIfEmpty(rec.Spender), nullIfEmpty(rec.Approval),
		nullIfEmpty(rec.ActionTo), nullIfEmpty(rec.ActionData),
		string(rec.Path), nullIfEmpty(rec.CallsID), nullIfEmpty(rec.ApprovalTx), nullIfEmpty(rec.ActionTx),
		string(rec.Outcome), nullIfEmpty(rec.Message), rec.RetryAvailable, created,
	)
	if err != nil {
		return fmt.Errorf("postgres: create purchase %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateOutcome writes the submission result fields of rec.
func (s *PurchaseStore) UpdateOutcome(ctx context.Context, rec domain.PurchaseRecord) error {
	const query = `
		UPDATE purchases SET
			path = $2, calls_id = $3, approval_tx = $4, action_tx = $5,
			outcome = $6, message = $7, retry_available = $8,
			cost = COALESCE($9::numeric, cost),
			max_total_cost = COALESCE($10::numeric, max_total_cost),
			approval = COALESCE($11::numeric, approval),
			action_data = COALESCE($12, action_data),
			updated_at = NOW()
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query,
		rec.ID, string(rec.Path), nullIfEmpty(rec.CallsID),
		nullIfEmpty(rec.ApprovalTx), nullIfEmpty(rec.ActionTx),
		string(rec.Outcome), nullIfEmpty(rec.Message), rec.RetryAvailable,
		nullIfEmpty(rec.Cost), nullIfEmpty(rec.MaxTotalCost), nullIfEmpty(rec.Approval),
		nullIfEmpty(rec.ActionData),
	)
	if err != nil {
		return fmt.Errorf("postgres: update purchase %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID returns one record or domain.ErrNotFound.
func (s *PurchaseStore) GetByID(ctx context.Context, id string) (domain.PurchaseRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT `+purchaseSelectCols+` FROM purchases WHERE id = $1`, id)
	rec, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PurchaseRecord{}, domain.ErrNotFound
		}
		return domain.PurchaseRecord{}, fmt.Errorf("postgres: get purchase %s: %w", id, err)
	}
	return rec, nil
}

// ListByAccount returns the history of account, newest first.
func (s *PurchaseStore) ListByAccount(ctx context.Context, account string, opts domain.ListOpts) ([]domain.PurchaseRecord, error) {
	query, args := listQuery(
		`SELECT `+purchaseSelectCols+` FROM purchases WHERE account = lower($1)`,
		[]any{account}, opts)
	return s.list(ctx, "list purchases by account", query, args)
}

// ListBefore returns every record created before the cutoff, oldest first.
func (s *PurchaseStore) ListBefore(ctx context.Context, before time.Time) ([]domain.PurchaseRecord, error) {
	return s.list(ctx, "list purchases before",
		`SELECT `+purchaseSelectCols+` FROM purchases WHERE created_at < $1 ORDER BY created_at ASC`,
		[]any{before})
}

// DeleteBefore removes records created before the cutoff. Used after the
// rows have been archived.
func (s *PurchaseStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM purchases WHERE created_at < $1 AND NOT retry_available`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete purchases before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func (s *PurchaseStore) list(ctx context.Context, op, query string, args []any) ([]domain.PurchaseRecord, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.PurchaseRecord
	for rows.Next() {
		rec, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: %s: scan: %w", op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return out, nil
}

func scanPurchase(scanner interface{ Scan(dest ...any) error }) (domain.PurchaseRecord, error) {
	var (
		rec                                    domain.PurchaseRecord
		kind, version, path, outcome           string
		marketID, optionID                     int64
		maxTotal, spender, approval, to, data  *string
		callsID, approvalTx, actionTx, message *string
	)
	err := scanner.Scan(
		&rec.ID, &rec.Account, &kind, &version, &marketID, &optionID,
		&rec.Quantity, &rec.Cost, &maxTotal, &spender, &approval,
		&to, &data, &path, &callsID, &approvalTx, &actionTx,
		&outcome, &message, &rec.RetryAvailable, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return domain.PurchaseRecord{}, err
	}
	rec.Kind = domain.ActionKind(kind)
	rec.Version = domain.MarketVersion(version)
	rec.Path = domain.SubmissionPath(path)
	rec.Outcome = domain.Outcome(outcome)
	rec.MarketID = uint64(marketID)
	rec.OptionID = uint64(optionID)
	rec.MaxTotalCost = deref(maxTotal)
	rec.Spender = deref(spender)
	rec.Approval = deref(approval)
	rec.ActionTo = deref(to)
	rec.ActionData = deref(data)
	rec.CallsID = deref(callsID)
	rec.ApprovalTx = deref(approvalTx)
	rec.ActionTx = deref(actionTx)
	rec.Message = deref(message)
	return rec, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func zeroIfEmpty(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ domain.PurchaseStore = (*PurchaseStore)(nil)
