package postgres

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/policast/internal/domain"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("column count mismatch")
	}
	for i, v := range r.values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case **string:
			if v == nil {
				*d = nil
			} else {
				s := v.(string)
				*d = &s
			}
		case *int64:
			*d = v.(int64)
		case *bool:
			*d = v.(bool)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return errors.New("unsupported destination")
		}
	}
	return nil
}

type fakeDB struct {
	sql  string
	args []any
	tag  string
	row  fakeRow
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql, f.args = sql, args
	return pgconn.NewCommandTag(f.tag), nil
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.sql, f.args = sql, args
	return f.row
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/policast?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "policast"}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
}

func TestListQuery(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q, args := listQuery("SELECT * FROM purchases WHERE account = $1", []any{"0xabc"},
		domain.ListOpts{Since: &since, Limit: 20, Offset: 40})
	assert.Equal(t,
		"SELECT * FROM purchases WHERE account = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4", q)
	assert.Equal(t, []any{"0xabc", since, 20, 40}, args)

	q, args = listQuery("SELECT 1 WHERE TRUE", nil, domain.ListOpts{})
	assert.Equal(t, "SELECT 1 WHERE TRUE ORDER BY created_at DESC", q)
	assert.Empty(t, args)
}

func TestGetByID(t *testing.T) {
	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	db := &fakeDB{row: fakeRow{values: []any{
		"p-1", "0xabc", "buy", "v2", int64(7), int64(1),
		"100", "50", "51", "0xspender", "51",
		"0xmarket", "0xdeadbeef", "batch", "0xbundle", nil, nil,
		"partial", "approval succeeded", true, now, now,
	}}}
	rec, err := NewPurchaseStore(db).GetByID(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, []any{"p-1"}, db.args)
	assert.Equal(t, domain.ActionBuy, rec.Kind)
	assert.Equal(t, domain.MarketV2, rec.Version)
	assert.Equal(t, uint64(7), rec.MarketID)
	assert.Equal(t, "51", rec.Approval)
	assert.Equal(t, "0xdeadbeef", rec.ActionData)
	assert.Equal(t, domain.OutcomePartial, rec.Outcome)
	assert.Empty(t, rec.ApprovalTx)
	assert.True(t, rec.RetryAvailable)

	_, err = NewPurchaseStore(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}}).GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateOutcomeNotFound(t *testing.T) {
	db := &fakeDB{tag: "UPDATE 0"}
	err := NewPurchaseStore(db).UpdateOutcome(context.Background(), domain.PurchaseRecord{ID: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	db.tag = "UPDATE 1"
	require.NoError(t, NewPurchaseStore(db).UpdateOutcome(context.Background(), domain.PurchaseRecord{
		ID: "x", Outcome: domain.OutcomeSuccess, ActionTx: "0xaa",
	}))
	assert.Equal(t, "x", db.args[0])
	assert.Nil(t, db.args[2], "empty calls id is stored as NULL")
	assert.Equal(t, "0xaa", *db.args[4].(*string))
}

func TestCreateDefaultsAmounts(t *testing.T) {
	db := &fakeDB{tag: "INSERT 0 1"}
	require.NoError(t, NewPurchaseStore(db).Create(context.Background(), domain.PurchaseRecord{
		ID: "c-1", Account: "0xABC", Kind: domain.ActionClaimWinnings, Version: domain.MarketV2,
	}))
	assert.Equal(t, "0", db.args[6])
	assert.Equal(t, "0", db.args[7])
	assert.Nil(t, db.args[8])
	assert.False(t, db.args[20].(time.Time).IsZero())
}

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_history_index.sql": {Data: []byte("SELECT 1")},
		"migrations/001_init.sql":          {Data: []byte("SELECT 1")},
		"migrations/README":                {Data: []byte("notes")},
	}
	todo, err := pendingMigrations(fsys, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql", "002_history_index.sql"}, todo)

	todo, err = pendingMigrations(fsys, []string{"001_init.sql"})
	require.NoError(t, err)
	assert.Equal(t, []string{"002_history_index.sql"}, todo)
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	todo, err := pendingMigrations(migrationsFS, nil)
	require.NoError(t, err)
	assert.Contains(t, todo, "001_init.sql")
}
