package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/policast/internal/domain"
	"github.com/alanyoungcy/policast/internal/orchestrator"
	"github.com/alanyoungcy/policast/internal/service"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeMarkets struct {
	view domain.MarketView
	err  error
}

func (f *fakeMarkets) Market(_ context.Context, version domain.MarketVersion, id uint64) (domain.MarketView, error) {
	if f.err != nil {
		return domain.MarketView{}, f.err
	}
	v := f.view
	v.Version, v.ID = version, id
	return v, nil
}

func (f *fakeMarkets) Option(_ context.Context, marketID, optionID uint64) (domain.OptionView, error) {
	if f.err != nil {
		return domain.OptionView{}, f.err
	}
	return domain.OptionView{MarketID: marketID, ID: optionID, Name: "Yes"}, nil
}

type fakeAccounts struct{}

func (fakeAccounts) State(_ context.Context, owner string) (service.AccountView, error) {
	if owner == "bad" {
		return service.AccountView{}, domain.Invalid("owner", "not an address")
	}
	return service.AccountView{Owner: owner}, nil
}

type fakePurchases struct {
	lastBuy  orchestrator.PurchaseRequest
	lastOpts domain.ListOpts
	lastAcct string
	sub      service.Submission
	err      error
}

func (f *fakePurchases) Quote(_ context.Context, req orchestrator.PurchaseRequest) (domain.PurchaseIntent, error) {
	return domain.PurchaseIntent{ID: "q", MarketID: req.MarketID, ComputedCost: big.NewInt(5)}, f.err
}

func (f *fakePurchases) Purchase(_ context.Context, req orchestrator.PurchaseRequest) (service.Submission, error) {
	f.lastBuy = req
	return f.sub, f.err
}

func (f *fakePurchases) Retry(_ context.Context, id string) (service.Submission, error) {
	if id != f.sub.Record.ID {
		return service.Submission{}, domain.ErrNotFound
	}
	return f.sub, f.err
}

func (f *fakePurchases) Sell(context.Context, orchestrator.SellRequest) (service.Submission, error) {
	return f.sub, f.err
}

func (f *fakePurchases) Claim(context.Context, orchestrator.ClaimRequest) (service.Submission, error) {
	return f.sub, f.err
}

func (f *fakePurchases) Get(_ context.Context, id string) (domain.PurchaseRecord, error) {
	if id != f.sub.Record.ID {
		return domain.PurchaseRecord{}, domain.ErrNotFound
	}
	return f.sub.Record, nil
}

func (f *fakePurchases) History(_ context.Context, account string, opts domain.ListOpts) ([]domain.PurchaseRecord, error) {
	f.lastAcct, f.lastOpts = account, opts
	return nil, nil
}

type fakeAdmin struct {
	lastAction service.MarketActionRequest
	lastCreate service.CreateMarketRequest
}

func (f *fakeAdmin) CreateMarket(_ context.Context, req service.CreateMarketRequest) (service.Submission, error) {
	f.lastCreate = req
	return service.Submission{Record: domain.PurchaseRecord{ID: req.ID, Outcome: domain.OutcomeSuccess}}, nil
}

func (f *fakeAdmin) MarketAction(_ context.Context, req service.MarketActionRequest) (service.Submission, error) {
	f.lastAction = req
	if req.Action == domain.ActionDispute && req.Reason == "" {
		return service.Submission{}, domain.Invalid("reason", "required")
	}
	return service.Submission{Record: domain.PurchaseRecord{ID: "a", Outcome: domain.OutcomeSuccess}}, nil
}

func (f *fakeAdmin) Discover(context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"markets":[1,2]}`), nil
}

func (f *fakeAdmin) AuditLog(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return []domain.AuditEntry{{ID: int64(opts.Limit), Event: "admin.resolve_market"}}, nil
}

type fakeBoard struct{ query url.Values }

func (f *fakeBoard) Leaderboard(_ context.Context, q url.Values) (json.RawMessage, error) {
	f.query = q
	return json.RawMessage(`[{"rank":1}]`), nil
}

type fixture struct {
	mux       *http.ServeMux
	markets   *fakeMarkets
	purchases *fakePurchases
	admin     *fakeAdmin
	board     *fakeBoard
}

func newFixture() *fixture {
	f := &fixture{
		mux:       http.NewServeMux(),
		markets:   &fakeMarkets{view: domain.MarketView{Question: "Rain?"}},
		purchases: &fakePurchases{},
		admin:     &fakeAdmin{},
		board:     &fakeBoard{},
	}
	mh := NewMarketHandler(f.markets, fakeAccounts{}, testLogger())
	ph := NewPurchaseHandler(f.purchases, testLogger())
	ah := NewAdminHandler(f.admin, f.board, nil, testLogger())

	f.mux.HandleFunc("GET /api/markets/{version}/{id}", mh.GetMarket)
	f.mux.HandleFunc("GET /api/markets/v2/{id}/options/{optionId}", mh.GetOption)
	f.mux.HandleFunc("GET /api/accounts/{address}", mh.GetAccount)
	f.mux.HandleFunc("POST /api/purchases/quote", ph.Quote)
	f.mux.HandleFunc("POST /api/purchases", ph.Purchase)
	f.mux.HandleFunc("POST /api/purchases/{id}/retry", ph.Retry)
	f.mux.HandleFunc("GET /api/purchases", ph.List)
	f.mux.HandleFunc("GET /api/purchases/{id}", ph.Get)
	f.mux.HandleFunc("POST /api/admin/markets", ah.CreateMarket)
	f.mux.HandleFunc("POST /api/admin/markets/{id}/{action}", ah.MarketAction)
	f.mux.HandleFunc("GET /api/admin/discover", ah.Discover)
	f.mux.HandleFunc("GET /api/admin/audit", ah.AuditLog)
	f.mux.HandleFunc("GET /api/admin/archives", ah.Archives)
	f.mux.HandleFunc("GET /api/leaderboard", ah.Leaderboard)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestGetMarket(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/markets/V2/7", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "v2", body["version"])
	assert.Equal(t, float64(7), body["id"])
	assert.Equal(t, "Rain?", body["question"])

	rec = f.do(t, http.MethodGet, "/api/markets/v3/7", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "version", decodeBody(t, rec)["field"])

	rec = f.do(t, http.MethodGet, "/api/markets/v1/-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.markets.err = domain.ErrNotFound
	rec = f.do(t, http.MethodGet, "/api/markets/v1/3", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOptionAndAccount(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/markets/v2/4/options/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Yes", decodeBody(t, rec)["name"])

	rec = f.do(t, http.MethodGet, "/api/accounts/0xabc", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0xabc", decodeBody(t, rec)["owner"])

	rec = f.do(t, http.MethodGet, "/api/accounts/bad", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPurchaseUsesIdempotencyKey(t *testing.T) {
	f := newFixture()
	f.purchases.sub = service.Submission{
		Record: domain.PurchaseRecord{ID: "key-1", Outcome: domain.OutcomePartial, RetryAvailable: true},
		Result: orchestrator.Result{IntentID: "key-1", Outcome: domain.OutcomePartial, RetryAvailable: true},
	}

	rec := f.do(t, http.MethodPost, "/api/purchases",
		`{"version":"v2","market_id":3,"option_id":1,"amount":"2.5"}`,
		map[string]string{"Idempotency-Key": "key-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "key-1", f.purchases.lastBuy.ID)
	assert.Equal(t, "2.5", f.purchases.lastBuy.Amount)

	body := decodeBody(t, rec)
	result := body["result"].(map[string]any)
	assert.Equal(t, "partial", result["outcome"])
	assert.Equal(t, true, result["retry_available"])
}

func TestPurchaseRejectsUnknownFields(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/api/purchases", `{"version":"v2","price":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "body", decodeBody(t, rec)["field"])

	rec = f.do(t, http.MethodPost, "/api/purchases", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPurchaseInsufficientBalance(t *testing.T) {
	f := newFixture()
	f.purchases.err = &domain.InsufficientBalanceError{
		Required:         big.NewInt(15),
		Available:        big.NewInt(5),
		RequiredDisplay:  "15",
		AvailableDisplay: "5",
		Symbol:           "BUSTER",
	}

	rec := f.do(t, http.MethodPost, "/api/purchases", `{"version":"v1","market_id":1,"amount":"15"}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "insufficient_balance", body["code"])
	assert.Equal(t, "15", body["required"])
	assert.Equal(t, "5", body["available"])
	assert.Equal(t, "BUSTER", body["symbol"])
	assert.NotContains(t, body, "submission")
}

func TestPurchaseFailureAttachesSubmission(t *testing.T) {
	f := newFixture()
	f.purchases.sub = service.Submission{Record: domain.PurchaseRecord{ID: "p-1", Outcome: domain.OutcomeFailure}}
	f.purchases.err = &domain.RevertError{Name: "MarketEnded", Message: "market has ended"}

	rec := f.do(t, http.MethodPost, "/api/purchases", `{"version":"v2","market_id":1,"option_id":0,"amount":"1"}`, nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "market has ended", body["error"])
	assert.Equal(t, "reverted", body["code"])
	sub := body["submission"].(map[string]any)
	assert.Equal(t, "p-1", sub["record"].(map[string]any)["id"])
}

func TestServiceErrorStatuses(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{domain.ErrWalletRejected, http.StatusConflict},
		{domain.ErrDuplicateIntent, http.StatusConflict},
		{domain.ErrLockHeld, http.StatusConflict},
		{domain.ErrNotRetryable, http.StatusConflict},
		{domain.ErrMissingPermission, http.StatusForbidden},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.ErrMalformedTuple, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			f := newFixture()
			f.purchases.err = tc.err
			rec := f.do(t, http.MethodPost, "/api/purchases/quote", `{"version":"v2","market_id":1,"amount":"1"}`, nil)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestInternalErrorIsNotLeaked(t *testing.T) {
	f := newFixture()
	f.purchases.err = errors.New("dial tcp 10.0.0.1:5432: refused")
	rec := f.do(t, http.MethodPost, "/api/purchases/quote", `{"version":"v2","market_id":1,"amount":"1"}`, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeBody(t, rec)["error"])
}

func TestRetryAndGet(t *testing.T) {
	f := newFixture()
	f.purchases.sub = service.Submission{Record: domain.PurchaseRecord{ID: "p-9", Outcome: domain.OutcomeSuccess}}

	rec := f.do(t, http.MethodPost, "/api/purchases/p-9/retry", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/purchases/nope/retry", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/purchases/p-9", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", decodeBody(t, rec)["outcome"])
}

func TestListPurchases(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/purchases?account=0xabc&limit=500&since=2026-01-02T00:00:00Z", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0xabc", f.purchases.lastAcct)
	assert.Equal(t, 200, f.purchases.lastOpts.Limit)
	require.NotNil(t, f.purchases.lastOpts.Since)
	assert.Equal(t, 2026, f.purchases.lastOpts.Since.Year())
	assert.Empty(t, decodeBody(t, rec)["purchases"])
	assert.Contains(t, rec.Body.String(), `"purchases":[]`)

	rec = f.do(t, http.MethodGet, "/api/purchases?until=yesterday", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "until", decodeBody(t, rec)["field"])
}

func TestAdminMarketAction(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/admin/markets/12/resolve", `{"winning_option":2}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ActionResolveMarket, f.admin.lastAction.Action)
	assert.Equal(t, uint64(12), f.admin.lastAction.MarketID)
	assert.Equal(t, uint64(2), f.admin.lastAction.WinningOption)
	assert.Equal(t, domain.MarketV2, f.admin.lastAction.Version)

	rec = f.do(t, http.MethodPost, "/api/admin/markets/5/resolve?version=v1", `{"winning_option":0}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.MarketV1, f.admin.lastAction.Version)

	rec = f.do(t, http.MethodPost, "/api/admin/markets/5/validate", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ActionValidate, f.admin.lastAction.Action)

	rec = f.do(t, http.MethodPost, "/api/admin/markets/5/dispute", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/admin/markets/5/close", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "action", decodeBody(t, rec)["field"])
}

func TestAdminCreateMarketDefaultsToV2(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/api/admin/markets",
		`{"question":"Q?","options":["A","B"],"duration_seconds":86400}`,
		map[string]string{"Idempotency-Key": "c-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.MarketV2, f.admin.lastCreate.Version)
	assert.Equal(t, "c-1", f.admin.lastCreate.ID)
	assert.Equal(t, []string{"A", "B"}, f.admin.lastCreate.Options)
}

func TestPassthroughDocuments(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/admin/discover", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"markets":[1,2]}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/leaderboard?period=week", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"rank":1}]`, rec.Body.String())
	assert.Equal(t, "week", f.board.query.Get("period"))
}

func TestAdminAuditAndArchives(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/admin/audit?limit=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody(t, rec)["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "admin.resolve_market", entries[0].(map[string]any)["event"])
	assert.Equal(t, float64(10), entries[0].(map[string]any)["id"])

	rec = f.do(t, http.MethodGet, "/api/admin/archives", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler(map[string]Check{
		"redis":    func(context.Context) error { return nil },
		"postgres": func(context.Context) error { return errors.New("down") },
	}, "0xsigner", testLogger())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "0xsigner", body["account"])
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "ok", deps["redis"])
	assert.Equal(t, "down", deps["postgres"])

	rec = httptest.NewRecorder()
	NewHealthHandler(nil, "", testLogger()).HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
