package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/policast/internal/amount"
	"github.com/alanyoungcy/policast/internal/contracts"
	"github.com/alanyoungcy/policast/internal/domain"
	"github.com/alanyoungcy/policast/internal/orchestrator"
)

var signer = common.HexToAddress("0x9999999999999999999999999999999999999999")

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func e18(s string) *big.Int { return amount.MustParse(s, 18) }

func testSet(t *testing.T) *contracts.Set {
	t.Helper()
	set, err := contracts.Load(contracts.Addresses{
		Token:    "0x1111111111111111111111111111111111111111",
		MarketV1: "0x2222222222222222222222222222222222222222",
		MarketV2: "0x3333333333333333333333333333333333333333",
	})
	require.NoError(t, err)
	return set
}

type fakeSubmitter struct {
	mu         sync.Mutex
	prepareErr error
	result     orchestrator.Result
	err        error
	calls      []string
	actions    []orchestrator.ActionRequest
}

func (f *fakeSubmitter) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeSubmitter) Account() common.Address { return signer }

func (f *fakeSubmitter) PreparePurchase(_ context.Context, req orchestrator.PurchaseRequest) (domain.PurchaseIntent, error) {
	f.record("prepare")
	if f.prepareErr != nil {
		return domain.PurchaseIntent{}, f.prepareErr
	}
	return domain.PurchaseIntent{
		ID:               req.ID,
		Account:          signer.Hex(),
		Version:          req.Version,
		MarketID:         req.MarketID,
		OptionID:         req.OptionID,
		ShareQuantity:    e18(req.Amount),
		TokenDecimals:    18,
		ComputedCost:     e18("50"),
		MaxTotalCost:     e18("51"),
		RequiredApproval: e18("51"),
		Spender:          "0x3333333333333333333333333333333333333333",
	}, nil
}

func (f *fakeSubmitter) ExecutePurchase(_ context.Context, intent domain.PurchaseIntent) (orchestrator.Result, domain.PurchaseIntent, error) {
	f.record("execute")
	res := f.result
	res.IntentID = intent.ID
	return res, intent, f.err
}

func (f *fakeSubmitter) Sell(_ context.Context, req orchestrator.SellRequest) (orchestrator.Result, error) {
	f.record("sell")
	return f.result, f.err
}

func (f *fakeSubmitter) Claim(_ context.Context, req orchestrator.ClaimRequest) (orchestrator.Result, error) {
	f.record("claim")
	return f.result, f.err
}

func (f *fakeSubmitter) Submit(_ context.Context, req orchestrator.ActionRequest) (orchestrator.Result, error) {
	f.record("submit")
	f.mu.Lock()
	f.actions = append(f.actions, req)
	f.mu.Unlock()
	res := f.result
	res.Action = req.Action
	return res, f.err
}

func (f *fakeSubmitter) RetryAction(_ context.Context, req orchestrator.ActionRequest) (orchestrator.Result, error) {
	f.record("retry")
	f.mu.Lock()
	f.actions = append(f.actions, req)
	f.mu.Unlock()
	res := f.result
	res.Action = req.Action
	return res, f.err
}

type memStore struct {
	mu      sync.Mutex
	recs    map[string]domain.PurchaseRecord
	updates int
}

func newMemStore() *memStore { return &memStore{recs: map[string]domain.PurchaseRecord{}} }

func (m *memStore) Create(_ context.Context, rec domain.PurchaseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.ID]; ok {
		return fmt.Errorf("duplicate key %s", rec.ID)
	}
	m.recs[rec.ID] = rec
	return nil
}

func (m *memStore) UpdateOutcome(_ context.Context, rec domain.PurchaseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.ID]; !ok {
		return domain.ErrNotFound
	}
	m.updates++
	m.recs[rec.ID] = rec
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (domain.PurchaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return domain.PurchaseRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (m *memStore) ListByAccount(_ context.Context, account string, opts domain.ListOpts) ([]domain.PurchaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PurchaseRecord
	for _, r := range m.recs {
		if r.Account == account {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ListBefore(context.Context, time.Time) ([]domain.PurchaseRecord, error) {
	return nil, nil
}

type fakeNotifier struct {
	outcomes []domain.Outcome
}

func (f *fakeNotifier) NotifyOutcome(_ context.Context, rec domain.PurchaseRecord) error {
	f.outcomes = append(f.outcomes, rec.Outcome)
	return nil
}

type fakeLocker struct {
	err      error
	keys     []string
	released int
}

func (f *fakeLocker) AcquireWithin(_ context.Context, key string, _, _ time.Duration) (func(), error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return nil, f.err
	}
	return func() { f.released++ }, nil
}

type fakeAudit struct {
	events  []string
	details []map[string]any
}

func (f *fakeAudit) Log(_ context.Context, event string, detail map[string]any) error {
	f.events = append(f.events, event)
	f.details = append(f.details, detail)
	return nil
}

func (f *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	out := make([]domain.AuditEntry, 0, len(f.events))
	for i := len(f.events) - 1; i >= 0; i-- {
		out = append(out, domain.AuditEntry{ID: int64(i + 1), Event: f.events[i], Detail: f.details[i]})
	}
	return out, nil
}

type fakeRoles struct {
	roles map[[32]byte]bool
	owner common.Address
}

func (f *fakeRoles) HasRole(_ context.Context, role [32]byte, _ common.Address) (bool, error) {
	return f.roles[role], nil
}

func (f *fakeRoles) Owner(context.Context, domain.MarketVersion) (common.Address, error) {
	return f.owner, nil
}

func (f *fakeRoles) TokenDecimals(context.Context) (uint8, error) { return 18, nil }

type fakeBus struct {
	mu       sync.Mutex
	channels []string
	payloads [][]byte
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeBus) Subscribe(context.Context, ...string) (<-chan domain.BusMessage, error) {
	return nil, fmt.Errorf("not supported")
}

func (f *fakeBus) decode(t *testing.T, i int, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(f.payloads[i], v))
}

type memMarketCache struct {
	mu          sync.Mutex
	views       map[string]domain.MarketView
	invalidated []string
}

func newMemMarketCache() *memMarketCache {
	return &memMarketCache{views: map[string]domain.MarketView{}}
}

func mkey(v domain.MarketVersion, id uint64) string { return fmt.Sprintf("%s/%d", v, id) }

func (c *memMarketCache) Set(_ context.Context, view domain.MarketView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[mkey(view.Version, view.ID)] = view
	return nil
}

func (c *memMarketCache) Get(_ context.Context, v domain.MarketVersion, id uint64) (domain.MarketView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	view, ok := c.views[mkey(v, id)]
	if !ok {
		return domain.MarketView{}, domain.ErrNotFound
	}
	return view, nil
}

func (c *memMarketCache) Invalidate(_ context.Context, v domain.MarketVersion, id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, mkey(v, id))
	c.invalidated = append(c.invalidated, mkey(v, id))
	return nil
}

type memAccountCache struct {
	states      map[string]domain.AllowanceState
	invalidated []string
}

func newMemAccountCache() *memAccountCache {
	return &memAccountCache{states: map[string]domain.AllowanceState{}}
}

func (c *memAccountCache) SetAllowance(_ context.Context, st domain.AllowanceState) error {
	c.states[st.Owner+"/"+st.Spender] = st
	return nil
}

func (c *memAccountCache) GetAllowance(_ context.Context, owner, spender string) (domain.AllowanceState, error) {
	st, ok := c.states[owner+"/"+spender]
	if !ok {
		return domain.AllowanceState{}, domain.ErrNotFound
	}
	return st, nil
}

func (c *memAccountCache) InvalidateAccount(_ context.Context, owner string) error {
	c.invalidated = append(c.invalidated, owner)
	for k, st := range c.states {
		if st.Owner == owner {
			delete(c.states, k)
		}
	}
	return nil
}

type fakeToken struct {
	balance    *big.Int
	allowances map[common.Address]*big.Int
	reads      int
}

func (f *fakeToken) TokenBalance(context.Context, common.Address) (*big.Int, error) {
	f.reads++
	return f.balance, nil
}

func (f *fakeToken) Allowance(_ context.Context, _, spender common.Address) (*big.Int, error) {
	if v, ok := f.allowances[spender]; ok {
		return v, nil
	}
	return new(big.Int), nil
}

func (f *fakeToken) TokenDecimals(context.Context) (uint8, error) { return 18, nil }
func (f *fakeToken) TokenSymbol(context.Context) (string, error)  { return "PCT", nil }

type fakeMarkets struct {
	mu       sync.Mutex
	info     map[uint64][]any
	options  map[uint64][]any
	odds     []*big.Int
	oddsErr  error
	infoHits int
}

func (f *fakeMarkets) MarketInfo(_ context.Context, _ domain.MarketVersion, id uint64) ([]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoHits++
	raw, ok := f.info[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return raw, nil
}

func (f *fakeMarkets) MarketOption(_ context.Context, _, optionID uint64) ([]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.options[optionID], nil
}

func (f *fakeMarkets) MarketOdds(context.Context, uint64) ([]*big.Int, error) {
	return f.odds, f.oddsErr
}
