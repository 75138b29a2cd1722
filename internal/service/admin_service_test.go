package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/policast/internal/contracts"
	"github.com/alanyoungcy/policast/internal/domain"
	"github.com/alanyoungcy/policast/internal/orchestrator"
)

func validCreate() CreateMarketRequest {
	return CreateMarketRequest{
		Version:          domain.MarketV2,
		Question:         "Who wins the final?",
		Description:      "Resolved by the official result.",
		Options:          []string{"Home", "Away", "Draw"},
		DurationSeconds:  7 * 24 * 3600,
		InitialLiquidity: "100",
	}
}

func TestValidateCreate(t *testing.T) {
	liquidity, err := ValidateCreate(validCreate(), 18, "10")
	require.NoError(t, err)
	assert.Equal(t, 0, e18("100").Cmp(liquidity))

	cases := map[string]func(*CreateMarketRequest){
		"empty question":     func(r *CreateMarketRequest) { r.Question = "  " },
		"long question":      func(r *CreateMarketRequest) { r.Question = strings.Repeat("q", MaxQuestionLen+1) },
		"long description":   func(r *CreateMarketRequest) { r.Description = strings.Repeat("d", MaxDescriptionLen+1) },
		"one option":         func(r *CreateMarketRequest) { r.Options = []string{"Only"} },
		"eleven options":     func(r *CreateMarketRequest) { r.Options = make([]string, 11) },
		"blank option":       func(r *CreateMarketRequest) { r.Options[1] = "" },
		"long option":        func(r *CreateMarketRequest) { r.Options[0] = strings.Repeat("o", MaxOptionNameLen+1) },
		"short duration":     func(r *CreateMarketRequest) { r.DurationSeconds = 3599 },
		"long duration":      func(r *CreateMarketRequest) { r.DurationSeconds = 366 * 24 * 3600 },
		"low liquidity":      func(r *CreateMarketRequest) { r.InitialLiquidity = "9.99" },
		"missing liquidity":  func(r *CreateMarketRequest) { r.InitialLiquidity = "" },
		"bad version":        func(r *CreateMarketRequest) { r.Version = "v3" },
		"v1 with three opts": func(r *CreateMarketRequest) { r.Version = domain.MarketV1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validCreate()
			req.Options = append([]string(nil), req.Options...)
			mutate(&req)
			_, err := ValidateCreate(req, 18, "10")
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	v1 := validCreate()
	v1.Version = domain.MarketV1
	v1.Options = []string{"Yes", "No"}
	liquidity, err = ValidateCreate(v1, 18, "10")
	require.NoError(t, err)
	assert.Nil(t, liquidity, "v1 markets take no liquidity")
}

type adminHarness struct {
	orch  *fakeSubmitter
	roles *fakeRoles
	audit *fakeAudit
	svc   *AdminService
}

func newAdminHarness(t *testing.T) *adminHarness {
	h := &adminHarness{
		orch:  &fakeSubmitter{result: orchestrator.Result{Outcome: domain.OutcomeSuccess, Path: domain.PathBatch}},
		roles: &fakeRoles{roles: map[[32]byte]bool{}},
		audit: &fakeAudit{},
	}
	subs := NewSubmissions(newMemStore(), NewDedup(), nil, nil, SubmissionConfig{}, discard())
	h.svc = NewAdminService(h.orch, h.roles, testSet(t), subs, h.audit, nil, "10", discard())
	return h
}

func TestCreateMarketRequiresRole(t *testing.T) {
	h := newAdminHarness(t)

	_, err := h.svc.CreateMarket(context.Background(), validCreate())
	assert.ErrorIs(t, err, domain.ErrMissingPermission)
	assert.Empty(t, h.orch.calls)

	h.roles.roles[contracts.QuestionCreatorRole] = true
	sub, err := h.svc.CreateMarket(context.Background(), validCreate())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, sub.Record.Outcome)

	require.Len(t, h.orch.actions, 1)
	req := h.orch.actions[0]
	assert.Equal(t, domain.ActionCreateMarket, req.Kind)
	assert.Equal(t, 0, e18("100").Cmp(req.Approval))
	assert.Equal(t, 0, e18("100").Cmp(req.RequiredCost))
	assert.Equal(t, testSet(t).MarketV2.Address, req.Spender)
	assert.Equal(t, "createMarket", req.Action.Label)

	require.Equal(t, []string{"admin.create_market"}, h.audit.events)
	assert.Equal(t, "success", h.audit.details[0]["outcome"])
}

func TestOwnerMayActWithoutRole(t *testing.T) {
	h := newAdminHarness(t)
	h.roles.owner = signer

	_, err := h.svc.MarketAction(context.Background(), MarketActionRequest{
		Version: domain.MarketV1, MarketID: 4, Action: domain.ActionResolveMarket, WinningOption: 1,
	})
	require.NoError(t, err)
	require.Len(t, h.orch.actions, 1)

	args, err := testSet(t).MarketV1.ABI.Methods["resolveMarket"].Inputs.Unpack(h.orch.actions[0].Action.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, uint8(2), args[1], "v1 outcomes are 1-based")
}

func TestMarketActionChecks(t *testing.T) {
	h := newAdminHarness(t)

	_, err := h.svc.MarketAction(context.Background(), MarketActionRequest{
		Version: domain.MarketV1, MarketID: 1, Action: domain.ActionValidate,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.svc.MarketAction(context.Background(), MarketActionRequest{
		Version: domain.MarketV2, MarketID: 1, Action: domain.ActionInvalidate,
	})
	assert.ErrorIs(t, err, domain.ErrMissingPermission)

	_, err = h.svc.MarketAction(context.Background(), MarketActionRequest{
		Version: domain.MarketV2, MarketID: 1, Action: domain.ActionDispute,
	})
	assert.ErrorIs(t, err, domain.ErrValidation, "reason required")

	_, err = h.svc.MarketAction(context.Background(), MarketActionRequest{
		Version: domain.MarketV2, MarketID: 1, Action: domain.ActionBuy,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	sub, err := h.svc.MarketAction(context.Background(), MarketActionRequest{
		Version: domain.MarketV2, MarketID: 1, Action: domain.ActionDispute, Reason: "wrong source",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionDispute, sub.Record.Kind)
	assert.Equal(t, []string{"admin.dispute_market"}, h.audit.events)
	assert.Equal(t, "wrong source", h.audit.details[0]["reason"])

	h.roles.roles[contracts.MarketValidatorRole] = true
	_, err = h.svc.MarketAction(context.Background(), MarketActionRequest{
		Version: domain.MarketV2, MarketID: 1, Action: domain.ActionValidate,
	})
	require.NoError(t, err)
}

type stubDiscoverer struct{}

func (stubDiscoverer) Discover(context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"ok":true}`), nil
}

func TestDiscover(t *testing.T) {
	h := newAdminHarness(t)
	_, err := h.svc.Discover(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	h.svc.discover = stubDiscoverer{}
	body, err := h.svc.Discover(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestAuditLogListsAdminActions(t *testing.T) {
	h := newAdminHarness(t)
	h.roles.roles[contracts.QuestionCreatorRole] = true
	_, err := h.svc.CreateMarket(context.Background(), validCreate())
	require.NoError(t, err)

	entries, err := h.svc.AuditLog(context.Background(), domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "admin.create_market", entries[0].Event)

	bare := NewAdminService(h.orch, h.roles, testSet(t), nil, nil, nil, "", discard())
	_, err = bare.AuditLog(context.Background(), domain.ListOpts{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
