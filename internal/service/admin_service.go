package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/policast/internal/amount"
	"github.com/alanyoungcy/policast/internal/chain"
	"github.com/alanyoungcy/policast/internal/contracts"
	"github.com/alanyoungcy/policast/internal/domain"
	"github.com/alanyoungcy/policast/internal/orchestrator"
)

// Market creation limits.
const (
	MaxQuestionLen    = 500
	MaxDescriptionLen = 2000
	MaxOptionNameLen  = 100
	MinOptions        = 2
	MaxOptions        = 10
	MinDuration       = time.Hour
	MaxDuration       = 365 * 24 * time.Hour
	MaxDisputeReason  = 500
)

// RoleReader answers the on-chain permission checks.
type RoleReader interface {
	HasRole(ctx context.Context, role [32]byte, account common.Address) (bool, error)
	Owner(ctx context.Context, version domain.MarketVersion) (common.Address, error)
	TokenDecimals(ctx context.Context) (uint8, error)
}

// Discoverer fetches the admin auto-discover document.
type Discoverer interface {
	Discover(ctx context.Context) (json.RawMessage, error)
}

// CreateMarketRequest is the admin market creation form.
type CreateMarketRequest struct {
	ID                 string               `json:"id,omitempty"`
	Version            domain.MarketVersion `json:"version"`
	Question           string               `json:"question"`
	Description        string               `json:"description,omitempty"`
	Options            []string             `json:"options"`
	OptionDescriptions []string             `json:"option_descriptions,omitempty"`
	DurationSeconds    int64                `json:"duration_seconds"`
	Category           uint8                `json:"category"`
	MarketType         uint8                `json:"market_type"`
	// InitialLiquidity is a decimal token amount; V2 only.
	InitialLiquidity string `json:"initial_liquidity,omitempty"`
}

// MarketActionRequest resolves, validates, invalidates or disputes a market.
type MarketActionRequest struct {
	ID            string               `json:"id,omitempty"`
	Version       domain.MarketVersion `json:"version"`
	MarketID      uint64               `json:"market_id"`
	Action        domain.ActionKind    `json:"action"`
	WinningOption uint64               `json:"winning_option"`
	Reason        string               `json:"reason,omitempty"`
}

// AdminService runs the admin dashboard actions. Permissions are the
// contract's: the service only refuses to submit when the signing account
// visibly lacks the role.
type AdminService struct {
	orch         Submitter
	roles        RoleReader
	set          *contracts.Set
	subs         *Submissions
	audit        domain.AuditStore
	discover     Discoverer
	minLiquidity string
	logger       *slog.Logger
}

// NewAdminService creates an AdminService. audit and discover may be nil.
func NewAdminService(
	orch Submitter,
	roles RoleReader,
	set *contracts.Set,
	subs *Submissions,
	audit domain.AuditStore,
	discover Discoverer,
	minLiquidity string,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		orch:         orch,
		roles:        roles,
		set:          set,
		subs:         subs,
		audit:        audit,
		discover:     discover,
		minLiquidity: minLiquidity,
		logger:       logger.With(slog.String("component", "admin_service")),
	}
}

// ValidateCreate checks the creation form and returns the initial liquidity
// in base units (nil when none).
func ValidateCreate(req CreateMarketRequest, decimals uint8, minLiquidity string) (*big.Int, error) {
	if !req.Version.Valid() {
		return nil, domain.Invalid("version", "unknown market version %q", req.Version)
	}
	if err := textLen("question", req.Question, 1, MaxQuestionLen); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(req.Description) > MaxDescriptionLen {
		return nil, domain.Invalid("description", "must be at most %d characters", MaxDescriptionLen)
	}
	if len(req.Options) < MinOptions || len(req.Options) > MaxOptions {
		return nil, domain.Invalid("options", "must have between %d and %d options", MinOptions, MaxOptions)
	}
	if req.Version == domain.MarketV1 && len(req.Options) != 2 {
		return nil, domain.Invalid("options", "v1 markets have exactly two options")
	}
	for i, name := range req.Options {
		if err := textLen(fmt.Sprintf("options[%d]", i), name, 1, MaxOptionNameLen); err != nil {
			return nil, err
		}
	}
	d := time.Duration(req.DurationSeconds) * time.Second
	if d < MinDuration || d > MaxDuration {
		return nil, domain.Invalid("duration_seconds", "must be between 1 hour and 365 days")
	}

	if req.Version == domain.MarketV1 || strings.TrimSpace(req.InitialLiquidity) == "" {
		if req.Version == domain.MarketV2 && minLiquidity != "" && minLiquidity != "0" {
			return nil, domain.Invalid("initial_liquidity", "at least %s required", minLiquidity)
		}
		return nil, nil
	}
	liquidity, err := amount.Parse(req.InitialLiquidity, decimals)
	if err != nil {
		return nil, err
	}
	var minV *big.Int
	if minLiquidity != "" {
		if minV, err = amount.Parse(minLiquidity, decimals); err != nil {
			return nil, fmt.Errorf("admin_service: min liquidity: %w", err)
		}
	}
	if minV != nil && liquidity.Cmp(minV) < 0 {
		return nil, domain.Invalid("initial_liquidity", "below minimum of %s", amount.Format(minV, decimals))
	}
	return liquidity, nil
}

func textLen(field, s string, minLen, maxLen int) error {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	if n < minLen {
		return domain.Invalid(field, "is required")
	}
	if n > maxLen {
		return domain.Invalid(field, "must be at most %d characters", maxLen)
	}
	return nil
}

// CreateMarket validates req, checks the creator role and submits
// createMarket. Initial liquidity is paid by the creator, so it goes
// through the approval path like a purchase.
func (s *AdminService) CreateMarket(ctx context.Context, req CreateMarketRequest) (Submission, error) {
	decimals, err := s.roles.TokenDecimals(ctx)
	if err != nil {
		return Submission{}, fmt.Errorf("admin_service: read decimals: %w", err)
	}
	liquidity, err := ValidateCreate(req, decimals, s.minLiquidity)
	if err != nil {
		return Submission{}, err
	}
	if err := s.authorize(ctx, req.Version, contracts.QuestionCreatorRole, "QUESTION_CREATOR_ROLE"); err != nil {
		return Submission{}, err
	}

	names := make([]string, len(req.Options))
	for i, n := range req.Options {
		names[i] = strings.TrimSpace(n)
	}
	call, err := orchestrator.CreateMarketCall(s.set, req.Version, orchestrator.MarketSpec{
		Question:           strings.TrimSpace(req.Question),
		Description:        strings.TrimSpace(req.Description),
		OptionNames:        names,
		OptionDescriptions: req.OptionDescriptions,
		Duration:           big.NewInt(req.DurationSeconds),
		Category:           req.Category,
		MarketType:         req.MarketType,
		InitialLiquidity:   liquidity,
	})
	if err != nil {
		return Submission{}, err
	}

	action := orchestrator.ActionRequest{
		ID:      NewID(req.ID),
		Kind:    domain.ActionCreateMarket,
		Version: req.Version,
		Action:  call,
	}
	rec := domain.PurchaseRecord{
		ID:      action.ID,
		Kind:    action.Kind,
		Version: req.Version,
	}
	if liquidity != nil && liquidity.Sign() > 0 {
		action.Spender = s.set.MarketV2.Address
		action.Approval = liquidity
		action.RequiredCost = liquidity
		rec.Cost = liquidity.String()
		rec.Approval = liquidity.String()
		rec.Spender = action.Spender.Hex()
	}
	return s.submit(ctx, rec, action, map[string]any{
		"question": req.Question,
		"options":  len(req.Options),
	})
}

// MarketAction submits resolve, validate, invalidate or dispute.
func (s *AdminService) MarketAction(ctx context.Context, req MarketActionRequest) (Submission, error) {
	if !req.Version.Valid() {
		return Submission{}, domain.Invalid("version", "unknown market version %q", req.Version)
	}

	var (
		call chain.Call
		err  error
	)
	switch req.Action {
	case domain.ActionResolveMarket:
		if err := s.authorize(ctx, req.Version, contracts.QuestionResolveRole, "QUESTION_RESOLVE_ROLE"); err != nil {
			return Submission{}, err
		}
		call, err = orchestrator.ResolveCall(s.set, req.Version, req.MarketID, req.WinningOption)
	case domain.ActionValidate, domain.ActionInvalidate:
		if req.Version != domain.MarketV2 {
			return Submission{}, domain.Invalid("version", "%s is only available for v2 markets", req.Action)
		}
		if err := s.authorize(ctx, req.Version, contracts.MarketValidatorRole, "MARKET_VALIDATOR_ROLE"); err != nil {
			return Submission{}, err
		}
		call, err = orchestrator.AdminCall(s.set, req.Action, req.MarketID, "")
	case domain.ActionDispute:
		if req.Version != domain.MarketV2 {
			return Submission{}, domain.Invalid("version", "disputes are only available for v2 markets")
		}
		if err := textLen("reason", req.Reason, 1, MaxDisputeReason); err != nil {
			return Submission{}, err
		}
		call, err = orchestrator.AdminCall(s.set, req.Action, req.MarketID, strings.TrimSpace(req.Reason))
	default:
		return Submission{}, domain.Invalid("action", "unknown admin action %q", req.Action)
	}
	if err != nil {
		return Submission{}, err
	}

	action := orchestrator.ActionRequest{
		ID:       NewID(req.ID),
		Kind:     req.Action,
		Version:  req.Version,
		MarketID: req.MarketID,
		OptionID: req.WinningOption,
		Action:   call,
	}
	rec := domain.PurchaseRecord{
		ID:       action.ID,
		Kind:     action.Kind,
		Version:  req.Version,
		MarketID: req.MarketID,
		OptionID: req.WinningOption,
	}
	detail := map[string]any{"market_id": req.MarketID}
	if req.Action == domain.ActionResolveMarket {
		detail["winning_option"] = req.WinningOption
	}
	if req.Reason != "" {
		detail["reason"] = req.Reason
	}
	return s.submit(ctx, rec, action, detail)
}

// Discover proxies the auto-discover document.
func (s *AdminService) Discover(ctx context.Context) (json.RawMessage, error) {
	if s.discover == nil {
		return nil, fmt.Errorf("admin_service: discover: %w", domain.ErrNotFound)
	}
	return s.discover.Discover(ctx)
}

// AuditLog lists recorded admin actions, newest first.
func (s *AdminService) AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	if s.audit == nil {
		return nil, fmt.Errorf("admin_service: audit: %w", domain.ErrNotFound)
	}
	return s.audit.List(ctx, opts)
}

// authorize refuses to submit when the signing account holds neither role
// nor contract ownership. V1 markets only know an owner.
func (s *AdminService) authorize(ctx context.Context, version domain.MarketVersion, role [32]byte, roleName string) error {
	account := s.orch.Account()
	if version == domain.MarketV2 {
		ok, err := s.roles.HasRole(ctx, role, account)
		if err != nil {
			return fmt.Errorf("admin_service: check %s: %w", roleName, err)
		}
		if ok {
			return nil
		}
	}
	owner, err := s.roles.Owner(ctx, version)
	if err != nil {
		return fmt.Errorf("admin_service: read owner: %w", err)
	}
	if owner == account {
		return nil
	}
	if version == domain.MarketV1 {
		roleName = "owner"
	}
	return fmt.Errorf("admin_service: %s requires %s: %w", account.Hex(), roleName, domain.ErrMissingPermission)
}

func (s *AdminService) submit(ctx context.Context, rec domain.PurchaseRecord, action orchestrator.ActionRequest, detail map[string]any) (Submission, error) {
	rec.Account = s.orch.Account().Hex()
	release, err := s.subs.Guard(ctx, rec.ID, rec.Account)
	if err != nil {
		return Submission{}, err
	}
	defer release(true)

	rec, res, err := s.subs.Run(ctx, rec, func(ctx context.Context, _ *domain.PurchaseRecord) (orchestrator.Result, error) {
		return s.orch.Submit(ctx, action)
	})

	if s.audit != nil {
		detail["intent"] = rec.ID
		detail["version"] = string(rec.Version)
		detail["outcome"] = string(rec.Outcome)
		if rec.ActionTx != "" {
			detail["tx"] = rec.ActionTx
		}
		if aerr := s.audit.Log(context.WithoutCancel(ctx), "admin."+string(rec.Kind), detail); aerr != nil {
			s.logger.WarnContext(ctx, "audit log failed",
				slog.String("intent", rec.ID),
				slog.String("error", aerr.Error()),
			)
		}
	}
	return Submission{Record: rec, Result: res}, err
}
