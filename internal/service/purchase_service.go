package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/policast/internal/amount"
	"github.com/alanyoungcy/policast/internal/domain"
	"github.com/alanyoungcy/policast/internal/orchestrator"
)

// DecimalsReader reads the payment token's decimals.
type DecimalsReader interface {
	TokenDecimals(ctx context.Context) (uint8, error)
}

// Submission is what callers get back for every submitted action.
type Submission struct {
	Record domain.PurchaseRecord  `json:"record"`
	Result orchestrator.Result    `json:"result"`
	Intent *domain.PurchaseIntent `json:"intent,omitempty"`
}

// PurchaseService runs buys, sells, claims and retries for the signing
// account and keeps their history.
type PurchaseService struct {
	orch    Submitter
	token   DecimalsReader
	subs    *Submissions
	history domain.PurchaseStore
	logger  *slog.Logger
}

// NewPurchaseService creates a PurchaseService.
func NewPurchaseService(orch Submitter, token DecimalsReader, subs *Submissions, history domain.PurchaseStore, logger *slog.Logger) *PurchaseService {
	return &PurchaseService{
		orch:    orch,
		token:   token,
		subs:    subs,
		history: history,
		logger:  logger.With(slog.String("component", "purchase_service")),
	}
}

// Quote prepares a purchase without submitting anything.
func (s *PurchaseService) Quote(ctx context.Context, req orchestrator.PurchaseRequest) (domain.PurchaseIntent, error) {
	intent, err := s.orch.PreparePurchase(ctx, req)
	if err != nil {
		return domain.PurchaseIntent{}, fmt.Errorf("purchase_service: quote: %w", err)
	}
	return intent, nil
}

// Purchase prepares, records and executes req. Validation errors return
// before anything is recorded and leave the intent id free for a corrected
// resubmission.
func (s *PurchaseService) Purchase(ctx context.Context, req orchestrator.PurchaseRequest) (Submission, error) {
	req.ID = NewID(req.ID)
	account := s.orch.Account().Hex()

	release, err := s.subs.Guard(ctx, req.ID, account)
	if err != nil {
		return Submission{}, err
	}
	submitted := false
	defer func() { release(submitted) }()

	intent, err := s.orch.PreparePurchase(ctx, req)
	if err != nil {
		return Submission{}, fmt.Errorf("purchase_service: prepare: %w", err)
	}

	rec := domain.PurchaseRecord{
		ID:       intent.ID,
		Account:  account,
		Kind:     domain.ActionBuy,
		Version:  intent.Version,
		MarketID: intent.MarketID,
		OptionID: intent.OptionID,
		ActionTo: intent.Spender,
	}
	fillFromIntent(&rec, intent)

	submitted = true
	rec, res, err := s.subs.Run(ctx, rec, func(ctx context.Context, rec *domain.PurchaseRecord) (orchestrator.Result, error) {
		res, quoted, err := s.orch.ExecutePurchase(ctx, intent)
		intent = quoted
		fillFromIntent(rec, quoted)
		return res, err
	})
	return Submission{Record: rec, Result: res, Intent: &intent}, err
}

func fillFromIntent(rec *domain.PurchaseRecord, intent domain.PurchaseIntent) {
	rec.Quantity = bigString(intent.ShareQuantity)
	rec.Cost = bigString(intent.ComputedCost)
	rec.MaxTotalCost = bigString(intent.MaxTotalCost)
	rec.Approval = bigString(intent.RequiredApproval)
	rec.Spender = intent.Spender
}

// Sell submits a V2 sell.
func (s *PurchaseService) Sell(ctx context.Context, req orchestrator.SellRequest) (Submission, error) {
	req.ID = NewID(req.ID)
	decimals, err := s.token.TokenDecimals(ctx)
	if err != nil {
		return Submission{}, fmt.Errorf("purchase_service: read decimals: %w", err)
	}
	qty, err := amount.Parse(req.Amount, decimals)
	if err != nil {
		return Submission{}, err
	}
	if err := amount.CheckBounds("amount", qty, nil, nil, decimals); err != nil {
		return Submission{}, err
	}

	rec := domain.PurchaseRecord{
		ID:       req.ID,
		Kind:     domain.ActionSell,
		Version:  domain.MarketV2,
		MarketID: req.MarketID,
		OptionID: req.OptionID,
		Quantity: qty.String(),
	}
	return s.run(ctx, rec, func(ctx context.Context) (orchestrator.Result, error) {
		return s.orch.Sell(ctx, req)
	})
}

// Claim submits a free-token or winnings claim.
func (s *PurchaseService) Claim(ctx context.Context, req orchestrator.ClaimRequest) (Submission, error) {
	req.ID = NewID(req.ID)
	if !req.Version.Valid() {
		return Submission{}, domain.Invalid("version", "unknown market version %q", req.Version)
	}
	if req.Kind != domain.ActionClaimFree && req.Kind != domain.ActionClaimWinnings {
		return Submission{}, domain.Invalid("kind", "%q is not a claim", req.Kind)
	}
	rec := domain.PurchaseRecord{
		ID:       req.ID,
		Kind:     req.Kind,
		Version:  req.Version,
		MarketID: req.MarketID,
	}
	return s.run(ctx, rec, func(ctx context.Context) (orchestrator.Result, error) {
		return s.orch.Claim(ctx, req)
	})
}

// run guards and records a submission that needs no preparation.
func (s *PurchaseService) run(ctx context.Context, rec domain.PurchaseRecord, submit func(context.Context) (orchestrator.Result, error)) (Submission, error) {
	rec.Account = s.orch.Account().Hex()
	release, err := s.subs.Guard(ctx, rec.ID, rec.Account)
	if err != nil {
		return Submission{}, err
	}
	submitted := false
	defer func() { release(submitted) }()

	submitted = true
	rec, res, err := s.subs.Run(ctx, rec, func(ctx context.Context, _ *domain.PurchaseRecord) (orchestrator.Result, error) {
		return submit(ctx)
	})
	return Submission{Record: rec, Result: res}, err
}

// Retry re-sends the action of a partially successful submission.
func (s *PurchaseService) Retry(ctx context.Context, id string) (Submission, error) {
	rec, err := s.history.GetByID(ctx, id)
	if err != nil {
		return Submission{}, fmt.Errorf("purchase_service: get %s: %w", id, err)
	}
	req, err := RetryRequest(rec)
	if err != nil {
		return Submission{}, err
	}

	unlock, err := s.subs.Lock(ctx, rec.Account)
	if err != nil {
		return Submission{}, err
	}
	defer unlock()

	res, err := s.orch.RetryAction(ctx, req)
	rec = s.subs.Update(ctx, rec, res, err)
	return Submission{Record: rec, Result: res}, err
}

// Get returns one history record.
func (s *PurchaseService) Get(ctx context.Context, id string) (domain.PurchaseRecord, error) {
	rec, err := s.history.GetByID(ctx, id)
	if err != nil {
		return domain.PurchaseRecord{}, fmt.Errorf("purchase_service: get %s: %w", id, err)
	}
	return rec, nil
}

// History lists the submissions of account, newest first. An empty account
// means the signing account.
func (s *PurchaseService) History(ctx context.Context, account string, opts domain.ListOpts) ([]domain.PurchaseRecord, error) {
	if account == "" {
		account = s.orch.Account().Hex()
	}
	if opts.Limit <= 0 || opts.Limit > 200 {
		opts.Limit = 50
	}
	recs, err := s.history.ListByAccount(ctx, account, opts)
	if err != nil {
		return nil, fmt.Errorf("purchase_service: history: %w", err)
	}
	return recs, nil
}
