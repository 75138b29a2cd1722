package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	"github.com/alanyoungcy/policast/internal/amount"
	"github.com/alanyoungcy/policast/internal/chain"
	"github.com/alanyoungcy/policast/internal/domain"
	"github.com/alanyoungcy/policast/internal/orchestrator"
)

// Submitter is the orchestrator surface the services drive.
type Submitter interface {
	Account() common.Address
	PreparePurchase(ctx context.Context, req orchestrator.PurchaseRequest) (domain.PurchaseIntent, error)
	ExecutePurchase(ctx context.Context, intent domain.PurchaseIntent) (orchestrator.Result, domain.PurchaseIntent, error)
	Sell(ctx context.Context, req orchestrator.SellRequest) (orchestrator.Result, error)
	Claim(ctx context.Context, req orchestrator.ClaimRequest) (orchestrator.Result, error)
	Submit(ctx context.Context, req orchestrator.ActionRequest) (orchestrator.Result, error)
	RetryAction(ctx context.Context, req orchestrator.ActionRequest) (orchestrator.Result, error)
}

// Locker serialises submissions across instances.
type Locker interface {
	AcquireWithin(ctx context.Context, key string, ttl, wait time.Duration) (func(), error)
}

// OutcomeNotifier is told about every finished submission.
type OutcomeNotifier interface {
	NotifyOutcome(ctx context.Context, rec domain.PurchaseRecord) error
}

// SubmissionConfig tunes the guards around a submission.
type SubmissionConfig struct {
	IntentTTL time.Duration
	LockTTL   time.Duration
	// LockWait is how long a second submission for the same account waits
	// for the first to finish.
	LockWait time.Duration
}

// Submissions wraps every orchestrated submission with intent dedup, the
// per-account lock and the history record.
type Submissions struct {
	store    domain.PurchaseStore
	dedup    domain.IntentDeduper
	locker   Locker
	notifier OutcomeNotifier
	cfg      SubmissionConfig
	logger   *slog.Logger
}

// NewSubmissions creates Submissions. dedup, locker and notifier may be nil.
func NewSubmissions(
	store domain.PurchaseStore,
	dedup domain.IntentDeduper,
	locker Locker,
	notifier OutcomeNotifier,
	cfg SubmissionConfig,
	logger *slog.Logger,
) *Submissions {
	if cfg.IntentTTL <= 0 {
		cfg.IntentTTL = 10 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 5 * time.Second
	}
	return &Submissions{
		store:    store,
		dedup:    dedup,
		locker:   locker,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "submissions")),
	}
}

func accountLockKey(owner string) string {
	return "account:" + strings.ToLower(owner)
}

// NewID returns id, or a fresh one when id is empty.
func NewID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// Guard claims id and locks account. The returned release must be called
// with whether the id should stay claimed: a submission that never reached
// the wallet may be resubmitted under the same id.
func (s *Submissions) Guard(ctx context.Context, id, account string) (func(keep bool), error) {
	if s.dedup != nil {
		ok, err := s.dedup.Claim(ctx, id, s.cfg.IntentTTL)
		if err != nil {
			return nil, fmt.Errorf("service: claim intent: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("service: intent %s: %w", id, domain.ErrDuplicateIntent)
		}
	}

	unlock, err := s.Lock(ctx, account)
	if err != nil {
		s.forget(ctx, id)
		return nil, err
	}

	return func(keep bool) {
		unlock()
		if !keep {
			s.forget(ctx, id)
		}
	}, nil
}

// Lock takes the per-account submission lock. Two approvals in flight for
// the same owner would overwrite each other.
func (s *Submissions) Lock(ctx context.Context, account string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	unlock, err := s.locker.AcquireWithin(ctx, accountLockKey(account), s.cfg.LockTTL, s.cfg.LockWait)
	if err != nil {
		return nil, fmt.Errorf("service: lock account %s: %w", account, err)
	}
	return unlock, nil
}

func (s *Submissions) forget(ctx context.Context, id string) {
	if s.dedup == nil {
		return
	}
	if err := s.dedup.Release(context.WithoutCancel(ctx), id); err != nil {
		s.logger.WarnContext(ctx, "release intent failed",
			slog.String("intent", id),
			slog.String("error", err.Error()),
		)
	}
}

// Run persists rec as pending, calls submit and records the outcome. The
// outcome is written even if ctx is cancelled while submit runs.
func (s *Submissions) Run(
	ctx context.Context,
	rec domain.PurchaseRecord,
	submit func(ctx context.Context, rec *domain.PurchaseRecord) (orchestrator.Result, error),
) (domain.PurchaseRecord, orchestrator.Result, error) {
	rec.Outcome = domain.OutcomePending
	rec.CreatedAt = time.Now().UTC()
	if err := s.store.Create(ctx, rec); err != nil {
		return rec, orchestrator.Result{}, fmt.Errorf("service: record %s: %w", rec.ID, err)
	}

	res, err := submit(ctx, &rec)
	ApplyResult(&rec, res, err)
	s.finish(ctx, rec)
	return rec, res, err
}

// Update records the outcome of a retry on an existing record.
func (s *Submissions) Update(ctx context.Context, rec domain.PurchaseRecord, res orchestrator.Result, err error) domain.PurchaseRecord {
	ApplyResult(&rec, res, err)
	s.finish(ctx, rec)
	return rec
}

func (s *Submissions) finish(ctx context.Context, rec domain.PurchaseRecord) {
	ctx = context.WithoutCancel(ctx)
	if err := s.store.UpdateOutcome(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "record outcome failed",
			slog.String("intent", rec.ID),
			slog.String("outcome", string(rec.Outcome)),
			slog.String("error", err.Error()),
		)
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyOutcome(ctx, rec); err != nil {
			s.logger.WarnContext(ctx, "outcome notification failed",
				slog.String("intent", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// ApplyResult copies a submission result onto rec. A result without an
// outcome (the submission stopped before the wallet) is a failure.
func ApplyResult(rec *domain.PurchaseRecord, res orchestrator.Result, err error) {
	if res.Path != "" {
		rec.Path = res.Path
	}
	if res.CallsID != "" {
		rec.CallsID = res.CallsID
	}
	if res.ApprovalTx != (common.Hash{}) {
		rec.ApprovalTx = res.ApprovalTx.Hex()
	}
	if res.ActionTx != (common.Hash{}) {
		rec.ActionTx = res.ActionTx.Hex()
	}
	if len(res.Action.Data) > 0 {
		rec.ActionTo = res.Action.To.Hex()
		rec.ActionData = hexutil.Encode(res.Action.Data)
	}
	rec.Outcome = res.Outcome
	if rec.Outcome == "" || rec.Outcome == domain.OutcomePending {
		rec.Outcome = domain.OutcomeFailure
	}
	rec.Message = res.Message
	if rec.Message == "" && err != nil {
		rec.Message = err.Error()
	}
	rec.RetryAvailable = res.RetryAvailable
}

// RetryRequest rebuilds the action of a partially successful record.
func RetryRequest(rec domain.PurchaseRecord) (orchestrator.ActionRequest, error) {
	if !rec.RetryAvailable || rec.Outcome != domain.OutcomePartial {
		return orchestrator.ActionRequest{}, fmt.Errorf("service: retry %s: %w", rec.ID, domain.ErrNotRetryable)
	}
	if !common.IsHexAddress(rec.ActionTo) {
		return orchestrator.ActionRequest{}, fmt.Errorf("service: retry %s: no recorded action: %w", rec.ID, domain.ErrNotRetryable)
	}
	data, err := hexutil.Decode(rec.ActionData)
	if err != nil || len(data) == 0 {
		return orchestrator.ActionRequest{}, fmt.Errorf("service: retry %s: bad action data: %w", rec.ID, domain.ErrNotRetryable)
	}
	req := orchestrator.ActionRequest{
		ID:       rec.ID,
		Kind:     rec.Kind,
		Version:  rec.Version,
		MarketID: rec.MarketID,
		OptionID: rec.OptionID,
		Action:   chain.Call{To: common.HexToAddress(rec.ActionTo), Data: data, Label: string(rec.Kind)},
	}
	if rec.Approval != "" && common.IsHexAddress(rec.Spender) {
		approval, err := amount.ParseBig(rec.Approval)
		if err != nil {
			return orchestrator.ActionRequest{}, fmt.Errorf("service: retry %s: %w", rec.ID, err)
		}
		req.Spender = common.HexToAddress(rec.Spender)
		req.Approval = approval
	}
	if rec.Cost != "" {
		cost, err := amount.ParseBig(rec.Cost)
		if err != nil {
			return orchestrator.ActionRequest{}, fmt.Errorf("service: retry %s: cost: %w", rec.ID, err)
		}
		req.RequiredCost = cost
	}
	return req, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
