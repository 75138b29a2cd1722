// Package orchestrator submits token-spending contract actions: it checks
// balance and allowance, pairs approve with the action in one atomic wallet
// bundle when the wallet supports it, falls back to sequential
// transactions otherwise, and classifies the outcome.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/policast/internal/amount"
	"github.com/alanyoungcy/policast/internal/chain"
	"github.com/alanyoungcy/policast/internal/contracts"
	"github.com/alanyoungcy/policast/internal/domain"
	"github.com/alanyoungcy/policast/internal/flow"
)

// PartialMessage is shown when the approval landed but the action did not.
const PartialMessage = "approval succeeded but the purchase did not; retry without re-approving"

// Reader is the chain state the orchestrator consults before submitting.
type Reader interface {
	TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	TokenDecimals(ctx context.Context) (uint8, error)
	TokenSymbol(ctx context.Context) (string, error)
	QuoteBuy(ctx context.Context, marketID, optionID uint64, quantity *big.Int) (*big.Int, error)
	QuoteSell(ctx context.Context, marketID, optionID uint64, quantity *big.Int) (*big.Int, error)
}

// Wallet submits calls on behalf of one account.
type Wallet interface {
	Address() common.Address
	SendCall(ctx context.Context, call chain.Call) (common.Hash, error)
	WaitReceipt(ctx context.Context, hash common.Hash) (chain.Receipt, error)
	SendCalls(ctx context.Context, calls []chain.Call) (string, error)
	CallsStatus(ctx context.Context, id string) (domain.BatchSubmissionResult, error)
	SupportsBatch(ctx context.Context) bool
	Explain(ctx context.Context, call chain.Call) *domain.RevertError
}

// Invalidator re-fetches cached views after a transaction may have changed
// chain state.
type Invalidator interface {
	AfterTransaction(ctx context.Context, account string, version domain.MarketVersion, marketID uint64)
}

// Observer is told about every flow state change.
type Observer interface {
	FlowChanged(ctx context.Context, intentID, account string, state flow.State)
}

// Config holds slippage bounds and polling cadence.
type Config struct {
	PerShareSlippageBps int64
	TotalCostBufferBps  int64
	SellSlippageBps     int64
	// MinPurchase and MaxPurchase are whole-token decimal strings.
	MinPurchase        string
	MaxPurchase        string
	StatusPollInterval time.Duration
}

// DefaultConfig returns the standard tolerances: 10% per share, 2% on the
// total, polled every second.
func DefaultConfig() Config {
	return Config{
		PerShareSlippageBps: 1000,
		TotalCostBufferBps:  200,
		SellSlippageBps:     1000,
		MaxPurchase:         "1000000",
		StatusPollInterval:  time.Second,
	}
}

// ActionRequest is one contract action, optionally preceded by an approval.
type ActionRequest struct {
	ID       string
	Kind     domain.ActionKind
	Version  domain.MarketVersion
	MarketID uint64
	OptionID uint64
	Action   chain.Call
	// Spender and Approval describe the allowance the action needs. A nil
	// or zero Approval means no approval is involved.
	Spender  common.Address
	Approval *big.Int
	// RequiredCost is checked against the token balance before anything is
	// sent. Nil skips the check.
	RequiredCost *big.Int
}

func (r ActionRequest) needsAllowance() bool {
	return r.Approval != nil && r.Approval.Sign() > 0
}

// Result is the outcome of a submission.
type Result struct {
	IntentID       string                        `json:"intent_id"`
	Outcome        domain.Outcome                `json:"outcome"`
	Path           domain.SubmissionPath         `json:"path"`
	CallsID        string                        `json:"calls_id,omitempty"`
	ApprovalTx     common.Hash                   `json:"approval_tx,omitempty"`
	ActionTx       common.Hash                   `json:"action_tx,omitempty"`
	Batch          *domain.BatchSubmissionResult `json:"batch,omitempty"`
	RetryAvailable bool                          `json:"retry_available"`
	Message        string                        `json:"message,omitempty"`
	Revert         *domain.RevertError           `json:"revert,omitempty"`
	States         []flow.State                  `json:"states"`
	// Action is the encoded contract call, kept for history and retries.
	Action chain.Call `json:"-"`
}

// Orchestrator drives submissions for the wallet's account.
type Orchestrator struct {
	reader      Reader
	wallet      Wallet
	set         *contracts.Set
	cfg         Config
	invalidator Invalidator
	observer    Observer
	logger      *slog.Logger

	polls singleflight.Group
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithInvalidator sets the hook fired after state-changing transactions.
func WithInvalidator(inv Invalidator) Option {
	return func(o *Orchestrator) { o.invalidator = inv }
}

// WithObserver sets the flow state listener.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// New creates an Orchestrator.
func New(reader Reader, wallet Wallet, set *contracts.Set, cfg Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	if cfg.StatusPollInterval <= 0 {
		cfg.StatusPollInterval = time.Second
	}
	o := &Orchestrator{
		reader: reader,
		wallet: wallet,
		set:    set,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "orchestrator")),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Account returns the address every submission is signed by.
func (o *Orchestrator) Account() common.Address { return o.wallet.Address() }

// Submit runs req to completion. Pre-flight problems (insufficient balance,
// unreadable chain state) return an error before any wallet call. Once
// calls are handed to the wallet the returned Result always describes what
// happened; the error is non-nil only for OutcomeFailure.
func (o *Orchestrator) Submit(ctx context.Context, req ActionRequest) (Result, error) {
	m := flow.New()
	o.fire(ctx, m, req, flow.Select)

	owner := o.wallet.Address()
	if req.RequiredCost != nil && req.RequiredCost.Sign() > 0 {
		if err := o.checkBalance(ctx, owner, req.RequiredCost); err != nil {
			o.failFlow(ctx, m, req, err)
			return Result{IntentID: req.ID, States: m.History()}, err
		}
	}

	approvalNeeded := false
	if req.needsAllowance() {
		current, err := o.reader.Allowance(ctx, owner, req.Spender)
		if err != nil {
			err = fmt.Errorf("orchestrator: read allowance: %w", err)
			o.failFlow(ctx, m, req, err)
			return Result{IntentID: req.ID, States: m.History()}, err
		}
		approvalNeeded = current.Cmp(req.Approval) < 0
	}

	var (
		res Result
		err error
	)
	switch {
	case !approvalNeeded:
		o.fire(ctx, m, req, flow.SubmitDirect)
		res, err = o.direct(ctx, m, req)
	case o.wallet.SupportsBatch(ctx):
		o.fire(ctx, m, req, flow.SubmitWithApproval)
		res, err = o.batch(ctx, m, req)
	default:
		o.fire(ctx, m, req, flow.SubmitWithApproval)
		res, err = o.sequential(ctx, m, req)
	}
	res.IntentID = req.ID
	res.States = m.History()
	res.Action = req.Action
	o.finish(ctx, req, res)
	return res, err
}

// RetryAction re-sends only the action of a partially successful
// submission. The balance and allowance are re-read first. A short balance
// leaves the submission retryable; an allowance that no longer covers the
// approval ends it.
func (o *Orchestrator) RetryAction(ctx context.Context, req ActionRequest) (Result, error) {
	m := flow.Restore(flow.PartialSuccess, nil)
	o.fire(ctx, m, req, flow.Retry)

	if req.RequiredCost != nil && req.RequiredCost.Sign() > 0 {
		if err := o.checkBalance(ctx, o.wallet.Address(), req.RequiredCost); err != nil {
			o.fire(ctx, m, req, flow.PartialFail)
			res := Result{IntentID: req.ID, Outcome: domain.OutcomePartial, RetryAvailable: true, Message: PartialMessage, States: m.History()}
			var ibe *domain.InsufficientBalanceError
			if errors.As(err, &ibe) {
				res.Message = ibe.Error()
			}
			return res, err
		}
	}

	if req.needsAllowance() {
		current, err := o.reader.Allowance(ctx, o.wallet.Address(), req.Spender)
		if err != nil {
			err = fmt.Errorf("orchestrator: read allowance: %w", err)
			o.fire(ctx, m, req, flow.PartialFail)
			return Result{IntentID: req.ID, Outcome: domain.OutcomePartial, RetryAvailable: true, States: m.History()}, err
		}
		if current.Cmp(req.Approval) < 0 {
			err := fmt.Errorf("orchestrator: retry %s: %w", req.ID, domain.ErrAllowanceTooLow)
			o.failFlow(ctx, m, req, err)
			return Result{IntentID: req.ID, Outcome: domain.OutcomeFailure, Message: err.Error(), States: m.History()}, err
		}
	}

	res := Result{Path: domain.PathSequential}
	hash, rcpt, err := o.sendAndWait(ctx, req.Action)
	res.ActionTx = hash
	if err == nil && rcpt.Succeeded {
		res.Outcome = domain.OutcomeSuccess
		o.fire(ctx, m, req, flow.Succeed)
	} else {
		o.partial(&res, rcpt, err)
		o.fire(ctx, m, req, flow.PartialFail)
	}
	res.IntentID = req.ID
	res.States = m.History()
	res.Action = req.Action
	o.finish(ctx, req, res)
	return res, nil
}

func (o *Orchestrator) checkBalance(ctx context.Context, owner common.Address, required *big.Int) error {
	balance, err := o.reader.TokenBalance(ctx, owner)
	if err != nil {
		return fmt.Errorf("orchestrator: read balance: %w", err)
	}
	if balance.Cmp(required) >= 0 {
		return nil
	}
	decimals, err := o.reader.TokenDecimals(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: read decimals: %w", err)
	}
	symbol, err := o.reader.TokenSymbol(ctx)
	if err != nil {
		symbol = ""
	}
	return &domain.InsufficientBalanceError{
		Required:         new(big.Int).Set(required),
		Available:        balance,
		RequiredDisplay:  amount.Format(required, decimals),
		AvailableDisplay: amount.Format(balance, decimals),
		Symbol:           symbol,
	}
}

// direct sends the action alone; the allowance already covers it.
func (o *Orchestrator) direct(ctx context.Context, m *flow.Machine, req ActionRequest) (Result, error) {
	res := Result{Path: domain.PathDirect}
	hash, rcpt, err := o.sendAndWait(ctx, req.Action)
	res.ActionTx = hash
	if err == nil && rcpt.Succeeded {
		res.Outcome = domain.OutcomeSuccess
		o.fire(ctx, m, req, flow.Succeed)
		return res, nil
	}
	return o.failure(ctx, m, &res, req, rcpt, err)
}

// batch submits [approve, action] as one atomic bundle and polls it to a
// terminal state. A bundle the wallet cannot process at all falls back to
// the sequential path.
func (o *Orchestrator) batch(ctx context.Context, m *flow.Machine, req ActionRequest) (Result, error) {
	approve, err := o.approveCall(req)
	if err != nil {
		res := Result{Path: domain.PathBatch}
		return o.failure(ctx, m, &res, req, chain.Receipt{}, err)
	}
	calls := []chain.Call{approve, req.Action}

	id, err := o.wallet.SendCalls(ctx, calls)
	if err != nil {
		if chain.IsCapabilityError(err) {
			o.logger.InfoContext(ctx, "wallet cannot batch, falling back to sequential",
				slog.String("intent", req.ID),
				slog.String("error", err.Error()),
			)
			return o.sequential(ctx, m, req)
		}
		res := Result{Path: domain.PathBatch}
		return o.failure(ctx, m, &res, req, chain.Receipt{}, err)
	}

	res := Result{Path: domain.PathBatch, CallsID: id}
	status, err := o.PollBatch(ctx, id)
	if err != nil {
		return o.failure(ctx, m, &res, req, chain.Receipt{}, err)
	}
	res.Batch = &status
	if len(status.Receipts) > 0 {
		res.ApprovalTx = status.Receipts[0].TxHash
	}
	if len(status.Receipts) > 1 {
		res.ActionTx = status.Receipts[len(status.Receipts)-1].TxHash
	}

	switch ClassifyBatch(status, len(calls)) {
	case domain.OutcomeSuccess:
		res.Outcome = domain.OutcomeSuccess
		o.fire(ctx, m, req, flow.Succeed)
		return res, nil
	case domain.OutcomePartial:
		o.partial(&res, chain.Receipt{Revert: o.wallet.Explain(ctx, req.Action)}, nil)
		o.fire(ctx, m, req, flow.PartialFail)
		return res, nil
	default:
		rev := o.wallet.Explain(ctx, approve)
		return o.failure(ctx, m, &res, req, chain.Receipt{Revert: rev},
			fmt.Errorf("orchestrator: bundle %s: %w", id, domain.ErrReverted))
	}
}

// sequential sends approve, waits for it, re-reads the allowance and only
// then sends the action. Once the approval is on-chain any action failure
// is a partial success.
func (o *Orchestrator) sequential(ctx context.Context, m *flow.Machine, req ActionRequest) (Result, error) {
	res := Result{Path: domain.PathSequential}
	approve, err := o.approveCall(req)
	if err != nil {
		return o.failure(ctx, m, &res, req, chain.Receipt{}, err)
	}

	hash, rcpt, err := o.sendAndWait(ctx, approve)
	res.ApprovalTx = hash
	if err != nil || !rcpt.Succeeded {
		return o.failure(ctx, m, &res, req, rcpt, err)
	}
	o.fire(ctx, m, req, flow.ApprovalConfirmed)

	current, err := o.reader.Allowance(ctx, o.wallet.Address(), req.Spender)
	if err != nil {
		o.partial(&res, chain.Receipt{}, fmt.Errorf("orchestrator: re-read allowance: %w", err))
		o.fire(ctx, m, req, flow.PartialFail)
		return res, nil
	}
	if current.Cmp(req.Approval) < 0 {
		err := fmt.Errorf("orchestrator: allowance %s after approval below %s: %w",
			current, req.Approval, domain.ErrAllowanceTooLow)
		return o.failure(ctx, m, &res, req, chain.Receipt{}, err)
	}

	hash, rcpt, err = o.sendAndWait(ctx, req.Action)
	res.ActionTx = hash
	if err == nil && rcpt.Succeeded {
		res.Outcome = domain.OutcomeSuccess
		o.fire(ctx, m, req, flow.Succeed)
		return res, nil
	}
	o.partial(&res, rcpt, err)
	o.fire(ctx, m, req, flow.PartialFail)
	return res, nil
}

// PollBatch polls the wallet until the bundle reaches a terminal state, the
// status call errors or ctx ends. Concurrent pollers of the same id share
// one in-flight status request.
func (o *Orchestrator) PollBatch(ctx context.Context, id string) (domain.BatchSubmissionResult, error) {
	ticker := time.NewTicker(o.cfg.StatusPollInterval)
	defer ticker.Stop()

	for {
		v, err, _ := o.polls.Do(id, func() (any, error) {
			return o.wallet.CallsStatus(ctx, id)
		})
		if err != nil {
			return domain.BatchSubmissionResult{}, fmt.Errorf("orchestrator: poll %s: %w", id, err)
		}
		status := v.(domain.BatchSubmissionResult)
		if status.Terminal() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return domain.BatchSubmissionResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) sendAndWait(ctx context.Context, call chain.Call) (common.Hash, chain.Receipt, error) {
	hash, err := o.wallet.SendCall(ctx, call)
	if err != nil {
		return common.Hash{}, chain.Receipt{}, err
	}
	rcpt, err := o.wallet.WaitReceipt(ctx, hash)
	if err != nil {
		return hash, chain.Receipt{}, err
	}
	return hash, rcpt, nil
}

func (o *Orchestrator) approveCall(req ActionRequest) (chain.Call, error) {
	return ApproveCall(o.set, req.Spender, req.Approval)
}

// failure ends the flow in Idle with a decoded message and returns the
// error describing it.
func (o *Orchestrator) failure(ctx context.Context, m *flow.Machine, res *Result, req ActionRequest, rcpt chain.Receipt, err error) (Result, error) {
	res.Outcome = domain.OutcomeFailure
	res.Revert, res.Message, err = describe(rcpt, err)
	o.failFlow(ctx, m, req, err)
	return *res, err
}

// partial marks res retryable and attaches the decoded action failure.
func (o *Orchestrator) partial(res *Result, rcpt chain.Receipt, err error) {
	res.Outcome = domain.OutcomePartial
	res.RetryAvailable = true
	rev, msg, _ := describe(rcpt, err)
	res.Revert = rev
	res.Message = PartialMessage
	if msg != "" && msg != chain.GenericRevertMessage {
		res.Message = PartialMessage + ": " + msg
	}
}

// describe picks the most specific explanation for a failed step: a
// wallet rejection, a decoded revert, or the raw error.
func describe(rcpt chain.Receipt, err error) (*domain.RevertError, string, error) {
	var rev *domain.RevertError
	switch {
	case err != nil && chain.IsUserRejection(err):
		if !errors.Is(err, domain.ErrWalletRejected) {
			err = fmt.Errorf("%w: %v", domain.ErrWalletRejected, err)
		}
		return nil, err.Error(), err
	case err != nil && errors.As(err, &rev):
		return rev, rev.Message, err
	case rcpt.Revert != nil:
		if err == nil {
			err = rcpt.Revert
		}
		return rcpt.Revert, rcpt.Revert.Message, err
	case err != nil && errors.Is(err, domain.ErrReverted):
		// No reason could be decoded; err stays intact for logging.
		rev = &domain.RevertError{Message: chain.GenericRevertMessage}
		return rev, rev.Message, fmt.Errorf("%w: %w", err, rev)
	case err != nil:
		return nil, err.Error(), err
	default:
		rev = &domain.RevertError{Message: chain.GenericRevertMessage}
		return rev, rev.Message, rev
	}
}

func (o *Orchestrator) failFlow(ctx context.Context, m *flow.Machine, req ActionRequest, err error) {
	if ferr := m.FailWith(err); ferr != nil {
		o.logger.ErrorContext(ctx, "flow transition rejected",
			slog.String("intent", req.ID),
			slog.String("error", ferr.Error()),
		)
		return
	}
	o.notify(ctx, req, flow.Idle)
}

func (o *Orchestrator) fire(ctx context.Context, m *flow.Machine, req ActionRequest, ev flow.Event) {
	if err := m.Fire(ev); err != nil {
		o.logger.ErrorContext(ctx, "flow transition rejected",
			slog.String("intent", req.ID),
			slog.String("event", string(ev)),
			slog.String("error", err.Error()),
		)
		return
	}
	o.notify(ctx, req, m.State())
}

func (o *Orchestrator) notify(ctx context.Context, req ActionRequest, state flow.State) {
	if o.observer != nil {
		o.observer.FlowChanged(ctx, req.ID, o.wallet.Address().Hex(), state)
	}
}

// finish logs the outcome and re-fetches anything the transaction could
// have changed.
func (o *Orchestrator) finish(ctx context.Context, req ActionRequest, res Result) {
	attrs := []any{
		slog.String("intent", req.ID),
		slog.String("kind", string(req.Kind)),
		slog.String("path", string(res.Path)),
		slog.String("outcome", string(res.Outcome)),
	}
	if res.CallsID != "" {
		attrs = append(attrs, slog.String("calls_id", res.CallsID))
	}
	if res.Message != "" {
		attrs = append(attrs, slog.String("message", res.Message))
	}
	switch res.Outcome {
	case domain.OutcomeSuccess:
		o.logger.InfoContext(ctx, "submission succeeded", attrs...)
	case domain.OutcomePartial:
		o.logger.WarnContext(ctx, "submission partially succeeded", attrs...)
	default:
		o.logger.WarnContext(ctx, "submission failed", attrs...)
	}

	if o.invalidator != nil && (res.Outcome == domain.OutcomeSuccess || res.Outcome == domain.OutcomePartial) {
		o.invalidator.AfterTransaction(ctx, o.wallet.Address().Hex(), req.Version, req.MarketID)
	}
}
