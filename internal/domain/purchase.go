package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PurchaseIntent is the pending purchase a user is building: chosen option,
// amount and the bounds computed from the latest quote. It lives only as long
// as the flow that owns it.
type PurchaseIntent struct {
	ID               string        `json:"id"`
	Account          string        `json:"account"`
	Version          MarketVersion `json:"version"`
	MarketID         uint64        `json:"market_id"`
	OptionID         uint64        `json:"option_id"`
	ShareQuantity    *big.Int      `json:"share_quantity"`
	TokenDecimals    uint8         `json:"token_decimals"`
	ComputedCost     *big.Int      `json:"computed_cost"`
	AvgPricePerShare *big.Int      `json:"avg_price_per_share,omitempty"`
	MaxPricePerShare *big.Int      `json:"max_price_per_share,omitempty"`
	MaxTotalCost     *big.Int      `json:"max_total_cost,omitempty"`
	// RequiredApproval is the amount approve() is called with.
	RequiredApproval *big.Int  `json:"required_approval"`
	Spender          string    `json:"spender"`
	QuotedAt         time.Time `json:"quoted_at"`
}

// BatchState is the overall status a wallet reports for a calls bundle.
type BatchState string

const (
	BatchPending BatchState = "pending"
	BatchSuccess BatchState = "success"
	BatchFailure BatchState = "failure"
)

// BatchReceipt is one transaction receipt reported inside a calls bundle.
type BatchReceipt struct {
	TxHash    common.Hash `json:"tx_hash"`
	Succeeded bool        `json:"succeeded"`
	BlockNum  uint64      `json:"block_number"`
}

// BatchSubmissionResult is what the wallet reports for a submitted bundle.
type BatchSubmissionResult struct {
	CallsID  string         `json:"calls_id"`
	Status   BatchState     `json:"status"`
	Receipts []BatchReceipt `json:"receipts"`
}

// Terminal reports whether polling can stop.
func (b BatchSubmissionResult) Terminal() bool {
	return b.Status == BatchSuccess || b.Status == BatchFailure
}

// Outcome classifies how a submitted flow ended.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// SubmissionPath records how the calls reached the chain.
type SubmissionPath string

const (
	PathBatch      SubmissionPath = "batch"
	PathSequential SubmissionPath = "sequential"
	PathDirect     SubmissionPath = "direct" // action only, allowance already sufficient
)

// ActionKind names the contract action an orchestrated submission performs.
type ActionKind string

const (
	ActionBuy           ActionKind = "buy"
	ActionSell          ActionKind = "sell"
	ActionClaimFree     ActionKind = "claim_free"
	ActionClaimWinnings ActionKind = "claim_winnings"
	ActionCreateMarket  ActionKind = "create_market"
	ActionResolveMarket ActionKind = "resolve_market"
	ActionValidate      ActionKind = "validate_market"
	ActionInvalidate    ActionKind = "invalidate_market"
	ActionDispute       ActionKind = "dispute_market"
)

// PurchaseRecord is the persisted history row for one orchestrated
// submission. It is written when the flow is submitted and updated when
// the outcome is known.
type PurchaseRecord struct {
	ID           string        `json:"id"`
	Account      string        `json:"account"`
	Kind         ActionKind    `json:"kind"`
	Version      MarketVersion `json:"version"`
	MarketID     uint64        `json:"market_id"`
	OptionID     uint64        `json:"option_id"`
	Quantity     string        `json:"quantity"`
	Cost         string        `json:"cost"`
	MaxTotalCost string        `json:"max_total_cost,omitempty"`
	Spender      string        `json:"spender,omitempty"`
	Approval     string        `json:"approval,omitempty"`
	// ActionTo and ActionData are the encoded contract action, kept so a
	// partial success can be retried without rebuilding the call.
	ActionTo       string         `json:"action_to,omitempty"`
	ActionData     string         `json:"action_data,omitempty"`
	Path           SubmissionPath `json:"path"`
	CallsID        string         `json:"calls_id,omitempty"`
	ApprovalTx     string         `json:"approval_tx,omitempty"`
	ActionTx       string         `json:"action_tx,omitempty"`
	Outcome        Outcome        `json:"outcome"`
	Message        string         `json:"message,omitempty"`
	RetryAvailable bool           `json:"retry_available"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
