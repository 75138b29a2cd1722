package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// MarketVersion selects which market contract a market id belongs to.
type MarketVersion string

const (
	MarketV1 MarketVersion = "v1" // binary-outcome markets
	MarketV2 MarketVersion = "v2" // multi-option LMSR markets
)

// Valid reports whether v names a known contract version.
func (v MarketVersion) Valid() bool {
	return v == MarketV1 || v == MarketV2
}

// MarketStatus is derived from the on-chain flags and end time.
type MarketStatus string

const (
	MarketStatusActive   MarketStatus = "active"
	MarketStatusPending  MarketStatus = "pending"
	MarketStatusResolved MarketStatus = "resolved"
)

// NoBetsYetLabel is shown instead of odds when a market has no shares.
const NoBetsYetLabel = "No bets yet"

// MarketView is a read-only projection of on-chain market state. It is
// never mutated locally; a change is always a re-fetch.
type MarketView struct {
	Version     MarketVersion `json:"version"`
	ID          uint64        `json:"id"`
	Question    string        `json:"question"`
	Description string        `json:"description,omitempty"`
	Category    uint8         `json:"category"`
	// MarketType is the V2 createMarket market type; zero for V1.
	MarketType  uint8        `json:"market_type"`
	EndTime     time.Time    `json:"end_time"`
	Status      MarketStatus `json:"status"`
	Resolved    bool         `json:"resolved"`
	Disputed    bool         `json:"disputed"`
	Invalidated bool         `json:"invalidated"`
	Validated   bool         `json:"validated"`
	// WinningOption is meaningful only when Resolved is set.
	WinningOption uint64       `json:"winning_option"`
	Creator       string       `json:"creator,omitempty"`
	TotalShares   *big.Int     `json:"total_shares"`
	Options       []OptionView `json:"options"`
	NoBetsYet     bool         `json:"no_bets_yet"`
	OddsLabel     string       `json:"odds_label,omitempty"`
	FetchedAt     time.Time    `json:"fetched_at"`
}

// OptionView is one outcome of a market.
type OptionView struct {
	MarketID     uint64          `json:"market_id"`
	ID           uint64          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	TotalShares  *big.Int        `json:"total_shares"`
	TotalVolume  *big.Int        `json:"total_volume,omitempty"`
	CurrentPrice *big.Int        `json:"current_price,omitempty"`
	Active       bool            `json:"active"`
	Percentage   decimal.Decimal `json:"percentage"`
}

// VoteView is a single holder position shown in history views.
type VoteView struct {
	Account  string   `json:"account"`
	MarketID uint64   `json:"market_id"`
	OptionID uint64   `json:"option_id"`
	Shares   *big.Int `json:"shares"`
}

// AllowanceState is a cached read of the token allowance and balance for an
// owner/spender pair. The orchestrator never trusts it for decisions; it
// re-reads the chain before every submission.
type AllowanceState struct {
	Owner            string    `json:"owner"`
	Spender          string    `json:"spender"`
	CurrentAllowance *big.Int  `json:"current_allowance"`
	Balance          *big.Int  `json:"balance"`
	Decimals         uint8     `json:"decimals"`
	Symbol           string    `json:"symbol"`
	ReadAt           time.Time `json:"read_at"`
}

// Covers reports whether the cached allowance already covers amount.
func (a AllowanceState) Covers(amount *big.Int) bool {
	return a.CurrentAllowance != nil && a.CurrentAllowance.Cmp(amount) >= 0
}
