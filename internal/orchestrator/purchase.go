package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/policast/internal/amount"
	"github.com/alanyoungcy/policast/internal/domain"
)

// PurchaseRequest is what a user submits from the buy form.
type PurchaseRequest struct {
	ID       string               `json:"id,omitempty"`
	Account  string               `json:"account,omitempty"`
	Version  domain.MarketVersion `json:"version"`
	MarketID uint64               `json:"market_id"`
	OptionID uint64               `json:"option_id"`
	// Amount is a decimal string: shares for V2, tokens for V1.
	Amount string `json:"amount"`
}

// PreparePurchase validates req and computes the cost and slippage bounds
// without sending anything. For V2 markets the cost is quoted on-chain.
func (o *Orchestrator) PreparePurchase(ctx context.Context, req PurchaseRequest) (domain.PurchaseIntent, error) {
	if !req.Version.Valid() {
		return domain.PurchaseIntent{}, domain.Invalid("version", "unknown market version %q", req.Version)
	}
	if err := o.checkAccount(req.Account); err != nil {
		return domain.PurchaseIntent{}, err
	}
	if req.Version == domain.MarketV1 && req.OptionID > 1 {
		return domain.PurchaseIntent{}, domain.Invalid("option_id", "v1 markets have options 0 and 1")
	}

	decimals, err := o.reader.TokenDecimals(ctx)
	if err != nil {
		return domain.PurchaseIntent{}, fmt.Errorf("orchestrator: read decimals: %w", err)
	}
	qty, err := amount.Parse(req.Amount, decimals)
	if err != nil {
		return domain.PurchaseIntent{}, err
	}
	minV, maxV, err := o.purchaseBounds(decimals)
	if err != nil {
		return domain.PurchaseIntent{}, err
	}
	if err := amount.CheckBounds("amount", qty, minV, maxV, decimals); err != nil {
		return domain.PurchaseIntent{}, err
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	intent := domain.PurchaseIntent{
		ID:            id,
		Account:       o.wallet.Address().Hex(),
		Version:       req.Version,
		MarketID:      req.MarketID,
		OptionID:      req.OptionID,
		ShareQuantity: qty,
		TokenDecimals: decimals,
	}
	if err := o.quote(ctx, &intent); err != nil {
		return domain.PurchaseIntent{}, err
	}
	return intent, nil
}

// ExecutePurchase re-quotes intent immediately before submission, then
// submits approve and buyShares through Submit.
func (o *Orchestrator) ExecutePurchase(ctx context.Context, intent domain.PurchaseIntent) (Result, domain.PurchaseIntent, error) {
	if err := o.quote(ctx, &intent); err != nil {
		return Result{IntentID: intent.ID}, intent, err
	}
	action, err := BuyCall(o.set, intent)
	if err != nil {
		return Result{IntentID: intent.ID}, intent, err
	}
	res, err := o.Submit(ctx, ActionRequest{
		ID:           intent.ID,
		Kind:         domain.ActionBuy,
		Version:      intent.Version,
		MarketID:     intent.MarketID,
		OptionID:     intent.OptionID,
		Action:       action,
		Spender:      common.HexToAddress(intent.Spender),
		Approval:     intent.RequiredApproval,
		RequiredCost: intent.ComputedCost,
	})
	return res, intent, err
}

// quote fills cost, bounds, spender and approval. V1 purchases cost the
// entered amount; V2 purchases are priced by calculateBuyCost.
func (o *Orchestrator) quote(ctx context.Context, intent *domain.PurchaseIntent) error {
	intent.QuotedAt = time.Now().UTC()
	if intent.Version == domain.MarketV1 {
		cost := new(big.Int).Set(intent.ShareQuantity)
		intent.ComputedCost = cost
		intent.AvgPricePerShare = amount.Unit(intent.TokenDecimals)
		intent.MaxPricePerShare = nil
		intent.MaxTotalCost = cost
		intent.RequiredApproval = cost
		intent.Spender = o.set.MarketV1.Address.Hex()
		return nil
	}

	cost, err := o.reader.QuoteBuy(ctx, intent.MarketID, intent.OptionID, intent.ShareQuantity)
	if err != nil {
		return fmt.Errorf("orchestrator: quote: %w", err)
	}
	if cost.Sign() <= 0 {
		return domain.Invalid("amount", "quoted cost is zero")
	}
	avg := amount.PerShare(cost, intent.ShareQuantity, intent.TokenDecimals)
	intent.ComputedCost = cost
	intent.AvgPricePerShare = avg
	intent.MaxPricePerShare = amount.ApplyBps(avg, o.cfg.PerShareSlippageBps)
	intent.MaxTotalCost = amount.ApplyBps(cost, o.cfg.TotalCostBufferBps)
	intent.RequiredApproval = intent.MaxTotalCost
	intent.Spender = o.set.MarketV2.Address.Hex()
	return nil
}

func (o *Orchestrator) purchaseBounds(decimals uint8) (minV, maxV *big.Int, err error) {
	if o.cfg.MinPurchase != "" {
		if minV, err = amount.Parse(o.cfg.MinPurchase, decimals); err != nil {
			return nil, nil, fmt.Errorf("orchestrator: min purchase: %w", err)
		}
	}
	if o.cfg.MaxPurchase != "" {
		if maxV, err = amount.Parse(o.cfg.MaxPurchase, decimals); err != nil {
			return nil, nil, fmt.Errorf("orchestrator: max purchase: %w", err)
		}
	}
	return minV, maxV, nil
}

func (o *Orchestrator) checkAccount(account string) error {
	if account == "" {
		return nil
	}
	if !common.IsHexAddress(account) {
		return domain.Invalid("account", "%q is not an address", account)
	}
	if !strings.EqualFold(common.HexToAddress(account).Hex(), o.wallet.Address().Hex()) {
		return domain.Invalid("account", "does not match the signing wallet")
	}
	return nil
}

// SellRequest sells V2 shares back to the market.
type SellRequest struct {
	ID       string `json:"id,omitempty"`
	Account  string `json:"account,omitempty"`
	MarketID uint64 `json:"market_id"`
	OptionID uint64 `json:"option_id"`
	Amount   string `json:"amount"`
}

// Sell quotes the proceeds, bounds the minimum price per share by the sell
// slippage and submits sellShares. No approval is involved.
func (o *Orchestrator) Sell(ctx context.Context, req SellRequest) (Result, error) {
	if err := o.checkAccount(req.Account); err != nil {
		return Result{}, err
	}
	decimals, err := o.reader.TokenDecimals(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: read decimals: %w", err)
	}
	qty, err := amount.Parse(req.Amount, decimals)
	if err != nil {
		return Result{}, err
	}
	if err := amount.CheckBounds("amount", qty, nil, nil, decimals); err != nil {
		return Result{}, err
	}
	proceeds, err := o.reader.QuoteSell(ctx, req.MarketID, req.OptionID, qty)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: quote sell: %w", err)
	}
	minPrice := amount.ApplyBps(amount.PerShare(proceeds, qty, decimals), -o.cfg.SellSlippageBps)

	action, err := SellCall(o.set, req.MarketID, req.OptionID, qty, minPrice)
	if err != nil {
		return Result{}, err
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	return o.Submit(ctx, ActionRequest{
		ID:       id,
		Kind:     domain.ActionSell,
		Version:  domain.MarketV2,
		MarketID: req.MarketID,
		OptionID: req.OptionID,
		Action:   action,
	})
}

// ClaimRequest claims free tokens or winnings.
type ClaimRequest struct {
	ID       string               `json:"id,omitempty"`
	Version  domain.MarketVersion `json:"version"`
	Kind     domain.ActionKind    `json:"kind"`
	MarketID uint64               `json:"market_id"`
}

// Claim submits a claim call directly; claims never need an approval.
func (o *Orchestrator) Claim(ctx context.Context, req ClaimRequest) (Result, error) {
	action, err := ClaimCall(o.set, req.Version, req.Kind, req.MarketID)
	if err != nil {
		return Result{}, err
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	return o.Submit(ctx, ActionRequest{
		ID:       id,
		Kind:     req.Kind,
		Version:  req.Version,
		MarketID: req.MarketID,
		Action:   action,
	})
}
