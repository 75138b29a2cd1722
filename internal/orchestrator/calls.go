package orchestrator

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/policast/internal/chain"
	"github.com/alanyoungcy/policast/internal/contracts"
	"github.com/alanyoungcy/policast/internal/domain"
)

func u256(v uint64) *big.Int { return new(big.Int).SetUint64(v) }

func call(desc contracts.Descriptor, label string, args ...any) (chain.Call, error) {
	data, err := desc.Pack(label, args...)
	if err != nil {
		return chain.Call{}, err
	}
	return chain.Call{To: desc.Address, Data: data, Label: label}, nil
}

// ApproveCall encodes token.approve(spender, value).
func ApproveCall(set *contracts.Set, spender common.Address, value *big.Int) (chain.Call, error) {
	return call(set.Token, "approve", spender, value)
}

// BuyCall encodes the buyShares call for an intent. V1 markets take the
// amount and a side flag; V2 markets take the quantity with both slippage
// bounds.
func BuyCall(set *contracts.Set, intent domain.PurchaseIntent) (chain.Call, error) {
	if intent.Version == domain.MarketV1 {
		return call(set.MarketV1, "buyShares", u256(intent.MarketID), intent.OptionID == 0, intent.ShareQuantity)
	}
	return call(set.MarketV2, "buyShares",
		u256(intent.MarketID), u256(intent.OptionID), intent.ShareQuantity,
		intent.MaxPricePerShare, intent.MaxTotalCost)
}

// SellCall encodes V2 sellShares.
func SellCall(set *contracts.Set, marketID, optionID uint64, quantity, minPricePerShare *big.Int) (chain.Call, error) {
	return call(set.MarketV2, "sellShares", u256(marketID), u256(optionID), quantity, minPricePerShare)
}

// ClaimCall encodes a claim for kind on the market contract for version.
func ClaimCall(set *contracts.Set, version domain.MarketVersion, kind domain.ActionKind, marketID uint64) (chain.Call, error) {
	switch {
	case version == domain.MarketV1 && kind == domain.ActionClaimFree:
		return call(set.MarketV1, "claimFreeShares")
	case version == domain.MarketV1 && kind == domain.ActionClaimWinnings:
		return call(set.MarketV1, "claimWinnings", u256(marketID))
	case version == domain.MarketV2 && kind == domain.ActionClaimFree:
		return call(set.MarketV2, "claimFreeTokens", u256(marketID))
	case version == domain.MarketV2 && kind == domain.ActionClaimWinnings:
		return call(set.MarketV2, "claimWinnings", u256(marketID))
	default:
		return chain.Call{}, domain.Invalid("kind", "%s is not a claim for %s markets", kind, version)
	}
}

// MarketSpec is the input of a createMarket call.
type MarketSpec struct {
	Question           string
	Description        string
	OptionNames        []string
	OptionDescriptions []string
	Duration           *big.Int
	Category           uint8
	MarketType         uint8
	InitialLiquidity   *big.Int
}

// CreateMarketCall encodes createMarket for version. V1 markets only use the
// question, the two option names and the duration.
func CreateMarketCall(set *contracts.Set, version domain.MarketVersion, ms MarketSpec) (chain.Call, error) {
	if version == domain.MarketV1 {
		if len(ms.OptionNames) != 2 {
			return chain.Call{}, domain.Invalid("options", "v1 markets have exactly two options")
		}
		return call(set.MarketV1, "createMarket", ms.Question, ms.OptionNames[0], ms.OptionNames[1], ms.Duration)
	}
	descs := ms.OptionDescriptions
	if len(descs) < len(ms.OptionNames) {
		descs = append(append([]string(nil), descs...), make([]string, len(ms.OptionNames)-len(descs))...)
	}
	liquidity := ms.InitialLiquidity
	if liquidity == nil {
		liquidity = new(big.Int)
	}
	return call(set.MarketV2, "createMarket",
		ms.Question, ms.Description, ms.OptionNames, descs,
		ms.Duration, ms.Category, ms.MarketType, liquidity)
}

// ResolveCall encodes resolveMarket. V1 outcomes are 1-based (1 = option A).
func ResolveCall(set *contracts.Set, version domain.MarketVersion, marketID, winningOption uint64) (chain.Call, error) {
	if version == domain.MarketV1 {
		if winningOption > 1 {
			return chain.Call{}, domain.Invalid("winning_option", "v1 markets have options 0 and 1")
		}
		return call(set.MarketV1, "resolveMarket", u256(marketID), uint8(winningOption+1))
	}
	return call(set.MarketV2, "resolveMarket", u256(marketID), u256(winningOption))
}

// AdminCall encodes the single-argument V2 admin actions and disputes.
func AdminCall(set *contracts.Set, kind domain.ActionKind, marketID uint64, reason string) (chain.Call, error) {
	switch kind {
	case domain.ActionValidate:
		return call(set.MarketV2, "validateMarket", u256(marketID))
	case domain.ActionInvalidate:
		return call(set.MarketV2, "invalidateMarket", u256(marketID))
	case domain.ActionDispute:
		return call(set.MarketV2, "disputeMarket", u256(marketID), reason)
	default:
		return chain.Call{}, domain.Invalid("action", "unknown admin action %q", kind)
	}
}
