// Package mapper decodes raw contract tuples into market and option views.
// Every function here is pure: no network, no storage, no clock reads.
package mapper

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/policast/internal/domain"
)

// Tuple arities of the contract views.
const (
	marketV1Fields = 8
	marketV2Fields = 12
	optionV2Fields = 6
)

// V1 outcome values stored by the binary market contract.
const (
	OutcomeUnresolved uint8 = 0
	OutcomeOptionA    uint8 = 1
	OutcomeOptionB    uint8 = 2
)

var hundred = decimal.NewFromInt(100)

// MarketV1 maps a V1 getMarketInfo tuple:
// (question, optionA, optionB, endTime, outcome, totalA, totalB, resolved).
func MarketV1(id uint64, raw []any, now time.Time) (domain.MarketView, error) {
	t, err := newTuple("getMarketInfo(v1)", raw, marketV1Fields)
	if err != nil {
		return domain.MarketView{}, err
	}
	question := t.str(0, "question")
	optionA := t.str(1, "optionA")
	optionB := t.str(2, "optionB")
	end := t.num(3, "endTime")
	outcome := t.u8(4, "outcome")
	sharesA := t.num(5, "totalOptionAShares")
	sharesB := t.num(6, "totalOptionBShares")
	resolved := t.boolean(7, "resolved")
	if t.err != nil {
		return domain.MarketView{}, t.err
	}

	view := domain.MarketView{
		Version:  domain.MarketV1,
		ID:       id,
		Question: question,
		EndTime:  unixTime(end),
		Resolved: resolved,
		// V1 markets are live as soon as they are created.
		Validated: true,
		Options: []domain.OptionView{
			{MarketID: id, ID: 0, Name: optionA, TotalShares: sharesA, Active: true},
			{MarketID: id, ID: 1, Name: optionB, TotalShares: sharesB, Active: true},
		},
	}
	if resolved && outcome != OutcomeUnresolved {
		view.WinningOption = uint64(outcome - 1)
	}
	view.Status = Status(resolved, view.EndTime, now)
	return ApplyOdds(view, nil), nil
}

// MarketV2 maps a V2 getMarketInfo tuple. Options are returned as
// placeholders carrying only their ids; fill them with OptionV2 and call
// ApplyOdds once they are all known.
func MarketV2(id uint64, raw []any, now time.Time) (domain.MarketView, error) {
	t, err := newTuple("getMarketInfo(v2)", raw, marketV2Fields)
	if err != nil {
		return domain.MarketView{}, err
	}
	view := domain.MarketView{
		Version:       domain.MarketV2,
		ID:            id,
		Question:      t.str(0, "question"),
		Description:   t.str(1, "description"),
		EndTime:       unixTime(t.num(2, "endTime")),
		Category:      t.u8(3, "category"),
		MarketType:    t.u8(7, "marketType"),
		Resolved:      t.boolean(5, "resolved"),
		Disputed:      t.boolean(6, "disputed"),
		Invalidated:   t.boolean(8, "invalidated"),
		WinningOption: t.u64(9, "winningOptionId"),
		Creator:       t.addr(10, "creator"),
		Validated:     t.boolean(11, "validated"),
	}
	count := t.u64(4, "optionCount")
	if t.err != nil {
		return domain.MarketView{}, t.err
	}
	if count > 100 {
		return domain.MarketView{}, fmt.Errorf("mapper: getMarketInfo(v2): %w: optionCount %d", domain.ErrMalformedTuple, count)
	}

	view.Options = make([]domain.OptionView, count)
	for i := range view.Options {
		view.Options[i] = domain.OptionView{MarketID: id, ID: uint64(i), TotalShares: new(big.Int)}
	}
	view.Status = Status(view.Resolved, view.EndTime, now)
	view.TotalShares = new(big.Int)
	return view, nil
}

// OptionV2 maps a getMarketOption tuple:
// (name, description, totalShares, totalVolume, currentPrice, isActive).
func OptionV2(marketID, optionID uint64, raw []any) (domain.OptionView, error) {
	t, err := newTuple("getMarketOption", raw, optionV2Fields)
	if err != nil {
		return domain.OptionView{}, err
	}
	opt := domain.OptionView{
		MarketID:     marketID,
		ID:           optionID,
		Name:         t.str(0, "name"),
		Description:  t.str(1, "description"),
		TotalShares:  t.num(2, "totalShares"),
		TotalVolume:  t.num(3, "totalVolume"),
		CurrentPrice: t.num(4, "currentPrice"),
		Active:       t.boolean(5, "isActive"),
	}
	if t.err != nil {
		return domain.OptionView{}, t.err
	}
	return opt, nil
}

// Status derives the market status: resolved wins, then an elapsed end
// time means pending resolution, otherwise active.
func Status(resolved bool, end, now time.Time) domain.MarketStatus {
	switch {
	case resolved:
		return domain.MarketStatusResolved
	case !end.After(now):
		return domain.MarketStatusPending
	default:
		return domain.MarketStatusActive
	}
}

// ApplyOdds fills TotalShares and each option's Percentage. With no shares
// outstanding a two-option market shows 50/50 and larger markets show 0%,
// both flagged "No bets yet". Otherwise odds (1e18 = 100%) are used when
// they cover every option, falling back to share proportions.
func ApplyOdds(view domain.MarketView, odds []*big.Int) domain.MarketView {
	opts := make([]domain.OptionView, len(view.Options))
	copy(opts, view.Options)
	view.Options = opts

	total := new(big.Int)
	for _, o := range opts {
		if o.TotalShares != nil {
			total.Add(total, o.TotalShares)
		}
	}
	view.TotalShares = total

	if total.Sign() == 0 {
		neutral := decimal.Zero
		if len(opts) == 2 {
			neutral = decimal.NewFromInt(50)
		}
		for i := range opts {
			opts[i].Percentage = neutral
		}
		view.NoBetsYet = true
		view.OddsLabel = domain.NoBetsYetLabel
		return view
	}

	view.NoBetsYet = false
	useOdds := len(odds) == len(opts)
	totalDec := decimal.NewFromBigInt(total, 0)
	for i := range opts {
		switch {
		case useOdds && odds[i] != nil:
			opts[i].Percentage = decimal.NewFromBigInt(odds[i], -16).Round(2)
		case opts[i].TotalShares != nil:
			opts[i].Percentage = decimal.NewFromBigInt(opts[i].TotalShares, 0).
				Mul(hundred).Div(totalDec).Round(2)
		default:
			opts[i].Percentage = decimal.Zero
		}
	}
	view.OddsLabel = oddsLabel(opts)
	return view
}

func oddsLabel(opts []domain.OptionView) string {
	parts := make([]string, 0, len(opts))
	for _, o := range opts {
		parts = append(parts, fmt.Sprintf("%s %s%%", o.Name, o.Percentage.StringFixed(2)))
	}
	return strings.Join(parts, " / ")
}

func unixTime(v *big.Int) time.Time {
	if v == nil || !v.IsInt64() {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}

// tuple decodes positional values, remembering the first mismatch.
type tuple struct {
	name string
	raw  []any
	err  error
}

func newTuple(name string, raw []any, want int) (*tuple, error) {
	if len(raw) != want {
		return nil, fmt.Errorf("mapper: %s: %w: want %d fields, got %d", name, domain.ErrMalformedTuple, want, len(raw))
	}
	return &tuple{name: name, raw: raw}, nil
}

func (t *tuple) fail(i int, field string, v any) {
	if t.err == nil {
		t.err = fmt.Errorf("mapper: %s: %w: field %d (%s) has type %T", t.name, domain.ErrMalformedTuple, i, field, v)
	}
}

func (t *tuple) str(i int, field string) string {
	v, ok := t.raw[i].(string)
	if !ok {
		t.fail(i, field, t.raw[i])
	}
	return v
}

func (t *tuple) num(i int, field string) *big.Int {
	v, ok := t.raw[i].(*big.Int)
	if !ok || v == nil {
		t.fail(i, field, t.raw[i])
		return new(big.Int)
	}
	return v
}

func (t *tuple) u64(i int, field string) uint64 {
	v := t.num(i, field)
	if !v.IsUint64() {
		t.fail(i, field, t.raw[i])
		return 0
	}
	return v.Uint64()
}

func (t *tuple) u8(i int, field string) uint8 {
	v, ok := t.raw[i].(uint8)
	if !ok {
		t.fail(i, field, t.raw[i])
	}
	return v
}

func (t *tuple) boolean(i int, field string) bool {
	v, ok := t.raw[i].(bool)
	if !ok {
		t.fail(i, field, t.raw[i])
	}
	return v
}

func (t *tuple) addr(i int, field string) string {
	v, ok := t.raw[i].(common.Address)
	if !ok {
		t.fail(i, field, t.raw[i])
		return ""
	}
	return v.Hex()
}
