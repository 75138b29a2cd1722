package mapper

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/policast/internal/domain"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func v1Tuple(end time.Time, a, b *big.Int, resolved bool, outcome uint8) []any {
	return []any{"Will it rain?", "Yes", "No", big.NewInt(end.Unix()), outcome, a, b, resolved}
}

func v2Tuple(end time.Time, count int64) []any {
	return []any{
		"Who wins?", "Season finale", big.NewInt(end.Unix()), uint8(2), big.NewInt(count),
		false, false, uint8(1), false, big.NewInt(0),
		common.HexToAddress("0x4444444444444444444444444444444444444444"), true,
	}
}

func TestMarketV1NoBetsYet(t *testing.T) {
	view, err := MarketV1(3, v1Tuple(now.Add(time.Hour), big.NewInt(0), big.NewInt(0), false, 0), now)
	require.NoError(t, err)

	assert.Equal(t, domain.MarketStatusActive, view.Status)
	assert.True(t, view.NoBetsYet)
	assert.Equal(t, domain.NoBetsYetLabel, view.OddsLabel)
	require.Len(t, view.Options, 2)
	assert.True(t, decimal.NewFromInt(50).Equal(view.Options[0].Percentage))
	assert.True(t, decimal.NewFromInt(50).Equal(view.Options[1].Percentage))
}

func TestMarketV1SharesAndResolution(t *testing.T) {
	view, err := MarketV1(3, v1Tuple(now.Add(-time.Hour), e18(30), e18(10), true, OutcomeOptionB), now)
	require.NoError(t, err)

	assert.Equal(t, domain.MarketStatusResolved, view.Status)
	assert.Equal(t, uint64(1), view.WinningOption)
	assert.False(t, view.NoBetsYet)
	assert.Equal(t, e18(40), view.TotalShares)
	assert.Equal(t, "75", view.Options[0].Percentage.String())
	assert.Equal(t, "25", view.Options[1].Percentage.String())
	assert.Equal(t, "Yes 75.00% / No 25.00%", view.OddsLabel)
}

func TestStatus(t *testing.T) {
	assert.Equal(t, domain.MarketStatusPending, Status(false, now, now))
	assert.Equal(t, domain.MarketStatusPending, Status(false, now.Add(-time.Second), now))
	assert.Equal(t, domain.MarketStatusActive, Status(false, now.Add(time.Second), now))
	assert.Equal(t, domain.MarketStatusResolved, Status(true, now.Add(time.Hour), now))
}

func TestMarketV2WithOptionsAndOdds(t *testing.T) {
	view, err := MarketV2(9, v2Tuple(now.Add(time.Hour), 3), now)
	require.NoError(t, err)
	require.Len(t, view.Options, 3)
	assert.Equal(t, domain.MarketStatusActive, view.Status)
	assert.True(t, view.Validated)
	assert.Equal(t, uint8(1), view.MarketType)
	assert.Equal(t, uint8(2), view.Category)
	assert.Equal(t, "0x4444444444444444444444444444444444444444", view.Creator)

	shares := []int64{0, 0, 0}
	for i := range view.Options {
		opt, err := OptionV2(9, uint64(i), []any{"opt", "", e18(shares[i]), big.NewInt(0), big.NewInt(0), true})
		require.NoError(t, err)
		view.Options[i] = opt
	}
	empty := ApplyOdds(view, nil)
	assert.True(t, empty.NoBetsYet)
	for _, o := range empty.Options {
		assert.True(t, o.Percentage.IsZero())
	}

	view.Options[0].TotalShares = e18(5)
	odds := []*big.Int{
		new(big.Int).Div(e18(1), big.NewInt(2)),
		new(big.Int).Div(e18(1), big.NewInt(4)),
		new(big.Int).Div(e18(1), big.NewInt(4)),
	}
	withOdds := ApplyOdds(view, odds)
	assert.False(t, withOdds.NoBetsYet)
	assert.Equal(t, "50", withOdds.Options[0].Percentage.String())
	assert.Equal(t, "25", withOdds.Options[1].Percentage.String())

	// Odds that do not cover every option fall back to share proportions.
	fallback := ApplyOdds(view, odds[:2])
	assert.Equal(t, "100", fallback.Options[0].Percentage.String())
	assert.True(t, view.Options[0].Percentage.IsZero(), "input view untouched")
}

func TestStrictDecode(t *testing.T) {
	_, err := MarketV1(1, []any{"q"}, now)
	assert.ErrorIs(t, err, domain.ErrMalformedTuple)

	bad := v1Tuple(now, big.NewInt(0), big.NewInt(0), false, 0)
	bad[3] = "tomorrow"
	_, err = MarketV1(1, bad, now)
	require.ErrorIs(t, err, domain.ErrMalformedTuple)
	assert.Contains(t, err.Error(), "endTime")

	badV2 := v2Tuple(now, 2)
	badV2[10] = "0x44"
	_, err = MarketV2(1, badV2, now)
	require.ErrorIs(t, err, domain.ErrMalformedTuple)
	assert.Contains(t, err.Error(), "creator")

	_, err = OptionV2(1, 0, []any{"a", "b", big.NewInt(1), big.NewInt(1), big.NewInt(1), "yes"})
	assert.ErrorIs(t, err, domain.ErrMalformedTuple)

	_, err = MarketV2(1, v2Tuple(now, 1000), now)
	assert.ErrorIs(t, err, domain.ErrMalformedTuple)
}
