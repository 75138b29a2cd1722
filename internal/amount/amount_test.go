package amount

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/policast/internal/domain"
)

func bi(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return v
}

func TestParseTruncates(t *testing.T) {
	v, err := Parse("1.2345678901234567895", 18)
	require.NoError(t, err)
	assert.Equal(t, bi("1234567890123456789"), v)
	assert.Equal(t, "1.234567890123456789", Format(v, 18))

	v, err = Parse("0.999", 2)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(99), v)
}

func TestParseForms(t *testing.T) {
	cases := map[string]string{
		"100":     "100000000000000000000",
		"  12.5 ": "12500000000000000000",
		".5":      "500000000000000000",
		"7.":      "7000000000000000000",
		"0":       "0",
		"000.010": "10000000000000000",
	}
	for in, want := range cases {
		v, err := Parse(in, 18)
		require.NoError(t, err, in)
		assert.Equal(t, bi(want), v, in)
	}
}

func TestParseRejects(t *testing.T) {
	for _, in := range []string{"", "-1", "+1", "1e18", "1,000", "abc", "1.2.3", "."} {
		_, err := Parse(in, 18)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, domain.ErrValidation), in)
	}
	_, err := Parse("1", MaxDecimals+1)
	assert.Error(t, err)
}

func TestRoundTripUpToPrecision(t *testing.T) {
	for _, in := range []string{"1", "0.000001", "123456.789", "42.1"} {
		v, err := Parse(in, 6)
		require.NoError(t, err)
		assert.Equal(t, in, Format(v, 6))
	}
}

func TestFormatFixed(t *testing.T) {
	assert.Equal(t, "1.23", FormatFixed(bi("1239000000000000000"), 18, 2))
	assert.Equal(t, "0.00", FormatFixed(nil, 18, 2))
	assert.Equal(t, "0", Format(nil, 18))
}

func TestCheckBounds(t *testing.T) {
	max := MustParse("1000", 18)
	min := MustParse("0.01", 18)

	assert.NoError(t, CheckBounds("amount", MustParse("1", 18), min, max, 18))
	assert.NoError(t, CheckBounds("amount", max, min, max, 18))

	err := CheckBounds("amount", big.NewInt(0), min, max, 18)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "amount", ve.Field)

	err = CheckBounds("amount", MustParse("0.001", 18), min, max, 18)
	assert.ErrorContains(t, err, "below minimum of 0.01")

	err = CheckBounds("amount", MustParse("1000.000000000000000001", 18), min, max, 18)
	assert.ErrorContains(t, err, "exceeds maximum of 1000")

	assert.NoError(t, CheckBounds("amount", MustParse("5000", 18), nil, nil, 18))
}

func TestApplyBpsAndPerShare(t *testing.T) {
	cost := MustParse("50", 18)
	qty := MustParse("100", 18)

	avg := PerShare(cost, qty, 18)
	assert.Equal(t, MustParse("0.5", 18), avg)
	assert.Equal(t, MustParse("0.55", 18), ApplyBps(avg, 1000))
	assert.Equal(t, MustParse("51", 18), ApplyBps(cost, 200))
	assert.Equal(t, MustParse("0.45", 18), ApplyBps(avg, -1000))

	assert.Equal(t, big.NewInt(1), ApplyBps(big.NewInt(1), 200), "floors")
	assert.Equal(t, new(big.Int), PerShare(cost, big.NewInt(0), 18))
}

func TestParseBig(t *testing.T) {
	v, err := ParseBig("51000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, MustParse("51", 18), v)

	_, err = ParseBig("1.5")
	assert.Error(t, err)
}
