// Package amount converts between human-entered decimal strings and the
// fixed-point integer base units used by the token and market contracts.
package amount

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/policast/internal/domain"
)

// BpsDenominator is 100% expressed in basis points.
const BpsDenominator = 10_000

// MaxDecimals bounds the token decimals we accept from a contract.
const MaxDecimals = 36

var decimalPattern = regexp.MustCompile(`^(\d+)(\.(\d*))?$|^\.(\d+)$`)

// Parse converts a decimal string like "12.5" into base units scaled by
// 10^decimals. Fractional digits beyond the declared precision are
// truncated, never rounded up. Signs, exponents and separators are rejected.
func Parse(s string, decimals uint8) (*big.Int, error) {
	if decimals > MaxDecimals {
		return nil, domain.Invalid("decimals", "%d exceeds %d", decimals, MaxDecimals)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, domain.Invalid("amount", "must not be empty")
	}
	if !decimalPattern.MatchString(s) {
		return nil, domain.Invalid("amount", "%q is not a plain decimal number", s)
	}

	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(s, "."))
	if err != nil {
		return nil, domain.Invalid("amount", "%q: %v", s, err)
	}
	return d.Truncate(int32(decimals)).Shift(int32(decimals)).BigInt(), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string, decimals uint8) *big.Int {
	v, err := Parse(s, decimals)
	if err != nil {
		panic(err)
	}
	return v
}

// Format renders base units as the shortest decimal string.
func Format(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

// FormatFixed renders base units with exactly places fractional digits,
// truncating the rest.
func FormatFixed(v *big.Int, decimals uint8, places int32) string {
	if v == nil {
		v = new(big.Int)
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).Truncate(places).StringFixed(places)
}

// Unit returns 10^decimals, the base-unit value of one whole token or share.
func Unit(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// CheckBounds rejects non-positive amounts, amounts below min and amounts
// above max. A nil min or max disables that side of the check.
func CheckBounds(field string, v, min, max *big.Int, decimals uint8) error {
	if v == nil || v.Sign() <= 0 {
		return domain.Invalid(field, "must be greater than zero")
	}
	if min != nil && v.Cmp(min) < 0 {
		return domain.Invalid(field, "below minimum of %s", Format(min, decimals))
	}
	if max != nil && max.Sign() > 0 && v.Cmp(max) > 0 {
		return domain.Invalid(field, "exceeds maximum of %s", Format(max, decimals))
	}
	return nil
}

// ApplyBps returns v * (10000 + bps) / 10000 rounded down. Negative bps
// shrink the value, which is how minimum-receive bounds are computed.
func ApplyBps(v *big.Int, bps int64) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(BpsDenominator+bps))
	return out.Quo(out, big.NewInt(BpsDenominator))
}

// PerShare returns total * 10^decimals / quantity: the average price of one
// whole share in base units. Zero quantity yields zero.
func PerShare(total, quantity *big.Int, decimals uint8) *big.Int {
	if quantity == nil || quantity.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(total, Unit(decimals))
	return out.Quo(out, quantity)
}

// ParseBig parses a base-10 integer string of base units.
func ParseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("amount: invalid integer %q", s)
	}
	return v, nil
}
