package auctionapi

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string such as "1.25" to base units, where one whole
// unit equals 10^decimals base units. Negative values, fractions finer than one base
// unit, and values above 2^256-1 are rejected.
func ParseAmount(s string, decimals int32) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid amount %q: negative", s)
	}

	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("invalid amount %q: more than %d decimal places", s, decimals)
	}

	amount, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("invalid amount %q: exceeds 256 bits", s)
	}
	return amount, nil
}

// FormatAmount renders base units as a decimal string with the given precision.
func FormatAmount(amount *uint256.Int, decimals int32) string {
	return decimal.NewFromBigInt(amount.ToBig(), -decimals).String()
}
