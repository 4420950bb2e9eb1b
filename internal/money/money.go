// Package money holds the two currency representations used across the
// reconciler: signed ledger milliunits and 2-decimal receipt amounts.
package money

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MilliunitsPerUnit is the fixed ledger conversion factor (not cents).
	MilliunitsPerUnit = 1000

	// DriftTolerance is the largest split drift, in milliunits, that is
	// absorbed instead of reported (one cent).
	DriftTolerance Milliunits = 10
)

var (
	thousand = decimal.NewFromInt(MilliunitsPerUnit)

	// Cent is the receipt-side comparison tolerance.
	Cent = decimal.New(1, -2)
)

// Milliunits represents 1/1000 of a currency unit. Outflows are negative.
type Milliunits int64

// Negate changes the sign of m to the opposite.
func (m Milliunits) Negate() Milliunits {
	return -m
}

// Abs returns the magnitude of m.
func (m Milliunits) Abs() Milliunits {
	if m < 0 {
		return -m
	}
	return m
}

func (m Milliunits) String() string {
	return strconv.FormatInt(int64(m), 10)
}

// Major converts m to major units exactly.
func (m Milliunits) Major() decimal.Decimal {
	return decimal.NewFromInt(int64(m)).Div(thousand)
}

// FromMajor converts a major-unit amount to milliunits, rounding half away
// from zero.
func FromMajor(d decimal.Decimal) Milliunits {
	return Milliunits(d.Mul(thousand).Round(0).IntPart())
}

// ParseMajor parses a receipt amount such as "12.99", "$12.99" or "-$3.00".
func ParseMajor(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = strings.TrimSpace(s[1:])
	}
	s = strings.TrimSpace(strings.TrimPrefix(s, "$"))
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// Format renders a major-unit amount as "$12.34" or "-$12.34".
func Format(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Abs().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

// FormatMilliunits renders a split amount with an explicit sign, "-$10.00"
// for outflows and "+$1.50" otherwise.
func FormatMilliunits(m Milliunits) string {
	sign := "+"
	if m < 0 {
		sign = "-"
	}
	return sign + "$" + m.Abs().Major().StringFixed(2)
}

// Sum adds up a list of milliunit amounts.
func Sum(amounts ...Milliunits) Milliunits {
	var total Milliunits
	for _, a := range amounts {
		total += a
	}
	return total
}
