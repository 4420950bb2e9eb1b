package domain

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TruncateString shortens s to at most n runes, ending in "..." when cut.
func TruncateString(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// FormatDate renders d as YYYY-MM-DD, or "N/A" for the zero date.
func FormatDate(d civil.Date) string {
	if d.IsZero() {
		return "N/A"
	}
	return d.String()
}

// FormatPercentage renders a score in [0,1] as "85.0%".
func FormatPercentage(score float64) string {
	return decimal.NewFromFloat(score * 100).StringFixed(1) + "%"
}

func decimalInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}
