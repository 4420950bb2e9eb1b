package matching

import (
	"math"
	"strings"

	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ratioExact = decimal.Zero
	ratioOne   = decimal.New(1, -2)
	ratioFive  = decimal.New(5, -2)
	ratioTen   = decimal.New(10, -2)
)

// Breakdown is the per-term detail behind a score. It is stored with the
// match record as its criteria.
type Breakdown struct {
	DateDiffDays    int
	AmountRatio     decimal.Decimal
	PayeeSimilarity float64
	DateScore       float64
	AmountScore     float64
	PayeeScore      float64
	Score           float64
}

// Criteria renders b for persistence.
func (b Breakdown) Criteria() map[string]any {
	return map[string]any{
		"date_diff_days":   b.DateDiffDays,
		"amount_ratio":     b.AmountRatio.StringFixed(4),
		"payee_similarity": b.PayeeSimilarity,
		"date_score":       b.DateScore,
		"amount_score":     b.AmountScore,
		"payee_score":      b.PayeeScore,
	}
}

// Score rates how likely lt is the ledger side of it, in [0, 1].
func Score(it *domain.ItemizedTransaction, lt *domain.LedgerTransaction) float64 {
	return Explain(it, lt).Score
}

// Explain computes the score with its individual terms: date proximity
// (up to 0.30), amount closeness (up to 0.40) and payee similarity (up to
// 0.30).
func Explain(it *domain.ItemizedTransaction, lt *domain.LedgerTransaction) Breakdown {
	var b Breakdown

	b.DateDiffDays = absInt(it.TransactionDate.DaysSince(lt.Date))
	switch {
	case b.DateDiffDays == 0:
		b.DateScore = 0.30
	case b.DateDiffDays <= 1:
		b.DateScore = 0.25
	case b.DateDiffDays <= 3:
		b.DateScore = 0.15
	case b.DateDiffDays <= 7:
		b.DateScore = 0.05
	}

	itemizedAbs := matchAmount(it).Abs()
	ledgerAbs := lt.Amount.Major().Abs()
	denom := decimal.Max(itemizedAbs, ledgerAbs)
	if !denom.IsZero() {
		b.AmountRatio = itemizedAbs.Sub(ledgerAbs).Abs().Div(denom)
	}
	switch {
	case b.AmountRatio.Equal(ratioExact):
		b.AmountScore = 0.40
	case b.AmountRatio.LessThanOrEqual(ratioOne):
		b.AmountScore = 0.35
	case b.AmountRatio.LessThanOrEqual(ratioFive):
		b.AmountScore = 0.25
	case b.AmountRatio.LessThanOrEqual(ratioTen):
		b.AmountScore = 0.15
	}

	if it.MerchantName != "" && lt.PayeeName != "" {
		b.PayeeSimilarity = SequenceRatio(strings.ToLower(it.MerchantName), strings.ToLower(lt.PayeeName))
		b.PayeeScore = 0.30 * b.PayeeSimilarity
	}

	b.Score = math.Min(b.DateScore+b.AmountScore+b.PayeeScore, 1.0)
	return b
}

// matchAmount is the receipt total used for matching: the declared total,
// or the summed components when none was recorded.
func matchAmount(it *domain.ItemizedTransaction) decimal.Decimal {
	return it.EffectiveTotal()
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
