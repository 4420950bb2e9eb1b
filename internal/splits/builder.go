// Package splits turns an itemized transaction into ledger subtransactions
// and pushes them to the budgeting service.
package splits

import (
	"context"
	"fmt"

	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/logger"
	"github.com/dvloznov/ynab-itemized/internal/money"
)

const (
	TaxMemo      = "Tax"
	DiscountMemo = "Discount"
)

// Options controls which summary lines become their own split.
type Options struct {
	IncludeTax      bool
	IncludeDiscount bool
}

// DefaultOptions includes both tax and discount splits.
func DefaultOptions() Options {
	return Options{IncludeTax: true, IncludeDiscount: true}
}

// ReconciliationError reports splits that cannot be made to sum to the
// transaction total within one cent.
type ReconciliationError struct {
	Expected money.Milliunits
	Actual   money.Milliunits
}

// Difference is the absolute gap in milliunits.
func (e *ReconciliationError) Difference() money.Milliunits {
	return (e.Actual - e.Expected).Abs()
}

func (e *ReconciliationError) Error() string {
	diff := e.Difference()
	return fmt.Sprintf("Subtransaction amounts don't sum to transaction total. Difference: %d milliunits (%s)",
		int64(diff), money.Format(diff.Major()))
}

// Build returns one outflow split per item, followed by a tax split and a
// discount split when requested and non-zero. When the transaction has a
// non-zero total, the splits must sum to it: a drift of up to one cent is absorbed
// into the last split, anything larger is a ReconciliationError.
func Build(ctx context.Context, it *domain.ItemizedTransaction, opts Options) ([]domain.Subtransaction, error) {
	subs := make([]domain.Subtransaction, 0, len(it.Items)+2)

	for _, item := range it.Items {
		subs = append(subs, domain.Subtransaction{
			Amount: -money.FromMajor(item.Amount).Abs(),
			Memo:   item.Name,
		})
	}
	if opts.IncludeTax && it.TotalTax.Valid && !it.TotalTax.Decimal.IsZero() {
		subs = append(subs, domain.Subtransaction{
			Amount: -money.FromMajor(it.TotalTax.Decimal),
			Memo:   TaxMemo,
		})
	}
	if opts.IncludeDiscount && it.TotalDiscount.Valid && !it.TotalDiscount.Decimal.IsZero() {
		subs = append(subs, domain.Subtransaction{
			Amount: money.FromMajor(it.TotalDiscount.Decimal),
			Memo:   DiscountMemo,
		})
	}

	if len(subs) == 0 || !it.TotalAmount.Valid || it.TotalAmount.Decimal.IsZero() {
		return subs, nil
	}

	expected := -money.FromMajor(it.TotalAmount.Decimal)
	var actual money.Milliunits
	for _, s := range subs {
		actual += s.Amount
	}
	if actual == expected {
		return subs, nil
	}

	rerr := &ReconciliationError{Expected: expected, Actual: actual}
	if rerr.Difference() > money.DriftTolerance {
		return nil, rerr
	}

	adjustment := expected - actual
	subs[len(subs)-1].Amount += adjustment
	log := logger.FromContext(ctx)
	log.Info().
		Str("itemized_id", it.ID).
		Int64("adjustment", int64(adjustment)).
		Msg("Adjusted last subtransaction for rounding")
	return subs, nil
}
