package domain

import (
	"fmt"
	"strings"

	"github.com/dvloznov/ynab-itemized/internal/money"
)

// ValidateTransactionTotals checks the declared summary fields against the
// item sums and the overall total against the linked ledger amount (or the
// declared total when unlinked). Each problem yields one message. Differences
// of up to one cent, inclusive, are tolerated.
func ValidateTransactionTotals(t *ItemizedTransaction) (bool, []string) {
	var errs []string
	if len(t.Items) == 0 {
		return false, []string{"Transaction has no items"}
	}

	subtotal := t.CalculatedSubtotal()
	tax := t.CalculatedTax()
	discount := t.CalculatedDiscount()

	if t.Subtotal.Valid && t.Subtotal.Decimal.Sub(subtotal).Abs().GreaterThan(money.Cent) {
		errs = append(errs, fmt.Sprintf("Subtotal mismatch: declared %s, calculated %s", t.Subtotal.Decimal, subtotal))
	}
	if t.TotalTax.Valid && t.TotalTax.Decimal.Sub(tax).Abs().GreaterThan(money.Cent) {
		errs = append(errs, fmt.Sprintf("Tax total mismatch: declared %s, calculated %s", t.TotalTax.Decimal, tax))
	}
	if t.TotalDiscount.Valid && t.TotalDiscount.Decimal.Sub(discount).Abs().GreaterThan(money.Cent) {
		errs = append(errs, fmt.Sprintf("Discount total mismatch: declared %s, calculated %s", t.TotalDiscount.Decimal, discount))
	}

	total := t.CalculatedTotal()
	switch {
	case t.Ledger != nil:
		ynab := t.Ledger.Amount.Major().Abs()
		if ynab.Sub(total).Abs().GreaterThan(money.Cent) {
			errs = append(errs, fmt.Sprintf("Total amount mismatch with YNAB: YNAB %s, calculated %s", ynab, total))
		}
	case t.TotalAmount.Valid:
		if t.TotalAmount.Decimal.Sub(total).Abs().GreaterThan(money.Cent) {
			errs = append(errs, fmt.Sprintf("Total amount mismatch: declared %s, calculated %s", t.TotalAmount.Decimal, total))
		}
	}

	return len(errs) == 0, errs
}

// ValidateItem checks a single item for the rules a receipt line must meet.
func ValidateItem(item TransactionItem) (bool, []string) {
	var errs []string

	if strings.TrimSpace(item.Name) == "" {
		errs = append(errs, "Item name is required")
	}
	if !item.Amount.IsPositive() {
		errs = append(errs, "Item amount must be positive")
	}
	if item.Quantity > 0 && item.UnitPrice.Valid && !item.UnitPrice.Decimal.IsZero() {
		expected := item.UnitPrice.Decimal.Mul(decimalInt(item.Quantity))
		if item.Amount.Sub(expected).Abs().GreaterThan(money.Cent) {
			errs = append(errs, fmt.Sprintf("Amount inconsistent with quantity × unit price: %s ≠ %d × %s",
				item.Amount, item.Quantity, item.UnitPrice.Decimal))
		}
	}
	if item.DiscountAmount.IsNegative() {
		errs = append(errs, "Discount amount cannot be negative")
	}
	if item.TaxAmount.IsNegative() {
		errs = append(errs, "Tax amount cannot be negative")
	}

	return len(errs) == 0, errs
}
