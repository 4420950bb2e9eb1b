package domain

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ynab-itemized/internal/money"
	"github.com/shopspring/decimal"
)

// MatchStatus is the reconciliation state of an itemized transaction.
type MatchStatus string

const (
	MatchStatusUnmatched   MatchStatus = "unmatched"
	MatchStatusMatched     MatchStatus = "matched"
	MatchStatusManualMatch MatchStatus = "manual_match"
	MatchStatusNoMatch     MatchStatus = "no_match"
)

// Valid reports whether s is one of the known statuses.
func (s MatchStatus) Valid() bool {
	switch s {
	case MatchStatusUnmatched, MatchStatusMatched, MatchStatusManualMatch, MatchStatusNoMatch:
		return true
	}
	return false
}

// MatchMethod records how an itemized transaction was linked.
type MatchMethod string

const (
	MatchMethodExact     MatchMethod = "exact"
	MatchMethodFuzzy     MatchMethod = "fuzzy"
	MatchMethodManual    MatchMethod = "manual"
	MatchMethodAutomatic MatchMethod = "automatic"
)

// Valid reports whether m is a known method. The empty method is valid for
// transactions that have never been matched.
func (m MatchMethod) Valid() bool {
	switch m {
	case "", MatchMethodExact, MatchMethodFuzzy, MatchMethodManual, MatchMethodAutomatic:
		return true
	}
	return false
}

// TransactionItem is one receipt line. Amounts are positive major units.
type TransactionItem struct {
	ID                     string              `json:"id,omitempty"`
	Name                   string              `json:"name"`
	Amount                 decimal.Decimal     `json:"amount"`
	Quantity               int                 `json:"quantity"`
	UnitPrice              decimal.NullDecimal `json:"unit_price"`
	Category               string              `json:"category,omitempty"`
	Subcategory            string              `json:"subcategory,omitempty"`
	Brand                  string              `json:"brand,omitempty"`
	SKU                    string              `json:"sku,omitempty"`
	Barcode                string              `json:"barcode,omitempty"`
	DiscountAmount         decimal.Decimal     `json:"discount_amount"`
	TaxAmount              decimal.Decimal     `json:"tax_amount"`
	Notes                  string              `json:"notes,omitempty"`
	Metadata               Metadata            `json:"metadata,omitempty"`
	LedgerSubtransactionID *string             `json:"ynab_subtransaction_id,omitempty"`
	LedgerCategoryID       *string             `json:"ynab_category_id,omitempty"`
}

// ItemInput carries the caller-supplied fields of a new item.
type ItemInput struct {
	Name           string
	Amount         decimal.Decimal
	Quantity       int
	UnitPrice      decimal.NullDecimal
	Category       string
	Subcategory    string
	Brand          string
	SKU            string
	Barcode        string
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	Notes          string
	Metadata       Metadata
}

// NewTransactionItem builds an item, filling the derived defaults: an unset
// (zero) quantity becomes one and a missing unit price becomes
// amount/quantity. A supplied unit price is kept as is.
func NewTransactionItem(in ItemInput) (TransactionItem, error) {
	if strings.TrimSpace(in.Name) == "" {
		return TransactionItem{}, &ValidationError{Field: "name", Msg: "item name is required"}
	}
	if in.DiscountAmount.IsNegative() {
		return TransactionItem{}, &ValidationError{Field: "discount_amount", Msg: "discount amount cannot be negative"}
	}
	if in.TaxAmount.IsNegative() {
		return TransactionItem{}, &ValidationError{Field: "tax_amount", Msg: "tax amount cannot be negative"}
	}

	if in.Quantity < 0 {
		return TransactionItem{}, &ValidationError{Field: "quantity", Msg: "quantity must be at least 1"}
	}
	qty := in.Quantity
	if qty == 0 {
		qty = 1
	}
	unit := in.UnitPrice
	if !unit.Valid {
		unit = decimal.NewNullDecimal(in.Amount.Div(decimal.NewFromInt(int64(qty))))
	}

	return TransactionItem{
		Name:           in.Name,
		Amount:         in.Amount,
		Quantity:       qty,
		UnitPrice:      unit,
		Category:       in.Category,
		Subcategory:    in.Subcategory,
		Brand:          in.Brand,
		SKU:            in.SKU,
		Barcode:        in.Barcode,
		DiscountAmount: in.DiscountAmount,
		TaxAmount:      in.TaxAmount,
		Notes:          in.Notes,
		Metadata:       in.Metadata,
	}, nil
}

// ItemizedTransaction is a receipt-level record with its item breakdown and
// an optional link to the ledger transaction it explains.
type ItemizedTransaction struct {
	ID     string             `json:"id"`
	Ledger *LedgerTransaction `json:"ynab_transaction,omitempty"`
	Items  []TransactionItem  `json:"items"`

	TransactionDate civil.Date          `json:"transaction_date"`
	TotalAmount     decimal.NullDecimal `json:"total_amount"`
	MerchantName    string              `json:"merchant_name,omitempty"`

	MatchStatus     MatchStatus `json:"match_status"`
	MatchConfidence *float64    `json:"match_confidence,omitempty"`
	MatchMethod     MatchMethod `json:"match_method,omitempty"`
	MatchNotes      string      `json:"match_notes,omitempty"`

	Source              string `json:"source,omitempty"`
	SourceTransactionID string `json:"source_transaction_id,omitempty"`

	Subtotal      decimal.NullDecimal `json:"subtotal"`
	TotalTax      decimal.NullDecimal `json:"total_tax"`
	TotalDiscount decimal.NullDecimal `json:"total_discount"`
	TipAmount     decimal.Decimal     `json:"tip_amount"`

	StoreName        string   `json:"store_name,omitempty"`
	StoreLocation    string   `json:"store_location,omitempty"`
	StorePhone       string   `json:"store_phone,omitempty"`
	ReceiptNumber    string   `json:"receipt_number,omitempty"`
	PaymentMethod    string   `json:"payment_method,omitempty"`
	Cashier          string   `json:"cashier,omitempty"`
	RegisterNumber   string   `json:"register_number,omitempty"`
	ReceiptImagePath string   `json:"receipt_image_path,omitempty"`
	Notes            string   `json:"notes,omitempty"`
	Tags             []string `json:"tags"`
	Metadata         Metadata `json:"metadata"`

	SubtransactionsSyncedAt *time.Time `json:"subtransactions_synced_at,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               *time.Time `json:"updated_at,omitempty"`
}

// NewItemized returns an unmatched transaction with empty collections.
func NewItemized() *ItemizedTransaction {
	return &ItemizedTransaction{
		MatchStatus: MatchStatusUnmatched,
		Items:       []TransactionItem{},
		Tags:        []string{},
		Metadata:    Metadata{},
	}
}

// CalculatedSubtotal sums the item amounts.
func (t *ItemizedTransaction) CalculatedSubtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range t.Items {
		total = total.Add(it.Amount)
	}
	return total
}

// CalculatedTax sums the per-item tax.
func (t *ItemizedTransaction) CalculatedTax() decimal.Decimal {
	total := decimal.Zero
	for _, it := range t.Items {
		total = total.Add(it.TaxAmount)
	}
	return total
}

// CalculatedDiscount sums the per-item discounts.
func (t *ItemizedTransaction) CalculatedDiscount() decimal.Decimal {
	total := decimal.Zero
	for _, it := range t.Items {
		total = total.Add(it.DiscountAmount)
	}
	return total
}

// CalculatedTotal is subtotal + tax - discount + tip.
func (t *ItemizedTransaction) CalculatedTotal() decimal.Decimal {
	return t.CalculatedSubtotal().
		Add(t.CalculatedTax()).
		Sub(t.CalculatedDiscount()).
		Add(t.TipAmount)
}

// EffectiveTotal is the declared total, or the components of the receipt
// summed when no total was recorded.
func (t *ItemizedTransaction) EffectiveTotal() decimal.Decimal {
	if t.TotalAmount.Valid {
		return t.TotalAmount.Decimal
	}
	return nullOrZero(t.Subtotal).
		Add(nullOrZero(t.TotalTax)).
		Add(t.TipAmount).
		Sub(nullOrZero(t.TotalDiscount))
}

// ValidateTotals compares the calculated total against the linked ledger
// amount, or against TotalAmount when unlinked. With neither available
// there is nothing to compare and it returns true. The tolerance is strict:
// a difference of exactly one cent fails here but passes
// ValidateTransactionTotals.
func (t *ItemizedTransaction) ValidateTotals() bool {
	var reference decimal.Decimal
	switch {
	case t.Ledger != nil:
		reference = t.Ledger.Amount.Major().Abs()
	case t.TotalAmount.Valid && !t.TotalAmount.Decimal.IsZero():
		reference = t.TotalAmount.Decimal
	default:
		return true
	}
	return reference.Sub(t.CalculatedTotal()).Abs().LessThan(money.Cent)
}

// SetMatchStatus assigns s if it is a known status.
func (t *ItemizedTransaction) SetMatchStatus(s MatchStatus) error {
	if !s.Valid() {
		return &ValidationError{Field: "match_status", Msg: fmt.Sprintf("unknown match status %q", s)}
	}
	t.MatchStatus = s
	return nil
}

// SetMatchConfidence assigns c if it lies in [0, 1].
func (t *ItemizedTransaction) SetMatchConfidence(c float64) error {
	if c < 0 || c > 1 {
		return &ValidationError{Field: "match_confidence", Msg: "match confidence must be between 0.0 and 1.0"}
	}
	t.MatchConfidence = &c
	return nil
}

// Validate checks the closed enums and the confidence range. Stores call it
// before writing.
func (t *ItemizedTransaction) Validate() error {
	if !t.MatchStatus.Valid() {
		return &ValidationError{Field: "match_status", Msg: fmt.Sprintf("unknown match status %q", t.MatchStatus)}
	}
	if !t.MatchMethod.Valid() {
		return &ValidationError{Field: "match_method", Msg: fmt.Sprintf("unknown match method %q", t.MatchMethod)}
	}
	if c := t.MatchConfidence; c != nil && (*c < 0 || *c > 1) {
		return &ValidationError{Field: "match_confidence", Msg: "match confidence must be between 0.0 and 1.0"}
	}
	for i, it := range t.Items {
		if strings.TrimSpace(it.Name) == "" {
			return &ValidationError{Field: fmt.Sprintf("items[%d].name", i), Msg: "item name is required"}
		}
	}
	return nil
}

// LedgerID returns the linked ledger transaction id, or "".
func (t *ItemizedTransaction) LedgerID() string {
	if t.Ledger == nil {
		return ""
	}
	return t.Ledger.YnabID
}

// Clone returns a deep copy of t.
func (t *ItemizedTransaction) Clone() *ItemizedTransaction {
	if t == nil {
		return nil
	}
	c := *t
	c.Ledger = t.Ledger.Clone()
	if t.Items != nil {
		c.Items = make([]TransactionItem, len(t.Items))
		for i, it := range t.Items {
			it.Metadata = it.Metadata.Clone()
			it.LedgerSubtransactionID = cloneString(it.LedgerSubtransactionID)
			it.LedgerCategoryID = cloneString(it.LedgerCategoryID)
			c.Items[i] = it
		}
	}
	if t.MatchConfidence != nil {
		v := *t.MatchConfidence
		c.MatchConfidence = &v
	}
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	c.Metadata = t.Metadata.Clone()
	if t.SubtransactionsSyncedAt != nil {
		v := *t.SubtransactionsSyncedAt
		c.SubtransactionsSyncedAt = &v
	}
	if t.UpdatedAt != nil {
		v := *t.UpdatedAt
		c.UpdatedAt = &v
	}
	return &c
}

func nullOrZero(d decimal.NullDecimal) decimal.Decimal {
	if d.Valid {
		return d.Decimal
	}
	return decimal.Zero
}
