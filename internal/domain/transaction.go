package domain

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ynab-itemized/internal/money"
)

// ClearedStatus mirrors the ledger's cleared flag.
type ClearedStatus string

const (
	Cleared    ClearedStatus = "cleared"
	Uncleared  ClearedStatus = "uncleared"
	Reconciled ClearedStatus = "reconciled"
)

// ParseClearedStatus validates a cleared status string from the ledger API.
func ParseClearedStatus(s string) (ClearedStatus, error) {
	switch ClearedStatus(s) {
	case Cleared, Uncleared, Reconciled:
		return ClearedStatus(s), nil
	case "":
		return Uncleared, nil
	}
	return "", &ValidationError{Field: "cleared", Msg: fmt.Sprintf("unknown cleared status %q", s)}
}

// Subtransaction is one split of a ledger transaction. A nil ID means the
// split has not been created upstream yet.
type Subtransaction struct {
	ID                    *string          `json:"id,omitempty"`
	Amount                money.Milliunits `json:"amount"`
	Memo                  string           `json:"memo,omitempty"`
	PayeeID               *string          `json:"payee_id,omitempty"`
	PayeeName             string           `json:"payee_name,omitempty"`
	CategoryID            *string          `json:"category_id,omitempty"`
	CategoryName          string           `json:"category_name,omitempty"`
	TransferAccountID     *string          `json:"transfer_account_id,omitempty"`
	TransferTransactionID *string          `json:"transfer_transaction_id,omitempty"`
	Deleted               bool             `json:"deleted"`
}

// LedgerTransaction is the local mirror of a budgeting-service transaction.
// Amount is in milliunits, outflows negative.
type LedgerTransaction struct {
	ID              string           `json:"id"`
	YnabID          string           `json:"ynab_id"`
	AccountID       string           `json:"account_id"`
	CategoryID      *string          `json:"category_id,omitempty"`
	PayeeName       string           `json:"payee_name,omitempty"`
	Memo            string           `json:"memo,omitempty"`
	Amount          money.Milliunits `json:"amount"`
	Date            civil.Date       `json:"date"`
	Cleared         ClearedStatus    `json:"cleared"`
	Approved        bool             `json:"approved"`
	FlagColor       string           `json:"flag_color,omitempty"`
	ImportID        string           `json:"import_id,omitempty"`
	Subtransactions []Subtransaction `json:"subtransactions"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       *time.Time       `json:"updated_at,omitempty"`
}

// HasSubtransactions reports whether the transaction is split.
func (t *LedgerTransaction) HasSubtransactions() bool {
	return len(t.Subtransactions) > 0
}

// SubtransactionsBalance reports whether the splits sum exactly to Amount.
// An unsplit transaction always balances.
func (t *LedgerTransaction) SubtransactionsBalance() bool {
	if !t.HasSubtransactions() {
		return true
	}
	return t.SubtransactionTotal() == t.Amount
}

// SubtransactionTotal sums the split amounts.
func (t *LedgerTransaction) SubtransactionTotal() money.Milliunits {
	var total money.Milliunits
	for _, st := range t.Subtransactions {
		total += st.Amount
	}
	return total
}

// Clone returns a deep copy, so callers can attach splits without touching
// the stored snapshot.
func (t *LedgerTransaction) Clone() *LedgerTransaction {
	if t == nil {
		return nil
	}
	c := *t
	c.CategoryID = cloneString(t.CategoryID)
	if t.UpdatedAt != nil {
		u := *t.UpdatedAt
		c.UpdatedAt = &u
	}
	if t.Subtransactions != nil {
		c.Subtransactions = make([]Subtransaction, len(t.Subtransactions))
		for i, st := range t.Subtransactions {
			st.ID = cloneString(st.ID)
			st.PayeeID = cloneString(st.PayeeID)
			st.CategoryID = cloneString(st.CategoryID)
			st.TransferAccountID = cloneString(st.TransferAccountID)
			st.TransferTransactionID = cloneString(st.TransferTransactionID)
			c.Subtransactions[i] = st
		}
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns a pointer to s, or nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences s, returning "" for nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
