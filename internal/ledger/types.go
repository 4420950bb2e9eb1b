package ledger

import (
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/money"
)

// Budget is a budget visible to the token.
type Budget struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	LastModifiedOn string `json:"last_modified_on"`
	FirstMonth     string `json:"first_month"`
	LastMonth      string `json:"last_month"`
}

// Account is an account in the configured budget.
type Account struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Type     string           `json:"type"`
	OnBudget bool             `json:"on_budget"`
	Closed   bool             `json:"closed"`
	Balance  money.Milliunits `json:"balance"`
	Deleted  bool             `json:"deleted"`
}

// Category is a budget category together with its group.
type Category struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	GroupID   string `json:"category_group_id"`
	GroupName string `json:"group_name"`
	Hidden    bool   `json:"hidden"`
	Deleted   bool   `json:"deleted"`
}

// CategoryGroup is a named group of categories.
type CategoryGroup struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Hidden     bool       `json:"hidden"`
	Deleted    bool       `json:"deleted"`
	Categories []Category `json:"categories"`
}

// TransactionsQuery filters GetTransactions. Zero fields are ignored.
type TransactionsQuery struct {
	AccountID string
	SinceDate civil.Date
	// Type is "uncategorized" or "unapproved".
	Type string
}

type wireSubtransaction struct {
	ID                    *string `json:"id"`
	Amount                int64   `json:"amount"`
	Memo                  *string `json:"memo"`
	PayeeID               *string `json:"payee_id"`
	PayeeName             *string `json:"payee_name"`
	CategoryID            *string `json:"category_id"`
	CategoryName          *string `json:"category_name"`
	TransferAccountID     *string `json:"transfer_account_id"`
	TransferTransactionID *string `json:"transfer_transaction_id"`
	Deleted               bool    `json:"deleted"`
}

type wireTransaction struct {
	ID              string               `json:"id"`
	AccountID       string               `json:"account_id"`
	CategoryID      *string              `json:"category_id"`
	PayeeName       *string              `json:"payee_name"`
	Memo            *string              `json:"memo"`
	Amount          int64                `json:"amount"`
	Date            string               `json:"date"`
	Cleared         string               `json:"cleared"`
	Approved        bool                 `json:"approved"`
	FlagColor       *string              `json:"flag_color"`
	ImportID        *string              `json:"import_id"`
	Subtransactions []wireSubtransaction `json:"subtransactions"`
}

func (w wireTransaction) toDomain() (*domain.LedgerTransaction, error) {
	if w.ID == "" || w.AccountID == "" {
		return nil, fmt.Errorf("transaction is missing id or account_id")
	}
	date, err := civil.ParseDate(w.Date)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: invalid date %q: %w", w.ID, w.Date, err)
	}
	cleared, err := domain.ParseClearedStatus(w.Cleared)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", w.ID, err)
	}

	tx := &domain.LedgerTransaction{
		YnabID:          w.ID,
		AccountID:       w.AccountID,
		CategoryID:      w.CategoryID,
		PayeeName:       domain.StringValue(w.PayeeName),
		Memo:            domain.StringValue(w.Memo),
		Amount:          money.Milliunits(w.Amount),
		Date:            date,
		Cleared:         cleared,
		Approved:        w.Approved,
		FlagColor:       domain.StringValue(w.FlagColor),
		ImportID:        domain.StringValue(w.ImportID),
		Subtransactions: []domain.Subtransaction{},
	}
	for _, st := range w.Subtransactions {
		tx.Subtransactions = append(tx.Subtransactions, domain.Subtransaction{
			ID:                    st.ID,
			Amount:                money.Milliunits(st.Amount),
			Memo:                  domain.StringValue(st.Memo),
			PayeeID:               st.PayeeID,
			PayeeName:             domain.StringValue(st.PayeeName),
			CategoryID:            st.CategoryID,
			CategoryName:          domain.StringValue(st.CategoryName),
			TransferAccountID:     st.TransferAccountID,
			TransferTransactionID: st.TransferTransactionID,
			Deleted:               st.Deleted,
		})
	}
	return tx, nil
}
