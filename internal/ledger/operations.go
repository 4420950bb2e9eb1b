package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/logger"
)

// GetBudgets lists the budgets visible to the token.
func (c *Client) GetBudgets(ctx context.Context) ([]Budget, error) {
	var data struct {
		Budgets []Budget `json:"budgets"`
	}
	if err := c.do(ctx, "GET", "/budgets", nil, nil, &data); err != nil {
		return nil, err
	}
	return data.Budgets, nil
}

// GetAccounts lists the accounts of the configured budget.
func (c *Client) GetAccounts(ctx context.Context) ([]Account, error) {
	var data struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.do(ctx, "GET", c.budgetPath("/accounts"), nil, nil, &data); err != nil {
		return nil, err
	}
	return data.Accounts, nil
}

// GetCategoryGroups returns the budget's category groups. When a cache is
// configured the response is kept for an hour.
func (c *Client) GetCategoryGroups(ctx context.Context) ([]CategoryGroup, error) {
	log := logger.FromContext(ctx)
	key := "ynab:categories:" + c.budgetID

	if c.cache != nil {
		raw, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Msg("Category cache read failed")
		} else if ok {
			var groups []CategoryGroup
			if err := json.Unmarshal(raw, &groups); err == nil {
				return groups, nil
			}
		}
	}

	var data struct {
		CategoryGroups []CategoryGroup `json:"category_groups"`
	}
	if err := c.do(ctx, "GET", c.budgetPath("/categories"), nil, nil, &data); err != nil {
		return nil, err
	}
	for i := range data.CategoryGroups {
		g := &data.CategoryGroups[i]
		for j := range g.Categories {
			g.Categories[j].GroupID = g.ID
			g.Categories[j].GroupName = g.Name
		}
	}

	if c.cache != nil {
		if raw, err := json.Marshal(data.CategoryGroups); err == nil {
			if err := c.cache.Set(ctx, key, raw, categoriesTTL); err != nil {
				log.Warn().Err(err).Msg("Category cache write failed")
			}
		}
	}
	return data.CategoryGroups, nil
}

// GetCategories returns every category that is not deleted, flattened out
// of its group.
func (c *Client) GetCategories(ctx context.Context) ([]Category, error) {
	groups, err := c.GetCategoryGroups(ctx)
	if err != nil {
		return nil, err
	}
	var out []Category
	for _, g := range groups {
		if g.Deleted {
			continue
		}
		for _, cat := range g.Categories {
			if !cat.Deleted {
				out = append(out, cat)
			}
		}
	}
	return out, nil
}

// GetTransactions lists the budget's transactions. The account filter is
// applied locally; entries that cannot be parsed are logged and skipped.
func (c *Client) GetTransactions(ctx context.Context, q TransactionsQuery) ([]*domain.LedgerTransaction, error) {
	log := logger.FromContext(ctx)

	params := url.Values{}
	if !q.SinceDate.IsZero() {
		params.Set("since_date", q.SinceDate.String())
	}
	if q.Type != "" {
		params.Set("type", q.Type)
	}

	var data struct {
		Transactions []json.RawMessage `json:"transactions"`
	}
	if err := c.do(ctx, "GET", c.budgetPath("/transactions"), params, nil, &data); err != nil {
		return nil, err
	}

	out := make([]*domain.LedgerTransaction, 0, len(data.Transactions))
	for _, raw := range data.Transactions {
		var w wireTransaction
		if err := json.Unmarshal(raw, &w); err != nil {
			log.Warn().Err(err).Msg("Failed to decode transaction, skipping")
			continue
		}
		if q.AccountID != "" && w.AccountID != q.AccountID {
			continue
		}
		tx, err := w.toDomain()
		if err != nil {
			log.Warn().Err(err).Str("ynab_id", w.ID).Msg("Failed to parse transaction, skipping")
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

// GetTransaction fetches one transaction with its subtransactions. A missing
// transaction yields nil and no error.
func (c *Client) GetTransaction(ctx context.Context, id string) (*domain.LedgerTransaction, error) {
	var data struct {
		Transaction wireTransaction `json:"transaction"`
	}
	err := c.do(ctx, "GET", c.budgetPath("/transactions/%s", url.PathEscape(id)), nil, nil, &data)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return nil, nil
		}
		return nil, err
	}
	return data.Transaction.toDomain()
}

// UpdateTransaction patches the transaction's top-level fields.
func (c *Client) UpdateTransaction(ctx context.Context, tx *domain.LedgerTransaction) (*domain.LedgerTransaction, error) {
	body := transactionPayload(tx)
	if tx.CategoryID != nil {
		body["category_id"] = *tx.CategoryID
	}
	return c.save(ctx, "PATCH", tx.YnabID, body)
}

// UpdateTransactionWithSubtransactions replaces the transaction's splits.
// The splits must sum to the transaction amount; otherwise a
// ValidationError is returned before any request is made. A split
// transaction is sent with a null category. The returned transaction
// carries the ids the server assigned to new splits.
func (c *Client) UpdateTransactionWithSubtransactions(ctx context.Context, tx *domain.LedgerTransaction) (*domain.LedgerTransaction, error) {
	if !tx.SubtransactionsBalance() {
		return nil, newValidationError(0, "Subtransaction amounts must sum to transaction amount", nil)
	}

	body := transactionPayload(tx)
	if tx.HasSubtransactions() {
		body["category_id"] = nil
		subs := make([]map[string]any, 0, len(tx.Subtransactions))
		for _, st := range tx.Subtransactions {
			s := map[string]any{"amount": int64(st.Amount)}
			if st.ID != nil {
				s["id"] = *st.ID
			}
			if st.Memo != "" {
				s["memo"] = st.Memo
			}
			if st.PayeeID != nil {
				s["payee_id"] = *st.PayeeID
			}
			if st.PayeeName != "" {
				s["payee_name"] = st.PayeeName
			}
			if st.CategoryID != nil {
				s["category_id"] = *st.CategoryID
			}
			subs = append(subs, s)
		}
		body["subtransactions"] = subs
	} else if tx.CategoryID != nil {
		body["category_id"] = *tx.CategoryID
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("ynab_id", tx.YnabID).
		Int("subtransactions", len(tx.Subtransactions)).
		Msg("Updating YNAB transaction")
	return c.save(ctx, "PUT", tx.YnabID, body)
}

func (c *Client) save(ctx context.Context, method, id string, body map[string]any) (*domain.LedgerTransaction, error) {
	var data struct {
		Transaction wireTransaction `json:"transaction"`
	}
	path := c.budgetPath("/transactions/%s", url.PathEscape(id))
	if err := c.do(ctx, method, path, nil, map[string]any{"transaction": body}, &data); err != nil {
		return nil, err
	}
	updated, err := data.Transaction.toDomain()
	if err != nil {
		return nil, fmt.Errorf("parsing updated transaction: %w", err)
	}
	return updated, nil
}

// transactionPayload holds the fields common to both update calls, with
// empty optional fields left out.
func transactionPayload(tx *domain.LedgerTransaction) map[string]any {
	body := map[string]any{
		"account_id": tx.AccountID,
		"amount":     int64(tx.Amount),
		"date":       tx.Date.String(),
		"cleared":    string(tx.Cleared),
		"approved":   tx.Approved,
	}
	if tx.PayeeName != "" {
		body["payee_name"] = tx.PayeeName
	}
	if tx.Memo != "" {
		body["memo"] = tx.Memo
	}
	if tx.FlagColor != "" {
		body["flag_color"] = tx.FlagColor
	}
	return body
}
