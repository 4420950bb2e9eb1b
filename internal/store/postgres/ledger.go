package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/money"
	"github.com/dvloznov/ynab-itemized/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const ledgerColumns = `t.id, t.ynab_id, t.account_id, t.category_id, t.payee_name, t.memo, t.amount,
	t.date::text, t.cleared, t.approved, t.flag_color, t.import_id, t.created_at, t.updated_at`

// SaveLedgerTransaction implements store.Store. It upserts by ynab id and
// replaces the stored splits.
func (s *Store) SaveLedgerTransaction(ctx context.Context, tx *domain.LedgerTransaction) error {
	if tx.YnabID == "" {
		return fmt.Errorf("SaveLedgerTransaction: ynab id is required")
	}
	return s.WithinTx(ctx, func(ctx context.Context, st store.Store) error {
		return st.(*Store).upsertLedger(ctx, tx)
	})
}

func (s *Store) upsertLedger(ctx context.Context, tx *domain.LedgerTransaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = s.now()
	}
	cleared := tx.Cleared
	if cleared == "" {
		cleared = domain.Uncleared
	}

	var updatedAt *time.Time
	err := s.q.QueryRow(ctx, `
		INSERT INTO ynab_transactions
			(id, ynab_id, account_id, category_id, payee_name, memo, amount, date,
			 cleared, approved, flag_color, import_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::date, $9, $10, $11, $12, $13)
		ON CONFLICT (ynab_id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			category_id = EXCLUDED.category_id,
			payee_name = EXCLUDED.payee_name,
			memo = EXCLUDED.memo,
			amount = EXCLUDED.amount,
			date = EXCLUDED.date,
			cleared = EXCLUDED.cleared,
			approved = EXCLUDED.approved,
			flag_color = EXCLUDED.flag_color,
			import_id = EXCLUDED.import_id,
			updated_at = $14
		RETURNING id, created_at, updated_at`,
		tx.ID, tx.YnabID, tx.AccountID, tx.CategoryID, tx.PayeeName, tx.Memo, int64(tx.Amount),
		dateArg(tx.Date), string(cleared), tx.Approved, tx.FlagColor, tx.ImportID, tx.CreatedAt, s.now(),
	).Scan(&tx.ID, &tx.CreatedAt, &updatedAt)
	if err != nil {
		return fmt.Errorf("upserting ynab transaction %s: %w", tx.YnabID, err)
	}
	tx.UpdatedAt = updatedAt

	if _, err := s.q.Exec(ctx, `DELETE FROM ynab_subtransactions WHERE ynab_transaction_id = $1`, tx.YnabID); err != nil {
		return fmt.Errorf("clearing subtransactions of %s: %w", tx.YnabID, err)
	}
	for i, st := range tx.Subtransactions {
		_, err := s.q.Exec(ctx, `
			INSERT INTO ynab_subtransactions
				(ynab_transaction_id, position, ynab_subtransaction_id, amount, memo, payee_id, payee_name,
				 category_id, category_name, transfer_account_id, transfer_transaction_id, deleted)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			tx.YnabID, i, st.ID, int64(st.Amount), st.Memo, st.PayeeID, st.PayeeName,
			st.CategoryID, st.CategoryName, st.TransferAccountID, st.TransferTransactionID, st.Deleted,
		)
		if err != nil {
			return fmt.Errorf("inserting subtransaction %d of %s: %w", i, tx.YnabID, err)
		}
	}
	return nil
}

func scanLedger(row pgx.Row) (*domain.LedgerTransaction, error) {
	var (
		tx      domain.LedgerTransaction
		amount  int64
		date    *string
		cleared string
	)
	err := row.Scan(&tx.ID, &tx.YnabID, &tx.AccountID, &tx.CategoryID, &tx.PayeeName, &tx.Memo, &amount,
		&date, &cleared, &tx.Approved, &tx.FlagColor, &tx.ImportID, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return nil, err
	}
	tx.Amount = money.Milliunits(amount)
	tx.Cleared = domain.ClearedStatus(cleared)
	if tx.Date, err = parseDate(date); err != nil {
		return nil, fmt.Errorf("parsing date of %s: %w", tx.YnabID, err)
	}
	tx.Subtransactions = []domain.Subtransaction{}
	return &tx, nil
}

// queryLedger runs a ledger select and attaches the splits.
func (s *Store) queryLedger(ctx context.Context, sql string, args ...any) ([]*domain.LedgerTransaction, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.LedgerTransaction
	for rows.Next() {
		tx, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := s.attachSubtransactions(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) attachSubtransactions(ctx context.Context, txs []*domain.LedgerTransaction) error {
	if len(txs) == 0 {
		return nil
	}
	byID := make(map[string]*domain.LedgerTransaction, len(txs))
	ids := make([]string, 0, len(txs))
	for _, tx := range txs {
		byID[tx.YnabID] = tx
		ids = append(ids, tx.YnabID)
	}

	rows, err := s.q.Query(ctx, `
		SELECT ynab_transaction_id, ynab_subtransaction_id, amount, memo, payee_id, payee_name,
		       category_id, category_name, transfer_account_id, transfer_transaction_id, deleted
		FROM ynab_subtransactions
		WHERE ynab_transaction_id = ANY($1)
		ORDER BY ynab_transaction_id, position`, ids)
	if err != nil {
		return fmt.Errorf("loading subtransactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			parent string
			st     domain.Subtransaction
			amount int64
		)
		if err := rows.Scan(&parent, &st.ID, &amount, &st.Memo, &st.PayeeID, &st.PayeeName,
			&st.CategoryID, &st.CategoryName, &st.TransferAccountID, &st.TransferTransactionID, &st.Deleted); err != nil {
			return fmt.Errorf("scanning subtransaction: %w", err)
		}
		st.Amount = money.Milliunits(amount)
		if tx := byID[parent]; tx != nil {
			tx.Subtransactions = append(tx.Subtransactions, st)
		}
	}
	return rows.Err()
}

// GetLedgerTransaction implements store.Store.
func (s *Store) GetLedgerTransaction(ctx context.Context, ynabID string) (*domain.LedgerTransaction, error) {
	txs, err := s.queryLedger(ctx, `SELECT `+ledgerColumns+` FROM ynab_transactions t WHERE t.ynab_id = $1`, ynabID)
	if err != nil {
		return nil, fmt.Errorf("GetLedgerTransaction: %w", err)
	}
	if len(txs) == 0 {
		return nil, fmt.Errorf("ledger transaction %s: %w", ynabID, store.ErrNotFound)
	}
	return txs[0], nil
}

// ListLedgerTransactions implements store.Store. The filter is pushed into
// the WHERE clause.
func (s *Store) ListLedgerTransactions(ctx context.Context, f store.LedgerFilter) ([]*domain.LedgerTransaction, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !f.From.IsZero() {
		add("t.date >= $%d::date", f.From.String())
	}
	if !f.To.IsZero() {
		add("t.date <= $%d::date", f.To.String())
	}
	if f.MinAmount != nil {
		add("t.amount >= $%d", int64(*f.MinAmount))
	}
	if f.MaxAmount != nil {
		add("t.amount <= $%d", int64(*f.MaxAmount))
	}
	if f.AccountID != "" {
		add("t.account_id = $%d", f.AccountID)
	}

	sql := `SELECT ` + ledgerColumns + ` FROM ynab_transactions t`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY t.date, t.ynab_id`

	txs, err := s.queryLedger(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("ListLedgerTransactions: %w", err)
	}
	return txs, nil
}

// ListUnmatchedLedger implements store.Store.
func (s *Store) ListUnmatchedLedger(ctx context.Context) ([]*domain.LedgerTransaction, error) {
	txs, err := s.queryLedger(ctx, `
		SELECT `+ledgerColumns+`
		FROM ynab_transactions t
		WHERE NOT EXISTS (
			SELECT 1 FROM transaction_matches m
			WHERE m.ynab_transaction_id = t.ynab_id AND m.status = $1
		)
		ORDER BY t.date, t.ynab_id`, string(domain.MatchAccepted))
	if err != nil {
		return nil, fmt.Errorf("ListUnmatchedLedger: %w", err)
	}
	return txs, nil
}
