package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const itemizedColumns = `i.id, i.ynab_transaction_id, i.transaction_date::text, i.total_amount::text,
	i.merchant_name, i.match_status, i.match_confidence, i.match_method, i.match_notes,
	i.source, i.source_transaction_id, i.subtotal::text, i.total_tax::text, i.total_discount::text,
	i.tip_amount::text, i.store_name, i.store_location, i.store_phone, i.receipt_number,
	i.payment_method, i.cashier, i.register_number, i.receipt_image_path, i.notes,
	i.tags::text, i.metadata::text, i.subtransactions_synced_at, i.created_at, i.updated_at`

// SaveItemized implements store.Store.
func (s *Store) SaveItemized(ctx context.Context, it *domain.ItemizedTransaction) error {
	if err := it.Validate(); err != nil {
		return fmt.Errorf("SaveItemized: %w", err)
	}
	return s.WithinTx(ctx, func(ctx context.Context, st store.Store) error {
		if err := st.(*Store).saveItemized(ctx, it); err != nil {
			return fmt.Errorf("SaveItemized: %w", err)
		}
		return nil
	})
}

func (s *Store) saveItemized(ctx context.Context, it *domain.ItemizedTransaction) error {
	var ledgerID *string
	if it.Ledger != nil {
		if it.Ledger.YnabID == "" {
			return errors.New("linked ledger transaction has no ynab id")
		}
		if err := s.upsertLedger(ctx, it.Ledger); err != nil {
			return err
		}
		ledgerID = &it.Ledger.YnabID
	}

	if it.ID == "" && it.Source != "" && it.SourceTransactionID != "" {
		var existing string
		err := s.q.QueryRow(ctx,
			`SELECT id FROM itemized_transactions WHERE source = $1 AND source_transaction_id = $2`,
			it.Source, it.SourceTransactionID,
		).Scan(&existing)
		switch {
		case err == nil:
			it.ID = existing
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("looking up %s/%s: %w", it.Source, it.SourceTransactionID, err)
		}
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	now := s.now()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}

	tags := it.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := jsonArg(tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	meta := it.Metadata
	if meta == nil {
		meta = domain.Metadata{}
	}
	metaJSON, err := jsonArg(meta)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	var updatedAt *time.Time
	err = s.q.QueryRow(ctx, `
		INSERT INTO itemized_transactions
			(id, ynab_transaction_id, transaction_date, total_amount, merchant_name, match_status,
			 match_confidence, match_method, match_notes, source, source_transaction_id, subtotal,
			 total_tax, total_discount, tip_amount, store_name, store_location, store_phone,
			 receipt_number, payment_method, cashier, register_number, receipt_image_path, notes,
			 tags, metadata, subtransactions_synced_at, created_at)
		VALUES ($1, $2, $3::date, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12::numeric,
			$13::numeric, $14::numeric, $15::numeric, $16, $17, $18, $19, $20, $21, $22, $23, $24,
			$25::jsonb, $26::jsonb, $27, $28)
		ON CONFLICT (id) DO UPDATE SET
			ynab_transaction_id = EXCLUDED.ynab_transaction_id,
			transaction_date = EXCLUDED.transaction_date,
			total_amount = EXCLUDED.total_amount,
			merchant_name = EXCLUDED.merchant_name,
			match_status = EXCLUDED.match_status,
			match_confidence = EXCLUDED.match_confidence,
			match_method = EXCLUDED.match_method,
			match_notes = EXCLUDED.match_notes,
			source = EXCLUDED.source,
			source_transaction_id = EXCLUDED.source_transaction_id,
			subtotal = EXCLUDED.subtotal,
			total_tax = EXCLUDED.total_tax,
			total_discount = EXCLUDED.total_discount,
			tip_amount = EXCLUDED.tip_amount,
			store_name = EXCLUDED.store_name,
			store_location = EXCLUDED.store_location,
			store_phone = EXCLUDED.store_phone,
			receipt_number = EXCLUDED.receipt_number,
			payment_method = EXCLUDED.payment_method,
			cashier = EXCLUDED.cashier,
			register_number = EXCLUDED.register_number,
			receipt_image_path = EXCLUDED.receipt_image_path,
			notes = EXCLUDED.notes,
			tags = EXCLUDED.tags,
			metadata = EXCLUDED.metadata,
			subtransactions_synced_at = EXCLUDED.subtransactions_synced_at,
			updated_at = $29
		RETURNING created_at, updated_at`,
		it.ID, ledgerID, dateArg(it.TransactionDate), numArg(it.TotalAmount), it.MerchantName,
		string(it.MatchStatus), it.MatchConfidence, string(it.MatchMethod), it.MatchNotes,
		it.Source, it.SourceTransactionID, numArg(it.Subtotal), numArg(it.TotalTax),
		numArg(it.TotalDiscount), it.TipAmount.String(), it.StoreName, it.StoreLocation,
		it.StorePhone, it.ReceiptNumber, it.PaymentMethod, it.Cashier, it.RegisterNumber,
		it.ReceiptImagePath, it.Notes, tagsJSON, metaJSON, it.SubtransactionsSyncedAt,
		it.CreatedAt, now,
	).Scan(&it.CreatedAt, &updatedAt)
	if err != nil {
		return fmt.Errorf("upserting itemized transaction %s: %w", it.ID, err)
	}
	it.UpdatedAt = updatedAt

	if _, err := s.q.Exec(ctx, `DELETE FROM transaction_items WHERE itemized_transaction_id = $1`, it.ID); err != nil {
		return fmt.Errorf("clearing items of %s: %w", it.ID, err)
	}
	for i := range it.Items {
		if err := s.insertItem(ctx, it.ID, i, &it.Items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertItem(ctx context.Context, parentID string, pos int, item *domain.TransactionItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	meta := item.Metadata
	if meta == nil {
		meta = domain.Metadata{}
	}
	metaJSON, err := jsonArg(meta)
	if err != nil {
		return fmt.Errorf("encoding item metadata: %w", err)
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO transaction_items
			(id, itemized_transaction_id, position, name, amount, quantity, unit_price, category,
			 subcategory, brand, sku, barcode, discount_amount, tax_amount, notes, metadata,
			 ynab_subtransaction_id, ynab_category_id)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7::numeric, $8, $9, $10, $11, $12, $13::numeric,
			$14::numeric, $15, $16::jsonb, $17, $18)`,
		item.ID, parentID, pos, item.Name, item.Amount.String(), item.Quantity, numArg(item.UnitPrice),
		item.Category, item.Subcategory, item.Brand, item.SKU, item.Barcode,
		item.DiscountAmount.String(), item.TaxAmount.String(), item.Notes, metaJSON,
		item.LedgerSubtransactionID, item.LedgerCategoryID,
	)
	if err != nil {
		return fmt.Errorf("inserting item %q of %s: %w", item.Name, parentID, err)
	}
	return nil
}

func scanItemized(row pgx.Row) (*domain.ItemizedTransaction, *string, error) {
	var (
		it                                      domain.ItemizedTransaction
		ledgerID                                *string
		date, total, subtotal, tax, discount    *string
		tip, status, method, tagsJSON, metaJSON string
	)
	err := row.Scan(&it.ID, &ledgerID, &date, &total, &it.MerchantName, &status, &it.MatchConfidence,
		&method, &it.MatchNotes, &it.Source, &it.SourceTransactionID, &subtotal, &tax, &discount,
		&tip, &it.StoreName, &it.StoreLocation, &it.StorePhone, &it.ReceiptNumber, &it.PaymentMethod,
		&it.Cashier, &it.RegisterNumber, &it.ReceiptImagePath, &it.Notes, &tagsJSON, &metaJSON,
		&it.SubtransactionsSyncedAt, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, nil, err
	}
	it.MatchStatus = domain.MatchStatus(status)
	it.MatchMethod = domain.MatchMethod(method)

	if it.TransactionDate, err = parseDate(date); err != nil {
		return nil, nil, fmt.Errorf("parsing transaction_date of %s: %w", it.ID, err)
	}
	for _, f := range []struct {
		dst *decimal.NullDecimal
		src *string
	}{
		{&it.TotalAmount, total},
		{&it.Subtotal, subtotal},
		{&it.TotalTax, tax},
		{&it.TotalDiscount, discount},
	} {
		if *f.dst, err = parseNum(f.src); err != nil {
			return nil, nil, fmt.Errorf("parsing amounts of %s: %w", it.ID, err)
		}
	}
	if it.TipAmount, err = decimal.NewFromString(tip); err != nil {
		return nil, nil, fmt.Errorf("parsing tip_amount of %s: %w", it.ID, err)
	}

	if err := json.Unmarshal([]byte(tagsJSON), &it.Tags); err != nil {
		return nil, nil, fmt.Errorf("decoding tags of %s: %w", it.ID, err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &it.Metadata); err != nil {
		return nil, nil, fmt.Errorf("decoding metadata of %s: %w", it.ID, err)
	}
	if it.Tags == nil {
		it.Tags = []string{}
	}
	if it.Metadata == nil {
		it.Metadata = domain.Metadata{}
	}
	it.Items = []domain.TransactionItem{}
	return &it, ledgerID, nil
}

// queryItemized runs an itemized select and hydrates items and linked
// ledger transactions.
func (s *Store) queryItemized(ctx context.Context, sql string, args ...any) ([]*domain.ItemizedTransaction, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out       []*domain.ItemizedTransaction
		ledgerIDs []string
		links     = make(map[string][]*domain.ItemizedTransaction)
	)
	for rows.Next() {
		it, ledgerID, err := scanItemized(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
		if ledgerID != nil {
			if _, seen := links[*ledgerID]; !seen {
				ledgerIDs = append(ledgerIDs, *ledgerID)
			}
			links[*ledgerID] = append(links[*ledgerID], it)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := s.attachItems(ctx, out); err != nil {
		return nil, err
	}
	if len(ledgerIDs) > 0 {
		txs, err := s.queryLedger(ctx,
			`SELECT `+ledgerColumns+` FROM ynab_transactions t WHERE t.ynab_id = ANY($1)`, ledgerIDs)
		if err != nil {
			return nil, fmt.Errorf("loading linked ledger transactions: %w", err)
		}
		for _, tx := range txs {
			for i, it := range links[tx.YnabID] {
				if i == 0 {
					it.Ledger = tx
				} else {
					it.Ledger = tx.Clone()
				}
			}
		}
	}
	return out, nil
}

func (s *Store) attachItems(ctx context.Context, its []*domain.ItemizedTransaction) error {
	if len(its) == 0 {
		return nil
	}
	byID := make(map[string]*domain.ItemizedTransaction, len(its))
	ids := make([]string, 0, len(its))
	for _, it := range its {
		byID[it.ID] = it
		ids = append(ids, it.ID)
	}

	rows, err := s.q.Query(ctx, `
		SELECT id, itemized_transaction_id, name, amount::text, quantity, unit_price::text, category,
		       subcategory, brand, sku, barcode, discount_amount::text, tax_amount::text, notes,
		       metadata::text, ynab_subtransaction_id, ynab_category_id
		FROM transaction_items
		WHERE itemized_transaction_id = ANY($1)
		ORDER BY itemized_transaction_id, position`, ids)
	if err != nil {
		return fmt.Errorf("loading items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item                                    domain.TransactionItem
			parent, amount, discount, tax, metaJSON string
			unitPrice                               *string
		)
		if err := rows.Scan(&item.ID, &parent, &item.Name, &amount, &item.Quantity, &unitPrice,
			&item.Category, &item.Subcategory, &item.Brand, &item.SKU, &item.Barcode, &discount, &tax,
			&item.Notes, &metaJSON, &item.LedgerSubtransactionID, &item.LedgerCategoryID); err != nil {
			return fmt.Errorf("scanning item: %w", err)
		}
		if err := decodeItemAmounts(&item, amount, unitPrice, discount, tax); err != nil {
			return fmt.Errorf("item %s: %w", item.ID, err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &item.Metadata); err != nil {
			return fmt.Errorf("decoding metadata of item %s: %w", item.ID, err)
		}
		if it := byID[parent]; it != nil {
			it.Items = append(it.Items, item)
		}
	}
	return rows.Err()
}

func decodeItemAmounts(item *domain.TransactionItem, amount string, unitPrice *string, discount, tax string) error {
	var err error
	if item.Amount, err = decimal.NewFromString(amount); err != nil {
		return err
	}
	if item.UnitPrice, err = parseNum(unitPrice); err != nil {
		return err
	}
	if item.DiscountAmount, err = decimal.NewFromString(discount); err != nil {
		return err
	}
	if item.TaxAmount, err = decimal.NewFromString(tax); err != nil {
		return err
	}
	return nil
}

func (s *Store) getItemized(ctx context.Context, where string, args ...any) (*domain.ItemizedTransaction, error) {
	its, err := s.queryItemized(ctx,
		`SELECT `+itemizedColumns+` FROM itemized_transactions i WHERE `+where+
			` ORDER BY i.transaction_date ASC NULLS FIRST, i.id LIMIT 1`, args...)
	if err != nil {
		return nil, err
	}
	if len(its) == 0 {
		return nil, store.ErrNotFound
	}
	return its[0], nil
}

// GetItemized implements store.Store.
func (s *Store) GetItemized(ctx context.Context, id string) (*domain.ItemizedTransaction, error) {
	it, err := s.getItemized(ctx, `i.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("itemized transaction %s: %w", id, err)
	}
	return it, nil
}

// GetItemizedByLedgerID implements store.Store.
func (s *Store) GetItemizedByLedgerID(ctx context.Context, ynabID string) (*domain.ItemizedTransaction, error) {
	it, err := s.getItemized(ctx, `i.ynab_transaction_id = $1`, ynabID)
	if err != nil {
		return nil, fmt.Errorf("itemized transaction for ledger %s: %w", ynabID, err)
	}
	return it, nil
}

// GetItemizedBySource implements store.Store.
func (s *Store) GetItemizedBySource(ctx context.Context, source, sourceID string) (*domain.ItemizedTransaction, error) {
	it, err := s.getItemized(ctx, `i.source = $1 AND i.source_transaction_id = $2`, source, sourceID)
	if err != nil {
		return nil, fmt.Errorf("itemized transaction %s/%s: %w", source, sourceID, err)
	}
	return it, nil
}

// ListItemized implements store.Store.
func (s *Store) ListItemized(ctx context.Context, f store.ItemizedFilter) ([]*domain.ItemizedTransaction, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("i.match_status = $%d", string(f.Status))
	}
	if !f.From.IsZero() {
		add("i.transaction_date >= $%d::date", f.From.String())
	}
	if !f.To.IsZero() {
		add("i.transaction_date <= $%d::date", f.To.String())
	}

	sql := `SELECT ` + itemizedColumns + ` FROM itemized_transactions i`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY i.transaction_date ASC NULLS FIRST, i.id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		sql += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	its, err := s.queryItemized(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("ListItemized: %w", err)
	}
	if its == nil {
		its = []*domain.ItemizedTransaction{}
	}
	return its, nil
}

// ListUnmatchedItemized implements store.Store.
func (s *Store) ListUnmatchedItemized(ctx context.Context) ([]*domain.ItemizedTransaction, error) {
	return s.ListItemized(ctx, store.ItemizedFilter{Status: domain.MatchStatusUnmatched})
}

// DeleteItemized implements store.Store. Items and matches cascade.
func (s *Store) DeleteItemized(ctx context.Context, id string) (bool, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM itemized_transactions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("DeleteItemized: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteItemizedByLedgerID implements store.Store.
func (s *Store) DeleteItemizedByLedgerID(ctx context.Context, ynabID string) (bool, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM itemized_transactions WHERE ynab_transaction_id = $1`, ynabID)
	if err != nil {
		return false, fmt.Errorf("DeleteItemizedByLedgerID: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkSubtransactionsSynced implements store.Store.
func (s *Store) MarkSubtransactionsSynced(ctx context.Context, itemizedID string) error {
	now := s.now()
	tag, err := s.q.Exec(ctx,
		`UPDATE itemized_transactions SET subtransactions_synced_at = $2, updated_at = $2 WHERE id = $1`,
		itemizedID, now)
	if err != nil {
		return fmt.Errorf("MarkSubtransactionsSynced: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("itemized transaction %s: %w", itemizedID, store.ErrNotFound)
	}
	return nil
}
