package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/shopspring/decimal"
)

// ItemizedRow is one export snapshot of an itemized transaction. Rows are
// append-only; the latest exported_ts per itemized_id is current.
type ItemizedRow struct {
	ItemizedID string              `bigquery:"itemized_id"` // REQUIRED
	YnabID     bigquery.NullString `bigquery:"ynab_id"`     // NULLABLE

	Source              string              `bigquery:"source"`                // REQUIRED
	SourceTransactionID bigquery.NullString `bigquery:"source_transaction_id"` // NULLABLE
	MerchantName        bigquery.NullString `bigquery:"merchant_name"`         // NULLABLE

	TransactionDate bigquery.NullDate `bigquery:"transaction_date"` // NULLABLE

	TotalAmount   *big.Rat `bigquery:"total_amount"`   // NULLABLE NUMERIC
	Subtotal      *big.Rat `bigquery:"subtotal"`       // NULLABLE NUMERIC
	TotalTax      *big.Rat `bigquery:"total_tax"`      // NULLABLE NUMERIC
	TotalDiscount *big.Rat `bigquery:"total_discount"` // NULLABLE NUMERIC
	TipAmount     *big.Rat `bigquery:"tip_amount"`     // REQUIRED NUMERIC

	MatchStatus     string               `bigquery:"match_status"`     // REQUIRED
	MatchMethod     bigquery.NullString  `bigquery:"match_method"`     // NULLABLE
	MatchConfidence bigquery.NullFloat64 `bigquery:"match_confidence"` // NULLABLE

	ItemCount         int64                  `bigquery:"item_count"`
	SubtransactionsTS bigquery.NullTimestamp `bigquery:"subtransactions_synced_ts"` // NULLABLE
	Tags              []string               `bigquery:"tags"`                      // REPEATED STRING
	CreatedTS         time.Time              `bigquery:"created_ts"`                // REQUIRED
	ExportedTS        time.Time              `bigquery:"exported_ts"`               // REQUIRED
}

// ItemRow is one receipt line of an exported itemized transaction.
type ItemRow struct {
	ItemizedID string `bigquery:"itemized_id"` // REQUIRED
	LineIndex  int64  `bigquery:"line_index"`  // REQUIRED

	Name      string   `bigquery:"name"`       // REQUIRED
	Amount    *big.Rat `bigquery:"amount"`     // REQUIRED NUMERIC
	Quantity  int64    `bigquery:"quantity"`   // REQUIRED
	UnitPrice *big.Rat `bigquery:"unit_price"` // NULLABLE NUMERIC

	Category bigquery.NullString `bigquery:"category"` // NULLABLE
	SKU      bigquery.NullString `bigquery:"sku"`      // NULLABLE

	TaxAmount      *big.Rat `bigquery:"tax_amount"`      // REQUIRED NUMERIC
	DiscountAmount *big.Rat `bigquery:"discount_amount"` // REQUIRED NUMERIC

	YnabSubtransactionID bigquery.NullString `bigquery:"ynab_subtransaction_id"` // NULLABLE

	ExportedTS time.Time `bigquery:"exported_ts"` // REQUIRED
}

// MatchSummaryRow counts current itemized transactions per match status.
type MatchSummaryRow struct {
	MatchStatus string   `bigquery:"match_status"`
	Count       int64    `bigquery:"n"`
	Total       *big.Rat `bigquery:"total_amount"`
}

// ToItemizedRow converts an itemized transaction into its export row.
func ToItemizedRow(tx *domain.ItemizedTransaction, exported time.Time) *ItemizedRow {
	row := &ItemizedRow{
		ItemizedID:          tx.ID,
		YnabID:              nullString(tx.LedgerID()),
		Source:              tx.Source,
		SourceTransactionID: nullString(tx.SourceTransactionID),
		MerchantName:        nullString(tx.MerchantName),
		TotalAmount:         nullRat(tx.TotalAmount),
		Subtotal:            nullRat(tx.Subtotal),
		TotalTax:            nullRat(tx.TotalTax),
		TotalDiscount:       nullRat(tx.TotalDiscount),
		TipAmount:           tx.TipAmount.Rat(),
		MatchStatus:         string(tx.MatchStatus),
		MatchMethod:         nullString(string(tx.MatchMethod)),
		ItemCount:           int64(len(tx.Items)),
		Tags:                tx.Tags,
		CreatedTS:           tx.CreatedAt,
		ExportedTS:          exported,
	}
	if row.Source == "" {
		row.Source = "manual"
	}
	if !tx.TransactionDate.IsZero() {
		row.TransactionDate = bigquery.NullDate{Date: tx.TransactionDate, Valid: true}
	}
	if tx.MatchConfidence != nil {
		row.MatchConfidence = bigquery.NullFloat64{Float64: *tx.MatchConfidence, Valid: true}
	}
	if tx.SubtransactionsSyncedAt != nil {
		row.SubtransactionsTS = bigquery.NullTimestamp{Timestamp: *tx.SubtransactionsSyncedAt, Valid: true}
	}
	if row.CreatedTS.IsZero() {
		row.CreatedTS = exported
	}
	return row
}

// ToItemRows converts the items of tx, keeping their order as line_index.
func ToItemRows(tx *domain.ItemizedTransaction, exported time.Time) []*ItemRow {
	rows := make([]*ItemRow, 0, len(tx.Items))
	for i, item := range tx.Items {
		rows = append(rows, &ItemRow{
			ItemizedID:           tx.ID,
			LineIndex:            int64(i),
			Name:                 item.Name,
			Amount:               item.Amount.Rat(),
			Quantity:             int64(item.Quantity),
			UnitPrice:            nullRat(item.UnitPrice),
			Category:             nullString(item.Category),
			SKU:                  nullString(item.SKU),
			TaxAmount:            item.TaxAmount.Rat(),
			DiscountAmount:       item.DiscountAmount.Rat(),
			YnabSubtransactionID: nullString(domain.StringValue(item.LedgerSubtransactionID)),
			ExportedTS:           exported,
		})
	}
	return rows
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func nullRat(d decimal.NullDecimal) *big.Rat {
	if !d.Valid {
		return nil
	}
	return d.Decimal.Rat()
}
