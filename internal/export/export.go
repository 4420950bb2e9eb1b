// Package export writes itemized transactions to flat files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// DefaultFilename returns the output name used when none is given.
func DefaultFilename(format string) string {
	return "ynab_itemized_export." + format
}

var csvHeader = []string{
	"itemized_id",
	"transaction_date",
	"merchant_name",
	"total_amount",
	"match_status",
	"ynab_id",
	"source",
	"source_transaction_id",
	"item_name",
	"item_amount",
	"quantity",
	"unit_price",
	"category",
	"tax_amount",
	"discount_amount",
	"sku",
}

// WriteCSV writes one row per item, repeating the parent transaction's
// columns. A transaction without items still gets one row with the item
// columns empty.
func WriteCSV(w io.Writer, txs []*domain.ItemizedTransaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("WriteCSV: writing header: %w", err)
	}

	for _, tx := range txs {
		parent := []string{
			tx.ID,
			dateString(tx),
			tx.MerchantName,
			nullString(tx.TotalAmount),
			string(tx.MatchStatus),
			tx.LedgerID(),
			tx.Source,
			tx.SourceTransactionID,
		}
		if len(tx.Items) == 0 {
			row := append(append([]string{}, parent...), make([]string, len(csvHeader)-len(parent))...)
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("WriteCSV: writing %s: %w", tx.ID, err)
			}
			continue
		}
		for _, item := range tx.Items {
			row := append(append([]string{}, parent...),
				item.Name,
				item.Amount.StringFixed(2),
				strconv.Itoa(item.Quantity),
				nullString(item.UnitPrice),
				item.Category,
				item.TaxAmount.StringFixed(2),
				item.DiscountAmount.StringFixed(2),
				item.SKU,
			)
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("WriteCSV: writing %s: %w", tx.ID, err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the transactions as an indented JSON array.
func WriteJSON(w io.Writer, txs []*domain.ItemizedTransaction) error {
	if txs == nil {
		txs = []*domain.ItemizedTransaction{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(txs); err != nil {
		return fmt.Errorf("WriteJSON: %w", err)
	}
	return nil
}

// Write dispatches on format.
func Write(w io.Writer, format string, txs []*domain.ItemizedTransaction) error {
	switch strings.ToLower(format) {
	case FormatCSV:
		return WriteCSV(w, txs)
	case FormatJSON:
		return WriteJSON(w, txs)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

func dateString(tx *domain.ItemizedTransaction) string {
	if tx.TransactionDate.IsZero() {
		return ""
	}
	return tx.TransactionDate.String()
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}
