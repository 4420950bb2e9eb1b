// Package amazon parses the order history CSV from Amazon's "Request My
// Data" export.
package amazon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/ingest"
	"github.com/dvloznov/ynab-itemized/internal/logger"
	"github.com/dvloznov/ynab-itemized/internal/money"
	"github.com/shopspring/decimal"
)

const (
	// Source is recorded on every imported transaction.
	Source = "amazon"

	// ImportSource tags transactions in their metadata.
	ImportSource = "amazon_request_my_data"

	// DefaultMerchant is used when the Website column is blank.
	DefaultMerchant = "Amazon.com"

	dateLayout = "01/02/2006"
)

// Column names.
const (
	colOrderDate = "Order Date"
	colOrderID   = "Order ID"
	colTitle     = "Title"
	colUnitPrice = "Purchase Price Per Unit"
	colQuantity  = "Quantity"
	colSubtotal  = "Item Subtotal"
	colTax       = "Item Subtotal Tax"
	colTotal     = "Item Total"
	colWebsite   = "Website"
	colCategory  = "Category"
	colASIN      = "ASIN/ISBN"
	colSeller    = "Seller"
	colCondition = "Condition"
)

// RequiredColumns must all be present in the header.
var RequiredColumns = []string{
	colOrderDate, colOrderID, colTitle, colUnitPrice,
	colQuantity, colSubtotal, colTax, colTotal,
}

// Parser implements ingest.Integration.
type Parser struct{}

var _ ingest.Integration = (*Parser)(nil)

// NewParser returns an Amazon order history parser.
func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) StoreName() string { return "Amazon" }

func (p *Parser) IntegrationType() string { return ingest.TypeCSV }

// SupportedDateRangeDays is ten years: the export covers the full history.
func (p *Parser) SupportedDateRangeDays() int { return 3650 }

// Parse reads the CSV and returns one itemized transaction per order, in the
// order each order first appears.
func (p *Parser) Parse(ctx context.Context, r io.Reader) ([]*domain.ItemizedTransaction, error) {
	log := logger.FromContext(ctx)

	header, rows, err := ingest.ReadRows(r)
	if err != nil {
		return nil, err
	}
	if header == nil {
		log.Warn().Msg("Amazon CSV is empty")
		return []*domain.ItemizedTransaction{}, nil
	}
	if err := ingest.RequireColumns(header, RequiredColumns); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		log.Warn().Msg("Amazon CSV contains no data rows")
		return []*domain.ItemizedTransaction{}, nil
	}

	groups := ingest.GroupRows(rows, colOrderID)
	txs := make([]*domain.ItemizedTransaction, 0, len(groups))
	for _, g := range groups {
		tx, err := parseOrder(g.Key, g.Rows)
		if err != nil {
			log.Error().Err(err).Str("order_id", g.Key).Msg("Failed to parse order")
			return nil, err
		}
		txs = append(txs, tx)
	}

	log.Info().
		Int("transactions", len(txs)).
		Int("rows", len(rows)).
		Msg("Parsed Amazon orders")
	return txs, nil
}

func parseOrder(orderID string, rows []ingest.Row) (*domain.ItemizedTransaction, error) {
	first := rows[0]

	rawDate := first.Get(colOrderDate)
	parsed, err := time.Parse(dateLayout, rawDate)
	if err != nil {
		return nil, &ingest.FormatError{
			OrderID: orderID,
			Field:   colOrderDate,
			Value:   rawDate,
			Msg:     fmt.Sprintf("Invalid date format for order %s: %s", orderID, rawDate),
		}
	}

	merchant := first.Get(colWebsite)
	if merchant == "" {
		merchant = DefaultMerchant
	}

	tx := domain.NewItemized()
	tx.TransactionDate = civil.DateOf(parsed)
	tx.MerchantName = merchant
	tx.Source = Source
	tx.SourceTransactionID = orderID
	tx.Metadata = domain.Metadata{
		"order_id":      domain.MetaString(orderID),
		"import_source": domain.MetaString(ImportSource),
	}

	total := decimal.Zero
	tax := decimal.Zero
	for _, row := range rows {
		item, itemTotal, itemTax, err := parseItem(orderID, row)
		if err != nil {
			return nil, err
		}
		tx.Items = append(tx.Items, item)
		total = total.Add(itemTotal)
		tax = tax.Add(itemTax)
	}
	tx.TotalAmount = decimal.NewNullDecimal(total)
	tx.TotalTax = decimal.NewNullDecimal(tax)
	return tx, nil
}

// parseItem builds the item for one row. The item amount is the per-unit
// price, not the row subtotal; the row total only feeds the order total.
func parseItem(orderID string, row ingest.Row) (domain.TransactionItem, decimal.Decimal, decimal.Decimal, error) {
	title := row.Get(colTitle)
	if title == "" {
		return domain.TransactionItem{}, decimal.Zero, decimal.Zero, &ingest.FormatError{
			OrderID: orderID,
			Field:   colTitle,
			Msg:     fmt.Sprintf("Item in order %s has no title", orderID),
		}
	}

	amountErr := func(field, value string) error {
		return &ingest.FormatError{
			OrderID: orderID,
			Title:   title,
			Field:   field,
			Value:   value,
			Msg:     fmt.Sprintf("Invalid amount in order %s, item '%s': %s", orderID, title, field),
		}
	}

	var amounts [4]decimal.Decimal
	for i, col := range []string{colUnitPrice, colSubtotal, colTax, colTotal} {
		d, err := money.ParseMajor(row.Get(col))
		if err != nil {
			return domain.TransactionItem{}, decimal.Zero, decimal.Zero, amountErr(col, row.Get(col))
		}
		amounts[i] = d
	}
	unitPrice, itemTax, itemTotal := amounts[0], amounts[2], amounts[3]

	quantity := 1
	if raw := row.Get(colQuantity); raw != "" {
		q, err := strconv.Atoi(raw)
		if err != nil {
			return domain.TransactionItem{}, decimal.Zero, decimal.Zero, amountErr(colQuantity, raw)
		}
		if q < 1 {
			return domain.TransactionItem{}, decimal.Zero, decimal.Zero, amountErr(colQuantity, raw)
		}
		quantity = q
	}

	item, err := domain.NewTransactionItem(domain.ItemInput{
		Name:      title,
		Amount:    unitPrice,
		Quantity:  quantity,
		UnitPrice: decimal.NewNullDecimal(unitPrice),
		TaxAmount: itemTax,
		Metadata: domain.Metadata{
			"asin":      domain.MetaString(row.Get(colASIN)),
			"category":  domain.MetaString(row.Get(colCategory)),
			"seller":    domain.MetaString(row.Get(colSeller)),
			"condition": domain.MetaString(row.Get(colCondition)),
			"order_id":  domain.MetaString(orderID),
		},
	})
	if err != nil {
		field := ""
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			field = verr.Field
		}
		return domain.TransactionItem{}, decimal.Zero, decimal.Zero, &ingest.FormatError{
			OrderID: orderID,
			Title:   title,
			Field:   field,
			Msg:     fmt.Sprintf("Invalid item in order %s, item '%s': %v", orderID, title, err),
			Err:     err,
		}
	}
	return item, itemTotal, itemTax, nil
}
