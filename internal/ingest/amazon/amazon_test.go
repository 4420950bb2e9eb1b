package amazon

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/ingest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "Website,Order ID,Order Date,Purchase Price Per Unit,Quantity,Item Subtotal,Item Subtotal Tax,Item Total,ASIN/ISBN,Title,Category,Seller,Condition\n"

const sampleCSV = header +
	"Amazon.com,123-4567890-1234567,01/15/2024,$12.99,1,$12.99,$1.04,$14.03,B08ABCD1234,USB-C Cable 6ft,ELECTRONICS,Anker,new\n" +
	"Amazon.com,123-4567890-1234567,01/15/2024,$19.99,1,$19.99,$1.60,$21.59,B07XYZ9876,Phone Case Clear,ELECTRONICS,Spigen,new\n" +
	",123-7654321-9876543,02/03/2024,$24.99,2,$49.98,$0.00,$49.98,B01COFFEE2,Coffee Beans 2lb,GROCERY,Roaster,new\n"

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParser_Properties(t *testing.T) {
	p := NewParser()
	assert.Equal(t, "Amazon", p.StoreName())
	assert.Equal(t, "csv", p.IntegrationType())
	assert.GreaterOrEqual(t, p.SupportedDateRangeDays(), 3650)
}

func TestParser_Parse(t *testing.T) {
	txs, err := NewParser().Parse(context.Background(), strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, txs, 2)

	tx1 := txs[0]
	assert.Equal(t, civil.Date{Year: 2024, Month: 1, Day: 15}, tx1.TransactionDate)
	assert.Equal(t, "Amazon.com", tx1.MerchantName)
	assert.Equal(t, "amazon", tx1.Source)
	assert.Equal(t, "123-4567890-1234567", tx1.SourceTransactionID)
	assert.Equal(t, "amazon_request_my_data", tx1.Metadata.Get("import_source"))
	require.Len(t, tx1.Items, 2)
	assert.True(t, tx1.TotalAmount.Decimal.Equal(dec("35.62")))
	assert.True(t, tx1.TotalTax.Decimal.Equal(dec("2.64")))

	item1 := tx1.Items[0]
	assert.Equal(t, "USB-C Cable 6ft", item1.Name)
	assert.True(t, item1.Amount.Equal(dec("12.99")))
	assert.Equal(t, 1, item1.Quantity)
	assert.True(t, item1.TaxAmount.Equal(dec("1.04")))
	assert.Equal(t, "B08ABCD1234", item1.Metadata.Get("asin"))
	assert.Equal(t, "ELECTRONICS", item1.Metadata.Get("category"))
	assert.Equal(t, "123-4567890-1234567", item1.Metadata.Get("order_id"))

	item2 := tx1.Items[1]
	assert.Equal(t, "Phone Case Clear", item2.Name)
	assert.True(t, item2.Amount.Equal(dec("19.99")))
	assert.True(t, item2.TaxAmount.Equal(dec("1.60")))

	tx2 := txs[1]
	assert.Equal(t, civil.Date{Year: 2024, Month: 2, Day: 3}, tx2.TransactionDate)
	assert.Equal(t, "Amazon.com", tx2.MerchantName, "blank website falls back")
	assert.Equal(t, "123-7654321-9876543", tx2.SourceTransactionID)
	require.Len(t, tx2.Items, 1)
	assert.True(t, tx2.TotalAmount.Decimal.Equal(dec("49.98")))
	assert.True(t, tx2.TotalTax.Decimal.IsZero())
	assert.True(t, tx2.Items[0].Amount.Equal(dec("24.99")), "item amount is the unit price")
	assert.Equal(t, 2, tx2.Items[0].Quantity)
}

func TestParser_EmptyInput(t *testing.T) {
	for name, in := range map[string]string{"nothing": "", "header only": header} {
		t.Run(name, func(t *testing.T) {
			txs, err := NewParser().Parse(context.Background(), strings.NewReader(in))
			require.NoError(t, err)
			assert.Empty(t, txs)
		})
	}
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
		want string
	}{
		{
			name: "missing columns",
			csv:  "Order ID,Title\nA,B\n",
			want: "Missing required columns: Item Subtotal, Item Subtotal Tax, Item Total, Order Date, Purchase Price Per Unit, Quantity",
		},
		{
			name: "bad date",
			csv:  header + "Amazon.com,111,2024-01-15,$1.00,1,$1.00,$0.00,$1.00,A,Thing,,,\n",
			want: "Invalid date format for order 111: 2024-01-15",
		},
		{
			name: "bad amount",
			csv:  header + "Amazon.com,222,01/15/2024,abc,1,$1.00,$0.00,$1.00,A,Thing,,,\n",
			want: "Invalid amount in order 222, item 'Thing': Purchase Price Per Unit",
		},
		{
			name: "bad quantity",
			csv:  header + "Amazon.com,222,01/15/2024,$1.00,two,$1.00,$0.00,$1.00,A,Thing,,,\n",
			want: "Invalid amount in order 222, item 'Thing': Quantity",
		},
		{
			name: "zero quantity",
			csv:  header + "Amazon.com,222,01/15/2024,$1.00,0,$1.00,$0.00,$1.00,A,Thing,,,\n",
			want: "Invalid amount in order 222, item 'Thing': Quantity",
		},
		{
			name: "negative tax",
			csv:  header + "Amazon.com,555,01/15/2024,$1.00,1,$1.00,-$0.10,$0.90,A,Thing,,,\n",
			want: "Invalid item in order 555, item 'Thing': tax_amount: tax amount cannot be negative",
		},
		{
			name: "missing title",
			csv:  header + "Amazon.com,333,01/15/2024,$1.00,1,$1.00,$0.00,$1.00,A,,,,\n",
			want: "Item in order 333 has no title",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().Parse(context.Background(), strings.NewReader(tt.csv))
			var ferr *ingest.FormatError
			require.True(t, errors.As(err, &ferr), "got %v", err)
			assert.Equal(t, tt.want, ferr.Error())
		})
	}
}

func TestParser_ItemErrorKeepsCause(t *testing.T) {
	in := header + "Amazon.com,555,01/15/2024,$1.00,1,$1.00,-$0.10,$0.90,A,Thing,,,\n"
	_, err := NewParser().Parse(context.Background(), strings.NewReader(in))

	var ferr *ingest.FormatError
	require.True(t, errors.As(err, &ferr), "got %v", err)
	assert.Equal(t, "tax_amount", ferr.Field)

	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "tax_amount", verr.Field)
}

func TestParser_SkipsRowsWithoutOrderID(t *testing.T) {
	in := header +
		"Amazon.com,,01/15/2024,$1.00,1,$1.00,$0.00,$1.00,A,Orphan,,,\n" +
		"Amazon.com,444,01/15/2024,$2.00,1,$2.00,$0.00,$2.00,B,Kept,,,\n"
	txs, err := NewParser().Parse(context.Background(), strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "Kept", txs[0].Items[0].Name)
}
