package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture() []*domain.ItemizedTransaction {
	a := domain.NewItemized()
	a.ID = "it-1"
	a.TransactionDate = civil.Date{Year: 2024, Month: 3, Day: 9}
	a.MerchantName = "Amazon"
	a.TotalAmount = decimal.NewNullDecimal(decimal.RequireFromString("30.5"))
	a.Source = "amazon"
	a.SourceTransactionID = "111-222"
	a.Ledger = &domain.LedgerTransaction{YnabID: "y-1"}
	a.Items = []domain.TransactionItem{
		{Name: "Cable", Amount: decimal.NewFromInt(10), Quantity: 1, UnitPrice: decimal.NewNullDecimal(decimal.NewFromInt(10))},
		{Name: "Mouse, wireless", Amount: decimal.RequireFromString("20.5"), Quantity: 2, Category: "Electronics", SKU: "B01"},
	}

	b := domain.NewItemized()
	b.ID = "it-2"
	return []*domain.ItemizedTransaction{a, b}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, fixture()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{
		"it-1", "2024-03-09", "Amazon", "30.50", "unmatched", "y-1", "amazon", "111-222",
		"Cable", "10.00", "1", "10.00", "", "0.00", "0.00", "",
	}, rows[1])
	assert.Equal(t, "Mouse, wireless", rows[2][8])
	assert.Equal(t, "2", rows[2][10])
	assert.Equal(t, "", rows[2][11])
	assert.Equal(t, "B01", rows[2][15])

	// transaction without items keeps one row
	assert.Equal(t, "it-2", rows[3][0])
	assert.Equal(t, "", rows[3][1])
	assert.Equal(t, "", rows[3][8])
	assert.Len(t, rows[3], len(csvHeader))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, fixture()))
	assert.Contains(t, buf.String(), "\n  {")

	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "it-1", out[0]["id"])
	assert.Len(t, out[0]["items"], 2)
}

func TestWriteJSON_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestWrite(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"csv", false},
		{"JSON", false},
		{"xml", true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			err := Write(&buf, tt.format, fixture())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.NotZero(t, buf.Len())
		})
	}
}

func TestDefaultFilename(t *testing.T) {
	assert.Equal(t, "ynab_itemized_export.csv", DefaultFilename(FormatCSV))
}
