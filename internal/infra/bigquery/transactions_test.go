package bigquery

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToItemizedRow(t *testing.T) {
	exported := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	conf := 0.92
	synced := exported.Add(-time.Hour)

	tests := []struct {
		name  string
		tx    func() *domain.ItemizedTransaction
		check func(t *testing.T, row *ItemizedRow)
	}{
		{
			name: "fully populated",
			tx: func() *domain.ItemizedTransaction {
				tx := domain.NewItemized()
				tx.ID = "it-1"
				tx.Ledger = &domain.LedgerTransaction{YnabID: "y-1"}
				tx.Source = "amazon"
				tx.SourceTransactionID = "111-222"
				tx.MerchantName = "Amazon"
				tx.TransactionDate = civil.Date{Year: 2024, Month: 4, Day: 30}
				tx.TotalAmount = decimal.NewNullDecimal(decimal.RequireFromString("12.34"))
				tx.TipAmount = decimal.RequireFromString("1.5")
				tx.MatchStatus = domain.MatchStatusMatched
				tx.MatchMethod = domain.MatchMethodAutomatic
				tx.MatchConfidence = &conf
				tx.SubtransactionsSyncedAt = &synced
				tx.CreatedAt = exported.Add(-24 * time.Hour)
				tx.Items = []domain.TransactionItem{{Name: "a"}, {Name: "b"}}
				return tx
			},
			check: func(t *testing.T, row *ItemizedRow) {
				assert.Equal(t, "it-1", row.ItemizedID)
				assert.Equal(t, "y-1", row.YnabID.StringVal)
				assert.True(t, row.YnabID.Valid)
				assert.Equal(t, "amazon", row.Source)
				assert.True(t, row.TransactionDate.Valid)
				assert.Equal(t, 0, row.TotalAmount.Cmp(big.NewRat(1234, 100)))
				assert.Equal(t, 0, row.TipAmount.Cmp(big.NewRat(3, 2)))
				assert.Equal(t, "matched", row.MatchStatus)
				assert.Equal(t, "automatic", row.MatchMethod.StringVal)
				assert.Equal(t, 0.92, row.MatchConfidence.Float64)
				assert.True(t, row.SubtransactionsTS.Valid)
				assert.Equal(t, int64(2), row.ItemCount)
				assert.Equal(t, exported.Add(-24*time.Hour), row.CreatedTS)
				assert.Equal(t, exported, row.ExportedTS)
			},
		},
		{
			name: "unlinked manual entry",
			tx: func() *domain.ItemizedTransaction {
				tx := domain.NewItemized()
				tx.ID = "it-2"
				return tx
			},
			check: func(t *testing.T, row *ItemizedRow) {
				assert.False(t, row.YnabID.Valid)
				assert.Equal(t, "manual", row.Source)
				assert.False(t, row.TransactionDate.Valid)
				assert.Nil(t, row.TotalAmount)
				assert.Nil(t, row.Subtotal)
				assert.NotNil(t, row.TipAmount)
				assert.False(t, row.MatchMethod.Valid)
				assert.False(t, row.MatchConfidence.Valid)
				assert.Equal(t, exported, row.CreatedTS)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, ToItemizedRow(tt.tx(), exported))
		})
	}
}

func TestToItemRows(t *testing.T) {
	exported := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tx := domain.NewItemized()
	tx.ID = "it-1"
	tx.Items = []domain.TransactionItem{
		{
			Name:                   "Cable",
			Amount:                 decimal.RequireFromString("9.99"),
			Quantity:               1,
			UnitPrice:              decimal.NewNullDecimal(decimal.RequireFromString("9.99")),
			Category:               "Electronics",
			LedgerSubtransactionID: domain.StringPtr("sub-1"),
		},
		{
			Name:     "Batteries",
			Amount:   decimal.NewFromInt(6),
			Quantity: 3,
			SKU:      "B02",
		},
	}

	rows := ToItemRows(tx, exported)
	require.Len(t, rows, 2)

	assert.Equal(t, int64(0), rows[0].LineIndex)
	assert.Equal(t, 0, rows[0].Amount.Cmp(big.NewRat(999, 100)))
	assert.Equal(t, "Electronics", rows[0].Category.StringVal)
	assert.Equal(t, "sub-1", rows[0].YnabSubtransactionID.StringVal)
	assert.False(t, rows[0].SKU.Valid)

	assert.Equal(t, int64(1), rows[1].LineIndex)
	assert.Equal(t, int64(3), rows[1].Quantity)
	assert.Nil(t, rows[1].UnitPrice)
	assert.Equal(t, 0, rows[1].TaxAmount.Sign())
	assert.False(t, rows[1].YnabSubtransactionID.Valid)
	assert.Equal(t, "it-1", rows[1].ItemizedID)
}

func TestToItemRows_Empty(t *testing.T) {
	rows := ToItemRows(domain.NewItemized(), time.Now())
	assert.Empty(t, rows)
}
