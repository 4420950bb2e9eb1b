package splits

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nullDec(s string) decimal.NullDecimal { return decimal.NewNullDecimal(dec(s)) }

func itemized(total string, amounts ...string) *domain.ItemizedTransaction {
	it := domain.NewItemized()
	it.ID = "it-1"
	if total != "" {
		it.TotalAmount = nullDec(total)
	}
	for i, a := range amounts {
		it.Items = append(it.Items, domain.TransactionItem{
			Name:     "Item " + string(rune('A'+i)),
			Amount:   dec(a),
			Quantity: 1,
		})
	}
	return it
}

func amounts(subs []domain.Subtransaction) []money.Milliunits {
	out := make([]money.Milliunits, len(subs))
	for i, s := range subs {
		out[i] = s.Amount
	}
	return out
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name  string
		it    *domain.ItemizedTransaction
		opts  Options
		want  []money.Milliunits
		memos []string
	}{
		{
			name: "single item",
			it:   itemized("10.00", "10.00"),
			opts: DefaultOptions(),
			want: []money.Milliunits{-10000},
		},
		{
			name: "exact thirds",
			it:   itemized("10.01", "3.34", "3.34", "3.33"),
			opts: DefaultOptions(),
			want: []money.Milliunits{-3340, -3340, -3330},
		},
		{
			name: "sub-cent drift goes to last split",
			it:   itemized("10.00", "3.3333", "3.3333", "3.3333"),
			opts: DefaultOptions(),
			want: []money.Milliunits{-3333, -3333, -3334},
		},
		{
			name: "no total skips reconciliation",
			it:   itemized("", "10", "15"),
			opts: DefaultOptions(),
			want: []money.Milliunits{-10000, -15000},
		},
		{
			name: "negative item amount becomes outflow",
			it:   itemized("5.00", "-5.00"),
			opts: DefaultOptions(),
			want: []money.Milliunits{-5000},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs, err := Build(context.Background(), tt.it, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, amounts(subs))
		})
	}
}

func TestBuild_TaxAndDiscount(t *testing.T) {
	it := itemized("10.50", "10.00")
	it.TotalTax = nullDec("1.00")
	it.TotalDiscount = nullDec("0.50")

	subs, err := Build(context.Background(), it, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.Equal(t, []money.Milliunits{-10000, -1000, 500}, amounts(subs))
	assert.Equal(t, "Item A", subs[0].Memo)
	assert.Equal(t, TaxMemo, subs[1].Memo)
	assert.Equal(t, DiscountMemo, subs[2].Memo)
}

func TestBuild_OptionsExcludeSummaryLines(t *testing.T) {
	it := itemized("", "10.00")
	it.TotalTax = nullDec("1.00")
	it.TotalDiscount = nullDec("0.50")

	subs, err := Build(context.Background(), it, Options{})
	require.NoError(t, err)
	assert.Equal(t, []money.Milliunits{-10000}, amounts(subs))

	subs, err = Build(context.Background(), it, Options{IncludeTax: true})
	require.NoError(t, err)
	assert.Equal(t, []money.Milliunits{-10000, -1000}, amounts(subs))
}

func TestBuild_ZeroTaxIsOmitted(t *testing.T) {
	it := itemized("10.00", "10.00")
	it.TotalTax = nullDec("0")

	subs, err := Build(context.Background(), it, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestBuild_Empty(t *testing.T) {
	for _, total := range []string{"", "0"} {
		subs, err := Build(context.Background(), itemized(total), DefaultOptions())
		require.NoError(t, err)
		assert.Empty(t, subs)
	}
}

func TestBuild_ReconciliationError(t *testing.T) {
	subs, err := Build(context.Background(), itemized("30.00", "10.00", "15.00"), DefaultOptions())
	require.Error(t, err)
	assert.Nil(t, subs)

	var rerr *ReconciliationError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, money.Milliunits(-30000), rerr.Expected)
	assert.Equal(t, money.Milliunits(-25000), rerr.Actual)
	assert.Equal(t, money.Milliunits(5000), rerr.Difference())
	assert.Contains(t, err.Error(), "Difference: 5000 milliunits ($5.00)")
}

func TestBuild_DriftBoundary(t *testing.T) {
	// 10 milliunits is still absorbed, 11 is not.
	subs, err := Build(context.Background(), itemized("10.00", "9.99"), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []money.Milliunits{-10000}, amounts(subs))

	_, err = Build(context.Background(), itemized("10.00", "9.989"), DefaultOptions())
	var rerr *ReconciliationError
	assert.True(t, errors.As(err, &rerr))
}
