package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/ingest/amazon"
	"github.com/dvloznov/ynab-itemized/internal/ledger"
	"github.com/dvloznov/ynab-itemized/internal/store"
	"github.com/dvloznov/ynab-itemized/internal/store/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const amazonCSV = "Website,Order ID,Order Date,Purchase Price Per Unit,Quantity,Item Subtotal,Item Subtotal Tax,Item Total,ASIN/ISBN,Title,Category,Seller,Condition\n" +
	"Amazon.com,123-4567890-1234567,01/15/2024,$12.99,1,$12.99,$1.04,$14.03,B08ABCD1234,USB-C Cable 6ft,ELECTRONICS,Anker,new\n" +
	"Amazon.com,123-4567890-1234567,01/15/2024,$19.99,1,$19.99,$1.60,$21.59,B07XYZ9876,Phone Case Clear,ELECTRONICS,Spigen,new\n" +
	",123-7654321-9876543,02/03/2024,$24.99,2,$49.98,$0.00,$49.98,B01COFFEE2,Coffee Beans 2lb,GROCERY,Roaster,new\n"

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "orders.csv")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

type mockStorage struct {
	data map[string][]byte
}

func (m *mockStorage) Fetch(ctx context.Context, uri string) ([]byte, error) {
	d, ok := m.data[uri]
	if !ok {
		return nil, errors.New("object not found")
	}
	return d, nil
}

func TestImport(t *testing.T) {
	s := inmemory.NewStore()
	ctx := context.Background()

	res, err := Import(ctx, amazon.NewParser(), writeCSV(t, amazonCSV), s, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Parsed)
	assert.Equal(t, 3, res.Items)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 0, res.Failed)

	// Quantity two at the unit price shows up as a warning, not a failure.
	assert.Len(t, res.Warnings["123-7654321-9876543"], 1)

	all, err := s.ListItemized(ctx, store.ItemizedFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestImport_ReimportKeepsReviewState(t *testing.T) {
	s := inmemory.NewStore()
	ctx := context.Background()
	path := writeCSV(t, amazonCSV)

	_, err := Import(ctx, amazon.NewParser(), path, s, ImportOptions{})
	require.NoError(t, err)

	first, err := s.GetItemizedBySource(ctx, amazon.Source, "123-4567890-1234567")
	require.NoError(t, err)
	first.Ledger = &domain.LedgerTransaction{YnabID: "y1", AccountID: "a", Amount: -35620, Date: first.TransactionDate}
	require.NoError(t, first.SetMatchStatus(domain.MatchStatusMatched))
	require.NoError(t, s.SaveItemized(ctx, first))

	res, err := Import(ctx, amazon.NewParser(), path, s, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Imported)
	assert.Equal(t, 2, res.Updated)

	again, err := s.GetItemizedBySource(ctx, amazon.Source, "123-4567890-1234567")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, domain.MatchStatusMatched, again.MatchStatus)
	require.NotNil(t, again.Ledger)
	assert.Equal(t, "y1", again.Ledger.YnabID)
}

func TestImport_DryRun(t *testing.T) {
	s := inmemory.NewStore()
	ctx := context.Background()

	res, err := Import(ctx, amazon.NewParser(), writeCSV(t, amazonCSV), s, ImportOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Parsed)
	assert.Len(t, res.Transactions, 2)
	assert.Equal(t, 0, res.Imported)

	all, err := s.ListItemized(ctx, store.ItemizedFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestImport_Cancelled(t *testing.T) {
	s := inmemory.NewStore()
	asked := 0
	_, err := Import(context.Background(), amazon.NewParser(), writeCSV(t, amazonCSV), s, ImportOptions{
		Confirm: func(txs []*domain.ItemizedTransaction) bool {
			asked = len(txs)
			return false
		},
	})
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 2, asked)
}

func TestImport_FromGCS(t *testing.T) {
	s := inmemory.NewStore()
	storage := &mockStorage{data: map[string][]byte{"gs://receipts/orders.csv": []byte(amazonCSV)}}

	res, err := Import(context.Background(), amazon.NewParser(), "gs://receipts/orders.csv", s, ImportOptions{Storage: storage})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)

	_, err = Import(context.Background(), amazon.NewParser(), "gs://receipts/missing.csv", s, ImportOptions{Storage: storage})
	assert.Error(t, err)

	_, err = Import(context.Background(), amazon.NewParser(), "gs://receipts/orders.csv", s, ImportOptions{})
	assert.Error(t, err)
}

func TestImport_Errors(t *testing.T) {
	tests := []struct {
		name   string
		source func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.csv") }},
		{"missing columns", func(t *testing.T) string { return writeCSV(t, "Order ID,Title\n1,x\n") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Import(context.Background(), amazon.NewParser(), tt.source(t), inmemory.NewStore(), ImportOptions{})
			assert.Error(t, err)
		})
	}
}

func TestImport_EmptySource(t *testing.T) {
	res, err := Import(context.Background(), amazon.NewParser(), writeCSV(t, ""), inmemory.NewStore(), ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Parsed)
	assert.Equal(t, 0, res.Imported)
}

type fakeLedgerSource struct {
	txs   []*domain.LedgerTransaction
	query ledger.TransactionsQuery
}

func (f *fakeLedgerSource) GetTransactions(ctx context.Context, q ledger.TransactionsQuery) ([]*domain.LedgerTransaction, error) {
	f.query = q
	return f.txs, nil
}

// failingStore rejects one ynab id so batch partial failure can be observed.
type failingStore struct {
	store.Store
	reject string
}

func (f failingStore) SaveLedgerTransaction(ctx context.Context, tx *domain.LedgerTransaction) error {
	if tx.YnabID == f.reject {
		return errors.New("disk full")
	}
	return f.Store.SaveLedgerTransaction(ctx, tx)
}

func TestPullLedger(t *testing.T) {
	day := civil.Date{Year: 2024, Month: 1, Day: 10}
	src := &fakeLedgerSource{txs: []*domain.LedgerTransaction{
		{YnabID: "a", AccountID: "acct", Amount: -1000, Date: day},
		{YnabID: "b", AccountID: "acct", Amount: -2000, Date: day},
		{YnabID: "c", AccountID: "acct", Amount: -3000, Date: day},
	}}
	mem := inmemory.NewStore()

	res, err := PullLedger(context.Background(), src, failingStore{Store: mem, reject: "b"}, day, "acct")
	require.NoError(t, err)
	assert.Equal(t, PullResult{Fetched: 3, Saved: 2, Failed: 1}, res)
	assert.Equal(t, "acct", src.query.AccountID)
	assert.Equal(t, day, src.query.SinceDate)

	saved, err := mem.ListLedgerTransactions(context.Background(), store.LedgerFilter{})
	require.NoError(t, err)
	assert.Len(t, saved, 2)
}

func TestPipeline_StepErrorsAreNumbered(t *testing.T) {
	p := NewPipeline(&ValidateStep{}, &ConfirmStep{Confirm: func([]*domain.ItemizedTransaction) bool { return false }})
	err := p.Execute(context.Background(), &PipelineState{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline step 2 failed")
	assert.ErrorIs(t, err, ErrCancelled)
}
