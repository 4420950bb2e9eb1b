package matching

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/money"
	"github.com/dvloznov/ynab-itemized/internal/store"
	"github.com/dvloznov/ynab-itemized/internal/store/inmemory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) civil.Date { return civil.Date{Year: 2024, Month: 1, Day: d} }

func receipt(id string, d int, total, merchant string) *domain.ItemizedTransaction {
	it := domain.NewItemized()
	it.ID = id
	it.TransactionDate = day(d)
	it.TotalAmount = decimal.NewNullDecimal(decimal.RequireFromString(total))
	it.MerchantName = merchant
	it.Items = []domain.TransactionItem{{Name: "thing", Amount: decimal.RequireFromString(total), Quantity: 1}}
	return it
}

func ledgerTx(id string, d int, amount money.Milliunits, payee string) *domain.LedgerTransaction {
	return &domain.LedgerTransaction{YnabID: id, AccountID: "a", Amount: amount, Date: day(d), PayeeName: payee}
}

func TestScore_Terms(t *testing.T) {
	tests := []struct {
		name string
		it   *domain.ItemizedTransaction
		lt   *domain.LedgerTransaction
		want float64
	}{
		{"perfect", receipt("i", 15, "25.37", "Amazon"), ledgerTx("y", 15, -25370, "amazon"), 1.0},
		{"one day off", receipt("i", 15, "25.37", "Amazon"), ledgerTx("y", 16, -25370, "Amazon"), 0.95},
		{"three days off", receipt("i", 15, "25.37", ""), ledgerTx("y", 12, -25370, "Amazon"), 0.55},
		{"seven days off", receipt("i", 15, "100", ""), ledgerTx("y", 22, -100000, ""), 0.45},
		{"far apart", receipt("i", 15, "100", ""), ledgerTx("y", 30, -100000, ""), 0.40},
		{"amount within 1%", receipt("i", 15, "100", ""), ledgerTx("y", 15, -99500, ""), 0.65},
		{"amount within 5%", receipt("i", 15, "100", ""), ledgerTx("y", 15, -96000, ""), 0.55},
		{"amount within 10%", receipt("i", 15, "100", ""), ledgerTx("y", 15, -91000, ""), 0.45},
		{"amount far", receipt("i", 15, "100", ""), ledgerTx("y", 15, -50000, ""), 0.30},
		{"payee partial", receipt("i", 15, "100", "Amazon.com"), ledgerTx("y", 15, -100000, "Amazon"), 0.70 + 0.3*0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.it, tt.lt)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestScore_ZeroAmounts(t *testing.T) {
	it := receipt("i", 15, "0", "")
	lt := ledgerTx("y", 15, 0, "")
	assert.InDelta(t, 0.70, Score(it, lt), 1e-9)
}

func seed(t *testing.T, s store.Store, its []*domain.ItemizedTransaction, lts []*domain.LedgerTransaction) {
	t.Helper()
	ctx := context.Background()
	for _, lt := range lts {
		require.NoError(t, s.SaveLedgerTransaction(ctx, lt))
	}
	for _, it := range its {
		require.NoError(t, s.SaveItemized(ctx, it))
	}
}

func TestFindMatches_WindowAndOrder(t *testing.T) {
	s := inmemory.NewStore()
	it := receipt("i1", 15, "25.37", "Amazon.com")
	seed(t, s, []*domain.ItemizedTransaction{it}, []*domain.LedgerTransaction{
		ledgerTx("exact", 15, -25370, "Amazon.com"),
		ledgerTx("close", 16, -25370, "AMZN Mktp"),
		ledgerTx("outside-date", 20, -25370, "Amazon.com"),
		ledgerTx("outside-amount", 15, -30000, "Amazon.com"),
		ledgerTx("inflow", 15, 25370, "Amazon.com"),
	})

	m := New(s, DefaultConfig())
	cands, err := m.FindMatches(context.Background(), it)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "exact", cands[0].Ledger.YnabID)
	assert.Equal(t, "close", cands[1].Ledger.YnabID)
	assert.Greater(t, cands[0].Score, cands[1].Score)
}

func TestFindMatches_AmountWindow(t *testing.T) {
	s := inmemory.NewStore()
	it := receipt("i1", 15, "100", "")
	seed(t, s, []*domain.ItemizedTransaction{it}, []*domain.LedgerTransaction{ledgerTx("y", 18, -104000, "")})

	cands, err := New(s, DefaultConfig()).FindMatches(context.Background(), it)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.InDelta(t, 0.40, cands[0].Score, 1e-9)

	strict := DefaultConfig()
	strict.AmountTolerancePercent = decimal.New(1, -2)
	cands, err = New(s, strict).FindMatches(context.Background(), it)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestFindMatches_TiesKeepRetrievalOrder(t *testing.T) {
	s := inmemory.NewStore()
	it := receipt("i1", 15, "10", "")
	seed(t, s, []*domain.ItemizedTransaction{it}, []*domain.LedgerTransaction{
		ledgerTx("b", 15, -10000, ""),
		ledgerTx("a", 15, -10000, ""),
	})
	cands, err := New(s, DefaultConfig()).FindMatches(context.Background(), it)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "a", cands[0].Ledger.YnabID)
	assert.Equal(t, "b", cands[1].Ledger.YnabID)
}

func TestCreateAcceptReject(t *testing.T) {
	ctx := context.Background()
	s := inmemory.NewStore()
	it := receipt("i1", 15, "25.37", "Amazon")
	lt := ledgerTx("y1", 15, -25370, "Amazon")
	seed(t, s, []*domain.ItemizedTransaction{it}, []*domain.LedgerTransaction{lt})

	m := New(s, DefaultConfig())
	fixed := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	match, err := m.CreateMatch(ctx, lt, it, 0.9, domain.MatchMethodManual, "")
	require.NoError(t, err)
	assert.Equal(t, "match_y1_i1", match.ID)
	assert.Equal(t, domain.MatchCandidate, match.Status)

	rejected, err := m.RejectMatch(ctx, match.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchRejected, rejected.Status)
	require.NotNil(t, rejected.ReviewedAt)
	assert.Equal(t, fixed, *rejected.ReviewedAt)

	stored, err := s.GetItemized(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchStatusUnmatched, stored.MatchStatus, "reject leaves itemized alone")
	assert.Nil(t, stored.Ledger)

	accepted, err := m.AcceptMatch(ctx, match.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchAccepted, accepted.Status)
	assert.Equal(t, "alice", accepted.ReviewedBy)

	stored, err = s.GetItemized(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchStatusMatched, stored.MatchStatus)
	require.NotNil(t, stored.Ledger)
	assert.Equal(t, "y1", stored.Ledger.YnabID)
	require.NotNil(t, stored.MatchConfidence)
	assert.Equal(t, 0.9, *stored.MatchConfidence)
	assert.Equal(t, domain.MatchMethodManual, stored.MatchMethod)
}

func TestCreateMatch_WithReviewerAccepts(t *testing.T) {
	ctx := context.Background()
	s := inmemory.NewStore()
	it := receipt("i1", 15, "25.37", "Amazon")
	lt := ledgerTx("y1", 15, -25370, "Amazon")
	seed(t, s, []*domain.ItemizedTransaction{it}, []*domain.LedgerTransaction{lt})

	match, err := New(s, DefaultConfig()).CreateMatch(ctx, lt, it, 1, domain.MatchMethodManual, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchAccepted, match.Status)

	stored, err := s.GetItemized(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchStatusMatched, stored.MatchStatus)
}

func TestCreateMatch_KeepsReviewedDecision(t *testing.T) {
	tests := []struct {
		name   string
		review func(m *Matcher, match *domain.TransactionMatch) error
		status domain.MatchRecordStatus
	}{
		{
			name: "accepted",
			review: func(m *Matcher, match *domain.TransactionMatch) error {
				_, err := m.AcceptMatch(context.Background(), match.ID, "alice")
				return err
			},
			status: domain.MatchAccepted,
		},
		{
			name: "rejected",
			review: func(m *Matcher, match *domain.TransactionMatch) error {
				_, err := m.RejectMatch(context.Background(), match.ID, "alice")
				return err
			},
			status: domain.MatchRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := inmemory.NewStore()
			it := receipt("i1", 15, "25.37", "Amazon")
			lt := ledgerTx("y1", 15, -25370, "Amazon")
			seed(t, s, []*domain.ItemizedTransaction{it}, []*domain.LedgerTransaction{lt})
			m := New(s, DefaultConfig())

			match, err := m.CreateMatch(ctx, lt, it, 0.9, domain.MatchMethodFuzzy, "")
			require.NoError(t, err)
			require.NoError(t, tt.review(m, match))

			again, err := m.CreateMatch(ctx, lt, it, 0.5, domain.MatchMethodFuzzy, "")
			require.NoError(t, err)
			assert.Equal(t, tt.status, again.Status)
			assert.Equal(t, "alice", again.ReviewedBy)

			stored, err := s.GetMatch(ctx, match.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, stored.Status)
			assert.Equal(t, "alice", stored.ReviewedBy)
			assert.NotNil(t, stored.ReviewedAt)
			assert.Equal(t, 0.9, stored.Score)
		})
	}
}

func TestCreateMatch_AfterAutoMatchLeavesLedgerMatched(t *testing.T) {
	ctx := context.Background()
	s := inmemory.NewStore()
	it := receipt("i1", 15, "25.37", "Amazon")
	lt := ledgerTx("y1", 15, -25370, "Amazon")
	seed(t, s, []*domain.ItemizedTransaction{it}, []*domain.LedgerTransaction{lt})
	m := New(s, DefaultConfig())

	accepted, err := m.AutoMatch(ctx)
	require.NoError(t, err)
	require.Len(t, accepted, 1)

	_, err = m.CreateMatch(ctx, lt, it, accepted[0].Score, domain.MatchMethodFuzzy, "")
	require.NoError(t, err)

	stored, err := s.GetMatch(ctx, accepted[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchAccepted, stored.Status)
	assert.Equal(t, SystemReviewer, stored.ReviewedBy)

	unmatched, err := m.UnmatchedLedger(ctx)
	require.NoError(t, err)
	assert.Empty(t, unmatched)
}

func TestCreateMatch_RejectsBadInput(t *testing.T) {
	m := New(inmemory.NewStore(), DefaultConfig())
	it := receipt("i1", 15, "1", "")
	lt := ledgerTx("y1", 15, -1000, "")
	_, err := m.CreateMatch(context.Background(), lt, it, 1.5, domain.MatchMethodManual, "")
	assert.Error(t, err)
	_, err = m.CreateMatch(context.Background(), lt, it, 0.5, "guess", "")
	assert.Error(t, err)
}

func TestAcceptMatch_NotFound(t *testing.T) {
	_, err := New(inmemory.NewStore(), DefaultConfig()).AcceptMatch(context.Background(), "nope", "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMarkNoMatch(t *testing.T) {
	ctx := context.Background()
	s := inmemory.NewStore()
	seed(t, s, []*domain.ItemizedTransaction{receipt("i1", 15, "5", "")}, nil)

	it, err := New(s, DefaultConfig()).MarkNoMatch(ctx, "i1", "cash purchase")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchStatusNoMatch, it.MatchStatus)

	unmatched, err := s.ListUnmatchedItemized(ctx)
	require.NoError(t, err)
	assert.Empty(t, unmatched)
}

func TestAutoMatch(t *testing.T) {
	ctx := context.Background()
	s := inmemory.NewStore()
	seed(t, s,
		[]*domain.ItemizedTransaction{
			receipt("good", 15, "25.37", "Amazon"),
			receipt("weak", 15, "50", "Corner Shop"),
			receipt("none", 15, "999", "Nowhere"),
		},
		[]*domain.LedgerTransaction{
			ledgerTx("y-good", 15, -25370, "Amazon"),
			ledgerTx("y-weak", 17, -52000, "Market"),
		},
	)

	m := New(s, DefaultConfig())
	matches, err := m.AutoMatch(ctx)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "match_y-good_good", matches[0].ID)
	assert.Equal(t, domain.MatchMethodAutomatic, matches[0].Method)
	assert.Equal(t, SystemReviewer, matches[0].ReviewedBy)

	unmatched, err := m.UnmatchedItemized(ctx)
	require.NoError(t, err)
	require.Len(t, unmatched, 2)

	unmatchedLedger, err := m.UnmatchedLedger(ctx)
	require.NoError(t, err)
	require.Len(t, unmatchedLedger, 1)
	assert.Equal(t, "y-weak", unmatchedLedger[0].YnabID)

	again, err := m.AutoMatch(ctx)
	require.NoError(t, err)
	assert.Empty(t, again, "second sweep finds nothing new")
}
