// Package matching pairs itemized receipts with ledger transactions and
// records the review decisions on each pairing.
package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/logger"
	"github.com/dvloznov/ynab-itemized/internal/money"
	"github.com/dvloznov/ynab-itemized/internal/store"
	"github.com/shopspring/decimal"
)

// MinCandidateScore is the floor below which candidates are discarded.
const MinCandidateScore = 0.3

// SystemReviewer is recorded on matches accepted by the sweep.
const SystemReviewer = "system"

// Config holds the matcher's tunables.
type Config struct {
	DateToleranceDays      int
	AmountTolerancePercent decimal.Decimal
	ConfidenceThreshold    float64
}

// DefaultConfig returns ±3 days, ±5% and an auto-accept threshold of 0.8.
func DefaultConfig() Config {
	return Config{
		DateToleranceDays:      3,
		AmountTolerancePercent: decimal.New(5, -2),
		ConfidenceThreshold:    0.8,
	}
}

// Candidate is a scored ledger transaction.
type Candidate struct {
	Ledger    *domain.LedgerTransaction
	Score     float64
	Breakdown Breakdown
}

// Matcher finds and records matches against a store.
type Matcher struct {
	store store.Store
	cfg   Config
	now   func() time.Time

	sweepMu sync.Mutex
}

// New creates a Matcher.
func New(s store.Store, cfg Config) *Matcher {
	return &Matcher{
		store: s,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Config returns the matcher's configuration.
func (m *Matcher) Config() Config {
	return m.cfg
}

// FindMatches returns the ledger transactions inside the date and amount
// windows around it that score above MinCandidateScore, best first. Equal
// scores keep the store's retrieval order.
func (m *Matcher) FindMatches(ctx context.Context, it *domain.ItemizedTransaction) ([]Candidate, error) {
	return m.findMatches(ctx, m.store, it)
}

func (m *Matcher) findMatches(ctx context.Context, s store.Store, it *domain.ItemizedTransaction) ([]Candidate, error) {
	log := logger.FromContext(ctx)

	if it.TransactionDate.IsZero() {
		log.Warn().Str("itemized_id", it.ID).Msg("Itemized transaction has no date, skipping candidate search")
		return nil, nil
	}

	amount := matchAmount(it).Abs()
	tolerance := amount.Mul(m.cfg.AmountTolerancePercent)
	minAmount := money.Milliunits(amount.Add(tolerance).Neg().Shift(3).Ceil().IntPart())
	maxAmount := money.Milliunits(amount.Sub(tolerance).Neg().Shift(3).Floor().IntPart())

	ledger, err := s.ListLedgerTransactions(ctx, store.LedgerFilter{
		From:      it.TransactionDate.AddDays(-m.cfg.DateToleranceDays),
		To:        it.TransactionDate.AddDays(m.cfg.DateToleranceDays),
		MinAmount: &minAmount,
		MaxAmount: &maxAmount,
	})
	if err != nil {
		return nil, fmt.Errorf("FindMatches: listing ledger window: %w", err)
	}

	var out []Candidate
	for _, lt := range ledger {
		b := Explain(it, lt)
		if b.Score > MinCandidateScore {
			out = append(out, Candidate{Ledger: lt, Score: b.Score, Breakdown: b})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	log.Debug().
		Str("itemized_id", it.ID).
		Int("window", len(ledger)).
		Int("candidates", len(out)).
		Msg("Scored match candidates")
	return out, nil
}

// CreateMatch records a pairing. Without a reviewer it is a candidate; with
// one it is accepted on the spot, linking the itemized transaction in the
// same unit of work.
func (m *Matcher) CreateMatch(
	ctx context.Context,
	lt *domain.LedgerTransaction,
	it *domain.ItemizedTransaction,
	score float64,
	method domain.MatchMethod,
	reviewedBy string,
) (*domain.TransactionMatch, error) {
	if lt == nil || it == nil {
		return nil, fmt.Errorf("CreateMatch: ledger and itemized transactions are required")
	}
	if !method.Valid() || method == "" {
		return nil, &domain.ValidationError{Field: "match_method", Msg: fmt.Sprintf("unknown match method %q", method)}
	}
	if score < 0 || score > 1 {
		return nil, &domain.ValidationError{Field: "match_score", Msg: "match score must be between 0.0 and 1.0"}
	}

	match := &domain.TransactionMatch{
		ID:         domain.MatchID(lt.YnabID, it.ID),
		LedgerID:   lt.YnabID,
		ItemizedID: it.ID,
		Score:      score,
		Method:     method,
		Criteria:   Explain(it, lt).Criteria(),
		Status:     domain.MatchCandidate,
	}

	err := m.store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
		if reviewedBy != "" {
			return m.accept(ctx, tx, match, reviewedBy)
		}
		existing, err := tx.GetMatch(ctx, match.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		case existing.Status != domain.MatchCandidate:
			// A reviewed decision is never demoted back to a candidate.
			match = existing
			return nil
		}
		return tx.SaveMatch(ctx, match)
	})
	if err != nil {
		return nil, fmt.Errorf("CreateMatch: %w", err)
	}
	return match, nil
}

// AcceptMatch marks the match accepted and links its itemized transaction to
// the ledger transaction with the match's score and method.
func (m *Matcher) AcceptMatch(ctx context.Context, matchID, reviewer string) (*domain.TransactionMatch, error) {
	var match *domain.TransactionMatch
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		match, err = tx.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}
		return m.accept(ctx, tx, match, reviewer)
	})
	if err != nil {
		return nil, fmt.Errorf("AcceptMatch: %w", err)
	}
	return match, nil
}

func (m *Matcher) accept(ctx context.Context, tx store.Store, match *domain.TransactionMatch, reviewer string) error {
	it, err := tx.GetItemized(ctx, match.ItemizedID)
	if err != nil {
		return err
	}
	lt, err := tx.GetLedgerTransaction(ctx, match.LedgerID)
	if err != nil {
		return err
	}

	now := m.now()
	match.Status = domain.MatchAccepted
	match.ReviewedBy = reviewer
	match.ReviewedAt = &now

	it.Ledger = lt
	if err := it.SetMatchStatus(domain.MatchStatusMatched); err != nil {
		return err
	}
	if err := it.SetMatchConfidence(match.Score); err != nil {
		return err
	}
	it.MatchMethod = match.Method

	if err := tx.SaveMatch(ctx, match); err != nil {
		return err
	}
	if err := tx.SaveItemized(ctx, it); err != nil {
		return err
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("match_id", match.ID).
		Str("itemized_id", it.ID).
		Str("ynab_id", lt.YnabID).
		Float64("score", match.Score).
		Str("reviewer", reviewer).
		Msg("Match accepted")
	return nil
}

// RejectMatch marks the match rejected. The itemized transaction is left
// untouched.
func (m *Matcher) RejectMatch(ctx context.Context, matchID, reviewer string) (*domain.TransactionMatch, error) {
	var match *domain.TransactionMatch
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		match, err = tx.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}
		now := m.now()
		match.Status = domain.MatchRejected
		match.ReviewedBy = reviewer
		match.ReviewedAt = &now
		return tx.SaveMatch(ctx, match)
	})
	if err != nil {
		return nil, fmt.Errorf("RejectMatch: %w", err)
	}
	return match, nil
}

// MarkNoMatch records that the receipt has no ledger counterpart.
func (m *Matcher) MarkNoMatch(ctx context.Context, itemizedID, notes string) (*domain.ItemizedTransaction, error) {
	var it *domain.ItemizedTransaction
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		it, err = tx.GetItemized(ctx, itemizedID)
		if err != nil {
			return err
		}
		if err := it.SetMatchStatus(domain.MatchStatusNoMatch); err != nil {
			return err
		}
		it.MatchMethod = domain.MatchMethodManual
		it.MatchNotes = notes
		return tx.SaveItemized(ctx, it)
	})
	if err != nil {
		return nil, fmt.Errorf("MarkNoMatch: %w", err)
	}
	return it, nil
}

// AutoMatch accepts the top candidate of every unmatched itemized
// transaction whose score reaches the confidence threshold. The sweep is a
// single unit of work: either every accepted match is stored or none is.
// Only one sweep runs per store at a time.
func (m *Matcher) AutoMatch(ctx context.Context) ([]*domain.TransactionMatch, error) {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	log := logger.FromContext(ctx)
	var accepted []*domain.TransactionMatch

	err := m.store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
		accepted = accepted[:0]
		if err := tx.LockSweep(ctx); err != nil {
			return fmt.Errorf("taking sweep lock: %w", err)
		}

		unmatched, err := tx.ListUnmatchedItemized(ctx)
		if err != nil {
			return fmt.Errorf("listing unmatched: %w", err)
		}

		for _, it := range unmatched {
			candidates, err := m.findMatches(ctx, tx, it)
			if err != nil {
				return err
			}
			if len(candidates) == 0 || candidates[0].Score < m.cfg.ConfidenceThreshold {
				continue
			}
			top := candidates[0]
			match := &domain.TransactionMatch{
				ID:         domain.MatchID(top.Ledger.YnabID, it.ID),
				LedgerID:   top.Ledger.YnabID,
				ItemizedID: it.ID,
				Score:      top.Score,
				Method:     domain.MatchMethodAutomatic,
				Criteria:   top.Breakdown.Criteria(),
				Status:     domain.MatchCandidate,
			}
			if err := m.accept(ctx, tx, match, SystemReviewer); err != nil {
				return fmt.Errorf("accepting %s: %w", match.ID, err)
			}
			accepted = append(accepted, match)
		}

		log.Info().
			Int("unmatched", len(unmatched)).
			Int("accepted", len(accepted)).
			Float64("threshold", m.cfg.ConfidenceThreshold).
			Msg("Auto-match sweep finished")
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("AutoMatch: %w", err)
	}
	return accepted, nil
}

// UnmatchedItemized lists itemized transactions still awaiting a match.
func (m *Matcher) UnmatchedItemized(ctx context.Context) ([]*domain.ItemizedTransaction, error) {
	return m.store.ListUnmatchedItemized(ctx)
}

// UnmatchedLedger lists ledger transactions with no accepted match.
func (m *Matcher) UnmatchedLedger(ctx context.Context) ([]*domain.LedgerTransaction, error) {
	return m.store.ListUnmatchedLedger(ctx)
}
