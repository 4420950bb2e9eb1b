package splits

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/ledger"
	"github.com/dvloznov/ynab-itemized/internal/logger"
	"github.com/dvloznov/ynab-itemized/internal/store"
)

// ErrNotLinked is returned when an itemized transaction has no ledger
// transaction to split.
var ErrNotLinked = errors.New("transaction not linked to YNAB transaction")

// Ledger is the part of the budgeting-service client the service needs.
type Ledger interface {
	GetTransaction(ctx context.Context, id string) (*domain.LedgerTransaction, error)
	UpdateTransactionWithSubtransactions(ctx context.Context, tx *domain.LedgerTransaction) (*domain.LedgerTransaction, error)
	GetCategories(ctx context.Context) ([]ledger.Category, error)
}

// Categorizer suggests a category id for each item name.
type Categorizer interface {
	SuggestCategories(ctx context.Context, names []string, categories []ledger.Category) (map[string]string, error)
}

// Service previews, pushes, pulls and removes splits.
type Service struct {
	ledger      Ledger
	store       store.Store
	categorizer Categorizer
}

// NewService creates a Service. categorizer may be nil.
func NewService(l Ledger, s store.Store, categorizer Categorizer) *Service {
	return &Service{ledger: l, store: s, categorizer: categorizer}
}

// SyncResult describes what Sync did or would do.
type SyncResult struct {
	Itemized        *domain.ItemizedTransaction
	Subtransactions []domain.Subtransaction
	Updated         *domain.LedgerTransaction
	DryRun          bool
}

// Preview builds the splits for a linked itemized transaction without
// touching the ledger.
func (s *Service) Preview(ctx context.Context, itemizedID string, opts Options) (*domain.ItemizedTransaction, []domain.Subtransaction, error) {
	it, err := s.store.GetItemized(ctx, itemizedID)
	if err != nil {
		return nil, nil, err
	}
	if it.Ledger == nil {
		return it, nil, ErrNotLinked
	}
	subs, err := Build(ctx, it, opts)
	if err != nil {
		return it, nil, err
	}
	return it, subs, nil
}

// Sync builds the splits, attaches them to a copy of the linked ledger
// transaction and pushes it. The echoed transaction, carrying server split
// ids, is stored together with the sync timestamp. A dry run stops after
// building.
func (s *Service) Sync(ctx context.Context, itemizedID string, opts Options, categorize, dryRun bool) (*SyncResult, error) {
	log := logger.FromContext(ctx).With().Str("itemized_id", itemizedID).Logger()

	it, subs, err := s.Preview(ctx, itemizedID, opts)
	if err != nil {
		return nil, err
	}
	res := &SyncResult{Itemized: it, Subtransactions: subs, DryRun: dryRun}

	if categorize && s.categorizer != nil {
		s.applyCategories(ctx, subs)
	}

	if dryRun {
		log.Info().Int("subtransactions", len(subs)).Msg("DRY RUN: would create subtransactions")
		return res, nil
	}

	tx := it.Ledger.Clone()
	tx.Subtransactions = subs
	tx.CategoryID = nil

	updated, err := s.ledger.UpdateTransactionWithSubtransactions(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("Sync: updating YNAB transaction %s: %w", tx.YnabID, err)
	}
	res.Updated = updated

	err = s.store.WithinTx(ctx, func(ctx context.Context, st store.Store) error {
		if err := st.SaveLedgerTransaction(ctx, updated); err != nil {
			return err
		}
		return st.MarkSubtransactionsSynced(ctx, it.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("Sync: saving synced transaction: %w", err)
	}

	log.Info().
		Str("ynab_id", updated.YnabID).
		Int("subtransactions", len(updated.Subtransactions)).
		Msg("Created subtransactions")
	return res, nil
}

func (s *Service) applyCategories(ctx context.Context, subs []domain.Subtransaction) {
	log := logger.FromContext(ctx)

	categories, err := s.ledger.GetCategories(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not load categories, leaving splits uncategorized")
		return
	}
	names := make([]string, 0, len(subs))
	for _, st := range subs {
		names = append(names, st.Memo)
	}
	suggestions, err := s.categorizer.SuggestCategories(ctx, names, categories)
	if err != nil {
		log.Warn().Err(err).Msg("Categorization failed, leaving splits uncategorized")
		return
	}

	byID := make(map[string]ledger.Category, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}
	for i := range subs {
		id, ok := suggestions[subs[i].Memo]
		if !ok {
			continue
		}
		cat, known := byID[id]
		if !known {
			continue
		}
		subs[i].CategoryID = domain.StringPtr(cat.ID)
		subs[i].CategoryName = cat.Name
	}
}

// Pull fetches a ledger transaction with its splits and stores it locally.
func (s *Service) Pull(ctx context.Context, ynabID string) (*domain.LedgerTransaction, error) {
	tx, err := s.ledger.GetTransaction(ctx, ynabID)
	if err != nil {
		return nil, fmt.Errorf("Pull: %w", err)
	}
	if tx == nil {
		return nil, fmt.Errorf("Pull: transaction %s not found in YNAB: %w", ynabID, store.ErrNotFound)
	}
	if err := s.store.SaveLedgerTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("Pull: saving: %w", err)
	}
	return tx, nil
}

// Remove clears a ledger transaction's splits. It returns the transaction
// as fetched and whether anything was removed.
func (s *Service) Remove(ctx context.Context, ynabID string) (*domain.LedgerTransaction, bool, error) {
	tx, err := s.ledger.GetTransaction(ctx, ynabID)
	if err != nil {
		return nil, false, fmt.Errorf("Remove: %w", err)
	}
	if tx == nil {
		return nil, false, fmt.Errorf("Remove: transaction %s not found in YNAB: %w", ynabID, store.ErrNotFound)
	}
	if !tx.HasSubtransactions() {
		return tx, false, nil
	}

	cleared := tx.Clone()
	cleared.Subtransactions = nil
	updated, err := s.ledger.UpdateTransactionWithSubtransactions(ctx, cleared)
	if err != nil {
		return nil, false, fmt.Errorf("Remove: %w", err)
	}
	if err := s.store.SaveLedgerTransaction(ctx, updated); err != nil {
		return nil, false, fmt.Errorf("Remove: saving: %w", err)
	}
	return tx, true, nil
}
