// Package inmemory is a map-backed store.Store used by tests and by the CLI
// when no DATABASE_URL is configured. Data is lost when the process exits.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/store"
	"github.com/google/uuid"
)

type itemizedRecord struct {
	it       *domain.ItemizedTransaction // Ledger is always nil here
	ledgerID string
}

type tables struct {
	ledger   map[string]*domain.LedgerTransaction
	itemized map[string]*itemizedRecord
	matches  map[string]*domain.TransactionMatch
}

func newTables() *tables {
	return &tables{
		ledger:   make(map[string]*domain.LedgerTransaction),
		itemized: make(map[string]*itemizedRecord),
		matches:  make(map[string]*domain.TransactionMatch),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.ledger {
		c.ledger[k] = v.Clone()
	}
	for k, v := range t.itemized {
		c.itemized[k] = &itemizedRecord{it: v.it.Clone(), ledgerID: v.ledgerID}
	}
	for k, v := range t.matches {
		c.matches[k] = v.Clone()
	}
	return c
}

type db struct {
	mu   sync.RWMutex
	unit sync.Mutex // held for the whole of a unit of work
	data *tables
	now  func() time.Time
}

// Store is safe for concurrent use. Values are copied on the way in and on
// the way out, so callers never share memory with the store.
type Store struct {
	db   *db
	work *tables // private copy while inside a unit of work
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{db: &db{data: newTables(), now: func() time.Time { return time.Now().UTC() }}}
}

// SetClock overrides the time source. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.db.now = now
}

// write runs fn under the write lock. Outside a unit of work it also waits
// for any running unit to finish, so a commit never discards it.
func (s *Store) write(fn func(t *tables) error) error {
	if s.work != nil {
		return fn(s.work)
	}
	s.db.unit.Lock()
	defer s.db.unit.Unlock()
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return fn(s.db.data)
}

// read sees committed data only, unless it runs inside a unit of work.
func (s *Store) read(fn func(t *tables) error) error {
	if s.work != nil {
		return fn(s.work)
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return fn(s.db.data)
}

// WithinTx implements store.Store. fn works on a copy of the data that
// replaces the committed tables only when fn succeeds. Nested calls join the
// outer unit.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, s store.Store) error) error {
	if s.work != nil {
		return fn(ctx, s)
	}

	s.db.unit.Lock()
	defer s.db.unit.Unlock()

	s.db.mu.RLock()
	work := s.db.data.clone()
	s.db.mu.RUnlock()

	if err := fn(ctx, &Store{db: s.db, work: work}); err != nil {
		return err
	}

	s.db.mu.Lock()
	s.db.data = work
	s.db.mu.Unlock()
	return nil
}

// LockSweep implements store.Store. Units of work are already serialized,
// so holding one is holding the sweep lock.
func (s *Store) LockSweep(ctx context.Context) error {
	return nil
}

func (s *Store) Close() {}

// SaveLedgerTransaction implements store.Store. It upserts by ynab id.
func (s *Store) SaveLedgerTransaction(ctx context.Context, tx *domain.LedgerTransaction) error {
	if tx.YnabID == "" {
		return fmt.Errorf("SaveLedgerTransaction: ynab id is required")
	}
	return s.write(func(t *tables) error {
		s.upsertLedger(t, tx)
		return nil
	})
}

func (s *Store) upsertLedger(t *tables, tx *domain.LedgerTransaction) {
	now := s.db.now()
	if existing, ok := t.ledger[tx.YnabID]; ok {
		tx.ID = existing.ID
		tx.CreatedAt = existing.CreatedAt
		tx.UpdatedAt = &now
	} else {
		if tx.ID == "" {
			tx.ID = uuid.NewString()
		}
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = now
		}
	}
	t.ledger[tx.YnabID] = tx.Clone()
}

// GetLedgerTransaction implements store.Store.
func (s *Store) GetLedgerTransaction(ctx context.Context, ynabID string) (*domain.LedgerTransaction, error) {
	var out *domain.LedgerTransaction
	err := s.read(func(t *tables) error {
		tx, ok := t.ledger[ynabID]
		if !ok {
			return fmt.Errorf("ledger transaction %s: %w", ynabID, store.ErrNotFound)
		}
		out = tx.Clone()
		return nil
	})
	return out, err
}

// ListLedgerTransactions implements store.Store.
func (s *Store) ListLedgerTransactions(ctx context.Context, f store.LedgerFilter) ([]*domain.LedgerTransaction, error) {
	var out []*domain.LedgerTransaction
	_ = s.read(func(t *tables) error {
		for _, tx := range t.ledger {
			if !inRange(tx.Date, f.From, f.To) {
				continue
			}
			if f.MinAmount != nil && tx.Amount < *f.MinAmount {
				continue
			}
			if f.MaxAmount != nil && tx.Amount > *f.MaxAmount {
				continue
			}
			if f.AccountID != "" && tx.AccountID != f.AccountID {
				continue
			}
			out = append(out, tx.Clone())
		}
		return nil
	})
	sortLedger(out)
	return out, nil
}

// ListUnmatchedLedger implements store.Store.
func (s *Store) ListUnmatchedLedger(ctx context.Context) ([]*domain.LedgerTransaction, error) {
	var out []*domain.LedgerTransaction
	_ = s.read(func(t *tables) error {
		accepted := make(map[string]bool)
		for _, m := range t.matches {
			if m.Status == domain.MatchAccepted {
				accepted[m.LedgerID] = true
			}
		}
		for id, tx := range t.ledger {
			if !accepted[id] {
				out = append(out, tx.Clone())
			}
		}
		return nil
	})
	sortLedger(out)
	return out, nil
}

// SaveItemized implements store.Store.
func (s *Store) SaveItemized(ctx context.Context, it *domain.ItemizedTransaction) error {
	if err := it.Validate(); err != nil {
		return fmt.Errorf("SaveItemized: %w", err)
	}
	return s.write(func(t *tables) error {
		now := s.db.now()
		ledgerID := ""
		if it.Ledger != nil {
			if it.Ledger.YnabID == "" {
				return fmt.Errorf("SaveItemized: linked ledger transaction has no ynab id")
			}
			s.upsertLedger(t, it.Ledger)
			ledgerID = it.Ledger.YnabID
		}

		existing := t.itemized[it.ID]
		if existing == nil && it.ID == "" && it.Source != "" && it.SourceTransactionID != "" {
			existing = findBySource(t, it.Source, it.SourceTransactionID)
		}
		if existing != nil {
			it.ID = existing.it.ID
			it.CreatedAt = existing.it.CreatedAt
			it.UpdatedAt = &now
		} else {
			if it.ID == "" {
				it.ID = uuid.NewString()
			}
			if it.CreatedAt.IsZero() {
				it.CreatedAt = now
			}
		}
		for i := range it.Items {
			if it.Items[i].ID == "" {
				it.Items[i].ID = uuid.NewString()
			}
		}

		c := it.Clone()
		c.Ledger = nil
		t.itemized[it.ID] = &itemizedRecord{it: c, ledgerID: ledgerID}
		return nil
	})
}

func findBySource(t *tables, source, sourceID string) *itemizedRecord {
	for _, rec := range t.itemized {
		if rec.it.Source == source && rec.it.SourceTransactionID == sourceID {
			return rec
		}
	}
	return nil
}

func hydrate(t *tables, rec *itemizedRecord) *domain.ItemizedTransaction {
	it := rec.it.Clone()
	if rec.ledgerID != "" {
		it.Ledger = t.ledger[rec.ledgerID].Clone()
	}
	return it
}

// GetItemized implements store.Store.
func (s *Store) GetItemized(ctx context.Context, id string) (*domain.ItemizedTransaction, error) {
	var out *domain.ItemizedTransaction
	err := s.read(func(t *tables) error {
		rec, ok := t.itemized[id]
		if !ok {
			return fmt.Errorf("itemized transaction %s: %w", id, store.ErrNotFound)
		}
		out = hydrate(t, rec)
		return nil
	})
	return out, err
}

// GetItemizedByLedgerID implements store.Store.
func (s *Store) GetItemizedByLedgerID(ctx context.Context, ynabID string) (*domain.ItemizedTransaction, error) {
	var out *domain.ItemizedTransaction
	err := s.read(func(t *tables) error {
		for _, rec := range sortedRecords(t) {
			if rec.ledgerID == ynabID {
				out = hydrate(t, rec)
				return nil
			}
		}
		return fmt.Errorf("itemized transaction for ledger %s: %w", ynabID, store.ErrNotFound)
	})
	return out, err
}

// GetItemizedBySource implements store.Store.
func (s *Store) GetItemizedBySource(ctx context.Context, source, sourceID string) (*domain.ItemizedTransaction, error) {
	var out *domain.ItemizedTransaction
	err := s.read(func(t *tables) error {
		rec := findBySource(t, source, sourceID)
		if rec == nil {
			return fmt.Errorf("itemized transaction %s/%s: %w", source, sourceID, store.ErrNotFound)
		}
		out = hydrate(t, rec)
		return nil
	})
	return out, err
}

// ListItemized implements store.Store.
func (s *Store) ListItemized(ctx context.Context, f store.ItemizedFilter) ([]*domain.ItemizedTransaction, error) {
	var out []*domain.ItemizedTransaction
	_ = s.read(func(t *tables) error {
		for _, rec := range sortedRecords(t) {
			if f.Status != "" && rec.it.MatchStatus != f.Status {
				continue
			}
			if !inRange(rec.it.TransactionDate, f.From, f.To) {
				continue
			}
			out = append(out, hydrate(t, rec))
		}
		return nil
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*domain.ItemizedTransaction{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

// ListUnmatchedItemized implements store.Store.
func (s *Store) ListUnmatchedItemized(ctx context.Context) ([]*domain.ItemizedTransaction, error) {
	return s.ListItemized(ctx, store.ItemizedFilter{Status: domain.MatchStatusUnmatched})
}

// DeleteItemized implements store.Store.
func (s *Store) DeleteItemized(ctx context.Context, id string) (bool, error) {
	found := false
	err := s.write(func(t *tables) error {
		if _, ok := t.itemized[id]; !ok {
			return nil
		}
		found = true
		deleteItemized(t, id)
		return nil
	})
	return found, err
}

// DeleteItemizedByLedgerID implements store.Store.
func (s *Store) DeleteItemizedByLedgerID(ctx context.Context, ynabID string) (bool, error) {
	found := false
	err := s.write(func(t *tables) error {
		for id, rec := range t.itemized {
			if rec.ledgerID == ynabID {
				found = true
				deleteItemized(t, id)
			}
		}
		return nil
	})
	return found, err
}

func deleteItemized(t *tables, id string) {
	delete(t.itemized, id)
	for mid, m := range t.matches {
		if m.ItemizedID == id {
			delete(t.matches, mid)
		}
	}
}

// SaveMatch implements store.Store. Both ends of the match must exist.
func (s *Store) SaveMatch(ctx context.Context, m *domain.TransactionMatch) error {
	if m.ID == "" {
		return fmt.Errorf("SaveMatch: match ID is required")
	}
	return s.write(func(t *tables) error {
		if _, ok := t.ledger[m.LedgerID]; !ok {
			return fmt.Errorf("SaveMatch: ledger transaction %s: %w", m.LedgerID, store.ErrNotFound)
		}
		if _, ok := t.itemized[m.ItemizedID]; !ok {
			return fmt.Errorf("SaveMatch: itemized transaction %s: %w", m.ItemizedID, store.ErrNotFound)
		}
		if existing, ok := t.matches[m.ID]; ok {
			m.CreatedAt = existing.CreatedAt
		} else if m.CreatedAt.IsZero() {
			m.CreatedAt = s.db.now()
		}
		t.matches[m.ID] = m.Clone()
		return nil
	})
}

// GetMatch implements store.Store.
func (s *Store) GetMatch(ctx context.Context, id string) (*domain.TransactionMatch, error) {
	var out *domain.TransactionMatch
	err := s.read(func(t *tables) error {
		m, ok := t.matches[id]
		if !ok {
			return fmt.Errorf("match %s: %w", id, store.ErrNotFound)
		}
		out = m.Clone()
		return nil
	})
	return out, err
}

// ListMatches implements store.Store, highest score first.
func (s *Store) ListMatches(ctx context.Context, itemizedID string) ([]*domain.TransactionMatch, error) {
	var out []*domain.TransactionMatch
	_ = s.read(func(t *tables) error {
		for _, m := range t.matches {
			if m.ItemizedID == itemizedID {
				out = append(out, m.Clone())
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// MarkSubtransactionsSynced implements store.Store.
func (s *Store) MarkSubtransactionsSynced(ctx context.Context, itemizedID string) error {
	return s.write(func(t *tables) error {
		rec, ok := t.itemized[itemizedID]
		if !ok {
			return fmt.Errorf("itemized transaction %s: %w", itemizedID, store.ErrNotFound)
		}
		now := s.db.now()
		rec.it.SubtransactionsSyncedAt = &now
		rec.it.UpdatedAt = &now
		return nil
	})
}

func inRange(d, from, to civil.Date) bool {
	if !from.IsZero() && d.Before(from) {
		return false
	}
	if !to.IsZero() && d.After(to) {
		return false
	}
	return true
}

func sortLedger(txs []*domain.LedgerTransaction) {
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].Date != txs[j].Date {
			return txs[i].Date.Before(txs[j].Date)
		}
		return txs[i].YnabID < txs[j].YnabID
	})
}

func sortedRecords(t *tables) []*itemizedRecord {
	recs := make([]*itemizedRecord, 0, len(t.itemized))
	for _, rec := range t.itemized {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i].it, recs[j].it
		if a.TransactionDate != b.TransactionDate {
			return a.TransactionDate.Before(b.TransactionDate)
		}
		return a.ID < b.ID
	})
	return recs
}

var _ store.Store = (*Store)(nil)
