// Package store defines the persistence boundary for ledger mirrors,
// itemized transactions and match records.
package store

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/money"
)

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = errors.New("not found")

// LedgerFilter narrows ListLedgerTransactions. Zero fields are ignored.
// Amount bounds are inclusive and apply to the signed amount.
type LedgerFilter struct {
	From      civil.Date
	To        civil.Date
	MinAmount *money.Milliunits
	MaxAmount *money.Milliunits
	AccountID string
}

// ItemizedFilter narrows ListItemized. Zero fields are ignored.
type ItemizedFilter struct {
	Status domain.MatchStatus
	From   civil.Date
	To     civil.Date
	Limit  int
	Offset int
}

// Store is implemented by the postgres and in-memory backends. Results are
// ordered by date, then by id, so callers see a stable retrieval order.
type Store interface {
	SaveLedgerTransaction(ctx context.Context, tx *domain.LedgerTransaction) error
	GetLedgerTransaction(ctx context.Context, ynabID string) (*domain.LedgerTransaction, error)
	ListLedgerTransactions(ctx context.Context, f LedgerFilter) ([]*domain.LedgerTransaction, error)
	// ListUnmatchedLedger returns ledger transactions without an accepted match.
	ListUnmatchedLedger(ctx context.Context) ([]*domain.LedgerTransaction, error)

	// SaveItemized upserts the linked ledger transaction by ynab id, then the
	// itemized transaction by id (or by source and source id when the id is
	// empty), replacing its items wholesale. It assigns missing ids.
	SaveItemized(ctx context.Context, it *domain.ItemizedTransaction) error
	GetItemized(ctx context.Context, id string) (*domain.ItemizedTransaction, error)
	GetItemizedByLedgerID(ctx context.Context, ynabID string) (*domain.ItemizedTransaction, error)
	GetItemizedBySource(ctx context.Context, source, sourceID string) (*domain.ItemizedTransaction, error)
	ListItemized(ctx context.Context, f ItemizedFilter) ([]*domain.ItemizedTransaction, error)
	ListUnmatchedItemized(ctx context.Context) ([]*domain.ItemizedTransaction, error)
	// DeleteItemized reports whether the row existed. Items and matches go
	// with it.
	DeleteItemized(ctx context.Context, id string) (bool, error)
	DeleteItemizedByLedgerID(ctx context.Context, ynabID string) (bool, error)

	SaveMatch(ctx context.Context, m *domain.TransactionMatch) error
	GetMatch(ctx context.Context, id string) (*domain.TransactionMatch, error)
	ListMatches(ctx context.Context, itemizedID string) ([]*domain.TransactionMatch, error)

	// MarkSubtransactionsSynced stamps the itemized transaction's sync time.
	MarkSubtransactionsSynced(ctx context.Context, itemizedID string) error

	// WithinTx runs fn in a unit of work: every write made through the Store
	// handed to fn commits together or not at all.
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
	// LockSweep takes the store-wide sweep lock. Inside WithinTx the lock is
	// held until the unit of work ends.
	LockSweep(ctx context.Context) error

	Close()
}
