package pipeline

import (
	"context"

	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/ledger"
)

// StorageService fetches gs:// sources. Implemented by gcs.Client.
type StorageService interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// LedgerSource lists budgeting-service transactions. Implemented by
// ledger.Client.
type LedgerSource interface {
	GetTransactions(ctx context.Context, q ledger.TransactionsQuery) ([]*domain.LedgerTransaction, error)
}
