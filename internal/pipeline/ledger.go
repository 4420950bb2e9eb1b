package pipeline

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ynab-itemized/internal/ledger"
	"github.com/dvloznov/ynab-itemized/internal/logger"
	"github.com/dvloznov/ynab-itemized/internal/store"
)

// PullResult counts what PullLedger did.
type PullResult struct {
	Fetched int
	Saved   int
	Failed  int
}

// PullLedger fetches ledger transactions since the given date and mirrors
// them into the store. A transaction that fails to save is logged and
// skipped.
func PullLedger(ctx context.Context, src LedgerSource, s store.Store, since civil.Date, accountID string) (PullResult, error) {
	log := logger.FromContext(ctx)

	txs, err := src.GetTransactions(ctx, ledger.TransactionsQuery{AccountID: accountID, SinceDate: since})
	if err != nil {
		return PullResult{}, fmt.Errorf("PullLedger: fetching transactions: %w", err)
	}

	res := PullResult{Fetched: len(txs)}
	for _, tx := range txs {
		if err := s.SaveLedgerTransaction(ctx, tx); err != nil {
			res.Failed++
			log.Warn().Err(err).Str("ynab_id", tx.YnabID).Msg("Failed to save transaction")
			continue
		}
		res.Saved++
	}

	log.Info().
		Int("fetched", res.Fetched).
		Int("saved", res.Saved).
		Int("failed", res.Failed).
		Str("since", since.String()).
		Msg("Pulled ledger transactions")
	return res, nil
}
