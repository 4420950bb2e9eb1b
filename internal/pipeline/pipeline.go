// Package pipeline imports receipt exports into the store and pulls ledger
// transactions from the budgeting service.
package pipeline

import (
	"context"

	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/ingest"
	"github.com/dvloznov/ynab-itemized/internal/store"
)

// ImportOptions controls Import.
type ImportOptions struct {
	// DryRun stops after parsing and validation.
	DryRun bool
	// Confirm is asked before anything is written. Nil means yes.
	Confirm func(txs []*domain.ItemizedTransaction) bool
	// Storage resolves gs:// sources.
	Storage StorageService
}

// ImportResult counts what an import did.
type ImportResult struct {
	Parsed   int
	Items    int
	Imported int
	Updated  int
	Failed   int

	Transactions []*domain.ItemizedTransaction
	Warnings     map[string][]string
}

// NewImportPipeline builds the standard import: fetch, parse, validate and,
// unless dry-running, confirm and upsert.
func NewImportPipeline(integration ingest.Integration, s store.Store, opts ImportOptions) *Pipeline {
	steps := []PipelineStep{
		&FetchSourceStep{Storage: opts.Storage},
		&ParseStep{Integration: integration},
		&ValidateStep{},
	}
	if !opts.DryRun {
		steps = append(steps,
			&ConfirmStep{Confirm: opts.Confirm},
			&UpsertStep{Store: s},
		)
	}
	return NewPipeline(steps...)
}

// Import reads source (a local path or gs:// URI), parses it with
// integration and saves the result. The returned result is filled in as
// far as the pipeline got, even on error.
func Import(ctx context.Context, integration ingest.Integration, source string, s store.Store, opts ImportOptions) (ImportResult, error) {
	state := &PipelineState{Source: source}
	err := NewImportPipeline(integration, s, opts).Execute(ctx, state)

	res := state.Result
	res.Transactions = state.Transactions
	res.Warnings = state.Warnings
	return res, err
}
