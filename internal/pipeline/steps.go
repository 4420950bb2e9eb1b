package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/gcs"
	"github.com/dvloznov/ynab-itemized/internal/ingest"
	"github.com/dvloznov/ynab-itemized/internal/logger"
	"github.com/dvloznov/ynab-itemized/internal/store"
)

// ErrCancelled is returned when the confirmation callback declines.
var ErrCancelled = errors.New("import cancelled")

// PipelineStep represents a single step in the import pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Source       string
	Raw          []byte
	Transactions []*domain.ItemizedTransaction
	// Warnings holds validation messages keyed by source transaction id.
	Warnings map[string][]string
	Result   ImportResult
}

// Step 1: FetchSourceStep reads a local file or a gs:// object.
type FetchSourceStep struct {
	Storage StorageService
}

func (s *FetchSourceStep) Execute(ctx context.Context, state *PipelineState) error {
	if gcs.IsURI(state.Source) {
		if s.Storage == nil {
			return fmt.Errorf("fetching %s: no storage configured", state.Source)
		}
		data, err := s.Storage.Fetch(ctx, state.Source)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", state.Source, err)
		}
		state.Raw = data
		return nil
	}

	data, err := os.ReadFile(state.Source)
	if err != nil {
		return fmt.Errorf("reading %s: %w", state.Source, err)
	}
	state.Raw = data
	return nil
}

// Step 2: ParseStep runs the integration's parser over the raw bytes.
type ParseStep struct {
	Integration ingest.Integration
}

func (s *ParseStep) Execute(ctx context.Context, state *PipelineState) error {
	txs, err := s.Integration.Parse(ctx, bytes.NewReader(state.Raw))
	if err != nil {
		return err
	}
	state.Transactions = txs
	state.Result.Parsed = len(txs)
	for _, tx := range txs {
		state.Result.Items += len(tx.Items)
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("store", s.Integration.StoreName()).
		Int("transactions", state.Result.Parsed).
		Int("items", state.Result.Items).
		Msg("Parsed source")
	return nil
}

// Step 3: ValidateStep collects soft validation warnings. It never fails
// the import.
type ValidateStep struct{}

func (s *ValidateStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	state.Warnings = make(map[string][]string)
	for _, tx := range state.Transactions {
		warnings := Warnings(tx)
		if len(warnings) == 0 {
			continue
		}
		state.Warnings[tx.SourceTransactionID] = warnings
		log.Warn().
			Str("order_id", tx.SourceTransactionID).
			Strs("warnings", warnings).
			Msg("Transaction has validation warnings")
	}
	return nil
}

// Warnings returns the per-item validation messages of tx, prefixed with
// the item name.
func Warnings(tx *domain.ItemizedTransaction) []string {
	var out []string
	for _, item := range tx.Items {
		if ok, msgs := domain.ValidateItem(item); !ok {
			for _, m := range msgs {
				out = append(out, fmt.Sprintf("%s: %s", domain.TruncateString(item.Name, 40), m))
			}
		}
	}
	return out
}

// Step 4: ConfirmStep asks the caller whether to write. A nil callback
// always proceeds.
type ConfirmStep struct {
	Confirm func(txs []*domain.ItemizedTransaction) bool
}

func (s *ConfirmStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Confirm != nil && !s.Confirm(state.Transactions) {
		return ErrCancelled
	}
	return nil
}

// Step 5: UpsertStep saves every transaction by its natural key. A
// re-import updates the stored row in place and keeps its match state.
// Failures are logged and counted; the rest of the batch continues.
type UpsertStep struct {
	Store store.Store
}

func (s *UpsertStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	for _, tx := range state.Transactions {
		updated, err := s.upsert(ctx, tx)
		if err != nil {
			state.Result.Failed++
			log.Warn().
				Err(err).
				Str("order_id", tx.SourceTransactionID).
				Msg("Failed to import transaction")
			continue
		}
		if updated {
			state.Result.Updated++
		} else {
			state.Result.Imported++
		}
	}
	return nil
}

func (s *UpsertStep) upsert(ctx context.Context, tx *domain.ItemizedTransaction) (bool, error) {
	updated := false
	err := s.Store.WithinTx(ctx, func(ctx context.Context, st store.Store) error {
		if tx.Source != "" && tx.SourceTransactionID != "" {
			existing, err := st.GetItemizedBySource(ctx, tx.Source, tx.SourceTransactionID)
			switch {
			case err == nil:
				keepReviewState(tx, existing)
				updated = true
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}
		return st.SaveItemized(ctx, tx)
	})
	return updated, err
}

func keepReviewState(tx, existing *domain.ItemizedTransaction) {
	tx.ID = existing.ID
	tx.CreatedAt = existing.CreatedAt
	tx.Ledger = existing.Ledger
	tx.MatchStatus = existing.MatchStatus
	tx.MatchConfidence = existing.MatchConfidence
	tx.MatchMethod = existing.MatchMethod
	tx.MatchNotes = existing.MatchNotes
	tx.SubtransactionsSyncedAt = existing.SubtransactionsSyncedAt
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}
