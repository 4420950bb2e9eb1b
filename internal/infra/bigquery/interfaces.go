// Package bigquery exports itemized transactions to a BigQuery dataset for
// reporting.
package bigquery

import (
	"context"

	"github.com/dvloznov/ynab-itemized/internal/domain"
)

// Exporter is the warehouse surface used by the CLI and worker.
type Exporter interface {
	// EnsureTables creates the export tables when they are missing.
	EnsureTables(ctx context.Context) error

	// Export appends a snapshot of the given transactions and their items.
	Export(ctx context.Context, txs []*domain.ItemizedTransaction) (ExportResult, error)

	// QueryMatchSummary counts current snapshots per match status.
	QueryMatchSummary(ctx context.Context) ([]*MatchSummaryRow, error)

	Close() error
}

var _ Exporter = (*Warehouse)(nil)
