package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/logger"
	"google.golang.org/api/iterator"
)

const (
	itemizedTable = "itemized_transactions"
	itemsTable    = "itemized_items"

	// Streaming inserts are capped per request.
	insertBatchSize = 500
)

// ExportResult counts what Export sent.
type ExportResult struct {
	Transactions int
	Items        int
}

// Warehouse writes itemized snapshots into one BigQuery dataset.
type Warehouse struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	now       func() time.Time
}

// NewWarehouse opens a client for projectID.
func NewWarehouse(ctx context.Context, projectID, datasetID string) (*Warehouse, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewWarehouse: creating client: %w", err)
	}
	return NewWarehouseWithClient(client, projectID, datasetID), nil
}

// NewWarehouseWithClient wraps an existing client.
func NewWarehouseWithClient(client *bigquery.Client, projectID, datasetID string) *Warehouse {
	return &Warehouse{client: client, projectID: projectID, datasetID: datasetID, now: time.Now}
}

// Close closes the BigQuery client connection.
func (w *Warehouse) Close() error {
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}

func (w *Warehouse) table(name string) string {
	return "`" + w.projectID + "." + w.datasetID + "." + name + "`"
}

// EnsureTables creates the export tables when they are missing.
func (w *Warehouse) EnsureTables(ctx context.Context) error {
	for _, ddl := range []string{
		fmt.Sprintf(itemizedDDL, w.table(itemizedTable)),
		fmt.Sprintf(itemsDDL, w.table(itemsTable)),
	} {
		if err := w.run(ctx, ddl); err != nil {
			return fmt.Errorf("EnsureTables: %w", err)
		}
	}
	return nil
}

func (w *Warehouse) run(ctx context.Context, sql string) error {
	job, err := w.client.Query(sql).Run(ctx)
	if err != nil {
		return fmt.Errorf("run query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

// Export appends a snapshot of every transaction and its items. Insert ids
// are derived from the itemized id and export time so a retried request is
// deduplicated by the streaming API.
func (w *Warehouse) Export(ctx context.Context, txs []*domain.ItemizedTransaction) (ExportResult, error) {
	log := logger.FromContext(ctx)
	exported := w.now().UTC()
	suffix := exported.Format("20060102T150405.000000000")

	var parents, children []bigquery.ValueSaver
	for _, tx := range txs {
		parents = append(parents, &bigquery.StructSaver{
			Struct:   ToItemizedRow(tx, exported),
			InsertID: tx.ID + "@" + suffix,
		})
		for _, row := range ToItemRows(tx, exported) {
			children = append(children, &bigquery.StructSaver{
				Struct:   row,
				InsertID: fmt.Sprintf("%s#%d@%s", tx.ID, row.LineIndex, suffix),
			})
		}
	}

	var res ExportResult
	if err := w.put(ctx, itemizedTable, parents); err != nil {
		return res, fmt.Errorf("Export: inserting transactions: %w", err)
	}
	res.Transactions = len(parents)
	if err := w.put(ctx, itemsTable, children); err != nil {
		return res, fmt.Errorf("Export: inserting items: %w", err)
	}
	res.Items = len(children)

	log.Info().
		Int("transactions", res.Transactions).
		Int("items", res.Items).
		Str("dataset", w.datasetID).
		Msg("Exported itemized transactions to BigQuery")
	return res, nil
}

func (w *Warehouse) put(ctx context.Context, table string, rows []bigquery.ValueSaver) error {
	inserter := w.client.DatasetInProject(w.projectID, w.datasetID).Table(table).Inserter()
	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))
		if err := inserter.Put(ctx, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// QueryMatchSummary counts the latest snapshot of each itemized transaction
// per match status.
func (w *Warehouse) QueryMatchSummary(ctx context.Context) ([]*MatchSummaryRow, error) {
	q := w.client.Query(fmt.Sprintf(`
		SELECT
			match_status,
			COUNT(*) AS n,
			SUM(total_amount) AS total_amount
		FROM %s
		WHERE TRUE
		QUALIFY ROW_NUMBER() OVER (PARTITION BY itemized_id ORDER BY exported_ts DESC) = 1
		ORDER BY match_status
	`, w.table(itemizedTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryMatchSummary: query read: %w", err)
	}

	var rows []*MatchSummaryRow
	for {
		var r MatchSummaryRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryMatchSummary: iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}

const itemizedDDL = `
CREATE TABLE IF NOT EXISTS %s (
	itemized_id STRING NOT NULL,
	ynab_id STRING,
	source STRING NOT NULL,
	source_transaction_id STRING,
	merchant_name STRING,
	transaction_date DATE,
	total_amount NUMERIC,
	subtotal NUMERIC,
	total_tax NUMERIC,
	total_discount NUMERIC,
	tip_amount NUMERIC NOT NULL,
	match_status STRING NOT NULL,
	match_method STRING,
	match_confidence FLOAT64,
	item_count INT64,
	subtransactions_synced_ts TIMESTAMP,
	tags ARRAY<STRING>,
	created_ts TIMESTAMP NOT NULL,
	exported_ts TIMESTAMP NOT NULL
)
PARTITION BY DATE(exported_ts)`

const itemsDDL = `
CREATE TABLE IF NOT EXISTS %s (
	itemized_id STRING NOT NULL,
	line_index INT64 NOT NULL,
	name STRING NOT NULL,
	amount NUMERIC NOT NULL,
	quantity INT64 NOT NULL,
	unit_price NUMERIC,
	category STRING,
	sku STRING,
	tax_amount NUMERIC NOT NULL,
	discount_amount NUMERIC NOT NULL,
	ynab_subtransaction_id STRING,
	exported_ts TIMESTAMP NOT NULL
)
PARTITION BY DATE(exported_ts)`
