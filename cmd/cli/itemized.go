package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/export"
	"github.com/dvloznov/ynab-itemized/internal/gcs"
	infraBQ "github.com/dvloznov/ynab-itemized/internal/infra/bigquery"
	"github.com/dvloznov/ynab-itemized/internal/ingest/amazon"
	"github.com/dvloznov/ynab-itemized/internal/money"
	"github.com/dvloznov/ynab-itemized/internal/notionsync"
	"github.com/dvloznov/ynab-itemized/internal/pipeline"
	"github.com/dvloznov/ynab-itemized/internal/store"
)

const formatBigQuery = "bigquery"

func runList(cli *CLI, args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum number of transactions")
	status := fs.String("status", "", "Only show this match status (unmatched, matched, manual_match, no_match)")
	fs.Parse(args)

	filter := store.ItemizedFilter{Limit: *limit}
	if *status != "" {
		filter.Status = domain.MatchStatus(*status)
		if !filter.Status.Valid() {
			cli.log.Fatal().Str("status", *status).Msg("Error: unknown match status")
		}
	}

	ctx, cancel := cli.context(time.Minute)
	defer cancel()

	txs, err := cli.openStore(ctx).ListItemized(ctx, filter)
	if err != nil {
		cli.log.Fatal().Err(err).Msg("Failed to list itemized transactions")
	}
	if len(txs) == 0 {
		fmt.Println("No itemized transactions found.")
		return
	}

	fmt.Printf("%-36s  %-10s  %-30s  %10s  %5s  %s\n", "ID", "DATE", "MERCHANT", "TOTAL", "ITEMS", "STATUS")
	for _, tx := range txs {
		fmt.Printf("%-36s  %-10s  %-30s  %10s  %5d  %s\n",
			tx.ID,
			domain.FormatDate(tx.TransactionDate),
			domain.TruncateString(merchant(tx), 30),
			money.Format(tx.EffectiveTotal()),
			len(tx.Items),
			tx.MatchStatus,
		)
	}
}

func merchant(tx *domain.ItemizedTransaction) string {
	if tx.MerchantName != "" {
		return tx.MerchantName
	}
	if tx.StoreName != "" {
		return tx.StoreName
	}
	return "N/A"
}

func runShow(cli *CLI, args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	id := parse(fs, args)
	requireArg(cli.log, id, "show <itemized-id>")

	ctx, cancel := cli.context(time.Minute)
	defer cancel()

	tx, err := cli.openStore(ctx).GetItemized(ctx, id)
	if err != nil {
		cli.log.Fatal().Err(err).Str("itemized_id", id).Msg("Failed to load itemized transaction")
	}

	fmt.Println("\n=== Itemized Transaction ===")
	fmt.Printf("ID:        %s\n", tx.ID)
	fmt.Printf("Date:      %s\n", domain.FormatDate(tx.TransactionDate))
	fmt.Printf("Merchant:  %s\n", merchant(tx))
	fmt.Printf("Total:     %s\n", money.Format(tx.EffectiveTotal()))
	fmt.Printf("Status:    %s\n", tx.MatchStatus)
	if tx.MatchConfidence != nil {
		fmt.Printf("Confidence: %s\n", domain.FormatPercentage(*tx.MatchConfidence))
	}
	if tx.Source != "" {
		fmt.Printf("Source:    %s %s\n", tx.Source, tx.SourceTransactionID)
	}
	if tx.Ledger != nil {
		fmt.Printf("YNAB:      %s  %s  %s\n", tx.Ledger.YnabID, tx.Ledger.PayeeName, money.FormatMilliunits(tx.Ledger.Amount))
		if tx.SubtransactionsSyncedAt != nil {
			fmt.Printf("Splits synced: %s\n", tx.SubtransactionsSyncedAt.Format(time.RFC3339))
		}
	}
	if tx.MatchNotes != "" {
		fmt.Printf("Notes:     %s\n", tx.MatchNotes)
	}

	fmt.Printf("\n=== Items (%d) ===\n", len(tx.Items))
	for i, item := range tx.Items {
		fmt.Printf("%d. %s\n", i+1, item.Name)
		fmt.Printf("   Amount:   %s", money.Format(item.Amount))
		if item.Quantity > 1 {
			fmt.Printf(" (%d x %s)", item.Quantity, money.Format(item.UnitPrice.Decimal))
		}
		fmt.Println()
		if !item.TaxAmount.IsZero() {
			fmt.Printf("   Tax:      %s\n", money.Format(item.TaxAmount))
		}
		if !item.DiscountAmount.IsZero() {
			fmt.Printf("   Discount: %s\n", money.Format(item.DiscountAmount))
		}
		if item.Category != "" {
			fmt.Printf("   Category: %s\n", item.Category)
		}
	}

	if ok, msgs := domain.ValidateTransactionTotals(tx); !ok {
		fmt.Println("\nValidation:")
		for _, m := range msgs {
			fmt.Printf("  ! %s\n", m)
		}
	}
	for _, w := range pipeline.Warnings(tx) {
		fmt.Printf("  ! %s\n", w)
	}
	fmt.Println()
}

func runDelete(cli *CLI, args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	yes := fs.Bool("yes", false, "Do not ask for confirmation")
	id := parse(fs, args)
	requireArg(cli.log, id, "delete <itemized-id> [-yes]")

	if !confirm(fmt.Sprintf("Delete itemized transaction %s?", id), *yes) {
		fmt.Println("Cancelled.")
		return
	}

	ctx, cancel := cli.context(time.Minute)
	defer cancel()

	deleted, err := cli.openStore(ctx).DeleteItemized(ctx, id)
	if err != nil {
		cli.log.Fatal().Err(err).Msg("Delete failed")
	}
	if !deleted {
		cli.log.Fatal().Str("itemized_id", id).Msg("Itemized transaction not found")
	}
	fmt.Printf("Deleted %s\n", id)
}

func runImportAmazon(cli *CLI, args []string) {
	fs := flag.NewFlagSet("import-amazon", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "Parse and validate without saving")
	yes := fs.Bool("yes", false, "Do not ask for confirmation")
	source := parse(fs, args)
	requireArg(cli.log, source, "import-amazon <csv-path|gs://bucket/object> [-dry-run] [-yes]")

	ctx, cancel := cli.context(10 * time.Minute)
	defer cancel()

	opts := pipeline.ImportOptions{
		DryRun: *dryRun,
		Confirm: func(txs []*domain.ItemizedTransaction) bool {
			return confirm(fmt.Sprintf("Import %d transactions?", len(txs)), *yes)
		},
	}
	if gcs.IsURI(source) {
		client, err := gcs.NewClient(ctx)
		if err != nil {
			cli.log.Fatal().Err(err).Msg("Failed to create GCS client")
		}
		defer client.Close()
		opts.Storage = client
	}

	res, err := pipeline.Import(ctx, amazon.NewParser(), source, cli.openStore(ctx), opts)
	for id, warnings := range res.Warnings {
		for _, w := range warnings {
			fmt.Printf("  ! %s: %s\n", id, w)
		}
	}
	if errors.Is(err, pipeline.ErrCancelled) {
		fmt.Println("Cancelled.")
		return
	}
	if err != nil {
		cli.log.Fatal().Err(err).Msg("Import failed")
	}

	fmt.Printf("Parsed %d transactions with %d items\n", res.Parsed, res.Items)
	if *dryRun {
		fmt.Println("DRY RUN: nothing was saved.")
		return
	}
	fmt.Printf("Imported %d, updated %d, failed %d\n", res.Imported, res.Updated, res.Failed)
}

func runExport(cli *CLI, args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", export.FormatCSV, "Export format: csv, json or bigquery")
	output := fs.String("output", "", "Output file (defaults to the data directory)")
	upload := fs.Bool("upload", false, "Also upload the file to GCS_BUCKET")
	fs.Parse(args)

	ctx, cancel := cli.context(10 * time.Minute)
	defer cancel()

	txs, err := cli.openStore(ctx).ListItemized(ctx, store.ItemizedFilter{})
	if err != nil {
		cli.log.Fatal().Err(err).Msg("Failed to load itemized transactions")
	}

	f := strings.ToLower(*format)
	if f == formatBigQuery {
		if err := cli.cfg.ValidateBigQuery(); err != nil {
			cli.log.Fatal().Err(err).Msg("BigQuery is not configured")
		}
		wh, err := infraBQ.NewWarehouse(ctx, cli.cfg.GCPProject, cli.cfg.BigQueryDataset)
		if err != nil {
			cli.log.Fatal().Err(err).Msg("Failed to create BigQuery client")
		}
		defer wh.Close()

		if err := wh.EnsureTables(ctx); err != nil {
			cli.log.Fatal().Err(err).Msg("Failed to prepare BigQuery tables")
		}
		res, err := wh.Export(ctx, txs)
		if err != nil {
			cli.log.Fatal().Err(err).Msg("BigQuery export failed")
		}
		fmt.Printf("Exported %d transactions and %d items to %s.%s\n",
			res.Transactions, res.Items, cli.cfg.GCPProject, cli.cfg.BigQueryDataset)
		return
	}
	if f != export.FormatCSV && f != export.FormatJSON {
		cli.log.Fatal().Str("format", *format).Msg("Error: -format must be csv, json or bigquery")
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, f, txs); err != nil {
		cli.log.Fatal().Err(err).Msg("Export failed")
	}

	path := *output
	if path == "" {
		dir, err := cli.cfg.EnsureDataDir()
		if err != nil {
			cli.log.Fatal().Err(err).Msg("Failed to create data directory")
		}
		path = filepath.Join(dir, export.DefaultFilename(f))
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		cli.log.Fatal().Err(err).Str("path", path).Msg("Failed to write export")
	}
	fmt.Printf("Exported %d transactions to %s\n", len(txs), path)

	if !*upload {
		return
	}
	if err := cli.cfg.ValidateGCS(); err != nil {
		cli.log.Fatal().Err(err).Msg("GCS is not configured")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		cli.log.Fatal().Err(err).Msg("Failed to create GCS client")
	}
	defer client.Close()

	object := gcs.ObjectName("exports", filepath.Base(path), time.Now())
	if err := client.Upload(ctx, cli.cfg.GCSBucket, object, bytes.NewReader(buf.Bytes())); err != nil {
		cli.log.Fatal().Err(err).Msg("Upload failed")
	}
	fmt.Printf("Uploaded to %s\n", gcs.URI(cli.cfg.GCSBucket, object))
}

func runPublishNotion(cli *CLI, args []string) {
	fs := flag.NewFlagSet("publish-notion", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "Preview changes without writing to Notion")
	prune := fs.Bool("prune", false, "Archive pages whose transaction no longer exists")
	fs.Parse(args)

	if err := cli.cfg.ValidateNotion(); err != nil {
		cli.log.Fatal().Err(err).Msg("Notion is not configured")
	}

	ctx, cancel := cli.context(10 * time.Minute)
	defer cancel()

	txs, err := cli.openStore(ctx).ListItemized(ctx, store.ItemizedFilter{})
	if err != nil {
		cli.log.Fatal().Err(err).Msg("Failed to load itemized transactions")
	}

	res, err := notionsync.Publish(ctx, notionsync.NewClient(cli.cfg.NotionToken), cli.cfg.NotionDatabaseID, txs,
		notionsync.Options{DryRun: *dryRun, Prune: *prune})
	if err != nil {
		cli.log.Fatal().Err(err).Msg("Notion publish failed")
	}
	printNotionResult(res, *dryRun)
}

func printNotionResult(res notionsync.Result, dryRun bool) {
	prefix := ""
	if dryRun {
		prefix = "DRY RUN: "
	}
	fmt.Printf("%sCreated %d, updated %d, skipped %d, archived %d, failed %d\n",
		prefix, res.Created, res.Updated, res.Skipped, res.Archived, res.Failed)
}
