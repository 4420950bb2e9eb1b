package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dvloznov/ynab-itemized/internal/categorize"
	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/money"
	"github.com/dvloznov/ynab-itemized/internal/splits"
)

func (c *CLI) splitService(ctx context.Context, withCategorizer bool) *splits.Service {
	lc := c.openLedger(ctx, true)
	var cat splits.Categorizer
	if withCategorizer {
		gen, err := categorize.NewGeminiGenerator(ctx, c.cfg.GeminiModel)
		if err != nil {
			c.log.Fatal().Err(err).Msg("Failed to create Gemini client")
		}
		cat = categorize.New(gen)
	}
	return splits.NewService(lc, c.openStore(ctx), cat)
}

func printSplits(subs []domain.Subtransaction) {
	fmt.Printf("%-4s  %12s  %-40s  %s\n", "#", "AMOUNT", "MEMO", "CATEGORY")
	var total money.Milliunits
	for i, s := range subs {
		category := s.CategoryName
		if category == "" {
			category = domain.StringValue(s.CategoryID)
		}
		fmt.Printf("%-4d  %12s  %-40s  %s\n", i+1, money.FormatMilliunits(s.Amount), domain.TruncateString(s.Memo, 40), category)
		total += s.Amount
	}
	fmt.Printf("%-4s  %12s\n", "", money.FormatMilliunits(total))
}

func runCreateSubtransactions(cli *CLI, args []string) {
	fs := flag.NewFlagSet("create-subtransactions", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "Show the splits without updating YNAB")
	yes := fs.Bool("yes", false, "Do not ask for confirmation")
	noTax := fs.Bool("no-tax", false, "Leave item tax out of the split amounts")
	noDiscount := fs.Bool("no-discount", false, "Leave item discounts out of the split amounts")
	withCategories := fs.Bool("categorize", false, "Suggest a category per item with Gemini")
	id := parse(fs, args)
	requireArg(cli.log, id, "create-subtransactions <itemized-id> [-dry-run] [-yes] [-no-tax] [-no-discount] [-categorize]")

	ctx, cancel := cli.context(5 * time.Minute)
	defer cancel()

	svc := cli.splitService(ctx, *withCategories)
	opts := splits.Options{IncludeTax: !*noTax, IncludeDiscount: !*noDiscount}

	preview, err := svc.Sync(ctx, id, opts, *withCategories, true)
	if err != nil {
		cli.log.Fatal().Err(err).Str("itemized_id", id).Msg("Failed to build subtransactions")
	}
	it := preview.Itemized
	fmt.Printf("\nSplitting YNAB transaction %s (%s) into %d subtransactions:\n\n",
		it.LedgerID(), money.FormatMilliunits(it.Ledger.Amount), len(preview.Subtransactions))
	printSplits(preview.Subtransactions)
	fmt.Println()

	if *dryRun {
		fmt.Println("DRY RUN: YNAB was not updated.")
		return
	}
	if it.Ledger.HasSubtransactions() {
		fmt.Printf("Transaction already has %d subtransactions; they will be replaced.\n", len(it.Ledger.Subtransactions))
	}
	if !confirm("Update the YNAB transaction?", *yes) {
		fmt.Println("Cancelled.")
		return
	}

	res, err := svc.Sync(ctx, id, opts, *withCategories, false)
	if err != nil {
		cli.log.Fatal().Err(err).Str("itemized_id", id).Msg("Failed to create subtransactions")
	}
	fmt.Printf("Created %d subtransactions on %s\n", len(res.Updated.Subtransactions), res.Updated.YnabID)
}

func runSyncSubtransactions(cli *CLI, args []string) {
	fs := flag.NewFlagSet("sync-subtransactions", flag.ExitOnError)
	ynabID := parse(fs, args)
	requireArg(cli.log, ynabID, "sync-subtransactions <ynab-id>")

	ctx, cancel := cli.context(time.Minute)
	defer cancel()

	tx, err := cli.splitService(ctx, false).Pull(ctx, ynabID)
	if err != nil {
		cli.log.Fatal().Err(err).Str("ynab_id", ynabID).Msg("Failed to pull transaction")
	}
	fmt.Printf("%s  %s  %s  %s\n", tx.YnabID, domain.FormatDate(tx.Date), tx.PayeeName, money.FormatMilliunits(tx.Amount))
	if !tx.HasSubtransactions() {
		fmt.Println("No subtransactions.")
		return
	}
	printSplits(tx.Subtransactions)
	if !tx.SubtransactionsBalance() {
		fmt.Printf("! Subtransactions total %s, transaction is %s\n",
			money.FormatMilliunits(tx.SubtransactionTotal()), money.FormatMilliunits(tx.Amount))
	}
}

func runRemoveSubtransactions(cli *CLI, args []string) {
	fs := flag.NewFlagSet("remove-subtransactions", flag.ExitOnError)
	yes := fs.Bool("yes", false, "Do not ask for confirmation")
	ynabID := parse(fs, args)
	requireArg(cli.log, ynabID, "remove-subtransactions <ynab-id> [-yes]")

	if !confirm(fmt.Sprintf("Remove all subtransactions from %s?", ynabID), *yes) {
		fmt.Println("Cancelled.")
		return
	}

	ctx, cancel := cli.context(time.Minute)
	defer cancel()

	tx, removed, err := cli.splitService(ctx, false).Remove(ctx, ynabID)
	if err != nil {
		cli.log.Fatal().Err(err).Str("ynab_id", ynabID).Msg("Failed to remove subtransactions")
	}
	if !removed {
		fmt.Printf("%s has no subtransactions.\n", tx.YnabID)
		return
	}
	fmt.Printf("Removed %d subtransactions from %s\n", len(tx.Subtransactions), tx.YnabID)
}
