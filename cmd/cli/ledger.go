package main

import (
	"flag"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ynab-itemized/internal/money"
	"github.com/dvloznov/ynab-itemized/internal/pipeline"
	"github.com/dvloznov/ynab-itemized/internal/store/postgres"
)

func runInitDB(cli *CLI, args []string) {
	fs := flag.NewFlagSet("init-db", flag.ExitOnError)
	appliedBy := fs.String("applied-by", "cli", "Name recorded in schema_migrations")
	fs.Parse(args)

	if err := cli.cfg.ValidateDatabase(); err != nil {
		cli.log.Fatal().Err(err).Msg("Database is not configured")
	}

	ctx, cancel := cli.context(2 * time.Minute)
	defer cancel()

	s, err := postgres.New(ctx, cli.cfg.DatabaseURL)
	if err != nil {
		cli.log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer s.Close()

	applied, err := s.Migrate(ctx, *appliedBy)
	if err != nil {
		cli.log.Fatal().Err(err).Msg("Migration failed")
	}
	if len(applied) == 0 {
		fmt.Println("Database schema is up to date.")
		return
	}
	for _, m := range applied {
		fmt.Printf("Applied %04d_%s\n", m.Version, m.Name)
	}
	fmt.Println("Database initialized successfully.")
}

func runSync(cli *CLI, args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	sinceDays := fs.Int("since-days", 30, "Pull transactions from this many days back")
	accountID := fs.String("account-id", "", "Only pull this account")
	fs.Parse(args)

	if *sinceDays < 0 {
		cli.log.Fatal().Msg("Error: -since-days cannot be negative")
	}

	ctx, cancel := cli.context(10 * time.Minute)
	defer cancel()

	lc := cli.openLedger(ctx, true)
	s := cli.openStore(ctx)

	since := civil.DateOf(time.Now()).AddDays(-*sinceDays)
	res, err := pipeline.PullLedger(ctx, lc, s, since, *accountID)
	if err != nil {
		cli.log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Fetched %d transactions since %s, saved %d", res.Fetched, since, res.Saved)
	if res.Failed > 0 {
		fmt.Printf(", %d failed", res.Failed)
	}
	fmt.Println()
}

func runListBudgets(cli *CLI, args []string) {
	fs := flag.NewFlagSet("list-budgets", flag.ExitOnError)
	fs.Parse(args)

	ctx, cancel := cli.context(time.Minute)
	defer cancel()

	budgets, err := cli.openLedger(ctx, false).GetBudgets(ctx)
	if err != nil {
		cli.log.Fatal().Err(err).Msg("Failed to list budgets")
	}
	if len(budgets) == 0 {
		fmt.Println("No budgets found.")
		return
	}
	fmt.Printf("%-38s %s\n", "ID", "NAME")
	for _, b := range budgets {
		fmt.Printf("%-38s %s\n", b.ID, b.Name)
	}
}

func runListAccounts(cli *CLI, args []string) {
	fs := flag.NewFlagSet("list-accounts", flag.ExitOnError)
	showClosed := fs.Bool("closed", false, "Include closed accounts")
	fs.Parse(args)

	ctx, cancel := cli.context(time.Minute)
	defer cancel()

	accounts, err := cli.openLedger(ctx, true).GetAccounts(ctx)
	if err != nil {
		cli.log.Fatal().Err(err).Msg("Failed to list accounts")
	}
	fmt.Printf("%-38s %-30s %-12s %12s\n", "ID", "NAME", "TYPE", "BALANCE")
	for _, a := range accounts {
		if a.Deleted || (a.Closed && !*showClosed) {
			continue
		}
		fmt.Printf("%-38s %-30s %-12s %12s\n", a.ID, a.Name, a.Type, money.FormatMilliunits(a.Balance))
	}
}

func runListCategories(cli *CLI, args []string) {
	fs := flag.NewFlagSet("list-categories", flag.ExitOnError)
	showHidden := fs.Bool("hidden", false, "Include hidden categories")
	fs.Parse(args)

	ctx, cancel := cli.context(time.Minute)
	defer cancel()

	groups, err := cli.openLedger(ctx, true).GetCategoryGroups(ctx)
	if err != nil {
		cli.log.Fatal().Err(err).Msg("Failed to list categories")
	}
	for _, g := range groups {
		if g.Deleted || (g.Hidden && !*showHidden) {
			continue
		}
		fmt.Printf("\n%s\n", g.Name)
		for _, c := range g.Categories {
			if c.Deleted || (c.Hidden && !*showHidden) {
				continue
			}
			fmt.Printf("  %-38s %s\n", c.ID, c.Name)
		}
	}
	fmt.Println()
}
