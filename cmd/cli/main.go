package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/ynab-itemized/internal/app"
	"github.com/dvloznov/ynab-itemized/internal/config"
	"github.com/dvloznov/ynab-itemized/internal/logger"
	"github.com/dvloznov/ynab-itemized/internal/store"
	"github.com/rs/zerolog"
)

type command struct {
	name  string
	usage string
	run   func(cli *CLI, args []string)
}

var commands = []command{
	{"init-db", "Apply database migrations", runInitDB},
	{"sync", "Pull YNAB transactions into the local store", runSync},
	{"list-budgets", "List budgets visible to the token", runListBudgets},
	{"list-accounts", "List accounts in the configured budget", runListAccounts},
	{"list-categories", "List categories in the configured budget", runListCategories},
	{"list", "List itemized transactions", runList},
	{"show", "Show one itemized transaction with its items", runShow},
	{"export", "Export itemized transactions (csv, json or bigquery)", runExport},
	{"import-amazon", "Import an Amazon order history CSV", runImportAmazon},
	{"match", "Auto-match unmatched itemized transactions", runMatch},
	{"candidates", "Show match candidates for an itemized transaction", runCandidates},
	{"accept", "Accept a match", runAccept},
	{"reject", "Reject a match", runReject},
	{"create-subtransactions", "Split a YNAB transaction by its receipt items", runCreateSubtransactions},
	{"sync-subtransactions", "Pull a YNAB transaction with its splits", runSyncSubtransactions},
	{"remove-subtransactions", "Remove the splits of a YNAB transaction", runRemoveSubtransactions},
	{"delete", "Delete an itemized transaction", runDelete},
	{"publish-notion", "Publish itemized transactions to Notion", runPublishNotion},
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage()
		return
	}

	cfg, err := config.Load()
	log := app.Logger(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	for _, c := range commands {
		if c.name == name {
			cli := &CLI{cfg: cfg, log: log}
			defer cli.close()
			c.run(cli, os.Args[2:])
			return
		}
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
	printUsage()
	os.Exit(1)
}

func printUsage() {
	fmt.Println("YNAB Itemized CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	for _, c := range commands {
		fmt.Printf("  %-24s %s\n", c.name, c.usage)
	}
	fmt.Printf("  %-24s %s\n", "help", "Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// CLI holds what a command opened so it can be released on exit.
type CLI struct {
	cfg    config.Config
	log    zerolog.Logger
	store  store.Store
	ledger *app.Ledger
}

func (c *CLI) context(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return logger.WithContext(ctx, c.log), cancel
}

func (c *CLI) openStore(ctx context.Context) store.Store {
	if c.store == nil {
		s, err := app.OpenStore(ctx, c.cfg)
		if err != nil {
			c.log.Fatal().Err(err).Msg("Failed to open database")
		}
		c.store = s
	}
	return c.store
}

func (c *CLI) openLedger(ctx context.Context, needBudget bool) *app.Ledger {
	check := c.cfg.ValidateLedger
	if !needBudget {
		check = c.cfg.ValidateLedgerToken
	}
	if err := check(); err != nil {
		c.log.Fatal().Err(err).Msg("YNAB is not configured")
	}
	if c.ledger == nil {
		c.ledger = app.OpenLedger(ctx, c.cfg)
	}
	return c.ledger
}

func (c *CLI) close() {
	if c.store != nil {
		c.store.Close()
	}
	if c.ledger != nil {
		_ = c.ledger.Close()
	}
}

// parse parses flags around a single optional positional argument, so both
// "show ID -x" and "show -x ID" work.
func parse(fs *flag.FlagSet, args []string) string {
	var pos string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		pos, args = args[0], args[1:]
	}
	fs.Parse(args)
	if pos == "" && fs.NArg() > 0 {
		pos = fs.Arg(0)
	}
	return pos
}

func requireArg(log zerolog.Logger, value, usage string) {
	if value == "" {
		log.Fatal().Msg("Usage: cli " + usage)
	}
}

// confirm asks a y/N question on stdin. skip answers yes without asking.
func confirm(question string, skip bool) bool {
	if skip {
		return true
	}
	fmt.Printf("%s [y/N]: ", question)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
