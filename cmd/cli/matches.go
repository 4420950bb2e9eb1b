package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/dvloznov/ynab-itemized/internal/app"
	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/matching"
	"github.com/dvloznov/ynab-itemized/internal/money"
	"github.com/shopspring/decimal"
)

const cliReviewer = "cli"

func runMatch(cli *CLI, args []string) {
	defaults := app.MatchConfig(cli.cfg)

	fs := flag.NewFlagSet("match", flag.ExitOnError)
	threshold := fs.Float64("confidence-threshold", defaults.ConfidenceThreshold, "Minimum score to accept a match automatically")
	dateTolerance := fs.Int("date-tolerance", defaults.DateToleranceDays, "Days either side of the receipt date to search")
	amountTolerance := fs.String("amount-tolerance", defaults.AmountTolerancePercent.String(), "Relative amount tolerance, e.g. 0.05")
	fs.Parse(args)

	tolerance, err := decimal.NewFromString(*amountTolerance)
	if err != nil || tolerance.IsNegative() {
		cli.log.Fatal().Str("amount_tolerance", *amountTolerance).Msg("Error: -amount-tolerance must be a non-negative number")
	}
	if *threshold < 0 || *threshold > 1 {
		cli.log.Fatal().Float64("confidence_threshold", *threshold).Msg("Error: -confidence-threshold must be between 0 and 1")
	}

	ctx, cancel := cli.context(10 * time.Minute)
	defer cancel()

	m := matching.New(cli.openStore(ctx), matching.Config{
		DateToleranceDays:      *dateTolerance,
		AmountTolerancePercent: tolerance,
		ConfidenceThreshold:    *threshold,
	})
	accepted, err := m.AutoMatch(ctx)
	if err != nil {
		cli.log.Fatal().Err(err).Msg("Auto-match failed")
	}

	if len(accepted) == 0 {
		fmt.Println("No matches above the confidence threshold.")
		return
	}
	for _, match := range accepted {
		fmt.Printf("Matched %s -> %s (%s)\n", match.ItemizedID, match.LedgerID, domain.FormatPercentage(match.Score))
	}
	fmt.Printf("Accepted %d matches\n", len(accepted))
}

func runCandidates(cli *CLI, args []string) {
	fs := flag.NewFlagSet("candidates", flag.ExitOnError)
	save := fs.Bool("save", true, "Record the candidates so they can be accepted or rejected")
	id := parse(fs, args)
	requireArg(cli.log, id, "candidates <itemized-id>")

	ctx, cancel := cli.context(time.Minute)
	defer cancel()

	s := cli.openStore(ctx)
	it, err := s.GetItemized(ctx, id)
	if err != nil {
		cli.log.Fatal().Err(err).Str("itemized_id", id).Msg("Failed to load itemized transaction")
	}

	m := matching.New(s, app.MatchConfig(cli.cfg))
	found, err := m.FindMatches(ctx, it)
	if err != nil {
		cli.log.Fatal().Err(err).Msg("Candidate search failed")
	}
	if len(found) == 0 {
		fmt.Println("No candidates found.")
		return
	}

	fmt.Printf("Candidates for %s (%s, %s):\n\n", it.ID, domain.FormatDate(it.TransactionDate), money.Format(it.EffectiveTotal()))
	fmt.Printf("%-38s  %-10s  %-30s  %12s  %-6s  %s\n", "YNAB ID", "DATE", "PAYEE", "AMOUNT", "SCORE", "MATCH ID")
	for _, c := range found {
		matchID := "-"
		if *save {
			match, err := m.CreateMatch(ctx, c.Ledger, it, c.Score, domain.MatchMethodFuzzy, "")
			if err != nil {
				cli.log.Fatal().Err(err).Str("ynab_id", c.Ledger.YnabID).Msg("Failed to record candidate")
			}
			matchID = match.ID
			if match.Status != domain.MatchCandidate {
				matchID += fmt.Sprintf(" (%s)", match.Status)
			}
		}
		fmt.Printf("%-38s  %-10s  %-30s  %12s  %-6s  %s\n",
			c.Ledger.YnabID,
			domain.FormatDate(c.Ledger.Date),
			domain.TruncateString(c.Ledger.PayeeName, 30),
			money.FormatMilliunits(c.Ledger.Amount),
			domain.FormatPercentage(c.Score),
			matchID,
		)
	}
}

func runAccept(cli *CLI, args []string) {
	fs := flag.NewFlagSet("accept", flag.ExitOnError)
	reviewer := fs.String("reviewer", cliReviewer, "Name recorded as the reviewer")
	id := parse(fs, args)
	requireArg(cli.log, id, "accept <match-id> [-reviewer NAME]")

	ctx, cancel := cli.context(time.Minute)
	defer cancel()

	match, err := matching.New(cli.openStore(ctx), app.MatchConfig(cli.cfg)).AcceptMatch(ctx, id, *reviewer)
	if err != nil {
		cli.log.Fatal().Err(err).Str("match_id", id).Msg("Accept failed")
	}
	fmt.Printf("Accepted %s: %s -> %s\n", match.ID, match.ItemizedID, match.LedgerID)
}

func runReject(cli *CLI, args []string) {
	fs := flag.NewFlagSet("reject", flag.ExitOnError)
	reviewer := fs.String("reviewer", cliReviewer, "Name recorded as the reviewer")
	id := parse(fs, args)
	requireArg(cli.log, id, "reject <match-id> [-reviewer NAME]")

	ctx, cancel := cli.context(time.Minute)
	defer cancel()

	match, err := matching.New(cli.openStore(ctx), app.MatchConfig(cli.cfg)).RejectMatch(ctx, id, *reviewer)
	if err != nil {
		cli.log.Fatal().Err(err).Str("match_id", id).Msg("Reject failed")
	}
	fmt.Printf("Rejected %s\n", match.ID)
}
