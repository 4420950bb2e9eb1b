package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ynab-itemized/internal/app"
	"github.com/dvloznov/ynab-itemized/internal/config"
	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/logger"
	"github.com/dvloznov/ynab-itemized/internal/notionsync"
	"github.com/dvloznov/ynab-itemized/internal/store"
)

func main() {
	cfg, err := config.Load()
	log := app.Logger(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	startDateStr := flag.String("start-date", "", "Only publish transactions on or after this date (YYYY-MM-DD)")
	endDateStr := flag.String("end-date", "", "Only publish transactions on or before this date (YYYY-MM-DD)")
	status := flag.String("status", "", "Only publish this match status")
	notionToken := flag.String("notion-token", cfg.NotionToken, "Notion API token (or set NOTION_TOKEN)")
	notionDBID := flag.String("notion-db-id", cfg.NotionDatabaseID, "Notion database ID (or set NOTION_DATABASE_ID)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	prune := flag.Bool("prune", false, "Archive pages whose transaction no longer exists")
	flag.Parse()

	if *notionToken == "" {
		log.Fatal().Msg("Error: -notion-token is required")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: -notion-db-id is required")
	}

	filter := store.ItemizedFilter{}
	if *startDateStr != "" {
		if filter.From, err = civil.ParseDate(*startDateStr); err != nil {
			log.Fatal().Err(err).Str("start_date", *startDateStr).Msg("Error: invalid start-date format, expected YYYY-MM-DD")
		}
	}
	if *endDateStr != "" {
		if filter.To, err = civil.ParseDate(*endDateStr); err != nil {
			log.Fatal().Err(err).Str("end_date", *endDateStr).Msg("Error: invalid end-date format, expected YYYY-MM-DD")
		}
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		log.Fatal().
			Str("start_date", *startDateStr).
			Str("end_date", *endDateStr).
			Msg("Error: end-date must be after start-date")
	}
	if *status != "" {
		filter.Status = domain.MatchStatus(*status)
		if !filter.Status.Valid() {
			log.Fatal().Str("status", *status).Msg("Error: unknown match status")
		}
	}
	if *prune && (filter != store.ItemizedFilter{}) {
		log.Fatal().Msg("Error: -prune cannot be combined with date or status filters")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	st, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()

	txs, err := st.ListItemized(ctx, filter)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load itemized transactions")
	}

	log.Info().
		Int("transactions", len(txs)).
		Bool("dry_run", *dryRun).
		Msg("Starting Notion sync")

	res, err := notionsync.Publish(ctx, notionsync.NewClient(*notionToken), *notionDBID, txs,
		notionsync.Options{DryRun: *dryRun, Prune: *prune})
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Created %d, updated %d, skipped %d, archived %d, failed %d\n",
		res.Created, res.Updated, res.Skipped, res.Archived, res.Failed)
	if res.Failed > 0 {
		log.Fatal().Int("failed", res.Failed).Msg("Some pages failed to sync")
	}
	fmt.Println("Sync completed successfully.")
}
