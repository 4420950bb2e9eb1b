// Package notionsync publishes itemized transactions to a Notion database
// used for manual review.
package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/logger"
	"github.com/jomei/notionapi"
)

// BatchSize is the number of transactions logged per progress line.
const BatchSize = 100

// Options controls a Publish run.
type Options struct {
	DryRun bool
	// Prune archives pages whose transaction no longer exists locally.
	Prune bool
}

// Result counts the outcome of a Publish run.
type Result struct {
	Created  int
	Updated  int
	Skipped  int
	Archived int
	Failed   int
}

// Publish creates or updates one page per itemized transaction, keyed by the
// "Transaction ID" title. Transactions without an id are skipped. A failing
// page is logged and counted, and the run carries on.
func Publish(ctx context.Context, svc NotionService, databaseID string, txs []*domain.ItemizedTransaction, opts Options) (Result, error) {
	log := logger.FromContext(ctx)
	var res Result

	log.Info().
		Int("transactions", len(txs)).
		Bool("dry_run", opts.DryRun).
		Msg("Starting Notion publish")

	pages, err := queryAllPages(ctx, svc, databaseID)
	if err != nil {
		return res, fmt.Errorf("Publish: querying existing pages: %w", err)
	}
	existing := make(map[string]string, len(pages))
	for _, page := range pages {
		if id := pageTransactionID(page); id != "" {
			existing[id] = string(page.ID)
		}
	}
	log.Info().Int("notion_page_count", len(pages)).Msg("Retrieved existing Notion pages")

	local := make(map[string]bool, len(txs))
	for i, tx := range txs {
		if i > 0 && i%BatchSize == 0 {
			log.Info().Int("processed", i).Msg("Publishing batch")
		}
		if tx.ID == "" {
			res.Skipped++
			continue
		}
		local[tx.ID] = true

		pageID, found := existing[tx.ID]
		if opts.DryRun {
			if found {
				log.Info().Str("itemized_id", tx.ID).Str("page_id", pageID).Msg("[DRY RUN] Would update Notion page")
				res.Updated++
			} else {
				log.Info().Str("itemized_id", tx.ID).Msg("[DRY RUN] Would create Notion page")
				res.Created++
			}
			continue
		}

		props := ItemizedToProperties(tx)
		if found {
			if _, err := svc.UpdatePage(ctx, pageID, props); err != nil {
				log.Warn().Err(err).Str("itemized_id", tx.ID).Str("page_id", pageID).Msg("Failed to update Notion page")
				res.Failed++
				continue
			}
			res.Updated++
			continue
		}

		page, err := svc.CreatePage(ctx, databaseID, props)
		if err != nil {
			log.Warn().Err(err).Str("itemized_id", tx.ID).Msg("Failed to create Notion page")
			res.Failed++
			continue
		}
		log.Debug().Str("itemized_id", tx.ID).Str("page_id", string(page.ID)).Msg("Created Notion page")
		res.Created++
	}

	if opts.Prune {
		for id, pageID := range existing {
			if local[id] {
				continue
			}
			if opts.DryRun {
				log.Info().Str("itemized_id", id).Str("page_id", pageID).Msg("[DRY RUN] Would archive stale Notion page")
				res.Archived++
				continue
			}
			if err := svc.ArchivePage(ctx, pageID); err != nil {
				log.Warn().Err(err).Str("itemized_id", id).Str("page_id", pageID).Msg("Failed to archive stale Notion page")
				res.Failed++
				continue
			}
			res.Archived++
		}
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Int("archived", res.Archived).
		Int("failed", res.Failed).
		Msg("Notion publish completed")
	return res, nil
}

func queryAllPages(ctx context.Context, svc NotionService, databaseID string) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor
	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: 100}
		if cursor != "" {
			req.StartCursor = cursor
		}
		resp, err := svc.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Results...)
		if !resp.HasMore {
			return all, nil
		}
		cursor = resp.NextCursor
	}
}
