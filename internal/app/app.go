// Package app wires the shared runtime pieces of the binaries from a
// config.Config: logger, store and ledger client.
package app

import (
	"context"
	"fmt"

	"github.com/dvloznov/ynab-itemized/internal/cache"
	"github.com/dvloznov/ynab-itemized/internal/config"
	"github.com/dvloznov/ynab-itemized/internal/ledger"
	"github.com/dvloznov/ynab-itemized/internal/logger"
	"github.com/dvloznov/ynab-itemized/internal/matching"
	"github.com/dvloznov/ynab-itemized/internal/store"
	"github.com/dvloznov/ynab-itemized/internal/store/inmemory"
	"github.com/dvloznov/ynab-itemized/internal/store/postgres"
	"github.com/rs/zerolog"
)

// Logger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func Logger(cfg config.Config) zerolog.Logger {
	return logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
}

// OpenStore connects to PostgreSQL. Without DATABASE_URL it falls back to a
// process-local store, which is only useful for trying things out.
func OpenStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log := logger.FromContext(ctx)
		log.Warn().Msg("DATABASE_URL not set, using in-memory store")
		return inmemory.NewStore(), nil
	}
	s, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("OpenStore: %w", err)
	}
	return s, nil
}

// Ledger is a budgeting-service client plus whatever it holds open.
type Ledger struct {
	*ledger.Client
	cache *cache.Redis
}

// Close releases the response cache, if any.
func (l *Ledger) Close() error {
	if l.cache == nil {
		return nil
	}
	return l.cache.Close()
}

// OpenLedger builds the client. REDIS_URL enables the metadata cache; an
// unreachable Redis only costs the cache.
func OpenLedger(ctx context.Context, cfg config.Config) *Ledger {
	lc := ledger.Config{
		Token:           cfg.YNABToken,
		BudgetID:        cfg.YNABBudgetID,
		BaseURL:         cfg.YNABBaseURL,
		RequestsPerHour: cfg.YNABRequestsPerHour,
	}
	out := &Ledger{}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Msg("Redis unavailable, continuing without cache")
		} else {
			lc.Cache = rc
			out.cache = rc
		}
	}
	out.Client = ledger.NewClient(lc)
	return out
}

// MatchConfig maps the MATCH_* settings onto the matcher.
func MatchConfig(cfg config.Config) matching.Config {
	return matching.Config{
		DateToleranceDays:      cfg.MatchDateToleranceDays,
		AmountTolerancePercent: cfg.MatchAmountTolerance,
		ConfidenceThreshold:    cfg.MatchConfidenceThreshold,
	}
}
