package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/ynab-itemized/internal/app"
	"github.com/dvloznov/ynab-itemized/internal/config"
	"github.com/dvloznov/ynab-itemized/internal/jobs"
	"github.com/dvloznov/ynab-itemized/internal/jobs/inmemory"
	"github.com/dvloznov/ynab-itemized/internal/logger"
	"github.com/dvloznov/ynab-itemized/internal/matching"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	log := app.Logger(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	var (
		interval  = flag.Duration("interval", 15*time.Minute, "Time between ledger pull and match sweep rounds")
		sinceDays = flag.Int("since-days", jobs.DefaultSinceDays, "Ledger pull window in days")
		accountID = flag.String("account-id", "", "Only pull this account")
		skipPull  = flag.Bool("skip-pull", false, "Only run match sweeps")
	)
	flag.Parse()

	if *interval <= 0 {
		log.Fatal().Dur("interval", *interval).Msg("Error: -interval must be positive")
	}
	if !*skipPull {
		if err := cfg.ValidateLedger(); err != nil {
			log.Fatal().Err(err).Msg("YNAB is not configured; use -skip-pull to only sweep")
		}
	}

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	st, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()

	handlers := &jobs.Handlers{Sweeper: matching.New(st, app.MatchConfig(cfg)), Store: st}
	if !*skipPull {
		lc := app.OpenLedger(ctx, cfg)
		defer lc.Close()
		handlers.Ledger = lc
	}

	// One worker keeps a round's pull ahead of its sweep.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 1, jobStore)

	log.Info().Dur("interval", *interval).Msg("Starting worker service")

	if err := jobQueue.Start(ctx, handlers.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	enqueue := func() {
		if !*skipPull {
			publish(ctx, log, jobQueue, &jobs.Job{Type: jobs.JobTypeLedgerPull, SinceDays: *sinceDays, AccountID: *accountID})
		}
		publish(ctx, log, jobQueue, &jobs.Job{Type: jobs.JobTypeMatchSweep})
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	enqueue()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

loop:
	for {
		select {
		case <-ticker.C:
			enqueue()
		case <-quit:
			break loop
		}
	}

	log.Info().Msg("Shutting down worker service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}

func publish(ctx context.Context, log zerolog.Logger, q jobs.Publisher, job *jobs.Job) {
	if err := q.Publish(ctx, job); err != nil {
		log.Error().Err(err).Str("job_type", string(job.Type)).Msg("Failed to enqueue job")
		return
	}
	log.Info().Str("job_id", job.ID).Str("job_type", string(job.Type)).Msg("Job enqueued")
}
