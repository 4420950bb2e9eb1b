package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/ynab-itemized/internal/api"
	"github.com/dvloznov/ynab-itemized/internal/api/handlers"
	"github.com/dvloznov/ynab-itemized/internal/app"
	"github.com/dvloznov/ynab-itemized/internal/config"
	"github.com/dvloznov/ynab-itemized/internal/jobs"
	"github.com/dvloznov/ynab-itemized/internal/jobs/inmemory"
	"github.com/dvloznov/ynab-itemized/internal/logger"
	"github.com/dvloznov/ynab-itemized/internal/matching"
	"github.com/dvloznov/ynab-itemized/internal/splits"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	log := app.Logger(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	var (
		port    = flag.String("port", cfg.Port, "HTTP server port")
		workers = flag.Int("workers", 2, "Background job workers")
	)
	flag.Parse()

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := logger.WithContext(context.Background(), log)

	st, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()

	matcher := matching.New(st, app.MatchConfig(cfg))
	deps := handlers.Deps{Store: st, Matcher: matcher}
	jobHandlers := &jobs.Handlers{Sweeper: matcher, Store: st}

	if err := cfg.ValidateLedger(); err != nil {
		log.Warn().Err(err).Msg("YNAB not configured - split and ledger pull endpoints will be disabled")
	} else {
		lc := app.OpenLedger(ctx, cfg)
		defer lc.Close()
		deps.Splits = splits.NewService(lc, st, nil)
		jobHandlers.Ledger = lc
	}

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, *workers, jobStore)
	deps.Publisher = jobQueue
	deps.JobStore = jobStore

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	if err := jobQueue.Start(workerCtx, jobHandlers.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      api.NewRouter(handlers.New(deps), log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	cancelWorker()
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
