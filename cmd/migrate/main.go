package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dvloznov/ynab-itemized/internal/app"
	"github.com/dvloznov/ynab-itemized/internal/config"
	"github.com/dvloznov/ynab-itemized/internal/logger"
	"github.com/dvloznov/ynab-itemized/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	log := app.Logger(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	var (
		databaseURL = flag.String("database-url", cfg.DatabaseURL, "PostgreSQL connection URL (or set DATABASE_URL)")
		appliedBy   = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		list        = flag.Bool("list", false, "List migrations and their status without applying anything")
	)
	flag.Parse()

	if *databaseURL == "" {
		log.Fatal().Msg("Error: -database-url or DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	s, err := postgres.New(ctx, *databaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer s.Close()

	all, err := postgres.Migrations()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}
	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read applied migrations")
	}
	log.Info().Int("available", len(all)).Int("applied", len(applied)).Msg("Loaded migrations")

	if *list {
		for _, line := range statusLines(all, applied) {
			fmt.Println(line)
		}
		return
	}

	done, err := s.Migrate(ctx, *appliedBy)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
	if len(done) == 0 {
		fmt.Println("No pending migrations. Database is up to date.")
		return
	}
	for _, m := range done {
		fmt.Printf("Applied %s\n", m.Filename)
	}
	fmt.Printf("Successfully applied %d migration(s)\n", len(done))
}

// statusLines renders one line per known migration, applied ones with
// their time and tool.
func statusLines(all []postgres.Migration, applied []postgres.AppliedMigration) []string {
	byVersion := make(map[int]postgres.AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	lines := make([]string, 0, len(all))
	for _, m := range all {
		am, ok := byVersion[m.Version]
		switch {
		case !ok:
			lines = append(lines, fmt.Sprintf("[pending] %s", m.Filename))
		case am.Checksum != "" && am.Checksum != m.Checksum:
			lines = append(lines, fmt.Sprintf("[changed] %s (applied %s by %s)", m.Filename, am.AppliedAt.UTC().Format(time.RFC3339), am.AppliedBy))
		default:
			lines = append(lines, fmt.Sprintf("[applied] %s (applied %s by %s)", m.Filename, am.AppliedAt.UTC().Format(time.RFC3339), am.AppliedBy))
		}
	}
	return lines
}
