// Package config loads runtime settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	DefaultYNABBaseURL      = "https://api.youneedabudget.com/v1"
	DefaultRequestsPerHour  = 200
	DefaultBigQueryDataset  = "ynab_itemized"
	DefaultGeminiModel      = "gemini-2.5-flash"
	DefaultPort             = "8080"
	DefaultDataDirName      = ".ynab_itemized"
	DefaultDateTolerance    = 3
	DefaultAmountTolerance  = "0.05"
	DefaultConfidenceThresh = 0.8
)

// Config holds every setting the binaries read. Build it once in main and
// pass it down.
type Config struct {
	YNABToken           string
	YNABBudgetID        string
	YNABBaseURL         string
	YNABRequestsPerHour int

	DatabaseURL string
	RedisURL    string

	LogLevel  string
	LogFormat string
	Debug     bool
	DataDir   string

	GCSBucket       string
	GCPProject      string
	BigQueryDataset string

	NotionToken      string
	NotionDatabaseID string
	GeminiModel      string

	Port string

	MatchDateToleranceDays   int
	MatchAmountTolerance     decimal.Decimal
	MatchConfidenceThreshold float64
}

// Load reads .env when present, then the environment. Malformed numeric
// values are reported rather than silently replaced.
func Load() (Config, error) {
	// .env is optional
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		YNABToken:        os.Getenv("YNAB_API_TOKEN"),
		YNABBudgetID:     os.Getenv("YNAB_BUDGET_ID"),
		YNABBaseURL:      getEnvOrDefault("YNAB_API_BASE_URL", DefaultYNABBaseURL),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		LogLevel:         getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        getEnvOrDefault("LOG_FORMAT", "console"),
		DataDir:          getEnvOrDefault("DATA_DIR", defaultDataDir()),
		GCSBucket:        os.Getenv("GCS_BUCKET"),
		GCPProject:       os.Getenv("GCP_PROJECT"),
		BigQueryDataset:  getEnvOrDefault("BIGQUERY_DATASET", DefaultBigQueryDataset),
		NotionToken:      os.Getenv("NOTION_TOKEN"),
		NotionDatabaseID: os.Getenv("NOTION_DATABASE_ID"),
		GeminiModel:      getEnvOrDefault("GEMINI_MODEL", DefaultGeminiModel),
		Port:             getEnvOrDefault("PORT", DefaultPort),
	}

	var errs []error
	var err error
	if cfg.YNABRequestsPerHour, err = getIntOrDefault("YNAB_REQUESTS_PER_HOUR", DefaultRequestsPerHour); err != nil {
		errs = append(errs, err)
	}
	if cfg.MatchDateToleranceDays, err = getIntOrDefault("MATCH_DATE_TOLERANCE_DAYS", DefaultDateTolerance); err != nil {
		errs = append(errs, err)
	}
	if cfg.MatchAmountTolerance, err = decimal.NewFromString(getEnvOrDefault("MATCH_AMOUNT_TOLERANCE", DefaultAmountTolerance)); err != nil {
		errs = append(errs, fmt.Errorf("MATCH_AMOUNT_TOLERANCE: %w", err))
	}
	if cfg.MatchConfidenceThreshold, err = getFloatOrDefault("MATCH_CONFIDENCE_THRESHOLD", DefaultConfidenceThresh); err != nil {
		errs = append(errs, err)
	}
	if cfg.Debug, err = getBoolOrDefault("DEBUG", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.Debug && os.Getenv("LOG_LEVEL") == "" {
		cfg.LogLevel = "debug"
	}
	return cfg, errors.Join(errs...)
}

// ValidateLedger reports a missing YNAB token or budget id.
func (c Config) ValidateLedger() error {
	var missing []string
	if c.YNABToken == "" {
		missing = append(missing, "YNAB_API_TOKEN")
	}
	if c.YNABBudgetID == "" {
		missing = append(missing, "YNAB_BUDGET_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ValidateLedgerToken is ValidateLedger for commands that work before a
// budget is chosen, such as list-budgets.
func (c Config) ValidateLedgerToken() error {
	if c.YNABToken == "" {
		return errors.New("missing required configuration: YNAB_API_TOKEN")
	}
	return nil
}

func (c Config) ValidateDatabase() error {
	if c.DatabaseURL == "" {
		return errors.New("missing required configuration: DATABASE_URL")
	}
	return nil
}

func (c Config) ValidateGCS() error {
	if c.GCSBucket == "" {
		return errors.New("missing required configuration: GCS_BUCKET")
	}
	return nil
}

func (c Config) ValidateBigQuery() error {
	if c.GCPProject == "" {
		return errors.New("missing required configuration: GCP_PROJECT")
	}
	return nil
}

func (c Config) ValidateNotion() error {
	var missing []string
	if c.NotionToken == "" {
		missing = append(missing, "NOTION_TOKEN")
	}
	if c.NotionDatabaseID == "" {
		missing = append(missing, "NOTION_DATABASE_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// EnsureDataDir creates the data directory if needed and returns its path.
func (c Config) EnsureDataDir() (string, error) {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("EnsureDataDir: %w", err)
	}
	return c.DataDir, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDirName
	}
	return filepath.Join(home, DefaultDataDirName)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func getFloatOrDefault(key string, defaultValue float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid number %q", key, v)
	}
	return f, nil
}

func getBoolOrDefault(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}
