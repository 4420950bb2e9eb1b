package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"YNAB_API_TOKEN", "YNAB_BUDGET_ID", "YNAB_API_BASE_URL", "YNAB_REQUESTS_PER_HOUR",
	"DATABASE_URL", "REDIS_URL", "LOG_LEVEL", "LOG_FORMAT", "DEBUG", "DATA_DIR",
	"GCS_BUCKET", "GCP_PROJECT", "BIGQUERY_DATASET", "NOTION_TOKEN", "NOTION_DATABASE_ID",
	"GEMINI_MODEL", "PORT", "MATCH_DATE_TOLERANCE_DAYS", "MATCH_AMOUNT_TOLERANCE",
	"MATCH_CONFIDENCE_THRESHOLD",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultYNABBaseURL, cfg.YNABBaseURL)
	assert.Equal(t, 200, cfg.YNABRequestsPerHour)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "ynab_itemized", cfg.BigQueryDataset)
	assert.Equal(t, "gemini-2.5-flash", cfg.GeminiModel)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 3, cfg.MatchDateToleranceDays)
	assert.True(t, cfg.MatchAmountTolerance.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, 0.8, cfg.MatchConfidenceThreshold)
	assert.Equal(t, DefaultDataDirName, filepath.Base(cfg.DataDir))
	assert.False(t, cfg.Debug)
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("YNAB_API_TOKEN", "tok")
	t.Setenv("YNAB_REQUESTS_PER_HOUR", "50")
	t.Setenv("MATCH_AMOUNT_TOLERANCE", "0.1")
	t.Setenv("MATCH_CONFIDENCE_THRESHOLD", "0.9")
	t.Setenv("DEBUG", "true")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "tok", cfg.YNABToken)
	assert.Equal(t, 50, cfg.YNABRequestsPerHour)
	assert.True(t, cfg.MatchAmountTolerance.Equal(decimal.RequireFromString("0.1")))
	assert.Equal(t, 0.9, cfg.MatchConfidenceThreshold)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestFromEnv_InvalidNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("YNAB_REQUESTS_PER_HOUR", "lots")
	t.Setenv("MATCH_AMOUNT_TOLERANCE", "five")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YNAB_REQUESTS_PER_HOUR")
	assert.Contains(t, err.Error(), "MATCH_AMOUNT_TOLERANCE")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		check   func(Config) error
		wantErr string
	}{
		{"ledger missing both", Config{}, Config.ValidateLedger, "YNAB_API_TOKEN, YNAB_BUDGET_ID"},
		{"ledger missing budget", Config{YNABToken: "t"}, Config.ValidateLedger, "YNAB_BUDGET_ID"},
		{"ledger ok", Config{YNABToken: "t", YNABBudgetID: "b"}, Config.ValidateLedger, ""},
		{"token only", Config{YNABToken: "t"}, Config.ValidateLedgerToken, ""},
		{"database", Config{}, Config.ValidateDatabase, "DATABASE_URL"},
		{"gcs", Config{}, Config.ValidateGCS, "GCS_BUCKET"},
		{"bigquery", Config{}, Config.ValidateBigQuery, "GCP_PROJECT"},
		{"notion", Config{NotionToken: "x"}, Config.ValidateNotion, "NOTION_DATABASE_ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.check(tt.cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnsureDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	cfg := Config{DataDir: dir}

	got, err := cfg.EnsureDataDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
