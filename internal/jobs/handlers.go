package jobs

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/logger"
	"github.com/dvloznov/ynab-itemized/internal/pipeline"
	"github.com/dvloznov/ynab-itemized/internal/store"
)

// DefaultSinceDays is the ledger_pull window when the job does not set one.
const DefaultSinceDays = 30

// Sweeper runs an auto-match sweep. Implemented by matching.Matcher.
type Sweeper interface {
	AutoMatch(ctx context.Context) ([]*domain.TransactionMatch, error)
}

// Handlers dispatches jobs by type.
type Handlers struct {
	Sweeper Sweeper
	Ledger  pipeline.LedgerSource
	Store   store.Store
	Now     func() time.Time
}

// Handle implements JobHandler.
func (h *Handlers) Handle(ctx context.Context, job *Job) error {
	log := logger.FromContext(ctx).With().
		Str("job_id", job.ID).
		Str("job_type", string(job.Type)).
		Int("attempt", job.RetryCount+1).
		Logger()
	ctx = logger.WithContext(ctx, log)

	switch job.Type {
	case JobTypeMatchSweep:
		if h.Sweeper == nil {
			return fmt.Errorf("match_sweep: no matcher configured")
		}
		accepted, err := h.Sweeper.AutoMatch(ctx)
		if err != nil {
			return fmt.Errorf("match_sweep: %w", err)
		}
		job.Result = map[string]int{"accepted": len(accepted)}
		return nil

	case JobTypeLedgerPull:
		if h.Ledger == nil || h.Store == nil {
			return fmt.Errorf("ledger_pull: no ledger client configured")
		}
		days := job.SinceDays
		if days <= 0 {
			days = DefaultSinceDays
		}
		now := time.Now
		if h.Now != nil {
			now = h.Now
		}
		since := civil.DateOf(now()).AddDays(-days)
		res, err := pipeline.PullLedger(ctx, h.Ledger, h.Store, since, job.AccountID)
		if err != nil {
			return fmt.Errorf("ledger_pull: %w", err)
		}
		job.Result = map[string]int{"fetched": res.Fetched, "saved": res.Saved, "failed": res.Failed}
		return nil
	}
	return fmt.Errorf("unknown job type %q", job.Type)
}
