// Package handlers implements the review API endpoints.
package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/ynab-itemized/internal/api/middleware"
	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/jobs"
	"github.com/dvloznov/ynab-itemized/internal/ledger"
	"github.com/dvloznov/ynab-itemized/internal/logger"
	"github.com/dvloznov/ynab-itemized/internal/matching"
	"github.com/dvloznov/ynab-itemized/internal/splits"
	"github.com/dvloznov/ynab-itemized/internal/store"
	"github.com/gin-gonic/gin"
)

// MatchService is implemented by matching.Matcher.
type MatchService interface {
	FindMatches(ctx context.Context, it *domain.ItemizedTransaction) ([]matching.Candidate, error)
	CreateMatch(ctx context.Context, lt *domain.LedgerTransaction, it *domain.ItemizedTransaction, score float64, method domain.MatchMethod, reviewedBy string) (*domain.TransactionMatch, error)
	AcceptMatch(ctx context.Context, matchID, reviewer string) (*domain.TransactionMatch, error)
	RejectMatch(ctx context.Context, matchID, reviewer string) (*domain.TransactionMatch, error)
	MarkNoMatch(ctx context.Context, itemizedID, notes string) (*domain.ItemizedTransaction, error)
}

// SplitService is implemented by splits.Service.
type SplitService interface {
	Preview(ctx context.Context, itemizedID string, opts splits.Options) (*domain.ItemizedTransaction, []domain.Subtransaction, error)
	Sync(ctx context.Context, itemizedID string, opts splits.Options, categorize, dryRun bool) (*splits.SyncResult, error)
}

// Deps wires a Handler. Splits and the job fields may be nil, in which case
// their endpoints answer 503.
type Deps struct {
	Store     store.Store
	Matcher   MatchService
	Splits    SplitService
	Publisher jobs.Publisher
	JobStore  jobs.JobStore
}

// Handler serves every review API route.
type Handler struct {
	store     store.Store
	matcher   MatchService
	splits    SplitService
	publisher jobs.Publisher
	jobStore  jobs.JobStore
}

// New creates a Handler.
func New(d Deps) *Handler {
	return &Handler{
		store:     d.Store,
		matcher:   d.Matcher,
		splits:    d.Splits,
		publisher: d.Publisher,
		jobStore:  d.JobStore,
	}
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// fail maps err onto a status code and writes it.
func (h *Handler) fail(c *gin.Context, err error) {
	var (
		validation *domain.ValidationError
		reconcile  *splits.ReconciliationError
		rateLimit  *ledger.RateLimitError
		rejected   *ledger.ValidationError
		notFound   *ledger.NotFoundError
		apiErr     *ledger.APIError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, jobs.ErrJobNotFound), errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &validation), errors.As(err, &reconcile), errors.Is(err, splits.ErrNotLinked),
		errors.As(err, &rejected):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &rateLimit):
		status = http.StatusTooManyRequests
		if rateLimit.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rateLimit.RetryAfter.Seconds()))))
		}
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
	}

	log := logger.FromContext(c.Request.Context())
	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Int("status", status).Str("path", c.FullPath()).Msg("Request failed")

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal server error"
	}
	middleware.WriteError(c, status, msg)
}

func unavailable(c *gin.Context, what string) {
	middleware.WriteError(c, http.StatusServiceUnavailable, what+" is not configured")
}

// bindOptional decodes a JSON body when one was sent.
func bindOptional(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		middleware.WriteError(c, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func queryBool(c *gin.Context, key string) bool {
	v, err := strconv.ParseBool(c.Query(key))
	return err == nil && v
}
