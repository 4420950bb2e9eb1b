package handlers

import (
	"net/http"
	"strconv"

	"github.com/dvloznov/ynab-itemized/internal/api/middleware"
	"github.com/dvloznov/ynab-itemized/internal/jobs"
	"github.com/dvloznov/ynab-itemized/internal/logger"
	"github.com/gin-gonic/gin"
)

// EnqueueMatchSweep handles POST /api/jobs/match-sweep
func (h *Handler) EnqueueMatchSweep(c *gin.Context) {
	h.enqueue(c, &jobs.Job{Type: jobs.JobTypeMatchSweep})
}

// EnqueueLedgerPull handles POST /api/jobs/ledger-pull
func (h *Handler) EnqueueLedgerPull(c *gin.Context) {
	var req struct {
		SinceDays int    `json:"since_days"`
		AccountID string `json:"account_id"`
	}
	if !bindOptional(c, &req) {
		return
	}
	if req.SinceDays < 0 {
		middleware.WriteError(c, http.StatusBadRequest, "since_days cannot be negative")
		return
	}
	h.enqueue(c, &jobs.Job{Type: jobs.JobTypeLedgerPull, SinceDays: req.SinceDays, AccountID: req.AccountID})
}

func (h *Handler) enqueue(c *gin.Context, job *jobs.Job) {
	if h.publisher == nil {
		unavailable(c, "Job queue")
		return
	}
	if err := h.publisher.Publish(c.Request.Context(), job); err != nil {
		h.fail(c, err)
		return
	}

	logger.FromContext(c.Request.Context()).Info().
		Str("job_id", job.ID).
		Str("job_type", string(job.Type)).
		Msg("Job enqueued")

	c.JSON(http.StatusAccepted, gin.H{
		"job_id": job.ID,
		"type":   job.Type,
		"status": jobs.JobStatusPending,
	})
}

// GetJob handles GET /api/jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	if h.jobStore == nil {
		unavailable(c, "Job store")
		return
	}
	job, err := h.jobStore.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *Handler) ListJobs(c *gin.Context) {
	if h.jobStore == nil {
		unavailable(c, "Job store")
		return
	}
	filter := jobs.JobFilter{
		Type:   jobs.JobType(c.Query("type")),
		Status: jobs.JobStatus(c.Query("status")),
	}
	if n, err := strconv.Atoi(c.Query("limit")); err == nil {
		filter.Limit = n
	}
	if n, err := strconv.Atoi(c.Query("offset")); err == nil {
		filter.Offset = n
	}

	list, err := h.jobStore.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": list, "count": len(list)})
}
