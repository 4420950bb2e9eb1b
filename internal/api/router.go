// Package api assembles the review API router.
package api

import (
	"github.com/dvloznov/ynab-itemized/internal/api/handlers"
	"github.com/dvloznov/ynab-itemized/internal/api/middleware"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// NewRouter registers every route of the review API on a new engine.
func NewRouter(h *handlers.Handler, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(log),
		middleware.CORS(),
	)

	r.GET("/health", h.Health)

	api := r.Group("/api")
	{
		api.GET("/itemized", h.ListItemized)
		api.GET("/itemized/:id", h.GetItemized)
		api.DELETE("/itemized/:id", h.DeleteItemized)
		api.GET("/itemized/:id/candidates", h.Candidates)
		api.POST("/itemized/:id/matches", h.CreateMatch)
		api.POST("/itemized/:id/no-match", h.NoMatch)
		api.GET("/itemized/:id/splits", h.PreviewSplits)
		api.POST("/itemized/:id/splits/sync", h.SyncSplits)

		api.POST("/matches/:id/accept", h.AcceptMatch)
		api.POST("/matches/:id/reject", h.RejectMatch)

		api.GET("/jobs", h.ListJobs)
		api.GET("/jobs/:id", h.GetJob)
		api.POST("/jobs/match-sweep", h.EnqueueMatchSweep)
		api.POST("/jobs/ledger-pull", h.EnqueueLedgerPull)
	}

	return r
}
