package handlers

import (
	"net/http"

	"github.com/dvloznov/ynab-itemized/internal/api/middleware"
	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/matching"
	"github.com/gin-gonic/gin"
)

// apiReviewer is recorded when a review request names nobody.
const apiReviewer = "api"

type candidateResponse struct {
	Ledger   *domain.LedgerTransaction `json:"ynab_transaction"`
	Score    float64                   `json:"score"`
	Criteria map[string]any            `json:"criteria"`
}

// Candidates handles GET /api/itemized/:id/candidates
func (h *Handler) Candidates(c *gin.Context) {
	ctx := c.Request.Context()
	it, err := h.store.GetItemized(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	found, err := h.matcher.FindMatches(ctx, it)
	if err != nil {
		h.fail(c, err)
		return
	}

	out := make([]candidateResponse, 0, len(found))
	for _, cand := range found {
		out = append(out, candidateResponse{
			Ledger:   cand.Ledger,
			Score:    cand.Score,
			Criteria: cand.Breakdown.Criteria(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"candidates": out, "count": len(out)})
}

// CreateMatch handles POST /api/itemized/:id/matches. The match is manual;
// it is accepted immediately when reviewed_by is given.
func (h *Handler) CreateMatch(c *gin.Context) {
	var req struct {
		YnabID     string   `json:"ynab_id" binding:"required"`
		ReviewedBy string   `json:"reviewed_by"`
		Score      *float64 `json:"score"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.WriteError(c, http.StatusBadRequest, "ynab_id is required")
		return
	}

	ctx := c.Request.Context()
	it, err := h.store.GetItemized(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	lt, err := h.store.GetLedgerTransaction(ctx, req.YnabID)
	if err != nil {
		h.fail(c, err)
		return
	}

	score := matching.Score(it, lt)
	if req.Score != nil {
		score = *req.Score
	}
	match, err := h.matcher.CreateMatch(ctx, lt, it, score, domain.MatchMethodManual, req.ReviewedBy)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, match)
}

// NoMatch handles POST /api/itemized/:id/no-match
func (h *Handler) NoMatch(c *gin.Context) {
	var req struct {
		Notes string `json:"notes"`
	}
	if !bindOptional(c, &req) {
		return
	}
	it, err := h.matcher.MarkNoMatch(c.Request.Context(), c.Param("id"), req.Notes)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

type reviewRequest struct {
	ReviewedBy string `json:"reviewed_by"`
}

func (r reviewRequest) reviewer() string {
	if r.ReviewedBy == "" {
		return apiReviewer
	}
	return r.ReviewedBy
}

// AcceptMatch handles POST /api/matches/:id/accept
func (h *Handler) AcceptMatch(c *gin.Context) {
	var req reviewRequest
	if !bindOptional(c, &req) {
		return
	}
	match, err := h.matcher.AcceptMatch(c.Request.Context(), c.Param("id"), req.reviewer())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

// RejectMatch handles POST /api/matches/:id/reject
func (h *Handler) RejectMatch(c *gin.Context) {
	var req reviewRequest
	if !bindOptional(c, &req) {
		return
	}
	match, err := h.matcher.RejectMatch(c.Request.Context(), c.Param("id"), req.reviewer())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}
