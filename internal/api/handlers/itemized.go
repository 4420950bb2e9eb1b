package handlers

import (
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ynab-itemized/internal/api/middleware"
	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/pipeline"
	"github.com/dvloznov/ynab-itemized/internal/store"
	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ListItemized handles GET /api/itemized
func (h *Handler) ListItemized(c *gin.Context) {
	filter := store.ItemizedFilter{Limit: defaultListLimit}

	if s := c.Query("status"); s != "" {
		status := domain.MatchStatus(s)
		if !status.Valid() {
			middleware.WriteError(c, http.StatusBadRequest, "Invalid status")
			return
		}
		filter.Status = status
	}
	for key, dst := range map[string]*civil.Date{"from": &filter.From, "to": &filter.To} {
		if s := c.Query(key); s != "" {
			d, err := civil.ParseDate(s)
			if err != nil {
				middleware.WriteError(c, http.StatusBadRequest, "Invalid "+key+" date, expected YYYY-MM-DD")
				return
			}
			*dst = d
		}
	}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			middleware.WriteError(c, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = min(n, maxListLimit)
	}
	if s := c.Query("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			middleware.WriteError(c, http.StatusBadRequest, "Invalid offset")
			return
		}
		filter.Offset = n
	}

	txs, err := h.store.ListItemized(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	if txs == nil {
		txs = []*domain.ItemizedTransaction{}
	}
	c.JSON(http.StatusOK, gin.H{
		"itemized": txs,
		"count":    len(txs),
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

// GetItemized handles GET /api/itemized/:id and includes the validation
// messages of the receipt.
func (h *Handler) GetItemized(c *gin.Context) {
	it, err := h.store.GetItemized(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	valid, messages := domain.ValidateTransactionTotals(it)
	warnings := pipeline.Warnings(it)
	if messages == nil {
		messages = []string{}
	}
	if warnings == nil {
		warnings = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"itemized": it,
		"validation": gin.H{
			"valid":         valid && len(warnings) == 0,
			"totals":        messages,
			"item_warnings": warnings,
		},
	})
}

// DeleteItemized handles DELETE /api/itemized/:id
func (h *Handler) DeleteItemized(c *gin.Context) {
	id := c.Param("id")
	deleted, err := h.store.DeleteItemized(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !deleted {
		middleware.WriteError(c, http.StatusNotFound, "Itemized transaction not found")
		return
	}
	c.Status(http.StatusNoContent)
}
