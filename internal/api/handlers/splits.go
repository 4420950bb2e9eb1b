package handlers

import (
	"net/http"

	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/dvloznov/ynab-itemized/internal/money"
	"github.com/dvloznov/ynab-itemized/internal/splits"
	"github.com/gin-gonic/gin"
)

type splitLine struct {
	domain.Subtransaction
	Display string `json:"display_amount"`
}

func splitLines(subs []domain.Subtransaction) []splitLine {
	out := make([]splitLine, 0, len(subs))
	for _, s := range subs {
		out = append(out, splitLine{Subtransaction: s, Display: money.FormatMilliunits(s.Amount)})
	}
	return out
}

// PreviewSplits handles GET /api/itemized/:id/splits
func (h *Handler) PreviewSplits(c *gin.Context) {
	if h.splits == nil {
		unavailable(c, "YNAB client")
		return
	}
	opts := splits.Options{
		IncludeTax:      !queryBool(c, "no_tax"),
		IncludeDiscount: !queryBool(c, "no_discount"),
	}
	it, subs, err := h.splits.Preview(c.Request.Context(), c.Param("id"), opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"itemized_id":     it.ID,
		"ynab_id":         it.LedgerID(),
		"total":           money.FormatMilliunits(it.Ledger.Amount),
		"subtransactions": splitLines(subs),
		"count":           len(subs),
	})
}

// SyncSplits handles POST /api/itemized/:id/splits/sync
func (h *Handler) SyncSplits(c *gin.Context) {
	if h.splits == nil {
		unavailable(c, "YNAB client")
		return
	}
	var req struct {
		DryRun     bool `json:"dry_run"`
		NoTax      bool `json:"no_tax"`
		NoDiscount bool `json:"no_discount"`
		Categorize bool `json:"categorize"`
	}
	if !bindOptional(c, &req) {
		return
	}

	opts := splits.Options{IncludeTax: !req.NoTax, IncludeDiscount: !req.NoDiscount}
	res, err := h.splits.Sync(c.Request.Context(), c.Param("id"), opts, req.Categorize, req.DryRun)
	if err != nil {
		h.fail(c, err)
		return
	}

	body := gin.H{
		"itemized_id":     res.Itemized.ID,
		"dry_run":         res.DryRun,
		"subtransactions": splitLines(res.Subtransactions),
	}
	if res.Updated != nil {
		body["ynab_transaction"] = res.Updated
	}
	c.JSON(http.StatusOK, body)
}
