package notionsync

import (
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/ynab-itemized/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the review database.
const (
	PropTransactionID = "Transaction ID"
	PropMerchant      = "Merchant"
	PropDate          = "Date"
	PropTotal         = "Total"
	PropStatus        = "Match Status"
	PropConfidence    = "Match Confidence"
	PropYnabID        = "YNAB ID"
	PropSource        = "Source"
	PropItemCount     = "Item Count"
	PropItems         = "Items"
	PropSynced        = "Splits Synced"
)

// Notion rejects rich text segments longer than this.
const maxRichText = 2000

// ItemizedToProperties maps an itemized transaction onto the review
// database columns. Empty values are left out so an update does not blank a
// column edited in Notion.
func ItemizedToProperties(tx *domain.ItemizedTransaction) notionapi.Properties {
	props := notionapi.Properties{
		PropTransactionID: notionapi.TitleProperty{
			Title: []notionapi.RichText{text(tx.ID)},
		},
		PropStatus: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(tx.MatchStatus)},
		},
		PropItemCount: notionapi.NumberProperty{
			Number: float64(len(tx.Items)),
		},
		PropSynced: notionapi.CheckboxProperty{
			Checkbox: tx.SubtransactionsSyncedAt != nil,
		},
	}

	merchant := tx.MerchantName
	if merchant == "" {
		merchant = tx.StoreName
	}
	if merchant != "" {
		props[PropMerchant] = richText(merchant)
	}

	if !tx.TransactionDate.IsZero() {
		d := notionapi.Date(tx.TransactionDate.In(time.UTC))
		props[PropDate] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &d},
		}
	}

	total := tx.EffectiveTotal()
	props[PropTotal] = notionapi.NumberProperty{Number: total.InexactFloat64()}

	if tx.MatchConfidence != nil {
		props[PropConfidence] = notionapi.NumberProperty{Number: *tx.MatchConfidence}
	}
	if id := tx.LedgerID(); id != "" {
		props[PropYnabID] = richText(id)
	}
	if tx.Source != "" {
		props[PropSource] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: tx.Source},
		}
	}
	if summary := itemSummary(tx.Items); summary != "" {
		props[PropItems] = richText(summary)
	}

	return props
}

// itemSummary renders one "name x qty: amount" line per item.
func itemSummary(items []domain.TransactionItem) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(item.Name)
		if item.Quantity > 1 {
			b.WriteString(" x")
			b.WriteString(strconv.Itoa(item.Quantity))
		}
		b.WriteString(": ")
		b.WriteString(item.Amount.StringFixed(2))
	}
	return domain.TruncateString(b.String(), maxRichText)
}

func text(s string) notionapi.RichText {
	return notionapi.RichText{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: s},
	}
}

func richText(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{RichText: []notionapi.RichText{text(s)}}
}

// pageTransactionID reads the title of a page returned by a query.
func pageTransactionID(page notionapi.Page) string {
	prop, ok := page.Properties[PropTransactionID]
	if !ok {
		return ""
	}
	var title []notionapi.RichText
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		title = p.Title
	case notionapi.TitleProperty:
		title = p.Title
	}
	if len(title) == 0 {
		return ""
	}
	if title[0].PlainText != "" {
		return title[0].PlainText
	}
	if title[0].Text != nil {
		return title[0].Text.Content
	}
	return ""
}
