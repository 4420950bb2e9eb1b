package categorize

import (
	"strings"

	"github.com/dvloznov/ynab-itemized/internal/ledger"
)

// CategoryValidator resolves model answers against the budget's categories.
type CategoryValidator struct {
	ids    map[string]bool
	byName map[string]string // normalized name -> id
}

// NewCategoryValidator indexes the visible categories by id and name.
func NewCategoryValidator(categories []ledger.Category) *CategoryValidator {
	v := &CategoryValidator{
		ids:    make(map[string]bool),
		byName: make(map[string]string),
	}
	for _, c := range categories {
		if c.Hidden || c.Deleted {
			continue
		}
		v.ids[c.ID] = true
		name := normalizeCategory(c.Name)
		if _, taken := v.byName[name]; !taken {
			v.byName[name] = c.ID
		}
	}
	return v
}

// Resolve returns the category id for an answer that is either an id or
// a category name. Unknown answers resolve to "", false.
func (v *CategoryValidator) Resolve(answer string) (string, bool) {
	answer = strings.TrimSpace(answer)
	if v.ids[answer] {
		return answer, true
	}
	if id, ok := v.byName[normalizeCategory(answer)]; ok {
		return id, true
	}
	return "", false
}

// normalizeCategory converts to uppercase and trims whitespace for
// case-insensitive comparison.
func normalizeCategory(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
