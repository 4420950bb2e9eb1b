package categorize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/ynab-itemized/internal/ledger"
)

// BuildPrompt lists the items and the budget's categories, grouped, and
// asks for a JSON object mapping item name to category id.
func BuildPrompt(names []string, categories []ledger.Category) (string, error) {
	if len(categories) == 0 {
		return "", fmt.Errorf("BuildPrompt: no categories available")
	}

	groups := make(map[string][]ledger.Category)
	var order []string
	for _, c := range categories {
		if c.Hidden || c.Deleted {
			continue
		}
		if _, seen := groups[c.GroupName]; !seen {
			order = append(order, c.GroupName)
		}
		groups[c.GroupName] = append(groups[c.GroupName], c)
	}
	sort.Strings(order)

	var b strings.Builder
	b.WriteString("You categorize receipt line items into budget categories.\n\n")
	b.WriteString("Use ONLY the following categories (id in brackets):\n\n")
	for _, g := range order {
		name := g
		if name == "" {
			name = "Other"
		}
		b.WriteString(name + ":\n")
		for _, c := range groups[g] {
			fmt.Fprintf(&b, "  - %s [%s]\n", c.Name, c.ID)
		}
		b.WriteString("\n")
	}

	b.WriteString("Items:\n")
	for _, n := range names {
		b.WriteString("  - " + n + "\n")
	}

	b.WriteString("\nRules:\n")
	b.WriteString("1. Map every item name, exactly as written above, to one category id.\n")
	b.WriteString("2. The id must be one of the bracketed ids above.\n")
	b.WriteString("3. If you are unsure about an item, leave it out.\n\n")
	b.WriteString("Return ONLY a raw JSON object such as {\"item name\": \"category-id\"}.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	return b.String(), nil
}

// CleanModelJSON strips Markdown fences and any text around the outermost
// JSON object.
func CleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
