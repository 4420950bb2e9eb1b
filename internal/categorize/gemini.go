// Package categorize suggests budget categories for receipt items with a
// Gemini model.
package categorize

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dvloznov/ynab-itemized/internal/ledger"
	"github.com/dvloznov/ynab-itemized/internal/logger"
	"google.golang.org/genai"
)

// Generator sends a prompt to a model and returns its text answer.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator is the genai implementation of Generator.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a genai client. Credentials come from the
// environment (GOOGLE_API_KEY or Vertex AI settings).
func NewGeminiGenerator(ctx context.Context, model string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}

// Categorizer maps item names to category ids. It satisfies
// splits.Categorizer.
type Categorizer struct {
	gen Generator
}

func New(gen Generator) *Categorizer {
	return &Categorizer{gen: gen}
}

// SuggestCategories asks the model for a category per item. Answers that
// do not resolve to a known category are dropped.
func (c *Categorizer) SuggestCategories(ctx context.Context, names []string, categories []ledger.Category) (map[string]string, error) {
	log := logger.FromContext(ctx)
	if len(names) == 0 {
		return map[string]string{}, nil
	}

	prompt, err := BuildPrompt(names, categories)
	if err != nil {
		return nil, err
	}
	raw, err := c.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("SuggestCategories: %w", err)
	}

	var answers map[string]string
	if err := json.Unmarshal([]byte(CleanModelJSON(raw)), &answers); err != nil {
		return nil, fmt.Errorf("SuggestCategories: unmarshal JSON: %w", err)
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	v := NewCategoryValidator(categories)
	out := make(map[string]string, len(answers))
	for name, answer := range answers {
		if !wanted[name] {
			continue
		}
		id, ok := v.Resolve(answer)
		if !ok {
			log.Debug().Str("item", name).Str("answer", answer).Msg("Dropping unknown category")
			continue
		}
		out[name] = id
	}
	return out, nil
}
