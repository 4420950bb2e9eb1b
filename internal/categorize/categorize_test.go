package categorize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dvloznov/ynab-itemized/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var categories = []ledger.Category{
	{ID: "cat-groceries", Name: "Groceries", GroupName: "Everyday"},
	{ID: "cat-electronics", Name: "Electronics", GroupName: "Shopping"},
	{ID: "cat-old", Name: "Old Stuff", GroupName: "Shopping", Hidden: true},
}

type fakeGenerator struct {
	answer string
	err    error
	prompt string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.answer, f.err
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a": "b"}`, `{"a": "b"}`},
		{"fenced json", "```json\n{\"a\": \"b\"}\n```", `{"a": "b"}`},
		{"fenced", "```\n{\"a\": \"b\"}\n```", `{"a": "b"}`},
		{"chatty", "Sure! Here you go: {\"a\": \"b\"} Hope it helps.", `{"a": "b"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanModelJSON(tt.in))
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt, err := BuildPrompt([]string{"USB-C Cable"}, categories)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Groceries [cat-groceries]")
	assert.Contains(t, prompt, "  - USB-C Cable\n")
	assert.NotContains(t, prompt, "cat-old")
	assert.Less(t, strings.Index(prompt, "Everyday:"), strings.Index(prompt, "Shopping:"))

	_, err = BuildPrompt([]string{"x"}, nil)
	assert.Error(t, err)
}

func TestCategoryValidator_Resolve(t *testing.T) {
	v := NewCategoryValidator(categories)
	tests := []struct {
		answer string
		want   string
		ok     bool
	}{
		{"cat-groceries", "cat-groceries", true},
		{"groceries", "cat-groceries", true},
		{"  ELECTRONICS ", "cat-electronics", true},
		{"cat-old", "", false},
		{"Travel", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			got, ok := v.Resolve(tt.answer)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSuggestCategories(t *testing.T) {
	gen := &fakeGenerator{answer: "```json\n" + `{
		"USB-C Cable": "cat-electronics",
		"Coffee Beans": "Groceries",
		"Mystery": "cat-nope",
		"Not asked": "cat-groceries"
	}` + "\n```"}

	got, err := New(gen).SuggestCategories(context.Background(),
		[]string{"USB-C Cable", "Coffee Beans", "Mystery"}, categories)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"USB-C Cable":  "cat-electronics",
		"Coffee Beans": "cat-groceries",
	}, got)
	assert.Contains(t, gen.prompt, "Coffee Beans")
}

func TestSuggestCategories_Failures(t *testing.T) {
	_, err := New(&fakeGenerator{err: errors.New("quota")}).SuggestCategories(context.Background(), []string{"x"}, categories)
	assert.Error(t, err)

	_, err = New(&fakeGenerator{answer: "not json"}).SuggestCategories(context.Background(), []string{"x"}, categories)
	assert.Error(t, err)

	got, err := New(&fakeGenerator{}).SuggestCategories(context.Background(), nil, categories)
	require.NoError(t, err)
	assert.Empty(t, got)
}
