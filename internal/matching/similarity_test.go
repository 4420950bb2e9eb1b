package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"amazon", "amazon", 1.0},
		{"amazon.com", "amazon", 0.75},
		{"abcd", "bcde", 0.75},
		{"whole foods", "whole foods market", 22.0 / 29.0},
		{"target", "walmart", 6.0 / 13.0},
		{"", "abc", 0},
		{"", "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.InDelta(t, tt.want, SequenceRatio(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSequenceRatio_Symmetric(t *testing.T) {
	assert.InDelta(t, SequenceRatio("trader joe's", "trader joes"), SequenceRatio("trader joes", "trader joe's"), 1e-9)
}
