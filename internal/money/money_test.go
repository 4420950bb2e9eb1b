package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMajor(t *testing.T) {
	tests := []struct {
		in   string
		want Milliunits
	}{
		{"10.00", 10000},
		{"35.62", 35620},
		{"0.0005", 1},
		{"-0.0005", -1},
		{"1.2344", 1234},
		{"-25", -25000},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FromMajor(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestMilliunitsMajorRoundTrip(t *testing.T) {
	m := Milliunits(-35620)
	assert.True(t, m.Major().Equal(decimal.RequireFromString("-35.62")))
	assert.Equal(t, m, FromMajor(m.Major()))
	assert.Equal(t, Milliunits(35620), m.Abs())
	assert.Equal(t, Milliunits(35620), m.Negate())
	assert.Equal(t, "-35620", m.String())
}

func TestParseMajor(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"12.99", "12.99", false},
		{"$12.99", "12.99", false},
		{"  $1.04 ", "1.04", false},
		{"-$3.00", "-3", false},
		{"invalid", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMajor(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "$12.30", Format(decimal.RequireFromString("12.3")))
	assert.Equal(t, "-$5.00", Format(decimal.NewFromInt(-5)))
	assert.Equal(t, "-$10.00", FormatMilliunits(-10000))
	assert.Equal(t, "+$1.50", FormatMilliunits(1500))
}

func TestSum(t *testing.T) {
	assert.Equal(t, Milliunits(-25000), Sum(-10000, -15000))
	assert.Equal(t, Milliunits(0), Sum())
}
