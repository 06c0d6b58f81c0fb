package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "1,234", "1,234"},
		{"line breaks", "¥1,234\n配送料無料", "¥1,234 配送料無料"},
		{"carriage returns", "foo\r\nbar", "foo bar"},
		{"collapses spaces", "  a   b  ", "a b"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanText(tt.input))
		})
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected *float64
	}{
		{"integer", "1500", floatPtr(1500)},
		{"thousands separator", "4,519", floatPtr(4519)},
		{"decimal", "12.34", floatPtr(12.34)},
		{"whitespace", "  42 ", floatPtr(42)},
		{"empty", "", nil},
		{"not a number", "abc", nil},
		{"trailing junk", "12円", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseNumber(tt.input)
			if tt.expected == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.expected, *got, 1e-9)
		})
	}
}

func TestExtractYenPrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected *int
	}{
		{"yen symbol", "¥100", intPtr(100)},
		{"fullwidth yen symbol", "￥1,234", intPtr(1234)},
		{"yen symbol with space", "¥ 2,980", intPtr(2980)},
		{"yen suffix", "4,519円", intPtr(4519)},
		{"yen suffix in sentence", "価格: 1,980円 (税込)", intPtr(1980)},
		{"bare number with separator", "1,234", intPtr(1234)},
		{"bare three digits", "500", intPtr(500)},
		{"bare number too small", "99", nil},
		{"quantity is not a price", "1個", nil},
		{"two digits", "12", nil},
		{"symbol beats bare number", "在庫3点 ¥880", intPtr(880)},
		{"suffix beats bare number", "3点 880円", intPtr(880)},
		{"over window", "¥10,000,000", nil},
		{"at window ceiling", "¥9,999,999", intPtr(9_999_999)},
		{"empty", "", nil},
		{"no digits", "在庫なし", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractYenPrice(tt.input)
			if tt.expected == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.expected, *got)
		})
	}
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
