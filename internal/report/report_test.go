package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellerforge/listing-checker/internal/decision"
)

func TestWrite(t *testing.T) {
	price := 44.56
	item := 3000.0
	digits := 4
	records := []decision.Record{
		{
			Timestamp:           "2026-08-31T12:00:00",
			Country:             "US",
			Row:                 5,
			ASIN:                "B000TEST01",
			SKU:                 "housou-3000-8",
			ListingPriceForeign: &price,
			ItemPriceYen:        &item,
			PriceDigits:         &digits,
			Decision:            decision.VerdictKeep,
			Reason:              decision.ReasonOK,
			Trace:               "price:selected_tile",
		},
		{
			Timestamp: "2026-08-31T12:00:05",
			Country:   "US",
			Row:       6,
			ASIN:      "B000TEST02",
			SKU:       "housou-1500-8",
			Decision:  decision.VerdictSkip,
			Reason:    decision.ReasonFetchError,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, records))

	out := buf.Bytes()
	require.True(t, bytes.HasPrefix(out, []byte{0xEF, 0xBB, 0xBF}), "missing UTF-8 BOM")

	rows, err := csv.NewReader(bytes.NewReader(out[3:])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	header := rows[0]
	assert.Equal(t, "判定日時", header[0])
	assert.Equal(t, "デバッグ", header[len(header)-1])
	assert.Len(t, header, 32)

	first := rows[1]
	assert.Len(t, first, len(header))
	assert.Equal(t, "US", first[1])
	assert.Equal(t, "5", first[2])
	assert.Equal(t, "B000TEST01", first[3])
	assert.Equal(t, "44.56", first[5])
	assert.Equal(t, "KEEP", first[27])
	assert.Equal(t, "保持", first[28])
	assert.Equal(t, "OK", first[29])

	second := rows[2]
	assert.Equal(t, "SKIP", second[27])
	assert.Equal(t, "SKIP", second[28])
	assert.Equal(t, "FETCH_ERROR", second[29])
	assert.Equal(t, "自動取得失敗", second[30])
	// Optional numeric fields stay empty, not zero.
	assert.Equal(t, "", second[5])
}

func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}
