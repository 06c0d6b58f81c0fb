// Package rows loads seller listing files and writes them back with deleted
// rows removed.
package rows

import (
	"encoding/csv"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/sellerforge/listing-checker/internal/money"
)

// Header discovery scans at most this many leading rows and columns.
const (
	headerSearchRows = 80
	headerSearchCols = 40
)

// Fixed column roles in the listing file.
const (
	colSKU = iota
	colPrice
	colQuantity
	colASIN
)

var asinRe = regexp.MustCompile(`^[A-Z0-9]{10}$`)

// ListingRow is one data row from the seller's listing file. Position is the
// 1-based row number in the source file, used to address deletions.
type ListingRow struct {
	Position     int
	SKU          string
	PriceForeign *float64
	Quantity     string
	ASIN         string
}

// HasValidASIN reports whether the row carries a structurally valid product
// code.
func (r ListingRow) HasValidASIN() bool {
	return asinRe.MatchString(r.ASIN)
}

// LoadCSV reads a listing file. The header row is discovered by scanning for
// a row containing both "sku" and "product-id" cells; data rows follow it.
// Rows with no ASIN, fully blank rows, and echoed header rows are skipped.
func LoadCSV(path string) ([]ListingRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open listing file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read listing file: %w", err)
	}

	headerIdx := findHeaderRow(records)
	if headerIdx < 0 {
		return nil, fmt.Errorf("no header row with sku and product-id columns in %s", path)
	}

	var rows []ListingRow
	for i := headerIdx + 1; i < len(records); i++ {
		rec := records[i]
		skuVal := money.CleanText(cell(rec, colSKU))
		price := money.CleanText(cell(rec, colPrice))
		asin := strings.ReplaceAll(money.CleanText(cell(rec, colASIN)), " ", "")

		if asin == "" && skuVal == "" && price == "" {
			continue
		}
		if strings.EqualFold(asin, "product-id") || strings.EqualFold(skuVal, "sku") {
			continue
		}
		if asin == "" {
			continue
		}

		rows = append(rows, ListingRow{
			Position:     i + 1,
			SKU:          skuVal,
			PriceForeign: money.ParseNumber(price),
			Quantity:     money.CleanText(cell(rec, colQuantity)),
			ASIN:         asin,
		})
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("no data rows in %s", path)
	}
	return rows, nil
}

// WriteWithRemovals copies the listing file from src to dst, dropping
// exactly the rows at the given 1-based positions.
func WriteWithRemovals(src, dst string, remove []int) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read source file: %w", err)
	}

	removed := make(map[int]bool, len(remove))
	for _, pos := range remove {
		removed[pos] = true
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	writer := csv.NewWriter(out)
	for i, rec := range records {
		if removed[i+1] {
			continue
		}
		if err := writer.Write(rec); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush output file: %w", err)
	}
	return nil
}

func findHeaderRow(records [][]string) int {
	limit := len(records)
	if limit > headerSearchRows {
		limit = headerSearchRows
	}
	for i := 0; i < limit; i++ {
		hasSKU, hasProductID := false, false
		for j, v := range records[i] {
			if j >= headerSearchCols {
				break
			}
			switch strings.ToLower(money.CleanText(v)) {
			case "sku":
				hasSKU = true
			case "product-id":
				hasProductID = true
			}
		}
		if hasSKU && hasProductID {
			return i
		}
	}
	return -1
}

func cell(rec []string, idx int) string {
	if idx >= len(rec) {
		return ""
	}
	return rec[idx]
}
