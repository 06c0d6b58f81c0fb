// Package report writes the evaluation log as CSV in the fixed column order
// the operations side expects, with Japanese headers and a UTF-8 BOM so
// spreadsheet tools open it correctly.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sellerforge/listing-checker/internal/decision"
)

var headers = []string{
	"判定日時", "国", "Excel行", "ASIN", "SKU",
	"出品price(外貨)",
	"Amazon商品価格(円)", "Amazonページ配送料(円)", "Amazon合計(円)", "出荷元Amazon", "中古", "おすすめ出品なし",
	"SKU送料(円)", "MX小型包装物(円)", "MX小型包装物送料(外貨)", "通関固定(円)", "基準円(base)(円)",
	"為替(JPY/外貨)", "係数(multiplier)", "期待価格(外貨)", "外貨差",
	"許容差(円)", "許容差(外貨)", "商品価格桁数",
	"SKU仕入(円)", "仕入差(円)", "配送日数",
	"判定コード", "判定", "理由コード", "理由",
	"デバッグ",
}

var bom = []byte{0xEF, 0xBB, 0xBF}

// Write emits the log for records to w.
func Write(w io.Writer, records []decision.Record) error {
	if _, err := w.Write(bom); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(row(rec)); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush log: %w", err)
	}
	return nil
}

// WriteFile writes the log to path, replacing any existing file.
func WriteFile(path string, records []decision.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	if err := Write(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func row(rec decision.Record) []string {
	return []string{
		rec.Timestamp,
		rec.Country,
		strconv.Itoa(rec.Row),
		rec.ASIN,
		rec.SKU,
		fmtFloat(rec.ListingPriceForeign),
		fmtFloat(rec.ItemPriceYen),
		fmtFloat(rec.PageShippingYen),
		fmtFloat(rec.TotalYen),
		fmtBool(rec.ShippedByAmazon),
		fmtBool(rec.IsUsed),
		strconv.FormatBool(rec.NoFeaturedOffer),
		fmtFloat(rec.SKUShippingYen),
		fmtFloat(rec.SmallPacketYen),
		fmtFloat(rec.SmallPacketForeign),
		fmtFloat(rec.CustomsFixedYen),
		fmtFloat(rec.BaseYen),
		fmtFloat(rec.FXJPYPerUnit),
		fmtFloat(rec.Multiplier),
		fmtFloat(rec.ExpectedForeign),
		fmtFloat(rec.DiffForeign),
		fmtFloat(rec.ToleranceYen),
		fmtFloat(rec.ToleranceForeign),
		fmtInt(rec.PriceDigits),
		fmtFloat(rec.SKUCostYen),
		fmtFloat(rec.BuyDiffYen),
		fmtInt(rec.DeliveryDays),
		string(rec.Decision),
		rec.Decision.Label(),
		string(rec.Reason),
		rec.Reason.Label(),
		rec.Trace,
	}
}

func fmtFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func fmtInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func fmtBool(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}
