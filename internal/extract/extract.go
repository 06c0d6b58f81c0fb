// Package extract holds the page-signal heuristics. Everything here is a pure
// function over harvested text or HTML, so the rules are testable without a
// browser.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sellerforge/listing-checker/internal/money"
)

// Signals are the listing facts derived from one product-page visit.
type Signals struct {
	ItemPriceYen    *int
	ShippingYen     *int
	DeliveryDays    *int
	ShippedByAmazon bool
	IsUsed          *bool // true=used, false=new, nil=unknown
	NoFeaturedOffer bool
	Trace           string
}

var (
	shippingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(配送料|送料)\s*[:：]?\s*\+?\s*[￥¥]\s*([0-9,]+)`),
		regexp.MustCompile(`\+\s*[￥¥]\s*([0-9,]+)\s*(配送料|送料)`),
		regexp.MustCompile(`[￥¥]\s*([0-9,]+)\s*(配送料|送料)`),
	}
	firstNumberRe    = regexp.MustCompile(`[0-9,]+`)
	shippingHTMLRe   = regexp.MustCompile(`(配送料|送料)[^￥¥]{0,40}[￥¥]\s*([0-9,]+)`)
	shippedByHTMLRes = []*regexp.Regexp{
		regexp.MustCompile(`(?s)出荷元.{0,80}Amazon`),
		regexp.MustCompile(`(?s)Ships from.{0,80}Amazon`),
	}

	dateFullRe  = regexp.MustCompile(`([0-9]{4})年([0-9]{1,2})月([0-9]{1,2})日`)
	dateShortRe = regexp.MustCompile(`([0-9]{1,2})月([0-9]{1,2})日`)
	dateSlashRe = regexp.MustCompile(`(?:([0-9]{4})\s*/\s*)?([0-9]{1,2})\s*/\s*([0-9]{1,2})`)
	rangeDaysRe = regexp.MustCompile(`([0-9]+)\s*[～\-]\s*([0-9]+)\s*日`)
	plainDaysRe = regexp.MustCompile(`([0-9]+)\s*日`)

	conditionLabelNewRe  = regexp.MustCompile(`(状態|コンディション|Condition)\s*[:：]?\s*新品`)
	conditionLabelUsedRe = regexp.MustCompile(`(状態|コンディション|Condition)\s*[:：]?\s*中古`)
)

var shippedByKeys = []string{"出荷元", "Ships from", "Dispatches from"}

// ShippingYen reads a page shipping fee out of delivery text. Free-shipping
// phrases map to 0; an unmatched text returns nil (not free).
func ShippingYen(text string) *int {
	if text == "" {
		return nil
	}
	if strings.Contains(text, "送料無料") || strings.Contains(text, "無料配送") {
		zero := 0
		return &zero
	}
	for _, p := range shippingPatterns {
		m := p.FindString(text)
		if m == "" {
			continue
		}
		if num := firstNumberRe.FindString(m); num != "" {
			if v, err := strconv.Atoi(strings.ReplaceAll(num, ",", "")); err == nil {
				return &v
			}
		}
	}
	return nil
}

// ShippingYenFromTexts returns the first shipping fee found in texts.
func ShippingYenFromTexts(texts []string) *int {
	for _, t := range texts {
		if v := ShippingYen(t); v != nil {
			return v
		}
	}
	return nil
}

// ShippingYenFromHTML is the raw-page fallback when no delivery text matched.
func ShippingYenFromHTML(html string) *int {
	if html == "" {
		return nil
	}
	if strings.Contains(html, "送料無料") || strings.Contains(html, "無料配送") {
		zero := 0
		return &zero
	}
	if m := shippingHTMLRe.FindStringSubmatch(html); m != nil {
		if v, err := strconv.Atoi(strings.ReplaceAll(m[2], ",", "")); err == nil {
			return &v
		}
	}
	return nil
}

// ShippedByAmazon reports whether text names Amazon as the shipper.
func ShippedByAmazon(text string) bool {
	if text == "" {
		return false
	}
	hasKey := false
	for _, k := range shippedByKeys {
		if strings.Contains(text, k) {
			hasKey = true
			break
		}
	}
	return hasKey && strings.Contains(strings.ToLower(text), "amazon")
}

// ShippedByAmazonHTML scans raw page HTML for a shipper row naming Amazon,
// tolerating markup between the label and the merchant name.
func ShippedByAmazonHTML(html string) bool {
	for _, re := range shippedByHTMLRes {
		if re.MatchString(html) {
			return true
		}
	}
	return false
}

// DeliveryDays estimates the slow end of a delivery promise, in days from
// today. Dated promises win over plain day counts; when several dates appear
// the latest one is used. Dated estimates beyond 60 days and counts beyond 30
// are rejected as noise.
func DeliveryDays(text string, today time.Time) *int {
	if text == "" {
		return nil
	}
	if strings.Contains(text, "明日") {
		one := 1
		return &one
	}
	if strings.Contains(text, "今日") {
		zero := 0
		return &zero
	}

	today = dateOnly(today)
	var candidates []time.Time

	for _, m := range dateFullRe.FindAllStringSubmatch(text, -1) {
		if d, ok := makeDate(atoi(m[1]), atoi(m[2]), atoi(m[3])); ok {
			candidates = append(candidates, d)
		}
	}
	for _, m := range dateShortRe.FindAllStringSubmatch(text, -1) {
		mo, d := atoi(m[1]), atoi(m[2])
		y := today.Year()
		// Year-end promises roll into January of next year.
		if mo < int(today.Month())-6 {
			y++
		}
		if dd, ok := makeDate(y, mo, d); ok {
			candidates = append(candidates, dd)
		}
	}
	for _, m := range dateSlashRe.FindAllStringSubmatch(text, -1) {
		y := today.Year()
		if m[1] != "" {
			y = atoi(m[1])
		}
		mo, d := atoi(m[2]), atoi(m[3])
		if m[1] == "" && mo < int(today.Month())-6 {
			y++
		}
		if dd, ok := makeDate(y, mo, d); ok {
			candidates = append(candidates, dd)
		}
	}

	if len(candidates) > 0 {
		mx := -1
		for _, c := range candidates {
			delta := int(c.Sub(today).Hours() / 24)
			if delta >= 0 && delta > mx {
				mx = delta
			}
		}
		if mx >= 0 && mx <= 60 {
			return &mx
		}
	}

	if m := rangeDaysRe.FindStringSubmatch(text); m != nil {
		hi := atoi(m[2])
		if hi >= 0 && hi <= 30 {
			return &hi
		}
		return nil
	}
	if m := plainDaysRe.FindStringSubmatch(text); m != nil {
		n := atoi(m[1])
		if n >= 0 && n <= 30 {
			return &n
		}
		return nil
	}
	return nil
}

// DeliveryDaysFromTexts returns the first delivery estimate found in texts.
func DeliveryDaysFromTexts(texts []string, today time.Time) *int {
	for _, t := range texts {
		if v := DeliveryDays(t, today); v != nil {
			return v
		}
	}
	return nil
}

// Condition classifies the listing as used (true), new (false) or unknown
// (nil). Labeled condition rows take priority; otherwise only the first two
// short fragments are trusted, since deep page text mentions both words.
func Condition(texts []string) *bool {
	for _, t := range texts {
		if !strings.Contains(t, "状態") && !strings.Contains(t, "コンディション") && !strings.Contains(t, "Condition") {
			continue
		}
		if conditionLabelNewRe.MatchString(t) {
			return boolPtr(false)
		}
		if conditionLabelUsedRe.MatchString(t) {
			return boolPtr(true)
		}
		if strings.Contains(t, "新品") && !strings.Contains(t, "中古") {
			return boolPtr(false)
		}
		if strings.Contains(t, "中古") && !strings.Contains(t, "新品") {
			return boolPtr(true)
		}
	}
	for i, t := range texts {
		if i >= 2 {
			break
		}
		if strings.Contains(t, "新品") && !strings.Contains(t, "中古") {
			return boolPtr(false)
		}
		if strings.Contains(t, "中古") && !strings.Contains(t, "新品") {
			return boolPtr(true)
		}
	}
	return nil
}

// NoFeaturedOffer reports whether the page has no featured offer: either an
// explicit no-recommended-offer notice, or a buying-options prompt with no
// cart button.
func NoFeaturedOffer(html string, hasCartButton bool) bool {
	if strings.Contains(html, "おすすめの出品はありません") || strings.Contains(html, "おすすめの出品がありません") {
		return true
	}
	if (strings.Contains(html, "すべての購入オプション") || strings.Contains(html, "See All Buying Options")) && !hasCartButton {
		return true
	}
	return false
}

// PriceFromTexts returns the first yen price found in texts.
func PriceFromTexts(texts []string) *int {
	for _, t := range texts {
		if v := money.ExtractYenPrice(t); v != nil {
			return v
		}
	}
	return nil
}

func makeDate(y, mo, d int) (time.Time, bool) {
	if y < 1 || mo < 1 || mo > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if int(t.Month()) != mo || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func boolPtr(v bool) *bool { return &v }
