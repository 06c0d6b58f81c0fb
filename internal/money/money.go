// Package money parses prices and numbers out of marketplace page text.
package money

import (
	"regexp"
	"strconv"
	"strings"
)

// Yen amounts outside this window are treated as extraction noise.
const (
	MinYen = 0
	MaxYen = 9_999_999
)

// Bare numbers below this are too likely to be quantities or counts.
const minBareYen = 100

var (
	symbolPriceRe = regexp.MustCompile(`[￥¥]\s*([0-9][0-9,]*)`)
	yenSuffixRe   = regexp.MustCompile(`([0-9][0-9,]*)\s*円`)
	bareNumberRe  = regexp.MustCompile(`\b([0-9]{1,3}(?:,[0-9]{3})+|[0-9]{3,})\b`)
)

// CleanText collapses whitespace and strips line breaks from raw page text.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSpace(s)
}

// ParseNumber parses a locale-formatted number, tolerating thousands
// separators and surrounding whitespace. Returns nil when the text does not
// hold a single number.
func ParseNumber(s string) *float64 {
	s = CleanText(s)
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ExtractYenPrice pulls a yen amount out of free-form page text.
//
// Candidates are tried in priority order: a ¥/￥-prefixed amount, then an
// amount with a 円 suffix, then a bare number. Bare numbers must carry a
// thousands separator or have at least three digits, and must be at least
// 100 yen, so counts like "1個" never read as prices.
func ExtractYenPrice(text string) *int {
	if text == "" {
		return nil
	}
	if m := symbolPriceRe.FindStringSubmatch(text); m != nil {
		return yenInWindow(m[1], MinYen)
	}
	if m := yenSuffixRe.FindStringSubmatch(text); m != nil {
		return yenInWindow(m[1], MinYen)
	}
	if m := bareNumberRe.FindStringSubmatch(text); m != nil {
		return yenInWindow(m[1], minBareYen)
	}
	return nil
}

func yenInWindow(digits string, floor int) *int {
	v, err := strconv.Atoi(strings.ReplaceAll(digits, ",", ""))
	if err != nil || v < floor || v > MaxYen {
		return nil
	}
	return &v
}
