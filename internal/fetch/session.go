// Package fetch drives product-page retrieval: a playwright-backed session
// that harvests page signals, and a worker that serializes all browser use
// onto a single goroutine.
package fetch

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/sellerforge/listing-checker/internal/browser"
	"github.com/sellerforge/listing-checker/internal/extract"
	"github.com/sellerforge/listing-checker/internal/money"
)

const productURLFormat = "https://www.amazon.co.jp/dp/%s?th=1&psc=1"

// Selected-variant tiles carry the price that actually applies to the listing.
var selectedTileSelectors = []string{
	"#twister_feature_div .swatchElement.selected",
	"#twister_feature_div [aria-checked='true']",
	"#twister_feature_div [aria-selected='true']",
	"#twister_feature_div [aria-pressed='true']",
	"[id*='variation'] .swatchElement.selected",
	"[id*='variation'] [aria-checked='true']",
	"[id*='variation'] [aria-selected='true']",
	"[id*='variation'] [aria-pressed='true']",
	".a-button-toggle.a-button-selected",
	".a-button-selected",
	".a-box.a-box-selected",
	"[aria-current='true']",
}

var priceSelectors = []string{
	"span.a-price span.a-offscreen",
	"#corePriceDisplay_desktop_feature_div span.a-offscreen",
	"#priceblock_ourprice",
	"#priceblock_dealprice",
}

var deliverySelectors = []string{
	"#mir-layout-DELIVERY_BLOCK-slot-PRIMARY_DELIVERY_MESSAGE_LARGE span",
	"#mir-layout-DELIVERY_BLOCK-slot-SECONDARY_DELIVERY_MESSAGE_LARGE span",
	"#deliveryBlockMessage span",
	"#mir-layout-DELIVERY_BLOCK-slot-DELIVERY_MESSAGE span",
	"#mir-layout-DELIVERY_BLOCK-slot-DELIVERY_MESSAGE",
	"#mir-layout-DELIVERY_BLOCK-slot-PRIMARY_DELIVERY_MESSAGE_LARGE",
	"#mir-layout-DELIVERY_BLOCK-slot-SECONDARY_DELIVERY_MESSAGE_LARGE",
	"#deliveryBlockMessage",
	"#tabular-buybox",
	"#tabular-buybox tr",
	"#merchant-info",
	"#merchant-info span",
}

var conditionSelectors = []string{
	"#conditionText",
	"#conditionText span",
	"#tabular-buybox tr",
	"#tabular-buybox",
	"#buybox_feature_div",
	"#buyBoxInner",
	"#buybox",
}

const cartButtonSelector = "#add-to-cart-button, input#add-to-cart-button, #buy-now-button"

// Session fetches listing signals for one ASIN at a time on a single browser
// page. It is not safe for concurrent use; the Worker serializes access.
type Session struct {
	browser *browser.Browser
	logger  *slog.Logger
	now     func() time.Time
}

func NewSession(b *browser.Browser, logger *slog.Logger) *Session {
	return &Session{
		browser: b,
		logger:  logger.With("component", "fetch-session"),
		now:     time.Now,
	}
}

// FetchListing visits the product page for asin and extracts its signals.
// Extraction is best-effort: a navigation timeout still attempts extraction
// from whatever loaded, and missing signals come back nil rather than as
// errors.
func (s *Session) FetchListing(asin string) (extract.Signals, error) {
	page := s.browser.Page()
	var trace []string

	if err := s.browser.Navigate(fmt.Sprintf(productURLFormat, asin)); err != nil {
		trace = append(trace, "goto_err:"+err.Error())
	}

	if s.browser.DismissConsent() {
		trace = append(trace, "cookie_clicked")
		page.WaitForTimeout(600)
	}

	sig := extract.Signals{}

	// Price, selected variant tile first.
	if p := s.selectedTilePrice(page); p != nil {
		sig.ItemPriceYen = p
		trace = append(trace, "price:selected_tile")
	} else {
		for _, sel := range priceSelectors {
			if p := s.priceFromSelector(page, sel); p != nil {
				sig.ItemPriceYen = p
				trace = append(trace, "price:"+sel)
				break
			}
		}
	}

	texts := s.harvest(page, deliverySelectors)
	condTexts := s.harvest(page, conditionSelectors)
	today := s.now()

	for _, t := range texts {
		if extract.ShippedByAmazon(t) {
			sig.ShippedByAmazon = true
			trace = append(trace, "shipper:amazon")
			break
		}
	}
	if !sig.ShippedByAmazon {
		if html, err := page.Content(); err == nil && extract.ShippedByAmazonHTML(html) {
			sig.ShippedByAmazon = true
			trace = append(trace, "shipper:amazon_html")
		}
	}

	sig.IsUsed = extract.Condition(condTexts)

	sig.DeliveryDays = extract.DeliveryDaysFromTexts(texts, today)
	if sig.DeliveryDays == nil {
		// Delivery blocks often render late; nudge the page and retry once.
		page.WaitForTimeout(900)
		page.Evaluate("() => window.scrollBy(0, 600)")
		retry := s.harvest(page, deliverySelectors)
		if d := extract.DeliveryDaysFromTexts(retry, today); d != nil {
			sig.DeliveryDays = d
			trace = append(trace, "days:retry")
		}
		texts = append(texts, retry...)
	}

	sig.ShippingYen = extract.ShippingYenFromTexts(texts)
	if sig.ShippingYen != nil {
		trace = append(trace, "ship:texts")
	} else if html, err := page.Content(); err == nil {
		if v := extract.ShippingYenFromHTML(html); v != nil {
			sig.ShippingYen = v
			if *v == 0 {
				trace = append(trace, "ship:html_free")
			} else {
				trace = append(trace, "ship:html_regex")
			}
		}
	}

	if html, err := page.Content(); err == nil {
		hasCart := false
		if n, cerr := page.Locator(cartButtonSelector).Count(); cerr == nil {
			hasCart = n > 0
		}
		sig.NoFeaturedOffer = extract.NoFeaturedOffer(html, hasCart)
	}
	if sig.NoFeaturedOffer {
		trace = append(trace, "no_featured_offer")
	}

	snippet := strings.Join(texts, " / ")
	if r := []rune(snippet); len(r) > 140 {
		snippet = string(r[:140])
	}
	sig.Trace = strings.Join(trace, "|") + " :: " + snippet

	return sig, nil
}

// Close releases the underlying browser session.
func (s *Session) Close() error {
	return s.browser.Close()
}

func (s *Session) selectedTilePrice(page playwright.Page) *int {
	for _, sel := range selectedTileSelectors {
		if p := s.priceFromSelector(page, sel); p != nil {
			return p
		}
	}
	return nil
}

func (s *Session) priceFromSelector(page playwright.Page, sel string) *int {
	el, err := page.QuerySelector(sel)
	if err != nil || el == nil {
		return nil
	}
	txt, err := el.InnerText()
	if err != nil {
		return nil
	}
	return money.ExtractYenPrice(money.CleanText(txt))
}

// harvest collects the cleaned inner text of up to ten elements per selector.
func (s *Session) harvest(page playwright.Page, selectors []string) []string {
	var texts []string
	for _, sel := range selectors {
		els, err := page.QuerySelectorAll(sel)
		if err != nil {
			continue
		}
		if len(els) > 10 {
			els = els[:10]
		}
		for _, el := range els {
			txt, err := el.InnerText()
			if err != nil {
				continue
			}
			if t := money.CleanText(txt); t != "" {
				texts = append(texts, t)
			}
		}
	}
	return texts
}
