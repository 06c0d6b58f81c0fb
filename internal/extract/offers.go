package extract

import (
	"math"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sellerforge/listing-checker/internal/money"
)

// Offer entries past this index are ignored.
const maxOfferCandidates = 10

// Offer is one candidate from the offer-listing page.
type Offer struct {
	PriceYen        int
	ShippingYen     int
	DeliveryDays    *int
	ShippedByAmazon bool
	IsUsed          bool
	Snippet         string
}

var offerSelectors = []string{
	"div.olpOffer",
	"div#aod-offer-list div.aod-offer",
	"div.aod-offer",
	"div[role='listitem']",
}

var offerAmazonShipperKeys = []string{
	"出荷元 Amazon",
	"Ships from Amazon",
	"Amazonが発送",
	"Amazon.co.jp が発送",
}

type offerScore struct {
	primary  float64
	shipper  int
	totalYen int
	days     int
}

func (s offerScore) less(o offerScore) bool {
	if s.primary != o.primary {
		return s.primary < o.primary
	}
	if s.shipper != o.shipper {
		return s.shipper < o.shipper
	}
	if s.totalYen != o.totalYen {
		return s.totalYen < o.totalYen
	}
	return s.days < o.days
}

// BestOffer picks the offer-listing candidate closest to the seller's own
// purchasing data: by price distance to skuCostYen when known, otherwise by
// cheapest total, breaking ties on Amazon-shipped, total, then delivery days.
// Candidates without both a price and a shipping fee are excluded. Returns
// nil when no candidate survives.
func BestOffer(html string, skuCostYen *float64, today time.Time) *Offer {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var entries *goquery.Selection
	for _, sel := range offerSelectors {
		s := doc.Find(sel)
		if s.Length() > 0 {
			entries = s
			break
		}
	}
	if entries == nil {
		return nil
	}

	var best *Offer
	var bestScore offerScore
	entries.EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= maxOfferCandidates {
			return false
		}
		raw := money.CleanText(s.Text())
		if raw == "" {
			return true
		}

		var price *int
		if pel := s.Find("span.a-price span.a-offscreen").First(); pel.Length() > 0 {
			price = money.ExtractYenPrice(money.CleanText(pel.Text()))
		}
		if price == nil {
			price = money.ExtractYenPrice(raw)
		}
		ship := ShippingYen(raw)
		if price == nil || ship == nil {
			return true
		}

		days := DeliveryDays(raw, today)
		shippedByAmazon := false
		for _, k := range offerAmazonShipperKeys {
			if strings.Contains(raw, k) {
				shippedByAmazon = true
				break
			}
		}

		total := *price + *ship
		primary := float64(total)
		if skuCostYen != nil {
			primary = math.Abs(float64(*price) - *skuCostYen)
		}
		shipper := 1
		if shippedByAmazon {
			shipper = 0
		}
		daysScore := 999
		if days != nil {
			daysScore = *days
		}
		score := offerScore{primary: primary, shipper: shipper, totalYen: total, days: daysScore}

		if best == nil || score.less(bestScore) {
			snip := raw
			if r := []rune(snip); len(r) > 120 {
				snip = string(r[:120])
			}
			best = &Offer{
				PriceYen:        *price,
				ShippingYen:     *ship,
				DeliveryDays:    days,
				ShippedByAmazon: shippedByAmazon,
				IsUsed:          strings.Contains(raw, "中古"),
				Snippet:         snip,
			}
			bestScore = score
		}
		return true
	})

	return best
}
