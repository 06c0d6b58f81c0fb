// Package decision implements the pricing verdict engine. Decide is a pure
// function from one row's inputs to an immutable Record, so verdicts are
// reproducible from the record alone.
package decision

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sellerforge/listing-checker/internal/extract"
	"github.com/sellerforge/listing-checker/internal/sku"
)

// Verdict is the action to take on a listing row.
type Verdict string

const (
	VerdictKeep   Verdict = "KEEP"
	VerdictDelete Verdict = "DELETE"
	VerdictSkip   Verdict = "SKIP"
)

// Reason explains a verdict.
type Reason string

const (
	ReasonOK                Reason = "OK"
	ReasonManual            Reason = "MANUAL"
	ReasonDelivery4Plus     Reason = "DELIVERY_4P"
	ReasonDeliveryEmpty     Reason = "DELIVERY_EMPTY"
	ReasonShipNotFound      Reason = "SHIP_NOT_FOUND"
	ReasonFetchError        Reason = "FETCH_ERROR"
	ReasonListingPriceEmpty Reason = "LISTING_PRICE_EMPTY"
	ReasonPriceDiff         Reason = "PRICE_DIFF"
	ReasonBuyPriceMismatch  Reason = "BUY_PRICE_MISMATCH"
	ReasonSKUCostEmpty      Reason = "SKU_COST_EMPTY"
	ReasonAmazonBelowCost   Reason = "AMZ_BELOW_COST"
	ReasonUsedItem          Reason = "USED_ITEM"
	ReasonNoFeaturedOffer   Reason = "NO_FEATURED_OFFER"
	ReasonTolRuleInvalid    Reason = "TOL_RULE_INVALID"
	ReasonAmazonTotalEmpty  Reason = "AMAZON_TOTAL_EMPTY"
)

// Deliveries at or beyond this many days fail the delivery check.
const deliveryFailDays = 4

// MX small-packet shipping factor applied before currency conversion.
const mxSmallPacketFactor = 1.35

// ToleranceRule holds the yen thresholds keyed by the digit count of the
// item price: up to four digits, exactly five, six or more.
type ToleranceRule struct {
	UpTo4Digits   *float64
	FiveDigits    *float64
	SixPlusDigits *float64
}

// Valid reports whether all three thresholds are present and non-negative.
func (r ToleranceRule) Valid() bool {
	for _, v := range []*float64{r.UpTo4Digits, r.FiveDigits, r.SixPlusDigits} {
		if v == nil || *v < 0 {
			return false
		}
	}
	return true
}

func (r ToleranceRule) forDigits(digits int) *float64 {
	if !r.Valid() {
		return nil
	}
	switch {
	case digits >= 6:
		return r.SixPlusDigits
	case digits == 5:
		return r.FiveDigits
	default:
		return r.UpTo4Digits
	}
}

// CountryConfig carries the per-country pricing parameters for one run.
type CountryConfig struct {
	Country         string
	FXJPYPerUnit    float64
	Multiplier      float64
	Tolerance       ToleranceRule
	BuyMismatchYen  float64
	CustomsFixedYen float64
}

// RowData is the listing-row slice of an evaluation input.
type RowData struct {
	Position            int
	SKU                 string
	ASIN                string
	ListingPriceForeign *float64
}

// Input bundles everything Decide needs for one row.
//
// TotalYenOverride and DeliveryDaysOverride carry manually entered values;
// batch evaluation leaves them nil and the engine derives them from the
// fetched signals.
type Input struct {
	Row                  RowData
	Identifier           sku.Model
	Signals              extract.Signals
	TotalYenOverride     *float64
	DeliveryDaysOverride *int
	Config               CountryConfig
	Now                  time.Time
}

// Record is the immutable audit snapshot for one evaluated row. Every value
// that fed the verdict is captured, including reference arithmetic computed
// on rows that short-circuited to DELETE.
type Record struct {
	Timestamp string
	Country   string
	Row       int
	ASIN      string
	SKU       string

	ListingPriceForeign *float64

	ItemPriceYen    *float64
	PageShippingYen *float64
	TotalYen        *float64
	ShippedByAmazon *bool
	IsUsed          *bool
	NoFeaturedOffer bool

	SKUShippingYen     *float64
	SmallPacketYen     *float64
	SmallPacketForeign *float64
	CustomsFixedYen    *float64
	BaseYen            *float64

	FXJPYPerUnit    *float64
	Multiplier      *float64
	ExpectedForeign *float64
	DiffForeign     *float64

	ToleranceYen     *float64
	ToleranceForeign *float64
	PriceDigits      *int

	SKUCostYen   *float64
	BuyDiffYen   *float64
	DeliveryDays *int

	Decision Verdict
	Reason   Reason
	Trace    string
}

// Decide evaluates one row. Checks run in fixed precedence: used item,
// missing featured offer, missing shipping fee, delivery (waived when Amazon
// ships), tolerance-rule validity, missing total, then the price checks.
// An item price below the seller's own cost forces KEEP regardless of the
// price-difference checks.
func Decide(in Input) Record {
	cfg := in.Config
	id := in.Identifier
	sig := in.Signals

	itemYen := intToFloat(sig.ItemPriceYen)
	shipYen := intToFloat(sig.ShippingYen)
	listing := in.Row.ListingPriceForeign

	totalInput := in.TotalYenOverride
	if totalInput == nil && itemYen != nil && shipYen != nil {
		v := *itemYen + *shipYen
		totalInput = &v
	}
	days := in.DeliveryDaysOverride
	if days == nil {
		days = sig.DeliveryDays
	}

	rec := baseRecord(in.Row, cfg, id, in.Now)
	rec.ItemPriceYen = itemYen
	rec.PageShippingYen = shipYen
	rec.TotalYen = totalInput
	rec.ShippedByAmazon = boolPtr(sig.ShippedByAmazon)
	rec.IsUsed = sig.IsUsed
	rec.NoFeaturedOffer = sig.NoFeaturedOffer
	rec.DeliveryDays = days
	rec.Trace = sig.Trace

	// Tolerance bucket from the item price, estimated from total minus
	// shipping when the item price itself was not extracted.
	var tolItemYen *float64
	switch {
	case itemYen != nil:
		tolItemYen = itemYen
	case totalInput != nil && shipYen != nil:
		v := *totalInput - *shipYen
		tolItemYen = &v
	case totalInput != nil:
		tolItemYen = totalInput
	}
	tolYen, digits := toleranceYen(cfg.Tolerance, tolItemYen)
	rec.ToleranceYen = tolYen
	rec.PriceDigits = digits
	var tolForeign *float64
	if tolYen != nil && cfg.FXJPYPerUnit > 0 {
		v := (*tolYen / cfg.FXJPYPerUnit) * cfg.Multiplier
		tolForeign = &v
	}
	rec.ToleranceForeign = tolForeign

	// Reference arithmetic, kept even when an early check deletes the row.
	var buyBase *float64
	if itemYen != nil {
		buyBase = itemYen
	} else if totalInput != nil && shipYen != nil {
		v := *totalInput - *shipYen
		buyBase = &v
	}
	if totalInput != nil && cfg.FXJPYPerUnit > 0 {
		base := *totalInput + id.ShippingYen + cfg.CustomsFixedYen
		rec.BaseYen = &base
		expectedBase := (base / cfg.FXJPYPerUnit) * cfg.Multiplier
		if isMX(cfg.Country) && id.SmallPacketYen > 0 && buyBase != nil {
			sur := round4(((*buyBase + id.SmallPacketYen) * mxSmallPacketFactor) / cfg.FXJPYPerUnit)
			rec.SmallPacketForeign = &sur
			exp := round2(expectedBase + sur)
			rec.ExpectedForeign = &exp
		} else {
			exp := round2(expectedBase)
			rec.ExpectedForeign = &exp
		}
		if listing != nil {
			d := round4(math.Abs(*listing - *rec.ExpectedForeign))
			rec.DiffForeign = &d
		}
	}

	deliveryWaived := sig.ShippedByAmazon

	switch {
	case sig.IsUsed != nil && *sig.IsUsed:
		rec.Decision, rec.Reason = VerdictDelete, ReasonUsedItem
	case sig.NoFeaturedOffer:
		rec.Decision, rec.Reason = VerdictDelete, ReasonNoFeaturedOffer
	case shipYen == nil:
		rec.Decision, rec.Reason = VerdictDelete, ReasonShipNotFound
	case !deliveryWaived && days == nil:
		rec.Decision, rec.Reason = VerdictDelete, ReasonDeliveryEmpty
	case !deliveryWaived && *days >= deliveryFailDays:
		rec.Decision, rec.Reason = VerdictDelete, ReasonDelivery4Plus
	case tolYen == nil || tolForeign == nil:
		rec.Decision, rec.Reason = VerdictDelete, ReasonTolRuleInvalid
	case totalInput == nil:
		rec.Decision, rec.Reason = VerdictDelete, ReasonAmazonTotalEmpty
	default:
		// shipYen is non-nil here, so buyBase is always defined.
		bb := *buyBase

		buyOK := true
		buyReason := ReasonOK
		cheaperOverride := false
		if id.CostYen == nil {
			buyReason = ReasonSKUCostEmpty
		} else {
			d := round2(math.Abs(bb - *id.CostYen))
			rec.BuyDiffYen = &d
			if bb < *id.CostYen {
				cheaperOverride = true
				buyReason = ReasonAmazonBelowCost
			} else if d > cfg.BuyMismatchYen {
				buyOK = false
				buyReason = ReasonBuyPriceMismatch
			}
		}

		switch {
		case listing == nil:
			rec.Decision, rec.Reason = VerdictDelete, ReasonListingPriceEmpty
		case cheaperOverride:
			rec.Decision, rec.Reason = VerdictKeep, ReasonAmazonBelowCost
		case !buyOK:
			rec.Decision, rec.Reason = VerdictDelete, buyReason
		case *rec.DiffForeign <= *tolForeign:
			rec.Decision, rec.Reason = VerdictKeep, ReasonOK
		default:
			rec.Decision, rec.Reason = VerdictDelete, ReasonPriceDiff
		}
	}

	return rec
}

// SkipRecord logs a failed fetch as SKIP without any signal data.
func SkipRecord(row RowData, cfg CountryConfig, id sku.Model, trace string, now time.Time) Record {
	rec := baseRecord(row, cfg, id, now)
	rec.SKUShippingYen = nil
	rec.SmallPacketYen = nil
	rec.CustomsFixedYen = nil
	rec.Decision = VerdictSkip
	rec.Reason = ReasonFetchError
	rec.Trace = trace
	return rec
}

// ManualRecord shapes a user-entered verdict without running the engine.
func ManualRecord(in Input, verdict Verdict) Record {
	rec := baseRecord(in.Row, in.Config, in.Identifier, in.Now)
	rec.ItemPriceYen = intToFloat(in.Signals.ItemPriceYen)
	rec.PageShippingYen = intToFloat(in.Signals.ShippingYen)
	rec.TotalYen = in.TotalYenOverride
	rec.ShippedByAmazon = boolPtr(in.Signals.ShippedByAmazon)
	rec.IsUsed = in.Signals.IsUsed
	rec.NoFeaturedOffer = in.Signals.NoFeaturedOffer
	rec.DeliveryDays = in.DeliveryDaysOverride
	if rec.DeliveryDays == nil {
		rec.DeliveryDays = in.Signals.DeliveryDays
	}
	rec.Decision = verdict
	rec.Reason = ReasonManual
	rec.Trace = in.Signals.Trace
	return rec
}

func baseRecord(row RowData, cfg CountryConfig, id sku.Model, now time.Time) Record {
	shipYen := id.ShippingYen
	smallYen := id.SmallPacketYen
	customs := cfg.CustomsFixedYen
	fx := cfg.FXJPYPerUnit
	mult := cfg.Multiplier
	return Record{
		Timestamp:           now.Format("2006-01-02T15:04:05"),
		Country:             cfg.Country,
		Row:                 row.Position,
		ASIN:                row.ASIN,
		SKU:                 row.SKU,
		ListingPriceForeign: row.ListingPriceForeign,
		SKUShippingYen:      &shipYen,
		SmallPacketYen:      &smallYen,
		CustomsFixedYen:     &customs,
		FXJPYPerUnit:        &fx,
		Multiplier:          &mult,
		SKUCostYen:          id.CostYen,
		Decision:            VerdictDelete,
	}
}

func toleranceYen(rule ToleranceRule, itemPriceYen *float64) (*float64, *int) {
	if itemPriceYen == nil {
		return nil, nil
	}
	digits := yenDigits(*itemPriceYen)
	return rule.forDigits(digits), &digits
}

// yenDigits counts the integer digits of a yen amount; zero counts as one.
func yenDigits(v float64) int {
	n := int(math.Abs(v))
	if n == 0 {
		return 1
	}
	return len(strconv.Itoa(n))
}

func isMX(country string) bool {
	return strings.EqualFold(strings.TrimSpace(country), "MX")
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

func intToFloat(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

func boolPtr(v bool) *bool { return &v }
