// Package sku decodes the cost and shipping data sellers embed in SKU strings.
package sku

import (
	"strings"

	"github.com/sellerforge/listing-checker/internal/money"
)

// Shipping segments encode hundreds of yen.
const shippingUnitYen = 100

// Packaging types whose fourth segment is an MX small-packet declared value.
var smallPacketTypes = map[string]bool{
	"housou": true,
	"kogata": true,
}

// Model is the purchasing data decoded from one SKU.
//
// A SKU is dash-separated: type, purchase cost in yen, shipping factor
// (hundreds of yen), and an optional small-packet declared value used only
// for Mexico listings with a small-packet packaging type.
type Model struct {
	Type           string
	CostYen        *float64
	ShippingYen    float64
	SmallPacketYen float64
}

// Decode parses identifier for the given destination country.
// Malformed or missing segments degrade to nil cost / zero shipping rather
// than failing; the decision engine handles the missing-data cases itself.
func Decode(identifier, country string) Model {
	identifier = strings.TrimSpace(identifier)
	parts := strings.Split(identifier, "-")

	m := Model{}
	if len(parts) > 0 {
		m.Type = strings.ToLower(strings.TrimSpace(parts[0]))
	}
	if len(parts) >= 2 {
		m.CostYen = money.ParseNumber(parts[1])
	}
	if len(parts) >= 3 {
		if f := money.ParseNumber(parts[2]); f != nil {
			m.ShippingYen = *f * shippingUnitYen
		}
	}
	if len(parts) >= 4 && isMexico(country) && smallPacketTypes[m.Type] {
		if f := money.ParseNumber(parts[3]); f != nil {
			m.SmallPacketYen = *f
		}
	}
	return m
}

func isMexico(country string) bool {
	return strings.EqualFold(strings.TrimSpace(country), "MX")
}
