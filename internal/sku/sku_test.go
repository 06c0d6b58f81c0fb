package sku

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name        string
		identifier  string
		country     string
		cost        *float64
		shipping    float64
		smallPacket float64
	}{
		{
			name:        "small packet for MX housou",
			identifier:  "housou-1500-8-28",
			country:     "MX",
			cost:        floatPtr(1500),
			shipping:    800,
			smallPacket: 28,
		},
		{
			name:        "small packet for MX kogata",
			identifier:  "kogata-2200-5-40",
			country:     "mx",
			cost:        floatPtr(2200),
			shipping:    500,
			smallPacket: 40,
		},
		{
			name:       "same SKU for US ignores small packet",
			identifier: "housou-1500-8-28",
			country:    "US",
			cost:       floatPtr(1500),
			shipping:   800,
		},
		{
			name:       "MX but non-packet type ignores fourth segment",
			identifier: "futsuu-1500-8-28",
			country:    "MX",
			cost:       floatPtr(1500),
			shipping:   800,
		},
		{
			name:       "no shipping segment",
			identifier: "housou-980",
			country:    "US",
			cost:       floatPtr(980),
		},
		{
			name:       "single segment has no cost",
			identifier: "housou",
			country:    "US",
		},
		{
			name:       "empty identifier",
			identifier: "",
			country:    "US",
		},
		{
			name:       "non-numeric cost degrades to nil",
			identifier: "housou-abc-8",
			country:    "US",
			shipping:   800,
		},
		{
			name:       "non-numeric shipping degrades to zero",
			identifier: "housou-1500-x",
			country:    "US",
			cost:       floatPtr(1500),
		},
		{
			name:        "uppercase type still counts as packet type",
			identifier:  "HOUSOU-1500-8-28",
			country:     "MX",
			cost:        floatPtr(1500),
			shipping:    800,
			smallPacket: 28,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Decode(tt.identifier, tt.country)
			if tt.cost == nil {
				assert.Nil(t, m.CostYen)
			} else {
				require.NotNil(t, m.CostYen)
				assert.InDelta(t, *tt.cost, *m.CostYen, 1e-9)
			}
			assert.InDelta(t, tt.shipping, m.ShippingYen, 1e-9)
			assert.InDelta(t, tt.smallPacket, m.SmallPacketYen, 1e-9)
		})
	}
}

func floatPtr(v float64) *float64 { return &v }
