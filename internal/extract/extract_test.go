package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShippingYen(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected *int
	}{
		{"free shipping phrase", "送料無料でお届け", intPtr(0)},
		{"free delivery phrase", "無料配送 5月1日", intPtr(0)},
		{"label then amount", "配送料: ¥410", intPtr(410)},
		{"label fullwidth colon", "送料：￥1,000", intPtr(1000)},
		{"plus amount then label", "+ ¥350 配送料", intPtr(350)},
		{"amount then label", "¥500 送料", intPtr(500)},
		{"no shipping info", "5月1日にお届け", nil},
		{"plain price is not shipping", "¥2,980", nil},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShippingYen(tt.input)
			if tt.expected == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.expected, *got)
		})
	}
}

func TestShippingYenFromHTML(t *testing.T) {
	free := ShippingYenFromHTML("<div>本日中に 送料無料</div>")
	require.NotNil(t, free)
	assert.Equal(t, 0, *free)

	paid := ShippingYenFromHTML("<span>配送料</span> <span>¥410</span>")
	require.NotNil(t, paid)
	assert.Equal(t, 410, *paid)

	assert.Nil(t, ShippingYenFromHTML("<div>no fees mentioned</div>"))
}

func TestDeliveryDays(t *testing.T) {
	// Fixed reference date so the dated promises are deterministic.
	today := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		input    string
		expected *int
	}{
		{"tomorrow", "明日 9月1日にお届け", intPtr(1)},
		{"today", "今日中にお届け", intPtr(0)},
		{"full date", "2026年9月5日にお届け", intPtr(5)},
		{"short date", "9月10日にお届け", intPtr(10)},
		{"date range takes slow end", "9月3日 - 9月8日にお届け", intPtr(8)},
		{"slash date", "9/4にお届け", intPtr(4)},
		{"slash date with year", "2026/9/6", intPtr(6)},
		{"dated too far is noise", "2026年12月31日", nil},
		{"day range", "お届け 2～4日", intPtr(4)},
		{"hyphen day range", "1-2日で発送", intPtr(2)},
		{"plain day count", "3日で発送", intPtr(3)},
		{"count over cap", "45日で発送", nil},
		{"no estimate", "在庫あり", nil},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeliveryDays(tt.input, today)
			if tt.expected == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.expected, *got)
		})
	}
}

func TestDeliveryDaysRejectedDateFallsBack(t *testing.T) {
	// A January promise seen in August rolls forward a year and lands past
	// the 60-day window, so the dated path rejects it and the bare day-count
	// pattern picks up the "5日" instead.
	today := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	got := DeliveryDays("1月5日にお届け", today)
	require.NotNil(t, got)
	assert.Equal(t, 5, *got)

	// A past date yields no usable delta; the "1日" digits win.
	got = DeliveryDays("2026年8月1日", today)
	require.NotNil(t, got)
	assert.Equal(t, 1, *got)
}

func TestShippedByAmazon(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"japanese label", "出荷元 Amazon", true},
		{"english label", "Ships from Amazon.co.jp", true},
		{"dispatches label", "Dispatches from Amazon", true},
		{"third party shipper", "出荷元 サードパーティ商店", false},
		{"amazon without label", "Amazonポイント対象", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShippedByAmazon(tt.input))
		})
	}
}

func TestShippedByAmazonHTML(t *testing.T) {
	assert.True(t, ShippedByAmazonHTML("<td>出荷元</td>\n<td><span>Amazon</span></td>"))
	assert.True(t, ShippedByAmazonHTML("Ships from <b>Amazon</b>"))
	assert.False(t, ShippedByAmazonHTML("<td>出荷元</td><td>別の店</td>"))
}

func TestCondition(t *testing.T) {
	tests := []struct {
		name     string
		texts    []string
		expected *bool
	}{
		{"labeled new", []string{"状態: 新品"}, boolPtr(false)},
		{"labeled used", []string{"コンディション： 中古 - 良い"}, boolPtr(true)},
		{"english label", []string{"Condition: 新品"}, boolPtr(false)},
		{"label row mentions both prefers new", []string{"状態 新品 （中古商品もあります）"}, boolPtr(false)},
		{"unlabeled new in first fragments", []string{"新品", "在庫あり"}, boolPtr(false)},
		{"unlabeled used in first fragments", []string{"中古品 - 非常に良い"}, boolPtr(true)},
		{"unlabeled past first two ignored", []string{"在庫あり", "カートに入れる", "中古"}, nil},
		{"unknown", []string{"在庫あり"}, nil},
		{"empty", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Condition(tt.texts)
			if tt.expected == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.expected, *got)
		})
	}
}

func TestNoFeaturedOffer(t *testing.T) {
	assert.True(t, NoFeaturedOffer("<p>おすすめの出品はありません</p>", true))
	assert.True(t, NoFeaturedOffer("<p>おすすめの出品がありません</p>", false))
	assert.True(t, NoFeaturedOffer("<a>すべての購入オプション</a>", false))
	assert.True(t, NoFeaturedOffer("<a>See All Buying Options</a>", false))
	assert.False(t, NoFeaturedOffer("<a>すべての購入オプション</a>", true))
	assert.False(t, NoFeaturedOffer("<div>通常のページ</div>", true))
	assert.False(t, NoFeaturedOffer("<div>通常のページ</div>", false))
}

func TestPriceFromTexts(t *testing.T) {
	got := PriceFromTexts([]string{"在庫あり", "¥2,980 税込"})
	require.NotNil(t, got)
	assert.Equal(t, 2980, *got)

	assert.Nil(t, PriceFromTexts([]string{"在庫あり", "1個"}))
}

func intPtr(v int) *int { return &v }
