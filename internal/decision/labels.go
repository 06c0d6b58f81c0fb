package decision

var verdictLabels = map[Verdict]string{
	VerdictKeep:   "保持",
	VerdictDelete: "削除",
}

var reasonLabels = map[Reason]string{
	ReasonOK:                "OK",
	ReasonManual:            "手動判定",
	ReasonDelivery4Plus:     "配送日数が4日以上",
	ReasonDeliveryEmpty:     "配送日数が取得できない",
	ReasonShipNotFound:      "配送料が取得できない",
	ReasonFetchError:        "自動取得失敗",
	ReasonListingPriceEmpty: "B列price（外貨）が空",
	ReasonPriceDiff:         "外貨差が許容差超え",
	ReasonBuyPriceMismatch:  "仕入差NG超え",
	ReasonSKUCostEmpty:      "SKU仕入が空（仕入差チェック省略）",
	ReasonAmazonBelowCost:   "Amazon価格が仕入れ値より安い（優先KEEP）",
	ReasonUsedItem:          "中古品のため削除",
	ReasonNoFeaturedOffer:   "おすすめの出品がない（BuyBox無し）",
}

// Label returns the Japanese display label for v, or the code itself when no
// label exists (SKIP stays as-is in the log).
func (v Verdict) Label() string {
	if l, ok := verdictLabels[v]; ok {
		return l
	}
	return string(v)
}

// Label returns the Japanese display label for r, or the code itself.
func (r Reason) Label() string {
	if l, ok := reasonLabels[r]; ok {
		return l
	}
	return string(r)
}
