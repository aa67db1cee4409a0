package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func bundleLines(prices ...float64) []BundleLine {
	out := make([]BundleLine, 0, len(prices))
	for i, p := range prices {
		out = append(out, BundleLine{ProductID: 100 + i, Name: "slot", Price: p})
	}
	return out
}

func TestBundleItemsAdjustment(t *testing.T) {
	legacy := CartItem{ItemKey: "a", ProductID: 1, Quantity: 2, Data: CartItemData{BundleItems: bundleLines(50, 75, 100)}}
	priced := legacy
	priced.ItemKey = "b"
	priced.Data.PricingMode = PricingSum
	fixed := legacy
	fixed.ItemKey = "c"
	fixed.Data.PricingMode = PricingFixed
	plain := CartItem{ItemKey: "d", ProductID: 9, Quantity: 3, Price: 1500}

	tests := []struct {
		name  string
		items []CartItem
		minor int
		want  int64
	}{
		{"legacy bundle, two decimals", []CartItem{legacy}, 2, 45000},
		{"legacy bundle, three decimals", []CartItem{legacy}, 3, 450000},
		{"sum mode contributes nothing", []CartItem{priced}, 2, 0},
		{"fixed mode contributes nothing", []CartItem{fixed}, 2, 0},
		{"plain items contribute nothing", []CartItem{plain}, 2, 0},
		{"mixed", []CartItem{legacy, priced, plain}, 2, 45000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := BundleItemsAdjustment(tc.items, tc.minor)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, BundleItemsAdjustment(tc.items, tc.minor), "repeated evaluation is stable")
		})
	}
}

func TestBundleItemsAdjustment_RoundsFractionalPrices(t *testing.T) {
	item := CartItem{Quantity: 3, Data: CartItemData{BundleItems: bundleLines(0.1, 0.2)}}
	assert.Equal(t, int64(90), BundleItemsAdjustment([]CartItem{item}, 2))
}

func TestAdjustTotals(t *testing.T) {
	got := AdjustTotals(CartTotals{Subtotal: 1000, Total: 1250, ShippingTotal: 250}, 45000)
	assert.Equal(t, int64(46000), got.Subtotal)
	assert.Equal(t, int64(46250), got.Total)
	assert.Equal(t, int64(250), got.ShippingTotal)
}

func TestCouponDiscount(t *testing.T) {
	tests := []struct {
		name     string
		coupon   AppliedCoupon
		subtotal int64
		want     int64
	}{
		{"percent", AppliedCoupon{Code: "TEN", DiscountType: DiscountPercent, Amount: "10"}, 1000, 100},
		{"percent rounds", AppliedCoupon{DiscountType: DiscountPercent, Amount: "15"}, 999, 150},
		{"fixed cart ignores subtotal", AppliedCoupon{DiscountType: DiscountFixedCart, Amount: "50"}, 1000, 50},
		{"fixed cart on a different subtotal", AppliedCoupon{DiscountType: DiscountFixedCart, Amount: "50"}, 123456, 50},
		{"unparsable amount", AppliedCoupon{DiscountType: DiscountPercent, Amount: "ten"}, 1000, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CouponDiscount(tc.coupon, tc.subtotal))
		})
	}
}

func TestNewCartView_EmptyListsEncodeAsArrays(t *testing.T) {
	c := &Cart{
		Key:      "k1",
		Currency: Currency{Code: "AED", MinorUnit: 2},
		Shipping: []ShippingPackage{{PackageID: "0", Name: "Shipping"}},
	}
	raw, err := json.Marshal(NewCartView(c))
	assert.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, `"items":[]`)
	assert.Contains(t, body, `"coupons":[]`)
	assert.Contains(t, body, `"coupon_lines":[]`)
	assert.Contains(t, body, `"rates":[]`)
	assert.NotContains(t, body, "null")
	assert.Nil(t, c.Items, "the backend cart is not modified")
	assert.Nil(t, c.Shipping[0].Rates)
}

func TestNewCartView_DiscountsUseAdjustedSubtotal(t *testing.T) {
	c := &Cart{
		Key:      "k1",
		Currency: Currency{Code: "AED", MinorUnit: 2},
		Items: []CartItem{
			{ItemKey: "a", ProductID: 1, Quantity: 2, Data: CartItemData{BundleItems: bundleLines(50, 75, 100)}},
		},
		Totals:  CartTotals{Subtotal: 0, Total: 0},
		Coupons: []AppliedCoupon{{Code: "TEN", DiscountType: DiscountPercent, Amount: "10"}},
	}

	v := NewCartView(c)
	assert.Equal(t, int64(45000), v.Adjustment)
	assert.Equal(t, int64(45000), v.AdjustedTotals.Subtotal)
	assert.Equal(t, int64(4500), v.CouponLines[0].Discount)
	assert.Equal(t, int64(0), v.Totals.Subtotal, "backend totals are kept as reported")
}

func TestCurrency_Conversions(t *testing.T) {
	kwd := Currency{Code: "KWD", MinorUnit: 3}
	assert.Equal(t, 12.345, kwd.ToMajor(12345))
	assert.Equal(t, int64(12345), kwd.ToMinor(12.345))
}

func TestPublicItemData(t *testing.T) {
	assert.Nil(t, PublicItemData(nil))
	assert.Nil(t, PublicItemData(map[string]any{"pricing_mode": "fixed", "_asl_free_gift": "1"}))
	assert.Equal(t, map[string]any{"engraving": "S.A."}, PublicItemData(map[string]any{
		"engraving":              "S.A.",
		"bundle_items":           []any{},
		"fixed_price":            0.01,
		"box_price":              0.01,
		"bundle_total":           0.01,
		"_asl_free_gift_rule_id": "r1",
	}))
}

func TestCartItemData_WithBundlePricing(t *testing.T) {
	cheap := 0.01
	d := CartItemData{
		BundleItems: []BundleLine{{ProductID: 1, Price: 50}},
		PricingMode: PricingFixed,
		FixedPrice:  &cheap,
		BoxPrice:    &cheap,
		BundleTotal: &cheap,
	}

	legacy := d.WithBundlePricing(nil)
	assert.Empty(t, legacy.PricingMode)
	assert.Nil(t, legacy.FixedPrice)
	assert.Nil(t, legacy.BoxPrice)
	assert.Nil(t, legacy.BundleTotal)
	assert.Len(t, legacy.BundleItems, 1)

	fixed, box := 199.0, 15.0
	priced := d.WithBundlePricing(&BundleConfiguration{PricingMode: PricingFixed, FixedPrice: &fixed, BoxPrice: &box})
	assert.Equal(t, PricingFixed, priced.PricingMode)
	assert.Equal(t, 199.0, *priced.FixedPrice)
	assert.Equal(t, 15.0, *priced.BoxPrice)
	assert.Nil(t, priced.BundleTotal)

	sum := d.WithBundlePricing(&BundleConfiguration{PricingMode: PricingSum, FixedPrice: &fixed})
	assert.Equal(t, PricingSum, sum.PricingMode)
	assert.Nil(t, sum.FixedPrice)
}
