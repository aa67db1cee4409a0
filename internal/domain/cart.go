package domain

import (
	"math"
	"strconv"
	"strings"
)

// Currency is the cart currency as reported by the store.
type Currency struct {
	Code      string `json:"code"`
	MinorUnit int    `json:"minor_unit"`
	Symbol    string `json:"symbol,omitempty"`
}

// Divisor returns 10^MinorUnit.
func (c Currency) Divisor() float64 {
	return math.Pow10(c.MinorUnit)
}

// ToMajor converts minor units to major units.
func (c Currency) ToMajor(minor int64) float64 {
	return float64(minor) / c.Divisor()
}

// ToMinor converts major units to minor units, rounding to the nearest unit.
func (c Currency) ToMinor(major float64) int64 {
	return int64(math.Round(major * c.Divisor()))
}

// CartItemData is the cart_item_data payload of a cart line.
type CartItemData struct {
	BundleItems       []BundleLine `json:"bundle_items,omitempty"`
	PricingMode       PricingMode  `json:"pricing_mode,omitempty"`
	BoxPrice          *float64     `json:"box_price,omitempty"`
	FixedPrice        *float64     `json:"fixed_price,omitempty"`
	BundleTotal       *float64     `json:"bundle_total,omitempty"`
	FreeGift          bool         `json:"_asl_free_gift,omitempty"`
	FreeGiftRuleID    string       `json:"_asl_free_gift_rule_id,omitempty"`
	FreeGiftUniqueKey string       `json:"_asl_free_gift_unique_key,omitempty"`
}

// IsBundle reports whether the line carries bundle slots.
func (d CartItemData) IsBundle() bool {
	return len(d.BundleItems) > 0
}

// BundleSum is the sum of slot prices in major units.
func (d CartItemData) BundleSum() float64 {
	var sum float64
	for _, b := range d.BundleItems {
		sum += b.Price
	}
	return sum
}

// reservedItemData are the cart_item_data keys only the storefront writes:
// bundle pricing from the composer and gift tags from the gift pass.
var reservedItemData = map[string]bool{
	"bundle_items": true,
	"pricing_mode": true,
	"box_price":    true,
	"fixed_price":  true,
	"bundle_total": true,
}

// PublicItemData drops the reserved keys from shopper-supplied item data.
func PublicItemData(data map[string]any) map[string]any {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if reservedItemData[k] || strings.HasPrefix(k, "_asl_") {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// WithBundlePricing replaces the pricing fields of d with the saved
// configuration. A nil configuration or one without a pricing mode leaves
// the line on the summed slot prices.
func (d CartItemData) WithBundlePricing(cfg *BundleConfiguration) CartItemData {
	d.PricingMode = ""
	d.BoxPrice = nil
	d.FixedPrice = nil
	d.BundleTotal = nil
	if cfg == nil || cfg.PricingMode == "" {
		return d
	}
	d.PricingMode = cfg.PricingMode
	d.BoxPrice = cfg.BoxPrice
	if cfg.PricingMode == PricingFixed {
		d.FixedPrice = cfg.FixedPrice
	}
	return d
}

// CartItem is one cart line. Prices are in the cart currency's minor units.
type CartItem struct {
	ItemKey   string       `json:"item_key"`
	ProductID int          `json:"id"`
	Name      string       `json:"name"`
	Slug      string       `json:"slug,omitempty"`
	Quantity  int          `json:"quantity"`
	Price     int64        `json:"price"`
	LineTotal int64        `json:"line_total"`
	Image     string       `json:"image,omitempty"`
	Data      CartItemData `json:"cart_item_data"`
}

// CartTotals are the backend totals in minor units.
type CartTotals struct {
	Subtotal      int64 `json:"subtotal"`
	SubtotalTax   int64 `json:"subtotal_tax"`
	ShippingTotal int64 `json:"shipping_total"`
	DiscountTotal int64 `json:"discount_total"`
	TotalTax      int64 `json:"total_tax"`
	Total         int64 `json:"total"`
}

// Coupon discount types as used by WooCommerce.
const (
	DiscountPercent      = "percent"
	DiscountFixedCart    = "fixed_cart"
	DiscountFixedProduct = "fixed_product"
)

// AppliedCoupon is a coupon applied to the cart.
type AppliedCoupon struct {
	Code         string `json:"code"`
	DiscountType string `json:"discount_type"`
	Amount       string `json:"amount"`
}

// PublicCoupon is a coupon advertised to shoppers.
type PublicCoupon struct {
	Code          string `json:"code"`
	DiscountType  string `json:"discount_type"`
	Amount        string `json:"amount"`
	Description   string `json:"description,omitempty"`
	MinimumAmount string `json:"minimum_amount,omitempty"`
	DateExpires   string `json:"date_expires,omitempty"`
}

// ShippingRate is one selectable shipping method.
type ShippingRate struct {
	RateID   string `json:"rate_id"`
	Name     string `json:"name"`
	MethodID string `json:"method_id"`
	Cost     int64  `json:"cost"`
	Selected bool   `json:"selected"`
}

// ShippingPackage groups the rates for one package.
type ShippingPackage struct {
	PackageID string         `json:"package_id"`
	Name      string         `json:"name"`
	Rates     []ShippingRate `json:"rates"`
}

// SelectedRate returns the selected rate across packages.
func SelectedRate(pkgs []ShippingPackage) (ShippingRate, bool) {
	for _, p := range pkgs {
		for _, r := range p.Rates {
			if r.Selected {
				return r, true
			}
		}
	}
	return ShippingRate{}, false
}

// Cart is a CoCart cart.
type Cart struct {
	Key      string            `json:"cart_key"`
	Items    []CartItem        `json:"items"`
	Totals   CartTotals        `json:"totals"`
	Coupons  []AppliedCoupon   `json:"coupons"`
	Currency Currency          `json:"currency"`
	Shipping []ShippingPackage `json:"shipping,omitempty"`
}

// ItemCount is the sum of line quantities.
func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// FindItem returns the line with itemKey.
func (c *Cart) FindItem(itemKey string) (CartItem, bool) {
	for _, it := range c.Items {
		if it.ItemKey == itemKey {
			return it, true
		}
	}
	return CartItem{}, false
}

// BundleItemsAdjustment is the amount, in minor units, the backend left out of
// the totals for legacy bundle lines. Lines that declare a pricing mode are
// already priced correctly and contribute nothing.
func BundleItemsAdjustment(items []CartItem, minorUnit int) int64 {
	divisor := math.Pow10(minorUnit)
	var adj float64
	for _, it := range items {
		if !it.Data.IsBundle() || it.Data.PricingMode != "" {
			continue
		}
		adj += it.Data.BundleSum() * float64(it.Quantity) * divisor
	}
	return int64(math.Round(adj))
}

// AdjustTotals adds the bundle adjustment to subtotal and total.
func AdjustTotals(t CartTotals, adjustment int64) CartTotals {
	t.Subtotal += adjustment
	t.Total += adjustment
	return t
}

// CouponDiscount is the discount in minor units a coupon takes off an
// adjusted subtotal. Fixed amounts are used as-is without currency conversion.
func CouponDiscount(c AppliedCoupon, subtotal int64) int64 {
	amount, err := strconv.ParseFloat(strings.TrimSpace(c.Amount), 64)
	if err != nil || amount <= 0 {
		return 0
	}
	if c.DiscountType == DiscountPercent {
		return int64(math.Round(float64(subtotal) * amount / 100))
	}
	return int64(math.Round(amount))
}

// CouponLine is a coupon with its computed discount.
type CouponLine struct {
	AppliedCoupon
	Discount int64 `json:"discount"`
}

// CartView is the cart as returned to the storefront: backend data plus
// totals corrected for legacy bundles.
type CartView struct {
	Cart
	Adjustment     int64        `json:"bundle_adjustment"`
	AdjustedTotals CartTotals   `json:"adjusted_totals"`
	CouponLines    []CouponLine `json:"coupon_lines"`
}

// NewCartView computes the adjusted totals and coupon discounts for c. List
// fields of the view are never nil so they encode as [] rather than null.
func NewCartView(c *Cart) *CartView {
	adj := BundleItemsAdjustment(c.Items, c.Currency.MinorUnit)
	totals := AdjustTotals(c.Totals, adj)
	lines := make([]CouponLine, 0, len(c.Coupons))
	for _, cp := range c.Coupons {
		lines = append(lines, CouponLine{AppliedCoupon: cp, Discount: CouponDiscount(cp, totals.Subtotal)})
	}
	view := &CartView{Cart: *c, Adjustment: adj, AdjustedTotals: totals, CouponLines: lines}
	if view.Items == nil {
		view.Items = []CartItem{}
	}
	if view.Coupons == nil {
		view.Coupons = []AppliedCoupon{}
	}
	if len(c.Shipping) > 0 {
		view.Shipping = make([]ShippingPackage, len(c.Shipping))
		for i, pkg := range c.Shipping {
			if pkg.Rates == nil {
				pkg.Rates = []ShippingRate{}
			}
			view.Shipping[i] = pkg
		}
	}
	return view
}

// CartRef identifies a shopper's cart and the storefront context it is viewed in.
type CartRef struct {
	Key      string `json:"cart_key"`
	Currency string `json:"currency,omitempty"`
	Locale   string `json:"locale,omitempty"`
}

// LockKey scopes per-cart serialization. Guest carts without a key share none.
func (r CartRef) LockKey() string {
	return r.Key
}
