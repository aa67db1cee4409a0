package woocommerce

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
)

// flexFloat accepts a JSON number, a numeric string, null or "".
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexInt is flexFloat rounded to an integer.
type flexInt int64

func (i *flexInt) UnmarshalJSON(b []byte) error {
	var f flexFloat
	if err := f.UnmarshalJSON(b); err != nil {
		return err
	}
	*i = flexInt(math.Round(float64(f)))
	return nil
}

// flexBool accepts true, 1, "1", "yes", "true".
type flexBool bool

func (v *flexBool) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch strings.Trim(strings.ToLower(string(b)), `"`) {
	case "true", "1", "yes", "on":
		*v = true
	default:
		*v = false
	}
	return nil
}

// flexQuantity accepts a plain number or CoCart's {"value": n} object.
type flexQuantity int

func (q *flexQuantity) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var obj struct {
			Value flexInt `json:"value"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*q = flexQuantity(obj.Value)
		return nil
	}
	var n flexInt
	if err := n.UnmarshalJSON(b); err != nil {
		return err
	}
	*q = flexQuantity(n)
	return nil
}

// cocartCart is the CoCart v2 cart response.
type cocartCart struct {
	CartKey  string `json:"cart_key"`
	Currency struct {
		Code      string  `json:"currency_code"`
		Symbol    string  `json:"currency_symbol"`
		MinorUnit flexInt `json:"currency_minor_unit"`
	} `json:"currency"`
	Items   []cocartItem `json:"items"`
	Coupons []struct {
		Coupon string  `json:"coupon"`
		Label  string  `json:"label"`
		Saving flexInt `json:"saving"`
	} `json:"coupons"`
	Shipping struct {
		Packages map[string]cocartPackage `json:"packages"`
	} `json:"shipping"`
	Totals struct {
		Subtotal      flexInt `json:"subtotal"`
		SubtotalTax   flexInt `json:"subtotal_tax"`
		ShippingTotal flexInt `json:"shipping_total"`
		DiscountTotal flexInt `json:"discount_total"`
		TotalTax      flexInt `json:"total_tax"`
		Total         flexInt `json:"total"`
	} `json:"totals"`
}

type cocartItem struct {
	ItemKey  string       `json:"item_key"`
	ID       flexInt      `json:"id"`
	Name     string       `json:"name"`
	Slug     string       `json:"slug"`
	Price    flexInt      `json:"price"`
	Quantity flexQuantity `json:"quantity"`
	Totals   struct {
		Total flexInt `json:"total"`
	} `json:"totals"`
	Image        string          `json:"featured_image"`
	CartItemData json.RawMessage `json:"cart_item_data"`
}

type cocartPackage struct {
	Name         string                `json:"package_name"`
	ChosenMethod string                `json:"chosen_method"`
	Rates        map[string]cocartRate `json:"rates"`
}

type cocartRate struct {
	Key          string   `json:"key"`
	MethodID     string   `json:"method_id"`
	Label        string   `json:"label"`
	Cost         flexInt  `json:"cost"`
	ChosenMethod flexBool `json:"chosen_method"`
}

// wireBundleLine tolerates string prices and quantities.
type wireBundleLine struct {
	ProductID flexInt   `json:"product_id"`
	Name      string    `json:"name"`
	Price     flexFloat `json:"price"`
	Quantity  flexInt   `json:"quantity"`
}

type wireItemData struct {
	BundleItems       json.RawMessage `json:"bundle_items"`
	PricingMode       string          `json:"pricing_mode"`
	BoxPrice          *flexFloat      `json:"box_price"`
	FixedPrice        *flexFloat      `json:"fixed_price"`
	BundleTotal       *flexFloat      `json:"bundle_total"`
	FreeGift          flexBool        `json:"_asl_free_gift"`
	FreeGiftRuleID    json.RawMessage `json:"_asl_free_gift_rule_id"`
	FreeGiftUniqueKey string          `json:"_asl_free_gift_unique_key"`
}

// parseItemData decodes cart_item_data. PHP serializes an empty array as [],
// and some plugins store bundle_items as a JSON string.
func parseItemData(raw json.RawMessage) domain.CartItemData {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return domain.CartItemData{}
	}
	var w wireItemData
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.CartItemData{}
	}

	d := domain.CartItemData{
		BundleItems:       parseBundleLines(w.BundleItems),
		PricingMode:       domain.PricingMode(strings.ToLower(strings.TrimSpace(w.PricingMode))),
		BoxPrice:          floatPtr(w.BoxPrice),
		FixedPrice:        floatPtr(w.FixedPrice),
		BundleTotal:       floatPtr(w.BundleTotal),
		FreeGift:          bool(w.FreeGift),
		FreeGiftRuleID:    scalarString(w.FreeGiftRuleID),
		FreeGiftUniqueKey: w.FreeGiftUniqueKey,
	}
	return d
}

func parseBundleLines(raw json.RawMessage) []domain.BundleLine {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		raw = []byte(s)
	}
	var lines []wireBundleLine
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil
	}
	out := make([]domain.BundleLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, domain.BundleLine{
			ProductID: int(l.ProductID),
			Name:      l.Name,
			Price:     float64(l.Price),
			Quantity:  int(l.Quantity),
		})
	}
	return out
}

func floatPtr(f *flexFloat) *float64 {
	if f == nil {
		return nil
	}
	v := float64(*f)
	return &v
}

// scalarString renders a JSON string or number as a string.
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

func (c cocartCart) toDomain() *domain.Cart {
	cart := &domain.Cart{
		Key: c.CartKey,
		Currency: domain.Currency{
			Code:      c.Currency.Code,
			MinorUnit: int(c.Currency.MinorUnit),
			Symbol:    c.Currency.Symbol,
		},
		Totals: domain.CartTotals{
			Subtotal:      int64(c.Totals.Subtotal),
			SubtotalTax:   int64(c.Totals.SubtotalTax),
			ShippingTotal: int64(c.Totals.ShippingTotal),
			DiscountTotal: int64(c.Totals.DiscountTotal),
			TotalTax:      int64(c.Totals.TotalTax),
			Total:         int64(c.Totals.Total),
		},
		Items:   make([]domain.CartItem, 0, len(c.Items)),
		Coupons: make([]domain.AppliedCoupon, 0, len(c.Coupons)),
	}
	if cart.Currency.Code == "" {
		cart.Currency.MinorUnit = 2
	}

	for _, it := range c.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ItemKey:   it.ItemKey,
			ProductID: int(it.ID),
			Name:      it.Name,
			Slug:      it.Slug,
			Quantity:  int(it.Quantity),
			Price:     int64(it.Price),
			LineTotal: int64(it.Totals.Total),
			Image:     it.Image,
			Data:      parseItemData(it.CartItemData),
		})
	}
	for _, cp := range c.Coupons {
		cart.Coupons = append(cart.Coupons, domain.AppliedCoupon{Code: cp.Coupon})
	}

	pkgIDs := make([]string, 0, len(c.Shipping.Packages))
	for id := range c.Shipping.Packages {
		pkgIDs = append(pkgIDs, id)
	}
	sort.Strings(pkgIDs)
	for _, id := range pkgIDs {
		p := c.Shipping.Packages[id]
		pkg := domain.ShippingPackage{PackageID: id, Name: p.Name}
		rateIDs := make([]string, 0, len(p.Rates))
		for rid := range p.Rates {
			rateIDs = append(rateIDs, rid)
		}
		sort.Strings(rateIDs)
		for _, rid := range rateIDs {
			r := p.Rates[rid]
			key := r.Key
			if key == "" {
				key = rid
			}
			pkg.Rates = append(pkg.Rates, domain.ShippingRate{
				RateID:   key,
				Name:     r.Label,
				MethodID: r.MethodID,
				Cost:     int64(r.Cost),
				Selected: bool(r.ChosenMethod) || (p.ChosenMethod != "" && p.ChosenMethod == key),
			})
		}
		cart.Shipping = append(cart.Shipping, pkg)
	}
	return cart
}

// wcProduct is a WooCommerce REST v3 product.
type wcProduct struct {
	ID     flexInt   `json:"id"`
	Name   string    `json:"name"`
	Slug   string    `json:"slug"`
	Price  flexFloat `json:"price"`
	Images []struct {
		Src string `json:"src"`
	} `json:"images"`
	Categories []domain.Category `json:"categories"`
}

func (p wcProduct) toDomain() domain.Product {
	out := domain.Product{
		ID:         int(p.ID),
		Name:       p.Name,
		Slug:       p.Slug,
		Price:      float64(p.Price),
		Categories: p.Categories,
	}
	if len(p.Images) > 0 {
		out.Image = p.Images[0].Src
	}
	return out
}

type wcCoupon struct {
	Code          string `json:"code"`
	DiscountType  string `json:"discount_type"`
	Amount        string `json:"amount"`
	Description   string `json:"description"`
	MinimumAmount string `json:"minimum_amount"`
	DateExpires   string `json:"date_expires_gmt"`
}

// expired reports whether the coupon's GMT expiry is before now.
func (c wcCoupon) expired(now time.Time) bool {
	if c.DateExpires == "" {
		return false
	}
	t, err := time.Parse("2006-01-02T15:04:05", c.DateExpires)
	if err != nil {
		return false
	}
	return t.Before(now)
}

type wcGateway struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Order       flexInt  `json:"order"`
	Enabled     flexBool `json:"enabled"`
}

type wcOrder struct {
	ID            flexInt          `json:"id"`
	OrderKey      string           `json:"order_key"`
	Status        string           `json:"status"`
	Total         flexFloat        `json:"total"`
	Currency      string           `json:"currency"`
	PaymentMethod string           `json:"payment_method"`
	CustomerID    flexInt          `json:"customer_id"`
	Billing       domain.Address   `json:"billing"`
	Shipping      domain.Address   `json:"shipping"`
	LineItems     []wcOrderLineRaw `json:"line_items"`
}

type wcOrderLineRaw struct {
	ProductID flexInt `json:"product_id"`
	Quantity  flexInt `json:"quantity"`
	Subtotal  string  `json:"subtotal"`
	Total     string  `json:"total"`
}

func (o wcOrder) toDomain() *domain.Order {
	out := &domain.Order{
		ID:            int(o.ID),
		OrderKey:      o.OrderKey,
		Status:        o.Status,
		Total:         float64(o.Total),
		Currency:      o.Currency,
		PaymentMethod: o.PaymentMethod,
		CustomerID:    int(o.CustomerID),
		Billing:       o.Billing,
		Shipping:      o.Shipping,
	}
	for _, l := range o.LineItems {
		out.LineItems = append(out.LineItems, domain.OrderLineItem{
			ProductID: int(l.ProductID),
			Quantity:  int(l.Quantity),
			Subtotal:  l.Subtotal,
			Total:     l.Total,
		})
	}
	return out
}

// wireRule is a free-gift rule as served by the rules plugin.
type wireRule struct {
	ID           json.RawMessage     `json:"id"`
	Enabled      flexBool            `json:"enabled"`
	Name         string              `json:"name"`
	MinCartValue flexFloat           `json:"min_cart_value"`
	MaxCartValue *flexFloat          `json:"max_cart_value"`
	Currency     string              `json:"currency"`
	ProductID    flexInt             `json:"product_id"`
	ProductIDAr  flexInt             `json:"product_id_ar"`
	Priority     flexInt             `json:"priority"`
	MessageEn    string              `json:"message_en"`
	MessageAr    string              `json:"message_ar"`
	Product      *domain.GiftProduct `json:"product"`
	ProductAr    *domain.GiftProduct `json:"product_ar"`
}

func (r wireRule) toDomain() domain.FreeGiftRule {
	out := domain.FreeGiftRule{
		ID:           scalarString(r.ID),
		Enabled:      bool(r.Enabled),
		Name:         r.Name,
		MinCartValue: float64(r.MinCartValue),
		Currency:     strings.ToUpper(strings.TrimSpace(r.Currency)),
		ProductID:    int(r.ProductID),
		ProductIDAr:  int(r.ProductIDAr),
		Priority:     int(r.Priority),
		MessageEn:    r.MessageEn,
		MessageAr:    r.MessageAr,
		Product:      r.Product,
		ProductAr:    r.ProductAr,
	}
	if r.MaxCartValue != nil && *r.MaxCartValue > 0 {
		v := float64(*r.MaxCartValue)
		out.MaxCartValue = &v
	}
	if out.Currency == "" {
		out.Currency = domain.CurrencyAll
	}
	return out
}
