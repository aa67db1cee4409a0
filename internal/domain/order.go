package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Address is a billing or shipping address.
type Address struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Company   string `json:"company,omitempty"`
	Address1  string `json:"address_1" validate:"required,max=200"`
	Address2  string `json:"address_2,omitempty"`
	City      string `json:"city" validate:"required"`
	State     string `json:"state,omitempty"`
	Postcode  string `json:"postcode,omitempty"`
	Country   string `json:"country" validate:"required,iso3166_1_alpha2"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"required,min=6,max=20"`
}

// CheckoutRequest is what the shopper submits on the checkout page.
type CheckoutRequest struct {
	Shipping        Address  `json:"shipping"`
	Billing         *Address `json:"billing,omitempty"`
	SameAsShipping  bool     `json:"same_as_shipping"`
	Email           string   `json:"email" validate:"required,email"`
	PaymentMethod   string   `json:"payment_method" validate:"required"`
	PaymentTitle    string   `json:"payment_method_title,omitempty"`
	CouponCodes     []string `json:"coupon_codes,omitempty"`
	ShippingRateID  string   `json:"shipping_rate_id,omitempty"`
	CustomerNote    string   `json:"customer_note,omitempty" validate:"max=1000"`
	CreateAccount   bool     `json:"create_account"`
	Password        string   `json:"password,omitempty" validate:"required_if=CreateAccount true,omitempty,min=8"`
	ConfirmPassword string   `json:"confirm_password,omitempty" validate:"omitempty,eqfield=Password"`
	ExpectedTotal   float64  `json:"expected_total,omitempty"`
}

// BillingAddress resolves the billing address, mirroring shipping when asked
// or when none was given. The checkout email always wins.
func (r CheckoutRequest) BillingAddress() Address {
	b := r.Shipping
	if !r.SameAsShipping && r.Billing != nil {
		b = *r.Billing
	}
	b.Email = r.Email
	return b
}

// Meta is a WooCommerce meta_data entry.
type Meta struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// OrderLineItem is a WooCommerce order line.
type OrderLineItem struct {
	ProductID int    `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Subtotal  string `json:"subtotal"`
	Total     string `json:"total"`
	MetaData  []Meta `json:"meta_data,omitempty"`
}

// ShippingLine is a WooCommerce order shipping line.
type ShippingLine struct {
	MethodID    string `json:"method_id"`
	MethodTitle string `json:"method_title"`
	Total       string `json:"total"`
}

// CouponCode is a WooCommerce order coupon line.
type CouponCode struct {
	Code string `json:"code"`
}

// OrderPayload is the WooCommerce create-order body.
type OrderPayload struct {
	PaymentMethod      string          `json:"payment_method"`
	PaymentMethodTitle string          `json:"payment_method_title"`
	SetPaid            bool            `json:"set_paid"`
	Status             string          `json:"status"`
	Currency           string          `json:"currency"`
	CustomerID         int             `json:"customer_id,omitempty"`
	CustomerNote       string          `json:"customer_note,omitempty"`
	Billing            Address         `json:"billing"`
	Shipping           Address         `json:"shipping"`
	LineItems          []OrderLineItem `json:"line_items"`
	ShippingLines      []ShippingLine  `json:"shipping_lines,omitempty"`
	CouponLines        []CouponCode    `json:"coupon_lines,omitempty"`
	MetaData           []Meta          `json:"meta_data,omitempty"`
}

// Order is a created WooCommerce order.
type Order struct {
	ID            int             `json:"id"`
	OrderKey      string          `json:"order_key"`
	Status        string          `json:"status"`
	Total         float64         `json:"total"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method"`
	CustomerID    int             `json:"customer_id"`
	Billing       Address         `json:"billing"`
	Shipping      Address         `json:"shipping"`
	LineItems     []OrderLineItem `json:"line_items,omitempty"`
}

// Order statuses used by the storefront.
const (
	OrderPending    = "pending"
	OrderProcessing = "processing"
	OrderFailed     = "failed"
)

// DisplayCurrency converts base-currency amounts to the shopper's currency.
type DisplayCurrency struct {
	Code     string  `json:"code"`
	Rate     float64 `json:"rate"`
	Decimals int     `json:"decimals"`
}

// Convert applies the rate and rounds to Decimals.
func (d DisplayCurrency) Convert(amount float64) float64 {
	rate := d.Rate
	if rate <= 0 {
		rate = 1
	}
	p := math.Pow10(d.Decimals)
	return math.Round(amount*rate*p) / p
}

// Format renders amount with Decimals places.
func (d DisplayCurrency) Format(amount float64) string {
	return strconv.FormatFloat(amount, 'f', d.Decimals, 64)
}

// BundleUnitTotal is the true per-unit price of a bundle line, in major units
// of the cart currency. Fixed bundles use fixed price, then stored bundle
// total, then box price. Other bundles use the line's own price when the
// backend priced it, else slot prices plus box price.
func BundleUnitTotal(it CartItem, cur Currency) float64 {
	d := it.Data
	if d.PricingMode == PricingFixed {
		switch {
		case d.FixedPrice != nil:
			return *d.FixedPrice
		case d.BundleTotal != nil:
			return *d.BundleTotal
		case d.BoxPrice != nil:
			return *d.BoxPrice
		default:
			return 0
		}
	}
	if it.Price > 0 {
		return cur.ToMajor(it.Price)
	}
	total := d.BundleSum()
	if d.BoxPrice != nil {
		total += *d.BoxPrice
	}
	return total
}

func formatMajor(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func bundleMeta(it CartItem, unit float64) []Meta {
	d := it.Data
	parts := make([]string, 0, len(d.BundleItems))
	for _, b := range d.BundleItems {
		qty := b.Quantity
		if qty == 0 {
			qty = 1
		}
		parts = append(parts, fmt.Sprintf("%s x%d (%s)", b.Name, qty, formatMajor(b.Price)))
	}
	mode := string(d.PricingMode)
	if mode == "" {
		mode = string(PricingSum)
	}
	meta := []Meta{
		{Key: "Bundle Items", Value: strings.Join(parts, ", ")},
		{Key: "Pricing Mode", Value: mode},
		{Key: "Items Subtotal", Value: formatMajor(d.BundleSum())},
		{Key: "Bundle Unit Price", Value: formatMajor(unit)},
	}
	if d.BoxPrice != nil {
		meta = append(meta, Meta{Key: "Box Price", Value: formatMajor(*d.BoxPrice)})
	}
	return meta
}

// BuildLineItems turns cart lines into order lines priced in dc. Bundle lines
// get descriptive meta entries for the store admin.
func BuildLineItems(c *Cart, dc DisplayCurrency) []OrderLineItem {
	out := make([]OrderLineItem, 0, len(c.Items))
	for _, it := range c.Items {
		var unit float64
		var meta []Meta
		if it.Data.IsBundle() {
			unit = BundleUnitTotal(it, c.Currency)
			meta = bundleMeta(it, unit)
		} else {
			unit = c.Currency.ToMajor(it.Price)
		}
		if it.Data.FreeGift {
			meta = append(meta, Meta{Key: "_asl_free_gift_rule_id", Value: it.Data.FreeGiftRuleID})
		}

		total := dc.Format(dc.Convert(unit * float64(it.Quantity)))
		out = append(out, OrderLineItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Subtotal:  total,
			Total:     total,
			MetaData:  meta,
		})
	}
	return out
}

// BuildOrderPayload assembles the create-order body. The order stays pending
// until a gateway confirms payment; cash on delivery moves to processing.
func BuildOrderPayload(c *Cart, req CheckoutRequest, customerID int, dc DisplayCurrency) OrderPayload {
	status := OrderPending
	if GatewayFor(req.PaymentMethod) == GatewayDirect {
		status = OrderProcessing
	}

	title := req.PaymentTitle
	if title == "" {
		title = req.PaymentMethod
	}

	p := OrderPayload{
		PaymentMethod:      req.PaymentMethod,
		PaymentMethodTitle: title,
		Status:             status,
		Currency:           dc.Code,
		CustomerID:         customerID,
		CustomerNote:       req.CustomerNote,
		Billing:            req.BillingAddress(),
		Shipping:           req.Shipping,
		LineItems:          BuildLineItems(c, dc),
		MetaData:           []Meta{{Key: "_storefront_cart_key", Value: c.Key}},
	}
	p.Shipping.Email = ""

	codes := req.CouponCodes
	if len(codes) == 0 {
		for _, cp := range c.Coupons {
			codes = append(codes, cp.Code)
		}
	}
	for _, code := range codes {
		p.CouponLines = append(p.CouponLines, CouponCode{Code: code})
	}

	if rate, ok := selectShippingRate(c.Shipping, req.ShippingRateID); ok {
		p.ShippingLines = []ShippingLine{{
			MethodID:    rate.MethodID,
			MethodTitle: rate.Name,
			Total:       dc.Format(dc.Convert(c.Currency.ToMajor(rate.Cost))),
		}}
	}
	return p
}

func selectShippingRate(pkgs []ShippingPackage, rateID string) (ShippingRate, bool) {
	if rateID != "" {
		for _, p := range pkgs {
			for _, r := range p.Rates {
				if r.RateID == rateID {
					return r, true
				}
			}
		}
	}
	return SelectedRate(pkgs)
}

// Gateway identifies a payment flow.
type Gateway string

// Payment flows.
const (
	GatewayMyFatoorah Gateway = "myfatoorah"
	GatewayTabby      Gateway = "tabby"
	GatewayTamara     Gateway = "tamara"
	GatewayDirect     Gateway = "direct"
)

// GatewayFor maps a WooCommerce payment method id to its flow by prefix.
func GatewayFor(paymentMethod string) Gateway {
	m := strings.ToLower(paymentMethod)
	switch {
	case strings.HasPrefix(m, "myfatoorah"):
		return GatewayMyFatoorah
	case strings.HasPrefix(m, "tabby"):
		return GatewayTabby
	case strings.HasPrefix(m, "tamara"):
		return GatewayTamara
	default:
		return GatewayDirect
	}
}

// TotalsDiffer reports whether two totals differ by more than one cent.
func TotalsDiffer(a, b float64) bool {
	return math.Abs(a-b) > 0.01
}

// OrderUpdate is the WooCommerce update-order body.
type OrderUpdate struct {
	Status        string `json:"status,omitempty"`
	SetPaid       bool   `json:"set_paid,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	MetaData      []Meta `json:"meta_data,omitempty"`
}

// PaymentGateway is an enabled WooCommerce payment method.
type PaymentGateway struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Order       int    `json:"order"`
}

// NewCustomer is the guest account created at checkout.
type NewCustomer struct {
	Email     string  `json:"email"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Password  string  `json:"password"`
	Billing   Address `json:"billing"`
	Shipping  Address `json:"shipping"`
}
