package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/httpclient"
)

// Tamara sandbox and live API hosts.
const (
	TamaraSandboxURL = "https://api-sandbox.tamara.co"
	TamaraLiveURL    = "https://api.tamara.co"
)

// Tamara opens pay-by-instalments checkouts.
type Tamara struct {
	doer    httpclient.Doer
	baseURL string
	token   string
}

// NewTamara creates the gateway.
func NewTamara(doer httpclient.Doer, baseURL, token string) *Tamara {
	if baseURL == "" {
		baseURL = TamaraLiveURL
	}
	return &Tamara{doer: doer, baseURL: strings.TrimRight(baseURL, "/"), token: token}
}

// Name implements Gateway.
func (g *Tamara) Name() domain.Gateway { return domain.GatewayTamara }

type tamaraMoney struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type tamaraAddress struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Line1       string `json:"line1"`
	City        string `json:"city"`
	CountryCode string `json:"country_code"`
	PhoneNumber string `json:"phone_number"`
}

type tamaraItem struct {
	ReferenceID string      `json:"reference_id"`
	Type        string      `json:"type"`
	Name        string      `json:"name"`
	SKU         string      `json:"sku"`
	Quantity    int         `json:"quantity"`
	TotalAmount tamaraMoney `json:"total_amount"`
}

type tamaraCheckout struct {
	OrderReferenceID string        `json:"order_reference_id"`
	TotalAmount      tamaraMoney   `json:"total_amount"`
	Description      string        `json:"description"`
	CountryCode      string        `json:"country_code"`
	PaymentType      string        `json:"payment_type"`
	Locale           string        `json:"locale"`
	Items            []tamaraItem  `json:"items"`
	Consumer         any           `json:"consumer"`
	ShippingAddress  tamaraAddress `json:"shipping_address"`
	ShippingAmount   tamaraMoney   `json:"shipping_amount"`
	TaxAmount        tamaraMoney   `json:"tax_amount"`
	MerchantURL      any           `json:"merchant_url"`
}

func (g *Tamara) header() http.Header {
	return http.Header{"Authorization": {"Bearer " + g.token}}
}

// Initiate implements Gateway.
func (g *Tamara) Initiate(ctx context.Context, req InitiateRequest) (*Initiation, error) {
	o := req.Order
	locale := "en_US"
	if req.Locale == "ar" {
		locale = "ar_SA"
	}
	zero := tamaraMoney{Currency: o.Currency}

	items := make([]tamaraItem, 0, len(o.LineItems))
	for i, l := range o.LineItems {
		total, _ := strconv.ParseFloat(l.Total, 64)
		items = append(items, tamaraItem{
			ReferenceID: strconv.Itoa(i + 1),
			Type:        "physical",
			Name:        "product " + strconv.Itoa(l.ProductID),
			SKU:         strconv.Itoa(l.ProductID),
			Quantity:    l.Quantity,
			TotalAmount: tamaraMoney{Amount: total, Currency: o.Currency},
		})
	}

	body := tamaraCheckout{
		OrderReferenceID: strconv.Itoa(o.ID),
		TotalAmount:      tamaraMoney{Amount: o.Total, Currency: o.Currency},
		Description:      "Order " + strconv.Itoa(o.ID),
		CountryCode:      o.Shipping.Country,
		PaymentType:      "PAY_BY_INSTALMENTS",
		Locale:           locale,
		Items:            items,
		Consumer: map[string]string{
			"first_name":   o.Billing.FirstName,
			"last_name":    o.Billing.LastName,
			"email":        o.Billing.Email,
			"phone_number": o.Billing.Phone,
		},
		ShippingAddress: tamaraAddress{
			FirstName:   o.Shipping.FirstName,
			LastName:    o.Shipping.LastName,
			Line1:       o.Shipping.Address1,
			City:        o.Shipping.City,
			CountryCode: o.Shipping.Country,
			PhoneNumber: o.Shipping.Phone,
		},
		ShippingAmount: zero,
		TaxAmount:      zero,
		MerchantURL: map[string]string{
			"success": req.URLs.Success,
			"failure": req.URLs.Failure,
			"cancel":  req.URLs.Cancel,
		},
	}

	var resp struct {
		OrderID     string `json:"order_id"`
		CheckoutID  string `json:"checkout_id"`
		CheckoutURL string `json:"checkout_url"`
	}
	if err := httpclient.DoJSON(ctx, g.doer, httpclient.JSONRequest{
		Method: http.MethodPost, URL: g.baseURL + "/checkout", Header: g.header(), Body: body, Service: "tamara",
	}, &resp); err != nil {
		return nil, fmt.Errorf("tamara create checkout: %w", err)
	}
	return &Initiation{ProviderRef: resp.OrderID, RedirectURL: resp.CheckoutURL}, nil
}

// Verify implements Gateway.
func (g *Tamara) Verify(ctx context.Context, ref string) (*Verification, error) {
	var resp struct {
		OrderID          string      `json:"order_id"`
		OrderReferenceID string      `json:"order_reference_id"`
		Status           string      `json:"status"`
		TotalAmount      tamaraMoney `json:"total_amount"`
	}
	if err := httpclient.DoJSON(ctx, g.doer, httpclient.JSONRequest{
		Method: http.MethodGet, URL: g.baseURL + "/orders/" + url.PathEscape(ref), Header: g.header(), Service: "tamara",
	}, &resp); err != nil {
		return nil, fmt.Errorf("tamara get order: %w", err)
	}

	status := strings.ToLower(resp.Status)
	v := &Verification{
		Status:         status,
		TransactionID:  resp.OrderID,
		OrderReference: resp.OrderReferenceID,
		Amount:         resp.TotalAmount.Amount,
		Currency:       resp.TotalAmount.Currency,
	}
	switch status {
	case "approved", "authorised", "fully_captured", "partially_captured":
		v.Paid = true
	default:
		v.Reason = "tamara order " + status
	}
	return v, nil
}
