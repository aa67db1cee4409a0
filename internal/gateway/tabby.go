package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	apperrors "github.com/muhsiltomsher-cloud/asl-storefront/pkg/errors"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/httpclient"
)

// TabbyURL is the Tabby API host.
const TabbyURL = "https://api.tabby.ai"

// Tabby opens installment checkout sessions.
type Tabby struct {
	doer         httpclient.Doer
	baseURL      string
	secretKey    string
	merchantCode string
	logger       *slog.Logger
}

// NewTabby creates the gateway.
func NewTabby(doer httpclient.Doer, baseURL, secretKey, merchantCode string, logger *slog.Logger) *Tabby {
	if baseURL == "" {
		baseURL = TabbyURL
	}
	return &Tabby{
		doer:         doer,
		baseURL:      strings.TrimRight(baseURL, "/"),
		secretKey:    secretKey,
		merchantCode: merchantCode,
		logger:       logger,
	}
}

// Name implements Gateway.
func (g *Tabby) Name() domain.Gateway { return domain.GatewayTabby }

type tabbySession struct {
	Payment      tabbyPayment      `json:"payment"`
	Lang         string            `json:"lang"`
	MerchantCode string            `json:"merchant_code"`
	MerchantURLs map[string]string `json:"merchant_urls"`
}

type tabbyPayment struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Buyer    struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"buyer"`
	ShippingAddress struct {
		City    string `json:"city"`
		Address string `json:"address"`
		Zip     string `json:"zip"`
	} `json:"shipping_address"`
	Order struct {
		ReferenceID string `json:"reference_id"`
	} `json:"order"`
}

type tabbySessionResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Payment struct {
		ID string `json:"id"`
	} `json:"payment"`
	Configuration struct {
		AvailableProducts map[string][]struct {
			WebURL string `json:"web_url"`
		} `json:"available_products"`
	} `json:"configuration"`
}

func (g *Tabby) header() http.Header {
	return http.Header{"Authorization": {"Bearer " + g.secretKey}}
}

// Initiate implements Gateway. A session Tabby rejects carries no web URL
// and is reported as a payment failure.
func (g *Tabby) Initiate(ctx context.Context, req InitiateRequest) (*Initiation, error) {
	o := req.Order
	lang := "en"
	if req.Locale == "ar" {
		lang = "ar"
	}

	var p tabbyPayment
	p.Amount = amountString(o.Total, o.Currency)
	p.Currency = o.Currency
	p.Buyer.Name = customerName(o.Billing)
	p.Buyer.Email = o.Billing.Email
	p.Buyer.Phone = o.Billing.Phone
	p.ShippingAddress.City = o.Shipping.City
	p.ShippingAddress.Address = strings.TrimSpace(o.Shipping.Address1 + " " + o.Shipping.Address2)
	p.ShippingAddress.Zip = o.Shipping.Postcode
	p.Order.ReferenceID = strconv.Itoa(o.ID)

	var resp tabbySessionResponse
	if err := httpclient.DoJSON(ctx, g.doer, httpclient.JSONRequest{
		Method: http.MethodPost,
		URL:    g.baseURL + "/api/v2/checkout",
		Header: g.header(),
		Body: tabbySession{
			Payment:      p,
			Lang:         lang,
			MerchantCode: g.merchantCode,
			MerchantURLs: map[string]string{
				"success": req.URLs.Success,
				"cancel":  req.URLs.Cancel,
				"failure": req.URLs.Failure,
			},
		},
		Service: "tabby",
	}, &resp); err != nil {
		return nil, fmt.Errorf("tabby create session: %w", err)
	}

	for _, products := range resp.Configuration.AvailableProducts {
		for _, prod := range products {
			if prod.WebURL != "" {
				return &Initiation{ProviderRef: resp.Payment.ID, RedirectURL: prod.WebURL}, nil
			}
		}
	}
	g.logger.WarnContext(ctx, "tabby session rejected",
		slog.Int("order_id", o.ID),
		slog.String("status", resp.Status),
	)
	return nil, apperrors.PaymentFailed("tabby: installments are not available for this order")
}

// Verify implements Gateway. AUTHORIZED and CLOSED payments count as paid.
func (g *Tabby) Verify(ctx context.Context, ref string) (*Verification, error) {
	var resp struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
		Order    struct {
			ReferenceID string `json:"reference_id"`
		} `json:"order"`
	}
	if err := httpclient.DoJSON(ctx, g.doer, httpclient.JSONRequest{
		Method:  http.MethodGet,
		URL:     g.baseURL + "/api/v2/payments/" + url.PathEscape(ref),
		Header:  g.header(),
		Service: "tabby",
	}, &resp); err != nil {
		return nil, fmt.Errorf("tabby get payment: %w", err)
	}

	status := strings.ToUpper(resp.Status)
	amount, _ := strconv.ParseFloat(strings.TrimSpace(resp.Amount), 64)
	v := &Verification{
		Status:         strings.ToLower(status),
		TransactionID:  resp.ID,
		OrderReference: resp.Order.ReferenceID,
		Amount:         amount,
		Currency:       resp.Currency,
	}
	switch status {
	case "AUTHORIZED", "CLOSED":
		v.Paid = true
	default:
		v.Reason = "tabby payment " + strings.ToLower(status)
	}
	return v, nil
}
