package woocommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/httpclient"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/pagination"
)

// Product fetches one product.
func (c *Client) Product(ctx context.Context, id int) (*domain.Product, error) {
	var p wcProduct
	if err := c.rest(ctx, http.MethodGet, "/products/"+strconv.Itoa(id), nil, nil, &p); err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	out := p.toDomain()
	return &out, nil
}

// Products fetches one page of published products.
func (c *Client) Products(ctx context.Context, page pagination.Params) ([]domain.Product, error) {
	q := page.Apply(url.Values{"status": {"publish"}})
	var wire []wcProduct
	if err := c.rest(ctx, http.MethodGet, "/products", q, nil, &wire); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	out := make([]domain.Product, 0, len(wire))
	for _, p := range wire {
		out = append(out, p.toDomain())
	}
	return out, nil
}

// Catalog walks product pages until a short page or the configured page cap.
func (c *Client) Catalog(ctx context.Context) ([]domain.Product, error) {
	var all []domain.Product
	for n := 1; n <= c.cfg.MaxPages; n++ {
		page := pagination.New(n, pagination.MaxPerPage)
		products, err := c.Products(ctx, page)
		if err != nil {
			return nil, err
		}
		all = append(all, products...)
		if len(products) < page.PerPage {
			return all, nil
		}
	}
	c.logger.WarnContext(ctx, "catalog truncated at page cap", slog.Int("max_pages", c.cfg.MaxPages))
	return all, nil
}

// Coupons lists unexpired coupons, which the storefront advertises.
func (c *Client) Coupons(ctx context.Context, now time.Time) ([]domain.PublicCoupon, error) {
	var wire []wcCoupon
	q := pagination.New(1, pagination.MaxPerPage).Apply(url.Values{})
	if err := c.rest(ctx, http.MethodGet, "/coupons", q, nil, &wire); err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	out := make([]domain.PublicCoupon, 0, len(wire))
	for _, cp := range wire {
		if cp.expired(now) {
			continue
		}
		out = append(out, domain.PublicCoupon{
			Code:          cp.Code,
			DiscountType:  cp.DiscountType,
			Amount:        cp.Amount,
			Description:   cp.Description,
			MinimumAmount: cp.MinimumAmount,
			DateExpires:   cp.DateExpires,
		})
	}
	return out, nil
}

// PaymentGateways lists enabled gateways in display order.
func (c *Client) PaymentGateways(ctx context.Context) ([]domain.PaymentGateway, error) {
	var wire []wcGateway
	if err := c.rest(ctx, http.MethodGet, "/payment_gateways", nil, nil, &wire); err != nil {
		return nil, fmt.Errorf("list payment gateways: %w", err)
	}
	out := make([]domain.PaymentGateway, 0, len(wire))
	for _, g := range wire {
		if !g.Enabled {
			continue
		}
		out = append(out, domain.PaymentGateway{ID: g.ID, Title: g.Title, Description: g.Description, Order: int(g.Order)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// FreeGiftRules fetches the rules for a currency and locale. The endpoint
// answers either {"success":true,"rules":[...]} or a bare array.
func (c *Client) FreeGiftRules(ctx context.Context, currency, locale string) ([]domain.FreeGiftRule, error) {
	q := url.Values{}
	if currency != "" {
		q.Set("currency", currency)
	}
	if locale != "" {
		q.Set("locale", locale)
	}
	u := c.cfg.BaseURL + c.cfg.RulesPath
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var raw json.RawMessage
	if err := httpclient.DoJSON(ctx, c.doer, httpclient.JSONRequest{
		Method: http.MethodGet, URL: u, Service: "free-gift-rules",
	}, &raw); err != nil {
		return nil, fmt.Errorf("fetch free gift rules: %w", err)
	}

	var wire []wireRule
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &wire); err != nil {
			return nil, fmt.Errorf("decode free gift rules: %w", err)
		}
	} else {
		var env struct {
			Rules []wireRule `json:"rules"`
		}
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("decode free gift rules: %w", err)
		}
		wire = env.Rules
	}

	out := make([]domain.FreeGiftRule, 0, len(wire))
	for _, r := range wire {
		out = append(out, r.toDomain())
	}
	return out, nil
}
