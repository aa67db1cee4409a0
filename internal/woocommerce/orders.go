package woocommerce

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
)

// CreateOrder creates an order from the assembled payload.
func (c *Client) CreateOrder(ctx context.Context, payload domain.OrderPayload) (*domain.Order, error) {
	var o wcOrder
	if err := c.rest(ctx, http.MethodPost, "/orders", nil, payload, &o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return o.toDomain(), nil
}

// GetOrder fetches an order by id.
func (c *Client) GetOrder(ctx context.Context, id int) (*domain.Order, error) {
	var o wcOrder
	if err := c.rest(ctx, http.MethodGet, "/orders/"+strconv.Itoa(id), nil, nil, &o); err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	return o.toDomain(), nil
}

// UpdateOrder changes status, payment flags or meta of an order.
func (c *Client) UpdateOrder(ctx context.Context, id int, upd domain.OrderUpdate) (*domain.Order, error) {
	var o wcOrder
	if err := c.rest(ctx, http.MethodPut, "/orders/"+strconv.Itoa(id), nil, upd, &o); err != nil {
		return nil, fmt.Errorf("update order %d: %w", id, err)
	}
	return o.toDomain(), nil
}

// CustomerExists reports whether a customer account uses email.
func (c *Client) CustomerExists(ctx context.Context, email string) (bool, error) {
	var customers []struct {
		ID    flexInt `json:"id"`
		Email string  `json:"email"`
	}
	q := url.Values{"email": {email}, "role": {"all"}}
	if err := c.rest(ctx, http.MethodGet, "/customers", q, nil, &customers); err != nil {
		return false, fmt.Errorf("look up customer: %w", err)
	}
	for _, cu := range customers {
		if strings.EqualFold(cu.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

// CreateCustomer registers a customer and returns its id.
func (c *Client) CreateCustomer(ctx context.Context, in domain.NewCustomer) (int, error) {
	var created struct {
		ID flexInt `json:"id"`
	}
	if err := c.rest(ctx, http.MethodPost, "/customers", nil, in, &created); err != nil {
		return 0, fmt.Errorf("create customer: %w", err)
	}
	return int(created.ID), nil
}
