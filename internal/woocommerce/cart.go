package woocommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/httpclient"
)

type cartQuery struct {
	key, currency, locale string
}

func queryFor(ref domain.CartRef) cartQuery {
	return cartQuery{key: ref.Key, currency: ref.Currency, locale: ref.Locale}
}

// AddItemRequest adds a product to the cart with optional cart_item_data.
type AddItemRequest struct {
	ProductID int
	Quantity  int
	ItemData  map[string]any
}

// doCart sends one CoCart request and decodes the returned cart. The cart key
// header wins over the body so a new guest cart keeps its key.
func (c *Client) doCart(ctx context.Context, method, path string, ref domain.CartRef, body any) (*domain.Cart, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal cart request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cartURL(path, queryFor(ref)), reader)
	if err != nil {
		return nil, fmt.Errorf("create cart request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call cocart %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpclient.ParseResponseError(resp, "cocart")
	}
	defer func() { _ = resp.Body.Close() }()

	var wire cocartCart
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode cocart cart: %w", err)
	}
	cart := wire.toDomain()
	if key := resp.Header.Get(CartKeyHeader); key != "" {
		cart.Key = key
	}
	if cart.Key == "" {
		cart.Key = ref.Key
	}
	return cart, nil
}

// GetCart returns the cart for ref. An empty key starts a guest session.
func (c *Client) GetCart(ctx context.Context, ref domain.CartRef) (*domain.Cart, error) {
	return c.doCart(ctx, http.MethodGet, "/cart", ref, nil)
}

// AddItem adds a line and returns the updated cart.
func (c *Client) AddItem(ctx context.Context, ref domain.CartRef, in AddItemRequest) (*domain.Cart, error) {
	body := map[string]any{
		"id":       strconv.Itoa(in.ProductID),
		"quantity": strconv.Itoa(in.Quantity),
	}
	if len(in.ItemData) > 0 {
		body["item_data"] = in.ItemData
	}
	return c.doCart(ctx, http.MethodPost, "/cart/add-item", ref, body)
}

// UpdateItem sets the quantity of a line.
func (c *Client) UpdateItem(ctx context.Context, ref domain.CartRef, itemKey string, quantity int) (*domain.Cart, error) {
	return c.doCart(ctx, http.MethodPost, "/cart/item/"+url.PathEscape(itemKey), ref,
		map[string]any{"quantity": strconv.Itoa(quantity)})
}

// RemoveItem deletes a line.
func (c *Client) RemoveItem(ctx context.Context, ref domain.CartRef, itemKey string) (*domain.Cart, error) {
	return c.doCart(ctx, http.MethodDelete, "/cart/item/"+url.PathEscape(itemKey), ref, nil)
}

// Clear empties the cart.
func (c *Client) Clear(ctx context.Context, ref domain.CartRef) (*domain.Cart, error) {
	return c.doCart(ctx, http.MethodPost, "/cart/clear", ref, nil)
}

// ApplyCoupon applies a coupon code.
func (c *Client) ApplyCoupon(ctx context.Context, ref domain.CartRef, code string) (*domain.Cart, error) {
	return c.doCart(ctx, http.MethodPost, "/cart/apply-coupon", ref, map[string]string{"coupon": code})
}

// RemoveCoupon removes a coupon code.
func (c *Client) RemoveCoupon(ctx context.Context, ref domain.CartRef, code string) (*domain.Cart, error) {
	return c.doCart(ctx, http.MethodPost, "/cart/remove-coupon", ref, map[string]string{"coupon": code})
}

// SelectShipping chooses a shipping rate by its rate id.
func (c *Client) SelectShipping(ctx context.Context, ref domain.CartRef, rateID string) (*domain.Cart, error) {
	return c.doCart(ctx, http.MethodPost, "/cart/shipping-methods", ref, map[string]string{"key": rateID})
}
