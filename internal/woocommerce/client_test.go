package woocommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	apperrors "github.com/muhsiltomsher-cloud/asl-storefront/pkg/errors"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/httpclient"
)

const cartFixture = `{
  "cart_key": "body-key",
  "currency": {"currency_code": "AED", "currency_symbol": "AED", "currency_minor_unit": 2},
  "items": [
    {
      "item_key": "b1", "id": 10, "name": "Build Your Set", "slug": "build-your-set",
      "price": "0", "quantity": {"value": 2, "min_purchase": 1},
      "totals": {"total": 0},
      "cart_item_data": {
        "bundle_items": "[{\"product_id\":2,\"name\":\"Oud\",\"price\":\"50\"},{\"product_id\":3,\"name\":\"Rose\",\"price\":75}]",
        "box_price": "10"
      }
    },
    {
      "item_key": "g1", "id": 900, "name": "Free Gift", "price": 0, "quantity": 1,
      "cart_item_data": {"_asl_free_gift": "1", "_asl_free_gift_rule_id": 42, "_asl_free_gift_unique_key": "n1"}
    },
    {
      "item_key": "p1", "id": 5, "name": "Perfume", "price": "12500", "quantity": {"value": 1},
      "totals": {"total": "12500"}, "cart_item_data": []
    }
  ],
  "coupons": [{"coupon": "welcome", "label": "Coupon: welcome", "saving": "1000"}],
  "shipping": {"packages": {"default": {
    "package_name": "Shipping", "chosen_method": "free_shipping:2",
    "rates": {
      "flat_rate:1": {"key": "flat_rate:1", "method_id": "flat_rate", "label": "Flat", "cost": "2500"},
      "free_shipping:2": {"key": "free_shipping:2", "method_id": "free_shipping", "label": "Free", "cost": "0"}
    }
  }}},
  "totals": {"subtotal": "12500", "shipping_total": "0", "discount_total": "1000", "total": "11500", "total_tax": "0"}
}`

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	httpCfg := httpclient.DefaultConfig()
	httpCfg.MaxRetries = 0
	return New(Config{
		BaseURL:        srv.URL,
		ConsumerKey:    "ck_test",
		ConsumerSecret: "cs_test",
		RulesPath:      "/wp-json/asl-free-gifts/v1/rules",
		MaxPages:       5,
	}, httpclient.New(httpCfg), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGetCart_ParsesCoCartShapes(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/cocart/v2/cart", r.URL.Path)
		assert.Equal(t, "k1", r.URL.Query().Get("cart_key"))
		assert.Equal(t, "AED", r.URL.Query().Get("currency"))
		assert.Equal(t, "ar", r.URL.Query().Get("lang"))
		w.Header().Set(CartKeyHeader, "header-key")
		_, _ = w.Write([]byte(cartFixture))
	}))

	cart, err := c.GetCart(context.Background(), domain.CartRef{Key: "k1", Currency: "AED", Locale: "ar"})
	require.NoError(t, err)

	assert.Equal(t, "header-key", cart.Key)
	assert.Equal(t, domain.Currency{Code: "AED", MinorUnit: 2, Symbol: "AED"}, cart.Currency)
	require.Len(t, cart.Items, 3)

	bundle := cart.Items[0]
	assert.Equal(t, 2, bundle.Quantity)
	require.Len(t, bundle.Data.BundleItems, 2)
	assert.Equal(t, 50.0, bundle.Data.BundleItems[0].Price)
	assert.Equal(t, 75.0, bundle.Data.BundleItems[1].Price)
	require.NotNil(t, bundle.Data.BoxPrice)
	assert.Equal(t, 10.0, *bundle.Data.BoxPrice)
	assert.Empty(t, bundle.Data.PricingMode)

	gift := cart.Items[1]
	assert.True(t, gift.Data.FreeGift)
	assert.Equal(t, "42", gift.Data.FreeGiftRuleID)

	plain := cart.Items[2]
	assert.Equal(t, int64(12500), plain.Price)
	assert.Equal(t, int64(12500), plain.LineTotal)
	assert.False(t, plain.Data.IsBundle())

	assert.Equal(t, []domain.AppliedCoupon{{Code: "welcome"}}, cart.Coupons)
	assert.Equal(t, int64(11500), cart.Totals.Total)
	assert.Equal(t, int64(1000), cart.Totals.DiscountTotal)

	require.Len(t, cart.Shipping, 1)
	rate, ok := domain.SelectedRate(cart.Shipping)
	require.True(t, ok)
	assert.Equal(t, "free_shipping:2", rate.RateID)
	assert.Equal(t, "flat_rate:1", cart.Shipping[0].Rates[0].RateID, "rates sorted by id")
}

func TestAddItem_SendsItemData(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/wp-json/cocart/v2/cart/add-item", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "10", body["id"])
		assert.Equal(t, "2", body["quantity"])
		data := body["item_data"].(map[string]any)
		assert.Equal(t, "sum", data["pricing_mode"])

		_, _ = w.Write([]byte(`{"cart_key":"new-key","items":[],"totals":{}}`))
	}))

	cart, err := c.AddItem(context.Background(), domain.CartRef{}, AddItemRequest{
		ProductID: 10, Quantity: 2, ItemData: map[string]any{"pricing_mode": "sum"},
	})
	require.NoError(t, err)
	assert.Equal(t, "new-key", cart.Key)
	assert.Equal(t, 2, cart.Currency.MinorUnit, "missing currency defaults to two decimals")
}

func TestCartMutations_Paths(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		call   func(c *Client) error
	}{
		{"update", http.MethodPost, "/wp-json/cocart/v2/cart/item/abc", func(c *Client) error {
			_, err := c.UpdateItem(context.Background(), domain.CartRef{Key: "k"}, "abc", 3)
			return err
		}},
		{"remove", http.MethodDelete, "/wp-json/cocart/v2/cart/item/abc", func(c *Client) error {
			_, err := c.RemoveItem(context.Background(), domain.CartRef{Key: "k"}, "abc")
			return err
		}},
		{"clear", http.MethodPost, "/wp-json/cocart/v2/cart/clear", func(c *Client) error {
			_, err := c.Clear(context.Background(), domain.CartRef{Key: "k"})
			return err
		}},
		{"apply coupon", http.MethodPost, "/wp-json/cocart/v2/cart/apply-coupon", func(c *Client) error {
			_, err := c.ApplyCoupon(context.Background(), domain.CartRef{Key: "k"}, "TEN")
			return err
		}},
		{"remove coupon", http.MethodPost, "/wp-json/cocart/v2/cart/remove-coupon", func(c *Client) error {
			_, err := c.RemoveCoupon(context.Background(), domain.CartRef{Key: "k"}, "TEN")
			return err
		}},
		{"select shipping", http.MethodPost, "/wp-json/cocart/v2/cart/shipping-methods", func(c *Client) error {
			_, err := c.SelectShipping(context.Background(), domain.CartRef{Key: "k"}, "flat_rate:1")
			return err
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tc.method, r.Method)
				assert.Equal(t, tc.path, r.URL.Path)
				assert.Equal(t, "k", r.URL.Query().Get("cart_key"))
				_, _ = w.Write([]byte(`{"cart_key":"k","items":[]}`))
			}))
			require.NoError(t, tc.call(c))
		})
	}
}

func TestCartErrors_MapToAppErrors(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"cocart_coupon_invalid","message":"Coupon \"x\" does not exist!"}`))
	}))

	_, err := c.ApplyCoupon(context.Background(), domain.CartRef{Key: "k"}, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestCatalog_WalksPages(t *testing.T) {
	var pages []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/wc/v3/products", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "ck_test", user)
		assert.Equal(t, "cs_test", pass)

		page := r.URL.Query().Get("page")
		pages = append(pages, page)
		n := 100
		if page == "2" {
			n = 3
		}
		out := make([]map[string]any, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, map[string]any{
				"id": i + 1, "name": "P" + strconv.Itoa(i), "price": "12.50",
				"images":     []map[string]string{{"src": "https://img/x.jpg"}},
				"categories": []map[string]any{{"id": 10, "name": "Perfumes", "slug": "perfumes"}},
			})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))

	products, err := c.Catalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 103)
	assert.Equal(t, []string{"1", "2"}, pages)
	assert.Equal(t, 12.5, products[0].Price)
	assert.Equal(t, "https://img/x.jpg", products[0].Image)
	assert.Equal(t, domain.BucketPerfumes, products[0].Option().Category)
}

func TestFreeGiftRules_Shapes(t *testing.T) {
	rules := `[{"id": 7, "enabled": "1", "name": "Spend 300", "min_cart_value": "300", "max_cart_value": "",
	  "currency": "aed", "product_id": "900", "priority": "2"},
	 {"id": "r2", "enabled": false, "min_cart_value": 100, "currency": "", "product_id": 800}]`

	for name, body := range map[string]string{
		"bare array": rules,
		"envelope":   fmt.Sprintf(`{"success":true,"rules":%s}`, rules),
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/wp-json/asl-free-gifts/v1/rules", r.URL.Path)
				assert.Equal(t, "AED", r.URL.Query().Get("currency"))
				_, _ = w.Write([]byte(body))
			}))

			got, err := c.FreeGiftRules(context.Background(), "AED", "en")
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "7", got[0].ID)
			assert.True(t, got[0].Enabled)
			assert.Equal(t, 300.0, got[0].MinCartValue)
			assert.Nil(t, got[0].MaxCartValue)
			assert.Equal(t, "AED", got[0].Currency)
			assert.Equal(t, 900, got[0].ProductID)
			assert.Equal(t, 2, got[0].Priority)
			assert.Equal(t, domain.CurrencyAll, got[1].Currency)
			assert.False(t, got[1].Enabled)
		})
	}
}

func TestPaymentGateways_EnabledInOrder(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":"tabby_installments","title":"Tabby","order":"3","enabled":true},
			{"id":"bacs","title":"Bank","order":1,"enabled":false},
			{"id":"cod","title":"Cash","order":1,"enabled":true},
			{"id":"myfatoorah_v2","title":"Card","order":2,"enabled":"yes"}
		]`))
	}))

	got, err := c.PaymentGateways(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, g := range got {
		ids = append(ids, g.ID)
	}
	assert.Equal(t, []string{"cod", "myfatoorah_v2", "tabby_installments"}, ids)
}

func TestCoupons_SkipsExpired(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"code":"old","discount_type":"percent","amount":"10","date_expires_gmt":"2020-01-01T00:00:00"},
			{"code":"live","discount_type":"fixed_cart","amount":"50","date_expires_gmt":null},
			{"code":"later","discount_type":"percent","amount":"5","date_expires_gmt":"2099-01-01T00:00:00"}
		]`))
	}))

	got, err := c.Coupons(context.Background(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "live", got[0].Code)
	assert.Equal(t, "later", got[1].Code)
}

func TestOrders_CreateGetUpdate(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/wp-json/wc/v3/orders":
			var p domain.OrderPayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
			assert.Equal(t, "cod", p.PaymentMethod)
			_, _ = w.Write([]byte(`{"id":55,"order_key":"wc_order_abc","status":"processing","total":"450.00","currency":"AED","payment_method":"cod"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/wp-json/wc/v3/orders/55":
			_, _ = w.Write([]byte(`{"id":55,"order_key":"wc_order_abc","status":"processing","total":"450.00","line_items":[{"product_id":1,"quantity":2,"subtotal":"450.00","total":"450.00"}]}`))
		case r.Method == http.MethodPut && r.URL.Path == "/wp-json/wc/v3/orders/55":
			var upd domain.OrderUpdate
			require.NoError(t, json.NewDecoder(r.Body).Decode(&upd))
			assert.Equal(t, "processing", upd.Status)
			assert.True(t, upd.SetPaid)
			_, _ = w.Write([]byte(`{"id":55,"status":"processing","total":"450.00"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()

	o, err := c.CreateOrder(ctx, domain.OrderPayload{PaymentMethod: "cod"})
	require.NoError(t, err)
	assert.Equal(t, 55, o.ID)
	assert.Equal(t, 450.0, o.Total)

	o, err = c.GetOrder(ctx, 55)
	require.NoError(t, err)
	require.Len(t, o.LineItems, 1)
	assert.Equal(t, 2, o.LineItems[0].Quantity)

	_, err = c.UpdateOrder(ctx, 55, domain.OrderUpdate{Status: domain.OrderProcessing, SetPaid: true})
	require.NoError(t, err)

	_, err = c.GetOrder(ctx, 56)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCustomers(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if r.URL.Query().Get("email") == "known@example.com" {
				_, _ = w.Write([]byte(`[{"id":3,"email":"Known@Example.com"}]`))
				return
			}
			_, _ = w.Write([]byte(`[]`))
		case http.MethodPost:
			var in domain.NewCustomer
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, "new@example.com", in.Email)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"19"}`))
		}
	}))
	ctx := context.Background()

	ok, err := c.CustomerExists(ctx, "known@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.CustomerExists(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	id, err := c.CreateCustomer(ctx, domain.NewCustomer{Email: "new@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 19, id)
}

func TestParseItemData_Tolerance(t *testing.T) {
	assert.Equal(t, domain.CartItemData{}, parseItemData(json.RawMessage(`[]`)))
	assert.Equal(t, domain.CartItemData{}, parseItemData(nil))
	assert.Equal(t, domain.CartItemData{}, parseItemData(json.RawMessage(`{"bundle_items": 5}`)))

	d := parseItemData(json.RawMessage(`{"bundle_items":[{"product_id":"2","name":"A","price":"12.5","quantity":"1"}],"pricing_mode":" FIXED ","fixed_price":199}`))
	require.Len(t, d.BundleItems, 1)
	assert.Equal(t, 2, d.BundleItems[0].ProductID)
	assert.Equal(t, 12.5, d.BundleItems[0].Price)
	assert.Equal(t, domain.PricingFixed, d.PricingMode)
	require.NotNil(t, d.FixedPrice)
	assert.Equal(t, 199.0, *d.FixedPrice)
}
