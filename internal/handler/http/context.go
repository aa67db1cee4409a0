package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dunglas/httpsfv"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/woocommerce"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/middleware"
)

// ContextHeader carries the shopper's cart key, currency and locale as an
// RFC 8941 dictionary, e.g. `cart="9c1f...", currency=AED, locale=ar`.
const ContextHeader = "Storefront-Context"

// CartKeyHeader echoes the cart key so guests can persist a freshly issued one.
const CartKeyHeader = "Cart-Key"

// cartRef resolves the storefront context of r. Header members win over the
// cart_key, currency and locale query parameters. A malformed header is
// ignored rather than rejected.
func cartRef(r *http.Request) domain.CartRef {
	q := r.URL.Query()
	ref := domain.CartRef{
		Key:      q.Get("cart_key"),
		Currency: q.Get("currency"),
		Locale:   q.Get("locale"),
	}
	if k := r.Header.Get(CartKeyHeader); k != "" {
		ref.Key = k
	}

	if values := r.Header.Values(ContextHeader); len(values) > 0 {
		if dict, err := httpsfv.UnmarshalDictionary(values); err == nil {
			if v := dictString(dict, "cart"); v != "" {
				ref.Key = v
			}
			if v := dictString(dict, "currency"); v != "" {
				ref.Currency = v
			}
			if v := dictString(dict, "locale"); v != "" {
				ref.Locale = v
			}
		}
	}

	ref.Key = strings.TrimSpace(ref.Key)
	ref.Currency = strings.ToUpper(strings.TrimSpace(ref.Currency))
	ref.Locale = strings.TrimSpace(ref.Locale)
	return ref
}

func dictString(dict *httpsfv.Dictionary, key string) string {
	member, ok := dict.Get(key)
	if !ok {
		return ""
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return ""
	}
	switch v := item.Value.(type) {
	case string:
		return v
	case httpsfv.Token:
		return string(v)
	}
	return ""
}

// customerID is the WooCommerce customer id of a signed-in shopper, or 0.
func customerID(r *http.Request) int {
	id, err := strconv.Atoi(middleware.UserIDFromContext(r.Context()))
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// writeCartKey exposes the cart key on both the storefront and CoCart headers.
func writeCartKey(w http.ResponseWriter, key string) {
	if key == "" {
		return
	}
	w.Header().Set(CartKeyHeader, key)
	w.Header().Set(woocommerce.CartKeyHeader, key)
}
