// Package gateway hands orders to hosted payment pages and verifies the
// outcome. Cash on delivery never reaches a gateway.
package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	apperrors "github.com/muhsiltomsher-cloud/asl-storefront/pkg/errors"
)

// CallbackURLs are where the hosted page sends the shopper back to.
type CallbackURLs struct {
	Success string
	Failure string
	Cancel  string
}

// NewCallbackURLs builds the storefront return routes for an order. The
// gateway name and order identity travel in the query so the return page can
// call the verify endpoint.
func NewCallbackURLs(storefrontURL string, gw domain.Gateway, order *domain.Order) CallbackURLs {
	base := strings.TrimRight(storefrontURL, "/")
	q := url.Values{
		"gateway":   {string(gw)},
		"order_id":  {strconv.Itoa(order.ID)},
		"order_key": {order.OrderKey},
	}
	enc := q.Encode()
	return CallbackURLs{
		Success: base + "/checkout/payment-return?" + enc,
		Failure: base + "/checkout/payment-failed?" + enc,
		Cancel:  base + "/checkout/payment-failed?" + enc + "&cancelled=1",
	}
}

// InitiateRequest is what a gateway needs to open a hosted payment page.
type InitiateRequest struct {
	Order  *domain.Order
	Locale string
	URLs   CallbackURLs
}

// Initiation is a started gateway session.
type Initiation struct {
	ProviderRef string
	RedirectURL string
}

// Verification is the gateway's verdict on a payment. OrderReference, Amount
// and Currency are what the provider holds for the payment, not what the
// storefront sent.
type Verification struct {
	Paid           bool
	Status         string
	TransactionID  string
	Reason         string
	OrderReference string
	Amount         float64
	Currency       string
}

// CheckOrder reports an error when the verified payment was not made for
// order: the provider's order reference must be the order id and the amount
// and currency must match the order total.
func (v *Verification) CheckOrder(order *domain.Order) error {
	if v.OrderReference != strconv.Itoa(order.ID) {
		return apperrors.PaymentFailed(fmt.Sprintf("payment belongs to order %q, not %d", v.OrderReference, order.ID))
	}
	if v.Amount <= 0 || domain.TotalsDiffer(v.Amount, order.Total) {
		return apperrors.PaymentFailed(fmt.Sprintf("payment amount %s does not match order total %s",
			amountString(v.Amount, order.Currency), amountString(order.Total, order.Currency)))
	}
	if v.Currency != "" && !strings.EqualFold(v.Currency, order.Currency) {
		return apperrors.PaymentFailed(fmt.Sprintf("payment currency %s does not match order currency %s", v.Currency, order.Currency))
	}
	return nil
}

// Gateway is a hosted payment provider.
type Gateway interface {
	Name() domain.Gateway
	Initiate(ctx context.Context, req InitiateRequest) (*Initiation, error)
	Verify(ctx context.Context, providerRef string) (*Verification, error)
}

// Registry resolves a payment method to its gateway.
type Registry struct {
	gateways map[domain.Gateway]Gateway
}

// NewRegistry indexes gateways by name.
func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[domain.Gateway]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Name()] = g
	}
	return r
}

// Get returns the gateway registered under name.
func (r *Registry) Get(name domain.Gateway) (Gateway, error) {
	g, ok := r.gateways[name]
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("payment gateway %q is not configured", name))
	}
	return g, nil
}

// ForMethod maps a WooCommerce payment method to its gateway. Direct methods
// return ok=false.
func (r *Registry) ForMethod(paymentMethod string) (Gateway, bool, error) {
	name := domain.GatewayFor(paymentMethod)
	if name == domain.GatewayDirect {
		return nil, false, nil
	}
	g, err := r.Get(name)
	if err != nil {
		return nil, false, err
	}
	return g, true, nil
}

func customerName(a domain.Address) string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

func amountString(v float64, currency string) string {
	return strconv.FormatFloat(v, 'f', decimalsFor(currency), 64)
}

// decimalsFor is the ISO 4217 minor unit of the Gulf currencies the store
// sells in; everything else uses two.
func decimalsFor(currency string) int {
	switch strings.ToUpper(currency) {
	case "KWD", "BHD", "OMR":
		return 3
	default:
		return 2
	}
}
