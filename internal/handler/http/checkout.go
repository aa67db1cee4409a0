package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/service"
	apperrors "github.com/muhsiltomsher-cloud/asl-storefront/pkg/errors"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/httputil"
)

// CheckoutAPI is the checkout behavior the HTTP layer exposes.
type CheckoutAPI interface {
	PlaceOrder(ctx context.Context, ref domain.CartRef, customerID int, req domain.CheckoutRequest) (*domain.PaymentResult, error)
	GetOrder(ctx context.Context, id int, key string) (*domain.Order, error)
	UpdateOrder(ctx context.Context, in service.OrderChange) (*domain.Order, error)
	VerifyPayment(ctx context.Context, ref domain.CartRef, req service.VerifyRequest) (*domain.VerifyResult, error)
	RetryPayment(ctx context.Context, ref domain.CartRef, req service.RetryRequest) (*domain.PaymentResult, error)
	CheckEmail(ctx context.Context, email string) (bool, error)
	PaymentGateways(ctx context.Context) ([]domain.PaymentGateway, error)
}

// CheckoutHandler serves orders, payments and checkout lookups.
type CheckoutHandler struct {
	service CheckoutAPI
	logger  *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(svc CheckoutAPI, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{service: svc, logger: logger}
}

// PlaceOrder handles POST /api/orders
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.service.PlaceOrder(r.Context(), cartRef(r), customerID(r), req)
	if err != nil {
		writeErr(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, res)
}

// GetOrder handles GET /api/orders?orderId=&order_key=
func (h *CheckoutHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw := q.Get("orderId")
	if raw == "" {
		raw = q.Get("order_id")
	}
	id, ok := httputil.ParseIntParam(w, "orderId", raw)
	if !ok {
		return
	}
	key := q.Get("order_key")
	if key == "" {
		writeErr(w, r, apperrors.InvalidInput("order_key is required"), h.logger)
		return
	}
	order, err := h.service.GetOrder(r.Context(), id, key)
	if err != nil {
		writeErr(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, order)
}

// UpdateOrder handles PUT /api/orders
func (h *CheckoutHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req service.OrderChange
	if !decode(w, r, &req) {
		return
	}
	order, err := h.service.UpdateOrder(r.Context(), req)
	if err != nil {
		writeErr(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, order)
}

// VerifyPayment handles POST /api/payments/verify
func (h *CheckoutHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req service.VerifyRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.service.VerifyPayment(r.Context(), cartRef(r), req)
	if err != nil {
		writeErr(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, res)
}

// RetryPayment handles POST /api/payments/retry
func (h *CheckoutHandler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	var req service.RetryRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.service.RetryPayment(r.Context(), cartRef(r), req)
	if err != nil {
		writeErr(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, res)
}

// CheckEmail handles GET /api/customers/email-check?email=
func (h *CheckoutHandler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	exists, err := h.service.CheckEmail(r.Context(), email)
	if err != nil {
		writeErr(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]any{"email": email, "exists": exists})
}

// PaymentGateways handles GET /api/payment-gateways
func (h *CheckoutHandler) PaymentGateways(w http.ResponseWriter, r *http.Request) {
	gws, err := h.service.PaymentGateways(r.Context())
	if err != nil {
		writeErr(w, r, err, h.logger)
		return
	}
	if gws == nil {
		gws = []domain.PaymentGateway{}
	}
	httputil.WriteData(w, http.StatusOK, gws)
}
