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

// CartAPI is the cart behavior the HTTP layer exposes.
type CartAPI interface {
	Get(ctx context.Context, ref domain.CartRef) (*domain.CartView, error)
	Add(ctx context.Context, ref domain.CartRef, in service.AddItemInput) (*domain.CartView, error)
	Update(ctx context.Context, ref domain.CartRef, itemKey string, quantity int) (*domain.CartView, error)
	Remove(ctx context.Context, ref domain.CartRef, itemKey string) (*domain.CartView, error)
	Clear(ctx context.Context, ref domain.CartRef) (*domain.CartView, error)
	ApplyCoupon(ctx context.Context, ref domain.CartRef, code string) (*domain.CartView, error)
	RemoveCoupon(ctx context.Context, ref domain.CartRef, code string) (*domain.CartView, error)
	ShippingRates(ctx context.Context, ref domain.CartRef) ([]domain.ShippingPackage, error)
	SelectShipping(ctx context.Context, ref domain.CartRef, rateID string) (*domain.CartView, error)
	Coupons(ctx context.Context) ([]domain.PublicCoupon, error)
}

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	service CartAPI
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(svc CartAPI, logger *slog.Logger) *CartHandler {
	return &CartHandler{service: svc, logger: logger}
}

// cartActionRequest is the union body of POST /api/cart. Which fields are
// read depends on the action query parameter.
type cartActionRequest struct {
	ProductID int            `json:"id"`
	Quantity  int            `json:"quantity"`
	ItemData  map[string]any `json:"item_data,omitempty"`
	ItemKey   string         `json:"item_key"`
	Code      string         `json:"code"`
}

type shippingRequest struct {
	RateID string `json:"rate_id" validate:"required"`
}

// GetCart handles GET /api/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ref := cartRef(r)
	if ref.Key == "" {
		httputil.WriteData(w, http.StatusOK, domain.NewCartView(&domain.Cart{Currency: domain.Currency{Code: ref.Currency}}))
		return
	}
	view, err := h.service.Get(r.Context(), ref)
	if err != nil {
		writeErr(w, r, err, h.logger)
		return
	}
	h.writeCart(w, view)
}

// CartAction handles POST /api/cart?action=...
func (h *CartHandler) CartAction(w http.ResponseWriter, r *http.Request) {
	ref := cartRef(r)
	action := r.URL.Query().Get("action")

	var req cartActionRequest
	if action != service.ActionClear && r.ContentLength != 0 {
		if !decode(w, r, &req) {
			return
		}
	}

	var (
		view *domain.CartView
		err  error
	)
	ctx := r.Context()
	switch action {
	case service.ActionAdd:
		view, err = h.service.Add(ctx, ref, service.AddItemInput{ProductID: req.ProductID, Quantity: req.Quantity, ItemData: req.ItemData})
	case service.ActionUpdate:
		view, err = h.service.Update(ctx, ref, req.ItemKey, req.Quantity)
	case service.ActionRemove:
		view, err = h.service.Remove(ctx, ref, req.ItemKey)
	case service.ActionClear:
		view, err = h.service.Clear(ctx, ref)
	case "apply-coupon", service.ActionApplyCoupon:
		view, err = h.service.ApplyCoupon(ctx, ref, req.Code)
	case "remove-coupon", service.ActionRemoveCoupon:
		view, err = h.service.RemoveCoupon(ctx, ref, req.Code)
	default:
		err = apperrors.InvalidInput("unknown cart action: " + action)
	}
	if err != nil {
		writeErr(w, r, err, h.logger)
		return
	}
	h.writeCart(w, view)
}

// Coupons handles GET /api/coupons
func (h *CartHandler) Coupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.service.Coupons(r.Context())
	if err != nil {
		writeErr(w, r, err, h.logger)
		return
	}
	if coupons == nil {
		coupons = []domain.PublicCoupon{}
	}
	httputil.WriteData(w, http.StatusOK, coupons)
}

// ShippingRates handles GET /api/shipping
func (h *CartHandler) ShippingRates(w http.ResponseWriter, r *http.Request) {
	pkgs, err := h.service.ShippingRates(r.Context(), cartRef(r))
	if err != nil {
		writeErr(w, r, err, h.logger)
		return
	}
	if pkgs == nil {
		pkgs = []domain.ShippingPackage{}
	}
	httputil.WriteData(w, http.StatusOK, pkgs)
}

// SelectShipping handles POST /api/shipping
func (h *CartHandler) SelectShipping(w http.ResponseWriter, r *http.Request) {
	var req shippingRequest
	if !decode(w, r, &req) {
		return
	}
	view, err := h.service.SelectShipping(r.Context(), cartRef(r), req.RateID)
	if err != nil {
		writeErr(w, r, err, h.logger)
		return
	}
	h.writeCart(w, view)
}

func (h *CartHandler) writeCart(w http.ResponseWriter, view *domain.CartView) {
	writeCartKey(w, view.Key)
	httputil.WriteData(w, http.StatusOK, view)
}
