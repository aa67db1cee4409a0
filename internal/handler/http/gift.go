package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/service"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/httputil"
)

// GiftAPI is the free-gift behavior the HTTP layer exposes.
type GiftAPI interface {
	Rules(ctx context.Context, currency, locale string) ([]domain.FreeGiftRule, error)
	InvalidateRules(ctx context.Context) error
	Progress(ctx context.Context, ref domain.CartRef) (domain.GiftProgress, error)
	Reconcile(ctx context.Context, ref domain.CartRef) (*service.ReconcileResult, error)
}

// GiftHandler serves free-gift rules, progress and on-demand reconciliation.
type GiftHandler struct {
	service GiftAPI
	logger  *slog.Logger
}

// NewGiftHandler creates a new free-gift HTTP handler.
func NewGiftHandler(svc GiftAPI, logger *slog.Logger) *GiftHandler {
	return &GiftHandler{service: svc, logger: logger}
}

// Rules handles GET /api/free-gifts?currency=&locale=
func (h *GiftHandler) Rules(w http.ResponseWriter, r *http.Request) {
	ref := cartRef(r)
	rules, err := h.service.Rules(r.Context(), ref.Currency, ref.Locale)
	if err != nil {
		writeErr(w, r, err, h.logger)
		return
	}
	if rules == nil {
		rules = []domain.FreeGiftRule{}
	}
	httputil.WriteData(w, http.StatusOK, rules)
}

// Progress handles GET /api/free-gifts/progress
func (h *GiftHandler) Progress(w http.ResponseWriter, r *http.Request) {
	ref := cartRef(r)
	if ref.Key == "" {
		httputil.WriteData(w, http.StatusOK, domain.GiftProgress{})
		return
	}
	p, err := h.service.Progress(r.Context(), ref)
	if err != nil {
		writeErr(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, p)
}

// Reconcile handles POST /api/free-gifts/reconcile
func (h *GiftHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Reconcile(r.Context(), cartRef(r))
	if err != nil {
		writeErr(w, r, err, h.logger)
		return
	}
	if res.Cart != nil {
		writeCartKey(w, res.Cart.Key)
	}
	httputil.WriteData(w, http.StatusOK, res)
}

// InvalidateRules handles POST /api/admin/free-gifts/invalidate
func (h *GiftHandler) InvalidateRules(w http.ResponseWriter, r *http.Request) {
	if err := h.service.InvalidateRules(r.Context()); err != nil {
		writeErr(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
