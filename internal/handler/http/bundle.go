package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/service"
	apperrors "github.com/muhsiltomsher-cloud/asl-storefront/pkg/errors"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/httputil"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/pagination"
)

// BundleAPI is the bundle behavior the HTTP layer exposes.
type BundleAPI interface {
	Candidates(ctx context.Context, productID int, currency, locale string) (*service.Candidates, error)
	Compose(ctx context.Context, ref domain.CartRef, req service.ComposeRequest) (*domain.CartView, error)
	GetConfig(ctx context.Context, productID int) (*domain.BundleConfiguration, error)
	ListConfigs(ctx context.Context, page pagination.Params) ([]domain.BundleConfiguration, int, error)
	SaveConfig(ctx context.Context, cfg *domain.BundleConfiguration) (*domain.BundleConfiguration, error)
	DeleteConfig(ctx context.Context, productID int) error
	AddItem(ctx context.Context, productID int) (*domain.BundleConfiguration, error)
	DuplicateItem(ctx context.Context, productID, index int) (*domain.BundleConfiguration, error)
	RemoveItem(ctx context.Context, productID, index int) (*domain.BundleConfiguration, error)
	UpdateItem(ctx context.Context, productID, index int, item domain.BundleItem) (*domain.BundleConfiguration, error)
}

// BundleHandler serves the slot picker and the bundle admin screens.
type BundleHandler struct {
	service BundleAPI
	logger  *slog.Logger
}

// NewBundleHandler creates a new bundle HTTP handler.
func NewBundleHandler(svc BundleAPI, logger *slog.Logger) *BundleHandler {
	return &BundleHandler{service: svc, logger: logger}
}

type filterOptionsRequest struct {
	Options  []domain.Option `json:"options"`
	Query    string          `json:"query"`
	Selected []int           `json:"selected"`
}

// Candidates handles GET /api/bundles/{productID}/candidates
func (h *BundleHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseIntParam(w, "productID", chi.URLParam(r, "productID"))
	if !ok {
		return
	}
	ref := cartRef(r)
	c, err := h.service.Candidates(r.Context(), id, ref.Currency, ref.Locale)
	if err != nil {
		writeErr(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, c)
}

// Compose handles POST /api/bundles/{productID}/compose
func (h *BundleHandler) Compose(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseIntParam(w, "productID", chi.URLParam(r, "productID"))
	if !ok {
		return
	}
	var req service.ComposeRequest
	req.ProductID = id
	if !decode(w, r, &req) {
		return
	}
	if req.ProductID != id {
		writeErr(w, r, apperrors.InvalidInput("product_id does not match the path"), h.logger)
		return
	}
	view, err := h.service.Compose(r.Context(), cartRef(r), req)
	if err != nil {
		writeErr(w, r, err, h.logger)
		return
	}
	writeCartKey(w, view.Key)
	httputil.WriteData(w, http.StatusOK, view)
}

// ListConfigs handles GET /api/admin/bundles
func (h *BundleHandler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	page := pagination.FromRequest(r)
	cfgs, total, err := h.service.ListConfigs(r.Context(), page)
	if err != nil {
		writeErr(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(cfgs, total, page.Page, page.PerPage))
}

// GetConfig handles GET /api/admin/bundles/{productID}
func (h *BundleHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseIntParam(w, "productID", chi.URLParam(r, "productID"))
	if !ok {
		return
	}
	h.writeConfig(w, r)(h.service.GetConfig(r.Context(), id))
}

// SaveConfig handles PUT /api/admin/bundles/{productID}
func (h *BundleHandler) SaveConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseIntParam(w, "productID", chi.URLParam(r, "productID"))
	if !ok {
		return
	}
	var cfg domain.BundleConfiguration
	if !decode(w, r, &cfg) {
		return
	}
	cfg.ProductID = id
	h.writeConfig(w, r)(h.service.SaveConfig(r.Context(), &cfg))
}

// DeleteConfig handles DELETE /api/admin/bundles/{productID}
func (h *BundleHandler) DeleteConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseIntParam(w, "productID", chi.URLParam(r, "productID"))
	if !ok {
		return
	}
	if err := h.service.DeleteConfig(r.Context(), id); err != nil {
		writeErr(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddItem handles POST /api/admin/bundles/{productID}/items
func (h *BundleHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseIntParam(w, "productID", chi.URLParam(r, "productID"))
	if !ok {
		return
	}
	h.writeConfig(w, r)(h.service.AddItem(r.Context(), id))
}

// DuplicateItem handles POST /api/admin/bundles/{productID}/items/{index}/duplicate
func (h *BundleHandler) DuplicateItem(w http.ResponseWriter, r *http.Request) {
	id, index, ok := itemParams(w, r)
	if !ok {
		return
	}
	h.writeConfig(w, r)(h.service.DuplicateItem(r.Context(), id, index))
}

// UpdateItem handles PUT /api/admin/bundles/{productID}/items/{index}
func (h *BundleHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, index, ok := itemParams(w, r)
	if !ok {
		return
	}
	var item domain.BundleItem
	if !decode(w, r, &item) {
		return
	}
	h.writeConfig(w, r)(h.service.UpdateItem(r.Context(), id, index, item))
}

// RemoveItem handles DELETE /api/admin/bundles/{productID}/items/{index}
func (h *BundleHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, index, ok := itemParams(w, r)
	if !ok {
		return
	}
	h.writeConfig(w, r)(h.service.RemoveItem(r.Context(), id, index))
}

// FilterOptions handles POST /api/admin/bundles/options/filter
func (h *BundleHandler) FilterOptions(w http.ResponseWriter, r *http.Request) {
	var req filterOptionsRequest
	if !decode(w, r, &req) {
		return
	}
	httputil.WriteData(w, http.StatusOK, domain.FilterOptions(req.Options, req.Query, req.Selected))
}

func (h *BundleHandler) writeConfig(w http.ResponseWriter, r *http.Request) func(*domain.BundleConfiguration, error) {
	return func(cfg *domain.BundleConfiguration, err error) {
		if err != nil {
			writeErr(w, r, err, h.logger)
			return
		}
		httputil.WriteData(w, http.StatusOK, cfg)
	}
}

// itemParams reads the product id and the zero-based slot index.
func itemParams(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	id, ok := httputil.ParseIntParam(w, "productID", chi.URLParam(r, "productID"))
	if !ok {
		return 0, 0, false
	}
	raw := chi.URLParam(r, "index")
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "invalid index: " + raw},
		})
		return 0, 0, false
	}
	return id, index, true
}
