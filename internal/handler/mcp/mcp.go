// Package mcp exposes read-only storefront tools to shopping assistants over
// the Model Context Protocol streamable HTTP transport.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/service"
	apperrors "github.com/muhsiltomsher-cloud/asl-storefront/pkg/errors"
)

// Carts reads carts.
type Carts interface {
	Get(ctx context.Context, ref domain.CartRef) (*domain.CartView, error)
}

// Gifts reports free-gift progress.
type Gifts interface {
	Progress(ctx context.Context, ref domain.CartRef) (domain.GiftProgress, error)
}

// Bundles lists bundle slot candidates.
type Bundles interface {
	Candidates(ctx context.Context, productID int, currency, locale string) (*service.Candidates, error)
}

// CartInput identifies a shopper's cart.
type CartInput struct {
	CartKey  string `json:"cart_key" jsonschema:"the shopper's cart key"`
	Currency string `json:"currency,omitempty" jsonschema:"ISO 4217 display currency, e.g. AED"`
	Locale   string `json:"locale,omitempty" jsonschema:"storefront locale, en or ar"`
}

func (in CartInput) ref() domain.CartRef {
	return domain.CartRef{
		Key:      strings.TrimSpace(in.CartKey),
		Currency: strings.ToUpper(strings.TrimSpace(in.Currency)),
		Locale:   strings.TrimSpace(in.Locale),
	}
}

// CandidatesInput selects a bundle product.
type CandidatesInput struct {
	ProductID int    `json:"product_id" jsonschema:"WooCommerce id of the bundle product"`
	Currency  string `json:"currency,omitempty" jsonschema:"ISO 4217 display currency"`
	Locale    string `json:"locale,omitempty" jsonschema:"storefront locale, en or ar"`
}

// Handler serves the storefront MCP tools.
type Handler struct {
	carts   Carts
	gifts   Gifts
	bundles Bundles
	version string
	logger  *slog.Logger
}

// New creates an MCP handler.
func New(carts Carts, gifts Gifts, bundles Bundles, version string, logger *slog.Logger) *Handler {
	if version == "" {
		version = "dev"
	}
	return &Handler{carts: carts, gifts: gifts, bundles: bundles, version: version, logger: logger}
}

// NewServer creates an MCP server with the storefront tools registered.
func (h *Handler) NewServer() *sdk.Server {
	server := sdk.NewServer(
		&sdk.Implementation{Name: "asl-storefront", Version: h.version},
		&sdk.ServerOptions{
			Instructions: "Storefront tools for carts, free-gift progress and build-your-own-set bundles. " +
				"Amounts are in minor units of the cart currency.",
		},
	)

	sdk.AddTool(server, &sdk.Tool{
		Name:        "get_cart",
		Description: "Get a cart with bundle-adjusted totals and coupon discounts.",
	}, h.getCart)

	sdk.AddTool(server, &sdk.Tool{
		Name:        "gift_progress",
		Description: "Report how much more the shopper must spend to unlock the next free gift.",
	}, h.giftProgress)

	sdk.AddTool(server, &sdk.Tool{
		Name:        "bundle_candidates",
		Description: "List the products a shopper may pick for the slots of a bundle product.",
	}, h.bundleCandidates)

	return server
}

// NewHTTPHandler returns the streamable HTTP handler. Mount it at /mcp.
func (h *Handler) NewHTTPHandler() http.Handler {
	server := h.NewServer()
	return sdk.NewStreamableHTTPHandler(func(*http.Request) *sdk.Server { return server }, nil)
}

func (h *Handler) getCart(ctx context.Context, _ *sdk.CallToolRequest, in CartInput) (*sdk.CallToolResult, *domain.CartView, error) {
	ref := in.ref()
	if ref.Key == "" {
		return nil, nil, errors.New("cart_key is required")
	}
	view, err := h.carts.Get(ctx, ref)
	if err != nil {
		return nil, nil, h.toolError(ctx, "get_cart", err)
	}
	return nil, view, nil
}

func (h *Handler) giftProgress(ctx context.Context, _ *sdk.CallToolRequest, in CartInput) (*sdk.CallToolResult, domain.GiftProgress, error) {
	ref := in.ref()
	if ref.Key == "" {
		return nil, domain.GiftProgress{}, errors.New("cart_key is required")
	}
	p, err := h.gifts.Progress(ctx, ref)
	if err != nil {
		return nil, domain.GiftProgress{}, h.toolError(ctx, "gift_progress", err)
	}
	return nil, p, nil
}

func (h *Handler) bundleCandidates(ctx context.Context, _ *sdk.CallToolRequest, in CandidatesInput) (*sdk.CallToolResult, *service.Candidates, error) {
	if in.ProductID <= 0 {
		return nil, nil, errors.New("product_id must be positive")
	}
	c, err := h.bundles.Candidates(ctx, in.ProductID, strings.ToUpper(in.Currency), in.Locale)
	if err != nil {
		return nil, nil, h.toolError(ctx, "bundle_candidates", err)
	}
	return nil, c, nil
}

// toolError keeps client-facing messages for expected failures and hides
// internal ones.
func (h *Handler) toolError(ctx context.Context, tool string, err error) error {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr) && appErr.Status < http.StatusInternalServerError:
		return errors.New(appErr.Message)
	case errors.Is(err, apperrors.ErrNotFound):
		return errors.New("not found")
	case errors.Is(err, apperrors.ErrInvalidInput):
		return err
	}
	h.logger.ErrorContext(ctx, "mcp tool failed", slog.String("tool", tool), slog.String("error", err.Error()))
	return errors.New("internal error")
}
