package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/repository"
	apperrors "github.com/muhsiltomsher-cloud/asl-storefront/pkg/errors"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/pagination"
)

// GiftRules returns free-gift rules for a currency and locale.
type GiftRules interface {
	Rules(ctx context.Context, currency, locale string) ([]domain.FreeGiftRule, error)
}

// BundleCart adds composed bundles to the cart.
type BundleCart interface {
	AddBundle(ctx context.Context, ref domain.CartRef, in AddItemInput) (*domain.CartView, error)
}

// Candidates is what the slot picker of a bundle product offers.
type Candidates struct {
	ProductID      int                    `json:"product_id"`
	Title          string                 `json:"title"`
	PricingMode    domain.PricingMode     `json:"pricing_mode"`
	BoxPrice       *float64               `json:"box_price,omitempty"`
	FixedPrice     *float64               `json:"fixed_price,omitempty"`
	UniqueProducts []int                  `json:"unique_products"`
	Options        []domain.ProductOption `json:"options"`
	Buckets        []domain.Bucket        `json:"buckets"`

	rules      domain.BundleRules
	configured bool
}

// MarshalJSON encodes empty lists as [] so schema-checked clients accept them.
func (c Candidates) MarshalJSON() ([]byte, error) {
	type plain Candidates
	out := plain(c)
	if out.UniqueProducts == nil {
		out.UniqueProducts = []int{}
	}
	if out.Options == nil {
		out.Options = []domain.ProductOption{}
	}
	if out.Buckets == nil {
		out.Buckets = []domain.Bucket{}
	}
	return json.Marshal(out)
}

// ComposeRequest is a filled slot picker. Slots holds a product id per slot.
type ComposeRequest struct {
	ProductID int                   `json:"product_id" validate:"required,gt=0"`
	Quantity  int                   `json:"quantity" validate:"omitempty,gte=1,lte=100"`
	Slots     [domain.SlotCount]*int `json:"slots"`
}

// BundleService serves build-your-own-set bundles: candidate products for the
// slots, composing a bundle into the cart, and admin configuration.
type BundleService struct {
	repo    repository.BundleRepository
	catalog CatalogSource
	gifts   GiftRules
	carts   BundleCart
	logger  *slog.Logger
	now     func() time.Time
	group   singleflight.Group
}

// NewBundleService creates a new bundle service.
func NewBundleService(repo repository.BundleRepository, catalog CatalogSource, gifts GiftRules, carts BundleCart, logger *slog.Logger) *BundleService {
	return &BundleService{
		repo:    repo,
		catalog: catalog,
		gifts:   gifts,
		carts:   carts,
		logger:  logger,
		now:     time.Now,
	}
}

// config returns the saved configuration, or nil when the product has none.
func (s *BundleService) config(ctx context.Context, productID int) (*domain.BundleConfiguration, error) {
	cfg, err := s.repo.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get bundle config: %w", err)
	}
	if !cfg.IsEnabled {
		return nil, nil
	}
	return cfg, nil
}

// Candidates lists the products eligible for the slots of productID. Without
// an enabled configuration every product other than the bundle itself and
// the gift products is eligible.
func (s *BundleService) Candidates(ctx context.Context, productID int, currency, locale string) (*Candidates, error) {
	if productID <= 0 {
		return nil, apperrors.InvalidInput("product id is required")
	}
	product, err := s.catalog.Product(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get bundle product: %w", err)
	}
	cfg, err := s.config(ctx, productID)
	if err != nil {
		return nil, err
	}

	v, err, _ := s.group.Do("catalog", func() (any, error) {
		return s.catalog.Catalog(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	products := v.([]domain.Product)

	giftIDs := domain.NewIDSet()
	if rules, err := s.gifts.Rules(ctx, currency, locale); err != nil {
		s.logger.WarnContext(ctx, "gift products unknown for bundle candidates",
			slog.Int("product_id", productID),
			slog.String("error", err.Error()),
		)
	} else {
		giftIDs = domain.GiftProductIDs(rules)
	}

	rules := domain.NewBundleRules(cfg)
	options := domain.EligibleProducts(products, rules, productID, giftIDs)
	out := &Candidates{
		ProductID:      productID,
		Title:          product.Name,
		PricingMode:    domain.PricingSum,
		UniqueProducts: []int{},
		Options:        options,
		Buckets:        domain.AvailableBuckets(options),
		rules:          rules,
	}
	if cfg != nil {
		if cfg.Title != "" {
			out.Title = cfg.Title
		}
		if cfg.PricingMode != "" {
			out.PricingMode = cfg.PricingMode
			out.configured = true
		}
		out.BoxPrice = cfg.BoxPrice
		out.FixedPrice = cfg.FixedPrice
		if cfg.UniqueProducts != nil {
			out.UniqueProducts = cfg.UniqueProducts
		}
	}
	return out, nil
}

// Compose validates the slot selection and adds the bundle to the cart. Only
// a configuration with an explicit pricing mode puts pricing on the line;
// otherwise the line carries its slots alone and the cart adds their prices
// on top of the base product.
func (s *BundleService) Compose(ctx context.Context, ref domain.CartRef, req ComposeRequest) (*domain.CartView, error) {
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	cands, err := s.Candidates(ctx, req.ProductID, ref.Currency, ref.Locale)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]domain.ProductOption, len(cands.Options))
	for _, o := range cands.Options {
		byID[o.ID] = o
	}

	var sel domain.Selections
	for slot, pid := range req.Slots {
		if pid == nil {
			continue
		}
		opt, ok := byID[*pid]
		if !ok {
			return nil, apperrors.InvalidInput(fmt.Sprintf("product %d is not eligible for slot %d", *pid, slot+1))
		}
		if err := sel.Select(slot, opt, cands.rules); err != nil {
			return nil, apperrors.InvalidInput(fmt.Sprintf("slot %d: %s", slot+1, err.Error()))
		}
	}
	if !sel.IsValid() {
		return nil, apperrors.InvalidInput(domain.ErrBundleIncomplete.Error())
	}

	data := map[string]any{"bundle_items": sel.BundleItems()}
	if cands.configured {
		data["pricing_mode"] = string(cands.PricingMode)
		total := sel.Total()
		if cands.BoxPrice != nil {
			data["box_price"] = *cands.BoxPrice
			total += *cands.BoxPrice
		}
		if cands.PricingMode == domain.PricingFixed && cands.FixedPrice != nil {
			data["fixed_price"] = *cands.FixedPrice
			total = *cands.FixedPrice
		}
		data["bundle_total"] = total
	}

	return s.carts.AddBundle(ctx, ref, AddItemInput{ProductID: req.ProductID, Quantity: req.Quantity, ItemData: data})
}

// PricingFor returns the enabled configuration of a bundle product, or nil.
func (s *BundleService) PricingFor(ctx context.Context, productID int) (*domain.BundleConfiguration, error) {
	return s.config(ctx, productID)
}

// GetConfig returns the configuration of productID, or a fresh unsaved one.
func (s *BundleService) GetConfig(ctx context.Context, productID int) (*domain.BundleConfiguration, error) {
	cfg, err := s.repo.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.NewBundleConfiguration(productID, s.now().UTC()), nil
		}
		return nil, fmt.Errorf("get bundle config: %w", err)
	}
	return cfg, nil
}

// ListConfigs returns one page of configurations and the total count.
func (s *BundleService) ListConfigs(ctx context.Context, page pagination.Params) ([]domain.BundleConfiguration, int, error) {
	cfgs, total, err := s.repo.List(ctx, page)
	if err != nil {
		return nil, 0, fmt.Errorf("list bundle configs: %w", err)
	}
	return cfgs, total, nil
}

// SaveConfig validates and stores cfg.
func (s *BundleService) SaveConfig(ctx context.Context, cfg *domain.BundleConfiguration) (*domain.BundleConfiguration, error) {
	if cfg.ProductID <= 0 {
		return nil, apperrors.InvalidInput("product id is required")
	}
	if cfg.Items == nil {
		cfg.Items = []domain.BundleItem{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	cfg.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save bundle config: %w", err)
	}
	s.logger.InfoContext(ctx, "bundle config saved",
		slog.Int("product_id", cfg.ProductID),
		slog.Int("items", len(cfg.Items)),
		slog.Bool("enabled", cfg.IsEnabled),
	)
	return cfg, nil
}

// DeleteConfig removes the configuration of productID.
func (s *BundleService) DeleteConfig(ctx context.Context, productID int) error {
	if err := s.repo.Delete(ctx, productID); err != nil {
		return fmt.Errorf("delete bundle config: %w", err)
	}
	return nil
}

// editConfig loads, changes and saves a configuration.
func (s *BundleService) editConfig(ctx context.Context, productID int, edit func(cfg *domain.BundleConfiguration, now time.Time) error) (*domain.BundleConfiguration, error) {
	cfg, err := s.GetConfig(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := edit(cfg, s.now().UTC()); err != nil {
		if errors.Is(err, domain.ErrItemIndex) {
			return nil, apperrors.InvalidInput(err.Error())
		}
		return nil, err
	}
	return s.SaveConfig(ctx, cfg)
}

// AddItem appends a default slot definition.
func (s *BundleService) AddItem(ctx context.Context, productID int) (*domain.BundleConfiguration, error) {
	return s.editConfig(ctx, productID, func(cfg *domain.BundleConfiguration, now time.Time) error {
		cfg.AddItem(now)
		return nil
	})
}

// DuplicateItem appends a copy of slot definition index.
func (s *BundleService) DuplicateItem(ctx context.Context, productID, index int) (*domain.BundleConfiguration, error) {
	return s.editConfig(ctx, productID, func(cfg *domain.BundleConfiguration, now time.Time) error {
		_, err := cfg.DuplicateItem(index, now)
		return err
	})
}

// RemoveItem drops slot definition index.
func (s *BundleService) RemoveItem(ctx context.Context, productID, index int) (*domain.BundleConfiguration, error) {
	return s.editConfig(ctx, productID, func(cfg *domain.BundleConfiguration, now time.Time) error {
		return cfg.RemoveItem(index, now)
	})
}

// UpdateItem replaces slot definition index, keeping its id.
func (s *BundleService) UpdateItem(ctx context.Context, productID, index int, item domain.BundleItem) (*domain.BundleConfiguration, error) {
	return s.editConfig(ctx, productID, func(cfg *domain.BundleConfiguration, now time.Time) error {
		return cfg.UpdateItem(index, item, now)
	})
}
