package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/repository"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/woocommerce"
	apperrors "github.com/muhsiltomsher-cloud/asl-storefront/pkg/errors"
)

// MaxQuantityPerItem is the maximum quantity accepted for a single cart line.
const MaxQuantityPerItem = 100

// Cart actions reported in cart.updated events.
const (
	ActionAdd            = "add"
	ActionUpdate         = "update"
	ActionRemove         = "remove"
	ActionClear          = "clear"
	ActionApplyCoupon    = "apply_coupon"
	ActionRemoveCoupon   = "remove_coupon"
	ActionSelectShipping = "select_shipping"
)

// AddItemInput holds the parameters for adding a product to the cart.
type AddItemInput struct {
	ProductID int            `json:"id" validate:"required,gt=0"`
	Quantity  int            `json:"quantity" validate:"required,gte=1,lte=100"`
	ItemData  map[string]any `json:"item_data,omitempty"`
}

// CartService fronts the CoCart cart. Mutations on one cart run one at a
// time; reads are served from a snapshot cache and coalesced on a miss.
type CartService struct {
	backend   CartBackend
	coupons   CouponSource
	snapshots repository.CartSnapshotRepository
	couponTTL repository.CouponCache
	events    EventPublisher
	gifts     GiftScheduler
	logger    *slog.Logger
	now       func() time.Time

	locks *keyedMutex
	group singleflight.Group
	mu    sync.RWMutex
}

// NewCartService creates a new cart service.
func NewCartService(
	backend CartBackend,
	coupons CouponSource,
	snapshots repository.CartSnapshotRepository,
	couponCache repository.CouponCache,
	events EventPublisher,
	logger *slog.Logger,
) *CartService {
	return &CartService{
		backend:   backend,
		coupons:   coupons,
		snapshots: snapshots,
		couponTTL: couponCache,
		events:    events,
		logger:    logger,
		now:       time.Now,
		locks:     newKeyedMutex(),
	}
}

// UseGiftScheduler sets the scheduler notified after every successful mutation.
func (s *CartService) UseGiftScheduler(g GiftScheduler) {
	s.mu.Lock()
	s.gifts = g
	s.mu.Unlock()
}

// Get returns the cart for ref.
func (s *CartService) Get(ctx context.Context, ref domain.CartRef) (*domain.CartView, error) {
	cart, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cart), nil
}

// load returns the cached snapshot or fetches the cart. Concurrent misses for
// the same cart share one backend call, and the fetch holds the cart lock so
// it cannot overwrite a newer snapshot written by a mutation.
func (s *CartService) load(ctx context.Context, ref domain.CartRef) (*domain.Cart, error) {
	if cart, ok := s.snapshot(ctx, ref); ok {
		return cart, nil
	}

	key := ref.Key + "|" + strings.ToUpper(ref.Currency) + "|" + ref.Locale
	v, err, _ := s.group.Do(key, func() (any, error) {
		unlock := s.locks.Lock(ref.LockKey())
		defer unlock()

		if cart, ok := s.snapshot(ctx, ref); ok {
			return cart, nil
		}
		cart, err := s.backend.GetCart(ctx, ref)
		if err != nil {
			return nil, err
		}
		s.saveSnapshot(ctx, cart)
		return cart, nil
	})
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return v.(*domain.Cart), nil
}

func (s *CartService) snapshot(ctx context.Context, ref domain.CartRef) (*domain.Cart, bool) {
	if ref.Key == "" {
		return nil, false
	}
	cart, err := s.snapshots.Get(ctx, ref.Key)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "cart snapshot read failed", slog.String("cart_key", ref.Key), slog.String("error", err.Error()))
		}
		return nil, false
	}
	if ref.Currency != "" && !strings.EqualFold(cart.Currency.Code, ref.Currency) {
		return nil, false
	}
	return cart, true
}

func (s *CartService) saveSnapshot(ctx context.Context, cart *domain.Cart) {
	if cart.Key == "" {
		return
	}
	if err := s.snapshots.Save(ctx, cart); err != nil {
		s.logger.WarnContext(ctx, "cart snapshot write failed", slog.String("cart_key", cart.Key), slog.String("error", err.Error()))
	}
}

func (s *CartService) dropSnapshot(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.snapshots.Delete(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "cart snapshot delete failed", slog.String("cart_key", key), slog.String("error", err.Error()))
	}
}

// WithLock runs fn while holding the lock of ref's cart. The returned cart
// replaces the snapshot; on error the snapshot is dropped since the backend
// state is unknown.
func (s *CartService) WithLock(ctx context.Context, ref domain.CartRef, fn func(ctx context.Context) (*domain.Cart, error)) (*domain.Cart, error) {
	unlock := s.locks.Lock(ref.LockKey())
	defer unlock()

	cart, err := fn(ctx)
	if err != nil {
		s.dropSnapshot(ctx, ref.Key)
		return nil, err
	}
	if cart != nil {
		s.saveSnapshot(ctx, cart)
	}
	return cart, nil
}

// mutate applies one shopper mutation, then publishes cart.updated and
// queues a free-gift pass.
func (s *CartService) mutate(ctx context.Context, ref domain.CartRef, action string, fn func(ctx context.Context) (*domain.Cart, error)) (*domain.CartView, error) {
	cart, err := s.WithLock(ctx, ref, fn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}

	view := s.view(ctx, cart)
	if err := s.events.PublishCartUpdated(ctx, action, view); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("cart_key", cart.Key),
			slog.String("error", err.Error()),
		)
	}

	s.mu.RLock()
	gifts := s.gifts
	s.mu.RUnlock()
	if gifts != nil && cart.Key != "" {
		next := ref
		next.Key = cart.Key
		gifts.Schedule(next)
	}
	return view, nil
}

// Add adds a product to the cart. Bundle and free-gift keys in the item data
// are dropped; only the composer and the gift pass may set them.
func (s *CartService) Add(ctx context.Context, ref domain.CartRef, in AddItemInput) (*domain.CartView, error) {
	in.ItemData = domain.PublicItemData(in.ItemData)
	return s.add(ctx, ref, in)
}

// AddBundle adds a composed bundle line with its item data as given.
func (s *CartService) AddBundle(ctx context.Context, ref domain.CartRef, in AddItemInput) (*domain.CartView, error) {
	return s.add(ctx, ref, in)
}

func (s *CartService) add(ctx context.Context, ref domain.CartRef, in AddItemInput) (*domain.CartView, error) {
	if in.ProductID <= 0 {
		return nil, apperrors.InvalidInput("product id is required")
	}
	if in.Quantity < 1 || in.Quantity > MaxQuantityPerItem {
		return nil, apperrors.InvalidInput(fmt.Sprintf("quantity must be between 1 and %d", MaxQuantityPerItem))
	}
	return s.mutate(ctx, ref, ActionAdd, func(ctx context.Context) (*domain.Cart, error) {
		return s.backend.AddItem(ctx, ref, woocommerce.AddItemRequest{
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			ItemData:  in.ItemData,
		})
	})
}

// Update sets the quantity of a line. A zero quantity removes it.
func (s *CartService) Update(ctx context.Context, ref domain.CartRef, itemKey string, quantity int) (*domain.CartView, error) {
	if itemKey == "" {
		return nil, apperrors.InvalidInput("item key is required")
	}
	if quantity < 0 || quantity > MaxQuantityPerItem {
		return nil, apperrors.InvalidInput(fmt.Sprintf("quantity must be between 0 and %d", MaxQuantityPerItem))
	}
	if quantity == 0 {
		return s.Remove(ctx, ref, itemKey)
	}
	return s.mutate(ctx, ref, ActionUpdate, func(ctx context.Context) (*domain.Cart, error) {
		return s.backend.UpdateItem(ctx, ref, itemKey, quantity)
	})
}

// Remove drops a line.
func (s *CartService) Remove(ctx context.Context, ref domain.CartRef, itemKey string) (*domain.CartView, error) {
	if itemKey == "" {
		return nil, apperrors.InvalidInput("item key is required")
	}
	return s.mutate(ctx, ref, ActionRemove, func(ctx context.Context) (*domain.Cart, error) {
		return s.backend.RemoveItem(ctx, ref, itemKey)
	})
}

// Clear empties the cart.
func (s *CartService) Clear(ctx context.Context, ref domain.CartRef) (*domain.CartView, error) {
	return s.mutate(ctx, ref, ActionClear, func(ctx context.Context) (*domain.Cart, error) {
		return s.backend.Clear(ctx, ref)
	})
}

// ApplyCoupon applies a coupon code.
func (s *CartService) ApplyCoupon(ctx context.Context, ref domain.CartRef, code string) (*domain.CartView, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.InvalidInput("coupon code is required")
	}
	return s.mutate(ctx, ref, ActionApplyCoupon, func(ctx context.Context) (*domain.Cart, error) {
		return s.backend.ApplyCoupon(ctx, ref, code)
	})
}

// RemoveCoupon removes a coupon code.
func (s *CartService) RemoveCoupon(ctx context.Context, ref domain.CartRef, code string) (*domain.CartView, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.InvalidInput("coupon code is required")
	}
	return s.mutate(ctx, ref, ActionRemoveCoupon, func(ctx context.Context) (*domain.Cart, error) {
		return s.backend.RemoveCoupon(ctx, ref, code)
	})
}

// ShippingRates lists the shipping packages of the cart.
func (s *CartService) ShippingRates(ctx context.Context, ref domain.CartRef) ([]domain.ShippingPackage, error) {
	cart, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	if cart.Shipping == nil {
		return []domain.ShippingPackage{}, nil
	}
	return cart.Shipping, nil
}

// SelectShipping chooses a shipping rate.
func (s *CartService) SelectShipping(ctx context.Context, ref domain.CartRef, rateID string) (*domain.CartView, error) {
	if rateID == "" {
		return nil, apperrors.InvalidInput("rate id is required")
	}
	return s.mutate(ctx, ref, ActionSelectShipping, func(ctx context.Context) (*domain.Cart, error) {
		return s.backend.SelectShipping(ctx, ref, rateID)
	})
}

// Coupons returns the public coupon list, cached.
func (s *CartService) Coupons(ctx context.Context) ([]domain.PublicCoupon, error) {
	cached, err := s.couponTTL.Get(ctx)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		s.logger.WarnContext(ctx, "coupon cache read failed", slog.String("error", err.Error()))
	}

	v, err, _ := s.group.Do("coupons", func() (any, error) {
		return s.coupons.Coupons(ctx, s.now())
	})
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	coupons := v.([]domain.PublicCoupon)
	if err := s.couponTTL.Set(ctx, coupons); err != nil {
		s.logger.WarnContext(ctx, "coupon cache write failed", slog.String("error", err.Error()))
	}
	return coupons, nil
}

// view enriches applied coupons missing their discount type or amount from
// the public coupon list and computes the bundle-corrected totals.
func (s *CartService) view(ctx context.Context, cart *domain.Cart) *domain.CartView {
	needs := false
	for _, c := range cart.Coupons {
		if c.DiscountType == "" || c.Amount == "" {
			needs = true
			break
		}
	}
	if !needs {
		return domain.NewCartView(cart)
	}

	public, err := s.Coupons(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "coupon enrichment skipped", slog.String("error", err.Error()))
		return domain.NewCartView(cart)
	}
	byCode := make(map[string]domain.PublicCoupon, len(public))
	for _, p := range public {
		byCode[strings.ToLower(p.Code)] = p
	}

	enriched := *cart
	enriched.Coupons = make([]domain.AppliedCoupon, len(cart.Coupons))
	for i, c := range cart.Coupons {
		if p, ok := byCode[strings.ToLower(c.Code)]; ok {
			if c.DiscountType == "" {
				c.DiscountType = p.DiscountType
			}
			if c.Amount == "" {
				c.Amount = p.Amount
			}
		}
		enriched.Coupons[i] = c
	}
	return domain.NewCartView(&enriched)
}
