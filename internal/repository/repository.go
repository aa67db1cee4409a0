package repository

import (
	"context"
	"time"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/pagination"
)

// BundleRepository defines persistence for admin bundle configurations.
type BundleRepository interface {
	// Get retrieves the configuration of a bundle product.
	Get(ctx context.Context, productID int) (*domain.BundleConfiguration, error)

	// List returns one page of configurations and the total count.
	List(ctx context.Context, page pagination.Params) ([]domain.BundleConfiguration, int, error)

	// Save inserts or replaces the configuration for its product.
	Save(ctx context.Context, cfg *domain.BundleConfiguration) error

	// Delete removes the configuration of a bundle product.
	Delete(ctx context.Context, productID int) error
}

// PaymentAttemptRepository records each gateway hand-off for an order.
type PaymentAttemptRepository interface {
	Create(ctx context.Context, a *domain.PaymentAttempt) error
	UpdateStatus(ctx context.Context, id, status, failureReason string) error
	LatestForOrder(ctx context.Context, orderID int) (*domain.PaymentAttempt, error)
}

// CartSnapshotRepository caches the last known backend cart per cart key.
type CartSnapshotRepository interface {
	Get(ctx context.Context, cartKey string) (*domain.Cart, error)
	Save(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, cartKey string) error
}

// RulesCache is a TTL cache of free-gift rules keyed by currency and locale.
type RulesCache interface {
	Get(ctx context.Context, currency, locale string) ([]domain.FreeGiftRule, error)
	Set(ctx context.Context, currency, locale string, rules []domain.FreeGiftRule) error
	Invalidate(ctx context.Context) error
}

// CouponCache is a TTL cache of the public coupon list.
type CouponCache interface {
	Get(ctx context.Context) ([]domain.PublicCoupon, error)
	Set(ctx context.Context, coupons []domain.PublicCoupon) error
}

// GiftStateRepository tracks free-gift reconciliation per cart.
type GiftStateRepository interface {
	// ProcessedHash returns the state hash of the last completed pass, or "".
	ProcessedHash(ctx context.Context, cartKey string) (string, error)

	// SetProcessedHash stores the state hash of a completed pass.
	SetProcessedHash(ctx context.Context, cartKey, hash string) error

	// TryLock claims the in-flight slot for a cart. It returns false when
	// another pass already holds it.
	TryLock(ctx context.Context, cartKey string, ttl time.Duration) (bool, error)

	// Unlock releases the in-flight slot.
	Unlock(ctx context.Context, cartKey string) error
}
