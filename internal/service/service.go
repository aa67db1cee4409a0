// Package service holds the storefront's business logic: cart mutations with
// bundle-aware totals, free-gift reconciliation, bundle composition and
// checkout with hosted-gateway payments.
package service

import (
	"context"
	"time"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/event"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/woocommerce"
)

// CartBackend is the CoCart part of the store client.
type CartBackend interface {
	GetCart(ctx context.Context, ref domain.CartRef) (*domain.Cart, error)
	AddItem(ctx context.Context, ref domain.CartRef, in woocommerce.AddItemRequest) (*domain.Cart, error)
	UpdateItem(ctx context.Context, ref domain.CartRef, itemKey string, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, ref domain.CartRef, itemKey string) (*domain.Cart, error)
	Clear(ctx context.Context, ref domain.CartRef) (*domain.Cart, error)
	ApplyCoupon(ctx context.Context, ref domain.CartRef, code string) (*domain.Cart, error)
	RemoveCoupon(ctx context.Context, ref domain.CartRef, code string) (*domain.Cart, error)
	SelectShipping(ctx context.Context, ref domain.CartRef, rateID string) (*domain.Cart, error)
}

// CouponSource lists the public coupons.
type CouponSource interface {
	Coupons(ctx context.Context, now time.Time) ([]domain.PublicCoupon, error)
}

// RulesSource fetches free-gift rules from the store.
type RulesSource interface {
	FreeGiftRules(ctx context.Context, currency, locale string) ([]domain.FreeGiftRule, error)
}

// CatalogSource reads products.
type CatalogSource interface {
	Product(ctx context.Context, id int) (*domain.Product, error)
	Catalog(ctx context.Context) ([]domain.Product, error)
}

// OrderBackend is the order and customer part of the store client.
type OrderBackend interface {
	CreateOrder(ctx context.Context, payload domain.OrderPayload) (*domain.Order, error)
	GetOrder(ctx context.Context, id int) (*domain.Order, error)
	UpdateOrder(ctx context.Context, id int, upd domain.OrderUpdate) (*domain.Order, error)
	CustomerExists(ctx context.Context, email string) (bool, error)
	CreateCustomer(ctx context.Context, in domain.NewCustomer) (int, error)
	PaymentGateways(ctx context.Context) ([]domain.PaymentGateway, error)
}

// EventPublisher is satisfied by *event.Producer.
type EventPublisher interface {
	PublishFreeGiftAdded(ctx context.Context, data event.FreeGiftData) error
	PublishFreeGiftRemoved(ctx context.Context, data event.FreeGiftData) error
	PublishCartUpdated(ctx context.Context, action string, view *domain.CartView) error
	PublishOrderCreated(ctx context.Context, order *domain.Order, cartKey string) error
	PublishPaymentVerified(ctx context.Context, data event.PaymentVerifiedData) error
}

// GiftScheduler queues a free-gift pass for a cart.
type GiftScheduler interface {
	Schedule(ref domain.CartRef)
}

// CurrencyResolver maps a shopper currency to its conversion settings.
type CurrencyResolver interface {
	DisplayCurrency(code string) domain.DisplayCurrency
}
