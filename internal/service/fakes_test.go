package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/event"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/woocommerce"
	apperrors "github.com/muhsiltomsher-cloud/asl-storefront/pkg/errors"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/pagination"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- Mock cart backend ---

type mockBackend struct {
	mock.Mock
}

func cartResult(args mock.Arguments) (*domain.Cart, error) {
	if v := args.Get(0); v != nil {
		return v.(*domain.Cart), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBackend) GetCart(ctx context.Context, ref domain.CartRef) (*domain.Cart, error) {
	return cartResult(m.Called(ctx, ref))
}

func (m *mockBackend) AddItem(ctx context.Context, ref domain.CartRef, in woocommerce.AddItemRequest) (*domain.Cart, error) {
	return cartResult(m.Called(ctx, ref, in))
}

func (m *mockBackend) UpdateItem(ctx context.Context, ref domain.CartRef, itemKey string, quantity int) (*domain.Cart, error) {
	return cartResult(m.Called(ctx, ref, itemKey, quantity))
}

func (m *mockBackend) RemoveItem(ctx context.Context, ref domain.CartRef, itemKey string) (*domain.Cart, error) {
	return cartResult(m.Called(ctx, ref, itemKey))
}

func (m *mockBackend) Clear(ctx context.Context, ref domain.CartRef) (*domain.Cart, error) {
	return cartResult(m.Called(ctx, ref))
}

func (m *mockBackend) ApplyCoupon(ctx context.Context, ref domain.CartRef, code string) (*domain.Cart, error) {
	return cartResult(m.Called(ctx, ref, code))
}

func (m *mockBackend) RemoveCoupon(ctx context.Context, ref domain.CartRef, code string) (*domain.Cart, error) {
	return cartResult(m.Called(ctx, ref, code))
}

func (m *mockBackend) SelectShipping(ctx context.Context, ref domain.CartRef, rateID string) (*domain.Cart, error) {
	return cartResult(m.Called(ctx, ref, rateID))
}

// --- In-memory repositories ---

type memSnapshots struct {
	mu    sync.Mutex
	carts map[string]domain.Cart
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{carts: make(map[string]domain.Cart)}
}

func (m *memSnapshots) Get(_ context.Context, key string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[key]
	if !ok {
		return nil, apperrors.NotFound("cart snapshot", key)
	}
	return &c, nil
}

func (m *memSnapshots) Save(_ context.Context, c *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[c.Key] = *c
	return nil
}

func (m *memSnapshots) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, key)
	return nil
}

func (m *memSnapshots) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.carts[key]
	return ok
}

type memCoupons struct {
	coupons []domain.PublicCoupon
}

func (m *memCoupons) Get(_ context.Context) ([]domain.PublicCoupon, error) {
	if m.coupons == nil {
		return nil, apperrors.NotFound("coupons", "all")
	}
	return m.coupons, nil
}

func (m *memCoupons) Set(_ context.Context, c []domain.PublicCoupon) error {
	m.coupons = c
	return nil
}

type memRules struct {
	mu    sync.Mutex
	rules map[string][]domain.FreeGiftRule
}

func newMemRules() *memRules {
	return &memRules{rules: make(map[string][]domain.FreeGiftRule)}
}

func (m *memRules) Get(_ context.Context, currency, locale string) ([]domain.FreeGiftRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[strings.ToUpper(currency)+":"+locale]
	if !ok {
		return nil, apperrors.NotFound("gift rules", currency)
	}
	return r, nil
}

func (m *memRules) Set(_ context.Context, currency, locale string, rules []domain.FreeGiftRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[strings.ToUpper(currency)+":"+locale] = rules
	return nil
}

func (m *memRules) Invalidate(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = make(map[string][]domain.FreeGiftRule)
	return nil
}

type memGiftState struct {
	mu     sync.Mutex
	hashes map[string]string
	locked map[string]bool
}

func newMemGiftState() *memGiftState {
	return &memGiftState{hashes: make(map[string]string), locked: make(map[string]bool)}
}

func (m *memGiftState) ProcessedHash(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hashes[key], nil
}

func (m *memGiftState) SetProcessedHash(_ context.Context, key, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[key] = hash
	return nil
}

func (m *memGiftState) TryLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked[key] {
		return false, nil
	}
	m.locked[key] = true
	return true, nil
}

func (m *memGiftState) Unlock(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locked, key)
	return nil
}

type memBundles struct {
	cfgs map[int]domain.BundleConfiguration
}

func newMemBundles() *memBundles {
	return &memBundles{cfgs: make(map[int]domain.BundleConfiguration)}
}

func (m *memBundles) Get(_ context.Context, id int) (*domain.BundleConfiguration, error) {
	c, ok := m.cfgs[id]
	if !ok {
		return nil, apperrors.NotFound("bundle configuration", "x")
	}
	return &c, nil
}

func (m *memBundles) List(_ context.Context, page pagination.Params) ([]domain.BundleConfiguration, int, error) {
	out := make([]domain.BundleConfiguration, 0, len(m.cfgs))
	for _, c := range m.cfgs {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *memBundles) Save(_ context.Context, c *domain.BundleConfiguration) error {
	m.cfgs[c.ProductID] = *c
	return nil
}

func (m *memBundles) Delete(_ context.Context, id int) error {
	if _, ok := m.cfgs[id]; !ok {
		return apperrors.NotFound("bundle configuration", "x")
	}
	delete(m.cfgs, id)
	return nil
}

type memAttempts struct {
	mu       sync.Mutex
	attempts []domain.PaymentAttempt
}

func (m *memAttempts) Create(_ context.Context, a *domain.PaymentAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, *a)
	return nil
}

func (m *memAttempts) UpdateStatus(_ context.Context, id, status, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.attempts {
		if m.attempts[i].ID == id {
			m.attempts[i].Status = status
			m.attempts[i].FailureReason = reason
			return nil
		}
	}
	return apperrors.NotFound("payment attempt", id)
}

func (m *memAttempts) LatestForOrder(_ context.Context, orderID int) (*domain.PaymentAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.attempts) - 1; i >= 0; i-- {
		if m.attempts[i].OrderID == orderID {
			a := m.attempts[i]
			return &a, nil
		}
	}
	return nil, apperrors.NotFound("payment attempt", "x")
}

// --- Recording event publisher ---

type recordingEvents struct {
	mu       sync.Mutex
	updated  []string
	added    []event.FreeGiftData
	removed  []event.FreeGiftData
	orders   []int
	verified []event.PaymentVerifiedData
}

func (r *recordingEvents) PublishFreeGiftAdded(_ context.Context, d event.FreeGiftData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, d)
	return nil
}

func (r *recordingEvents) PublishFreeGiftRemoved(_ context.Context, d event.FreeGiftData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, d)
	return nil
}

func (r *recordingEvents) PublishCartUpdated(_ context.Context, action string, _ *domain.CartView) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, action)
	return nil
}

func (r *recordingEvents) PublishOrderCreated(_ context.Context, o *domain.Order, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, o.ID)
	return nil
}

func (r *recordingEvents) PublishPaymentVerified(_ context.Context, d event.PaymentVerifiedData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verified = append(r.verified, d)
	return nil
}

type recordingScheduler struct {
	mu   sync.Mutex
	refs []domain.CartRef
}

func (r *recordingScheduler) Schedule(ref domain.CartRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs = append(r.refs, ref)
}

// --- Fixtures ---

func aed() domain.Currency {
	return domain.Currency{Code: "AED", MinorUnit: 2}
}

func sampleCart(key string, items ...domain.CartItem) *domain.Cart {
	var sub int64
	for _, it := range items {
		sub += it.Price * int64(it.Quantity)
	}
	return &domain.Cart{
		Key:      key,
		Items:    items,
		Currency: aed(),
		Totals:   domain.CartTotals{Subtotal: sub, Total: sub},
	}
}

func line(key string, productID, qty int, price int64) domain.CartItem {
	return domain.CartItem{ItemKey: key, ProductID: productID, Name: "Product", Quantity: qty, Price: price, LineTotal: price * int64(qty)}
}
