package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/woocommerce"
)

type stubRulesSource struct {
	calls atomic.Int32
	rules []domain.FreeGiftRule
	err   error
}

func (s *stubRulesSource) FreeGiftRules(_ context.Context, _, _ string) ([]domain.FreeGiftRule, error) {
	s.calls.Add(1)
	return s.rules, s.err
}

func spend100() []domain.FreeGiftRule {
	return []domain.FreeGiftRule{{
		ID: "r1", Enabled: true, Name: "Spend 100", MinCartValue: 100, Currency: "AED",
		ProductID: 900, Priority: 1, Product: &domain.GiftProduct{ID: 900, Name: "Mini Oud"},
	}}
}

func giftLine(key string, productID, qty int, ruleID string) domain.CartItem {
	it := line(key, productID, qty, 0)
	it.Data = domain.CartItemData{FreeGift: true, FreeGiftRuleID: ruleID, FreeGiftUniqueKey: key + "-u"}
	return it
}

type giftFixture struct {
	svc     *FreeGiftService
	carts   *CartService
	backend *mockBackend
	source  *stubRulesSource
	state   *memGiftState
	events  *recordingEvents
}

func newGiftFixture(cfg GiftConfig) *giftFixture {
	f := &giftFixture{
		backend: &mockBackend{},
		source:  &stubRulesSource{rules: spend100()},
		state:   newMemGiftState(),
		events:  &recordingEvents{},
	}
	f.carts = NewCartService(f.backend, &stubCoupons{}, newMemSnapshots(), &memCoupons{}, f.events, newTestLogger())
	f.svc = NewFreeGiftService(f.backend, f.source, newMemRules(), f.state, f.carts, f.events, cfg, newTestLogger())
	f.carts.UseGiftScheduler(f.svc)
	return f
}

func isGiftAdd(ruleID string, productID int) any {
	return mock.MatchedBy(func(in woocommerce.AddItemRequest) bool {
		return in.ProductID == productID && in.Quantity == 1 &&
			in.ItemData["_asl_free_gift"] == "1" &&
			in.ItemData["_asl_free_gift_rule_id"] == ruleID &&
			in.ItemData["_asl_free_gift_unique_key"] != ""
	})
}

func TestFreeGiftService_AddsGiftThenSkipsUnchanged(t *testing.T) {
	f := newGiftFixture(GiftConfig{})
	ctx := context.Background()
	ref := domain.CartRef{Key: "c1", Currency: "AED", Locale: "en"}

	before := sampleCart("c1", line("a", 10, 1, 15000))
	after := sampleCart("c1", line("a", 10, 1, 15000), giftLine("g", 900, 1, "r1"))

	f.backend.On("GetCart", mock.Anything, ref).Return(before, nil).Once()
	f.backend.On("AddItem", mock.Anything, ref, isGiftAdd("r1", 900)).Return(after, nil).Once()
	f.backend.On("GetCart", mock.Anything, ref).Return(after, nil).Once()

	res, err := f.svc.Reconcile(ctx, ref)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, []string{"r1"}, res.Added)
	assert.Len(t, res.Cart.Items, 2)
	require.Len(t, f.events.added, 1)
	assert.Equal(t, "Mini Oud", f.events.added[0].GiftName)

	res, err = f.svc.Reconcile(ctx, ref)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, SkipUnchanged, res.Reason)

	assert.Equal(t, int32(1), f.source.calls.Load(), "rules are cached")
	f.backend.AssertExpectations(t)
}

func TestFreeGiftService_RemovesGiftBelowThreshold(t *testing.T) {
	f := newGiftFixture(GiftConfig{})
	ref := domain.CartRef{Key: "c1", Currency: "AED"}

	cart := sampleCart("c1", line("a", 10, 1, 5000), giftLine("g", 900, 1, "r1"))
	f.backend.On("GetCart", mock.Anything, ref).Return(cart, nil)
	f.backend.On("RemoveItem", mock.Anything, ref, "g").Return(sampleCart("c1", line("a", 10, 1, 5000)), nil)

	res, err := f.svc.Reconcile(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"g"}, res.Removed)
	require.Len(t, f.events.removed, 1)
	assert.Equal(t, "r1", f.events.removed[0].RuleID)
	assert.True(t, res.Progress.HasNextGift)
	assert.Equal(t, 50, res.Progress.AmountNeeded)
}

func TestFreeGiftService_FixesGiftQuantity(t *testing.T) {
	f := newGiftFixture(GiftConfig{})
	ref := domain.CartRef{Key: "c1", Currency: "AED"}

	cart := sampleCart("c1", line("a", 10, 1, 15000), giftLine("g", 900, 3, "r1"))
	fixed := sampleCart("c1", line("a", 10, 1, 15000), giftLine("g", 900, 1, "r1"))
	f.backend.On("GetCart", mock.Anything, ref).Return(cart, nil)
	f.backend.On("UpdateItem", mock.Anything, ref, "g", 1).Return(fixed, nil).Once()

	res, err := f.svc.Reconcile(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"g"}, res.Fixed)
	f.backend.AssertNotCalled(t, "AddItem", mock.Anything, mock.Anything, mock.Anything)
}

func TestFreeGiftService_GiftBumpedAfterSettledPassIsFixed(t *testing.T) {
	f := newGiftFixture(GiftConfig{})
	ctx := context.Background()
	ref := domain.CartRef{Key: "c1", Currency: "AED"}

	settled := sampleCart("c1", line("a", 10, 1, 15000), giftLine("g", 900, 1, "r1"))
	bumped := sampleCart("c1", line("a", 10, 1, 15000), giftLine("g", 900, 3, "r1"))
	f.backend.On("GetCart", mock.Anything, ref).Return(settled, nil).Once()
	f.backend.On("GetCart", mock.Anything, ref).Return(bumped, nil).Once()
	f.backend.On("UpdateItem", mock.Anything, ref, "g", 1).Return(settled, nil).Once()

	res, err := f.svc.Reconcile(ctx, ref)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Empty(t, res.Fixed)

	res, err = f.svc.Reconcile(ctx, ref)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, []string{"g"}, res.Fixed)
	for _, it := range res.Cart.Items {
		if it.Data.FreeGift {
			assert.Equal(t, 1, it.Quantity)
		}
	}
	f.backend.AssertExpectations(t)
}

func TestFreeGiftService_FailedAddIsRetriedNextPass(t *testing.T) {
	f := newGiftFixture(GiftConfig{})
	ref := domain.CartRef{Key: "c1", Currency: "AED"}

	cart := sampleCart("c1", line("a", 10, 1, 15000))
	f.backend.On("GetCart", mock.Anything, ref).Return(cart, nil)
	f.backend.On("AddItem", mock.Anything, ref, isGiftAdd("r1", 900)).Return(nil, errors.New("out of stock")).Once()
	f.backend.On("AddItem", mock.Anything, ref, isGiftAdd("r1", 900)).
		Return(sampleCart("c1", line("a", 10, 1, 15000), giftLine("g", 900, 1, "r1")), nil).Once()

	res, err := f.svc.Reconcile(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, f.events.added)

	res, err = f.svc.Reconcile(context.Background(), ref)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, []string{"r1"}, res.Added)
	f.backend.AssertExpectations(t)
}

func TestFreeGiftService_SkipsWhenInFlightOrKeyless(t *testing.T) {
	f := newGiftFixture(GiftConfig{})
	ctx := context.Background()

	res, err := f.svc.Reconcile(ctx, domain.CartRef{})
	require.NoError(t, err)
	assert.Equal(t, SkipNoCart, res.Reason)

	ok, err := f.state.TryLock(ctx, "c1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	res, err = f.svc.Reconcile(ctx, domain.CartRef{Key: "c1"})
	require.NoError(t, err)
	assert.Equal(t, SkipInFlight, res.Reason)
	f.backend.AssertNotCalled(t, "GetCart", mock.Anything, mock.Anything)
}

func TestFreeGiftService_RulesErrorFailsPass(t *testing.T) {
	f := newGiftFixture(GiftConfig{})
	f.source.err = errors.New("plugin down")
	ref := domain.CartRef{Key: "c1", Currency: "AED"}
	f.backend.On("GetCart", mock.Anything, ref).Return(sampleCart("c1"), nil)

	_, err := f.svc.Reconcile(context.Background(), ref)
	require.Error(t, err)

	ok, err := f.state.TryLock(context.Background(), "c1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "in-flight slot is released")
}

func TestFreeGiftService_ScheduleDebounces(t *testing.T) {
	f := newGiftFixture(GiftConfig{Debounce: 20 * time.Millisecond, Timeout: time.Second})
	ref := domain.CartRef{Key: "c1", Currency: "AED"}

	var calls atomic.Int32
	f.backend.On("GetCart", mock.Anything, ref).Run(func(mock.Arguments) { calls.Add(1) }).
		Return(sampleCart("c1", line("a", 10, 1, 1000)), nil)

	for i := 0; i < 5; i++ {
		f.svc.Schedule(ref)
	}
	assert.Equal(t, 1, f.svc.Pending())

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.svc.Pending() == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, f.svc.Stop(context.Background()))
	f.svc.Schedule(ref)
	assert.Equal(t, 0, f.svc.Pending(), "stopped service ignores new work")
}

func TestFreeGiftService_CartMutationSchedulesPass(t *testing.T) {
	f := newGiftFixture(GiftConfig{Debounce: 10 * time.Millisecond, Timeout: time.Second})
	ref := domain.CartRef{Key: "c1", Currency: "AED"}

	before := sampleCart("c1", line("a", 10, 1, 15000))
	after := sampleCart("c1", line("a", 10, 1, 15000), giftLine("g", 900, 1, "r1"))
	f.backend.On("AddItem", mock.Anything, ref, woocommerce.AddItemRequest{ProductID: 10, Quantity: 1}).Return(before, nil)
	f.backend.On("GetCart", mock.Anything, ref).Return(before, nil)
	f.backend.On("AddItem", mock.Anything, ref, isGiftAdd("r1", 900)).Return(after, nil).Once()

	_, err := f.carts.Add(context.Background(), ref, AddItemInput{ProductID: 10, Quantity: 1})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		f.events.mu.Lock()
		defer f.events.mu.Unlock()
		return len(f.events.added) == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, f.svc.Stop(context.Background()))
}

func TestFreeGiftService_ProgressAndInvalidate(t *testing.T) {
	f := newGiftFixture(GiftConfig{})
	ctx := context.Background()
	ref := domain.CartRef{Key: "c1", Currency: "AED"}
	f.backend.On("GetCart", mock.Anything, ref).Return(sampleCart("c1", line("a", 10, 1, 4050)), nil)

	p, err := f.svc.Progress(ctx, ref)
	require.NoError(t, err)
	assert.True(t, p.HasNextGift)
	assert.Equal(t, 60, p.AmountNeeded)

	require.NoError(t, f.svc.InvalidateRules(ctx))
	_, err = f.svc.Rules(ctx, "aed", "")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.source.calls.Load())
}
