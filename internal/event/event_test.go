package event

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/logger"
	pkgkafka "github.com/muhsiltomsher-cloud/asl-storefront/pkg/kafka"
)

type recordingPublisher struct {
	topics []string
	events []*pkgkafka.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, e *pkgkafka.Event) error {
	r.topics = append(r.topics, topic)
	r.events = append(r.events, e)
	return r.err
}

type mockClearer struct{ mock.Mock }

func (m *mockClearer) Clear(ctx context.Context, ref domain.CartRef) (*domain.CartView, error) {
	args := m.Called(ctx, ref)
	if v := args.Get(0); v != nil {
		return v.(*domain.CartView), args.Error(1)
	}
	return nil, args.Error(1)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProducer_PublishFreeGiftAdded(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewProducer(pub, discard())
	ctx := logger.WithCorrelationID(context.Background(), "corr-1")

	err := p.PublishFreeGiftAdded(ctx, FreeGiftData{CartKey: "c1", RuleID: "7", ProductID: 900, GiftName: "Mini Oud", Currency: "AED"})
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "storefront.cart.free_gift_added", pub.topics[0])
	evt := pub.events[0]
	assert.Equal(t, "free_gift.added", evt.EventType)
	assert.Equal(t, "c1", evt.AggregateID)
	assert.Equal(t, "corr-1", evt.CorrelationID)

	var data FreeGiftData
	require.NoError(t, evt.UnmarshalData(&data))
	assert.Equal(t, "Mini Oud", data.GiftName)
}

func TestProducer_PublishCartUpdated(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewProducer(pub, discard())

	view := domain.NewCartView(&domain.Cart{
		Key:      "c1",
		Currency: domain.Currency{Code: "AED", MinorUnit: 2},
		Items: []domain.CartItem{{
			ItemKey: "b1", Quantity: 2,
			Data: domain.CartItemData{BundleItems: []domain.BundleLine{{Price: 50}}},
		}},
		Totals: domain.CartTotals{Subtotal: 1000, Total: 1000},
	})
	require.NoError(t, p.PublishCartUpdated(context.Background(), "add", view))

	var data CartUpdatedData
	require.NoError(t, pub.events[0].UnmarshalData(&data))
	assert.Equal(t, CartUpdatedData{
		CartKey: "c1", Action: "add", ItemCount: 2, Subtotal: 11000, Total: 11000, Adjustment: 10000, Currency: "AED",
	}, data)
}

func TestProducer_PublishError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	err := NewProducer(pub, discard()).PublishOrderCreated(context.Background(),
		&domain.Order{ID: 55, PaymentMethod: "cod", Status: domain.OrderProcessing}, "c1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish order.created event")
}

func newPaymentEvent(t *testing.T, data PaymentVerifiedData) *pkgkafka.Event {
	t.Helper()
	evt, err := pkgkafka.NewEvent("payment.verified", "55", AggregateTypeOrder, SourceStorefront, data)
	require.NoError(t, err)
	return evt
}

func TestPaymentVerifiedHandler_ClearsOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	carts := &mockClearer{}
	carts.On("Clear", mock.Anything, domain.CartRef{Key: "c1"}).Return(&domain.CartView{}, nil).Once()

	h := PaymentVerifiedHandler(carts, client, time.Hour, discard())
	evt := newPaymentEvent(t, PaymentVerifiedData{OrderID: 55, CartKey: "c1", Gateway: "tabby"})

	require.NoError(t, h(context.Background(), evt))
	require.NoError(t, h(context.Background(), evt), "redelivery is skipped")
	carts.AssertExpectations(t)
}

func TestPaymentVerifiedHandler_SkipsDirectAndKeyless(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	carts := &mockClearer{}
	h := PaymentVerifiedHandler(carts, client, time.Hour, discard())

	require.NoError(t, h(context.Background(), newPaymentEvent(t, PaymentVerifiedData{OrderID: 1, CartKey: "c1", Gateway: "direct"})))
	require.NoError(t, h(context.Background(), newPaymentEvent(t, PaymentVerifiedData{OrderID: 2, Gateway: "tabby"})))
	carts.AssertNotCalled(t, "Clear", mock.Anything, mock.Anything)
}

func TestPaymentVerifiedHandler_ClearErrorIsRetried(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	carts := &mockClearer{}
	carts.On("Clear", mock.Anything, domain.CartRef{Key: "c1"}).Return(nil, errors.New("cocart down")).Once()
	carts.On("Clear", mock.Anything, domain.CartRef{Key: "c1"}).Return(&domain.CartView{}, nil).Once()

	h := PaymentVerifiedHandler(carts, client, time.Hour, discard())
	evt := newPaymentEvent(t, PaymentVerifiedData{OrderID: 55, CartKey: "c1", Gateway: "myfatoorah"})

	require.Error(t, h(context.Background(), evt))
	require.NoError(t, h(context.Background(), evt), "a failed event is not recorded as processed")
	carts.AssertExpectations(t)
}
