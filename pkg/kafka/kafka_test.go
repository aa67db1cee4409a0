package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) committedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func mustEvent(t *testing.T, eventType, aggregateID string) *Event {
	t.Helper()
	ev, err := NewEvent(eventType, aggregateID, "cart", "storefront", map[string]string{"gift": "42"})
	require.NoError(t, err)
	return ev
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "storefront.cart.free_gift_added", Topic("cart", "free_gift_added"))
	assert.Equal(t, "storefront.dlq.storefront.payment.verified", DLQTopic(Topic("payment", "verified")))
}

func TestEvent_DataRoundTrip(t *testing.T) {
	ev := mustEvent(t, "free_gift_added", "cart-1").WithCorrelationID("req-9").WithMetadata("rule", "r1")

	raw, err := ev.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, ev.EventID, decoded.EventID)
	assert.Equal(t, "req-9", decoded.CorrelationID)
	assert.Equal(t, "r1", decoded.Metadata["rule"])

	var payload map[string]string
	require.NoError(t, decoded.UnmarshalData(&payload))
	assert.Equal(t, "42", payload["gift"])
}

func TestProducer_PublishKeysByAggregateAndInjectsTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "place-order")
	defer span.End()

	w := &fakeWriter{}
	p := NewProducerWithWriter(w, nil, discardLogger())

	ev := mustEvent(t, "order_placed", "order-7").WithCorrelationID("req-1")
	require.NoError(t, p.Publish(ctx, Topic("order", "placed"), ev))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "storefront.order.placed", msg.Topic)
	assert.Equal(t, "order-7", string(msg.Key))
	assert.Equal(t, "order_placed", headerValue(msg.Headers, "event_type"))
	assert.Equal(t, "req-1", headerValue(msg.Headers, "correlation_id"))
	assert.NotEmpty(t, headerValue(msg.Headers, "traceparent"))
}

func TestProducer_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewProducerWithWriter(w, nil, discardLogger())

	err := p.Publish(context.Background(), "t", mustEvent(t, "x", "a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestHeaderCarrier_SetOverwrites(t *testing.T) {
	headers := []kafka.Header{{Key: "k", Value: []byte("v1")}}
	c := headerCarrier{headers: &headers}

	c.Set("k", "v2")
	c.Set("other", "x")

	assert.Equal(t, "v2", c.Get("k"))
	assert.ElementsMatch(t, []string{"k", "other"}, c.Keys())
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	assert.Error(t, PingBrokers(context.Background(), nil))
}

func runConsumer(t *testing.T, c *Consumer, r *fakeReader, want int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return r.committedCount() == want }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestConsumer_CommitsHandledMessages(t *testing.T) {
	ev := mustEvent(t, "payment_verified", "order-1")
	raw, _ := ev.Marshal()
	r := &fakeReader{pending: []kafka.Message{{Topic: "t", Value: raw}}}

	var got []string
	c := NewConsumerWithReader(r, "t", "g", func(_ context.Context, e *Event) error {
		got = append(got, e.AggregateID)
		return nil
	}, discardLogger())

	runConsumer(t, c, r, 1)
	assert.Equal(t, []string{"order-1"}, got)
	assert.True(t, r.closed)
}

func TestConsumer_RetriesThenDeadLetters(t *testing.T) {
	raw, _ := mustEvent(t, "payment_verified", "order-2").Marshal()
	r := &fakeReader{pending: []kafka.Message{{Topic: "t", Partition: 3, Offset: 11, Value: raw}}}
	dlqWriter := &fakeWriter{}

	attempts := 0
	c := NewConsumerWithReader(r, "t", "g", func(context.Context, *Event) error {
		attempts++
		return errors.New("woocommerce unavailable")
	}, discardLogger()).WithDLQ(NewDLQProducerWithWriter(dlqWriter, discardLogger()))
	c.retryStep = time.Millisecond

	runConsumer(t, c, r, 1)
	assert.Equal(t, maxHandlerRetries, attempts)

	require.Len(t, dlqWriter.msgs, 1)
	dead := dlqWriter.msgs[0]
	assert.Equal(t, "storefront.dlq.t", dead.Topic)
	assert.Equal(t, "3", headerValue(dead.Headers, "dlq.original_partition"))
	assert.Equal(t, "11", headerValue(dead.Headers, "dlq.original_offset"))
	assert.Equal(t, "woocommerce unavailable", headerValue(dead.Headers, "dlq.error"))
}

func TestConsumer_UndecodableMessageIsCommitted(t *testing.T) {
	r := &fakeReader{pending: []kafka.Message{{Topic: "t", Value: []byte("{not json")}}}
	called := false
	c := NewConsumerWithReader(r, "t", "g", func(context.Context, *Event) error {
		called = true
		return nil
	}, discardLogger())

	runConsumer(t, c, r, 1)
	assert.False(t, called)
}

func TestIdempotentHandler_SkipsProcessedEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisIdempotencyStore(rdb, "events", time.Hour)

	calls := 0
	h := IdempotentHandler(store, discardLogger(), func(context.Context, *Event) error {
		calls++
		return nil
	})

	ev := mustEvent(t, "payment_verified", "order-3")
	require.NoError(t, h(context.Background(), ev))
	require.NoError(t, h(context.Background(), ev))
	assert.Equal(t, 1, calls)
	assert.True(t, mr.Exists("events:"+ev.EventID))

	mr.FastForward(2 * time.Hour)
	require.NoError(t, h(context.Background(), ev))
	assert.Equal(t, 2, calls)
}

func TestIdempotentHandler_FailedEventIsNotRecorded(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisIdempotencyStore(rdb, "events", time.Hour)

	h := IdempotentHandler(store, discardLogger(), func(context.Context, *Event) error {
		return errors.New("boom")
	})

	ev := mustEvent(t, "payment_verified", "order-4")
	require.Error(t, h(context.Background(), ev))

	seen, err := store.Contains(context.Background(), ev.EventID)
	require.NoError(t, err)
	assert.False(t, seen)
}
