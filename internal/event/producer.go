package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/logger"
	pkgkafka "github.com/muhsiltomsher-cloud/asl-storefront/pkg/kafka"
)

// Kafka topics for storefront events.
var (
	TopicFreeGiftAdded   = pkgkafka.Topic("cart", "free_gift_added")
	TopicFreeGiftRemoved = pkgkafka.Topic("cart", "free_gift_removed")
	TopicCartUpdated     = pkgkafka.Topic("cart", "updated")
	TopicOrderCreated    = pkgkafka.Topic("order", "created")
	TopicPaymentVerified = pkgkafka.Topic("payment", "verified")
)

// Aggregate types.
const (
	AggregateTypeCart  = "cart"
	AggregateTypeOrder = "order"
)

// SourceStorefront identifies events published by this service.
const SourceStorefront = "storefront-bff"

// FreeGiftData is the payload of free_gift_added and free_gift_removed.
type FreeGiftData struct {
	CartKey   string `json:"cart_key"`
	RuleID    string `json:"rule_id"`
	ProductID int    `json:"product_id"`
	GiftName  string `json:"gift_name"`
	Currency  string `json:"currency"`
	Locale    string `json:"locale,omitempty"`
}

// CartUpdatedData is the payload of cart.updated.
type CartUpdatedData struct {
	CartKey    string `json:"cart_key"`
	Action     string `json:"action"`
	ItemCount  int    `json:"item_count"`
	Subtotal   int64  `json:"subtotal"`
	Total      int64  `json:"total"`
	Adjustment int64  `json:"bundle_adjustment"`
	Currency   string `json:"currency"`
}

// OrderCreatedData is the payload of order.created.
type OrderCreatedData struct {
	OrderID       int     `json:"order_id"`
	CartKey       string  `json:"cart_key"`
	PaymentMethod string  `json:"payment_method"`
	Gateway       string  `json:"gateway"`
	Status        string  `json:"status"`
	Total         float64 `json:"total"`
	Currency      string  `json:"currency"`
	CustomerID    int     `json:"customer_id,omitempty"`
}

// PaymentVerifiedData is the payload of payment.verified.
type PaymentVerifiedData struct {
	OrderID       int    `json:"order_id"`
	CartKey       string `json:"cart_key"`
	Gateway       string `json:"gateway"`
	TransactionID string `json:"transaction_id,omitempty"`
	AttemptID     string `json:"attempt_id,omitempty"`
}

// Publisher is satisfied by *pkgkafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes storefront domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

func (p *Producer) publish(ctx context.Context, topic, eventType, aggregateID, aggregateType string, data any) error {
	evt, err := pkgkafka.NewEvent(eventType, aggregateID, aggregateType, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "event published",
		slog.String("event_type", eventType),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}

// PublishFreeGiftAdded publishes a free_gift_added event.
func (p *Producer) PublishFreeGiftAdded(ctx context.Context, data FreeGiftData) error {
	return p.publish(ctx, TopicFreeGiftAdded, "free_gift.added", data.CartKey, AggregateTypeCart, data)
}

// PublishFreeGiftRemoved publishes a free_gift_removed event.
func (p *Producer) PublishFreeGiftRemoved(ctx context.Context, data FreeGiftData) error {
	return p.publish(ctx, TopicFreeGiftRemoved, "free_gift.removed", data.CartKey, AggregateTypeCart, data)
}

// PublishCartUpdated publishes a cart.updated event for view after action.
func (p *Producer) PublishCartUpdated(ctx context.Context, action string, view *domain.CartView) error {
	return p.publish(ctx, TopicCartUpdated, "cart.updated", view.Key, AggregateTypeCart, CartUpdatedData{
		CartKey:    view.Key,
		Action:     action,
		ItemCount:  view.ItemCount(),
		Subtotal:   view.AdjustedTotals.Subtotal,
		Total:      view.AdjustedTotals.Total,
		Adjustment: view.Adjustment,
		Currency:   view.Currency.Code,
	})
}

// PublishOrderCreated publishes an order.created event.
func (p *Producer) PublishOrderCreated(ctx context.Context, order *domain.Order, cartKey string) error {
	return p.publish(ctx, TopicOrderCreated, "order.created", fmt.Sprint(order.ID), AggregateTypeOrder, OrderCreatedData{
		OrderID:       order.ID,
		CartKey:       cartKey,
		PaymentMethod: order.PaymentMethod,
		Gateway:       string(domain.GatewayFor(order.PaymentMethod)),
		Status:        order.Status,
		Total:         order.Total,
		Currency:      order.Currency,
		CustomerID:    order.CustomerID,
	})
}

// PublishPaymentVerified publishes a payment.verified event.
func (p *Producer) PublishPaymentVerified(ctx context.Context, data PaymentVerifiedData) error {
	return p.publish(ctx, TopicPaymentVerified, "payment.verified", fmt.Sprint(data.OrderID), AggregateTypeOrder, data)
}
