package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	pkgkafka "github.com/muhsiltomsher-cloud/asl-storefront/pkg/kafka"
)

// CartClearer empties a shopper's cart.
type CartClearer interface {
	Clear(ctx context.Context, ref domain.CartRef) (*domain.CartView, error)
}

// PaymentVerifiedHandler clears the cart of an order paid through a hosted
// gateway. Events are deduplicated by id in redis for ttl.
func PaymentVerifiedHandler(carts CartClearer, client redis.Cmdable, ttl time.Duration, logger *slog.Logger) pkgkafka.Handler {
	store := pkgkafka.NewRedisIdempotencyStore(client, "storefront:events:payment-verified", ttl)
	return pkgkafka.IdempotentHandler(store, logger, func(ctx context.Context, evt *pkgkafka.Event) error {
		var data PaymentVerifiedData
		if err := evt.UnmarshalData(&data); err != nil {
			return fmt.Errorf("decode payment verified event: %w", err)
		}
		if data.CartKey == "" || data.Gateway == string(domain.GatewayDirect) {
			return nil
		}

		if _, err := carts.Clear(ctx, domain.CartRef{Key: data.CartKey}); err != nil {
			return fmt.Errorf("clear cart for order %d: %w", data.OrderID, err)
		}
		logger.InfoContext(ctx, "cart cleared after payment",
			slog.Int("order_id", data.OrderID),
			slog.String("gateway", data.Gateway),
		)
		return nil
	})
}
