package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	apperrors "github.com/muhsiltomsher-cloud/asl-storefront/pkg/errors"
)

const cartKeyPrefix = "storefront:cart:"

// CartSnapshotRepository implements repository.CartSnapshotRepository using Redis.
type CartSnapshotRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCartSnapshotRepository creates a new Redis-backed cart snapshot cache.
func NewCartSnapshotRepository(client *redis.Client, ttl time.Duration) *CartSnapshotRepository {
	return &CartSnapshotRepository{client: client, ttl: ttl}
}

// Get returns the cached cart, or a NotFound error on a miss.
func (r *CartSnapshotRepository) Get(ctx context.Context, cartKey string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cartKeyPrefix+cartKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("cart snapshot", cartKey)
		}
		return nil, fmt.Errorf("redis get cart snapshot: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart snapshot: %w", err)
	}
	return &cart, nil
}

// Save stores cart under its key with the configured TTL.
func (r *CartSnapshotRepository) Save(ctx context.Context, cart *domain.Cart) error {
	if cart.Key == "" {
		return apperrors.InvalidInput("cart snapshot needs a cart key")
	}
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart snapshot: %w", err)
	}
	if err := r.client.Set(ctx, cartKeyPrefix+cart.Key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart snapshot: %w", err)
	}
	return nil
}

// Delete drops the cached cart.
func (r *CartSnapshotRepository) Delete(ctx context.Context, cartKey string) error {
	if err := r.client.Del(ctx, cartKeyPrefix+cartKey).Err(); err != nil {
		return fmt.Errorf("redis del cart snapshot: %w", err)
	}
	return nil
}
