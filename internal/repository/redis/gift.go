package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	giftHashPrefix = "storefront:gift:hash:"
	giftLockPrefix = "storefront:gift:lock:"
)

// GiftStateRepository implements repository.GiftStateRepository using Redis.
// Processed hashes expire after ttl so an abandoned cart leaves nothing behind.
type GiftStateRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewGiftStateRepository creates a new Redis-backed gift state store.
func NewGiftStateRepository(client *redis.Client, ttl time.Duration) *GiftStateRepository {
	return &GiftStateRepository{client: client, ttl: ttl}
}

// ProcessedHash returns the last processed state hash, or "" when none.
func (r *GiftStateRepository) ProcessedHash(ctx context.Context, cartKey string) (string, error) {
	h, err := r.client.Get(ctx, giftHashPrefix+cartKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis get gift hash: %w", err)
	}
	return h, nil
}

// SetProcessedHash records the state hash of a completed pass.
func (r *GiftStateRepository) SetProcessedHash(ctx context.Context, cartKey, hash string) error {
	if err := r.client.Set(ctx, giftHashPrefix+cartKey, hash, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set gift hash: %w", err)
	}
	return nil
}

// TryLock claims the in-flight slot for cartKey until ttl elapses.
func (r *GiftStateRepository) TryLock(ctx context.Context, cartKey string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, giftLockPrefix+cartKey, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx gift lock: %w", err)
	}
	return ok, nil
}

// Unlock releases the in-flight slot.
func (r *GiftStateRepository) Unlock(ctx context.Context, cartKey string) error {
	if err := r.client.Del(ctx, giftLockPrefix+cartKey).Err(); err != nil {
		return fmt.Errorf("redis del gift lock: %w", err)
	}
	return nil
}
