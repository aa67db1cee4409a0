package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	apperrors "github.com/muhsiltomsher-cloud/asl-storefront/pkg/errors"
)

const (
	rulesKeyPrefix = "storefront:gift-rules:"
	couponsKey     = "storefront:coupons"
)

func getJSON(ctx context.Context, client *redis.Client, key, resource string, out any) error {
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return apperrors.NotFound(resource, key)
		}
		return fmt.Errorf("redis get %s: %w", resource, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", resource, err)
	}
	return nil
}

func setJSON(ctx context.Context, client *redis.Client, key, resource string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", resource, err)
	}
	if err := client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", resource, err)
	}
	return nil
}

// RulesCache implements repository.RulesCache using Redis.
type RulesCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRulesCache creates a free-gift rules cache entries of which expire after ttl.
func NewRulesCache(client *redis.Client, ttl time.Duration) *RulesCache {
	return &RulesCache{client: client, ttl: ttl}
}

func rulesKey(currency, locale string) string {
	return rulesKeyPrefix + strings.ToUpper(currency) + ":" + strings.ToLower(locale)
}

// Get returns cached rules, or a NotFound error on a miss.
func (c *RulesCache) Get(ctx context.Context, currency, locale string) ([]domain.FreeGiftRule, error) {
	var rules []domain.FreeGiftRule
	if err := getJSON(ctx, c.client, rulesKey(currency, locale), "free gift rules", &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// Set caches rules for currency and locale.
func (c *RulesCache) Set(ctx context.Context, currency, locale string, rules []domain.FreeGiftRule) error {
	if rules == nil {
		rules = []domain.FreeGiftRule{}
	}
	return setJSON(ctx, c.client, rulesKey(currency, locale), "free gift rules", rules, c.ttl)
}

// Invalidate drops every cached rule set.
func (c *RulesCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, rulesKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan gift rules: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del gift rules: %w", err)
	}
	return nil
}

// CouponCache implements repository.CouponCache using Redis.
type CouponCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCouponCache creates a public coupon list cache.
func NewCouponCache(client *redis.Client, ttl time.Duration) *CouponCache {
	return &CouponCache{client: client, ttl: ttl}
}

// Get returns the cached coupons, or a NotFound error on a miss.
func (c *CouponCache) Get(ctx context.Context) ([]domain.PublicCoupon, error) {
	var coupons []domain.PublicCoupon
	if err := getJSON(ctx, c.client, couponsKey, "coupons", &coupons); err != nil {
		return nil, err
	}
	return coupons, nil
}

// Set caches the coupon list.
func (c *CouponCache) Set(ctx context.Context, coupons []domain.PublicCoupon) error {
	if coupons == nil {
		coupons = []domain.PublicCoupon{}
	}
	return setJSON(ctx, c.client, couponsKey, "coupons", coupons, c.ttl)
}
