package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/mentorbooking/config"
	"github.com/Domenick1991/mentorbooking/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client   redis.Cmdable
	slotsTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, slotsTTL time.Duration) *RedisCache {
	return NewRedisCacheWithClient(
		redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		slotsTTL,
	)
}

func NewRedisCacheWithClient(client redis.Cmdable, slotsTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, slotsTTL: slotsTTL}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetAvailableSlots returns nil, nil on a miss.
func (c *RedisCache) GetAvailableSlots(ctx context.Context, mentorID int64, day string) ([]domain.Slot, error) {
	data, err := c.client.Get(ctx, slotsKey(mentorID, day)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var slots []domain.Slot
	if err := json.Unmarshal(data, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

func (c *RedisCache) SetAvailableSlots(ctx context.Context, mentorID int64, day string, slots []domain.Slot) error {
	if slots == nil {
		slots = []domain.Slot{}
	}
	payload, err := json.Marshal(slots)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, slotsKey(mentorID, day), payload, c.slotsTTL).Err()
}

// InvalidateSlots drops the cached listing of the given day and the
// all-days listing of the mentor.
func (c *RedisCache) InvalidateSlots(ctx context.Context, mentorID int64, day string) error {
	return c.client.Del(ctx, slotsKey(mentorID, day), slotsKey(mentorID, "")).Err()
}

// ReserveIdempotencyKey claims key for an in-flight request. It reports
// false when the key was already claimed or completed.
func (c *RedisCache) ReserveIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, idempotencyKey(key), pendingMarker, ttl).Result()
}

// GetIdempotentResponse returns the stored response for key. ok is false
// while the original request is still running or when nothing is stored.
func (c *RedisCache) GetIdempotentResponse(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, idempotencyKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if string(data) == pendingMarker {
		return nil, false, nil
	}
	return data, true, nil
}

func (c *RedisCache) SaveIdempotentResponse(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	return c.client.Set(ctx, idempotencyKey(key), response, ttl).Err()
}

func (c *RedisCache) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return c.client.Del(ctx, idempotencyKey(key)).Err()
}

const pendingMarker = "pending"

func slotsKey(mentorID int64, day string) string {
	if day == "" {
		day = "all"
	}
	return fmt.Sprintf("cache:slots:mentor:%d:%s", mentorID, day)
}

func idempotencyKey(key string) string {
	return "idem:checkout:" + key
}
