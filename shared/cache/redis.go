package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"reservation-platform/shared/config"
)

// NewClient dials redis with the pool settings from cfg and pings it.
func NewClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.MaxConnections,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logrus.WithField("addr", cfg.Redis.Addr()).Info("Redis connection established")
	return client, nil
}

func SettingsKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("settings:tenant:%s", tenantID)
}

func AvailabilityKey(resourceID uuid.UUID, date string) string {
	return fmt.Sprintf("availability:resource:%s:%s", resourceID, date)
}

// Cache stores JSON snapshots with a TTL. Entries are last-writer-wins.
type Cache struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, expiration).Err()
}

// Get decodes the entry at key into dest. It reports false on a miss.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	return true, nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// DeletePattern removes every key matching pattern and returns how many
// were removed.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return removed, err
			}
			removed += len(keys)
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

// InvalidateAvailability drops the cached availability of a resource for
// the given dates, or for every date when none are given.
func (c *Cache) InvalidateAvailability(ctx context.Context, resourceID uuid.UUID, dates ...string) error {
	if len(dates) == 0 {
		_, err := c.DeletePattern(ctx, fmt.Sprintf("availability:resource:%s:*", resourceID))
		return err
	}
	keys := make([]string, 0, len(dates))
	for _, date := range dates {
		keys = append(keys, AvailabilityKey(resourceID, date))
	}
	return c.Delete(ctx, keys...)
}
