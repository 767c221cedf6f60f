package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/gunjou/be-toko-yani/internal/domain"
)

type RedisDebtTotalCache struct {
	client *redis.Client
}

func NewRedisDebtTotalCache(addr string, password string, db int) *RedisDebtTotalCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisDebtTotalCache{client: client}
}

func (c *RedisDebtTotalCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisDebtTotalCache) Close() error {
	return c.client.Close()
}

func key(customerID int64) string {
	return fmt.Sprintf("debt-total:%d", customerID)
}

func (c *RedisDebtTotalCache) Get(ctx context.Context, customerID int64) (*domain.CustomerDebtTotal, bool, error) {
	val, err := c.client.Get(ctx, key(customerID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var total domain.CustomerDebtTotal
	if err := json.Unmarshal([]byte(val), &total); err != nil {
		return nil, false, err
	}
	return &total, true, nil
}

func (c *RedisDebtTotalCache) Set(ctx context.Context, customerID int64, value *domain.CustomerDebtTotal, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(customerID), payload, ttl).Err()
}

func (c *RedisDebtTotalCache) Invalidate(ctx context.Context, customerID int64) error {
	return c.client.Del(ctx, key(customerID)).Err()
}
