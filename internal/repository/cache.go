package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

const (
	orderKeyPrefix   = "order:"
	userOrdersPrefix = "user_orders:"
	defaultCacheTTL  = 5 * time.Minute
)

// RedisOrderCache implements OrderCache using Redis.
type RedisOrderCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *logging.LoggerV2
}

func NewRedisOrderCache(client redis.UniversalClient, ttl time.Duration, logger *logging.LoggerV2) *RedisOrderCache {
	if ttl == 0 {
		ttl = defaultCacheTTL
	}
	return &RedisOrderCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns (nil, nil) on a miss.
func (c *RedisOrderCache) Get(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	hit, err := c.getJSON(ctx, orderKeyPrefix+id, &order)
	if err != nil || !hit {
		return nil, err
	}
	c.logger.Debug("Cache hit", logging.Fields{"order_id": id})
	return &order, nil
}

func (c *RedisOrderCache) Set(ctx context.Context, order *models.Order) error {
	return c.setJSON(ctx, orderKeyPrefix+order.ID, order)
}

func (c *RedisOrderCache) Delete(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, orderKeyPrefix+id).Err(); err != nil {
		c.logger.Error("Cache delete error", logging.Fields{"order_id": id, "error": err.Error()})
		return err
	}
	return nil
}

// GetFirstPage returns the cached first page for the limit, or (nil, nil).
func (c *RedisOrderCache) GetFirstPage(ctx context.Context, userID string, limit int) (*models.OrderList, error) {
	var list models.OrderList
	data, err := c.client.HGet(ctx, userOrdersPrefix+userID, fmt.Sprint(limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// SetFirstPage stores page one under a per-user hash keyed by limit, so a
// single DEL invalidates every cached page size.
func (c *RedisOrderCache) SetFirstPage(ctx context.Context, userID string, list *models.OrderList) error {
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	key := userOrdersPrefix + userID
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, fmt.Sprint(list.Limit), data)
	pipe.Expire(ctx, key, c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisOrderCache) InvalidateByUserID(ctx context.Context, userID string) error {
	return c.client.Del(ctx, userOrdersPrefix+userID).Err()
}

func (c *RedisOrderCache) getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		c.logger.Error("Cache get error", logging.Fields{"key": key, "error": err.Error()})
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisOrderCache) setJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Error("Cache set error", logging.Fields{"key": key, "error": err.Error()})
		return err
	}
	return nil
}
