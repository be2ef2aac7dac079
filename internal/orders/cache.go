package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shopworks/ordersaga/internal/domain"
)

const (
	orderKeyPrefix = "order:"
	orderCacheTTL  = 60 * time.Second
)

// OrderCache is a Redis read-through cache for single-order lookups. The
// database stays authoritative: every write path invalidates the key, and a
// cache miss or Redis outage just falls back to the repository.
type OrderCache struct {
	client *redis.Client
}

func NewOrderCache(client *redis.Client) *OrderCache {
	return &OrderCache{client: client}
}

func (c *OrderCache) Get(ctx context.Context, id string) *domain.Order {
	data, err := c.client.Get(ctx, orderKeyPrefix+id).Bytes()
	if err != nil {
		return nil
	}

	var order domain.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil
	}
	return &order
}

func (c *OrderCache) Set(ctx context.Context, order *domain.Order) {
	data, err := json.Marshal(order)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, orderKeyPrefix+order.ID, data, orderCacheTTL).Err()
}

func (c *OrderCache) Invalidate(ctx context.Context, id string) {
	_ = c.client.Del(ctx, orderKeyPrefix+id).Err()
}
