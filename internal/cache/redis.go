// Package cache is the Market Cache: a key-value store plus a publish/
// subscribe bus backed by redis/go-redis/v9, used for best-effort snapshot
// caching and fan-out of matching events.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/obcore/internal/config"
	"github.com/abdoElHodaky/obcore/internal/model"
)

// TTL ceilings: order-book and price snapshots live up to an hour, process
// flags up to five minutes since they need to self-heal quickly if a writer
// stops updating them.
const (
	bookTTL = time.Hour
	flagTTL = 5 * time.Minute
)

// MarketCache wraps a redis.Client with this service's key and channel
// conventions. Treated as best-effort throughout: a read miss falls back to
// the store, a write failure is logged and never propagated to the
// caller's path.
type MarketCache struct {
	client *redis.Client
	logger *zap.Logger
}

// New connects to Redis using cfg and returns a MarketCache.
func New(cfg *config.Config, logger *zap.Logger) (*MarketCache, error) {
	opts := &redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: 5,
		MaxRetries:   3,
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &MarketCache{client: client, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (c *MarketCache) Close() error { return c.client.Close() }

// Ping checks the Redis connection for the readiness probe.
func (c *MarketCache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

func orderbookKey(contract string) string { return "orderbook:" + contract }
func bestBidKey(contract string) string   { return fmt.Sprintf("market:%s:best_bid", contract) }
func bestOfferKey(contract string) string { return fmt.Sprintf("market:%s:best_offer", contract) }

const hasActiveOrdersKey = "matching:has_active_orders"
const lastRunKey = "matching:last_run"

// SetOrderBook caches the serialized active-order list for a contract.
func (c *MarketCache) SetOrderBook(ctx context.Context, contract string, orders []*model.Order) {
	data, err := json.Marshal(orders)
	if err != nil {
		c.logger.Warn("failed to marshal order book for cache", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, orderbookKey(contract), data, bookTTL).Err(); err != nil {
		c.logger.Warn("failed to cache order book", zap.String("contract", contract), zap.Error(err))
	}
}

// GetOrderBook returns the cached active-order list, if present and fresh.
func (c *MarketCache) GetOrderBook(ctx context.Context, contract string) ([]*model.Order, bool) {
	data, err := c.client.Get(ctx, orderbookKey(contract)).Bytes()
	if err != nil {
		return nil, false
	}
	var orders []*model.Order
	if err := json.Unmarshal(data, &orders); err != nil {
		c.logger.Warn("failed to unmarshal cached order book", zap.Error(err))
		return nil, false
	}
	return orders, true
}

// InvalidateOrderBook drops the cached order book for a contract; called on
// every write path (trade, update, cancel) so a stale snapshot never
// survives past the write that changed it.
func (c *MarketCache) InvalidateOrderBook(ctx context.Context, contract string) {
	if err := c.client.Del(ctx, orderbookKey(contract)).Err(); err != nil {
		c.logger.Warn("failed to invalidate order book cache", zap.String("contract", contract), zap.Error(err))
	}
}

// SetBestPrices refreshes the best-bid/best-offer snapshot keys.
func (c *MarketCache) SetBestPrices(ctx context.Context, contract string, bp model.BestPrice) {
	pipe := c.client.Pipeline()
	if bp.BestBid != nil {
		pipe.Set(ctx, bestBidKey(contract), *bp.BestBid, bookTTL)
	} else {
		pipe.Del(ctx, bestBidKey(contract))
	}
	if bp.BestOffer != nil {
		pipe.Set(ctx, bestOfferKey(contract), *bp.BestOffer, bookTTL)
	} else {
		pipe.Del(ctx, bestOfferKey(contract))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("failed to cache best prices", zap.String("contract", contract), zap.Error(err))
	}
}

// SetHasActiveOrders refreshes the process-wide flag the periodic pass
// checks before running, so an idle book doesn't pay for a full contract
// scan every tick.
func (c *MarketCache) SetHasActiveOrders(ctx context.Context, has bool) {
	if err := c.client.Set(ctx, hasActiveOrdersKey, has, flagTTL).Err(); err != nil {
		c.logger.Warn("failed to set has_active_orders flag", zap.Error(err))
	}
}

// HasActiveOrders reads the flag, defaulting to true (i.e. "don't skip")
// when the cache is unavailable or the flag has expired — a miss here must
// never silently starve matching.
func (c *MarketCache) HasActiveOrders(ctx context.Context) bool {
	val, err := c.client.Get(ctx, hasActiveOrdersKey).Bool()
	if err != nil {
		return true
	}
	return val
}

// RecordMatchRun stamps the last periodic match-pass time, read only by
// health checks.
func (c *MarketCache) RecordMatchRun(ctx context.Context, t time.Time) {
	if err := c.client.Set(ctx, lastRunKey, t.Format(time.RFC3339), flagTTL).Err(); err != nil {
		c.logger.Warn("failed to record match run timestamp", zap.Error(err))
	}
}

// Publish broadcasts a typed event on the channel named after its event type.
func (c *MarketCache) Publish(ctx context.Context, ev model.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		c.logger.Warn("failed to marshal event for publish", zap.Error(err))
		return
	}
	if err := c.client.Publish(ctx, string(ev.Type), payload).Err(); err != nil {
		c.logger.Warn("failed to publish event", zap.String("channel", string(ev.Type)), zap.Error(err))
	}
}

// Subscribe opens a subscription to one or more event channels and returns
// a channel of decoded events.
func (c *MarketCache) Subscribe(ctx context.Context, channels ...string) <-chan model.Event {
	sub := c.client.Subscribe(ctx, channels...)
	out := make(chan model.Event, 256)
	go func() {
		defer close(out)
		ch := sub.Channel()
		for msg := range ch {
			var ev model.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				c.logger.Warn("dropping malformed cache event", zap.Error(err))
				continue
			}
			out <- ev
		}
	}()
	return out
}
