package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"polymirror/internal/models"
)

// TradePublisher hands newly observed trades to downstream consumers.
type TradePublisher interface {
	PublishTrade(ctx context.Context, item *models.TradeActivity) error
}

// RedisTradePublisher appends trades to a capped Redis stream.
type RedisTradePublisher struct {
	Client *redis.Client
	Stream string
	MaxLen int64
}

func NewRedisTradePublisher(opt *redis.Options, stream string, maxLen int64) *RedisTradePublisher {
	return &RedisTradePublisher{
		Client: redis.NewClient(opt),
		Stream: stream,
		MaxLen: maxLen,
	}
}

func (p *RedisTradePublisher) PublishTrade(ctx context.Context, item *models.TradeActivity) error {
	if p == nil || p.Client == nil {
		return fmt.Errorf("redis publisher not configured")
	}
	if item == nil {
		return nil
	}
	return p.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.Stream,
		MaxLen: p.MaxLen,
		Approx: p.MaxLen > 0,
		Values: tradeStreamFields(item),
	}).Err()
}

func (p *RedisTradePublisher) Close() error {
	if p == nil || p.Client == nil {
		return nil
	}
	return p.Client.Close()
}

func tradeStreamFields(item *models.TradeActivity) map[string]any {
	return map[string]any{
		"id":               strconv.FormatUint(item.ID, 10),
		"wallet":           item.Wallet,
		"transaction_hash": item.TransactionHash,
		"asset":            item.Asset,
		"condition_id":     item.ConditionID,
		"side":             item.Side,
		"size":             item.Size.String(),
		"price":            item.Price.String(),
		"usdc_size":        item.USDCSize.String(),
		"timestamp":        strconv.FormatInt(item.Timestamp, 10),
		"title":            item.Title,
		"outcome":          item.Outcome,
	}
}
