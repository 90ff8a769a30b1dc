package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"addrdir/backend/internal/domain"
)

// ForwardCounterPrefix 转发计数器键前缀，键格式 "fwd:<addressID>"
const ForwardCounterPrefix = "fwd:"

// QuotaTracker 基于 Redis 计数器的转发配额读取。
//
// 计数器由收信方使用 INCR 并在首次创建时 EXPIRE 24 小时，这里只读取。
type QuotaTracker struct {
	rdb goredis.Cmdable
}

// NewQuotaTracker 创建 Redis 配额读取器
func NewQuotaTracker(client *Client) *QuotaTracker {
	return &QuotaTracker{rdb: client.Client()}
}

// CounterKey 返回地址对应的计数器键
func CounterKey(addressID string) string {
	return ForwardCounterPrefix + addressID
}

// GetUsage 在一次往返中读取计数值与剩余生存时间。
func (q *QuotaTracker) GetUsage(ctx context.Context, addressID string) (domain.QuotaUsage, error) {
	key := CounterKey(addressID)

	pipe := q.rdb.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return domain.QuotaUsage{}, fmt.Errorf("failed to read forward counter: %w", err)
	}

	count, err := getCmd.Int64()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.QuotaUsage{}, nil
		}
		return domain.QuotaUsage{}, fmt.Errorf("invalid forward counter value: %w", err)
	}

	// TTL 对不存在或无过期的键返回负值
	usage := domain.QuotaUsage{Count: count}
	if ttl := ttlCmd.Val(); ttl > 0 {
		usage.TTL = ttl
	}
	return usage, nil
}
