// Package redis 余额的只读缓存层
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/spotledger/internal/wallet/domain"
	"github.com/wyfcoding/spotledger/pkg/cache"
)

// BalanceCache 余额读缓存。资金正确性锚定在数据库事务上，
// 缓存只服务查询路径，过期或失效时回源。
type BalanceCache struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

// NewBalanceCache 创建余额缓存
func NewBalanceCache(c *cache.RedisCache, ttl time.Duration) *BalanceCache {
	return &BalanceCache{cache: c, ttl: ttl}
}

func balanceKey(accountID, asset string) string {
	return fmt.Sprintf("wallet:balance:%s:%s", accountID, asset)
}

// Get 读取缓存余额，未命中返回 (nil, nil)
func (c *BalanceCache) Get(ctx context.Context, accountID, asset string) (*domain.Balance, error) {
	var balance domain.Balance
	hit, err := c.cache.GetJSON(ctx, balanceKey(accountID, asset), &balance)
	if err != nil || !hit {
		return nil, err
	}
	return &balance, nil
}

// Set 写入缓存余额
func (c *BalanceCache) Set(ctx context.Context, balance *domain.Balance) error {
	return c.cache.SetJSON(ctx, balanceKey(balance.AccountID, balance.Asset), balance, c.ttl)
}

// Invalidate 使缓存失效
func (c *BalanceCache) Invalidate(ctx context.Context, accountID, asset string) error {
	return c.cache.Delete(ctx, balanceKey(accountID, asset))
}
