// Package persistence 组合 mysql 与 redis 的余额读路径
package persistence

import (
	"context"

	"github.com/wyfcoding/spotledger/internal/wallet/domain"
	"github.com/wyfcoding/spotledger/internal/wallet/infrastructure/persistence/redis"
	"github.com/wyfcoding/spotledger/pkg/logger"
)

// CompositeBalanceRepository 读穿透：Get 先查缓存，未命中回源并回填；
// 写路径全部直达 mysql，写后使缓存失效。缓存故障只记日志，不影响主路径。
type CompositeBalanceRepository struct {
	primary domain.BalanceRepository
	cache   *redis.BalanceCache
}

// NewCompositeBalanceRepository 创建组合仓储
func NewCompositeBalanceRepository(primary domain.BalanceRepository, cache *redis.BalanceCache) domain.BalanceRepository {
	return &CompositeBalanceRepository{primary: primary, cache: cache}
}

// GetForUpdate 锁读必须走数据库，缓存不参与
func (r *CompositeBalanceRepository) GetForUpdate(ctx context.Context, accountID, asset string) (*domain.Balance, error) {
	return r.primary.GetForUpdate(ctx, accountID, asset)
}

func (r *CompositeBalanceRepository) Get(ctx context.Context, accountID, asset string) (*domain.Balance, error) {
	if cached, err := r.cache.Get(ctx, accountID, asset); err == nil && cached != nil {
		return cached, nil
	} else if err != nil {
		logger.Warn(ctx, "balance cache read failed", "account_id", accountID, "asset", asset, "error", err)
	}

	balance, err := r.primary.Get(ctx, accountID, asset)
	if err != nil {
		return nil, err
	}
	if balance != nil {
		if err := r.cache.Set(ctx, balance); err != nil {
			logger.Warn(ctx, "balance cache write failed", "account_id", accountID, "asset", asset, "error", err)
		}
	}
	return balance, nil
}

func (r *CompositeBalanceRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.Balance, error) {
	return r.primary.ListByAccount(ctx, accountID)
}

func (r *CompositeBalanceRepository) Save(ctx context.Context, balance *domain.Balance) error {
	if err := r.primary.Save(ctx, balance); err != nil {
		return err
	}
	if err := r.cache.Invalidate(ctx, balance.AccountID, balance.Asset); err != nil {
		logger.Warn(ctx, "balance cache invalidation failed", "account_id", balance.AccountID, "asset", balance.Asset, "error", err)
	}
	return nil
}
