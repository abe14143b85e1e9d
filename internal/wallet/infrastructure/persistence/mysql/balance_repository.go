// Package mysql 钱包仓储的 GORM 实现
package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/spotledger/internal/wallet/domain"
	"github.com/wyfcoding/spotledger/pkg/db"
)

// balanceRepository 余额仓储实现
type balanceRepository struct {
	db *gorm.DB
}

// NewBalanceRepository 创建余额仓储
func NewBalanceRepository(gdb *gorm.DB) domain.BalanceRepository {
	return &balanceRepository{db: gdb}
}

func (r *balanceRepository) getDB(ctx context.Context) *gorm.DB {
	return db.TxFromContext(ctx, r.db)
}

// GetForUpdate 行锁读取余额。并发的预留与调整在此串行化，
// 没有锁的读-改-写会重新引入丢失更新。
func (r *balanceRepository) GetForUpdate(ctx context.Context, accountID, asset string) (*domain.Balance, error) {
	var balance domain.Balance
	err := r.getDB(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ? AND asset = ?", accountID, asset).
		First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("wallet: get balance for update: %w", err)
	}
	return &balance, nil
}

func (r *balanceRepository) Get(ctx context.Context, accountID, asset string) (*domain.Balance, error) {
	var balance domain.Balance
	err := r.getDB(ctx).WithContext(ctx).
		Where("account_id = ? AND asset = ?", accountID, asset).
		First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("wallet: get balance: %w", err)
	}
	return &balance, nil
}

func (r *balanceRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.Balance, error) {
	var balances []*domain.Balance
	err := r.getDB(ctx).WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("asset").
		Find(&balances).Error
	if err != nil {
		return nil, fmt.Errorf("wallet: list balances: %w", err)
	}
	return balances, nil
}

func (r *balanceRepository) Save(ctx context.Context, balance *domain.Balance) error {
	if err := r.getDB(ctx).WithContext(ctx).Save(balance).Error; err != nil {
		return fmt.Errorf("wallet: save balance: %w", err)
	}
	return nil
}
