package mysql

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/wyfcoding/spotledger/internal/wallet/domain"
	"github.com/wyfcoding/spotledger/pkg/db"
)

// ledgerRepository 账本仓储实现，只追加
type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository 创建账本仓储
func NewLedgerRepository(gdb *gorm.DB) domain.LedgerRepository {
	return &ledgerRepository{db: gdb}
}

func (r *ledgerRepository) getDB(ctx context.Context) *gorm.DB {
	return db.TxFromContext(ctx, r.db)
}

// Append 追加一组分录。入库前校验借贷平衡，分录从不更新或删除。
func (r *ledgerRepository) Append(ctx context.Context, tx domain.LedgerTransaction) error {
	if len(tx.Entries) == 0 {
		return fmt.Errorf("wallet: ledger transaction %s has no entries", tx.TxID)
	}
	if !tx.Balanced() {
		return fmt.Errorf("wallet: ledger transaction %s is not balanced", tx.TxID)
	}
	for i := range tx.Entries {
		if !tx.Entries[i].Amount.IsPositive() {
			return fmt.Errorf("wallet: ledger entry amount must be positive in %s", tx.TxID)
		}
	}

	if err := r.getDB(ctx).WithContext(ctx).Create(&tx.Entries).Error; err != nil {
		return fmt.Errorf("wallet: append ledger entries: %w", err)
	}
	return nil
}

func (r *ledgerRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.LedgerEntry, int64, error) {
	query := r.getDB(ctx).WithContext(ctx).Model(&domain.LedgerEntry{}).
		Where("account_id = ?", accountID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("wallet: count ledger entries: %w", err)
	}

	var entries []*domain.LedgerEntry
	err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("wallet: list ledger entries: %w", err)
	}
	return entries, total, nil
}

func (r *ledgerRepository) ListByTxID(ctx context.Context, txID string) ([]*domain.LedgerEntry, error) {
	var entries []*domain.LedgerEntry
	err := r.getDB(ctx).WithContext(ctx).
		Where("tx_id = ?", txID).
		Order("id").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("wallet: list ledger entries by tx: %w", err)
	}
	return entries, nil
}
