package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/wyfcoding/spotledger/internal/wallet/domain"
	"github.com/wyfcoding/spotledger/pkg/db"
)

// txManager 基于 GORM 事务的 TxManager 实现。
// 事务句柄放进 context 传递，fn 内的仓储与 outbox 调用都落在同一事务。
type txManager struct {
	db *gorm.DB
}

// NewTxManager 创建事务管理器
func NewTxManager(gdb *gorm.DB) domain.TxManager {
	return &txManager{db: gdb}
}

func (m *txManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(db.ContextWithTx(ctx, tx))
	})
}
