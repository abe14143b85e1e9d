package db

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// ContextWithTx 把事务句柄放入 context，供仓储在同一事务内执行
func ContextWithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext 取出 context 中的事务句柄，不存在时返回 fallback
func TxFromContext(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return fallback
}
