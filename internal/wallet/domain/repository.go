package domain

import (
	"context"
	"time"
)

// TxManager 事务边界。fn 内的所有仓储调用与 outbox 追加共用同一个本地事务。
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// BalanceRepository 余额仓储。
// GetForUpdate 必须以行锁（SELECT ... FOR UPDATE 或等价机制）读取，
// 防止并发读-改-写丢失更新。
type BalanceRepository interface {
	// GetForUpdate 行锁读取余额，不存在时返回 (nil, nil)
	GetForUpdate(ctx context.Context, accountID, asset string) (*Balance, error)
	// Get 普通读取余额，不存在时返回 (nil, nil)
	Get(ctx context.Context, accountID, asset string) (*Balance, error)
	// ListByAccount 列出账户全部资产余额
	ListByAccount(ctx context.Context, accountID string) ([]*Balance, error)
	// Save 创建或更新余额行
	Save(ctx context.Context, balance *Balance) error
}

// ReservationRepository 预留仓储
type ReservationRepository interface {
	// Create 插入新预留
	Create(ctx context.Context, reservation *Reservation) error
	// GetActiveByOrderID 行锁读取订单的 ACTIVE 预留，不存在时返回 (nil, nil)
	GetActiveByOrderID(ctx context.Context, orderID string) (*Reservation, error)
	// UpdateStatus 将预留迁移到终态
	UpdateStatus(ctx context.Context, reservationID string, status ReservationStatus, releasedAt time.Time) error
	// ListByAccount 分页列出账户预留
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*Reservation, int64, error)
}

// LedgerRepository 账本仓储，只追加
type LedgerRepository interface {
	// Append 追加一组平衡的分录
	Append(ctx context.Context, tx LedgerTransaction) error
	// ListByAccount 分页列出账户分录
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*LedgerEntry, int64, error)
	// ListByTxID 列出一个账本事务的全部分录
	ListByTxID(ctx context.Context, txID string) ([]*LedgerEntry, error)
}
