package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EntryDirection 账本分录方向
type EntryDirection string

const (
	DirectionDebit  EntryDirection = "DEBIT"
	DirectionCredit EntryDirection = "CREDIT"
)

// Opposite 返回相反方向
func (d EntryDirection) Opposite() EntryDirection {
	if d == DirectionDebit {
		return DirectionCredit
	}
	return DirectionDebit
}

// LedgerEntry 复式账本分录，只追加，从不更新或删除。
// 同一 tx_id 下各资产的 CREDIT 总额等于 DEBIT 总额。
type LedgerEntry struct {
	gorm.Model
	// 账本事务 ID，同一事务内的分录共享
	TxID string `gorm:"column:tx_id;type:varchar(32);index;not null" json:"tx_id"`
	// 账户 ID
	AccountID string `gorm:"column:account_id;type:varchar(32);index;not null" json:"account_id"`
	// 资产代码
	Asset string `gorm:"column:asset;type:varchar(16);not null" json:"asset"`
	// 方向
	Direction EntryDirection `gorm:"column:direction;type:varchar(8);not null" json:"direction"`
	// 金额，> 0
	Amount decimal.Decimal `gorm:"column:amount;type:decimal(32,18);not null" json:"amount"`
	// 来源类型，如 ADMIN_ADJUSTMENT
	RefType string `gorm:"column:ref_type;type:varchar(32);not null" json:"ref_type"`
	// 来源 ID
	RefID string `gorm:"column:ref_id;type:varchar(64);index;not null" json:"ref_id"`
	// 业务发生时间
	OccurredAt time.Time `gorm:"column:occurred_at;not null" json:"occurred_at"`
}

// TableName 指定表名
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// LedgerTransaction 一组共享 tx_id 的分录
type LedgerTransaction struct {
	TxID    string
	Entries []LedgerEntry
}

// Balanced 校验每种资产的借贷是否平衡
func (t LedgerTransaction) Balanced() bool {
	sums := make(map[string]decimal.Decimal)
	for _, e := range t.Entries {
		delta := e.Amount
		if e.Direction == DirectionDebit {
			delta = delta.Neg()
		}
		sums[e.Asset] = sums[e.Asset].Add(delta)
	}
	for _, sum := range sums {
		if !sum.IsZero() {
			return false
		}
	}
	return true
}
