// Package domain 钱包引擎的领域模型：余额、预留与复式账本
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Balance 钱包余额，每个 (account_id, asset) 一行。
// available 与 reserved 永远非负，二者之和是该资产的全部持仓。
// 首次入金或预留时懒创建，从不删除。
type Balance struct {
	gorm.Model
	// 账户 ID
	AccountID string `gorm:"column:account_id;type:varchar(32);uniqueIndex:uk_account_asset;not null" json:"account_id"`
	// 资产代码，统一大写
	Asset string `gorm:"column:asset;type:varchar(16);uniqueIndex:uk_account_asset;not null" json:"asset"`
	// 可用余额
	Available decimal.Decimal `gorm:"column:available;type:decimal(32,18);default:0;not null" json:"available"`
	// 预留余额
	Reserved decimal.Decimal `gorm:"column:reserved;type:decimal(32,18);default:0;not null" json:"reserved"`
}

// TableName 指定表名
func (Balance) TableName() string {
	return "wallet_balances"
}

// Total 该资产的总持仓
func (b *Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Reserved)
}

// ReservationStatus 预留状态
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "ACTIVE"
	ReservationStatusConsumed  ReservationStatus = "CONSUMED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

// Reservation 针对某订单的资金预留。
// 同一 order_id 任意时刻至多存在一条 ACTIVE 预留。
type Reservation struct {
	gorm.Model
	// 预留 ID (业务主键)
	ReservationID string `gorm:"column:reservation_id;type:varchar(32);uniqueIndex;not null" json:"reservation_id"`
	// 账户 ID
	AccountID string `gorm:"column:account_id;type:varchar(32);index;not null" json:"account_id"`
	// 资产代码
	Asset string `gorm:"column:asset;type:varchar(16);not null" json:"asset"`
	// 预留金额，> 0
	Amount decimal.Decimal `gorm:"column:amount;type:decimal(32,18);not null" json:"amount"`
	// 关联订单 ID
	OrderID string `gorm:"column:order_id;type:varchar(32);index;not null" json:"order_id"`
	// 状态
	Status ReservationStatus `gorm:"column:status;type:varchar(16);index;not null" json:"status"`
	// 终结时间（释放或消耗）
	ReleasedAt *time.Time `gorm:"column:released_at" json:"released_at,omitempty"`
}

// TableName 指定表名
func (Reservation) TableName() string {
	return "wallet_reservations"
}

// NormalizeAsset 资产代码去空白并转大写，空串视为校验错误
func NormalizeAsset(asset string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(asset))
	if normalized == "" {
		return "", &ValidationError{Field: "asset", Reason: "must not be blank"}
	}
	return normalized, nil
}
