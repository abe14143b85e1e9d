package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// 集成事件类型
const (
	BalanceUpdatedEventType = "balances.updated"
)

// BalanceUpdatedEvent 余额变更集成事件。
// 每次余额变更都在同一事务内写入 outbox 一行，由中继异步投递到总线。
type BalanceUpdatedEvent struct {
	AccountID string          `json:"account_id"`
	Asset     string          `json:"asset"`
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
	// 触发来源：RESERVE, RELEASE, CONSUME, ADJUSTMENT
	Cause string `json:"cause"`
	// 来源 ID（预留 ID 或调整 ID）
	RefID     string    `json:"ref_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EventPublisher 集成事件出口。实现方必须把事件追加进调用方的本地事务，
// 而不是直接发往总线。
type EventPublisher interface {
	PublishBalanceUpdated(ctx context.Context, event BalanceUpdatedEvent) error
}
