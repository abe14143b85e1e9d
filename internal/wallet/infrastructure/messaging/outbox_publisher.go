// Package messaging 集成事件出口，使用 Outbox 模式
package messaging

import (
	"context"

	"github.com/google/uuid"

	"github.com/wyfcoding/spotledger/internal/outbox"
	"github.com/wyfcoding/spotledger/internal/wallet/domain"
	"github.com/wyfcoding/spotledger/pkg/eventbus"
	"github.com/wyfcoding/spotledger/pkg/logger"
)

const aggregateTypeWallet = "wallet"

// OutboxEventPublisher 实现 domain.EventPublisher。
// 事件不直接上总线，而是在调用方事务内写入 outbox，由中继异步投递。
type OutboxEventPublisher struct {
	store outbox.Store
}

// NewOutboxEventPublisher 创建事件出口
func NewOutboxEventPublisher(store outbox.Store) *OutboxEventPublisher {
	return &OutboxEventPublisher{store: store}
}

// PublishBalanceUpdated 追加余额变更事件，分区键为账户 ID，
// 同一账户的事件落在同一分区保持有序。
func (p *OutboxEventPublisher) PublishBalanceUpdated(ctx context.Context, event domain.BalanceUpdatedEvent) error {
	correlationID := logger.CorrelationID(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	record, err := outbox.NewRecord(
		aggregateTypeWallet,
		event.AccountID,
		domain.BalanceUpdatedEventType,
		1,
		eventbus.TopicBalancesUpdated,
		event.AccountID,
		correlationID,
		event,
	)
	if err != nil {
		return err
	}
	return p.store.Append(ctx, record)
}
