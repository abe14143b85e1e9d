// Package consumer 订单生命周期事件的入站消费端
package consumer

import (
	"context"
	"fmt"

	orderdomain "github.com/wyfcoding/spotledger/internal/order/domain"
	"github.com/wyfcoding/spotledger/internal/wallet/application"
	"github.com/wyfcoding/spotledger/pkg/eventbus"
	"github.com/wyfcoding/spotledger/pkg/logger"
	"github.com/wyfcoding/spotledger/pkg/metrics"
	"github.com/wyfcoding/spotledger/pkg/mq"
)

// orderUpdatedVersion 当前消费的订单事件版本
const orderUpdatedVersion = 3

// OrderEventHandler 响应订单终态，驱动预留资金的释放或消耗。
// 释放与消耗对缺失预留是幂等空操作，重复投递安全。
type OrderEventHandler struct {
	walletService *application.WalletService
}

// NewOrderEventHandler 创建订单事件处理器
func NewOrderEventHandler(walletService *application.WalletService) *OrderEventHandler {
	return &OrderEventHandler{walletService: walletService}
}

// Handle 处理一条订单状态变更：
// 取消/拒绝/过期 -> 释放预留回可用；完全成交 -> 消耗预留。
// 其余状态与本服务无关，直接确认。
func (h *OrderEventHandler) Handle(ctx context.Context, env *eventbus.Envelope[orderdomain.OrderUpdatedEvent]) error {
	event := env.Payload
	if event.OrderID == "" {
		return mq.NonRetryable(fmt.Errorf("order event missing order_id: event_id=%s", env.EventID))
	}

	switch event.Status {
	case orderdomain.OrderStatusCanceled, orderdomain.OrderStatusRejected, orderdomain.OrderStatusExpired:
		if err := h.walletService.Release(ctx, event.OrderID); err != nil {
			return fmt.Errorf("release reservation for order %s: %w", event.OrderID, err)
		}
	case orderdomain.OrderStatusFilled:
		if err := h.walletService.Consume(ctx, event.OrderID); err != nil {
			return fmt.Errorf("consume reservation for order %s: %w", event.OrderID, err)
		}
	default:
		logger.Debug(ctx, "order status requires no wallet action",
			"order_id", event.OrderID,
			"status", event.Status,
		)
	}
	return nil
}

// NewOrderUpdatedAdapter 把处理器包装为带重试与死信的消费适配器
func NewOrderUpdatedAdapter(
	handler *OrderEventHandler,
	policy mq.RetryPolicy,
	dlq mq.DeadLetterer,
	m *metrics.Metrics,
) (*mq.Adapter[orderdomain.OrderUpdatedEvent], error) {
	return mq.NewAdapter(
		orderdomain.OrderUpdatedEventType,
		orderUpdatedVersion,
		handler.Handle,
		policy,
		dlq,
		m,
	)
}
