package consumer

import (
	"context"
	"errors"
	"fmt"

	orderdomain "github.com/wyfcoding/spotledger/internal/order/domain"
	"github.com/wyfcoding/spotledger/internal/wallet/application"
	walletdomain "github.com/wyfcoding/spotledger/internal/wallet/domain"
	"github.com/wyfcoding/spotledger/pkg/eventbus"
	"github.com/wyfcoding/spotledger/pkg/logger"
	"github.com/wyfcoding/spotledger/pkg/metrics"
	"github.com/wyfcoding/spotledger/pkg/mq"
)

// orderSubmittedVersion 当前消费的订单提交事件版本
const orderSubmittedVersion = 1

// OrderSubmittedHandler 在订单提交时预留资金
type OrderSubmittedHandler struct {
	walletService *application.WalletService
}

// NewOrderSubmittedHandler 创建订单提交事件处理器
func NewOrderSubmittedHandler(walletService *application.WalletService) *OrderSubmittedHandler {
	return &OrderSubmittedHandler{walletService: walletService}
}

// Handle 处理一条订单提交事件：按事件携带的资产与数额预留资金。
// 同一订单重复投递时预留已存在，按成功确认；
// 余额不足与校验失败重试无法修复，直接死信留痕。
func (h *OrderSubmittedHandler) Handle(ctx context.Context, env *eventbus.Envelope[orderdomain.OrderSubmittedEvent]) error {
	event := env.Payload

	_, err := h.walletService.Reserve(ctx, application.ReserveCommand{
		AccountID: event.AccountID,
		Asset:     event.ReserveAsset,
		Amount:    event.ReserveAmount,
		OrderID:   event.OrderID,
	})
	if err == nil {
		return nil
	}

	var validation *walletdomain.ValidationError
	if errors.As(err, &validation) {
		if validation.Field == "order_id" {
			logger.Debug(ctx, "reservation already exists, acknowledging redelivery",
				"order_id", event.OrderID,
			)
			return nil
		}
		return mq.NonRetryable(fmt.Errorf("reserve for order %s: %w", event.OrderID, err))
	}

	var insufficient *walletdomain.ErrInsufficientBalance
	if errors.As(err, &insufficient) {
		return mq.NonRetryable(fmt.Errorf("reserve for order %s: %w", event.OrderID, err))
	}

	return fmt.Errorf("reserve for order %s: %w", event.OrderID, err)
}

// NewOrderSubmittedAdapter 把处理器包装为带重试与死信的消费适配器
func NewOrderSubmittedAdapter(
	handler *OrderSubmittedHandler,
	policy mq.RetryPolicy,
	dlq mq.DeadLetterer,
	m *metrics.Metrics,
) (*mq.Adapter[orderdomain.OrderSubmittedEvent], error) {
	return mq.NewAdapter(
		orderdomain.OrderSubmittedEventType,
		orderSubmittedVersion,
		handler.Handle,
		policy,
		dlq,
		m,
	)
}
