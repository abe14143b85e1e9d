package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSubmittedEventType 订单提交事件类型
const OrderSubmittedEventType = "orders.submitted"

// OrderUpdatedEventType 订单状态变更事件类型
const OrderUpdatedEventType = "orders.updated"

// OrderSubmittedEvent 订单提交事件载荷。
// reserve_asset/reserve_amount 由订单服务按买卖方向折算：
// 买单锁计价资产，卖单锁基础资产。
type OrderSubmittedEvent struct {
	OrderID       string          `json:"order_id"`
	AccountID     string          `json:"account_id"`
	Symbol        string          `json:"symbol"`
	Side          OrderSide       `json:"side"`
	Type          OrderType       `json:"type"`
	Price         *string         `json:"price,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	ReserveAsset  string          `json:"reserve_asset"`
	ReserveAmount decimal.Decimal `json:"reserve_amount"`
	SubmittedAt   time.Time       `json:"submitted_at"`
}

// OrderUpdatedEvent 订单状态变更事件载荷。
// v3 在 v1 的基础上补充了 previous_status 与成交累计量。
type OrderUpdatedEvent struct {
	OrderID        string          `json:"order_id"`
	AccountID      string          `json:"account_id"`
	Symbol         string          `json:"symbol"`
	PreviousStatus OrderStatus     `json:"previous_status"`
	Status         OrderStatus     `json:"status"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
