// Package domain 包含订单的领域模型与生命周期状态机
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusAck             OrderStatus = "ACK"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// IsTerminal 是否为终态
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// OrderSide 订单方向
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// Order 订单值对象。除 TransitionTo 外不提供修改入口，
// 每次状态迁移都产生一个新值并重新校验数量/价格不变量。
type Order struct {
	// 订单 ID
	OrderID string `json:"order_id"`
	// 账户 ID
	AccountID string `json:"account_id"`
	// 交易对符号
	Instrument string `json:"instrument"`
	// 买卖方向
	Side OrderSide `json:"side"`
	// 订单类型
	Type OrderType `json:"type"`
	// 数量
	Quantity decimal.Decimal `json:"quantity"`
	// 价格。LIMIT 必填且为正，MARKET 必须为空
	Price *decimal.Decimal `json:"price,omitempty"`
	// 订单状态
	Status OrderStatus `json:"status"`
	// 已成交数量
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	// 客户端订单 ID
	ClientOrderID string `json:"client_order_id,omitempty"`
	// 交易所订单 ID
	ExchangeOrderID string `json:"exchange_order_id,omitempty"`
	// 创建时间
	CreatedAt time.Time `json:"created_at"`
	// 最近更新时间
	UpdatedAt time.Time `json:"updated_at"`
}

// NewOrder 创建 NEW 状态的订单并校验不变量
func NewOrder(orderID, accountID, instrument string, side OrderSide, orderType OrderType, quantity decimal.Decimal, price *decimal.Decimal, clientOrderID string) (Order, error) {
	now := time.Now().UTC()
	o := Order{
		OrderID:        strings.TrimSpace(orderID),
		AccountID:      strings.TrimSpace(accountID),
		Instrument:     strings.TrimSpace(instrument),
		Side:           side,
		Type:           orderType,
		Quantity:       quantity,
		Price:          price,
		Status:         OrderStatusNew,
		FilledQuantity: decimal.Zero,
		ClientOrderID:  clientOrderID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := o.validate(); err != nil {
		return Order{}, err
	}
	return o, nil
}

// validate 校验数量/价格不变量
func (o Order) validate() error {
	if o.OrderID == "" {
		return &ValidationError{Field: "order_id", Reason: "must not be blank"}
	}
	if o.AccountID == "" {
		return &ValidationError{Field: "account_id", Reason: "must not be blank"}
	}
	if o.Instrument == "" {
		return &ValidationError{Field: "instrument", Reason: "must not be blank"}
	}
	if o.Side != OrderSideBuy && o.Side != OrderSideSell {
		return &ValidationError{Field: "side", Reason: "must be BUY or SELL"}
	}
	if !o.Quantity.IsPositive() {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	switch o.Type {
	case OrderTypeLimit:
		if o.Price == nil || !o.Price.IsPositive() {
			return &ValidationError{Field: "price", Reason: "limit order requires a positive price"}
		}
	case OrderTypeMarket:
		if o.Price != nil {
			return &ValidationError{Field: "price", Reason: "market order must not carry a price"}
		}
	default:
		return &ValidationError{Field: "type", Reason: "must be LIMIT or MARKET"}
	}
	if o.FilledQuantity.IsNegative() || o.FilledQuantity.GreaterThan(o.Quantity) {
		return &ValidationError{Field: "filled_quantity", Reason: "must satisfy 0 <= filled <= quantity"}
	}
	return nil
}

// GetRemainingQuantity 获取剩余数量
func (o Order) GetRemainingQuantity() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// TransitionTo 校验状态迁移与数量不变量后返回新的订单值
func (o Order) TransitionTo(status OrderStatus, filledQuantity decimal.Decimal) (Order, error) {
	if err := ValidateTransition(o.Status, status); err != nil {
		return Order{}, err
	}

	next := o
	next.Status = status
	next.FilledQuantity = filledQuantity
	next.UpdatedAt = time.Now().UTC()

	if err := next.validate(); err != nil {
		return Order{}, err
	}
	return next, nil
}
