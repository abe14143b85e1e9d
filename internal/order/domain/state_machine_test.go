package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct {
		from, to OrderStatus
	}{
		{OrderStatusNew, OrderStatusAck},
		{OrderStatusNew, OrderStatusRejected},
		{OrderStatusNew, OrderStatusCanceled},
		{OrderStatusNew, OrderStatusExpired},
		{OrderStatusAck, OrderStatusPartiallyFilled},
		{OrderStatusAck, OrderStatusFilled},
		{OrderStatusAck, OrderStatusCanceled},
		{OrderStatusAck, OrderStatusExpired},
		{OrderStatusAck, OrderStatusRejected},
		{OrderStatusPartiallyFilled, OrderStatusPartiallyFilled},
		{OrderStatusPartiallyFilled, OrderStatusFilled},
		{OrderStatusPartiallyFilled, OrderStatusCanceled},
		{OrderStatusPartiallyFilled, OrderStatusExpired},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct {
		from, to OrderStatus
	}{
		{OrderStatusNew, OrderStatusFilled},
		{OrderStatusNew, OrderStatusPartiallyFilled},
		{OrderStatusNew, OrderStatusNew},
		{OrderStatusAck, OrderStatusNew},
		{OrderStatusAck, OrderStatusAck},
		{OrderStatusPartiallyFilled, OrderStatusAck},
		{OrderStatusPartiallyFilled, OrderStatusRejected},
		{OrderStatusFilled, OrderStatusCanceled},
		{OrderStatusCanceled, OrderStatusAck},
		{OrderStatusRejected, OrderStatusNew},
		{OrderStatusExpired, OrderStatusFilled},
		{OrderStatus("BOGUS"), OrderStatusAck},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be denied", tc.from, tc.to)
	}
}

func TestTerminalStatesHaveNoOutgoingEdges(t *testing.T) {
	all := []OrderStatus{
		OrderStatusNew, OrderStatusAck, OrderStatusPartiallyFilled,
		OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired,
	}
	for _, from := range all {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "terminal %s must not transition to %s", from, to)
		}
	}
}

func TestValidateTransitionError(t *testing.T) {
	err := ValidateTransition(OrderStatusFilled, OrderStatusCanceled)
	var invalid *ErrInvalidTransition
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, OrderStatusFilled, invalid.From)
	assert.Equal(t, OrderStatusCanceled, invalid.To)

	assert.NoError(t, ValidateTransition(OrderStatusNew, OrderStatusAck))
}

func TestTransitionToRevalidatesQuantities(t *testing.T) {
	price := decimal.NewFromInt(100)
	order, err := NewOrder("ord-1", "acct-1", "BTC-USDT", OrderSideBuy, OrderTypeLimit, decimal.NewFromInt(10), &price, "")
	require.NoError(t, err)

	acked, err := order.TransitionTo(OrderStatusAck, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusAck, acked.Status)

	partial, err := acked.TransitionTo(OrderStatusPartiallyFilled, decimal.NewFromInt(4))
	require.NoError(t, err)
	assert.True(t, partial.GetRemainingQuantity().Equal(decimal.NewFromInt(6)))

	// 累计成交不得超过订单数量
	_, err = partial.TransitionTo(OrderStatusPartiallyFilled, decimal.NewFromInt(11))
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "filled_quantity", validation.Field)

	filled, err := partial.TransitionTo(OrderStatusFilled, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, filled.Status.IsTerminal())

	_, err = filled.TransitionTo(OrderStatusCanceled, decimal.NewFromInt(10))
	var invalid *ErrInvalidTransition
	require.ErrorAs(t, err, &invalid)
}

func TestNewOrderPriceRules(t *testing.T) {
	price := decimal.NewFromInt(100)

	_, err := NewOrder("ord-1", "acct-1", "BTC-USDT", OrderSideBuy, OrderTypeLimit, decimal.NewFromInt(1), nil, "")
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "price", validation.Field)

	_, err = NewOrder("ord-2", "acct-1", "BTC-USDT", OrderSideSell, OrderTypeMarket, decimal.NewFromInt(1), &price, "")
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "price", validation.Field)

	order, err := NewOrder("ord-3", "acct-1", "BTC-USDT", OrderSideSell, OrderTypeMarket, decimal.NewFromInt(1), nil, "")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusNew, order.Status)
	assert.True(t, order.FilledQuantity.IsZero())
}
