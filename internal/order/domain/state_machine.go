package domain

// transitions 订单生命周期允许的状态迁移表。
// PARTIALLY_FILLED -> PARTIALLY_FILLED 合法，对应连续的部分成交。
// FILLED / CANCELED / REJECTED / EXPIRED 为终态，无出边。
var transitions = map[OrderStatus]map[OrderStatus]struct{}{
	OrderStatusNew: {
		OrderStatusAck:      {},
		OrderStatusRejected: {},
		OrderStatusCanceled: {},
		OrderStatusExpired:  {},
	},
	OrderStatusAck: {
		OrderStatusPartiallyFilled: {},
		OrderStatusFilled:          {},
		OrderStatusCanceled:        {},
		OrderStatusExpired:         {},
		OrderStatusRejected:        {},
	},
	OrderStatusPartiallyFilled: {
		OrderStatusPartiallyFilled: {},
		OrderStatusFilled:          {},
		OrderStatusCanceled:        {},
		OrderStatusExpired:         {},
	},
}

// CanTransition 判断订单状态迁移是否合法
func CanTransition(from, to OrderStatus) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// ValidateTransition 非法迁移时返回 ErrInvalidTransition
func ValidateTransition(from, to OrderStatus) error {
	if !CanTransition(from, to) {
		return &ErrInvalidTransition{From: from, To: to}
	}
	return nil
}
