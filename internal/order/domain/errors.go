package domain

import "fmt"

// ValidationError 订单字段校验错误
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order: %s %s", e.Field, e.Reason)
}

// ErrInvalidTransition 非法的订单状态迁移
type ErrInvalidTransition struct {
	From OrderStatus
	To   OrderStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid order status transition: %s -> %s", e.From, e.To)
}
