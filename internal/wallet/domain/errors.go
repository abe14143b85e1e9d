package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationError 钱包参数校验错误，同步返回，从不重试
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid wallet request: %s %s", e.Field, e.Reason)
}

// ErrInsufficientBalance 余额不足。携带结构化字段，调用方无需解析字符串即可分支。
type ErrInsufficientBalance struct {
	AccountID string
	Asset     string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *ErrInsufficientBalance) Error() string {
	return fmt.Sprintf("insufficient balance: account=%s asset=%s requested=%s available=%s",
		e.AccountID, e.Asset, e.Requested, e.Available)
}
