// Package idempotency 实现幂等保护：每个 (scope, key) 一条记录，
// 重复提交复用首次结果而不是重新执行副作用操作
package idempotency

import (
	"time"

	"gorm.io/gorm"
)

// Status 幂等记录状态
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// UnspecifiedError 空错误码的归一化哨兵值
const UnspecifiedError = "UNSPECIFIED_ERROR"

// Record 幂等记录。expires_at 只作记账：过期记录依然被查到并生效，
// 同一 key 不会静默复活。
type Record struct {
	gorm.Model
	// 作用域，通常为 "<METHOD>:<path>"，对本核心不透明
	Scope string `gorm:"column:scope;type:varchar(128);uniqueIndex:uk_scope_key;not null" json:"scope"`
	// 调用方提供的幂等键
	IdempotencyKey string `gorm:"column:idempotency_key;type:varchar(128);uniqueIndex:uk_scope_key;not null" json:"idempotency_key"`
	// 规范化请求哈希，同 key 不同哈希视为客户端错误
	RequestHash string `gorm:"column:request_hash;type:varchar(64);not null" json:"request_hash"`
	// 状态
	Status Status `gorm:"column:status;type:varchar(16);not null" json:"status"`
	// 首次执行的响应状态码（COMPLETED 时回放）
	ResponseCode int `gorm:"column:response_code" json:"response_code"`
	// 首次执行的响应体（COMPLETED 时回放）
	ResponseBody string `gorm:"column:response_body;type:text" json:"response_body"`
	// 失败错误码（FAILED 时记录）
	ErrorCode string `gorm:"column:error_code;type:varchar(64)" json:"error_code,omitempty"`
	// 过期时间，仅作记账
	ExpiresAt time.Time `gorm:"column:expires_at;not null" json:"expires_at"`
}

// TableName 指定表名
func (Record) TableName() string {
	return "idempotency_records"
}
