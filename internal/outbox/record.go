// Package outbox 实现事务性发件箱：业务事务内追加事件行，中继异步可靠投递到总线
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wyfcoding/spotledger/pkg/eventbus"
)

// Status 发件箱行状态
type Status string

const (
	StatusNew        Status = "NEW"
	StatusProcessing Status = "PROCESSING"
	StatusPublished  Status = "PUBLISHED"
	StatusFailed     Status = "FAILED"
	StatusDead       Status = "DEAD"
)

// Record 发件箱行，每个待投递事件一行。
// 与业务写入在同一本地事务中创建，之后仅由中继修改，从不删除（留作审计）。
type Record struct {
	gorm.Model
	// 事件 ID，投递时作为信封 event_id
	EventID string `gorm:"column:event_id;type:varchar(36);uniqueIndex;not null" json:"event_id"`
	// 聚合类型，如 wallet
	AggregateType string `gorm:"column:aggregate_type;type:varchar(32);not null" json:"aggregate_type"`
	// 聚合 ID
	AggregateID string `gorm:"column:aggregate_id;type:varchar(64);index;not null" json:"aggregate_id"`
	// 事件类型，如 balances.updated
	EventType string `gorm:"column:event_type;type:varchar(64);not null" json:"event_type"`
	// 事件版本
	EventVersion int `gorm:"column:event_version;not null;default:1" json:"event_version"`
	// 事件载荷 JSON
	EventPayload string `gorm:"column:event_payload;type:text;not null" json:"event_payload"`
	// 目标主题
	Topic string `gorm:"column:topic;type:varchar(128);not null" json:"topic"`
	// 分区键
	EventKey string `gorm:"column:event_key;type:varchar(64);not null" json:"event_key"`
	// 关联 ID
	CorrelationID string `gorm:"column:correlation_id;type:varchar(64);not null" json:"correlation_id"`
	// 状态
	Status Status `gorm:"column:status;type:varchar(16);index;not null;default:'NEW'" json:"status"`
	// 发布尝试次数
	AttemptCount int `gorm:"column:attempt_count;not null;default:0" json:"attempt_count"`
	// 发布成功时间
	PublishedAt *time.Time `gorm:"column:published_at" json:"published_at,omitempty"`
	// 最近一次失败原因
	LastError string `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	// 下次可重试时间（FAILED 行）
	NextAttemptAt *time.Time `gorm:"column:next_attempt_at;index" json:"next_attempt_at,omitempty"`
	// 本次认领开始时间（PROCESSING 行），用于滞留回收
	ProcessingStartedAt *time.Time `gorm:"column:processing_started_at" json:"processing_started_at,omitempty"`
}

// TableName 指定表名
func (Record) TableName() string {
	return "outbox_events"
}

// NewRecord 构造 NEW 状态的发件箱行。主题名在入库前校验，
// 非法主题是配置错误，必须在任何 I/O 之前拒绝。
func NewRecord(aggregateType, aggregateID, eventType string, eventVersion int, topic, eventKey, correlationID string, payload any) (*Record, error) {
	if err := eventbus.ValidateTopic(topic); err != nil {
		return nil, err
	}
	if eventVersion < 1 {
		return nil, fmt.Errorf("outbox: event version must be >= 1, got %d", eventVersion)
	}
	if eventKey == "" {
		return nil, fmt.Errorf("outbox: event key is required")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("outbox: marshal payload: %w", err)
	}

	return &Record{
		EventID:       uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		EventVersion:  eventVersion,
		EventPayload:  string(data),
		Topic:         topic,
		EventKey:      eventKey,
		CorrelationID: correlationID,
		Status:        StatusNew,
	}, nil
}
