// Package eventbus 定义总线消息的统一信封格式、JSON 编解码与主题命名规则
package eventbus

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// 必需的消息头
const (
	HeaderEventType     = "x-event-type"
	HeaderEventVersion  = "x-event-version"
	HeaderCorrelationID = "x-correlation-id"
	HeaderContentType   = "content-type"

	ContentTypeJSON = "application/json"
)

// Envelope 总线消息的统一外壳，构造后不可变
type Envelope[T any] struct {
	// 事件唯一 ID
	EventID uuid.UUID `json:"event_id"`
	// 事件类型，如 balances.updated
	EventType string `json:"event_type"`
	// 事件版本，>= 1
	EventVersion int `json:"event_version"`
	// 事件发生时间
	OccurredAt time.Time `json:"occurred_at"`
	// 生产者服务名
	Producer string `json:"producer"`
	// 关联 ID，贯穿一次业务调用
	CorrelationID string `json:"correlation_id"`
	// 触发本事件的上游事件 ID，可为空
	CausationID string `json:"causation_id,omitempty"`
	// 租户 ID，可为空
	TenantID string `json:"tenant_id,omitempty"`
	// 分区键
	Key string `json:"key"`
	// 业务载荷
	Payload T `json:"payload"`
}

// NewEnvelope 构造信封并校验必填字段
func NewEnvelope[T any](eventType string, eventVersion int, producer, correlationID, key string, payload T) (*Envelope[T], error) {
	e := &Envelope[T]{
		EventID:       uuid.New(),
		EventType:     strings.TrimSpace(eventType),
		EventVersion:  eventVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      strings.TrimSpace(producer),
		CorrelationID: strings.TrimSpace(correlationID),
		Key:           strings.TrimSpace(key),
		Payload:       payload,
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Envelope[T]) validate() error {
	if e.EventID == uuid.Nil {
		return fmt.Errorf("envelope: event_id is required")
	}
	if e.EventType == "" {
		return fmt.Errorf("envelope: event_type is required")
	}
	if e.EventVersion < 1 {
		return fmt.Errorf("envelope: event_version must be >= 1, got %d", e.EventVersion)
	}
	if e.Producer == "" {
		return fmt.Errorf("envelope: producer is required")
	}
	if e.CorrelationID == "" {
		return fmt.Errorf("envelope: correlation_id is required")
	}
	if e.Key == "" {
		return fmt.Errorf("envelope: key is required")
	}
	return nil
}

// Encode 将信封序列化为 JSON
func Encode[T any](e *Envelope[T]) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("envelope: nil envelope")
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("envelope: encode failed: %w", err)
	}
	return data, nil
}

// Decode 从 JSON 解析信封，并校验必填字段
func Decode[T any](data []byte) (*Envelope[T], error) {
	var e Envelope[T]
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("envelope: decode failed: %w", err)
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
