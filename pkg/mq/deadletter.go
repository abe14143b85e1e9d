package mq

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wyfcoding/spotledger/pkg/eventbus"
	"github.com/wyfcoding/spotledger/pkg/logger"
)

// 死信消息附加的消息头
const (
	HeaderDLQSourceTopic     = "x-dlq-source-topic"
	HeaderDLQSourcePartition = "x-dlq-source-partition"
	HeaderDLQSourceOffset    = "x-dlq-source-offset"
	HeaderDLQErrorClass      = "x-dlq-error-class"
	HeaderDLQErrorMessage    = "x-dlq-error-message"
	HeaderDLQFailedAt        = "x-dlq-failed-at"
)

// DeadLetterer 死信投递接口
type DeadLetterer interface {
	Send(ctx context.Context, msg kafka.Message, cause error) error
}

// DeadLetterQueue 将无法处理的消息原样转发到派生的 .dlq 主题
type DeadLetterQueue struct {
	producer Producer
	// 为 true 时剥离原始载荷，只保留元数据（载荷含敏感数据时使用）
	stripPayload bool
}

// NewDeadLetterQueue 创建死信投递器
func NewDeadLetterQueue(producer Producer, stripPayload bool) *DeadLetterQueue {
	return &DeadLetterQueue{producer: producer, stripPayload: stripPayload}
}

// Send 投递死信。投递失败的错误必须向上传播，不允许静默吞掉。
func (d *DeadLetterQueue) Send(ctx context.Context, msg kafka.Message, cause error) error {
	dlqTopic, err := eventbus.DLQTopic(msg.Topic)
	if err != nil {
		return fmt.Errorf("dead-letter: cannot derive dlq topic: %w", err)
	}

	headers := make([]kafka.Header, 0, len(msg.Headers)+6)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderDLQSourceTopic, Value: []byte(msg.Topic)},
		kafka.Header{Key: HeaderDLQSourcePartition, Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: HeaderDLQSourceOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: HeaderDLQErrorClass, Value: []byte(fmt.Sprintf("%T", cause))},
		kafka.Header{Key: HeaderDLQErrorMessage, Value: []byte(cause.Error())},
		kafka.Header{Key: HeaderDLQFailedAt, Value: []byte(time.Now().UTC().Format(time.RFC3339))},
	)

	value := msg.Value
	if d.stripPayload {
		value = nil
	}

	if err := d.producer.Publish(ctx, dlqTopic, string(msg.Key), value, headers...); err != nil {
		return fmt.Errorf("dead-letter: publish to %s failed: %w", dlqTopic, err)
	}

	logger.Warn(ctx, "message dead-lettered",
		"source_topic", msg.Topic,
		"dlq_topic", dlqTopic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"error", cause,
	)
	return nil
}
