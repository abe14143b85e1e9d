// Package mq 提供 Kafka producer/consumer 封装，以及带重试、退避、死信的消费适配器
package mq

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wyfcoding/spotledger/pkg/eventbus"
	"github.com/wyfcoding/spotledger/pkg/logger"
)

// Config Kafka 配置
type Config struct {
	Brokers        []string
	GroupID        string
	SessionTimeout int
	MaxRetries     int
	RetryBackoff   int
}

// Producer 消息发布接口，outbox 中继与死信投递都经由它
type Producer interface {
	Publish(ctx context.Context, topic, key string, value []byte, headers ...kafka.Header) error
}

// KafkaProducer Kafka 生产者
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewProducer 创建 Kafka 生产者
func NewProducer(cfg Config) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		AllowAutoTopicCreation: true,
		Compression:            kafka.Gzip,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            cfg.MaxRetries,
		WriteBackoffMin:        time.Duration(cfg.RetryBackoff) * time.Millisecond,
		WriteBackoffMax:        time.Duration(cfg.RetryBackoff*10) * time.Millisecond,
	}

	logger.Info(context.Background(), "kafka producer created", "brokers", cfg.Brokers)
	return &KafkaProducer{writer: writer}
}

// Publish 发送单条消息，主题名在任何 I/O 之前校验
func (p *KafkaProducer) Publish(ctx context.Context, topic, key string, value []byte, headers ...kafka.Header) error {
	if err := eventbus.ValidateTopic(topic); err != nil {
		return err
	}

	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   value,
		Headers: headers,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		logger.Error(ctx, "failed to publish message", "topic", topic, "key", key, "error", err)
		return err
	}

	logger.Debug(ctx, "message published", "topic", topic, "key", key)
	return nil
}

// Close 关闭生产者
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// KafkaConsumer Kafka 消费者。偏移量在处理完成（成功或死信）后才提交，
// 因此交付语义是 at-least-once，处理器必须幂等。
type KafkaConsumer struct {
	reader *kafka.Reader
}

// NewConsumer 创建指定主题的 Kafka 消费者
func NewConsumer(cfg Config, topic string) (*KafkaConsumer, error) {
	if err := eventbus.ValidateTopic(topic); err != nil {
		return nil, err
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.GroupID,
		SessionTimeout: time.Duration(cfg.SessionTimeout) * time.Second,
		StartOffset:    kafka.FirstOffset,
		MaxBytes:       10e6, // 10MB
	})

	logger.Info(context.Background(), "kafka consumer created",
		"brokers", cfg.Brokers,
		"topic", topic,
		"group_id", cfg.GroupID,
	)
	return &KafkaConsumer{reader: reader}, nil
}

// Fetch 拉取一条消息，不提交偏移量
func (c *KafkaConsumer) Fetch(ctx context.Context) (kafka.Message, error) {
	return c.reader.FetchMessage(ctx)
}

// Commit 提交消息偏移量
func (c *KafkaConsumer) Commit(ctx context.Context, msgs ...kafka.Message) error {
	return c.reader.CommitMessages(ctx, msgs...)
}

// Close 关闭消费者
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

// Run 循环消费：拉取、交给 handle 处理、处理返回后提交偏移量。
// handle 返回错误说明连死信都未能落地，此时不提交偏移量，等待重新投递。
func (c *KafkaConsumer) Run(ctx context.Context, handle func(ctx context.Context, msg kafka.Message) error) error {
	for {
		msg, err := c.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error(ctx, "failed to fetch message", "error", err)
			continue
		}

		if err := handle(ctx, msg); err != nil {
			logger.Error(ctx, "message processing failed, offset not committed",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}

		if err := c.Commit(ctx, msg); err != nil {
			logger.Error(ctx, "failed to commit offset", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
	}
}
