package mq

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wyfcoding/spotledger/pkg/eventbus"
	"github.com/wyfcoding/spotledger/pkg/logger"
	"github.com/wyfcoding/spotledger/pkg/metrics"
)

// RetryPolicy 消费重试策略
type RetryPolicy struct {
	// 最大尝试次数（含首次）
	MaxAttempts int
	// 退避参数
	Backoff Backoff
}

// Allow 判断第 attempt 次失败后是否还允许重试
func (p RetryPolicy) Allow(attempt int) bool {
	return attempt < p.MaxAttempts
}

// Handler 业务消息处理器
type Handler[T any] func(ctx context.Context, env *eventbus.Envelope[T]) error

// Adapter 把业务处理器包装为可靠消费：
// 元数据校验、信封解码、身份校验、带退避的重试与死信投递。
// 元数据/解码/身份错误是终态，重试无法修复，直接死信且不调用处理器。
type Adapter[T any] struct {
	expectedType    string
	expectedVersion int
	handler         Handler[T]
	policy          RetryPolicy
	dlq             DeadLetterer
	metrics         *metrics.Metrics

	// 测试钩子，默认按 context 感知的 sleep 实现
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAdapter 创建消费适配器
func NewAdapter[T any](eventType string, eventVersion int, handler Handler[T], policy RetryPolicy, dlq DeadLetterer, m *metrics.Metrics) (*Adapter[T], error) {
	if eventType == "" {
		return nil, fmt.Errorf("adapter: event type is required")
	}
	if eventVersion < 1 {
		return nil, fmt.Errorf("adapter: event version must be >= 1, got %d", eventVersion)
	}
	if handler == nil {
		return nil, fmt.Errorf("adapter: handler is required")
	}
	if policy.MaxAttempts < 1 {
		return nil, fmt.Errorf("adapter: max attempts must be >= 1, got %d", policy.MaxAttempts)
	}
	if dlq == nil {
		return nil, fmt.Errorf("adapter: dead letterer is required")
	}
	return &Adapter[T]{
		expectedType:    eventType,
		expectedVersion: eventVersion,
		handler:         handler,
		policy:          policy,
		dlq:             dlq,
		metrics:         m,
		sleep:           sleepCtx,
	}, nil
}

// Handle 处理一条消息。返回 nil 表示消息已了结（成功或已死信），
// 返回非 nil 表示连死信都未落地，调用方不应提交偏移量。
func (a *Adapter[T]) Handle(ctx context.Context, msg kafka.Message) error {
	correlationID, err := a.validateHeaders(msg)
	if err != nil {
		return a.deadLetter(ctx, msg, err)
	}
	ctx = logger.WithCorrelationID(ctx, correlationID)

	env, err := eventbus.Decode[T](msg.Value)
	if err != nil {
		return a.deadLetter(ctx, msg, err)
	}

	if env.EventType != a.expectedType || env.EventVersion != a.expectedVersion {
		return a.deadLetter(ctx, msg, fmt.Errorf(
			"unexpected event identity: got %s v%d, want %s v%d",
			env.EventType, env.EventVersion, a.expectedType, a.expectedVersion,
		))
	}

	attempt := 1
	for {
		err := a.handler(ctx, env)
		if err == nil {
			if a.metrics != nil {
				a.metrics.ConsumerSuccessTotal.WithLabelValues(msg.Topic).Inc()
			}
			logger.Debug(ctx, "message handled", "topic", msg.Topic, "event_id", env.EventID, "attempt", attempt)
			return nil
		}

		if IsNonRetryable(err) || !a.policy.Allow(attempt) {
			return a.deadLetter(ctx, msg, err)
		}

		wait := a.policy.Backoff.Duration(attempt)
		logger.Warn(ctx, "handler failed, retrying",
			"topic", msg.Topic,
			"event_id", env.EventID,
			"attempt", attempt,
			"backoff", wait,
			"error", err,
		)
		if a.metrics != nil {
			a.metrics.ConsumerRetriesTotal.WithLabelValues(msg.Topic).Inc()
		}

		if err := a.sleep(ctx, wait); err != nil {
			// 进程正在关停：放弃本条消息，等待重新投递
			return err
		}
		attempt++
	}
}

// validateHeaders 校验必需消息头，返回关联 ID
func (a *Adapter[T]) validateHeaders(msg kafka.Message) (string, error) {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[strings.ToLower(h.Key)] = string(h.Value)
	}

	eventType := headers[eventbus.HeaderEventType]
	if strings.TrimSpace(eventType) == "" {
		return "", fmt.Errorf("missing required header %s", eventbus.HeaderEventType)
	}

	rawVersion := headers[eventbus.HeaderEventVersion]
	version, err := strconv.Atoi(rawVersion)
	if err != nil || version < 1 {
		return "", fmt.Errorf("invalid header %s: %q", eventbus.HeaderEventVersion, rawVersion)
	}

	correlationID := headers[eventbus.HeaderCorrelationID]
	if strings.TrimSpace(correlationID) == "" {
		return "", fmt.Errorf("missing required header %s", eventbus.HeaderCorrelationID)
	}

	return correlationID, nil
}

func (a *Adapter[T]) deadLetter(ctx context.Context, msg kafka.Message, cause error) error {
	if err := a.dlq.Send(ctx, msg, cause); err != nil {
		// 死信落地失败是运维告警条件，不得吞掉
		logger.Error(ctx, "dead-letter delivery failed",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"cause", cause,
			"error", err,
		)
		return err
	}
	if a.metrics != nil {
		a.metrics.ConsumerDeadLetteredTotal.WithLabelValues(msg.Topic).Inc()
	}
	return nil
}

// sleepCtx 等待指定时长，context 取消时提前返回
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
