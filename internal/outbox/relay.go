package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/wyfcoding/spotledger/pkg/eventbus"
	"github.com/wyfcoding/spotledger/pkg/logger"
	"github.com/wyfcoding/spotledger/pkg/metrics"
	"github.com/wyfcoding/spotledger/pkg/mq"
)

// RelayConfig 中继配置
type RelayConfig struct {
	// 单轮认领批量
	BatchSize int
	// 轮询间隔
	PollInterval time.Duration
	// 最大发布尝试次数，超出后标记 DEAD
	MaxAttempts int
	// 失败重试退避
	Backoff mq.Backoff
	// PROCESSING 行视为滞留的阈值
	StaleAfter time.Duration
	// 信封 producer 字段
	Producer string
}

// Relay 周期性地认领发件箱行并投递到总线。
// 多实例水平扩展安全：认领由存储层的锁保证互斥，滞留行超时后自愈，
// 代价是可能重复发布，因此总线交付语义为 at-least-once。
type Relay struct {
	store    Store
	producer mq.Producer
	cfg      RelayConfig
	metrics  *metrics.Metrics
}

// NewRelay 创建中继
func NewRelay(store Store, producer mq.Producer, cfg RelayConfig, m *metrics.Metrics) *Relay {
	return &Relay{
		store:    store,
		producer: producer,
		cfg:      cfg,
		metrics:  m,
	}
}

// Run 固定间隔轮询，直到 context 取消
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	logger.Info(ctx, "outbox relay started",
		"batch_size", r.cfg.BatchSize,
		"poll_interval", r.cfg.PollInterval,
		"max_attempts", r.cfg.MaxAttempts,
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "outbox relay stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				logger.Error(ctx, "outbox relay cycle failed", "error", err)
			}
		}
	}
}

// RunOnce 执行一轮：认领、逐行投递、回写结果
func (r *Relay) RunOnce(ctx context.Context) error {
	start := time.Now()

	records, err := r.store.ClaimBatch(ctx, r.cfg.BatchSize, r.cfg.StaleAfter)
	if err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.OutboxClaimedTotal.Add(float64(len(records)))
	}

	for _, rec := range records {
		if err := r.publish(ctx, rec); err != nil {
			r.reconcileFailure(ctx, rec, err)
			continue
		}
		if err := r.store.MarkPublished(ctx, rec.ID); err != nil {
			// 发布已成功但回写失败：行会被滞留回收再发一次，消费端幂等兜底
			logger.Error(ctx, "failed to mark outbox record published", "event_id", rec.EventID, "error", err)
			continue
		}
		if r.metrics != nil {
			r.metrics.OutboxPublishedTotal.Inc()
		}
	}

	if r.metrics != nil {
		r.metrics.OutboxCycleDuration.Observe(time.Since(start).Seconds())
	}
	return nil
}

// publish 将行包装为信封并发布到其记录的主题
func (r *Relay) publish(ctx context.Context, rec *Record) error {
	if !json.Valid([]byte(rec.EventPayload)) {
		return fmt.Errorf("stored payload is not valid JSON")
	}

	env := &eventbus.Envelope[json.RawMessage]{
		EventType:     rec.EventType,
		EventVersion:  rec.EventVersion,
		OccurredAt:    rec.CreatedAt.UTC(),
		Producer:      r.cfg.Producer,
		CorrelationID: rec.CorrelationID,
		Key:           rec.EventKey,
		Payload:       json.RawMessage(rec.EventPayload),
	}
	eventID, err := uuid.Parse(rec.EventID)
	if err != nil {
		return fmt.Errorf("invalid stored event id %q: %w", rec.EventID, err)
	}
	env.EventID = eventID

	data, err := eventbus.Encode(env)
	if err != nil {
		return err
	}

	headers := []kafka.Header{
		{Key: eventbus.HeaderEventType, Value: []byte(rec.EventType)},
		{Key: eventbus.HeaderEventVersion, Value: []byte(fmt.Sprintf("%d", rec.EventVersion))},
		{Key: eventbus.HeaderCorrelationID, Value: []byte(rec.CorrelationID)},
		{Key: eventbus.HeaderContentType, Value: []byte(eventbus.ContentTypeJSON)},
	}

	return r.producer.Publish(ctx, rec.Topic, rec.EventKey, data, headers...)
}

// reconcileFailure 失败回写：未耗尽则 FAILED + 指数退避，耗尽则 DEAD
func (r *Relay) reconcileFailure(ctx context.Context, rec *Record, cause error) {
	attempts := rec.AttemptCount + 1

	if attempts > r.cfg.MaxAttempts {
		if err := r.store.MarkDead(ctx, rec.ID, attempts, cause.Error()); err != nil {
			// DEAD 标记失败不可吞掉，这是运维告警条件
			logger.Error(ctx, "failed to mark outbox record dead", "event_id", rec.EventID, "error", err)
			return
		}
		if r.metrics != nil {
			r.metrics.OutboxDeadTotal.Inc()
		}
		logger.Error(ctx, "outbox record dead after exhausting attempts",
			"event_id", rec.EventID,
			"topic", rec.Topic,
			"attempts", attempts,
			"error", cause,
		)
		return
	}

	nextAttempt := time.Now().UTC().Add(r.cfg.Backoff.Duration(attempts))
	if err := r.store.MarkFailed(ctx, rec.ID, attempts, cause.Error(), nextAttempt); err != nil {
		logger.Error(ctx, "failed to mark outbox record failed", "event_id", rec.EventID, "error", err)
		return
	}
	if r.metrics != nil {
		r.metrics.OutboxFailedTotal.Inc()
	}
	logger.Warn(ctx, "outbox publish failed, scheduled for retry",
		"event_id", rec.EventID,
		"topic", rec.Topic,
		"attempts", attempts,
		"next_attempt_at", nextAttempt,
		"error", cause,
	)
}
