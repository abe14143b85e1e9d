package idempotency

import (
	"context"
	"fmt"
	"time"
)

// Outcome Begin 的判定结果
type Outcome string

const (
	// OutcomeProceed 首次见到该 key（或上次失败），调用方执行副作用操作
	OutcomeProceed Outcome = "PROCEED"
	// OutcomeReplay 首次执行已完成，直接回放存储的响应
	OutcomeReplay Outcome = "REPLAY"
	// OutcomeInProgress 并发重复提交，首次执行尚未完成。
	// 本核心只暴露状态，不裁决竞争，由调用方拒绝或退避轮询。
	OutcomeInProgress Outcome = "IN_PROGRESS"
)

// ErrKeyReuse 同一 key 被复用于不同的逻辑请求（请求哈希不一致），客户端错误
type ErrKeyReuse struct {
	Scope string
	Key   string
}

func (e *ErrKeyReuse) Error() string {
	return fmt.Sprintf("idempotency key reused with a different request: scope=%s key=%s", e.Scope, e.Key)
}

// Decision Begin 的返回值
type Decision struct {
	Outcome Outcome
	Record  *Record
}

// Guard 幂等保护。位于外部触发的副作用操作之前，与 outbox 相互独立。
type Guard struct {
	store Store
	ttl   time.Duration
}

// NewGuard 创建幂等保护
func NewGuard(store Store, ttl time.Duration) *Guard {
	return &Guard{store: store, ttl: ttl}
}

// Begin 判定一次提交：
//  1. 无记录 -> 插入 IN_PROGRESS，返回 PROCEED
//  2. 哈希不一致 -> ErrKeyReuse
//  3. 同哈希 COMPLETED -> REPLAY，携带存储的响应
//  4. 同哈希 IN_PROGRESS -> IN_PROGRESS
//  5. FAILED -> 重置为 IN_PROGRESS，返回 PROCEED
//
// 过期记录不做任何特殊处理：lookup 依然命中并生效，expires_at 只是记账。
func (g *Guard) Begin(ctx context.Context, scope, key, requestHash string) (*Decision, error) {
	record, err := g.store.Get(ctx, scope, key)
	if err != nil {
		return nil, err
	}

	if record == nil {
		record = &Record{
			Scope:          scope,
			IdempotencyKey: key,
			RequestHash:    requestHash,
			Status:         StatusInProgress,
			ExpiresAt:      time.Now().UTC().Add(g.ttl),
		}
		if err := g.store.Insert(ctx, record); err != nil {
			if err == ErrDuplicateKey {
				// 与并发提交撞上：按并发重复处理
				return g.resolveExisting(ctx, scope, key, requestHash)
			}
			return nil, err
		}
		return &Decision{Outcome: OutcomeProceed, Record: record}, nil
	}

	return g.decide(ctx, record, requestHash)
}

func (g *Guard) resolveExisting(ctx context.Context, scope, key, requestHash string) (*Decision, error) {
	record, err := g.store.Get(ctx, scope, key)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("idempotency: record vanished after duplicate insert: scope=%s key=%s", scope, key)
	}
	return g.decide(ctx, record, requestHash)
}

func (g *Guard) decide(ctx context.Context, record *Record, requestHash string) (*Decision, error) {
	if record.RequestHash != requestHash {
		return nil, &ErrKeyReuse{Scope: record.Scope, Key: record.IdempotencyKey}
	}

	switch record.Status {
	case StatusCompleted:
		return &Decision{Outcome: OutcomeReplay, Record: record}, nil
	case StatusInProgress:
		return &Decision{Outcome: OutcomeInProgress, Record: record}, nil
	case StatusFailed:
		if err := g.store.MarkInProgress(ctx, record.ID); err != nil {
			return nil, err
		}
		record.Status = StatusInProgress
		return &Decision{Outcome: OutcomeProceed, Record: record}, nil
	default:
		return nil, fmt.Errorf("idempotency: unknown record status %q", record.Status)
	}
}

// MarkCompleted 副作用操作成功后记录响应，供后续重复提交回放
func (g *Guard) MarkCompleted(ctx context.Context, id uint, responseCode int, responseBody string) error {
	return g.store.MarkCompleted(ctx, id, responseCode, responseBody)
}

// MarkFailed 副作用操作失败后记录错误码，空错误码归一化为 UNSPECIFIED_ERROR
func (g *Guard) MarkFailed(ctx context.Context, id uint, errorCode string) error {
	return g.store.MarkFailed(ctx, id, errorCode)
}
