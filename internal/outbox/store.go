package outbox

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/spotledger/pkg/db"
)

// Store 发件箱存取接口。Append 在调用方事务内执行，其余方法由中继调用。
type Store interface {
	// Append 在当前事务内追加一行 NEW 记录
	Append(ctx context.Context, record *Record) error
	// ClaimBatch 认领一批待投递行并原子置为 PROCESSING。
	// 可认领：NEW、滞留超过 staleAfter 的 PROCESSING、next_attempt_at 已到期的 FAILED。
	ClaimBatch(ctx context.Context, batchSize int, staleAfter time.Duration) ([]*Record, error)
	// MarkPublished 发布成功
	MarkPublished(ctx context.Context, id uint) error
	// MarkFailed 发布失败，进入退避等待
	MarkFailed(ctx context.Context, id uint, attemptCount int, lastError string, nextAttemptAt time.Time) error
	// MarkDead 尝试次数耗尽，进入终态 DEAD
	MarkDead(ctx context.Context, id uint, attemptCount int, lastError string) error
}

// gormStore Store 的 GORM 实现
type gormStore struct {
	db *gorm.DB
}

// NewStore 创建发件箱存储
func NewStore(gdb *gorm.DB) Store {
	return &gormStore{db: gdb}
}

func (s *gormStore) getDB(ctx context.Context) *gorm.DB {
	return db.TxFromContext(ctx, s.db)
}

// Append 追加记录。必须与产生事件的业务写入共用同一事务，
// 这是"改账本"与"事件终将上总线"二者原子性的锚点。
func (s *gormStore) Append(ctx context.Context, record *Record) error {
	if err := s.getDB(ctx).WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("outbox: append: %w", err)
	}
	return nil
}

// ClaimBatch 用 FOR UPDATE SKIP LOCKED 选行，保证多个中继实例并发认领时
// 同一行至多被一个实例拿到；认领内事务提交后行已是 PROCESSING。
func (s *gormStore) ClaimBatch(ctx context.Context, batchSize int, staleAfter time.Duration) ([]*Record, error) {
	var claimed []*Record

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		staleBefore := now.Add(-staleAfter)

		var rows []*Record
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", StatusNew).
			Or("status = ? AND processing_started_at < ?", StatusProcessing, staleBefore).
			Or("status = ? AND next_attempt_at <= ?", StatusFailed, now).
			Order("id").
			Limit(batchSize).
			Find(&rows).Error
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]uint, len(rows))
		for i, r := range rows {
			ids[i] = r.ID
		}

		if err := tx.Model(&Record{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":                StatusProcessing,
				"processing_started_at": now,
			}).Error; err != nil {
			return err
		}

		for _, r := range rows {
			r.Status = StatusProcessing
			started := now
			r.ProcessingStartedAt = &started
		}
		claimed = rows
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("outbox: claim batch: %w", err)
	}

	return claimed, nil
}

// MarkPublished 发布成功，记录发布时间并清除认领标记
func (s *gormStore) MarkPublished(ctx context.Context, id uint) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&Record{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":                StatusPublished,
			"published_at":          now,
			"processing_started_at": nil,
			"last_error":            "",
		}).Error
}

// MarkFailed 发布失败。行进入 FAILED 并带上 next_attempt_at，
// 到期前不参与认领，到期后重新可见，不阻塞队列其余行。
func (s *gormStore) MarkFailed(ctx context.Context, id uint, attemptCount int, lastError string, nextAttemptAt time.Time) error {
	return s.db.WithContext(ctx).Model(&Record{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":                StatusFailed,
			"attempt_count":         attemptCount,
			"last_error":            lastError,
			"next_attempt_at":       nextAttemptAt,
			"processing_started_at": nil,
		}).Error
}

// MarkDead 尝试耗尽，进入对运维可见的终态
func (s *gormStore) MarkDead(ctx context.Context, id uint, attemptCount int, lastError string) error {
	return s.db.WithContext(ctx).Model(&Record{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":                StatusDead,
			"attempt_count":         attemptCount,
			"last_error":            lastError,
			"next_attempt_at":       nil,
			"processing_started_at": nil,
		}).Error
}
