package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/spotledger/pkg/db"
)

// ErrDuplicateKey (scope, key) 已存在，并发插入竞争时返回
var ErrDuplicateKey = errors.New("idempotency: duplicate key")

// Store 幂等记录存取接口
type Store interface {
	// Get 查找记录，不存在时返回 (nil, nil)
	Get(ctx context.Context, scope, key string) (*Record, error)
	// Insert 插入新记录，唯一键冲突时返回 ErrDuplicateKey
	Insert(ctx context.Context, record *Record) error
	// MarkInProgress 将 FAILED 记录重置为 IN_PROGRESS 以便重试
	MarkInProgress(ctx context.Context, id uint) error
	// MarkCompleted 记录首次执行的响应
	MarkCompleted(ctx context.Context, id uint, responseCode int, responseBody string) error
	// MarkFailed 记录失败错误码
	MarkFailed(ctx context.Context, id uint, errorCode string) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore 创建幂等记录存储
func NewStore(gdb *gorm.DB) Store {
	return &gormStore{db: gdb}
}

func (s *gormStore) getDB(ctx context.Context) *gorm.DB {
	return db.TxFromContext(ctx, s.db)
}

func (s *gormStore) Get(ctx context.Context, scope, key string) (*Record, error) {
	var record Record
	err := s.getDB(ctx).WithContext(ctx).
		Where("scope = ? AND idempotency_key = ?", scope, key).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency: get: %w", err)
	}
	return &record, nil
}

func (s *gormStore) Insert(ctx context.Context, record *Record) error {
	err := s.getDB(ctx).WithContext(ctx).Create(record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "Duplicate entry") {
			return ErrDuplicateKey
		}
		return fmt.Errorf("idempotency: insert: %w", err)
	}
	return nil
}

func (s *gormStore) MarkInProgress(ctx context.Context, id uint) error {
	return s.getDB(ctx).WithContext(ctx).Model(&Record{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     StatusInProgress,
			"error_code": "",
			"updated_at": time.Now().UTC(),
		}).Error
}

func (s *gormStore) MarkCompleted(ctx context.Context, id uint, responseCode int, responseBody string) error {
	return s.getDB(ctx).WithContext(ctx).Model(&Record{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        StatusCompleted,
			"response_code": responseCode,
			"response_body": responseBody,
		}).Error
}

func (s *gormStore) MarkFailed(ctx context.Context, id uint, errorCode string) error {
	if strings.TrimSpace(errorCode) == "" {
		errorCode = UnspecifiedError
	}
	return s.getDB(ctx).WithContext(ctx).Model(&Record{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     StatusFailed,
			"error_code": errorCode,
		}).Error
}
