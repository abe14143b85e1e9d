package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/spotledger/internal/wallet/domain"
	"github.com/wyfcoding/spotledger/pkg/db"
)

// reservationRepository 预留仓储实现
type reservationRepository struct {
	db *gorm.DB
}

// NewReservationRepository 创建预留仓储
func NewReservationRepository(gdb *gorm.DB) domain.ReservationRepository {
	return &reservationRepository{db: gdb}
}

func (r *reservationRepository) getDB(ctx context.Context) *gorm.DB {
	return db.TxFromContext(ctx, r.db)
}

func (r *reservationRepository) Create(ctx context.Context, reservation *domain.Reservation) error {
	if err := r.getDB(ctx).WithContext(ctx).Create(reservation).Error; err != nil {
		return fmt.Errorf("wallet: create reservation: %w", err)
	}
	return nil
}

// GetActiveByOrderID 行锁读取 ACTIVE 预留。
// 同一 order_id 至多一条 ACTIVE 由这个查询模式保证，历史行不受唯一约束限制。
func (r *reservationRepository) GetActiveByOrderID(ctx context.Context, orderID string) (*domain.Reservation, error) {
	var reservation domain.Reservation
	err := r.getDB(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ? AND status = ?", orderID, domain.ReservationStatusActive).
		First(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("wallet: get active reservation: %w", err)
	}
	return &reservation, nil
}

func (r *reservationRepository) UpdateStatus(ctx context.Context, reservationID string, status domain.ReservationStatus, releasedAt time.Time) error {
	result := r.getDB(ctx).WithContext(ctx).Model(&domain.Reservation{}).
		Where("reservation_id = ?", reservationID).
		Updates(map[string]any{
			"status":      status,
			"released_at": releasedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("wallet: update reservation status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("wallet: reservation not found: %s", reservationID)
	}
	return nil
}

func (r *reservationRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Reservation, int64, error) {
	query := r.getDB(ctx).WithContext(ctx).Model(&domain.Reservation{}).
		Where("account_id = ?", accountID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("wallet: count reservations: %w", err)
	}

	var reservations []*domain.Reservation
	err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&reservations).Error
	if err != nil {
		return nil, 0, fmt.Errorf("wallet: list reservations: %w", err)
	}
	return reservations, total, nil
}
