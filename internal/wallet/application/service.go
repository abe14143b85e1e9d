// Package application 钱包引擎的应用层：预留、释放、消耗与管理员调整
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/spotledger/internal/wallet/domain"
	"github.com/wyfcoding/spotledger/pkg/idgen"
	"github.com/wyfcoding/spotledger/pkg/logger"
	"github.com/wyfcoding/spotledger/pkg/metrics"
)

// 账本分录来源类型
const (
	RefTypeAdminAdjustment = "ADMIN_ADJUSTMENT"

	// 管理员调整的对手账户，保证每笔账本事务借贷平衡
	treasuryAccountID = "TREASURY"
)

// 余额变更事件的触发来源
const (
	causeReserve    = "RESERVE"
	causeRelease    = "RELEASE"
	causeConsume    = "CONSUME"
	causeAdjustment = "ADJUSTMENT"
)

// WalletService 钱包引擎。所有资金变更都在单个本地事务内完成：
// 行锁读余额、读-改-写、账本追加、outbox 追加，要么全部生效要么全部回滚。
type WalletService struct {
	tx           domain.TxManager
	balances     domain.BalanceRepository
	reservations domain.ReservationRepository
	ledger       domain.LedgerRepository
	events       domain.EventPublisher
	metrics      *metrics.Metrics
}

// NewWalletService 创建钱包引擎
func NewWalletService(
	tx domain.TxManager,
	balances domain.BalanceRepository,
	reservations domain.ReservationRepository,
	ledger domain.LedgerRepository,
	events domain.EventPublisher,
	m *metrics.Metrics,
) *WalletService {
	return &WalletService{
		tx:           tx,
		balances:     balances,
		reservations: reservations,
		ledger:       ledger,
		events:       events,
		metrics:      m,
	}
}

// Reserve 为订单预留资金：available -> reserved，并插入 ACTIVE 预留。
// 余额不存在或可用不足时返回 ErrInsufficientBalance，余额不变。
func (s *WalletService) Reserve(ctx context.Context, cmd ReserveCommand) (*ReservationDTO, error) {
	asset, err := domain.NormalizeAsset(cmd.Asset)
	if err != nil {
		return nil, err
	}
	if cmd.AccountID == "" {
		return nil, &domain.ValidationError{Field: "account_id", Reason: "must not be blank"}
	}
	if cmd.OrderID == "" {
		return nil, &domain.ValidationError{Field: "order_id", Reason: "must not be blank"}
	}
	if !cmd.Amount.IsPositive() {
		return nil, &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	var dto ReservationDTO
	err = s.tx.WithTx(ctx, func(txCtx context.Context) error {
		existing, err := s.reservations.GetActiveByOrderID(txCtx, cmd.OrderID)
		if err != nil {
			return err
		}
		if existing != nil {
			return &domain.ValidationError{Field: "order_id", Reason: "already has an active reservation"}
		}

		balance, err := s.balances.GetForUpdate(txCtx, cmd.AccountID, asset)
		if err != nil {
			return err
		}
		available := decimalZeroIfNil(balance)
		if balance == nil || available.LessThan(cmd.Amount) {
			return &domain.ErrInsufficientBalance{
				AccountID: cmd.AccountID,
				Asset:     asset,
				Requested: cmd.Amount,
				Available: available,
			}
		}

		balance.Available = balance.Available.Sub(cmd.Amount)
		balance.Reserved = balance.Reserved.Add(cmd.Amount)
		if err := s.balances.Save(txCtx, balance); err != nil {
			return err
		}

		reservation := &domain.Reservation{
			ReservationID: idgen.GenIDWithPrefix("RSV"),
			AccountID:     cmd.AccountID,
			Asset:         asset,
			Amount:        cmd.Amount,
			OrderID:       cmd.OrderID,
			Status:        domain.ReservationStatusActive,
		}
		if err := s.reservations.Create(txCtx, reservation); err != nil {
			return err
		}

		if err := s.publishBalanceUpdated(txCtx, balance, causeReserve, reservation.ReservationID); err != nil {
			return err
		}

		dto = toReservationDTO(reservation)
		return nil
	})
	s.recordOp(ctx, "reserve", err)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "funds reserved",
		"account_id", cmd.AccountID,
		"asset", asset,
		"amount", cmd.Amount,
		"order_id", cmd.OrderID,
	)
	return &dto, nil
}

// Release 释放订单的预留资金：reserved -> available，预留置为 CANCELLED。
// 订单没有 ACTIVE 预留时是无操作而非错误，这让重复投递下的释放天然幂等。
func (s *WalletService) Release(ctx context.Context, orderID string) error {
	err := s.terminateReservation(ctx, orderID, domain.ReservationStatusCancelled)
	s.recordOp(ctx, "release", err)
	return err
}

// Consume 消耗订单的预留资金：reserved 减少，available 不变（资金已花出）。
// 与 Release 相同的无操作规则。
func (s *WalletService) Consume(ctx context.Context, orderID string) error {
	err := s.terminateReservation(ctx, orderID, domain.ReservationStatusConsumed)
	s.recordOp(ctx, "consume", err)
	return err
}

func (s *WalletService) terminateReservation(ctx context.Context, orderID string, target domain.ReservationStatus) error {
	if orderID == "" {
		return &domain.ValidationError{Field: "order_id", Reason: "must not be blank"}
	}

	return s.tx.WithTx(ctx, func(txCtx context.Context) error {
		reservation, err := s.reservations.GetActiveByOrderID(txCtx, orderID)
		if err != nil {
			return err
		}
		if reservation == nil {
			// at-least-once 重复投递：已终结过，无事可做
			logger.Debug(txCtx, "no active reservation, nothing to do", "order_id", orderID)
			return nil
		}

		balance, err := s.balances.GetForUpdate(txCtx, reservation.AccountID, reservation.Asset)
		if err != nil {
			return err
		}
		if balance == nil {
			return fmt.Errorf("wallet: balance missing for active reservation %s", reservation.ReservationID)
		}

		balance.Reserved = balance.Reserved.Sub(reservation.Amount)
		if balance.Reserved.IsNegative() {
			return fmt.Errorf("wallet: reserved balance would go negative for %s/%s", reservation.AccountID, reservation.Asset)
		}
		cause := causeConsume
		if target == domain.ReservationStatusCancelled {
			balance.Available = balance.Available.Add(reservation.Amount)
			cause = causeRelease
		}
		if err := s.balances.Save(txCtx, balance); err != nil {
			return err
		}

		if err := s.reservations.UpdateStatus(txCtx, reservation.ReservationID, target, time.Now().UTC()); err != nil {
			return err
		}

		if err := s.publishBalanceUpdated(txCtx, balance, cause, reservation.ReservationID); err != nil {
			return err
		}

		logger.Info(txCtx, "reservation terminated",
			"order_id", orderID,
			"reservation_id", reservation.ReservationID,
			"status", target,
		)
		return nil
	})
}

// Adjust 管理员入金/出金。CREDIT 增加 available（余额行懒创建），
// DEBIT 减少 available，不足时拒绝。每笔调整追加一对方向相反、金额相等的
// 账本分录（共享新 tx_id），以及一行携带调整后余额的 outbox 事件。
func (s *WalletService) Adjust(ctx context.Context, cmd AdjustCommand) (*AdjustmentDTO, error) {
	asset, err := domain.NormalizeAsset(cmd.Asset)
	if err != nil {
		return nil, err
	}
	if cmd.AccountID == "" {
		return nil, &domain.ValidationError{Field: "account_id", Reason: "must not be blank"}
	}
	if !cmd.Amount.IsPositive() {
		return nil, &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if cmd.Direction != domain.DirectionCredit && cmd.Direction != domain.DirectionDebit {
		return nil, &domain.ValidationError{Field: "direction", Reason: "must be DEBIT or CREDIT"}
	}

	occurredAt := cmd.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	adjustmentID := idgen.GenIDWithPrefix("ADJ")
	txID := idgen.GenIDWithPrefix("LTX")

	var dto AdjustmentDTO
	err = s.tx.WithTx(ctx, func(txCtx context.Context) error {
		balance, err := s.balances.GetForUpdate(txCtx, cmd.AccountID, asset)
		if err != nil {
			return err
		}

		switch cmd.Direction {
		case domain.DirectionCredit:
			if balance == nil {
				balance = &domain.Balance{AccountID: cmd.AccountID, Asset: asset}
			}
			balance.Available = balance.Available.Add(cmd.Amount)
		case domain.DirectionDebit:
			available := decimalZeroIfNil(balance)
			if balance == nil || available.LessThan(cmd.Amount) {
				return &domain.ErrInsufficientBalance{
					AccountID: cmd.AccountID,
					Asset:     asset,
					Requested: cmd.Amount,
					Available: available,
				}
			}
			balance.Available = balance.Available.Sub(cmd.Amount)
		}

		if err := s.balances.Save(txCtx, balance); err != nil {
			return err
		}

		ledgerTx := domain.LedgerTransaction{
			TxID: txID,
			Entries: []domain.LedgerEntry{
				{
					TxID:       txID,
					AccountID:  cmd.AccountID,
					Asset:      asset,
					Direction:  cmd.Direction,
					Amount:     cmd.Amount,
					RefType:    RefTypeAdminAdjustment,
					RefID:      adjustmentID,
					OccurredAt: occurredAt,
				},
				{
					TxID:       txID,
					AccountID:  treasuryAccountID,
					Asset:      asset,
					Direction:  cmd.Direction.Opposite(),
					Amount:     cmd.Amount,
					RefType:    RefTypeAdminAdjustment,
					RefID:      adjustmentID,
					OccurredAt: occurredAt,
				},
			},
		}
		if err := s.ledger.Append(txCtx, ledgerTx); err != nil {
			return err
		}

		if err := s.publishBalanceUpdated(txCtx, balance, causeAdjustment, adjustmentID); err != nil {
			return err
		}

		dto = AdjustmentDTO{
			AdjustmentID: adjustmentID,
			LedgerTxID:   txID,
			Balance:      toBalanceDTO(balance),
		}
		return nil
	})
	s.recordOp(ctx, "adjust", err)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "balance adjusted",
		"account_id", cmd.AccountID,
		"asset", asset,
		"direction", cmd.Direction,
		"amount", cmd.Amount,
		"reason", cmd.Reason,
		"adjustment_id", adjustmentID,
	)
	return &dto, nil
}

func (s *WalletService) publishBalanceUpdated(ctx context.Context, balance *domain.Balance, cause, refID string) error {
	return s.events.PublishBalanceUpdated(ctx, domain.BalanceUpdatedEvent{
		AccountID: balance.AccountID,
		Asset:     balance.Asset,
		Available: balance.Available,
		Reserved:  balance.Reserved,
		Cause:     cause,
		RefID:     refID,
		UpdatedAt: time.Now().UTC(),
	})
}

func (s *WalletService) recordOp(ctx context.Context, op string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	var insufficient *domain.ErrInsufficientBalance
	var validation *domain.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &insufficient):
		outcome = "insufficient_balance"
	case errors.As(err, &validation):
		outcome = "invalid"
	default:
		outcome = "error"
	}
	s.metrics.WalletOpsTotal.WithLabelValues(op, outcome).Inc()
}

func decimalZeroIfNil(balance *domain.Balance) decimal.Decimal {
	if balance == nil {
		return decimal.Zero
	}
	return balance.Available
}
