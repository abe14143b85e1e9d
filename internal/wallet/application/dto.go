package application

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/spotledger/internal/wallet/domain"
)

// ReserveCommand 资金预留命令
type ReserveCommand struct {
	AccountID string
	Asset     string
	Amount    decimal.Decimal
	OrderID   string
}

// AdjustCommand 管理员资金调整命令
type AdjustCommand struct {
	AccountID string
	Asset     string
	Amount    decimal.Decimal
	Direction domain.EntryDirection
	Reason    string
	// 业务发生时间，零值时取当前时间
	OccurredAt time.Time
}

// BalanceDTO 余额视图
type BalanceDTO struct {
	AccountID string          `json:"account_id"`
	Asset     string          `json:"asset"`
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ReservationDTO 预留视图
type ReservationDTO struct {
	ReservationID string                   `json:"reservation_id"`
	AccountID     string                   `json:"account_id"`
	Asset         string                   `json:"asset"`
	Amount        decimal.Decimal          `json:"amount"`
	OrderID       string                   `json:"order_id"`
	Status        domain.ReservationStatus `json:"status"`
	CreatedAt     time.Time                `json:"created_at"`
	ReleasedAt    *time.Time               `json:"released_at,omitempty"`
}

// AdjustmentDTO 调整结果视图
type AdjustmentDTO struct {
	AdjustmentID string     `json:"adjustment_id"`
	LedgerTxID   string     `json:"ledger_tx_id"`
	Balance      BalanceDTO `json:"balance"`
}

// LedgerEntryDTO 账本分录视图
type LedgerEntryDTO struct {
	TxID       string                `json:"tx_id"`
	AccountID  string                `json:"account_id"`
	Asset      string                `json:"asset"`
	Direction  domain.EntryDirection `json:"direction"`
	Amount     decimal.Decimal       `json:"amount"`
	RefType    string                `json:"ref_type"`
	RefID      string                `json:"ref_id"`
	OccurredAt time.Time             `json:"occurred_at"`
}

func toBalanceDTO(b *domain.Balance) BalanceDTO {
	return BalanceDTO{
		AccountID: b.AccountID,
		Asset:     b.Asset,
		Available: b.Available,
		Reserved:  b.Reserved,
		UpdatedAt: b.UpdatedAt,
	}
}

func toReservationDTO(r *domain.Reservation) ReservationDTO {
	return ReservationDTO{
		ReservationID: r.ReservationID,
		AccountID:     r.AccountID,
		Asset:         r.Asset,
		Amount:        r.Amount,
		OrderID:       r.OrderID,
		Status:        r.Status,
		CreatedAt:     r.CreatedAt,
		ReleasedAt:    r.ReleasedAt,
	}
}

func toLedgerEntryDTO(e *domain.LedgerEntry) LedgerEntryDTO {
	return LedgerEntryDTO{
		TxID:       e.TxID,
		AccountID:  e.AccountID,
		Asset:      e.Asset,
		Direction:  e.Direction,
		Amount:     e.Amount,
		RefType:    e.RefType,
		RefID:      e.RefID,
		OccurredAt: e.OccurredAt,
	}
}
