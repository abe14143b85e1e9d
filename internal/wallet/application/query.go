package application

import (
	"context"

	"github.com/wyfcoding/spotledger/internal/wallet/domain"
)

// WalletQueryService 查询侧服务，只读，不参与事务
type WalletQueryService struct {
	balances     domain.BalanceRepository
	reservations domain.ReservationRepository
	ledger       domain.LedgerRepository
}

// NewWalletQueryService 创建查询服务
func NewWalletQueryService(
	balances domain.BalanceRepository,
	reservations domain.ReservationRepository,
	ledger domain.LedgerRepository,
) *WalletQueryService {
	return &WalletQueryService{
		balances:     balances,
		reservations: reservations,
		ledger:       ledger,
	}
}

// GetBalance 查询单个资产余额，不存在时返回 (nil, nil)
func (s *WalletQueryService) GetBalance(ctx context.Context, accountID, asset string) (*BalanceDTO, error) {
	normalized, err := domain.NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	balance, err := s.balances.Get(ctx, accountID, normalized)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return nil, nil
	}
	dto := toBalanceDTO(balance)
	return &dto, nil
}

// ListBalances 查询账户全部资产余额
func (s *WalletQueryService) ListBalances(ctx context.Context, accountID string) ([]BalanceDTO, error) {
	balances, err := s.balances.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	dtos := make([]BalanceDTO, len(balances))
	for i, b := range balances {
		dtos[i] = toBalanceDTO(b)
	}
	return dtos, nil
}

// ListReservations 分页查询账户预留
func (s *WalletQueryService) ListReservations(ctx context.Context, accountID string, limit, offset int) ([]ReservationDTO, int64, error) {
	reservations, total, err := s.reservations.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	dtos := make([]ReservationDTO, len(reservations))
	for i, r := range reservations {
		dtos[i] = toReservationDTO(r)
	}
	return dtos, total, nil
}

// ListLedgerEntries 分页查询账户账本分录
func (s *WalletQueryService) ListLedgerEntries(ctx context.Context, accountID string, limit, offset int) ([]LedgerEntryDTO, int64, error) {
	entries, total, err := s.ledger.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	dtos := make([]LedgerEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toLedgerEntryDTO(e)
	}
	return dtos, total, nil
}
