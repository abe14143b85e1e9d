package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderdomain "github.com/wyfcoding/spotledger/internal/order/domain"
	"github.com/wyfcoding/spotledger/internal/wallet/application"
	walletdomain "github.com/wyfcoding/spotledger/internal/wallet/domain"
	"github.com/wyfcoding/spotledger/pkg/eventbus"
	"github.com/wyfcoding/spotledger/pkg/mq"
)

type memTxManager struct{}

func (memTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memBalances struct {
	rows map[string]*walletdomain.Balance
}

func (m *memBalances) key(accountID, asset string) string { return accountID + "|" + asset }

func (m *memBalances) GetForUpdate(ctx context.Context, accountID, asset string) (*walletdomain.Balance, error) {
	if b, ok := m.rows[m.key(accountID, asset)]; ok {
		copied := *b
		return &copied, nil
	}
	return nil, nil
}

func (m *memBalances) Get(ctx context.Context, accountID, asset string) (*walletdomain.Balance, error) {
	return m.GetForUpdate(ctx, accountID, asset)
}

func (m *memBalances) ListByAccount(ctx context.Context, accountID string) ([]*walletdomain.Balance, error) {
	return nil, nil
}

func (m *memBalances) Save(ctx context.Context, balance *walletdomain.Balance) error {
	copied := *balance
	m.rows[m.key(balance.AccountID, balance.Asset)] = &copied
	return nil
}

type memReservations struct {
	rows []*walletdomain.Reservation
}

func (m *memReservations) Create(ctx context.Context, r *walletdomain.Reservation) error {
	copied := *r
	m.rows = append(m.rows, &copied)
	return nil
}

func (m *memReservations) GetActiveByOrderID(ctx context.Context, orderID string) (*walletdomain.Reservation, error) {
	for _, r := range m.rows {
		if r.OrderID == orderID && r.Status == walletdomain.ReservationStatusActive {
			copied := *r
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memReservations) UpdateStatus(ctx context.Context, reservationID string, status walletdomain.ReservationStatus, releasedAt time.Time) error {
	for _, r := range m.rows {
		if r.ReservationID == reservationID {
			r.Status = status
			r.ReleasedAt = &releasedAt
		}
	}
	return nil
}

func (m *memReservations) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*walletdomain.Reservation, int64, error) {
	return nil, 0, nil
}

type memLedger struct{}

func (memLedger) Append(ctx context.Context, tx walletdomain.LedgerTransaction) error { return nil }
func (memLedger) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*walletdomain.LedgerEntry, int64, error) {
	return nil, 0, nil
}
func (memLedger) ListByTxID(ctx context.Context, txID string) ([]*walletdomain.LedgerEntry, error) {
	return nil, nil
}

type memEvents struct{}

func (memEvents) PublishBalanceUpdated(ctx context.Context, event walletdomain.BalanceUpdatedEvent) error {
	return nil
}

type fixture struct {
	service      *application.WalletService
	balances     *memBalances
	reservations *memReservations
}

func newFixture(available string) *fixture {
	balances := &memBalances{rows: map[string]*walletdomain.Balance{}}
	amount, _ := decimal.NewFromString(available)
	balances.rows["acct-1|USDT"] = &walletdomain.Balance{
		AccountID: "acct-1",
		Asset:     "USDT",
		Available: amount,
	}
	reservations := &memReservations{}
	return &fixture{
		service:      application.NewWalletService(memTxManager{}, balances, reservations, memLedger{}, memEvents{}, nil),
		balances:     balances,
		reservations: reservations,
	}
}

func updatedEnvelope(t *testing.T, status orderdomain.OrderStatus) *eventbus.Envelope[orderdomain.OrderUpdatedEvent] {
	t.Helper()
	return &eventbus.Envelope[orderdomain.OrderUpdatedEvent]{
		EventID:       uuid.New(),
		EventType:     orderdomain.OrderUpdatedEventType,
		EventVersion:  3,
		OccurredAt:    time.Now().UTC(),
		Producer:      "order-service",
		CorrelationID: "corr-1",
		Key:           "ord-1",
		Payload: orderdomain.OrderUpdatedEvent{
			OrderID:   "ord-1",
			AccountID: "acct-1",
			Symbol:    "BTC-USDT",
			Status:    status,
		},
	}
}

func reserve(t *testing.T, f *fixture, amount string) {
	t.Helper()
	v, err := decimal.NewFromString(amount)
	require.NoError(t, err)
	_, err = f.service.Reserve(context.Background(), application.ReserveCommand{
		AccountID: "acct-1", Asset: "USDT", Amount: v, OrderID: "ord-1",
	})
	require.NoError(t, err)
}

func TestHandleCanceledReleasesReservation(t *testing.T) {
	f := newFixture("100")
	reserve(t, f, "40")
	handler := NewOrderEventHandler(f.service)

	require.NoError(t, handler.Handle(context.Background(), updatedEnvelope(t, orderdomain.OrderStatusCanceled)))

	balance, _ := f.balances.Get(context.Background(), "acct-1", "USDT")
	assert.True(t, balance.Available.Equal(decimal.NewFromInt(100)))
	assert.True(t, balance.Reserved.IsZero())
	assert.Equal(t, walletdomain.ReservationStatusCancelled, f.reservations.rows[0].Status)
}

func TestHandleFilledConsumesReservation(t *testing.T) {
	f := newFixture("100")
	reserve(t, f, "40")
	handler := NewOrderEventHandler(f.service)

	require.NoError(t, handler.Handle(context.Background(), updatedEnvelope(t, orderdomain.OrderStatusFilled)))

	balance, _ := f.balances.Get(context.Background(), "acct-1", "USDT")
	assert.True(t, balance.Available.Equal(decimal.NewFromInt(60)))
	assert.True(t, balance.Reserved.IsZero())
	assert.Equal(t, walletdomain.ReservationStatusConsumed, f.reservations.rows[0].Status)
}

func TestHandleRejectedAndExpiredRelease(t *testing.T) {
	for _, status := range []orderdomain.OrderStatus{orderdomain.OrderStatusRejected, orderdomain.OrderStatusExpired} {
		f := newFixture("100")
		reserve(t, f, "40")
		handler := NewOrderEventHandler(f.service)

		require.NoError(t, handler.Handle(context.Background(), updatedEnvelope(t, status)))
		balance, _ := f.balances.Get(context.Background(), "acct-1", "USDT")
		assert.True(t, balance.Available.Equal(decimal.NewFromInt(100)), "status %s must release", status)
	}
}

func TestHandleIntermediateStatusIsNoOp(t *testing.T) {
	f := newFixture("100")
	reserve(t, f, "40")
	handler := NewOrderEventHandler(f.service)

	require.NoError(t, handler.Handle(context.Background(), updatedEnvelope(t, orderdomain.OrderStatusPartiallyFilled)))

	balance, _ := f.balances.Get(context.Background(), "acct-1", "USDT")
	assert.True(t, balance.Reserved.Equal(decimal.NewFromInt(40)), "partial fill must keep the reservation")
}

func TestHandleRedeliveryIsIdempotent(t *testing.T) {
	f := newFixture("100")
	reserve(t, f, "40")
	handler := NewOrderEventHandler(f.service)
	env := updatedEnvelope(t, orderdomain.OrderStatusCanceled)

	require.NoError(t, handler.Handle(context.Background(), env))
	require.NoError(t, handler.Handle(context.Background(), env))

	balance, _ := f.balances.Get(context.Background(), "acct-1", "USDT")
	assert.True(t, balance.Available.Equal(decimal.NewFromInt(100)), "double delivery must not double-release")
}

func TestHandleMissingOrderIDIsNonRetryable(t *testing.T) {
	f := newFixture("100")
	handler := NewOrderEventHandler(f.service)
	env := updatedEnvelope(t, orderdomain.OrderStatusCanceled)
	env.Payload.OrderID = ""

	err := handler.Handle(context.Background(), env)
	require.Error(t, err)
	assert.True(t, mq.IsNonRetryable(err))
}

func TestSubmittedHandlerReservesFunds(t *testing.T) {
	f := newFixture("100")
	handler := NewOrderSubmittedHandler(f.service)

	err := handler.Handle(context.Background(), submittedEnvelope(t, "40"))
	require.NoError(t, err)

	balance, _ := f.balances.Get(context.Background(), "acct-1", "USDT")
	assert.True(t, balance.Available.Equal(decimal.NewFromInt(60)))
	assert.True(t, balance.Reserved.Equal(decimal.NewFromInt(40)))
}

func TestSubmittedHandlerRedeliveryAcks(t *testing.T) {
	f := newFixture("100")
	handler := NewOrderSubmittedHandler(f.service)
	env := submittedEnvelope(t, "40")

	require.NoError(t, handler.Handle(context.Background(), env))
	require.NoError(t, handler.Handle(context.Background(), env), "redelivery must settle without double-reserving")

	balance, _ := f.balances.Get(context.Background(), "acct-1", "USDT")
	assert.True(t, balance.Reserved.Equal(decimal.NewFromInt(40)))
}

func TestSubmittedHandlerInsufficientIsNonRetryable(t *testing.T) {
	f := newFixture("10")
	handler := NewOrderSubmittedHandler(f.service)

	err := handler.Handle(context.Background(), submittedEnvelope(t, "40"))
	require.Error(t, err)
	assert.True(t, mq.IsNonRetryable(err), "insufficient balance cannot be fixed by retrying")
}

func submittedEnvelope(t *testing.T, amount string) *eventbus.Envelope[orderdomain.OrderSubmittedEvent] {
	t.Helper()
	v, err := decimal.NewFromString(amount)
	require.NoError(t, err)
	return &eventbus.Envelope[orderdomain.OrderSubmittedEvent]{
		EventID:       uuid.New(),
		EventType:     orderdomain.OrderSubmittedEventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      "order-service",
		CorrelationID: "corr-1",
		Key:           "ord-1",
		Payload: orderdomain.OrderSubmittedEvent{
			OrderID:       "ord-1",
			AccountID:     "acct-1",
			Symbol:        "BTC-USDT",
			Side:          orderdomain.OrderSideBuy,
			Type:          orderdomain.OrderTypeLimit,
			ReserveAsset:  "USDT",
			ReserveAmount: v,
		},
	}
}
