package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"
)

// 认领 SELECT 必须带三路可认领谓词与 SKIP LOCKED 行锁
const claimSelectPattern = "SELECT .+ FROM `outbox_events`.+status = \\?.+" +
	"status = \\? AND processing_started_at < \\?.+" +
	"status = \\? AND next_attempt_at <= \\?.+" +
	"ORDER BY id.+FOR UPDATE SKIP LOCKED"

// 认领后的批量置位：processing_started_at 与 status 一次 UPDATE 写入
const claimUpdatePattern = "UPDATE `outbox_events` SET .*processing_started_at.*status.*WHERE id IN"

var claimColumns = []string{"id", "status", "attempt_count", "event_id", "event_type", "topic", "event_key", "processing_started_at"}

func newMockStore(t *testing.T) (Store, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger: glogger.Default.LogMode(glogger.Silent),
	})
	require.NoError(t, err)

	return NewStore(gdb), mock
}

func expectClaimCycle(mock sqlmock.Sqlmock, rows *sqlmock.Rows, marked int64) {
	mock.ExpectBegin()
	mock.ExpectQuery(claimSelectPattern).WillReturnRows(rows)
	if marked > 0 {
		mock.ExpectExec(claimUpdatePattern).WillReturnResult(sqlmock.NewResult(0, marked))
	}
	mock.ExpectCommit()
}

func TestClaimBatchMarksClaimedRowsProcessing(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows(claimColumns).
		AddRow(7, "NEW", 0, "ev-7", "balances.updated", "balances.updated.v1", "acc-1", nil).
		AddRow(9, "NEW", 0, "ev-9", "balances.updated", "balances.updated.v1", "acc-2", nil)
	expectClaimCycle(mock, rows, 2)

	claimed, err := store.ClaimBatch(context.Background(), 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	for _, rec := range claimed {
		assert.Equal(t, StatusProcessing, rec.Status)
		require.NotNil(t, rec.ProcessingStartedAt)
		assert.WithinDuration(t, time.Now().UTC(), *rec.ProcessingStartedAt, 5*time.Second)
	}
	assert.Equal(t, uint(7), claimed[0].ID)
	assert.Equal(t, uint(9), claimed[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimBatchImmediateSecondClaimIssuesNoUpdate(t *testing.T) {
	store, mock := newMockStore(t)

	first := sqlmock.NewRows(claimColumns).
		AddRow(1, "NEW", 0, "ev-1", "balances.updated", "balances.updated.v1", "acc-1", nil)
	expectClaimCycle(mock, first, 1)
	// 刚置为 PROCESSING 的行不再满足谓词，第二轮空手而归
	expectClaimCycle(mock, sqlmock.NewRows(claimColumns), 0)

	claimed, err := store.ClaimBatch(context.Background(), 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, StatusProcessing, claimed[0].Status)

	again, err := store.ClaimBatch(context.Background(), 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimBatchReclaimsStaleProcessingRow(t *testing.T) {
	store, mock := newMockStore(t)

	staleStarted := time.Now().UTC().Add(-10 * time.Minute)
	rows := sqlmock.NewRows(claimColumns).
		AddRow(3, "PROCESSING", 1, "ev-3", "balances.updated", "balances.updated.v1", "acc-1", staleStarted)
	expectClaimCycle(mock, rows, 1)

	claimed, err := store.ClaimBatch(context.Background(), 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	rec := claimed[0]
	assert.Equal(t, StatusProcessing, rec.Status)
	require.NotNil(t, rec.ProcessingStartedAt)
	assert.True(t, rec.ProcessingStartedAt.After(staleStarted), "reclaim must restart the staleness clock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimBatchPicksUpDueFailedRow(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows(claimColumns).
		AddRow(5, "FAILED", 3, "ev-5", "balances.updated", "balances.updated.v1", "acc-1", nil)
	expectClaimCycle(mock, rows, 1)

	claimed, err := store.ClaimBatch(context.Background(), 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	rec := claimed[0]
	assert.Equal(t, StatusProcessing, rec.Status)
	assert.Equal(t, 3, rec.AttemptCount, "attempt history must survive a re-claim")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimBatchRollsBackOnSelectError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(claimSelectPattern).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	claimed, err := store.ClaimBatch(context.Background(), 10, time.Minute)
	require.Error(t, err)
	assert.Nil(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
