package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cabbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "cabbot_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAccountLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	account := &models.Account{
		TelegramID: 111,
		Username:   "ivan",
		FirstName:  "Иван",
		Role:       models.RoleRider,
		Token:      "tok-aaa",
	}
	require.NoError(t, db.SaveAccount(ctx, account))

	got, err := db.GetAccount(ctx, 111)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.RoleRider, got.Role)
	assert.Equal(t, "tok-aaa", got.Token)

	// Повторная привязка перезаписывает роль и токен
	account.Role = models.RoleDriver
	account.Token = "tok-bbb"
	require.NoError(t, db.SaveAccount(ctx, account))

	got, err = db.GetAccount(ctx, 111)
	require.NoError(t, err)
	assert.Equal(t, models.RoleDriver, got.Role)
	assert.Equal(t, "tok-bbb", got.Token)

	require.NoError(t, db.DeleteAccount(ctx, 111))
	got, err = db.GetAccount(ctx, 111)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetAccountMissing(t *testing.T) {
	db := newTestDB(t)

	got, err := db.GetAccount(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateAccountActivityAndPhone(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	old := time.Now().Add(-time.Hour)
	require.NoError(t, db.SaveAccount(ctx, &models.Account{
		TelegramID:   5,
		Role:         models.RoleRider,
		Token:        "tok",
		LastActivity: old,
	}))

	require.NoError(t, db.UpdateAccountActivity(ctx, 5))
	require.NoError(t, db.UpdateAccountPhone(ctx, 5, "+79990001122"))

	got, err := db.GetAccount(ctx, 5)
	require.NoError(t, err)
	assert.True(t, got.LastActivity.After(old))
	assert.Equal(t, "+79990001122", got.Phone)
}

func TestGetAllAccounts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, db.SaveAccount(ctx, &models.Account{
			TelegramID: i,
			Role:       models.RoleRider,
			Token:      "tok",
		}))
	}

	accounts, err := db.GetAllAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 3)
}

func TestRideLog(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	entries := []*models.RideLogEntry{
		{TelegramID: 7, RideID: "r-1", FromStatus: models.StatusRequested, ToStatus: models.StatusAccepted},
		{TelegramID: 7, RideID: "r-1", FromStatus: models.StatusAccepted, ToStatus: models.StatusInProgress},
		{TelegramID: 8, RideID: "r-2", FromStatus: models.StatusRequested, ToStatus: models.StatusCancelled},
	}
	for _, e := range entries {
		require.NoError(t, db.AppendRideLog(ctx, e))
		assert.NotZero(t, e.ID)
		assert.False(t, e.ObservedAt.IsZero())
	}

	log, err := db.GetRideLog(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, log, 2)
	for _, e := range log {
		assert.Equal(t, "r-1", e.RideID)
	}

	log, err = db.GetRideLog(ctx, 7, 1)
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestReportQueue(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	task := &models.ReportTask{
		RideID:  "r-10",
		Payload: `{"ride_id":"r-10"}`,
		Status:  ReportStatusPending,
	}
	require.NoError(t, db.CreateReportTask(ctx, task))
	require.NotZero(t, task.ID)

	pending, err := db.GetPendingReportTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "r-10", pending[0].RideID)

	// Задача ушла на повтор в будущем и пропадает из выборки
	retryAt := time.Now().Add(time.Hour)
	require.NoError(t, db.UpdateReportTaskStatus(ctx, task.ID, ReportStatusRetry, "sheet unavailable", &retryAt))

	pending, err = db.GetPendingReportTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, db.UpdateReportTaskStatus(ctx, task.ID, ReportStatusFailed, "gave up", nil))

	failed, err := db.GetFailedReportTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].RetryCount)
	require.NotNil(t, failed[0].LastError)
	assert.Equal(t, "gave up", *failed[0].LastError)
}

func TestReportQueueCompleted(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	task := &models.ReportTask{RideID: "r-11", Payload: "{}", Status: ReportStatusPending}
	require.NoError(t, db.CreateReportTask(ctx, task))
	require.NoError(t, db.UpdateReportTaskStatus(ctx, task.ID, ReportStatusCompleted, "", nil))

	pending, err := db.GetPendingReportTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
