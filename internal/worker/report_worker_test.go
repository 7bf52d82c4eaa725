package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cabbot/internal/models"
	"cabbot/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSheet struct {
	mu    sync.Mutex
	rows  []*models.RideReportRow
	fails int
}

func (f *fakeSheet) AppendRide(ctx context.Context, row *models.RideReportRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("sheet unavailable")
	}
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeSheet) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func newTestWorker(t *testing.T, sheet *fakeSheet, retry RetryPolicy) (*ReportWorker, *store.DB) {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "worker_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	w := NewReportWorker(db, sheet, nil, retry, nil)
	w.pollInterval = 10 * time.Millisecond
	return w, db
}

func finishedRide() *models.Ride {
	fare := 350.0
	return &models.Ride{
		ID:                  "r-1",
		Status:              models.StatusPaid,
		Fare:                &fare,
		PickupLocationName:  "Офис",
		DropoffLocationName: "Аэропорт",
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, p.NextDelay(1))
	assert.Equal(t, 2*time.Second, p.NextDelay(2))
	assert.Equal(t, 4*time.Second, p.NextDelay(3))
	assert.Equal(t, 5*time.Second, p.NextDelay(4), "clamped to max")
	assert.Equal(t, time.Second, p.NextDelay(0), "attempt below 1 treated as 1")
}

func TestEnqueueRidePersistsTask(t *testing.T) {
	w, db := newTestWorker(t, &fakeSheet{}, RetryPolicy{})
	ctx := context.Background()

	require.NoError(t, w.EnqueueRide(ctx, 42, models.RoleRider, finishedRide()))

	tasks, err := db.GetPendingReportTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "r-1", tasks[0].RideID)
	assert.Contains(t, tasks[0].Payload, `"telegram_id":42`)
}

func TestEnqueueRideRejectsEmpty(t *testing.T) {
	w, _ := newTestWorker(t, &fakeSheet{}, RetryPolicy{})

	assert.Error(t, w.EnqueueRide(context.Background(), 42, models.RoleRider, nil))
	assert.Error(t, w.EnqueueRide(context.Background(), 42, models.RoleRider, &models.Ride{}))
}

func TestWorkerDeliversToSheet(t *testing.T) {
	sheet := &fakeSheet{}
	w, db := newTestWorker(t, sheet, RetryPolicy{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.EnqueueRide(ctx, 42, models.RoleDriver, finishedRide()))

	go w.Start(ctx)

	require.Eventually(t, func() bool { return sheet.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	sheet.mu.Lock()
	row := sheet.rows[0]
	sheet.mu.Unlock()
	assert.Equal(t, "r-1", row.RideID)
	assert.Equal(t, models.RoleDriver, row.Role)
	assert.Equal(t, models.StatusPaid, row.Status)
	require.NotNil(t, row.Fare)
	assert.Equal(t, 350.0, *row.Fare)

	require.Eventually(t, func() bool {
		pending, err := db.GetPendingReportTasks(ctx, 10)
		return err == nil && len(pending) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorkerRetriesThenSucceeds(t *testing.T) {
	sheet := &fakeSheet{fails: 1}
	w, _ := newTestWorker(t, sheet, RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.EnqueueRide(ctx, 42, models.RoleRider, finishedRide()))

	go w.Start(ctx)

	require.Eventually(t, func() bool { return sheet.count() == 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestWorkerGivesUpAfterMaxRetries(t *testing.T) {
	sheet := &fakeSheet{fails: 100}
	w, db := newTestWorker(t, sheet, RetryPolicy{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.EnqueueRide(ctx, 42, models.RoleRider, finishedRide()))

	go w.Start(ctx)

	require.Eventually(t, func() bool {
		failed, err := db.GetFailedReportTasks(ctx)
		return err == nil && len(failed) == 1
	}, 3*time.Second, 10*time.Millisecond)

	assert.Zero(t, sheet.count())
}
