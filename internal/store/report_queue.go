package store

import (
	"context"
	"fmt"
	"time"

	"cabbot/internal/models"
)

const (
	ReportStatusPending   = "pending"
	ReportStatusRetry     = "retry"
	ReportStatusCompleted = "completed"
	ReportStatusFailed    = "failed"
)

// CreateReportTask queues a finished ride for the report worker. Used as the
// durable fallback when the Redis queue is unavailable.
func (db *DB) CreateReportTask(ctx context.Context, task *models.ReportTask) error {
	query := `INSERT INTO report_queue (ride_id, payload, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`

	now := time.Now()
	result, err := db.db.ExecContext(ctx, query,
		task.RideID,
		task.Payload,
		task.Status,
		task.RetryCount,
		task.LastError,
		now,
		task.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("create report task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("report task insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now
	return nil
}

func (db *DB) GetPendingReportTasks(ctx context.Context, limit int) ([]models.ReportTask, error) {
	query := `SELECT id, ride_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at
              FROM report_queue
              WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY created_at ASC LIMIT ?`

	rows, err := db.db.QueryContext(ctx, query, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("get pending report tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.ReportTask
	for rows.Next() {
		var t models.ReportTask
		err := rows.Scan(&t.ID, &t.RideID, &t.Payload, &t.Status, &t.RetryCount, &t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt)
		if err != nil {
			return nil, fmt.Errorf("scan report task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (db *DB) UpdateReportTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now()

	switch status {
	case ReportStatusRetry:
		query = `UPDATE report_queue SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, id}
	case ReportStatusCompleted, ReportStatusFailed:
		query = `UPDATE report_queue SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, &now, id}
	default:
		query = `UPDATE report_queue SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, id}
	}

	if _, err := db.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update report task status: %w", err)
	}
	return nil
}

// GetFailedReportTasks returns the dead letter list for the ops API.
func (db *DB) GetFailedReportTasks(ctx context.Context) ([]models.ReportTask, error) {
	query := `SELECT id, ride_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at
              FROM report_queue WHERE status = 'failed' ORDER BY created_at DESC`

	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get failed report tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.ReportTask
	for rows.Next() {
		var t models.ReportTask
		err := rows.Scan(&t.ID, &t.RideID, &t.Payload, &t.Status, &t.RetryCount, &t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt)
		if err != nil {
			return nil, fmt.Errorf("scan report task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
