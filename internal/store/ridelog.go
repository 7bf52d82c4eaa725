package store

import (
	"context"
	"fmt"
	"time"

	"cabbot/internal/models"
)

func (db *DB) AppendRideLog(ctx context.Context, entry *models.RideLogEntry) error {
	query := `INSERT INTO ride_log (telegram_id, ride_id, from_status, to_status, observed_at)
              VALUES (?, ?, ?, ?, ?)`

	observedAt := entry.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}

	result, err := db.db.ExecContext(ctx, query,
		entry.TelegramID,
		entry.RideID,
		entry.FromStatus,
		entry.ToStatus,
		observedAt,
	)
	if err != nil {
		return fmt.Errorf("append ride log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("ride log insert id: %w", err)
	}
	entry.ID = id
	entry.ObservedAt = observedAt
	return nil
}

func (db *DB) GetRideLog(ctx context.Context, telegramID int64, limit int) ([]*models.RideLogEntry, error) {
	query := `SELECT id, telegram_id, ride_id, from_status, to_status, observed_at
              FROM ride_log WHERE telegram_id = ?
              ORDER BY observed_at DESC LIMIT ?`

	rows, err := db.db.QueryContext(ctx, query, telegramID, limit)
	if err != nil {
		return nil, fmt.Errorf("get ride log: %w", err)
	}
	defer rows.Close()

	var entries []*models.RideLogEntry
	for rows.Next() {
		e := &models.RideLogEntry{}
		if err := rows.Scan(&e.ID, &e.TelegramID, &e.RideID, &e.FromStatus, &e.ToStatus, &e.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan ride log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
