package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cabbot/internal/models"
)

func (db *DB) SaveAccount(ctx context.Context, account *models.Account) error {
	query := `INSERT INTO accounts (
				telegram_id, username, first_name, role, token, phone,
				last_activity, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(telegram_id) DO UPDATE SET
                username = excluded.username,
                first_name = excluded.first_name,
                role = excluded.role,
                token = excluded.token,
                last_activity = excluded.last_activity,
                updated_at = excluded.updated_at`

	lastActivity := account.LastActivity
	if lastActivity.IsZero() {
		lastActivity = time.Now()
	}
	now := time.Now()
	_, err := db.db.ExecContext(ctx, query,
		account.TelegramID,
		account.Username,
		account.FirstName,
		account.Role,
		account.Token,
		account.Phone,
		lastActivity,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

// GetAccount returns nil, nil when the chat has no link.
func (db *DB) GetAccount(ctx context.Context, telegramID int64) (*models.Account, error) {
	query := `SELECT id, telegram_id, username, first_name, role, token, phone,
	                 last_activity, created_at, updated_at
              FROM accounts WHERE telegram_id = ?`

	var a models.Account
	err := db.db.QueryRowContext(ctx, query, telegramID).Scan(
		&a.ID, &a.TelegramID, &a.Username, &a.FirstName, &a.Role, &a.Token,
		&a.Phone, &a.LastActivity, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &a, nil
}

func (db *DB) DeleteAccount(ctx context.Context, telegramID int64) error {
	_, err := db.db.ExecContext(ctx, `DELETE FROM accounts WHERE telegram_id = ?`, telegramID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

func (db *DB) UpdateAccountActivity(ctx context.Context, telegramID int64) error {
	now := time.Now()
	_, err := db.db.ExecContext(ctx,
		`UPDATE accounts SET last_activity = ?, updated_at = ? WHERE telegram_id = ?`,
		now, now, telegramID)
	return err
}

func (db *DB) UpdateAccountPhone(ctx context.Context, telegramID int64, phone string) error {
	_, err := db.db.ExecContext(ctx,
		`UPDATE accounts SET phone = ?, updated_at = ? WHERE telegram_id = ?`,
		phone, time.Now(), telegramID)
	return err
}

func (db *DB) GetAllAccounts(ctx context.Context) ([]*models.Account, error) {
	query := `SELECT id, telegram_id, username, first_name, role, token, phone,
	                 last_activity, created_at, updated_at
              FROM accounts ORDER BY last_activity DESC`

	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a := &models.Account{}
		err := rows.Scan(
			&a.ID, &a.TelegramID, &a.Username, &a.FirstName, &a.Role, &a.Token,
			&a.Phone, &a.LastActivity, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
