package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB хранит локальные данные бота: учетные связки, журнал переходов и
// очередь отчетов. Поездками владеет платформа, здесь только то, что
// нужно самому боту.
type DB struct {
	db *sql.DB
}

func NewDB(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &DB{db: db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Привязки Telegram-чатов к аккаунтам платформы
		`CREATE TABLE IF NOT EXISTS accounts (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            telegram_id INTEGER UNIQUE NOT NULL,
            username TEXT,
            first_name TEXT,
            role TEXT NOT NULL,
            token TEXT NOT NULL,
            phone TEXT,
            last_activity DATETIME NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		// Журнал наблюдаемых переходов статуса поездки
		`CREATE TABLE IF NOT EXISTS ride_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            telegram_id INTEGER NOT NULL,
            ride_id TEXT NOT NULL,
            from_status TEXT NOT NULL,
            to_status TEXT NOT NULL,
            observed_at DATETIME NOT NULL
        )`,
		// Очередь отчетов о завершенных поездках
		`CREATE TABLE IF NOT EXISTS report_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            ride_id TEXT NOT NULL,
            payload TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_accounts_telegram_id ON accounts(telegram_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ride_log_telegram_id ON ride_log(telegram_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ride_log_ride_id ON ride_log(ride_id)`,
		`CREATE INDEX IF NOT EXISTS idx_report_queue_status ON report_queue(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("execute %q: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}
