package models

import "time"

// Account links a Telegram chat to a platform account. The bearer token is
// issued by the platform out of band; the bot only stores and presents it.
type Account struct {
	ID           int64     `json:"id"`
	TelegramID   int64     `json:"telegram_id"`
	Username     string    `json:"username"`
	FirstName    string    `json:"first_name"`
	Role         Role      `json:"role"`
	Token        string    `json:"-"`
	Phone        string    `json:"phone"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RideLogEntry is one observed status transition, kept locally for audit and
// for the ops report worker. Never authoritative, the platform owns rides.
type RideLogEntry struct {
	ID         int64      `json:"id"`
	TelegramID int64      `json:"telegram_id"`
	RideID     string     `json:"ride_id"`
	FromStatus RideStatus `json:"from_status"`
	ToStatus   RideStatus `json:"to_status"`
	ObservedAt time.Time  `json:"observed_at"`
}

// ReportTask represents a queued ops-report job for a finished ride.
type ReportTask struct {
	ID          int64      `json:"id"`
	RideID      string     `json:"ride_id"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}

// RideReportRow is the flattened form of a finished ride written to the ops
// report sheet.
type RideReportRow struct {
	RideID     string     `json:"ride_id"`
	TelegramID int64      `json:"telegram_id"`
	Role       Role       `json:"role"`
	Status     RideStatus `json:"status"`
	Pickup     string     `json:"pickup"`
	Dropoff    string     `json:"dropoff"`
	Fare       *float64   `json:"fare"`
	FinishedAt time.Time  `json:"finished_at"`
}

// Location is a named pickup/dropoff point offered in the request flow.
type Location struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
	Zone string `yaml:"zone,omitempty"`
}
