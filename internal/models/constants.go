package models

const (
	ParseModeMarkdown = "Markdown"
)

const (
	StateLinkToken       = "link_token"
	StateLinkRole        = "link_role"
	StateSelectPickup    = "select_pickup"
	StateSelectDropoff   = "select_dropoff"
	StateConfirmRequest  = "confirm_request"
	StateAwaitingReason  = "awaiting_reason"
	StateAwaitingComment = "awaiting_comment"
)

const (
	// DefaultRedisTTL время жизни состояния пользователя в Redis
	DefaultRedisTTL = 24 * 60 * 60 // 24 часа в секундах

	// DefaultPollIntervalSeconds интервал опроса активной поездки
	DefaultPollIntervalSeconds = 5

	// DefaultHistoryLimit сколько поездок показываем в истории
	DefaultHistoryLimit = 10

	// HistoryCacheTTL время жизни кэша истории поездок
	HistoryCacheTTL = 60 // 1 минута в секундах

	// ProfileCacheTTL время жизни кэша профиля
	ProfileCacheTTL = 5 * 60 // 5 минут в секундах

	// RateLimitMessages количество сообщений в окне
	RateLimitMessages = 20

	// RateLimitWindow окно ограничения частоты сообщений
	RateLimitWindow = 60 // 1 минута в секундах

	// ReportQueueSize размер очереди отчетов
	ReportQueueSize = 128
)
