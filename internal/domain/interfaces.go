package domain

import (
	"context"
	"time"

	"cabbot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// AccountStore persists chat-to-platform account links and local audit data.
type AccountStore interface {
	GetAccount(ctx context.Context, telegramID int64) (*models.Account, error)
	SaveAccount(ctx context.Context, account *models.Account) error
	DeleteAccount(ctx context.Context, telegramID int64) error
	UpdateAccountActivity(ctx context.Context, telegramID int64) error
	UpdateAccountPhone(ctx context.Context, telegramID int64, phone string) error
	GetAllAccounts(ctx context.Context) ([]*models.Account, error)
	AppendRideLog(ctx context.Context, entry *models.RideLogEntry) error
	GetRideLog(ctx context.Context, telegramID int64, limit int) ([]*models.RideLogEntry, error)
}

type StateRepository interface {
	GetState(ctx context.Context, userID int64) (*models.UserState, error)
	SetState(ctx context.Context, state *models.UserState) error
	ClearState(ctx context.Context, userID int64) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

type StateManager interface {
	GetUserState(ctx context.Context, userID int64) (*models.UserState, error)
	SetUserState(ctx context.Context, userID int64, step string, data map[string]interface{}) error
	ClearUserState(ctx context.Context, userID int64) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

type AccountService interface {
	IsAdmin(userID int64) bool
	IsBlacklisted(userID int64) bool
	GetAccount(ctx context.Context, telegramID int64) (*models.Account, error)
	LinkAccount(ctx context.Context, account *models.Account) error
	UnlinkAccount(ctx context.Context, telegramID int64) error
	UpdateActivity(ctx context.Context, telegramID int64) error
	GetAllAccounts(ctx context.Context) ([]*models.Account, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// TelegramSender is the raw bot API surface the service wraps. Satisfied by
// *tgbotapi.BotAPI via the bot wrapper.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

// RideSheetWriter appends finished rides to the ops report sheet.
type RideSheetWriter interface {
	AppendRide(ctx context.Context, entry *models.RideReportRow) error
}

type TelegramService interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	SendMessage(chatID int64, text string) (tgbotapi.Message, error)
	SendWithKeyboard(chatID int64, text string, keyboard tgbotapi.ReplyKeyboardMarkup) (tgbotapi.Message, error)
	SendWithInlineKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	EditMessage(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	AnswerCallback(callbackID string, text string) error
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}
