package bot

import (
	"context"
	"os"
	"time"

	"cabbot/internal/backend"
	"cabbot/internal/config"
	"cabbot/internal/domain"
	"cabbot/internal/events"
	"cabbot/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Bot struct {
	tgService      domain.TelegramService
	config         *config.Config
	stateService   domain.StateManager
	accountService domain.AccountService
	accountStore   domain.AccountStore
	backend        *backend.Client
	locations      []models.Location
	eventBus       domain.EventPublisher
	trackers       *TrackerManager
	metrics        *Metrics
	logger         *zerolog.Logger
}

func NewBot(
	tgService domain.TelegramService,
	cfg *config.Config,
	stateService domain.StateManager,
	accountService domain.AccountService,
	accountStore domain.AccountStore,
	backendClient *backend.Client,
	locations []models.Location,
	eventBus domain.EventPublisher,
	metrics *Metrics,
	logger *zerolog.Logger,
) (*Bot, error) {
	if eventBus == nil {
		eventBus = events.NewEventBus()
	}

	if logger == nil {
		l := zerolog.New(os.Stdout).With().Timestamp().Logger()
		logger = &l
	}

	b := &Bot{
		tgService:      tgService,
		config:         cfg,
		stateService:   stateService,
		accountService: accountService,
		accountStore:   accountStore,
		backend:        backendClient,
		locations:      locations,
		eventBus:       eventBus,
		metrics:        metrics,
		logger:         logger,
	}
	b.trackers = NewTrackerManager(b)
	return b, nil
}

// Trackers exposes the tracker manager for the ops API.
func (b *Bot) Trackers() *TrackerManager {
	return b.trackers
}

func (b *Bot) Start(ctx context.Context) {
	b.trackers.SetBaseContext(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tgService.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tgService.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			b.trackers.StopAll()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() {
		if b.metrics != nil {
			b.metrics.UpdateProcessingTime.Observe(time.Since(start).Seconds())
		}
	}()

	// Контекст на обработку одного обновления
	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	requestID := uuid.New().String()
	l := b.logger.With().Str("request_id", requestID).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		if b.metrics != nil {
			b.metrics.MessagesProcessed.Inc()
		}

		var userID int64
		if update.Message != nil {
			userID = update.Message.From.ID
		} else if update.CallbackQuery != nil {
			userID = update.CallbackQuery.From.ID
		}
		if userID == 0 {
			return
		}

		if b.accountService.IsBlacklisted(userID) {
			return
		}

		b.trackActivity(userID)

		if !b.accountService.IsAdmin(userID) {
			allowed, err := b.stateService.CheckRateLimit(updateCtx, userID,
				b.config.Bot.RateLimitMessages, time.Duration(b.config.Bot.RateLimitWindow)*time.Second)
			if err != nil {
				b.logger.Error().Err(err).Int64("user_id", userID).Msg("Rate limit check failed")
			} else if !allowed {
				b.logger.Warn().Int64("user_id", userID).Msg("Rate limit exceeded")
				if update.Message != nil {
					b.sendMessage(update.Message.Chat.ID, "⚠️ Слишком много сообщений. Подождите немного.")
				}
				return
			}
		}

		if update.CallbackQuery != nil {
			b.handleCallbackQuery(updateCtx, update)
			return
		}

		if update.Message == nil {
			return
		}

		b.handleMessage(updateCtx, update)
	})
}

func (b *Bot) sendMessage(chatID int64, text string) {
	if _, err := b.tgService.SendMessage(chatID, text); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}
