package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cabbot/internal/backend"
	"cabbot/internal/events"
	"cabbot/internal/models"
	"cabbot/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	btnLinkAccount   = "🔗 Привязать аккаунт"
	btnUnlinkAccount = "🚪 Отвязать аккаунт"
	btnRequestRide   = "🚕 Заказать поездку"
	btnCurrentRide   = "📍 Текущая поездка"
	btnHistory       = "📜 История"
	btnWallet        = "💰 Кошелек"
	btnProfile       = "👤 Профиль"

	btnRoleRider  = "🚕 Я пассажир"
	btnRoleDriver = "🚗 Я водитель"

	btnSharePhone = "📱 Отправить номер телефона"
)

func (b *Bot) handleMessage(ctx context.Context, update tgbotapi.Update) {
	message := update.Message
	chatID := message.Chat.ID
	text := strings.TrimSpace(message.Text)

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	if message.Contact != nil {
		b.handleContactShared(ctx, chatID, message.Contact)
		return
	}

	// Сначала проверяем шаги диалога, кнопки меню обрабатываем после
	state, err := b.stateService.GetUserState(ctx, chatID)
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to get user state")
	}
	if state != nil {
		switch state.CurrentStep {
		case models.StateLinkToken:
			b.handleLinkToken(ctx, chatID, text)
			return
		case models.StateLinkRole:
			b.handleLinkRole(ctx, chatID, text, state)
			return
		case models.StateAwaitingReason:
			b.handleCancelReason(ctx, chatID, text)
			return
		case models.StateAwaitingComment:
			b.handleRatingComment(ctx, chatID, text, state)
			return
		}
	}

	switch text {
	case btnLinkAccount:
		b.startLinkFlow(ctx, chatID)
	case btnUnlinkAccount:
		b.handleUnlink(ctx, chatID)
	case btnRequestRide:
		b.startRequestFlow(ctx, chatID)
	case btnCurrentRide:
		b.handleCurrentRide(ctx, chatID)
	case btnHistory:
		b.handleHistory(ctx, chatID)
	case btnWallet:
		b.handleWallet(ctx, chatID)
	case btnProfile:
		b.handleProfile(ctx, chatID)
	default:
		b.showMainMenu(ctx, chatID)
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	switch message.Command() {
	case "start":
		if err := b.stateService.ClearUserState(ctx, chatID); err != nil {
			b.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("Failed to clear state")
		}
		b.sendMessage(chatID, "👋 Привет! Я помогу заказать такси и следить за поездкой.")
		b.showMainMenu(ctx, chatID)
	case "help":
		b.sendMessage(chatID, "Привяжите аккаунт платформы токеном, затем пользуйтесь кнопками меню. "+
			"Во время поездки сообщение трекинга обновляется само.")
	case "export":
		if !b.accountService.IsAdmin(chatID) {
			b.sendMessage(chatID, "⛔ Команда доступна только администраторам.")
			return
		}
		b.handleExport(ctx, chatID)
	default:
		b.sendMessage(chatID, "Неизвестная команда. Попробуйте /help.")
	}
}

// showMainMenu отправляет клавиатуру, зависящую от привязки и роли.
func (b *Bot) showMainMenu(ctx context.Context, chatID int64) {
	account, err := b.accountService.GetAccount(ctx, chatID)
	linked := err == nil && account != nil

	var role models.Role
	if linked {
		role = account.Role
	}

	text := "Выберите действие:"
	if !linked {
		text = "Для начала привяжите аккаунт платформы."
	}
	if _, err := b.tgService.SendWithKeyboard(chatID, text, mainMenuKeyboard(role, linked)); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send main menu")
	}
}

// requireAccount возвращает привязанный аккаунт или объясняет, что делать.
func (b *Bot) requireAccount(ctx context.Context, chatID int64) *models.Account {
	account, err := b.accountService.GetAccount(ctx, chatID)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotLinked) {
			b.sendMessage(chatID, "Сначала привяжите аккаунт платформы.")
		} else {
			b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to load account")
			b.sendMessage(chatID, b.getErrorMessage(err))
		}
		return nil
	}
	return account
}

func (b *Bot) boundClient(account *models.Account) *backend.UserClient {
	return b.backend.Bind(backend.StaticToken(account.Token))
}

// Привязка аккаунта

func (b *Bot) startLinkFlow(ctx context.Context, chatID int64) {
	if err := b.stateService.SetUserState(ctx, chatID, models.StateLinkToken, nil); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to set state")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	b.sendMessage(chatID, "Отправьте токен доступа, выданный платформой.")
}

func (b *Bot) handleLinkToken(ctx context.Context, chatID int64, token string) {
	if token == "" {
		b.sendMessage(chatID, "Токен не может быть пустым. Попробуйте еще раз.")
		return
	}

	if err := b.stateService.SetUserState(ctx, chatID, models.StateLinkRole,
		map[string]interface{}{"token": token}); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to set state")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnRoleRider),
			tgbotapi.NewKeyboardButton(btnRoleDriver),
		),
	)
	if _, err := b.tgService.SendWithKeyboard(chatID, "Кем вы пользуетесь платформой?", keyboard); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send role keyboard")
	}
}

func (b *Bot) handleLinkRole(ctx context.Context, chatID int64, text string, state *models.UserState) {
	var role models.Role
	switch text {
	case btnRoleRider:
		role = models.RoleRider
	case btnRoleDriver:
		role = models.RoleDriver
	default:
		b.sendMessage(chatID, "Выберите роль кнопкой ниже.")
		return
	}

	account := &models.Account{
		TelegramID: chatID,
		Role:       role,
		Token:      state.GetString("token"),
	}
	if err := b.accountService.LinkAccount(ctx, account); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to link account")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	if err := b.stateService.ClearUserState(ctx, chatID); err != nil {
		b.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("Failed to clear state")
	}

	_ = b.eventBus.PublishJSON(events.EventAccountLinked, events.AccountEventPayload{
		TelegramID: chatID,
		Role:       role,
	})

	b.sendMessage(chatID, "✅ Аккаунт привязан!")
	b.showMainMenu(ctx, chatID)

	// Если на платформе уже есть активная поездка, сразу подхватываем ее
	b.trackers.StartTracking(account)
}

func (b *Bot) handleUnlink(ctx context.Context, chatID int64) {
	b.trackers.StopTracking(chatID)

	if err := b.accountService.UnlinkAccount(ctx, chatID); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to unlink account")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	if err := b.stateService.ClearUserState(ctx, chatID); err != nil {
		b.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("Failed to clear state")
	}

	_ = b.eventBus.PublishJSON(events.EventAccountUnlinked, events.AccountEventPayload{TelegramID: chatID})

	b.sendMessage(chatID, "Аккаунт отвязан.")
	b.showMainMenu(ctx, chatID)
}

// Заказ поездки

func (b *Bot) startRequestFlow(ctx context.Context, chatID int64) {
	account := b.requireAccount(ctx, chatID)
	if account == nil {
		return
	}
	if account.Role != models.RoleRider {
		b.sendMessage(chatID, "Заказывать поездки могут только пассажиры.")
		return
	}

	if err := b.stateService.SetUserState(ctx, chatID, models.StateSelectPickup, nil); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to set state")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	keyboard := locationsKeyboard(b.locations, cbPickupPrefix, 0)
	if _, err := b.tgService.SendWithInlineKeyboard(chatID, "📍 Откуда поедем?", keyboard); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send pickup keyboard")
	}
}

// Текущая поездка

func (b *Bot) handleCurrentRide(ctx context.Context, chatID int64) {
	account := b.requireAccount(ctx, chatID)
	if account == nil {
		return
	}
	b.trackers.StartTracking(account)
}

// История, кошелек, профиль

func (b *Bot) handleHistory(ctx context.Context, chatID int64) {
	account := b.requireAccount(ctx, chatID)
	if account == nil {
		return
	}

	entries, err := b.boundClient(account).History(ctx, b.config.Bot.HistoryLimit)
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to fetch ride history")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	if len(entries) == 0 {
		b.sendMessage(chatID, "История пока пуста.")
		return
	}

	var sb strings.Builder
	sb.WriteString("📜 Последние поездки:\n\n")
	for _, e := range entries {
		icon := "✅"
		if e.Status == models.StatusCancelled {
			icon = "🚫"
		}
		sb.WriteString(fmt.Sprintf("%s %s → %s", icon, e.PickupLocationName, e.DropoffLocationName))
		if e.Fare != nil {
			sb.WriteString(fmt.Sprintf(" · %.2f ₽", *e.Fare))
		}
		if !e.CompletedAt.IsZero() {
			sb.WriteString(fmt.Sprintf(" · %s", e.CompletedAt.Format("02.01 15:04")))
		}
		sb.WriteString("\n")
	}
	b.sendMessage(chatID, sb.String())
}

func (b *Bot) handleWallet(ctx context.Context, chatID int64) {
	account := b.requireAccount(ctx, chatID)
	if account == nil {
		return
	}

	wallet, err := b.boundClient(account).Wallet(ctx)
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to fetch wallet")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	b.sendMessage(chatID, fmt.Sprintf("💰 Баланс: %.2f %s", wallet.Balance, wallet.Currency))
}

func (b *Bot) handleProfile(ctx context.Context, chatID int64) {
	account := b.requireAccount(ctx, chatID)
	if account == nil {
		return
	}

	profile, err := b.boundClient(account).Profile(ctx)
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to fetch profile")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👤 %s\n", profile.Name))
	roleLabel := "Пассажир"
	if profile.Role == models.RoleDriver {
		roleLabel = "Водитель"
	}
	sb.WriteString(fmt.Sprintf("Роль: %s\n", roleLabel))
	if profile.Phone != "" {
		sb.WriteString(fmt.Sprintf("Телефон: %s\n", profile.Phone))
	}
	if profile.Rating > 0 {
		sb.WriteString(fmt.Sprintf("Рейтинг: ⭐ %.1f\n", profile.Rating))
	}
	if profile.TripCount > 0 {
		sb.WriteString(fmt.Sprintf("Поездок: %d\n", profile.TripCount))
	}

	if account.Phone == "" {
		sb.WriteString("\nПоделитесь номером, чтобы с вами было проще связаться.")
		keyboard := tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButtonContact(btnSharePhone),
			),
		)
		keyboard.ResizeKeyboard = true
		keyboard.OneTimeKeyboard = true
		if _, err := b.tgService.SendWithKeyboard(chatID, sb.String(), keyboard); err != nil {
			b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send profile")
		}
		return
	}
	b.sendMessage(chatID, sb.String())
}

// handleContactShared сохраняет телефон из присланного контакта.
func (b *Bot) handleContactShared(ctx context.Context, chatID int64, contact *tgbotapi.Contact) {
	account := b.requireAccount(ctx, chatID)
	if account == nil {
		return
	}

	// Чужие контакты не принимаем
	if contact.UserID != 0 && contact.UserID != chatID {
		b.sendMessage(chatID, "Можно отправить только свой контакт.")
		return
	}

	if err := b.accountStore.UpdateAccountPhone(ctx, chatID, contact.PhoneNumber); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to save phone")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	b.sendMessage(chatID, "📱 Телефон сохранен.")
	b.showMainMenu(ctx, chatID)
}

// Отмена и оценка

func (b *Bot) handleCancelReason(ctx context.Context, chatID int64, reason string) {
	dispatcher := b.trackers.Dispatcher(chatID)
	if dispatcher == nil {
		if err := b.stateService.ClearUserState(ctx, chatID); err != nil {
			b.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("Failed to clear state")
		}
		b.sendMessage(chatID, "Активная поездка не найдена.")
		return
	}

	if err := dispatcher.Cancel(ctx, reason); err != nil {
		b.observeAction("cancel", err)
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	b.observeAction("cancel", nil)

	if err := b.stateService.ClearUserState(ctx, chatID); err != nil {
		b.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("Failed to clear state")
	}
}

func (b *Bot) handleRatingComment(ctx context.Context, chatID int64, comment string, state *models.UserState) {
	b.submitRating(ctx, chatID, state.GetInt("rating"), comment)
}

func (b *Bot) submitRating(ctx context.Context, chatID int64, rating int, comment string) {
	if rating < 1 || rating > 5 {
		b.sendMessage(chatID, "Оценка должна быть от 1 до 5.")
		return
	}

	dispatcher := b.trackers.Dispatcher(chatID)
	if dispatcher == nil {
		if err := b.stateService.ClearUserState(ctx, chatID); err != nil {
			b.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("Failed to clear state")
		}
		b.sendMessage(chatID, "Активная поездка не найдена.")
		return
	}

	if err := dispatcher.Rate(ctx, rating, comment); err != nil {
		b.observeAction("rate", err)
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	b.observeAction("rate", nil)

	if err := b.stateService.ClearUserState(ctx, chatID); err != nil {
		b.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("Failed to clear state")
	}
}

func (b *Bot) observeAction(action string, err error) {
	if b.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	b.metrics.ActionsDispatched.WithLabelValues(action, result).Inc()
}

func (b *Bot) findLocation(id int64) *models.Location {
	for i := range b.locations {
		if b.locations[i].ID == id {
			return &b.locations[i]
		}
	}
	return nil
}
