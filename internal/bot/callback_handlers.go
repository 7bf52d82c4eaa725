package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"cabbot/internal/events"
	"cabbot/internal/models"
	"cabbot/internal/ride"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, update tgbotapi.Update) {
	cb := update.CallbackQuery
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	data := cb.Data

	// Убираем часики на кнопке сразу, до любой работы
	if err := b.tgService.AnswerCallback(cb.ID, ""); err != nil {
		b.logger.Debug().Err(err).Msg("Failed to answer callback")
	}

	switch {
	case strings.HasPrefix(data, cbActionPrefix):
		b.handleRideAction(ctx, chatID, ride.Action(strings.TrimPrefix(data, cbActionPrefix)))
	case strings.HasPrefix(data, cbRatePrefix):
		b.handleRateCallback(ctx, chatID, strings.TrimPrefix(data, cbRatePrefix))
	case strings.HasPrefix(data, cbPickupPrefix):
		b.handlePickupSelected(ctx, chatID, strings.TrimPrefix(data, cbPickupPrefix))
	case strings.HasPrefix(data, cbDropoffPrefix):
		b.handleDropoffSelected(ctx, chatID, strings.TrimPrefix(data, cbDropoffPrefix))
	case data == cbConfirmOrder:
		b.handleConfirmRequest(ctx, chatID)
	case data == cbCancelOrder, data == cbBackToMain:
		if err := b.stateService.ClearUserState(ctx, chatID); err != nil {
			b.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("Failed to clear state")
		}
		b.showMainMenu(ctx, chatID)
	case data == cbSkipComment:
		b.handleSkipComment(ctx, chatID)
	default:
		b.logger.Warn().Str("data", data).Msg("Unknown callback data")
	}
}

// handleRideAction переводит нажатие кнопки трекинга в действие над поездкой.
func (b *Bot) handleRideAction(ctx context.Context, chatID int64, action ride.Action) {
	dispatcher := b.trackers.Dispatcher(chatID)
	if dispatcher == nil {
		b.sendMessage(chatID, "Активная поездка не найдена.")
		return
	}

	// Отмена требует причину, поэтому уходит в отдельный шаг диалога
	if action == ride.ActionCancel {
		if err := b.stateService.SetUserState(ctx, chatID, models.StateAwaitingReason, nil); err != nil {
			b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to set state")
			b.sendMessage(chatID, b.getErrorMessage(err))
			return
		}
		b.sendMessage(chatID, "Укажите причину отмены:")
		return
	}

	var err error
	switch action {
	case ride.ActionStart:
		err = dispatcher.Start(ctx)
	case ride.ActionComplete:
		err = dispatcher.Complete(ctx)
	case ride.ActionPay:
		err = dispatcher.Pay(ctx)
	case ride.ActionConfirmCash:
		err = dispatcher.ConfirmCash(ctx)
	default:
		b.logger.Warn().Str("action", string(action)).Msg("Unknown ride action")
		return
	}

	b.observeAction(string(action), err)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	_ = b.eventBus.PublishJSON(events.EventActionDispatched, events.RideEventPayload{
		TelegramID: chatID,
		Action:     string(action),
	})
}

// Оценка поездки

func (b *Bot) handleRateCallback(ctx context.Context, chatID int64, raw string) {
	rating, err := strconv.Atoi(raw)
	if err != nil || rating < 1 || rating > 5 {
		return
	}

	if err := b.stateService.SetUserState(ctx, chatID, models.StateAwaitingComment,
		map[string]interface{}{"rating": rating}); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to set state")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Пропустить", cbSkipComment),
		),
	)
	text := fmt.Sprintf("Оценка %s. Добавите комментарий?", strings.Repeat("⭐", rating))
	if _, err := b.tgService.SendWithInlineKeyboard(chatID, text, keyboard); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send comment prompt")
	}
}

func (b *Bot) handleSkipComment(ctx context.Context, chatID int64) {
	state, err := b.stateService.GetUserState(ctx, chatID)
	if err != nil || state == nil || state.CurrentStep != models.StateAwaitingComment {
		return
	}
	b.submitRating(ctx, chatID, state.GetInt("rating"), "")
}

// Выбор точек заказа

func (b *Bot) handlePickupSelected(ctx context.Context, chatID int64, raw string) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return
	}
	loc := b.findLocation(id)
	if loc == nil {
		b.sendMessage(chatID, "Эта точка больше недоступна, выберите другую.")
		return
	}

	if err := b.stateService.SetUserState(ctx, chatID, models.StateSelectDropoff, map[string]interface{}{
		"pickup_id":   id,
		"pickup_name": loc.Name,
	}); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to set state")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	keyboard := locationsKeyboard(b.locations, cbDropoffPrefix, id)
	text := fmt.Sprintf("📍 Откуда: %s\n\n🏁 Куда поедем?", loc.Name)
	if _, err := b.tgService.SendWithInlineKeyboard(chatID, text, keyboard); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send dropoff keyboard")
	}
}

func (b *Bot) handleDropoffSelected(ctx context.Context, chatID int64, raw string) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return
	}
	loc := b.findLocation(id)
	if loc == nil {
		b.sendMessage(chatID, "Эта точка больше недоступна, выберите другую.")
		return
	}

	state, err := b.stateService.GetUserState(ctx, chatID)
	if err != nil || state == nil || state.CurrentStep != models.StateSelectDropoff {
		b.sendMessage(chatID, "Начните заказ заново.")
		b.showMainMenu(ctx, chatID)
		return
	}
	pickup := state.GetString("pickup_name")
	if pickup == loc.Name {
		b.sendMessage(chatID, "Точки отправления и назначения совпадают.")
		return
	}

	if err := b.stateService.SetUserState(ctx, chatID, models.StateConfirmRequest, map[string]interface{}{
		"pickup_name":  pickup,
		"dropoff_name": loc.Name,
	}); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to set state")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Заказать", cbConfirmOrder),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", cbCancelOrder),
		),
	)
	text := fmt.Sprintf("Проверьте заказ:\n\n📍 Откуда: %s\n🏁 Куда: %s", pickup, loc.Name)
	if _, err := b.tgService.SendWithInlineKeyboard(chatID, text, keyboard); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send confirm keyboard")
	}
}

func (b *Bot) handleConfirmRequest(ctx context.Context, chatID int64) {
	state, err := b.stateService.GetUserState(ctx, chatID)
	if err != nil || state == nil || state.CurrentStep != models.StateConfirmRequest {
		b.sendMessage(chatID, "Начните заказ заново.")
		b.showMainMenu(ctx, chatID)
		return
	}

	account := b.requireAccount(ctx, chatID)
	if account == nil {
		return
	}

	pickup := state.GetString("pickup_name")
	dropoff := state.GetString("dropoff_name")
	newRide, err := b.boundClient(account).RequestRide(ctx, pickup, dropoff)
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to request ride")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	if err := b.stateService.ClearUserState(ctx, chatID); err != nil {
		b.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("Failed to clear state")
	}

	_ = b.eventBus.PublishJSON(events.EventRideRequested, events.RideEventPayload{
		RideID:     newRide.ID,
		TelegramID: chatID,
		Role:       account.Role,
		ToStatus:   newRide.Status,
		Pickup:     newRide.PickupLocationName,
		Dropoff:    newRide.DropoffLocationName,
	})

	b.sendMessage(chatID, "🚕 Заказ создан! Ищем водителя...")
	b.trackers.StartTracking(account)
}
