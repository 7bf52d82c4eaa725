package bot

import (
	"errors"

	"cabbot/internal/backend"
	"cabbot/internal/ride"
	"cabbot/internal/service"
)

func (b *Bot) getErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, service.ErrAccountNotLinked) {
		return "⚠️ Сначала привяжите аккаунт платформы: нажмите «🔗 Привязать аккаунт»."
	}

	if errors.Is(err, ride.ErrActionInFlight) {
		return "⏳ Предыдущее действие еще обрабатывается. Подождите секунду и попробуйте снова."
	}

	if errors.Is(err, backend.ErrNoActiveRide) {
		return "ℹ️ Активной поездки сейчас нет."
	}

	// Текст отказа приходит от платформы и показывается как есть
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return "⚠️ " + apiErr.UserMessage()
	}

	return "❌ Произошла ошибка при обработке запроса. Попробуйте позже или напишите администратору."
}
