package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotWrapper приводит *tgbotapi.BotAPI к интерфейсу domain.TelegramSender.
type BotWrapper struct {
	*tgbotapi.BotAPI
}

func NewBotWrapper(api *tgbotapi.BotAPI) *BotWrapper {
	return &BotWrapper{BotAPI: api}
}

func (w *BotWrapper) GetSelf() tgbotapi.User {
	return w.Self
}

func (w *BotWrapper) StopReceivingUpdates() {
	w.BotAPI.StopReceivingUpdates()
}
