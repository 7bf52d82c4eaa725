package bot

import (
	"fmt"
	"strings"

	"cabbot/internal/models"
	"cabbot/internal/ride"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cbActionPrefix  = "act:"
	cbRatePrefix    = "rate:"
	cbPickupPrefix  = "pickup:"
	cbDropoffPrefix = "dropoff:"
	cbConfirmOrder  = "confirm_request"
	cbCancelOrder   = "cancel_request"
	cbSkipComment   = "skip_comment"
	cbBackToMain    = "back_to_main"
)

var actionButtons = map[ride.Action]string{
	ride.ActionStart:       "▶️ Начать поездку",
	ride.ActionCancel:      "❌ Отменить",
	ride.ActionComplete:    "🏁 Завершить",
	ride.ActionPay:         "💳 Оплатить",
	ride.ActionConfirmCash: "💵 Наличные получены",
}

var statusLines = map[ride.TrackingState]string{
	ride.TrackingConnecting: "🔄 Ищем водителя...",
	ride.TrackingEnRoute:    "🚕 Водитель в пути",
	ride.TrackingInProgress: "🛣 Поездка началась",
	ride.TrackingCancelled:  "🚫 Поездка отменена",
}

// renderRide строит текст и клавиатуру трекингового сообщения. Содержимое
// зависит только от роли и снапшота, локальных догадок здесь нет.
func renderRide(role models.Role, r *models.Ride) (string, *tgbotapi.InlineKeyboardMarkup) {
	if r == nil {
		return "⏳ Подключаемся к поездке...", nil
	}

	switch ride.ViewFor(role, r.Status) {
	case ride.ViewPayment:
		return renderPayment(role, r)
	case ride.ViewRating:
		return renderRating(r)
	case ride.ViewNone:
		return "Поездка завершена. Спасибо!", nil
	default:
		return renderTracking(role, r)
	}
}

func renderTracking(role models.Role, r *models.Ride) (string, *tgbotapi.InlineKeyboardMarkup) {
	var sb strings.Builder
	sb.WriteString(statusLines[ride.TrackingStateFor(r.Status)])
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("📍 Откуда: %s\n🏁 Куда: %s\n", r.PickupLocationName, r.DropoffLocationName))

	if party := r.Counterpart(role); party != nil {
		label := "Водитель"
		if role == models.RoleDriver {
			label = "Пассажир"
		}
		sb.WriteString(fmt.Sprintf("\n👤 %s: %s", label, party.Name))
		if party.Rating > 0 {
			sb.WriteString(fmt.Sprintf(" ⭐ %.1f", party.Rating))
		}
		if party.Phone != "" {
			sb.WriteString(fmt.Sprintf("\n📞 %s", party.Phone))
		}
		sb.WriteString("\n")
	}

	actions := ride.ActionsFor(role, r.Status)
	if len(actions) == 0 {
		return sb.String(), nil
	}

	var row []tgbotapi.InlineKeyboardButton
	for _, action := range actions {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(actionButtons[action], cbActionPrefix+string(action)))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(row)
	return sb.String(), &kb
}

func renderPayment(role models.Role, r *models.Ride) (string, *tgbotapi.InlineKeyboardMarkup) {
	var sb strings.Builder
	sb.WriteString("🧾 Поездка завершена, ожидается оплата.\n\n")
	sb.WriteString(fmt.Sprintf("📍 %s → %s\n", r.PickupLocationName, r.DropoffLocationName))
	if r.Fare != nil {
		sb.WriteString(fmt.Sprintf("💰 К оплате: %.2f ₽\n", *r.Fare))
	}

	action := ride.PaymentActionFor(role)
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(actionButtons[action], cbActionPrefix+string(action)),
		),
	)
	return sb.String(), &kb
}

func renderRating(r *models.Ride) (string, *tgbotapi.InlineKeyboardMarkup) {
	text := "✅ Оплачено! Оцените поездку:"
	if r.Fare != nil {
		text = fmt.Sprintf("✅ Оплачено %.2f ₽! Оцените поездку:", *r.Fare)
	}

	var row []tgbotapi.InlineKeyboardButton
	for i := 1; i <= 5; i++ {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			strings.Repeat("⭐", i), fmt.Sprintf("%s%d", cbRatePrefix, i)))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(row)
	return text, &kb
}

// mainMenuKeyboard зависит от роли привязанного аккаунта.
func mainMenuKeyboard(role models.Role, linked bool) tgbotapi.ReplyKeyboardMarkup {
	if !linked {
		return tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton("🔗 Привязать аккаунт"),
			),
		)
	}

	rows := [][]tgbotapi.KeyboardButton{}
	if role == models.RoleRider {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("🚕 Заказать поездку"),
			tgbotapi.NewKeyboardButton("📍 Текущая поездка"),
		))
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("📜 История"),
			tgbotapi.NewKeyboardButton("💰 Кошелек"),
		))
	} else {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("📍 Текущая поездка"),
			tgbotapi.NewKeyboardButton("📜 История"),
		))
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton("👤 Профиль"),
		tgbotapi.NewKeyboardButton("🚪 Отвязать аккаунт"),
	))
	return tgbotapi.NewReplyKeyboard(rows...)
}

// locationsKeyboard разбивает точки по две в ряд.
func locationsKeyboard(locations []models.Location, prefix string, excludeID int64) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, loc := range locations {
		if loc.ID == excludeID {
			continue
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			loc.Name, fmt.Sprintf("%s%d", prefix, loc.ID)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", cbBackToMain)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
