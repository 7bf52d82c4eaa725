package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xuri/excelize/v2"
)

// exportToExcel создает Excel файл с аккаунтами и журналом переходов поездок
func (b *Bot) exportToExcel(ctx context.Context) (string, error) {
	// Создаем папку для экспорта, если не существует
	if err := os.MkdirAll(b.config.Exports.Path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	accounts, err := b.accountService.GetAllAccounts(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting accounts: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	accountsSheet := "Аккаунты"
	index, err := f.NewSheet(accountsSheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	headers := []string{"Telegram ID", "Имя", "Username", "Роль", "Телефон", "Последняя активность", "Привязан"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(accountsSheet, cell, h)
		_ = f.SetCellStyle(accountsSheet, cell, cell, headerStyle)
	}

	for row, account := range accounts {
		values := []interface{}{
			account.TelegramID,
			account.FirstName,
			account.Username,
			string(account.Role),
			account.Phone,
			account.LastActivity.Format("02.01.2006 15:04"),
			account.CreatedAt.Format("02.01.2006"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(accountsSheet, cell, v)
		}
	}
	_ = f.SetColWidth(accountsSheet, "A", "G", 22)

	// Второй лист: журнал переходов по каждому аккаунту
	logSheet := "Поездки"
	if _, err := f.NewSheet(logSheet); err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}

	logHeaders := []string{"Telegram ID", "Поездка", "Из статуса", "В статус", "Время"}
	for i, h := range logHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(logSheet, cell, h)
		_ = f.SetCellStyle(logSheet, cell, cell, headerStyle)
	}

	row := 2
	for _, account := range accounts {
		entries, err := b.accountStore.GetRideLog(ctx, account.TelegramID, 100)
		if err != nil {
			b.logger.Warn().Err(err).Int64("telegram_id", account.TelegramID).Msg("Failed to read ride log for export")
			continue
		}
		for _, e := range entries {
			values := []interface{}{
				e.TelegramID,
				e.RideID,
				string(e.FromStatus),
				string(e.ToStatus),
				e.ObservedAt.Format("02.01.2006 15:04"),
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				_ = f.SetCellValue(logSheet, cell, v)
			}
			row++
		}
	}
	_ = f.SetColWidth(logSheet, "A", "E", 22)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("export_%s.xlsx", time.Now().Format("2006-01-02_15-04"))
	filePath := filepath.Join(b.config.Exports.Path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	b.logger.Info().Str("file_path", filePath).Msg("Excel file created")
	return filePath, nil
}

func (b *Bot) handleExport(ctx context.Context, chatID int64) {
	filePath, err := b.exportToExcel(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("Export failed")
		b.sendMessage(chatID, "Ошибка при создании файла экспорта")
		return
	}

	file, err := os.Open(filePath)
	if err != nil {
		b.logger.Error().Err(err).Msg("Error opening export file")
		b.sendMessage(chatID, "Ошибка при отправке файла")
		return
	}
	defer file.Close()

	fileReader := tgbotapi.FileReader{
		Name:   filepath.Base(filePath),
		Reader: file,
	}

	doc := tgbotapi.NewDocument(chatID, fileReader)
	doc.Caption = "📊 Экспорт аккаунтов и поездок"

	if _, err := b.tgService.Send(doc); err != nil {
		b.logger.Error().Err(err).Msg("Error sending document")
		b.sendMessage(chatID, "Ошибка при отправке файла")
	}
}
