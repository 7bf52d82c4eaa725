package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"cabbot/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// RideSheetService пишет завершенные поездки в таблицу для диспетчеров.
type RideSheetService struct {
	service       *sheets.Service
	spreadsheetID string
}

func NewRideSheetService(credentialsFile, spreadsheetID string) (*RideSheetService, error) {
	ctx := context.Background()

	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	return &RideSheetService{
		service:       srv,
		spreadsheetID: spreadsheetID,
	}, nil
}

// TestConnection проверяет доступ к таблице при старте.
func (s *RideSheetService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, "Rides!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %v", err)
	}
	return nil
}

// GetServiceAccountEmail возвращает email сервисного аккаунта, чтобы
// админ знал, кому выдать доступ к таблице.
func (s *RideSheetService) GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// AppendRide дописывает строку о завершенной поездке.
func (s *RideSheetService) AppendRide(ctx context.Context, row *models.RideReportRow) error {
	fare := ""
	if row.Fare != nil {
		fare = fmt.Sprintf("%.2f", *row.Fare)
	}

	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{{
			row.RideID,
			row.TelegramID,
			string(row.Role),
			string(row.Status),
			row.Pickup,
			row.Dropoff,
			fare,
			row.FinishedAt.Format("2006-01-02 15:04:05"),
		}},
	}

	_, err := s.service.Spreadsheets.Values.
		Append(s.spreadsheetID, "Rides!A:H", valueRange).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append ride row: %w", err)
	}
	return nil
}
