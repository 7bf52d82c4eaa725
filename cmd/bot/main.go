package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cabbot/internal/api"
	"cabbot/internal/backend"
	"cabbot/internal/bot"
	"cabbot/internal/config"
	"cabbot/internal/events"
	"cabbot/internal/google"
	"cabbot/internal/logging"
	"cabbot/internal/metrics"
	"cabbot/internal/models"
	"cabbot/internal/repository"
	"cabbot/internal/service"
	"cabbot/internal/store"
	"cabbot/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, locations, logger, closer, loadErr := loadConfigAndLogger()
	if loadErr != nil {
		return loadErr
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := store.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации базы данных")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, stateService := initStateService(ctx, cfg, &logger)

	// Воркер выгрузки завершенных поездок в Google Sheets; без учетных
	// данных бот работает, просто ничего не отчитывает
	var reportWorker *worker.ReportWorker
	if sheet := initRideSheet(ctx, cfg, &logger); sheet != nil {
		retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
		reportWorker = worker.NewReportWorker(db, sheet, redisClient, retryPolicy, nil)
		go reportWorker.Start(ctx)
	}

	backendClient := backend.NewClient(cfg.Backend, &logger)
	if redisClient != nil {
		backendClient.UseRedisCache(redisClient, cfg.Backend.CacheTTL())
	}

	accountService := service.NewAccountService(db, cfg, &logger)
	eventBus := events.NewEventBus()
	subscribeRideEvents(ctx, eventBus, reportWorker, &logger)
	botMetrics := bot.NewMetrics()

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error().Err(err).Msg("Metrics server error")
			}
		}()
	}

	if cfg.Database.Backup.Enabled {
		backupService := store.NewBackupService(cfg.Database.Path, cfg.Database.Backup, &logger)
		go backupService.Start(ctx)
	}

	return startBot(ctx, cfg, db, stateService, accountService, backendClient,
		locations, eventBus, botMetrics, &logger)
}

// subscribeRideEvents подключает воркер отчетов к шине событий. Бот сам не
// знает про отчеты, он только публикует факт завершения поездки.
func subscribeRideEvents(
	ctx context.Context,
	bus *events.EventBus,
	reportWorker *worker.ReportWorker,
	logger *zerolog.Logger,
) {
	if bus == nil || reportWorker == nil {
		return
	}

	bus.Subscribe(events.EventRideFinished, func(ev *events.Event) error {
		var payload events.RideEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}

		ride := &models.Ride{
			ID:                  payload.RideID,
			Status:              payload.ToStatus,
			PickupLocationName:  payload.Pickup,
			DropoffLocationName: payload.Dropoff,
			Fare:                payload.Fare,
		}
		if err := reportWorker.EnqueueRide(ctx, payload.TelegramID, payload.Role, ride); err != nil {
			logger.Error().Err(err).Str("ride_id", payload.RideID).Msg("event bus: enqueue report")
		}
		return nil
	})
}

func loadConfigAndLogger() (*config.Config, []models.Location, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "bot-main").Logger()

	locationsPath := os.Getenv("LOCATIONS_PATH")
	if locationsPath == "" {
		locationsPath = "configs/locations.yaml"
	}
	locationsData, err := os.ReadFile(locationsPath)
	if err != nil {
		logger.Error().Err(err).Msgf("Ошибка чтения %s", locationsPath)
		return nil, nil, zerolog.Logger{}, closer, err
	}

	var locationsConfig struct {
		Locations []models.Location `yaml:"locations"`
	}
	if err := yaml.Unmarshal(locationsData, &locationsConfig); err != nil {
		logger.Error().Err(err).Msg("Ошибка парсинга locations.yaml")
		return nil, nil, zerolog.Logger{}, closer, err
	}

	if err := config.ValidateLocations(locationsConfig.Locations); err != nil {
		logger.Error().Err(err).Msg("Locations validation failed")
		return nil, nil, zerolog.Logger{}, closer, err
	}

	return cfg, locationsConfig.Locations, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg == nil {
		return os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для базы данных")
		return err
	}
	if cfg.Exports.Path != "" {
		if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
			logger.Error().Err(err).Msg("Ошибка создания директории для экспорта")
			return err
		}
	}
	return nil
}

func initRideSheet(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.RideSheetService {
	if cfg.Google.CredentialsFile == "" || cfg.Google.ReportSpreadsheetID == "" {
		logger.Info().Msg("Google Sheets не настроен, отчеты по поездкам отключены")
		return nil
	}

	sheet, err := google.NewRideSheetService(cfg.Google.CredentialsFile, cfg.Google.ReportSpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize ride sheet service")
		return nil
	}

	if err := sheet.TestConnection(ctx); err != nil {
		if email, emailErr := sheet.GetServiceAccountEmail(cfg.Google.CredentialsFile); emailErr == nil {
			logger.Error().Err(err).Str("service_account", email).Msg("Ride sheet connection test failed, выдайте доступ сервисному аккаунту")
		} else {
			logger.Error().Err(err).Msg("Ride sheet connection test failed")
		}
		return nil
	}

	logger.Info().Msg("Ride sheet service initialized successfully")
	return sheet
}

func initStateService(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, *service.StateService) {
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = repository.NewRedisClient(cfg.Redis)
		if errPing := repository.Ping(ctx, redisClient); errPing != nil {
			logger.Warn().Err(errPing).Msg("Redis unavailable")
		}
	}

	primaryRepo := repository.NewRedisStateRepository(redisClient, time.Duration(models.DefaultRedisTTL)*time.Second)
	fallbackRepo := repository.NewMemoryStateRepository(time.Duration(models.DefaultRedisTTL) * time.Second)
	stateRepo := repository.NewFailoverStateRepository(primaryRepo, fallbackRepo, logger)
	return redisClient, service.NewStateService(stateRepo, logger)
}

func startBot(
	ctx context.Context,
	cfg *config.Config,
	db *store.DB,
	stateService *service.StateService,
	accountService *service.AccountService,
	backendClient *backend.Client,
	locations []models.Location,
	eventBus *events.EventBus,
	botMetrics *bot.Metrics,
	logger *zerolog.Logger,
) error {
	if cfg.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		logger.Error().Msg("Задайте токен бота в config.yaml")
		return os.ErrInvalid
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания BotAPI")
		return err
	}
	botAPI.Debug = cfg.Telegram.Debug

	botWrapper := bot.NewBotWrapper(botAPI)
	tgService := service.NewTelegramService(botWrapper)

	telegramBot, err := bot.NewBot(
		tgService, cfg, stateService, accountService,
		db, backendClient, locations,
		eventBus, botMetrics, logger,
	)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания бота")
		return err
	}

	if cfg.API.Enabled {
		apiServer := api.NewHTTPServer(cfg.API, db, telegramBot.Trackers())
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			_ = apiServer.Shutdown(context.Background())
		}()
	}

	logger.Info().Msg("Бот запущен...")
	telegramBot.Start(ctx)

	logger.Info().Msg("Shutdown complete.")
	return nil
}
