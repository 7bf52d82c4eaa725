package bot

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"cabbot/internal/backend"
	"cabbot/internal/config"
	"cabbot/internal/domain"
	"cabbot/internal/events"
	"cabbot/internal/models"
	"cabbot/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	chatID int64
	text   string
}

type mockTelegramService struct {
	domain.TelegramService

	mu            sync.Mutex
	updatesChan   chan tgbotapi.Update
	sent          []sentMessage
	edited        []sentMessage
	sentRaw       []tgbotapi.Chattable
	nextMessageID int
}

func newMockTelegram() *mockTelegramService {
	return &mockTelegramService{updatesChan: make(chan tgbotapi.Update, 4), nextMessageID: 100}
}

func (m *mockTelegramService) record(chatID int64, text string) tgbotapi.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{chatID: chatID, text: text})
	m.nextMessageID++
	return tgbotapi.Message{MessageID: m.nextMessageID}
}

func (m *mockTelegramService) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	m.sentRaw = append(m.sentRaw, c)
	m.mu.Unlock()
	return tgbotapi.Message{MessageID: 1}, nil
}

func (m *mockTelegramService) SendMessage(chatID int64, text string) (tgbotapi.Message, error) {
	return m.record(chatID, text), nil
}

func (m *mockTelegramService) SendWithKeyboard(chatID int64, text string, keyboard tgbotapi.ReplyKeyboardMarkup) (tgbotapi.Message, error) {
	return m.record(chatID, text), nil
}

func (m *mockTelegramService) SendWithInlineKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error) {
	return m.record(chatID, text), nil
}

func (m *mockTelegramService) EditMessage(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edited = append(m.edited, sentMessage{chatID: chatID, text: text})
	return tgbotapi.Message{MessageID: messageID}, nil
}

func (m *mockTelegramService) AnswerCallback(callbackID, text string) error { return nil }

func (m *mockTelegramService) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updatesChan
}

func (m *mockTelegramService) GetSelf() tgbotapi.User { return tgbotapi.User{UserName: "test_bot"} }

func (m *mockTelegramService) StopReceivingUpdates() {}

func (m *mockTelegramService) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, s := range m.sent {
		out = append(out, s.text)
	}
	return out
}

func (m *mockTelegramService) editedTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.edited))
	for _, s := range m.edited {
		out = append(out, s.text)
	}
	return out
}

type mockStateManager struct {
	domain.StateManager

	mu     sync.Mutex
	states map[int64]*models.UserState
}

func newMockState() *mockStateManager {
	return &mockStateManager{states: make(map[int64]*models.UserState)}
}

func (m *mockStateManager) SetUserState(ctx context.Context, userID int64, step string, data map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[userID] = &models.UserState{UserID: userID, CurrentStep: step, TempData: data}
	return nil
}

func (m *mockStateManager) GetUserState(ctx context.Context, userID int64) (*models.UserState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[userID], nil
}

func (m *mockStateManager) ClearUserState(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, userID)
	return nil
}

func (m *mockStateManager) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	return true, nil
}

func (m *mockStateManager) step(userID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[userID]; ok {
		return s.CurrentStep
	}
	return ""
}

type mockAccountService struct {
	domain.AccountService

	mu       sync.Mutex
	accounts map[int64]*models.Account
}

func newMockAccounts() *mockAccountService {
	return &mockAccountService{accounts: make(map[int64]*models.Account)}
}

func (m *mockAccountService) IsAdmin(userID int64) bool       { return false }
func (m *mockAccountService) IsBlacklisted(userID int64) bool { return false }

func (m *mockAccountService) GetAccount(ctx context.Context, telegramID int64) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acc, ok := m.accounts[telegramID]; ok {
		return acc, nil
	}
	return nil, service.ErrAccountNotLinked
}

func (m *mockAccountService) LinkAccount(ctx context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.TelegramID] = account
	return nil
}

func (m *mockAccountService) UnlinkAccount(ctx context.Context, telegramID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, telegramID)
	return nil
}

func (m *mockAccountService) UpdateActivity(ctx context.Context, telegramID int64) error { return nil }

func (m *mockAccountService) GetAllAccounts(ctx context.Context) ([]*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Account, 0, len(m.accounts))
	for _, acc := range m.accounts {
		out = append(out, acc)
	}
	return out, nil
}

type mockAccountStore struct {
	domain.AccountStore

	mu      sync.Mutex
	rideLog []*models.RideLogEntry
	phones  map[int64]string
}

func (m *mockAccountStore) UpdateAccountPhone(ctx context.Context, telegramID int64, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phones == nil {
		m.phones = make(map[int64]string)
	}
	m.phones[telegramID] = phone
	return nil
}

func (m *mockAccountStore) phone(telegramID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phones[telegramID]
}

func (m *mockAccountStore) AppendRideLog(ctx context.Context, entry *models.RideLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rideLog = append(m.rideLog, entry)
	return nil
}

func (m *mockAccountStore) GetRideLog(ctx context.Context, telegramID int64, limit int) ([]*models.RideLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.RideLogEntry(nil), m.rideLog...), nil
}

func (m *mockAccountStore) logLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rideLog)
}

type testEnv struct {
	bot      *Bot
	tg       *mockTelegramService
	state    *mockStateManager
	accounts *mockAccountService
	store    *mockAccountStore
	bus      *events.EventBus
}

func setupTestBot(t *testing.T, backendURL string) *testEnv {
	t.Helper()

	tg := newMockTelegram()
	state := newMockState()
	accounts := newMockAccounts()
	store := &mockAccountStore{}
	logger := zerolog.New(io.Discard)

	cfg := &config.Config{
		Telegram: config.TelegramConfig{BotToken: "test"},
		Backend: config.BackendConfig{
			BaseURL:             backendURL,
			TimeoutSeconds:      5,
			PollIntervalSeconds: 1,
		},
		Bot: config.BotConfig{HistoryLimit: 5, RateLimitMessages: 100, RateLimitWindow: 60},
	}

	backendClient := backend.NewClient(cfg.Backend, &logger)
	locations := []models.Location{
		{ID: 1, Name: "Офис"},
		{ID: 2, Name: "Аэропорт"},
		{ID: 3, Name: "Вокзал"},
	}

	bus := events.NewEventBus()
	b, err := NewBot(tg, cfg, state, accounts, store, backendClient, locations, bus, nil, &logger)
	require.NoError(t, err)

	return &testEnv{bot: b, tg: tg, state: state, accounts: accounts, store: store, bus: bus}
}

func messageUpdate(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: chatID, UserName: "testuser"},
			Chat: &tgbotapi.Chat{ID: chatID},
			Text: text,
		},
	}
}

func contactUpdate(chatID, contactUserID int64, phone string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			From:    &tgbotapi.User{ID: chatID, UserName: "testuser"},
			Chat:    &tgbotapi.Chat{ID: chatID},
			Contact: &tgbotapi.Contact{UserID: contactUserID, PhoneNumber: phone},
		},
	}
}

func callbackUpdate(chatID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb-1",
			From:    &tgbotapi.User{ID: chatID},
			Data:    data,
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
		},
	}
}

// noRideServer отвечает 404 на опрос активной поездки.
func noRideServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "no active ride"})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLinkFlow(t *testing.T) {
	srv := noRideServer(t)
	env := setupTestBot(t, srv.URL)
	ctx := context.Background()
	chatID := int64(123)

	env.bot.processUpdate(ctx, messageUpdate(chatID, btnLinkAccount))
	assert.Equal(t, models.StateLinkToken, env.state.step(chatID))

	env.bot.processUpdate(ctx, messageUpdate(chatID, "tok-123"))
	assert.Equal(t, models.StateLinkRole, env.state.step(chatID))

	env.bot.processUpdate(ctx, messageUpdate(chatID, btnRoleRider))

	acc, err := env.accounts.GetAccount(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleRider, acc.Role)
	assert.Equal(t, "tok-123", acc.Token)
	assert.Empty(t, env.state.step(chatID))

	texts := env.tg.texts()
	require.NotEmpty(t, texts)
	assert.Contains(t, texts, "✅ Аккаунт привязан!")
}

func TestLinkFlow_RejectsEmptyToken(t *testing.T) {
	srv := noRideServer(t)
	env := setupTestBot(t, srv.URL)
	ctx := context.Background()
	chatID := int64(123)

	env.bot.startLinkFlow(ctx, chatID)
	env.bot.processUpdate(ctx, messageUpdate(chatID, "   "))

	// пустой токен не двигает диалог дальше
	assert.Equal(t, models.StateLinkToken, env.state.step(chatID))
}

func TestUnlinkStopsTracking(t *testing.T) {
	srv := noRideServer(t)
	env := setupTestBot(t, srv.URL)
	ctx := context.Background()
	chatID := int64(123)

	require.NoError(t, env.accounts.LinkAccount(ctx, &models.Account{
		TelegramID: chatID, Role: models.RoleRider, Token: "tok",
	}))

	env.bot.processUpdate(ctx, messageUpdate(chatID, btnUnlinkAccount))

	_, err := env.accounts.GetAccount(ctx, chatID)
	assert.Error(t, err)
	assert.Nil(t, env.bot.trackers.Dispatcher(chatID))
}

func TestContactSharedSavesPhone(t *testing.T) {
	srv := noRideServer(t)
	env := setupTestBot(t, srv.URL)
	ctx := context.Background()
	chatID := int64(123)

	require.NoError(t, env.accounts.LinkAccount(ctx, &models.Account{
		TelegramID: chatID, Role: models.RoleRider, Token: "tok",
	}))

	env.bot.processUpdate(ctx, contactUpdate(chatID, chatID, "+79990001122"))

	assert.Equal(t, "+79990001122", env.store.phone(chatID))
	assert.Contains(t, env.tg.texts(), "📱 Телефон сохранен.")
}

func TestContactShared_RejectsForeignContact(t *testing.T) {
	srv := noRideServer(t)
	env := setupTestBot(t, srv.URL)
	ctx := context.Background()
	chatID := int64(123)

	require.NoError(t, env.accounts.LinkAccount(ctx, &models.Account{
		TelegramID: chatID, Role: models.RoleRider, Token: "tok",
	}))

	env.bot.processUpdate(ctx, contactUpdate(chatID, 999, "+70000000000"))

	assert.Empty(t, env.store.phone(chatID))
	assert.Contains(t, env.tg.texts(), "Можно отправить только свой контакт.")
}

func TestHandlersRequireLinkedAccount(t *testing.T) {
	srv := noRideServer(t)
	env := setupTestBot(t, srv.URL)
	ctx := context.Background()
	chatID := int64(123)

	for _, button := range []string{btnRequestRide, btnCurrentRide, btnHistory, btnWallet, btnProfile} {
		env.bot.processUpdate(ctx, messageUpdate(chatID, button))
	}

	for _, text := range env.tg.texts() {
		assert.NotContains(t, text, "Ошибка", "unlinked chats get guidance, not errors")
	}
	assert.Contains(t, env.tg.texts(), "Сначала привяжите аккаунт платформы.")
}

func TestRequestFlow_DriverRejected(t *testing.T) {
	srv := noRideServer(t)
	env := setupTestBot(t, srv.URL)
	ctx := context.Background()
	chatID := int64(55)

	require.NoError(t, env.accounts.LinkAccount(ctx, &models.Account{
		TelegramID: chatID, Role: models.RoleDriver, Token: "tok",
	}))

	env.bot.processUpdate(ctx, messageUpdate(chatID, btnRequestRide))

	assert.Contains(t, env.tg.texts(), "Заказывать поездки могут только пассажиры.")
	assert.Empty(t, env.state.step(chatID))
}

func TestRequestFlow_EndToEnd(t *testing.T) {
	var requested struct {
		sync.Mutex
		pickup, dropoff string
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/rides":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			requested.Lock()
			requested.pickup = body["pickupLocationName"]
			requested.dropoff = body["dropoffLocationName"]
			requested.Unlock()
			_ = json.NewEncoder(w).Encode(models.Ride{
				ID:                  "r-new",
				Status:              models.StatusRequested,
				PickupLocationName:  body["pickupLocationName"],
				DropoffLocationName: body["dropoffLocationName"],
			})
		case r.URL.Path == "/api/v1/rides/active":
			_ = json.NewEncoder(w).Encode(models.Ride{
				ID:                 "r-new",
				Status:             models.StatusRequested,
				PickupLocationName: "Офис",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
		}
	}))
	defer srv.Close()

	env := setupTestBot(t, srv.URL)
	ctx := context.Background()
	chatID := int64(77)

	require.NoError(t, env.accounts.LinkAccount(ctx, &models.Account{
		TelegramID: chatID, Role: models.RoleRider, Token: "tok",
	}))

	env.bot.processUpdate(ctx, messageUpdate(chatID, btnRequestRide))
	assert.Equal(t, models.StateSelectPickup, env.state.step(chatID))

	env.bot.processUpdate(ctx, callbackUpdate(chatID, "pickup:1"))
	assert.Equal(t, models.StateSelectDropoff, env.state.step(chatID))

	env.bot.processUpdate(ctx, callbackUpdate(chatID, "dropoff:2"))
	assert.Equal(t, models.StateConfirmRequest, env.state.step(chatID))

	env.bot.processUpdate(ctx, callbackUpdate(chatID, cbConfirmOrder))

	requested.Lock()
	assert.Equal(t, "Офис", requested.pickup)
	assert.Equal(t, "Аэропорт", requested.dropoff)
	requested.Unlock()

	assert.Empty(t, env.state.step(chatID))
	assert.Contains(t, env.tg.texts(), "🚕 Заказ создан! Ищем водителя...")

	// Трекер подхватывает новую поездку
	assert.Eventually(t, func() bool {
		return env.bot.trackers.Dispatcher(chatID) != nil
	}, 2*time.Second, 20*time.Millisecond)

	env.bot.trackers.StopAll()
}

func TestRequestFlow_SamePickupAndDropoff(t *testing.T) {
	srv := noRideServer(t)
	env := setupTestBot(t, srv.URL)
	ctx := context.Background()
	chatID := int64(77)

	require.NoError(t, env.accounts.LinkAccount(ctx, &models.Account{
		TelegramID: chatID, Role: models.RoleRider, Token: "tok",
	}))

	env.bot.processUpdate(ctx, messageUpdate(chatID, btnRequestRide))
	env.bot.processUpdate(ctx, callbackUpdate(chatID, "pickup:1"))
	env.bot.processUpdate(ctx, callbackUpdate(chatID, "dropoff:1"))

	assert.Contains(t, env.tg.texts(), "Точки отправления и назначения совпадают.")
	assert.Equal(t, models.StateSelectDropoff, env.state.step(chatID))
}

func TestHistoryFormatting(t *testing.T) {
	fare := 250.0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/rides/history" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"rides": []models.RideHistoryEntry{
				{ID: "r-1", Status: models.StatusPaid, Fare: &fare, PickupLocationName: "Офис", DropoffLocationName: "Аэропорт"},
				{ID: "r-2", Status: models.StatusCancelled, PickupLocationName: "Вокзал", DropoffLocationName: "Офис"},
			},
		})
	}))
	defer srv.Close()

	env := setupTestBot(t, srv.URL)
	ctx := context.Background()
	chatID := int64(11)

	require.NoError(t, env.accounts.LinkAccount(ctx, &models.Account{
		TelegramID: chatID, Role: models.RoleRider, Token: "tok",
	}))

	env.bot.processUpdate(ctx, messageUpdate(chatID, btnHistory))

	texts := env.tg.texts()
	require.NotEmpty(t, texts)
	last := texts[len(texts)-1]
	assert.Contains(t, last, "Офис → Аэропорт")
	assert.Contains(t, last, "250.00")
	assert.Contains(t, last, "🚫 Вокзал → Офис")
}

func TestRateCallbackAsksForComment(t *testing.T) {
	srv := noRideServer(t)
	env := setupTestBot(t, srv.URL)
	ctx := context.Background()
	chatID := int64(99)

	env.bot.processUpdate(ctx, callbackUpdate(chatID, "rate:4"))

	state, err := env.state.GetUserState(ctx, chatID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, models.StateAwaitingComment, state.CurrentStep)
	assert.Equal(t, 4, state.GetInt("rating"))
}

func TestCancelReason_NoTracker(t *testing.T) {
	srv := noRideServer(t)
	env := setupTestBot(t, srv.URL)
	ctx := context.Background()
	chatID := int64(99)

	require.NoError(t, env.state.SetUserState(ctx, chatID, models.StateAwaitingReason, nil))
	env.bot.processUpdate(ctx, messageUpdate(chatID, "передумал"))

	assert.Contains(t, env.tg.texts(), "Активная поездка не найдена.")
	assert.Empty(t, env.state.step(chatID))
}

func TestErrorMessages(t *testing.T) {
	srv := noRideServer(t)
	env := setupTestBot(t, srv.URL)

	apiErr := &backend.APIError{StatusCode: 409, Message: "поездка уже началась"}
	assert.Equal(t, "⚠️ поездка уже началась", env.bot.getErrorMessage(apiErr))

	msg := env.bot.getErrorMessage(backend.ErrNoActiveRide)
	assert.Contains(t, msg, "Активной поездки")
}
