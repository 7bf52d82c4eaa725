package bot

import (
	"context"
	"sync"
	"time"

	"cabbot/internal/api"
	"cabbot/internal/backend"
	"cabbot/internal/events"
	"cabbot/internal/models"
	"cabbot/internal/ride"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TrackerManager owns one ride tracker per chat. Starting a new tracker for
// a chat always cancels the previous one first, so no chat ever has two
// pollers fighting over the same message.
type TrackerManager struct {
	bot  *Bot
	base context.Context

	mu       sync.Mutex
	trackers map[int64]*tracker
}

type tracker struct {
	chatID     int64
	role       models.Role
	session    *ride.Session
	dispatcher *ride.Dispatcher
	cancel     context.CancelFunc
	startedAt  time.Time

	mu         sync.Mutex
	messageID  int
	lastStatus models.RideStatus
	reported   bool
}

func NewTrackerManager(b *Bot) *TrackerManager {
	return &TrackerManager{
		bot:      b,
		base:     context.Background(),
		trackers: make(map[int64]*tracker),
	}
}

// SetBaseContext ties tracker lifetimes to the bot's run context.
func (m *TrackerManager) SetBaseContext(ctx context.Context) {
	m.base = ctx
}

// StartTracking begins polling the active ride for the chat. The first fetch
// happens right away; the tracking message appears as soon as it resolves.
func (m *TrackerManager) StartTracking(account *models.Account) {
	chatID := account.TelegramID

	m.mu.Lock()
	if prev, ok := m.trackers[chatID]; ok {
		prev.cancel()
		delete(m.trackers, chatID)
	}

	trackerCtx, cancel := context.WithCancel(m.base)
	userClient := m.bot.backend.Bind(backend.StaticToken(account.Token))
	session := ride.NewSession(account.Role)

	t := &tracker{
		chatID:    chatID,
		role:      account.Role,
		session:   session,
		cancel:    cancel,
		startedAt: time.Now(),
	}

	dispatcher := ride.NewDispatcher(userClient, session, *m.bot.logger)
	dispatcher.OnApplied(func(r *models.Ride) { m.applySnapshot(t, r) })
	dispatcher.OnEnded(func() { m.finishByAction(t) })
	t.dispatcher = dispatcher

	m.trackers[chatID] = t
	m.publishGauge()
	m.mu.Unlock()

	poller := ride.NewPoller(userClient, session, m.bot.config.Backend.PollInterval(), ride.Hooks{
		OnUpdate: func(r *models.Ride) {
			if m.bot.metrics != nil {
				m.bot.metrics.PollCycles.WithLabelValues("ok").Inc()
			}
			m.applySnapshot(t, r)
		},
		OnError: func(err error) {
			if m.bot.metrics != nil {
				m.bot.metrics.PollCycles.WithLabelValues("error").Inc()
			}
			m.bot.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("ride poll failed")
		},
		OnEnded: func() {
			if m.bot.metrics != nil {
				m.bot.metrics.PollCycles.WithLabelValues("ended").Inc()
			}
			m.finish(t, "🏁 Поездка завершена. Спасибо!")
		},
	}, *m.bot.logger)

	go poller.Run(trackerCtx)
}

// Dispatcher returns the action dispatcher for the chat's tracker, nil when
// nothing is tracked.
func (m *TrackerManager) Dispatcher(chatID int64) *ride.Dispatcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.trackers[chatID]; ok {
		return t.dispatcher
	}
	return nil
}

// Session returns the tracked session for the chat, nil when none.
func (m *TrackerManager) Session(chatID int64) *ride.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.trackers[chatID]; ok {
		return t.session
	}
	return nil
}

// StopTracking cancels the chat's tracker without touching the message.
func (m *TrackerManager) StopTracking(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.trackers[chatID]; ok {
		t.cancel()
		delete(m.trackers, chatID)
		m.publishGauge()
	}
}

// StopAll tears down every tracker, used on shutdown.
func (m *TrackerManager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for chatID, t := range m.trackers {
		t.cancel()
		delete(m.trackers, chatID)
	}
	m.publishGauge()
}

// TrackerStats reports the live trackers for the ops API.
func (m *TrackerManager) TrackerStats() []api.TrackerStat {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make([]api.TrackerStat, 0, len(m.trackers))
	for _, t := range m.trackers {
		stat := api.TrackerStat{
			TelegramID: t.chatID,
			Role:       t.role,
			StartedAt:  t.startedAt,
		}
		if r := t.session.Current(); r != nil {
			stat.RideID = r.ID
			stat.Status = r.Status
		}
		stats = append(stats, stat)
	}
	return stats
}

func (m *TrackerManager) publishGauge() {
	if m.bot.metrics != nil {
		m.bot.metrics.ActiveTrackers.Set(float64(len(m.trackers)))
	}
}

// applySnapshot re-renders the tracking message and records the status
// transition if one happened. Called from the poller goroutine and from the
// dispatcher after a successful action.
func (m *TrackerManager) applySnapshot(t *tracker, r *models.Ride) {
	t.mu.Lock()
	prevStatus := t.lastStatus
	t.lastStatus = r.Status
	t.mu.Unlock()

	if prevStatus != r.Status {
		m.recordTransition(t, prevStatus, r)
	}

	text, keyboard := renderRide(t.role, r)
	m.editTrackingMessage(t, text, keyboard)
}

func (m *TrackerManager) recordTransition(t *tracker, from models.RideStatus, r *models.Ride) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entry := &models.RideLogEntry{
		TelegramID: t.chatID,
		RideID:     r.ID,
		FromStatus: from,
		ToStatus:   r.Status,
	}
	if err := m.bot.accountStore.AppendRideLog(ctx, entry); err != nil {
		m.bot.logger.Error().Err(err).Str("ride_id", r.ID).Msg("failed to append ride log")
	}

	_ = m.bot.eventBus.PublishJSON(events.EventRideTransition, events.RideEventPayload{
		RideID:     r.ID,
		TelegramID: t.chatID,
		Role:       t.role,
		FromStatus: from,
		ToStatus:   r.Status,
		Pickup:     r.PickupLocationName,
		Dropoff:    r.DropoffLocationName,
		Fare:       r.Fare,
	})

	// Финальный статус уходит в отчет ровно один раз
	if r.Status == models.StatusPaid || r.Status == models.StatusCancelled {
		t.mu.Lock()
		alreadyReported := t.reported
		t.reported = true
		t.mu.Unlock()
		if alreadyReported {
			return
		}

		if m.bot.metrics != nil {
			m.bot.metrics.RidesFinished.WithLabelValues(string(r.Status)).Inc()
		}
		// Отчет в гугл-таблицу уезжает через шину, подписчик живет в main
		if err := m.bot.eventBus.PublishJSON(events.EventRideFinished, events.RideEventPayload{
			RideID:     r.ID,
			TelegramID: t.chatID,
			Role:       t.role,
			ToStatus:   r.Status,
			Pickup:     r.PickupLocationName,
			Dropoff:    r.DropoffLocationName,
			Fare:       r.Fare,
		}); err != nil {
			m.bot.logger.Error().Err(err).Str("ride_id", r.ID).Msg("failed to publish ride finished event")
		}
	}
}

// editTrackingMessage перерисовывает сообщение трекинга, а при первом
// обновлении создает его.
func (m *TrackerManager) editTrackingMessage(t *tracker, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	t.mu.Lock()
	messageID := t.messageID
	t.mu.Unlock()

	if messageID == 0 {
		var sent tgbotapi.Message
		var err error
		if keyboard != nil {
			sent, err = m.bot.tgService.SendWithInlineKeyboard(t.chatID, text, *keyboard)
		} else {
			sent, err = m.bot.tgService.SendMessage(t.chatID, text)
		}
		if err != nil {
			m.bot.logger.Error().Err(err).Int64("chat_id", t.chatID).Msg("failed to send tracking message")
			return
		}

		t.mu.Lock()
		t.messageID = sent.MessageID
		t.mu.Unlock()
		return
	}

	if _, err := m.bot.tgService.EditMessage(t.chatID, messageID, text, keyboard); err != nil {
		// Telegram отвечает ошибкой на редактирование без изменений, это не страшно
		m.bot.logger.Debug().Err(err).Int64("chat_id", t.chatID).Msg("failed to edit tracking message")
	}
}

// finish closes the tracker after the platform reported the ride gone.
func (m *TrackerManager) finish(t *tracker, farewell string) {
	m.mu.Lock()
	if current, ok := m.trackers[t.chatID]; ok && current == t {
		t.cancel()
		delete(m.trackers, t.chatID)
		m.publishGauge()
	}
	m.mu.Unlock()

	m.editTrackingMessage(t, farewell, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.bot.stateService.ClearUserState(ctx, t.chatID); err != nil {
		m.bot.logger.Debug().Err(err).Int64("chat_id", t.chatID).Msg("failed to clear state after ride end")
	}
	m.bot.showMainMenu(ctx, t.chatID)
}

// finishByAction closes the tracker after a terminal user action. The final
// snapshot still gets its transition bookkeeping before teardown.
func (m *TrackerManager) finishByAction(t *tracker) {
	if r := t.session.Current(); r != nil {
		t.mu.Lock()
		prevStatus := t.lastStatus
		t.lastStatus = r.Status
		t.mu.Unlock()
		if prevStatus != r.Status {
			m.recordTransition(t, prevStatus, r)
		}
	}
	m.finish(t, "🏁 Поездка завершена. Спасибо!")
}
