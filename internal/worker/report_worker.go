package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"cabbot/internal/domain"
	"cabbot/internal/models"
	"cabbot/internal/store"

	"github.com/redis/go-redis/v9"
)

// ReportWorker drains finished rides into the ops report sheet. The queue is
// redis-first with an in-memory channel as a fast path and the sqlite table
// as the durable source of truth, so a crash never loses a report.
type ReportWorker struct {
	db          *store.DB
	sheet       domain.RideSheetWriter
	redis       *redis.Client
	retryPolicy RetryPolicy

	queue         chan models.ReportTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *log.Logger
}

func NewReportWorker(db *store.DB, sheet domain.RideSheetWriter, redisClient *redis.Client, retry RetryPolicy, logger *log.Logger) *ReportWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if logger == nil {
		logger = log.Default()
	}

	return &ReportWorker{
		db:            db,
		sheet:         sheet,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.ReportTask, models.ReportQueueSize),
		redisQueueKey: "reports:queue",
		deadLetterKey: "reports:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// EnqueueRide persists a finished ride and schedules its report.
func (w *ReportWorker) EnqueueRide(ctx context.Context, telegramID int64, role models.Role, ride *models.Ride) error {
	if ride == nil || ride.ID == "" {
		return errors.New("ride is required")
	}

	row := models.RideReportRow{
		RideID:     ride.ID,
		TelegramID: telegramID,
		Role:       role,
		Status:     ride.Status,
		Pickup:     ride.PickupLocationName,
		Dropoff:    ride.DropoffLocationName,
		Fare:       ride.Fare,
		FinishedAt: time.Now(),
	}

	payloadBytes, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode report payload: %w", err)
	}

	task := models.ReportTask{
		RideID:  ride.ID,
		Payload: string(payloadBytes),
		Status:  store.ReportStatusPending,
	}
	if err := w.db.CreateReportTask(ctx, &task); err != nil {
		return fmt.Errorf("persist report task: %w", err)
	}

	// Try redis first for durability across restarts.
	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Printf("report_worker: redis push failed, fallback to memory queue: %v", err)
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Printf("report_worker: in-memory queue full, task %d waits for polling", task.ID)
	}
	return nil
}

// Start launches the main loop; stops when ctx is done.
func (w *ReportWorker) Start(ctx context.Context) {
	w.logger.Printf("report_worker: started")
	defer w.logger.Printf("report_worker: stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.db.GetPendingReportTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Printf("report_worker: fetch pending: %v", err)
			time.Sleep(w.pollInterval)
			continue
		}
		if len(tasks) == 0 {
			time.Sleep(w.pollInterval)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *ReportWorker) tryLocalQueue() (models.ReportTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.ReportTask{}, false
	}
}

func (w *ReportWorker) tryRedis(ctx context.Context) (models.ReportTask, bool) {
	if w.redis == nil {
		return models.ReportTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return models.ReportTask{}, false
		}
		w.logger.Printf("report_worker: redis BRPOP error: %v", err)
		return models.ReportTask{}, false
	}
	if len(res) != 2 {
		return models.ReportTask{}, false
	}
	var task models.ReportTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Printf("report_worker: decode redis task: %v", err)
		return models.ReportTask{}, false
	}
	return task, true
}

func (w *ReportWorker) processTask(ctx context.Context, task *models.ReportTask) {
	var row models.RideReportRow
	if err := json.Unmarshal([]byte(task.Payload), &row); err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.sheet.AppendRide(ctx, &row); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.db.UpdateReportTaskStatus(ctx, task.ID, store.ReportStatusCompleted, "", nil); err != nil {
		w.logger.Printf("report_worker: mark completed %d: %v", task.ID, err)
	}
}

func (w *ReportWorker) retryOrFail(ctx context.Context, task *models.ReportTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		if err := w.db.UpdateReportTaskStatus(ctx, task.ID, store.ReportStatusFailed, cause.Error(), nil); err != nil {
			w.logger.Printf("report_worker: mark failed %d: %v", task.ID, err)
		}
		w.pushDeadLetter(ctx, task)
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.db.UpdateReportTaskStatus(ctx, task.ID, store.ReportStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Printf("report_worker: mark retry %d: %v", task.ID, err)
	}
}

func (w *ReportWorker) failTask(ctx context.Context, task *models.ReportTask, cause error) {
	if err := w.db.UpdateReportTaskStatus(ctx, task.ID, store.ReportStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Printf("report_worker: mark failed %d: %v", task.ID, err)
	}
	w.pushDeadLetter(ctx, task)
}

func (w *ReportWorker) pushRedis(ctx context.Context, task models.ReportTask) error {
	if w.redis == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *ReportWorker) pushDeadLetter(ctx context.Context, task *models.ReportTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Printf("report_worker: encode deadletter %d: %v", task.ID, err)
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Printf("report_worker: deadletter push %d: %v", task.ID, err)
	}
}
