package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ratesync/internal/channels"
	"ratesync/internal/database"
	"ratesync/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// AdapterFactory builds the outbound protocol for a channel row.
type AdapterFactory func(ch *models.Channel) channels.Adapter

// ackPayload is persisted in AckTask.Payload as JSON.
type ackPayload struct {
	ChannelID    int64  `json:"channel_id"`
	OTABookingID string `json:"ota_booking_id"`
	Reference    string `json:"reference,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// AckWorker delivers accept/reject acknowledgments back to channels and
// advances each external booking's sync status, independent of its business
// status. Tasks are durable in sqlite; redis is a fast path, polling the
// fallback, a redis dead-letter list the terminal parking lot.
type AckWorker struct {
	db            *database.DB
	adapters      AdapterFactory
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.AckTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

func NewAckWorker(db *database.DB, adapters AdapterFactory, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *AckWorker {
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

	return &AckWorker{
		db:            db,
		adapters:      adapters,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.AckTask, models.WorkerQueueSize),
		redisQueueKey: "acks:queue",
		deadLetterKey: "acks:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// Enqueue persists an acknowledgment task and schedules it.
func (w *AckWorker) Enqueue(ctx context.Context, taskType string, externalBookingID, channelID int64, otaBookingID, reference, reason string) error {
	if taskType != models.AckTaskAccept && taskType != models.AckTaskReject {
		return fmt.Errorf("unknown ack task type %q", taskType)
	}

	payloadBytes, err := json.Marshal(ackPayload{
		ChannelID:    channelID,
		OTABookingID: otaBookingID,
		Reference:    reference,
		Reason:       reason,
	})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.AckTask{
		TaskType:          taskType,
		ExternalBookingID: externalBookingID,
		Payload:           string(payloadBytes),
		Status:            "pending",
	}
	if err := w.db.CreateAckTask(ctx, &task); err != nil {
		return fmt.Errorf("persist ack task: %w", err)
	}

	// Redis first for low latency; the db row survives either way.
	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Msg("redis push failed, falling back to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("memory queue full, task left for polling")
	}
	return nil
}

// Start launches the main loop; stops when ctx is done.
func (w *AckWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("ack worker started")
	defer w.logger.Info().Msg("ack worker stopped")

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

		tasks, err := w.db.GetPendingAckTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending ack tasks")
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *AckWorker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}

func (w *AckWorker) tryLocalQueue() (models.AckTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.AckTask{}, false
	}
}

func (w *AckWorker) tryRedis(ctx context.Context) (models.AckTask, bool) {
	if w.redis == nil {
		return models.AckTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return models.AckTask{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		return models.AckTask{}, false
	}
	if len(res) != 2 {
		return models.AckTask{}, false
	}
	var task models.AckTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis ack task")
		return models.AckTask{}, false
	}
	return task, true
}

func (w *AckWorker) processTask(ctx context.Context, task *models.AckTask) {
	var payload ackPayload
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.deliver(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, payload, err)
		return
	}

	if err := w.db.MarkExternalSynced(ctx, task.ExternalBookingID); err != nil {
		w.logger.Error().Err(err).Int64("external_booking_id", task.ExternalBookingID).Msg("mark synced")
	}
	if err := w.db.UpdateAckTaskStatus(ctx, task.ID, "completed", "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed")
	}
	w.logger.Info().
		Int64("external_booking_id", task.ExternalBookingID).
		Str("type", task.TaskType).
		Msg("acknowledgment delivered")
}

func (w *AckWorker) deliver(ctx context.Context, taskType string, payload ackPayload) error {
	ch, err := w.db.GetChannel(ctx, payload.ChannelID)
	if err != nil {
		return fmt.Errorf("load channel %d: %w", payload.ChannelID, err)
	}
	ack := channels.BookingAck{
		OTABookingID: payload.OTABookingID,
		Accepted:     taskType == models.AckTaskAccept,
		Reference:    payload.Reference,
		Reason:       payload.Reason,
	}
	return w.adapters(ch).Acknowledge(ctx, ack)
}

func (w *AckWorker) retryOrFail(ctx context.Context, task *models.AckTask, payload ackPayload, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.db.UpdateAckTaskStatus(ctx, task.ID, "retry", cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
	w.logger.Warn().Err(cause).
		Int64("task_id", task.ID).
		Int("attempt", attempt).
		Time("next_retry", nextTime).
		Msg("acknowledgment delivery failed, will retry")
}

func (w *AckWorker) failTask(ctx context.Context, task *models.AckTask, cause error) {
	if err := w.db.UpdateAckTaskStatus(ctx, task.ID, "failed", cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	if err := w.db.RecordSyncError(ctx, task.ExternalBookingID, cause.Error()); err != nil {
		w.logger.Error().Err(err).Int64("external_booking_id", task.ExternalBookingID).Msg("record sync error")
	}
	w.pushDeadLetter(ctx, task)
}

func (w *AckWorker) pushRedis(ctx context.Context, task models.AckTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *AckWorker) pushDeadLetter(ctx context.Context, task *models.AckTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}
