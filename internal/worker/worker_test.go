package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ratesync/internal/channels"
	"ratesync/internal/database"
	"ratesync/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyNextDelay(t *testing.T) {
	p := RetryPolicy{
		MaxRetries:    5,
		InitialDelay:  time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2,
	}

	assert.Equal(t, time.Second, p.NextDelay(1))
	assert.Equal(t, 2*time.Second, p.NextDelay(2))
	assert.Equal(t, 4*time.Second, p.NextDelay(3))
	assert.Equal(t, 10*time.Second, p.NextDelay(6), "clamped to max delay")
	assert.Equal(t, time.Second, p.NextDelay(0), "attempt floor is 1")

	zero := RetryPolicy{}
	assert.Equal(t, time.Second, zero.NextDelay(1), "defaults kick in")
}

type ackRecorder struct {
	mu   sync.Mutex
	acks []channels.BookingAck
	err  error
}

func (a *ackRecorder) Name() string { return "fake" }

func (a *ackRecorder) PushRates(context.Context, channels.RatePush) error { return nil }

func (a *ackRecorder) PushAvailability(context.Context, channels.AvailabilityPush) error {
	return nil
}

func (a *ackRecorder) PushInventory(context.Context, channels.InventoryPush) error { return nil }

func (a *ackRecorder) Acknowledge(ctx context.Context, ack channels.BookingAck) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.acks = append(a.acks, ack)
	return nil
}

func (a *ackRecorder) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acks)
}

func newWorkerFixture(t *testing.T, adapter *ackRecorder, redisClient *redis.Client) (*AckWorker, *database.DB, *models.ExternalBooking) {
	t.Helper()
	logger := zerolog.New(zerolog.NewConsoleWriter())
	db, err := database.NewDB(filepath.Join(t.TempDir(), "worker.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	ch := &models.Channel{HotelID: "h1", Name: "booking.com", Active: true}
	require.NoError(t, db.UpsertChannel(ctx, ch))

	eb := &models.ExternalBooking{
		ChannelID:    ch.ID,
		OTABookingID: "BDC-1",
		GuestName:    "Guest",
		RoomTypeCode: "DBL",
		CheckIn:      time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		CheckOut:     time.Date(2024, 7, 3, 0, 0, 0, 0, time.UTC),
		Status:       models.StatusPending,
		SyncStatus:   models.SyncStatusPending,
	}
	require.NoError(t, db.InsertExternalBooking(ctx, eb))

	retry := RetryPolicy{MaxRetries: 2, InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, BackoffFactor: 2}
	w := NewAckWorker(db, func(*models.Channel) channels.Adapter { return adapter }, redisClient, retry, &logger)
	w.pollInterval = 20 * time.Millisecond
	return w, db, eb
}

func TestAckWorkerDeliversAndMarksSynced(t *testing.T) {
	adapter := &ackRecorder{}
	w, db, eb := newWorkerFixture(t, adapter, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Enqueue(ctx, models.AckTaskAccept, eb.ID, eb.ChannelID, eb.OTABookingID, "local-ref", ""))
	go w.Start(ctx)

	require.Eventually(t, func() bool { return adapter.count() == 1 }, 5*time.Second, 20*time.Millisecond)

	adapter.mu.Lock()
	ack := adapter.acks[0]
	adapter.mu.Unlock()
	assert.True(t, ack.Accepted)
	assert.Equal(t, "BDC-1", ack.OTABookingID)
	assert.Equal(t, "local-ref", ack.Reference)

	require.Eventually(t, func() bool {
		stored, err := db.GetExternalBooking(ctx, eb.ChannelID, "BDC-1")
		return err == nil && stored.SyncStatus == models.SyncStatusSynced
	}, 5*time.Second, 20*time.Millisecond)

	pending, err := db.GetPendingAckTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAckWorkerExhaustsRetriesToDeadLetter(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	adapter := &ackRecorder{err: errors.New("http 502")}
	w, db, eb := newWorkerFixture(t, adapter, redisClient)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Enqueue(ctx, models.AckTaskReject, eb.ID, eb.ChannelID, eb.OTABookingID, "", "no availability"))
	go w.Start(ctx)

	require.Eventually(t, func() bool {
		stored, err := db.GetExternalBooking(ctx, eb.ChannelID, "BDC-1")
		return err == nil && stored.SyncStatus == models.SyncStatusError
	}, 10*time.Second, 20*time.Millisecond)

	stored, err := db.GetExternalBooking(ctx, eb.ChannelID, "BDC-1")
	require.NoError(t, err)
	require.NotEmpty(t, stored.SyncErrors)
	assert.Contains(t, stored.SyncErrors[len(stored.SyncErrors)-1].Message, "http 502")

	n, err := redisClient.LLen(ctx, w.deadLetterKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAckWorkerUsesRedisFastPath(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	adapter := &ackRecorder{}
	w, _, eb := newWorkerFixture(t, adapter, redisClient)
	ctx := context.Background()

	require.NoError(t, w.Enqueue(ctx, models.AckTaskAccept, eb.ID, eb.ChannelID, eb.OTABookingID, "ref", ""))

	n, err := redisClient.LLen(ctx, w.redisQueueKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
