package ingest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ratesync/internal/config"
	"ratesync/internal/database"
	"ratesync/internal/events"
	"ratesync/internal/ledger"
	"ratesync/internal/loyalty"
	"ratesync/internal/models"
	"ratesync/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ackCall struct {
	taskType     string
	otaBookingID string
	reason       string
}

type fakeAcks struct {
	mu    sync.Mutex
	calls []ackCall
}

func (f *fakeAcks) Enqueue(ctx context.Context, taskType string, externalBookingID, channelID int64, otaBookingID, reference, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ackCall{taskType: taskType, otaBookingID: otaBookingID, reason: reason})
	return nil
}

type fixture struct {
	svc     *Service
	db      *database.DB
	channel *models.Channel
	acks    *fakeAcks
	bus     *events.EventBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.New(zerolog.NewConsoleWriter())
	db, err := database.NewDB(filepath.Join(t.TempDir(), "ingest.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.SetHotels([]models.Hotel{{ID: "h1", Name: "Test", Rooms: []string{"101", "102"}}})

	ctx := context.Background()
	ch := &models.Channel{
		HotelID:  "h1",
		Name:     "booking.com",
		Active:   true,
		Mappings: models.ChannelMappings{RoomTypes: map[string]string{"DBL": "standard"}},
	}
	require.NoError(t, db.UpsertChannel(ctx, ch))

	bus := events.NewEventBus()
	lg := ledger.New(db, bus, &logger)

	loyaltySvc := loyalty.NewService(db, config.LoyaltyConfig{
		TierMultipliers: map[string]float64{"bronze": 1.0},
	}, nil, &logger)
	loyaltySvc.SubscribeTo(bus)

	acks := &fakeAcks{}
	cache := repository.NewMemoryDeliveryCache(time.Minute)
	svc := NewService(db, lg, cache, acks, nil, &logger)
	return &fixture{svc: svc, db: db, channel: ch, acks: acks, bus: bus}
}

func payload(otaID string) Payload {
	return Payload{
		OTABookingID: otaID,
		GuestID:      "g1",
		GuestName:    "Jane Doe",
		RoomTypeCode: "DBL",
		CheckIn:      "2024-07-01",
		CheckOut:     "2024-07-04",
		TotalAmount:  360,
		Currency:     "USD",
	}
}

func TestIngestAcceptsAndConfirms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Ingest(ctx, f.channel.ID, payload("BDC-1"))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	require.NotZero(t, res.LocalBookingID)

	booking, err := f.db.GetBooking(ctx, res.LocalBookingID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, booking.Status)
	assert.Equal(t, "booking.com", booking.Source)
	assert.Equal(t, 360.0, booking.TotalAmount)

	eb, err := f.db.GetExternalBooking(ctx, f.channel.ID, "BDC-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, eb.Status)
	require.NotNil(t, eb.LocalBookingID)
	assert.Equal(t, booking.ID, *eb.LocalBookingID)

	require.Len(t, f.acks.calls, 1)
	assert.Equal(t, models.AckTaskAccept, f.acks.calls[0].taskType)

	count, err := f.db.CountLoyaltyAwards(ctx, booking.Reference)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIngestIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Ingest(ctx, f.channel.ID, payload("BDC-2"))
	require.NoError(t, err)
	require.True(t, first.Accepted)

	second, err := f.svc.Ingest(ctx, f.channel.ID, payload("BDC-2"))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.LocalBookingID, second.LocalBookingID)

	// Exactly one local booking for the stay.
	bookings, err := f.db.GetBookingsByHotelAndRange(ctx, "h1",
		time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, bookings, 1)

	// Exactly one loyalty award despite the redelivery.
	booking, err := f.db.GetBooking(ctx, first.LocalBookingID)
	require.NoError(t, err)
	count, err := f.db.CountLoyaltyAwards(ctx, booking.Reference)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Only one acknowledgment was scheduled.
	assert.Len(t, f.acks.calls, 1)
}

func TestIngestRejectsUnmappedRoomType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := payload("BDC-3")
	p.RoomTypeCode = "SUITE"
	res, err := f.svc.Ingest(ctx, f.channel.ID, p)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Contains(t, res.Reason, "no local mapping")

	eb, err := f.db.GetExternalBooking(ctx, f.channel.ID, "BDC-3")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusError, eb.SyncStatus)
	require.NotEmpty(t, eb.SyncErrors)

	require.Len(t, f.acks.calls, 1)
	assert.Equal(t, models.AckTaskReject, f.acks.calls[0].taskType)
}

func TestIngestRejectsWhenNoRoomFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Fill both rooms for the stay.
	for _, id := range []string{"OCC-1", "OCC-2"} {
		res, err := f.svc.Ingest(ctx, f.channel.ID, payload(id))
		require.NoError(t, err)
		require.True(t, res.Accepted)
	}

	res, err := f.svc.Ingest(ctx, f.channel.ID, payload("OCC-3"))
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Contains(t, res.Reason, "no availability")

	// Rejection is visible to operators, never a silent overbook.
	eb, err := f.db.GetExternalBooking(ctx, f.channel.ID, "OCC-3")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusError, eb.SyncStatus)
}

func TestIngestCancellationReleasesRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Ingest(ctx, f.channel.ID, payload("BDC-4"))
	require.NoError(t, err)
	require.True(t, res.Accepted)

	cancel := payload("BDC-4")
	cancel.Status = models.StatusCancelled
	res2, err := f.svc.Ingest(ctx, f.channel.ID, cancel)
	require.NoError(t, err)
	assert.False(t, res2.Duplicate)

	eb, err := f.db.GetExternalBooking(ctx, f.channel.ID, "BDC-4")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, eb.Status)

	booking, err := f.db.GetBooking(ctx, res.LocalBookingID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, booking.Status)

	// The dates are sellable again.
	again, err := f.svc.Ingest(ctx, f.channel.ID, payload("BDC-5"))
	require.NoError(t, err)
	assert.True(t, again.Accepted)
}

func TestIngestBadPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := payload("BDC-6")
	p.CheckOut = "2024-06-30" // before check-in
	res, err := f.svc.Ingest(ctx, f.channel.ID, p)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Contains(t, res.Reason, "check_out")

	p = payload("")
	res, err = f.svc.Ingest(ctx, f.channel.ID, p)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
}
