package database

import (
	"context"
	"testing"

	"ratesync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedChannel(t *testing.T, db *DB, name string) *models.Channel {
	t.Helper()
	ch := &models.Channel{
		HotelID:    "h1",
		Name:       name,
		Active:     true,
		Endpoint:   "https://" + name + ".example.com/v1",
		Commission: 0.15,
		Mappings: models.ChannelMappings{
			RoomTypes: map[string]string{"DBL": "standard"},
		},
		Settings: models.SyncSettings{AvailabilityInterval: 300},
	}
	require.NoError(t, db.UpsertChannel(context.Background(), ch))
	return ch
}

func testExternalBooking(channelID int64, otaID string) *models.ExternalBooking {
	return &models.ExternalBooking{
		ChannelID:    channelID,
		OTABookingID: otaID,
		GuestName:    "Jane Doe",
		RoomTypeCode: "DBL",
		CheckIn:      day(1),
		CheckOut:     day(4),
		TotalAmount:  360,
		Currency:     "USD",
		Status:       models.StatusPending,
		SyncStatus:   models.SyncStatusPending,
	}
}

func TestInsertExternalBookingNaturalKeyDedupe(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ch := seedChannel(t, db, "booking.com")

	eb := testExternalBooking(ch.ID, "BDC-1001")
	require.NoError(t, db.InsertExternalBooking(ctx, eb))

	// Second delivery of the same (channel, ota id) hits the UNIQUE constraint.
	dup := testExternalBooking(ch.ID, "BDC-1001")
	assert.Error(t, db.InsertExternalBooking(ctx, dup))

	// The same id from a different channel is a distinct booking.
	other := seedChannel(t, db, "expedia")
	require.NoError(t, db.InsertExternalBooking(ctx, testExternalBooking(other.ID, "BDC-1001")))

	stored, err := db.GetExternalBooking(ctx, ch.ID, "BDC-1001")
	require.NoError(t, err)
	assert.Equal(t, eb.ID, stored.ID)
	assert.Equal(t, day(1), stored.CheckIn)
	assert.Equal(t, day(4), stored.CheckOut)
}

func TestTransitionExternalBooking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ch := seedChannel(t, db, "booking.com")

	eb := testExternalBooking(ch.ID, "BDC-2001")
	require.NoError(t, db.InsertExternalBooking(ctx, eb))

	require.NoError(t, db.TransitionExternalBooking(ctx, eb.ID, models.StatusConfirmed))

	// Same-status re-delivery is a no-op, not an error.
	require.NoError(t, db.TransitionExternalBooking(ctx, eb.ID, models.StatusConfirmed))

	// Confirmed cannot go back to pending.
	err := db.TransitionExternalBooking(ctx, eb.ID, models.StatusPending)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, db.TransitionExternalBooking(ctx, eb.ID, models.StatusCancelled))

	// Terminal state is frozen.
	err = db.TransitionExternalBooking(ctx, eb.ID, models.StatusConfirmed)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := db.GetExternalBooking(ctx, ch.ID, "BDC-2001")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)

	err = db.TransitionExternalBooking(ctx, 9999, models.StatusConfirmed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordSyncErrorAndMarkSynced(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ch := seedChannel(t, db, "airbnb")

	eb := testExternalBooking(ch.ID, "AIR-1")
	require.NoError(t, db.InsertExternalBooking(ctx, eb))

	require.NoError(t, db.RecordSyncError(ctx, eb.ID, "room type XYZ unmapped"))
	require.NoError(t, db.RecordSyncError(ctx, eb.ID, "availability conflict"))

	stored, err := db.GetExternalBooking(ctx, ch.ID, "AIR-1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusError, stored.SyncStatus)
	require.Len(t, stored.SyncErrors, 2)
	assert.Equal(t, "room type XYZ unmapped", stored.SyncErrors[0].Message)

	require.NoError(t, db.MarkExternalSynced(ctx, eb.ID))
	stored, err = db.GetExternalBooking(ctx, ch.ID, "AIR-1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, stored.SyncStatus)
}

func TestLinkLocalBookingAndRecentList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ch := seedChannel(t, db, "booking.com")

	local := testBooking("101", day(1), day(4))
	local.Source = ch.Name
	require.NoError(t, db.CreateBookingWithLock(ctx, local))

	eb := testExternalBooking(ch.ID, "BDC-3001")
	require.NoError(t, db.InsertExternalBooking(ctx, eb))
	require.NoError(t, db.LinkLocalBooking(ctx, eb.ID, local.ID))

	stored, err := db.GetExternalBooking(ctx, ch.ID, "BDC-3001")
	require.NoError(t, err)
	require.NotNil(t, stored.LocalBookingID)
	assert.Equal(t, local.ID, *stored.LocalBookingID)

	recent, err := db.GetRecentExternalBookings(ctx, "h1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "BDC-3001", recent[0].OTABookingID)
}
