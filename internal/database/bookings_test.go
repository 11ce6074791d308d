package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"ratesync/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, 7, d, 0, 0, 0, 0, time.UTC)
}

func testBooking(room string, checkIn, checkOut time.Time) *models.Booking {
	return &models.Booking{
		Reference: uuid.NewString(),
		HotelID:   "h1",
		RoomID:    room,
		GuestName: "Guest",
		CheckIn:   checkIn,
		CheckOut:  checkOut,
		Status:    models.StatusConfirmed,
		Source:    "direct",
	}
}

func TestCreateBookingWithLockRejectsOverlap(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateBookingWithLock(ctx, testBooking("101", day(1), day(5))))

	// Overlapping interval on the same room is rejected with no state change.
	err := db.CreateBookingWithLock(ctx, testBooking("101", day(3), day(6)))
	assert.ErrorIs(t, err, ErrConflict)

	conflict, err := db.HasConflict(ctx, "101", day(3), day(6), 0)
	require.NoError(t, err)
	assert.True(t, conflict)

	// Back-to-back stay is fine: checkout day is free.
	require.NoError(t, db.CreateBookingWithLock(ctx, testBooking("101", day(5), day(8))))

	// Same dates on another room are fine.
	require.NoError(t, db.CreateBookingWithLock(ctx, testBooking("102", day(3), day(6))))
}

func TestCancelledBookingReleasesDates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	b := testBooking("101", day(1), day(5))
	require.NoError(t, db.CreateBookingWithLock(ctx, b))

	require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, b.ID, b.Version, models.StatusCancelled))

	conflict, err := db.HasConflict(ctx, "101", day(2), day(4), 0)
	require.NoError(t, err)
	assert.False(t, conflict)

	require.NoError(t, db.CreateBookingWithLock(ctx, testBooking("101", day(2), day(4))))
}

func TestMoveBookingWithLock(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	b := testBooking("101", day(1), day(5))
	require.NoError(t, db.CreateBookingWithLock(ctx, b))
	other := testBooking("102", day(4), day(8))
	require.NoError(t, db.CreateBookingWithLock(ctx, other))

	// Resizing over its own interval is allowed: the exclusion makes the
	// re-check ignore the booking's prior dates.
	require.NoError(t, db.MoveBookingWithLock(ctx, b.ID, b.Version, "101", day(2), day(6)))

	moved, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, day(2), moved.CheckIn)
	assert.Equal(t, day(6), moved.CheckOut)
	assert.Equal(t, b.Version+1, moved.Version)

	// Moving onto the occupied room 102 interval is rejected.
	err = db.MoveBookingWithLock(ctx, b.ID, moved.Version, "102", day(4), day(6))
	assert.ErrorIs(t, err, ErrConflict)

	// Stale version is rejected.
	err = db.MoveBookingWithLock(ctx, b.ID, b.Version, "101", day(2), day(7))
	assert.ErrorIs(t, err, ErrConcurrentModification)
}

func TestConcurrentBookingExactlyOneWins(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			results <- db.CreateBookingWithLock(ctx, testBooking("101", day(10), day(12)))
		}()
	}
	wg.Wait()
	close(results)

	success, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			success++
		default:
			conflicts++
		}
	}

	assert.Equal(t, 1, success, "exactly one reservation must win")
	assert.Equal(t, numGoroutines-1, conflicts)

	count, err := db.CountActiveOnDate(ctx, "h1", day(10))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOccupancyPercent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// 4 rooms; book 3 of them over the same night.
	for _, room := range []string{"101", "102", "103"} {
		require.NoError(t, db.CreateBookingWithLock(ctx, testBooking(room, day(1), day(3))))
	}

	pct, err := db.OccupancyPercent(ctx, "h1", day(1))
	require.NoError(t, err)
	assert.Equal(t, 75.0, pct)

	free, err := db.AvailableRoomCount(ctx, "h1", day(1), day(2))
	require.NoError(t, err)
	assert.Equal(t, 1, free)

	_, err = db.OccupancyPercent(ctx, "missing", day(1))
	assert.Error(t, err)
}

func TestGetBookingsByHotelAndRange(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateBookingWithLock(ctx, testBooking("101", day(1), day(5))))
	require.NoError(t, db.CreateBookingWithLock(ctx, testBooking("102", day(10), day(12))))

	bookings, err := db.GetBookingsByHotelAndRange(ctx, "h1", day(1), day(6))
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
	assert.Equal(t, "101", bookings[0].RoomID)
}
