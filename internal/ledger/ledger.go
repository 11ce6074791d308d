package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"ratesync/internal/database"
	"ratesync/internal/events"
	"ratesync/internal/models"

	"github.com/rs/zerolog"
)

var ErrInvalidStay = errors.New("check-out must be after check-in")

// Store is the booking persistence the ledger drives. *database.DB satisfies it.
type Store interface {
	CreateBookingWithLock(ctx context.Context, booking *models.Booking) error
	MoveBookingWithLock(ctx context.Context, id, version int64, roomID string, checkIn, checkOut time.Time) error
	UpdateBookingStatusWithVersion(ctx context.Context, id, version int64, status string) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	HasConflict(ctx context.Context, roomID string, checkIn, checkOut time.Time, excludeBookingID int64) (bool, error)
	AvailableRoomCount(ctx context.Context, hotelID string, checkIn, checkOut time.Time) (int, error)
	OccupancyPercent(ctx context.Context, hotelID string, date time.Time) (float64, error)
}

// Ledger owns room-night occupancy. Every reservation path goes through it so
// the check-then-reserve sequence holds: a per-room mutex serializes writers
// in-process and the store re-checks inside its transaction.
type Ledger struct {
	store  Store
	bus    *events.EventBus
	logger *zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(store Store, bus *events.EventBus, logger *zerolog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		bus:    bus,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) roomLock(roomID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[roomID] = lock
	}
	return lock
}

// Reserve records a new booking if its half-open interval is free.
func (l *Ledger) Reserve(ctx context.Context, booking *models.Booking) error {
	if !booking.CheckOut.After(booking.CheckIn) {
		return ErrInvalidStay
	}

	lock := l.roomLock(booking.RoomID)
	lock.Lock()
	defer lock.Unlock()

	if err := l.store.CreateBookingWithLock(ctx, booking); err != nil {
		return err
	}

	l.publish(events.EventBookingCreated, booking)
	l.logger.Info().
		Str("room_id", booking.RoomID).
		Str("reference", booking.Reference).
		Time("check_in", booking.CheckIn).
		Time("check_out", booking.CheckOut).
		Msg("booking reserved")
	return nil
}

// Move relocates or resizes a booking. The booking's own interval is excluded
// from the conflict check so shrinking or shifting within it always succeeds.
func (l *Ledger) Move(ctx context.Context, id, version int64, roomID string, checkIn, checkOut time.Time) error {
	if !checkOut.After(checkIn) {
		return ErrInvalidStay
	}

	lock := l.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	if err := l.store.MoveBookingWithLock(ctx, id, version, roomID, checkIn, checkOut); err != nil {
		return err
	}

	l.logger.Info().Int64("booking_id", id).Str("room_id", roomID).Msg("booking moved")
	return nil
}

// Confirm advances a booking to confirmed and announces it.
func (l *Ledger) Confirm(ctx context.Context, id, version int64) error {
	if err := l.store.UpdateBookingStatusWithVersion(ctx, id, version, models.StatusConfirmed); err != nil {
		return err
	}
	if booking, err := l.store.GetBooking(ctx, id); err == nil {
		l.publish(events.EventBookingConfirmed, booking)
	}
	return nil
}

// Release cancels a booking, freeing its dates for rebooking.
func (l *Ledger) Release(ctx context.Context, id, version int64) error {
	if err := l.store.UpdateBookingStatusWithVersion(ctx, id, version, models.StatusCancelled); err != nil {
		return err
	}
	if booking, err := l.store.GetBooking(ctx, id); err == nil {
		l.publish(events.EventBookingCancelled, booking)
	}
	return nil
}

// HasConflict reports whether [checkIn, checkOut) collides with an active
// booking on the room, ignoring excludeBookingID.
func (l *Ledger) HasConflict(ctx context.Context, roomID string, checkIn, checkOut time.Time, excludeBookingID int64) (bool, error) {
	return l.store.HasConflict(ctx, roomID, checkIn, checkOut, excludeBookingID)
}

// AvailableRooms counts rooms free for the whole interval.
func (l *Ledger) AvailableRooms(ctx context.Context, hotelID string, checkIn, checkOut time.Time) (int, error) {
	return l.store.AvailableRoomCount(ctx, hotelID, checkIn, checkOut)
}

// Occupancy returns the percentage of rooms occupied on a date; rate rules
// evaluate against it.
func (l *Ledger) Occupancy(ctx context.Context, hotelID string, date time.Time) (float64, error) {
	return l.store.OccupancyPercent(ctx, hotelID, date)
}

// IsConflict reports whether an error is the ledger's overlap rejection.
func IsConflict(err error) bool {
	return errors.Is(err, database.ErrConflict)
}

func (l *Ledger) publish(eventType string, booking *models.Booking) {
	if l.bus == nil {
		return
	}
	payload := events.BookingEventPayload{
		BookingID:   booking.ID,
		Reference:   booking.Reference,
		HotelID:     booking.HotelID,
		RoomID:      booking.RoomID,
		GuestID:     booking.GuestID,
		GuestName:   booking.GuestName,
		Source:      booking.Source,
		Status:      booking.Status,
		CheckIn:     booking.CheckIn,
		CheckOut:    booking.CheckOut,
		TotalAmount: booking.TotalAmount,
	}
	if err := l.bus.PublishJSON(eventType, payload); err != nil {
		l.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}
