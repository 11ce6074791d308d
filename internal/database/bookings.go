package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ratesync/internal/models"
)

const bookingColumns = `id, reference, hotel_id, room_id, guest_id, guest_name,
       check_in, check_out, status, total_amount, source, created_at, updated_at, version`

func scanBooking(row interface{ Scan(...any) error }) (*models.Booking, error) {
	b := &models.Booking{}
	var checkIn, checkOut string
	err := row.Scan(
		&b.ID, &b.Reference, &b.HotelID, &b.RoomID, &b.GuestID, &b.GuestName,
		&checkIn, &checkOut, &b.Status, &b.TotalAmount, &b.Source,
		&b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	if b.CheckIn, err = time.Parse(dateLayout, checkIn); err != nil {
		return nil, fmt.Errorf("failed to parse check_in %s: %w", checkIn, err)
	}
	if b.CheckOut, err = time.Parse(dateLayout, checkOut); err != nil {
		return nil, fmt.Errorf("failed to parse check_out %s: %w", checkOut, err)
	}
	return b, nil
}

// HasConflict reports whether an active booking on the room overlaps the
// half-open interval [checkIn, checkOut). excludeID lets a move/resize ignore
// its own prior interval; pass 0 otherwise.
func (db *DB) HasConflict(ctx context.Context, roomID string, checkIn, checkOut time.Time, excludeID int64) (bool, error) {
	query := `SELECT COUNT(*) FROM bookings
              WHERE room_id = ?
                AND check_in < ? AND check_out > ?
                AND status IN (?, ?, ?)
                AND id != ?`

	var count int
	err := db.QueryRowContext(ctx, query,
		roomID,
		checkOut.Format(dateLayout), checkIn.Format(dateLayout),
		models.StatusPending, models.StatusConfirmed, models.StatusCheckedIn,
		excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check conflicts: %w", err)
	}
	return count > 0, nil
}

// CreateBookingWithLock re-checks the interval inside the insert transaction
// so the conflict check and the write are atomic.
func (db *DB) CreateBookingWithLock(ctx context.Context, booking *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var count int
	queryCount := `SELECT COUNT(*) FROM bookings
                   WHERE room_id = ? AND check_in < ? AND check_out > ?
                   AND status IN (?, ?, ?)`
	err = tx.QueryRowContext(ctx, queryCount,
		booking.RoomID,
		booking.CheckOut.Format(dateLayout), booking.CheckIn.Format(dateLayout),
		models.StatusPending, models.StatusConfirmed, models.StatusCheckedIn,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check availability in tx: %w", err)
	}
	if count > 0 {
		return ErrConflict
	}

	now := time.Now()
	queryInsert := `INSERT INTO bookings (
                reference, hotel_id, room_id, guest_id, guest_name,
                check_in, check_out, status, total_amount, source,
                created_at, updated_at, version
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, queryInsert,
		booking.Reference,
		booking.HotelID,
		booking.RoomID,
		booking.GuestID,
		booking.GuestName,
		booking.CheckIn.Format(dateLayout),
		booking.CheckOut.Format(dateLayout),
		booking.Status,
		booking.TotalAmount,
		booking.Source,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1

	return tx.Commit()
}

// MoveBookingWithLock reschedules a booking to a new room/interval. The
// conflict re-check excludes the booking's own row; the version guard rejects
// concurrent edits.
func (db *DB) MoveBookingWithLock(ctx context.Context, id, fromVersion int64, roomID string, checkIn, checkOut time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var count int
	queryCount := `SELECT COUNT(*) FROM bookings
                   WHERE room_id = ? AND check_in < ? AND check_out > ?
                   AND status IN (?, ?, ?) AND id != ?`
	err = tx.QueryRowContext(ctx, queryCount,
		roomID,
		checkOut.Format(dateLayout), checkIn.Format(dateLayout),
		models.StatusPending, models.StatusConfirmed, models.StatusCheckedIn,
		id,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check availability in tx: %w", err)
	}
	if count > 0 {
		return ErrConflict
	}

	queryUpdate := `UPDATE bookings
                    SET room_id = ?, check_in = ?, check_out = ?, version = version + 1, updated_at = ?
                    WHERE id = ? AND version = ?`
	result, err := tx.ExecContext(ctx, queryUpdate,
		roomID,
		checkIn.Format(dateLayout),
		checkOut.Format(dateLayout),
		time.Now(),
		id,
		fromVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to move booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}

	return tx.Commit()
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// GetBookingsByHotelAndRange returns bookings whose stay intersects the
// half-open range [start, end).
func (db *DB) GetBookingsByHotelAndRange(ctx context.Context, hotelID string, start, end time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE hotel_id = ? AND check_in < ? AND check_out > ?
              ORDER BY check_in ASC, id ASC`
	rows, err := db.QueryContext(ctx, query, hotelID, end.Format(dateLayout), start.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings by range: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// CountActiveOnDate counts active bookings covering one night, used for the
// occupancy rule context.
func (db *DB) CountActiveOnDate(ctx context.Context, hotelID string, date time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM bookings
              WHERE hotel_id = ? AND check_in <= ? AND check_out > ?
              AND status IN (?, ?, ?)`
	d := date.Format(dateLayout)
	var count int
	err := db.QueryRowContext(ctx, query, hotelID, d, d,
		models.StatusPending, models.StatusConfirmed, models.StatusCheckedIn).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active bookings: %w", err)
	}
	return count, nil
}

// OccupancyPercent derives the occupancy rule input from the ledger and the
// cached room inventory.
func (db *DB) OccupancyPercent(ctx context.Context, hotelID string, date time.Time) (float64, error) {
	hotel, ok := db.GetHotel(hotelID)
	if !ok || len(hotel.Rooms) == 0 {
		return 0, fmt.Errorf("hotel %q has no room inventory loaded", hotelID)
	}
	booked, err := db.CountActiveOnDate(ctx, hotelID, date)
	if err != nil {
		return 0, err
	}
	return float64(booked) / float64(len(hotel.Rooms)) * 100, nil
}

// AvailableRoomCount returns rooms free across the whole interval.
func (db *DB) AvailableRoomCount(ctx context.Context, hotelID string, checkIn, checkOut time.Time) (int, error) {
	hotel, ok := db.GetHotel(hotelID)
	if !ok {
		return 0, fmt.Errorf("hotel %q not loaded", hotelID)
	}

	query := `SELECT COUNT(DISTINCT room_id) FROM bookings
              WHERE hotel_id = ? AND check_in < ? AND check_out > ?
              AND status IN (?, ?, ?)`
	var busy int
	err := db.QueryRowContext(ctx, query, hotelID,
		checkOut.Format(dateLayout), checkIn.Format(dateLayout),
		models.StatusPending, models.StatusConfirmed, models.StatusCheckedIn).Scan(&busy)
	if err != nil {
		return 0, fmt.Errorf("failed to count busy rooms: %w", err)
	}

	free := len(hotel.Rooms) - busy
	if free < 0 {
		free = 0
	}
	return free, nil
}
