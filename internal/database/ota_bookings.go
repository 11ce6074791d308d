package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ratesync/internal/models"
)

const externalColumns = `id, channel_id, ota_booking_id, local_booking_id, guest_id,
       guest_name, room_type_code, check_in, check_out, total_amount, currency,
       status, sync_status, sync_errors, created_at, updated_at`

func scanExternalBooking(row interface{ Scan(...any) error }) (*models.ExternalBooking, error) {
	eb := &models.ExternalBooking{}
	var localID sql.NullInt64
	var guestID sql.NullString
	var checkIn, checkOut, syncErrors string
	err := row.Scan(
		&eb.ID, &eb.ChannelID, &eb.OTABookingID, &localID, &guestID,
		&eb.GuestName, &eb.RoomTypeCode, &checkIn, &checkOut,
		&eb.TotalAmount, &eb.Currency, &eb.Status, &eb.SyncStatus, &syncErrors,
		&eb.CreatedAt, &eb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if localID.Valid {
		eb.LocalBookingID = &localID.Int64
	}
	eb.GuestID = guestID.String
	if eb.CheckIn, err = time.Parse(dateLayout, checkIn); err != nil {
		return nil, fmt.Errorf("failed to parse check_in %s: %w", checkIn, err)
	}
	if eb.CheckOut, err = time.Parse(dateLayout, checkOut); err != nil {
		return nil, fmt.Errorf("failed to parse check_out %s: %w", checkOut, err)
	}
	if err := json.Unmarshal([]byte(syncErrors), &eb.SyncErrors); err != nil {
		eb.SyncErrors = nil
	}
	return eb, nil
}

// GetExternalBooking looks up by the natural key (channel, otaBookingID).
func (db *DB) GetExternalBooking(ctx context.Context, channelID int64, otaBookingID string) (*models.ExternalBooking, error) {
	query := `SELECT ` + externalColumns + ` FROM external_bookings
              WHERE channel_id = ? AND ota_booking_id = ?`
	eb, err := scanExternalBooking(db.QueryRowContext(ctx, query, channelID, otaBookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get external booking: %w", err)
	}
	return eb, nil
}

// InsertExternalBooking records a first delivery. The UNIQUE(channel_id,
// ota_booking_id) constraint is the authoritative dedupe: a concurrent
// duplicate insert fails here and the caller falls back to the stored row.
func (db *DB) InsertExternalBooking(ctx context.Context, eb *models.ExternalBooking) error {
	now := time.Now()
	query := `INSERT INTO external_bookings (
                channel_id, ota_booking_id, guest_id, guest_name, room_type_code,
                check_in, check_out, total_amount, currency, status, sync_status,
                sync_errors, created_at, updated_at
              ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '[]', ?, ?)`
	result, err := db.ExecContext(ctx, query,
		eb.ChannelID, eb.OTABookingID, eb.GuestID, eb.GuestName, eb.RoomTypeCode,
		eb.CheckIn.Format(dateLayout), eb.CheckOut.Format(dateLayout),
		eb.TotalAmount, eb.Currency, eb.Status, eb.SyncStatus,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert external booking: %w", err)
	}
	eb.ID, _ = result.LastInsertId()
	eb.CreatedAt = now
	eb.UpdatedAt = now
	return nil
}

// TransitionExternalBooking advances the business status under the state
// machine; illegal moves are rejected without touching the row.
func (db *DB) TransitionExternalBooking(ctx context.Context, id int64, to string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var from string
	err = tx.QueryRowContext(ctx, `SELECT status FROM external_bookings WHERE id = ?`, id).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}

	if from == to {
		return nil // idempotent re-delivery
	}
	if !models.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE external_bookings SET status = ?, updated_at = ? WHERE id = ?`,
		to, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return tx.Commit()
}

// LinkLocalBooking attaches the created local booking to the external record.
func (db *DB) LinkLocalBooking(ctx context.Context, id, localBookingID int64) error {
	query := `UPDATE external_bookings SET local_booking_id = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, localBookingID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to link local booking: %w", err)
	}
	return nil
}

// RecordSyncError appends an operator-visible error and flips sync_status to
// error. Used for both business rejections and transport failures.
func (db *DB) RecordSyncError(ctx context.Context, id int64, message string) error {
	eb, err := db.getExternalByID(ctx, id)
	if err != nil {
		return err
	}
	eb.SyncErrors = append(eb.SyncErrors, models.SyncError{Message: message, At: time.Now()})
	data, err := json.Marshal(eb.SyncErrors)
	if err != nil {
		return fmt.Errorf("failed to encode sync errors: %w", err)
	}

	query := `UPDATE external_bookings SET sync_status = ?, sync_errors = ?, updated_at = ? WHERE id = ?`
	_, err = db.ExecContext(ctx, query, models.SyncStatusError, string(data), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to record sync error: %w", err)
	}
	return nil
}

// MarkExternalSynced flips sync_status once our acknowledgment reached the
// channel.
func (db *DB) MarkExternalSynced(ctx context.Context, id int64) error {
	query := `UPDATE external_bookings SET sync_status = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, models.SyncStatusSynced, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark synced: %w", err)
	}
	return nil
}

func (db *DB) getExternalByID(ctx context.Context, id int64) (*models.ExternalBooking, error) {
	query := `SELECT ` + externalColumns + ` FROM external_bookings WHERE id = ?`
	eb, err := scanExternalBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get external booking: %w", err)
	}
	return eb, nil
}

// GetRecentExternalBookings feeds the dashboard's cross-channel list.
func (db *DB) GetRecentExternalBookings(ctx context.Context, hotelID string, limit int) ([]*models.ExternalBooking, error) {
	query := `SELECT ` + prefixColumns("eb", externalColumns) + `
              FROM external_bookings eb
              JOIN channels c ON c.id = eb.channel_id
              WHERE c.hotel_id = ?
              ORDER BY eb.id DESC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, hotelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent external bookings: %w", err)
	}
	defer rows.Close()

	var out []*models.ExternalBooking
	for rows.Next() {
		eb, err := scanExternalBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan external booking: %w", err)
		}
		out = append(out, eb)
	}
	return out, rows.Err()
}
