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

const channelColumns = `id, hotel_id, name, active, endpoint, credentials,
       mappings, settings, commission, last_sync, created_at, updated_at`

func scanChannel(row interface{ Scan(...any) error }) (*models.Channel, error) {
	ch := &models.Channel{}
	var credentials, mappings, settings, lastSync string
	err := row.Scan(
		&ch.ID, &ch.HotelID, &ch.Name, &ch.Active, &ch.Endpoint,
		&credentials, &mappings, &settings, &ch.Commission, &lastSync,
		&ch.CreatedAt, &ch.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(credentials), &ch.Credentials); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	if err := json.Unmarshal([]byte(mappings), &ch.Mappings); err != nil {
		return nil, fmt.Errorf("failed to decode mappings: %w", err)
	}
	if err := json.Unmarshal([]byte(settings), &ch.Settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := json.Unmarshal([]byte(lastSync), &ch.LastSync); err != nil {
		ch.LastSync = make(map[string]time.Time)
	}
	return ch, nil
}

// UpsertChannel seeds or refreshes a channel by (hotel, name). Channels are
// deactivated, never deleted.
func (db *DB) UpsertChannel(ctx context.Context, ch *models.Channel) error {
	credentials, err := json.Marshal(ch.Credentials)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	mappings, err := json.Marshal(ch.Mappings)
	if err != nil {
		return fmt.Errorf("failed to encode mappings: %w", err)
	}
	settings, err := json.Marshal(ch.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	now := time.Now()
	query := `INSERT INTO channels (
                hotel_id, name, active, endpoint, credentials, mappings,
                settings, commission, last_sync, created_at, updated_at
              ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, '{}', ?, ?)
              ON CONFLICT(hotel_id, name) DO UPDATE SET
                active = excluded.active,
                endpoint = excluded.endpoint,
                credentials = excluded.credentials,
                mappings = excluded.mappings,
                settings = excluded.settings,
                commission = excluded.commission,
                updated_at = excluded.updated_at`
	_, err = db.ExecContext(ctx, query,
		ch.HotelID, ch.Name, ch.Active, ch.Endpoint,
		string(credentials), string(mappings), string(settings), ch.Commission,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert channel: %w", err)
	}

	stored, err := db.GetChannelByName(ctx, ch.HotelID, ch.Name)
	if err != nil {
		return err
	}
	ch.ID = stored.ID
	return nil
}

func (db *DB) GetChannel(ctx context.Context, id int64) (*models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE id = ?`
	ch, err := scanChannel(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return ch, nil
}

func (db *DB) GetChannelByName(ctx context.Context, hotelID, name string) (*models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE hotel_id = ? AND name = ?`
	ch, err := scanChannel(db.QueryRowContext(ctx, query, hotelID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel by name: %w", err)
	}
	return ch, nil
}

func (db *DB) GetActiveChannels(ctx context.Context, hotelID string) ([]*models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels
              WHERE hotel_id = ? AND active = 1 ORDER BY name ASC`
	rows, err := db.QueryContext(ctx, query, hotelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active channels: %w", err)
	}
	defer rows.Close()

	var channels []*models.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// GetChannels lists every channel of a hotel, inactive ones included. The
// dashboard shows deactivated channels greyed out rather than hiding them.
func (db *DB) GetChannels(ctx context.Context, hotelID string) ([]*models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels
              WHERE hotel_id = ? ORDER BY name ASC`
	rows, err := db.QueryContext(ctx, query, hotelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var channels []*models.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func (db *DB) DeactivateChannel(ctx context.Context, id int64) error {
	query := `UPDATE channels SET active = 0, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, time.Now(), id)
	return err
}

// AppendSyncLog records one push attempt and trims the channel's log to the
// retention limit.
func (db *DB) AppendSyncLog(ctx context.Context, log *models.SyncLog) error {
	now := time.Now()
	query := `INSERT INTO sync_logs (channel_id, feature, status, message, created_at)
              VALUES (?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query, log.ChannelID, log.Feature, log.Status, log.Message, now)
	if err != nil {
		return fmt.Errorf("failed to append sync log: %w", err)
	}
	log.ID, _ = result.LastInsertId()
	log.CreatedAt = now

	trim := `DELETE FROM sync_logs WHERE channel_id = ? AND id NOT IN (
                SELECT id FROM sync_logs WHERE channel_id = ? ORDER BY id DESC LIMIT ?)`
	if _, err := db.ExecContext(ctx, trim, log.ChannelID, log.ChannelID, models.SyncLogLimit); err != nil {
		return fmt.Errorf("failed to trim sync logs: %w", err)
	}
	return nil
}

func (db *DB) GetRecentSyncLogs(ctx context.Context, channelID int64, limit int) ([]*models.SyncLog, error) {
	query := `SELECT id, channel_id, feature, status, message, created_at
              FROM sync_logs WHERE channel_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.SyncLog
	for rows.Next() {
		l := &models.SyncLog{}
		var message sql.NullString
		if err := rows.Scan(&l.ID, &l.ChannelID, &l.Feature, &l.Status, &message, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		l.Message = message.String
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// UpdateChannelLastSync stamps the feature's last sync time on the channel.
func (db *DB) UpdateChannelLastSync(ctx context.Context, channelID int64, feature string, at time.Time) error {
	ch, err := db.GetChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.LastSync == nil {
		ch.LastSync = make(map[string]time.Time)
	}
	ch.LastSync[feature] = at

	data, err := json.Marshal(ch.LastSync)
	if err != nil {
		return fmt.Errorf("failed to encode last_sync: %w", err)
	}
	query := `UPDATE channels SET last_sync = ?, updated_at = ? WHERE id = ?`
	_, err = db.ExecContext(ctx, query, string(data), time.Now(), channelID)
	if err != nil {
		return fmt.Errorf("failed to update channel last sync: %w", err)
	}
	return nil
}

// GetChannelAnalytics aggregates channel-sourced bookings over a period.
// Commission percentages come from the channel rows.
func (db *DB) GetChannelAnalytics(ctx context.Context, hotelID string, start, end time.Time) ([]*models.ChannelAnalytics, error) {
	query := `SELECT source, COUNT(*), COALESCE(SUM(total_amount), 0), COALESCE(AVG(total_amount), 0)
              FROM bookings
              WHERE hotel_id = ? AND check_in >= ? AND check_in < ?
                AND status IN (?, ?, ?)
                AND source != 'direct'
              GROUP BY source ORDER BY source ASC`
	rows, err := db.QueryContext(ctx, query, hotelID,
		start.Format(dateLayout), end.Format(dateLayout),
		models.StatusConfirmed, models.StatusCheckedIn, models.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate analytics: %w", err)
	}
	defer rows.Close()

	var out []*models.ChannelAnalytics
	for rows.Next() {
		a := &models.ChannelAnalytics{}
		if err := rows.Scan(&a.ChannelName, &a.Bookings, &a.Revenue, &a.AverageRate); err != nil {
			return nil, fmt.Errorf("failed to scan analytics row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, a := range out {
		ch, err := db.GetChannelByName(ctx, hotelID, a.ChannelName)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		a.Commission = a.Revenue * ch.Commission
		a.NetRevenue = a.Revenue - a.Commission
	}
	return out, nil
}
