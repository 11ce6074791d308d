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

const rateColumns = `id, hotel_id, room_type, channel, base_rate, currency,
       dynamic_pricing, restrictions, promotions, rate_calendar, last_sync,
       created_at, updated_at, version`

func scanRateConfig(row interface{ Scan(...any) error }) (*models.RateConfiguration, error) {
	cfg := &models.RateConfiguration{}
	var dynamicPricing, restrictions, promotions, calendar string
	var lastSync sql.NullString
	err := row.Scan(
		&cfg.ID, &cfg.HotelID, &cfg.RoomType, &cfg.Channel, &cfg.BaseRate, &cfg.Currency,
		&dynamicPricing, &restrictions, &promotions, &calendar, &lastSync,
		&cfg.CreatedAt, &cfg.UpdatedAt, &cfg.Version,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(dynamicPricing), &cfg.DynamicPricing); err != nil {
		return nil, fmt.Errorf("failed to decode dynamic_pricing: %w", err)
	}
	if err := json.Unmarshal([]byte(restrictions), &cfg.Restrictions); err != nil {
		return nil, fmt.Errorf("failed to decode restrictions: %w", err)
	}
	if err := json.Unmarshal([]byte(promotions), &cfg.Promotions); err != nil {
		return nil, fmt.Errorf("failed to decode promotions: %w", err)
	}
	if err := json.Unmarshal([]byte(calendar), &cfg.RateCalendar); err != nil {
		return nil, fmt.Errorf("failed to decode rate_calendar: %w", err)
	}
	if lastSync.Valid && lastSync.String != "" {
		var mark models.SyncMark
		if err := json.Unmarshal([]byte(lastSync.String), &mark); err == nil {
			cfg.LastSync = &mark
		}
	}
	return cfg, nil
}

// SaveRateConfiguration upserts by (hotel, room type, channel). Bounds are
// validated here so resolution never fails per request.
func (db *DB) SaveRateConfiguration(ctx context.Context, cfg *models.RateConfiguration) error {
	dp := cfg.DynamicPricing
	if dp.BoundsSet() && dp.MinRate > dp.MaxRate {
		return ErrInvalidBounds
	}

	dynamicPricing, err := json.Marshal(cfg.DynamicPricing)
	if err != nil {
		return fmt.Errorf("failed to encode dynamic_pricing: %w", err)
	}
	restrictions, err := json.Marshal(cfg.Restrictions)
	if err != nil {
		return fmt.Errorf("failed to encode restrictions: %w", err)
	}
	promotions, err := json.Marshal(cfg.Promotions)
	if err != nil {
		return fmt.Errorf("failed to encode promotions: %w", err)
	}
	calendar, err := json.Marshal(cfg.RateCalendar)
	if err != nil {
		return fmt.Errorf("failed to encode rate_calendar: %w", err)
	}

	now := time.Now()
	query := `INSERT INTO rate_configurations (
                hotel_id, room_type, channel, base_rate, currency,
                dynamic_pricing, restrictions, promotions, rate_calendar,
                created_at, updated_at, version
              ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
              ON CONFLICT(hotel_id, room_type, channel) DO UPDATE SET
                base_rate = excluded.base_rate,
                currency = excluded.currency,
                dynamic_pricing = excluded.dynamic_pricing,
                restrictions = excluded.restrictions,
                promotions = excluded.promotions,
                rate_calendar = excluded.rate_calendar,
                updated_at = excluded.updated_at,
                version = version + 1`
	_, err = db.ExecContext(ctx, query,
		cfg.HotelID, cfg.RoomType, cfg.Channel, cfg.BaseRate, cfg.Currency,
		string(dynamicPricing), string(restrictions), string(promotions), string(calendar),
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save rate configuration: %w", err)
	}

	stored, err := db.GetRateConfiguration(ctx, cfg.HotelID, cfg.RoomType, cfg.Channel)
	if err != nil {
		return err
	}
	cfg.ID = stored.ID
	cfg.Version = stored.Version
	cfg.UpdatedAt = stored.UpdatedAt
	return nil
}

func (db *DB) GetRateConfiguration(ctx context.Context, hotelID, roomType, channel string) (*models.RateConfiguration, error) {
	query := `SELECT ` + rateColumns + ` FROM rate_configurations
              WHERE hotel_id = ? AND room_type = ? AND channel = ?`
	cfg, err := scanRateConfig(db.QueryRowContext(ctx, query, hotelID, roomType, channel))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rate configuration: %w", err)
	}
	return cfg, nil
}

// GetRateConfigurations returns every configuration for a hotel room type,
// one per channel.
func (db *DB) GetRateConfigurations(ctx context.Context, hotelID, roomType string) ([]*models.RateConfiguration, error) {
	query := `SELECT ` + rateColumns + ` FROM rate_configurations
              WHERE hotel_id = ? AND room_type = ? ORDER BY channel ASC`
	rows, err := db.QueryContext(ctx, query, hotelID, roomType)
	if err != nil {
		return nil, fmt.Errorf("failed to list rate configurations: %w", err)
	}
	defer rows.Close()

	var configs []*models.RateConfiguration
	for rows.Next() {
		cfg, err := scanRateConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rate configuration: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// UpdateRateLastSync stores the outcome of the latest push on the
// configuration row.
func (db *DB) UpdateRateLastSync(ctx context.Context, id int64, mark models.SyncMark) error {
	data, err := json.Marshal(mark)
	if err != nil {
		return fmt.Errorf("failed to encode sync mark: %w", err)
	}
	query := `UPDATE rate_configurations SET last_sync = ?, updated_at = ? WHERE id = ?`
	_, err = db.ExecContext(ctx, query, string(data), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update last sync: %w", err)
	}
	return nil
}
