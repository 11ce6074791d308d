package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ratesync/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB wraps the sqlite store. Hotel room inventory is loaded from config and
// cached in memory; everything else lives in tables.
type DB struct {
	*sql.DB
	logger *zerolog.Logger

	mu     sync.RWMutex
	hotels map[string]models.Hotel
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: sqlDB, logger: logger, hotels: make(map[string]models.Hotel)}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS rate_configurations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            hotel_id TEXT NOT NULL,
            room_type TEXT NOT NULL,
            channel TEXT NOT NULL,
            base_rate REAL NOT NULL,
            currency TEXT NOT NULL DEFAULT 'USD',
            dynamic_pricing TEXT NOT NULL DEFAULT '{}',
            restrictions TEXT NOT NULL DEFAULT '{}',
            promotions TEXT NOT NULL DEFAULT '[]',
            rate_calendar TEXT NOT NULL DEFAULT '[]',
            last_sync TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            version INTEGER NOT NULL DEFAULT 1,
            UNIQUE(hotel_id, room_type, channel)
        )`,

		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            reference TEXT NOT NULL UNIQUE,
            hotel_id TEXT NOT NULL,
            room_id TEXT NOT NULL,
            guest_id TEXT,
            guest_name TEXT NOT NULL,
            check_in TEXT NOT NULL,
            check_out TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            total_amount REAL NOT NULL DEFAULT 0,
            source TEXT NOT NULL DEFAULT 'direct',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            version INTEGER NOT NULL DEFAULT 1
        )`,

		`CREATE TABLE IF NOT EXISTS channels (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            hotel_id TEXT NOT NULL,
            name TEXT NOT NULL,
            active BOOLEAN NOT NULL DEFAULT 1,
            endpoint TEXT NOT NULL,
            credentials TEXT NOT NULL DEFAULT '{}',
            mappings TEXT NOT NULL DEFAULT '{}',
            settings TEXT NOT NULL DEFAULT '{}',
            commission REAL NOT NULL DEFAULT 0,
            last_sync TEXT NOT NULL DEFAULT '{}',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(hotel_id, name)
        )`,

		`CREATE TABLE IF NOT EXISTS sync_logs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            channel_id INTEGER NOT NULL,
            feature TEXT NOT NULL,
            status TEXT NOT NULL,
            message TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS external_bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            channel_id INTEGER NOT NULL,
            ota_booking_id TEXT NOT NULL,
            local_booking_id INTEGER,
            guest_id TEXT,
            guest_name TEXT NOT NULL,
            room_type_code TEXT NOT NULL,
            check_in TEXT NOT NULL,
            check_out TEXT NOT NULL,
            total_amount REAL NOT NULL DEFAULT 0,
            currency TEXT NOT NULL DEFAULT 'USD',
            status TEXT NOT NULL DEFAULT 'pending',
            sync_status TEXT NOT NULL DEFAULT 'pending',
            sync_errors TEXT NOT NULL DEFAULT '[]',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            UNIQUE(channel_id, ota_booking_id)
        )`,

		`CREATE TABLE IF NOT EXISTS loyalty_awards (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            reference_id TEXT NOT NULL UNIQUE,
            guest_id TEXT NOT NULL,
            points INTEGER NOT NULL,
            reason TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS ack_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            external_booking_id INTEGER NOT NULL,
            payload TEXT,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_room ON bookings(room_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_hotel ON bookings(hotel_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_dates ON bookings(check_in, check_out)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_logs_channel ON sync_logs(channel_id)`,
		`CREATE INDEX IF NOT EXISTS idx_external_bookings_status ON external_bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_external_bookings_sync ON external_bookings(sync_status)`,
		`CREATE INDEX IF NOT EXISTS idx_ack_queue_status ON ack_queue(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// SetHotels loads the room inventory cache from config.
func (db *DB) SetHotels(hotels []models.Hotel) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.hotels = make(map[string]models.Hotel, len(hotels))
	for _, h := range hotels {
		db.hotels[h.ID] = h
	}
}

// Hotels returns all cached hotels.
func (db *DB) Hotels() []models.Hotel {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]models.Hotel, 0, len(db.hotels))
	for _, h := range db.hotels {
		out = append(out, h)
	}
	return out
}

// GetHotel returns the cached inventory for a hotel.
func (db *DB) GetHotel(hotelID string) (models.Hotel, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	h, ok := db.hotels[hotelID]
	return h, ok
}

const dateLayout = "2006-01-02"

// prefixColumns qualifies a comma-separated column list with a table alias
// for joined queries.
func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
