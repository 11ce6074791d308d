package models

import "time"

// Channel is one OTA integration for a hotel. Created once, mutated on every
// sync attempt, deactivated rather than deleted.
type Channel struct {
	ID          int64                `json:"id"`
	HotelID     string               `json:"hotel_id"`
	Name        string               `json:"name"`
	Active      bool                 `json:"active"`
	Endpoint    string               `json:"endpoint"`
	Credentials ChannelCredentials   `json:"credentials"`
	Mappings    ChannelMappings      `json:"mappings"`
	Settings    SyncSettings         `json:"settings"`
	Commission  float64              `json:"commission"` // fraction, e.g. 0.15
	LastSync    map[string]time.Time `json:"last_sync"`  // keyed by feature
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

type ChannelCredentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	HotelCode string `json:"hotel_code"`
}

// ChannelMappings translate external identifiers into local entities.
type ChannelMappings struct {
	RoomTypes map[string]string `json:"room_types"` // external room type -> local room id
	RatePlans map[string]string `json:"rate_plans"` // external rate plan -> local rate plan
}

// SyncSettings carries one independent interval per feature, in seconds.
type SyncSettings struct {
	InventoryInterval    int `json:"inventory_interval"`
	PricesInterval       int `json:"prices_interval"`
	AvailabilityInterval int `json:"availability_interval"`
}

// IntervalFor returns the configured interval for a feature, 0 if disabled.
func (s SyncSettings) IntervalFor(feature string) time.Duration {
	switch feature {
	case FeatureInventory:
		return time.Duration(s.InventoryInterval) * time.Second
	case FeaturePrices:
		return time.Duration(s.PricesInterval) * time.Second
	case FeatureAvailability:
		return time.Duration(s.AvailabilityInterval) * time.Second
	}
	return 0
}

// SyncLog is one append-only record of a channel push attempt.
type SyncLog struct {
	ID        int64     `json:"id"`
	ChannelID int64     `json:"channel_id"`
	Feature   string    `json:"feature"`
	Status    string    `json:"status"` // "success" or "error"
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ChannelResult is the per-channel outcome of one fan-out sync.
type ChannelResult struct {
	ChannelName string    `json:"channel_name"`
	Success     bool      `json:"success"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ChannelAnalytics aggregates booking performance per channel for a period.
type ChannelAnalytics struct {
	ChannelName string  `json:"channel_name"`
	Bookings    int64   `json:"bookings"`
	Revenue     float64 `json:"revenue"`
	Commission  float64 `json:"commission"`
	NetRevenue  float64 `json:"net_revenue"`
	AverageRate float64 `json:"average_rate"`
}
