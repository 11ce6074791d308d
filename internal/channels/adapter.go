package channels

import "context"

// DatePrice is one night's rate for a room type.
type DatePrice struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Price float64 `json:"price"`
}

// RatePush carries resolved nightly prices for one external room type.
type RatePush struct {
	HotelCode    string      `json:"hotel_code"`
	RoomTypeCode string      `json:"room_type_code"`
	RatePlanCode string      `json:"rate_plan_code,omitempty"`
	Currency     string      `json:"currency"`
	Prices       []DatePrice `json:"prices"`
}

// DateAvailability is one night's sellable count.
type DateAvailability struct {
	Date      string `json:"date"`
	Available int    `json:"available"`
	StopSell  bool   `json:"stop_sell,omitempty"`
}

// AvailabilityPush carries free-room counts for one external room type.
type AvailabilityPush struct {
	HotelCode    string             `json:"hotel_code"`
	RoomTypeCode string             `json:"room_type_code"`
	Dates        []DateAvailability `json:"dates"`
}

// RoomTypeInventory declares a room type and its physical count.
type RoomTypeInventory struct {
	Code  string `json:"code"`
	Total int    `json:"total"`
}

// InventoryPush declares the hotel's room type catalogue.
type InventoryPush struct {
	HotelCode string              `json:"hotel_code"`
	RoomTypes []RoomTypeInventory `json:"room_types"`
}

// BookingAck confirms or rejects a received reservation back to the channel.
type BookingAck struct {
	OTABookingID string `json:"ota_booking_id"`
	Accepted     bool   `json:"accepted"`
	Reference    string `json:"reference,omitempty"` // our booking reference when accepted
	Reason       string `json:"reason,omitempty"`
}

// Adapter is one channel's outbound protocol. Implementations must honor the
// context deadline; the orchestrator relies on it for per-channel timeouts.
type Adapter interface {
	Name() string
	PushRates(ctx context.Context, push RatePush) error
	PushAvailability(ctx context.Context, push AvailabilityPush) error
	PushInventory(ctx context.Context, push InventoryPush) error
	Acknowledge(ctx context.Context, ack BookingAck) error
}
