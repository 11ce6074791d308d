package models

import "time"

// ExternalBooking mirrors a booking reported by an OTA channel.
// (ChannelID, OTABookingID) is the natural key: re-delivery must be
// idempotent. SyncStatus tracks whether our acknowledgment was communicated
// back, independent of the business Status.
type ExternalBooking struct {
	ID             int64       `json:"id"`
	ChannelID      int64       `json:"channel_id"`
	OTABookingID   string      `json:"ota_booking_id"`
	LocalBookingID *int64      `json:"local_booking_id,omitempty"`
	GuestID        string      `json:"guest_id"`
	GuestName      string      `json:"guest_name"`
	RoomTypeCode   string      `json:"room_type_code"`
	CheckIn        time.Time   `json:"check_in"`
	CheckOut       time.Time   `json:"check_out"`
	TotalAmount    float64     `json:"total_amount"`
	Currency       string      `json:"currency"`
	Status         string      `json:"status"`
	SyncStatus     string      `json:"sync_status"`
	SyncErrors     []SyncError `json:"sync_errors,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// SyncError is one operator-visible ingestion or acknowledgment failure.
type SyncError struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// CanTransition reports whether the business status may move from -> to.
// pending -> confirmed -> completed; pending|confirmed -> cancelled.
// Terminal states never transition.
func CanTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCompleted || to == StatusCancelled
	}
	return false
}
