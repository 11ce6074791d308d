package models

import "time"

// Booking is a local reservation of one room for a half-open date interval
// [CheckIn, CheckOut).
type Booking struct {
	ID          int64     `json:"id"`
	Reference   string    `json:"reference"`
	HotelID     string    `json:"hotel_id"`
	RoomID      string    `json:"room_id"`
	GuestID     string    `json:"guest_id"`
	GuestName   string    `json:"guest_name"`
	CheckIn     time.Time `json:"check_in"`
	CheckOut    time.Time `json:"check_out"`
	Status      string    `json:"status"`
	TotalAmount float64   `json:"total_amount"`
	Source      string    `json:"source"` // "direct" or the channel name
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Version     int64     `json:"version"`
}

// Nights returns the stay length in nights.
func (b *Booking) Nights() int {
	return int(b.CheckOut.Sub(b.CheckIn) / (24 * time.Hour))
}

// IsActive reports whether the booking occupies its dates.
func (b *Booking) IsActive() bool {
	return ActiveStatus(b.Status)
}

// ActiveStatus reports whether a status participates in conflict checks.
func ActiveStatus(status string) bool {
	switch status {
	case StatusPending, StatusConfirmed, StatusCheckedIn:
		return true
	}
	return false
}

// Overlaps reports whether two half-open intervals [a1,a2) and [b1,b2)
// intersect: a1 < b2 && a2 > b1.
func Overlaps(a1, a2, b1, b2 time.Time) bool {
	return a1.Before(b2) && a2.After(b1)
}
