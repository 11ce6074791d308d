package models

import "time"

// RateConfiguration is the pricing document for one (hotel, room type,
// channel) combination. Rules, promotions and the calendar are stored as JSON
// inside the rate_configurations row.
type RateConfiguration struct {
	ID             int64               `json:"id"`
	HotelID        string              `json:"hotel_id"`
	RoomType       string              `json:"room_type"`
	Channel        string              `json:"channel"`
	BaseRate       float64             `json:"base_rate"`
	Currency       string              `json:"currency"`
	DynamicPricing DynamicPricing      `json:"dynamic_pricing"`
	Restrictions   Restrictions        `json:"restrictions"`
	Promotions     []Promotion         `json:"promotions"`
	RateCalendar   []RateCalendarEntry `json:"rate_calendar"`
	LastSync       *SyncMark           `json:"last_sync,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	Version        int64               `json:"version"`
}

// DynamicPricing holds the ordered rule list; array order is priority order
// and rules apply cumulatively.
type DynamicPricing struct {
	Enabled bool          `json:"enabled"`
	MinRate float64       `json:"min_rate"`
	MaxRate float64       `json:"max_rate"`
	Rules   []PricingRule `json:"rules"`
}

// BoundsSet reports whether both clamp bounds are configured.
func (d DynamicPricing) BoundsSet() bool {
	return d.MinRate > 0 && d.MaxRate > 0
}

// PricingRule is a condition/operator/adjustment triple. Value carries one
// number for scalar operators and a [lo, hi] pair for BETWEEN; SEASON and
// DAY_OF_WEEK treat EQUAL_TO values as a membership set.
type PricingRule struct {
	Condition  string     `json:"condition"`
	Operator   string     `json:"operator"`
	Value      []float64  `json:"value"`
	Adjustment Adjustment `json:"adjustment"`
}

type Adjustment struct {
	Type  string  `json:"type"` // PERCENTAGE or FIXED
	Value float64 `json:"value"`
}

// Promotion is a date-windowed, stay-length-gated discount applied after
// bounds clamping. The window is inclusive on both ends.
type Promotion struct {
	Name      string     `json:"name"`
	StartDate time.Time  `json:"start_date"`
	EndDate   time.Time  `json:"end_date"`
	MinStay   int        `json:"min_stay"`
	Discount  Adjustment `json:"discount"`
}

// Contains reports whether the promotion window covers date and the stay
// length satisfies the minimum.
func (p Promotion) Contains(date time.Time, nights int) bool {
	if p.MinStay > 0 && nights < p.MinStay {
		return false
	}
	d := date.Truncate(24 * time.Hour)
	return !d.Before(p.StartDate.Truncate(24*time.Hour)) && !d.After(p.EndDate.Truncate(24*time.Hour))
}

// RateCalendarEntry is a per-date override. An explicit rate takes precedence
// over the base rate as the starting point of resolution.
type RateCalendarEntry struct {
	Date         time.Time     `json:"date"`
	Rate         *float64      `json:"rate,omitempty"`
	Availability *int          `json:"availability,omitempty"`
	Restrictions *Restrictions `json:"restrictions,omitempty"`
}

// Restrictions gate whether and how a rate may be sold.
type Restrictions struct {
	MinStay           int  `json:"min_stay"`
	MaxStay           int  `json:"max_stay"`
	StopSell          bool `json:"stop_sell"`
	ClosedToArrival   bool `json:"closed_to_arrival"`
	ClosedToDeparture bool `json:"closed_to_departure"`
}

// SyncMark records the outcome of the last push for a configuration.
type SyncMark struct {
	Status  string    `json:"status"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// RuleContext supplies the evaluator inputs for one resolution. Occupancy is
// a percentage 0-100; AdvanceDays is days between booking and arrival.
type RuleContext struct {
	OccupancyPercent float64
	AdvanceDays      float64
}
