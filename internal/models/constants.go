package models

// Booking statuses. Active statuses participate in availability conflict
// checks; cancelled and completed bookings release their dates.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCheckedIn = "checked-in"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// ExternalBooking sync statuses. Orthogonal to the business status: tracks
// whether our acknowledgment reached the channel.
const (
	SyncStatusPending = "pending"
	SyncStatusSynced  = "synced"
	SyncStatusError   = "error"
)

// Channel sync features. Each has an independent interval and last-sync mark.
const (
	FeatureInventory    = "inventory"
	FeaturePrices       = "prices"
	FeatureAvailability = "availability"
)

// Dynamic pricing rule conditions.
const (
	ConditionOccupancy      = "OCCUPANCY"
	ConditionSeason         = "SEASON"
	ConditionDayOfWeek      = "DAY_OF_WEEK"
	ConditionAdvanceBooking = "ADVANCE_BOOKING"
	ConditionLengthOfStay   = "LENGTH_OF_STAY"
)

// Rule operators.
const (
	OperatorGreaterThan = "GREATER_THAN"
	OperatorLessThan    = "LESS_THAN"
	OperatorEqualTo     = "EQUAL_TO"
	OperatorBetween     = "BETWEEN"
)

// Adjustment and discount kinds.
const (
	AdjustPercentage = "PERCENTAGE"
	AdjustFixed      = "FIXED"
)

const (
	// SyncLogLimit caps the retained sync log rows per channel.
	SyncLogLimit = 100

	// WorkerQueueSize is the ack worker in-memory queue size.
	WorkerQueueSize = 256

	// DefaultSyncTimeoutSeconds bounds a single channel push attempt.
	DefaultSyncTimeoutSeconds = 15

	// DefaultFailureAlertThreshold is the consecutive failure count per
	// (channel, feature) that triggers an operator notification.
	DefaultFailureAlertThreshold = 3

	// DefaultMaxStayNights caps the accepted stay length on ingestion.
	DefaultMaxStayNights = 90
)

// AllFeatures lists every schedulable sync feature.
var AllFeatures = []string{FeatureInventory, FeaturePrices, FeatureAvailability}
