package models

import "time"

// AckTask is a queued acknowledgment job: report acceptance or rejection of
// an external booking back to its channel and advance its sync status.
type AckTask struct {
	ID                int64      `json:"id"`
	TaskType          string     `json:"task_type"` // "accept" or "reject"
	ExternalBookingID int64      `json:"external_booking_id"`
	Payload           string     `json:"payload"`
	Status            string     `json:"status"` // pending, retry, completed, failed
	RetryCount        int        `json:"retry_count"`
	LastError         *string    `json:"last_error"`
	CreatedAt         time.Time  `json:"created_at"`
	ProcessedAt       *time.Time `json:"processed_at"`
	NextRetryAt       *time.Time `json:"next_retry_at"`
}

const (
	AckTaskAccept = "accept"
	AckTaskReject = "reject"
)
