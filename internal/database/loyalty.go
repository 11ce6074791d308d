package database

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// LoyaltyAward is one points ledger entry. ReferenceID carries the
// exactly-once guarantee via its UNIQUE constraint.
type LoyaltyAward struct {
	ID          int64     `json:"id"`
	ReferenceID string    `json:"reference_id"`
	GuestID     string    `json:"guest_id"`
	Points      int64     `json:"points"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

// InsertLoyaltyAward records an award. A duplicate reference returns
// ErrDuplicateAward so re-delivery never double-awards.
func (db *DB) InsertLoyaltyAward(ctx context.Context, award *LoyaltyAward) error {
	now := time.Now()
	query := `INSERT INTO loyalty_awards (reference_id, guest_id, points, reason, created_at)
              VALUES (?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		award.ReferenceID, award.GuestID, award.Points, award.Reason, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateAward
		}
		return fmt.Errorf("failed to insert loyalty award: %w", err)
	}
	award.ID, _ = result.LastInsertId()
	award.CreatedAt = now
	return nil
}

// CountLoyaltyAwards returns the number of awards for a reference; used by
// tests and operator tooling to verify the exactly-once invariant.
func (db *DB) CountLoyaltyAwards(ctx context.Context, referenceID string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loyalty_awards WHERE reference_id = ?`, referenceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count loyalty awards: %w", err)
	}
	return count, nil
}
