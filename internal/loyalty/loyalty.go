package loyalty

import (
	"context"
	"encoding/json"
	"errors"
	"math"

	"ratesync/internal/config"
	"ratesync/internal/database"
	"ratesync/internal/events"

	"github.com/rs/zerolog"
)

// TierLookup resolves a guest's loyalty tier. Unknown guests default to bronze.
type TierLookup func(ctx context.Context, guestID string) (string, error)

// Store persists awards. *database.DB satisfies it.
type Store interface {
	InsertLoyaltyAward(ctx context.Context, award *database.LoyaltyAward) error
}

// Service awards points once per booking when the booking reaches confirmed.
// The award row's UNIQUE reference makes re-delivered confirmations harmless.
type Service struct {
	store       Store
	multipliers map[string]float64
	tiers       TierLookup
	logger      *zerolog.Logger
}

func NewService(store Store, cfg config.LoyaltyConfig, tiers TierLookup, logger *zerolog.Logger) *Service {
	return &Service{
		store:       store,
		multipliers: cfg.TierMultipliers,
		tiers:       tiers,
		logger:      logger,
	}
}

// ComputePoints is floor(totalAmount) scaled by the tier multiplier, floored
// again so points stay integral.
func (s *Service) ComputePoints(totalAmount float64, tier string) int64 {
	if totalAmount <= 0 {
		return 0
	}
	mult, ok := s.multipliers[tier]
	if !ok {
		mult = s.multipliers["bronze"]
		if mult == 0 {
			mult = 1.0
		}
	}
	return int64(math.Floor(math.Floor(totalAmount) * mult))
}

// Award records the points for one confirmed booking.
func (s *Service) Award(ctx context.Context, reference, guestID string, totalAmount float64) error {
	tier := "bronze"
	if s.tiers != nil && guestID != "" {
		if t, err := s.tiers(ctx, guestID); err == nil && t != "" {
			tier = t
		}
	}

	points := s.ComputePoints(totalAmount, tier)
	if points == 0 {
		return nil
	}

	award := &database.LoyaltyAward{
		ReferenceID: reference,
		GuestID:     guestID,
		Points:      points,
		Reason:      "booking confirmed",
	}
	err := s.store.InsertLoyaltyAward(ctx, award)
	if errors.Is(err, database.ErrDuplicateAward) {
		s.logger.Debug().Str("reference", reference).Msg("loyalty award already recorded")
		return nil
	}
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("reference", reference).
		Str("guest_id", guestID).
		Str("tier", tier).
		Int64("points", points).
		Msg("loyalty points awarded")
	return nil
}

// SubscribeTo wires the service to booking confirmations on the bus.
func (s *Service) SubscribeTo(bus *events.EventBus) {
	bus.Subscribe(events.EventBookingConfirmed, func(e *events.Event) error {
		var p events.BookingEventPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			s.logger.Error().Err(err).Msg("bad booking event payload")
			return err
		}
		if err := s.Award(context.Background(), p.Reference, p.GuestID, p.TotalAmount); err != nil {
			s.logger.Error().Err(err).Str("reference", p.Reference).Msg("loyalty award failed")
			return err
		}
		return nil
	})
}
