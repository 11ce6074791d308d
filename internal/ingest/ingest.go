package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ratesync/internal/database"
	"ratesync/internal/ledger"
	"ratesync/internal/metrics"
	"ratesync/internal/models"
	"ratesync/internal/notify"
	"ratesync/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

// MappingError means the channel has no local mapping for an external
// identifier. Ingestion rejects the booking and records it for operators.
type MappingError struct {
	Code string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("no local mapping for room type %q", e.Code)
}

// Payload is one inbound reservation delivery from a channel.
type Payload struct {
	OTABookingID string  `json:"ota_booking_id"`
	Status       string  `json:"status,omitempty"` // empty means new pending booking
	GuestID      string  `json:"guest_id,omitempty"`
	GuestName    string  `json:"guest_name"`
	RoomTypeCode string  `json:"room_type_code"`
	CheckIn      string  `json:"check_in"`  // YYYY-MM-DD
	CheckOut     string  `json:"check_out"` // YYYY-MM-DD
	TotalAmount  float64 `json:"total_amount"`
	Currency     string  `json:"currency"`
}

// Result is the synchronous answer to one delivery.
type Result struct {
	Accepted       bool   `json:"accepted"`
	Duplicate      bool   `json:"duplicate,omitempty"`
	LocalBookingID int64  `json:"local_booking_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// AckEnqueuer schedules the asynchronous accept/reject acknowledgment.
type AckEnqueuer interface {
	Enqueue(ctx context.Context, taskType string, externalBookingID, channelID int64, otaBookingID, reference, reason string) error
}

// Service turns OTA deliveries into local bookings. Dedupe is two-layered:
// the delivery cache short-circuits redeliveries, the UNIQUE constraint on
// (channel_id, ota_booking_id) settles races.
type Service struct {
	db       *database.DB
	ledger   *ledger.Ledger
	cache    repository.DeliveryCache
	acks     AckEnqueuer
	notifier notify.Notifier
	logger   *zerolog.Logger
}

func NewService(db *database.DB, lg *ledger.Ledger, cache repository.DeliveryCache, acks AckEnqueuer, notifier notify.Notifier, logger *zerolog.Logger) *Service {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Service{
		db:       db,
		ledger:   lg,
		cache:    cache,
		acks:     acks,
		notifier: notifier,
		logger:   logger,
	}
}

// Ingest processes one delivery for a channel.
func (s *Service) Ingest(ctx context.Context, channelID int64, payload Payload) (Result, error) {
	ch, err := s.db.GetChannel(ctx, channelID)
	if err != nil {
		return Result{}, fmt.Errorf("unknown channel %d: %w", channelID, err)
	}

	if payload.OTABookingID == "" {
		return Result{Accepted: false, Reason: "ota_booking_id is required"}, nil
	}

	checkIn, checkOut, err := parseStay(payload)
	if err != nil {
		return Result{Accepted: false, Reason: err.Error()}, nil
	}

	// Fast-path dedupe; sqlite remains authoritative below.
	if s.cache != nil {
		if seen, err := s.cache.Seen(ctx, channelID, payload.OTABookingID); err == nil && seen {
			return s.redelivery(ctx, ch, payload)
		}
	}

	existing, err := s.db.GetExternalBooking(ctx, channelID, payload.OTABookingID)
	if err == nil {
		res, rerr := s.applyToExisting(ctx, ch, existing, payload)
		s.markSeen(ctx, channelID, payload.OTABookingID)
		return res, rerr
	}
	if !errors.Is(err, database.ErrNotFound) {
		return Result{}, err
	}

	eb := &models.ExternalBooking{
		ChannelID:    channelID,
		OTABookingID: payload.OTABookingID,
		GuestID:      payload.GuestID,
		GuestName:    payload.GuestName,
		RoomTypeCode: payload.RoomTypeCode,
		CheckIn:      checkIn,
		CheckOut:     checkOut,
		TotalAmount:  payload.TotalAmount,
		Currency:     payload.Currency,
		Status:       models.StatusPending,
		SyncStatus:   models.SyncStatusPending,
	}
	if err := s.db.InsertExternalBooking(ctx, eb); err != nil {
		// A concurrent delivery won the insert; fall back to the stored row.
		if stored, gerr := s.db.GetExternalBooking(ctx, channelID, payload.OTABookingID); gerr == nil {
			res, rerr := s.applyToExisting(ctx, ch, stored, payload)
			s.markSeen(ctx, channelID, payload.OTABookingID)
			return res, rerr
		}
		return Result{}, err
	}

	result := s.accept(ctx, ch, eb, checkIn, checkOut)
	s.markSeen(ctx, channelID, payload.OTABookingID)
	return result, nil
}

// accept maps, reserves, confirms and schedules the acknowledgment for a
// fresh external booking.
func (s *Service) accept(ctx context.Context, ch *models.Channel, eb *models.ExternalBooking, checkIn, checkOut time.Time) Result {
	if _, ok := ch.Mappings.RoomTypes[eb.RoomTypeCode]; !ok {
		mappingErr := &MappingError{Code: eb.RoomTypeCode}
		return s.reject(ctx, ch, eb, mappingErr.Error())
	}

	booking, err := s.reserveRoom(ctx, ch, eb, checkIn, checkOut)
	if err != nil {
		if ledger.IsConflict(err) || errors.Is(err, errNoRoomFree) {
			metrics.IncConflict()
			return s.reject(ctx, ch, eb, "no availability for requested dates")
		}
		return s.reject(ctx, ch, eb, err.Error())
	}

	if err := s.db.LinkLocalBooking(ctx, eb.ID, booking.ID); err != nil {
		s.logger.Error().Err(err).Int64("external_booking_id", eb.ID).Msg("link local booking")
	}

	// The confirm transition fires the booking_confirmed event; loyalty hangs
	// off it and its award reference makes re-delivery harmless.
	if err := s.db.TransitionExternalBooking(ctx, eb.ID, models.StatusConfirmed); err != nil {
		s.logger.Error().Err(err).Int64("external_booking_id", eb.ID).Msg("transition to confirmed")
	}
	if err := s.ledger.Confirm(ctx, booking.ID, booking.Version); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("confirm local booking")
	}

	s.enqueueAck(ctx, models.AckTaskAccept, eb, booking.Reference, "")
	metrics.IncIngest(ch.Name, "accepted")
	s.logger.Info().
		Str("channel", ch.Name).
		Str("ota_booking_id", eb.OTABookingID).
		Int64("local_booking_id", booking.ID).
		Msg("ota booking accepted")

	return Result{Accepted: true, LocalBookingID: booking.ID}
}

var errNoRoomFree = errors.New("no room free")

// reserveRoom finds a free room for the stay and reserves it. The ledger
// re-checks inside its transaction, so losing a race here just moves on to
// the next room.
func (s *Service) reserveRoom(ctx context.Context, ch *models.Channel, eb *models.ExternalBooking, checkIn, checkOut time.Time) (*models.Booking, error) {
	hotel, ok := s.db.GetHotel(ch.HotelID)
	if !ok {
		return nil, fmt.Errorf("unknown hotel %q", ch.HotelID)
	}

	for _, roomID := range hotel.Rooms {
		conflict, err := s.ledger.HasConflict(ctx, roomID, checkIn, checkOut, 0)
		if err != nil {
			return nil, err
		}
		if conflict {
			continue
		}

		booking := &models.Booking{
			Reference:   uuid.NewString(),
			HotelID:     ch.HotelID,
			RoomID:      roomID,
			GuestID:     eb.GuestID,
			GuestName:   eb.GuestName,
			CheckIn:     checkIn,
			CheckOut:    checkOut,
			Status:      models.StatusPending,
			TotalAmount: eb.TotalAmount,
			Source:      ch.Name,
		}
		err = s.ledger.Reserve(ctx, booking)
		if err == nil {
			return booking, nil
		}
		if !ledger.IsConflict(err) {
			return nil, err
		}
	}
	return nil, errNoRoomFree
}

// applyToExisting handles re-delivery and status-change deliveries for a
// booking we already know.
func (s *Service) applyToExisting(ctx context.Context, ch *models.Channel, eb *models.ExternalBooking, payload Payload) (Result, error) {
	target := payload.Status
	if target == "" || target == eb.Status {
		return s.duplicateResult(eb), nil
	}

	if err := s.db.TransitionExternalBooking(ctx, eb.ID, target); err != nil {
		if errors.Is(err, database.ErrInvalidTransition) {
			return Result{Accepted: false, Duplicate: true, Reason: err.Error()}, nil
		}
		return Result{}, err
	}

	if target == models.StatusCancelled && eb.LocalBookingID != nil {
		if booking, err := s.db.GetBooking(ctx, *eb.LocalBookingID); err == nil {
			if err := s.ledger.Release(ctx, booking.ID, booking.Version); err != nil {
				s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("release on ota cancellation")
			}
		}
	}

	s.logger.Info().
		Str("channel", ch.Name).
		Str("ota_booking_id", eb.OTABookingID).
		Str("status", target).
		Msg("ota booking status updated")

	res := s.duplicateResult(eb)
	res.Duplicate = false
	return res, nil
}

func (s *Service) duplicateResult(eb *models.ExternalBooking) Result {
	res := Result{Duplicate: true, Accepted: eb.SyncStatus != models.SyncStatusError && eb.Status != models.StatusCancelled}
	if eb.LocalBookingID != nil {
		res.LocalBookingID = *eb.LocalBookingID
	}
	return res
}

// redelivery resolves a cache hit against the stored row.
func (s *Service) redelivery(ctx context.Context, ch *models.Channel, payload Payload) (Result, error) {
	eb, err := s.db.GetExternalBooking(ctx, ch.ID, payload.OTABookingID)
	if err != nil {
		// Cache claims seen but sqlite disagrees: trust sqlite.
		if errors.Is(err, database.ErrNotFound) {
			return Result{Accepted: false, Reason: "delivery cache inconsistent, retry"}, nil
		}
		return Result{}, err
	}
	metrics.IncIngest(ch.Name, "duplicate")
	return s.applyToExisting(ctx, ch, eb, payload)
}

func (s *Service) reject(ctx context.Context, ch *models.Channel, eb *models.ExternalBooking, reason string) Result {
	if err := s.db.RecordSyncError(ctx, eb.ID, reason); err != nil {
		s.logger.Error().Err(err).Int64("external_booking_id", eb.ID).Msg("record ingest rejection")
	}
	s.enqueueAck(ctx, models.AckTaskReject, eb, "", reason)
	s.notifier.IngestRejected(ch.Name, eb.OTABookingID, reason)
	metrics.IncIngest(ch.Name, "rejected")
	s.logger.Warn().
		Str("channel", ch.Name).
		Str("ota_booking_id", eb.OTABookingID).
		Str("reason", reason).
		Msg("ota booking rejected")
	return Result{Accepted: false, Reason: reason}
}

func (s *Service) enqueueAck(ctx context.Context, taskType string, eb *models.ExternalBooking, reference, reason string) {
	if s.acks == nil {
		return
	}
	if err := s.acks.Enqueue(ctx, taskType, eb.ID, eb.ChannelID, eb.OTABookingID, reference, reason); err != nil {
		s.logger.Error().Err(err).Int64("external_booking_id", eb.ID).Msg("enqueue acknowledgment")
	}
}

func (s *Service) markSeen(ctx context.Context, channelID int64, otaBookingID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.MarkSeen(ctx, channelID, otaBookingID); err != nil {
		s.logger.Warn().Err(err).Msg("delivery cache write failed")
	}
}

func parseStay(payload Payload) (time.Time, time.Time, error) {
	checkIn, err := time.Parse(dateLayout, payload.CheckIn)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad check_in %q", payload.CheckIn)
	}
	checkOut, err := time.Parse(dateLayout, payload.CheckOut)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad check_out %q", payload.CheckOut)
	}
	if !checkOut.After(checkIn) {
		return time.Time{}, time.Time{}, errors.New("check_out must be after check_in")
	}
	return checkIn, checkOut, nil
}
