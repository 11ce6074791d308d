package sync

import (
	"context"
	"sync"
	"time"

	"ratesync/internal/database"
	"ratesync/internal/models"

	"github.com/rs/zerolog"
)

// Scheduler drives periodic pushes. Every (channel, feature) pair ticks on its
// own interval from the channel's sync settings; a tick that fires while the
// previous one is still running is skipped, never run concurrently.
type Scheduler struct {
	orch        *Orchestrator
	db          *database.DB
	horizonDays int
	logger      *zerolog.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

func NewScheduler(orch *Orchestrator, db *database.DB, horizonDays int, logger *zerolog.Logger) *Scheduler {
	if horizonDays <= 0 {
		horizonDays = 30
	}
	return &Scheduler{
		orch:        orch,
		db:          db,
		horizonDays: horizonDays,
		logger:      logger,
		inflight:    make(map[string]bool),
	}
}

// Start launches one ticker loop per enabled (channel, feature) pair and
// returns. Loops stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, hotel := range s.db.Hotels() {
		active, err := s.db.GetActiveChannels(ctx, hotel.ID)
		if err != nil {
			return err
		}
		for _, ch := range active {
			for _, feature := range models.AllFeatures {
				interval := ch.Settings.IntervalFor(feature)
				if interval <= 0 {
					continue
				}
				go s.loop(ctx, hotel.ID, ch.ID, ch.Name, feature, interval)
				s.logger.Info().
					Str("channel", ch.Name).
					Str("feature", feature).
					Dur("interval", interval).
					Msg("sync schedule started")
			}
		}
	}
	return nil
}

func (s *Scheduler) loop(ctx context.Context, hotelID string, channelID int64, channelName, feature string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go s.tick(ctx, hotelID, channelID, channelName, feature)
		}
	}
}

// tick runs one scheduled push unless the previous one for the same
// (channel, feature) is still in flight.
func (s *Scheduler) tick(ctx context.Context, hotelID string, channelID int64, channelName, feature string) {
	key := streakKey(channelID, feature)
	s.mu.Lock()
	if s.inflight[key] {
		s.mu.Unlock()
		s.logger.Debug().Str("channel", channelName).Str("feature", feature).Msg("previous sync still running, tick skipped")
		return
	}
	s.inflight[key] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
	}()

	today := time.Now().UTC().Truncate(24 * time.Hour)
	scope := Scope{
		HotelID: hotelID,
		Start:   today,
		End:     today.AddDate(0, 0, s.horizonDays),
	}
	if _, err := s.orch.SyncChannel(ctx, feature, scope, channelID); err != nil {
		s.logger.Error().Err(err).Str("channel", channelName).Str("feature", feature).Msg("scheduled sync failed")
	}
}
