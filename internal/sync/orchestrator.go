package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ratesync/internal/channels"
	"ratesync/internal/config"
	"ratesync/internal/database"
	"ratesync/internal/metrics"
	"ratesync/internal/models"
	"ratesync/internal/notify"
	"ratesync/internal/rates"

	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

// Scope bounds one fan-out: which hotel, which dates, optionally one room type.
// End is exclusive, matching the booking interval convention.
type Scope struct {
	HotelID  string
	RoomType string
	Start    time.Time
	End      time.Time
}

// AdapterFactory builds the outbound protocol for a channel row. Tests swap it
// for fakes; production uses the JSON-over-HTTP adapter.
type AdapterFactory func(ch *models.Channel) channels.Adapter

// Orchestrator pushes inventory, prices and availability to every active
// channel. Failures are isolated per channel and reported, never thrown.
type Orchestrator struct {
	db        *database.DB
	adapters  AdapterFactory
	notifier  notify.Notifier
	timeout   time.Duration
	threshold int
	logger    *zerolog.Logger

	mu       sync.Mutex
	failures map[string]int // consecutive failures per (channel, feature)
}

func NewOrchestrator(db *database.DB, cfg config.SyncConfig, notifier notify.Notifier, logger *zerolog.Logger) *Orchestrator {
	timeout := time.Duration(cfg.PushTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(models.DefaultSyncTimeoutSeconds) * time.Second
	}
	threshold := cfg.FailureAlertThreshold
	if threshold <= 0 {
		threshold = models.DefaultFailureAlertThreshold
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Orchestrator{
		db:        db,
		adapters:  func(ch *models.Channel) channels.Adapter { return channels.NewHTTPAdapter(ch) },
		notifier:  notifier,
		timeout:   timeout,
		threshold: threshold,
		logger:    logger,
		failures:  make(map[string]int),
	}
}

// SetAdapterFactory overrides how channel adapters are built.
func (o *Orchestrator) SetAdapterFactory(f AdapterFactory) {
	o.adapters = f
}

// SyncAll fans one feature out to every active channel of the hotel. All
// channels are attempted; the returned slice holds one result per channel in
// name order.
func (o *Orchestrator) SyncAll(ctx context.Context, feature string, scope Scope) ([]models.ChannelResult, error) {
	active, err := o.db.GetActiveChannels(ctx, scope.HotelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}

	results := make([]models.ChannelResult, len(active))
	var wg sync.WaitGroup
	wg.Add(len(active))
	for i, ch := range active {
		go func(i int, ch *models.Channel) {
			defer wg.Done()
			results[i] = o.syncChannel(ctx, feature, scope, ch)
		}(i, ch)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].ChannelName < results[j].ChannelName })
	return results, nil
}

// SyncChannel pushes one feature to a single channel; the scheduler and the
// selective-retry path use it.
func (o *Orchestrator) SyncChannel(ctx context.Context, feature string, scope Scope, channelID int64) (models.ChannelResult, error) {
	ch, err := o.db.GetChannel(ctx, channelID)
	if err != nil {
		return models.ChannelResult{}, err
	}
	if !ch.Active {
		return models.ChannelResult{
			ChannelName: ch.Name,
			Success:     true,
			Message:     "skipped: inactive",
			Timestamp:   time.Now(),
		}, nil
	}
	return o.syncChannel(ctx, feature, scope, ch), nil
}

func (o *Orchestrator) syncChannel(parent context.Context, feature string, scope Scope, ch *models.Channel) models.ChannelResult {
	ctx, cancel := context.WithTimeout(parent, o.timeout)
	defer cancel()

	result := models.ChannelResult{ChannelName: ch.Name, Timestamp: time.Now()}

	pushed, err := o.push(ctx, feature, scope, ch)
	switch {
	case err != nil:
		result.Message = err.Error()
		o.recordFailure(parent, feature, ch, err)
	case !pushed:
		result.Success = true
		result.Message = "skipped: stop-sell"
		o.recordSkip(parent, feature, ch)
	default:
		result.Success = true
		o.recordSuccess(parent, feature, ch)
	}
	return result
}

// push sends the feature payloads. It returns false with nil error when every
// mapped room type is under a stop-sell restriction and nothing was sent.
func (o *Orchestrator) push(ctx context.Context, feature string, scope Scope, ch *models.Channel) (bool, error) {
	adapter := o.adapters(ch)

	switch feature {
	case models.FeatureInventory:
		return o.pushInventory(ctx, adapter, scope, ch)
	case models.FeaturePrices:
		return o.pushPrices(ctx, adapter, scope, ch)
	case models.FeatureAvailability:
		return o.pushAvailability(ctx, adapter, scope, ch)
	}
	return false, fmt.Errorf("unknown sync feature %q", feature)
}

// roomTypes returns the channel's external-code -> local-type pairs inside the
// scope, with stop-sell types filtered out. Codes come back sorted so pushes
// are deterministic.
func (o *Orchestrator) roomTypes(ctx context.Context, scope Scope, ch *models.Channel) (map[string]*models.RateConfiguration, []string, error) {
	configs := make(map[string]*models.RateConfiguration)
	var codes []string
	for extCode, localType := range ch.Mappings.RoomTypes {
		if scope.RoomType != "" && localType != scope.RoomType {
			continue
		}
		cfg, err := o.db.GetRateConfiguration(ctx, scope.HotelID, localType, ch.Name)
		if errors.Is(err, database.ErrNotFound) {
			cfg = &models.RateConfiguration{
				HotelID:  scope.HotelID,
				RoomType: localType,
				Channel:  ch.Name,
			}
		} else if err != nil {
			return nil, nil, err
		}
		if cfg.Restrictions.StopSell {
			continue
		}
		configs[extCode] = cfg
		codes = append(codes, extCode)
	}
	sort.Strings(codes)
	return configs, codes, nil
}

func (o *Orchestrator) pushInventory(ctx context.Context, adapter channels.Adapter, scope Scope, ch *models.Channel) (bool, error) {
	_, codes, err := o.roomTypes(ctx, scope, ch)
	if err != nil {
		return false, err
	}
	if len(codes) == 0 {
		return false, nil
	}

	hotel, ok := o.db.GetHotel(scope.HotelID)
	if !ok {
		return false, fmt.Errorf("unknown hotel %q", scope.HotelID)
	}

	push := channels.InventoryPush{HotelCode: ch.Credentials.HotelCode}
	for _, code := range codes {
		push.RoomTypes = append(push.RoomTypes, channels.RoomTypeInventory{
			Code:  code,
			Total: len(hotel.Rooms),
		})
	}
	return true, adapter.PushInventory(ctx, push)
}

func (o *Orchestrator) pushPrices(ctx context.Context, adapter channels.Adapter, scope Scope, ch *models.Channel) (bool, error) {
	configs, codes, err := o.roomTypes(ctx, scope, ch)
	if err != nil {
		return false, err
	}
	if len(codes) == 0 {
		return false, nil
	}

	now := time.Now()
	for _, code := range codes {
		cfg := configs[code]
		push := channels.RatePush{
			HotelCode:    ch.Credentials.HotelCode,
			RoomTypeCode: code,
			RatePlanCode: ch.Mappings.RatePlans[code],
			Currency:     cfg.Currency,
		}

		for date := scope.Start; date.Before(scope.End); date = date.AddDate(0, 0, 1) {
			occupancy, err := o.db.OccupancyPercent(ctx, scope.HotelID, date)
			if err != nil {
				return false, err
			}
			rctx := models.RuleContext{
				OccupancyPercent: occupancy,
				AdvanceDays:      date.Sub(now).Hours() / 24,
			}
			res, err := rates.Resolve(cfg, date, 1, rctx)
			if err != nil {
				return false, err
			}
			for _, issue := range res.Issues {
				o.logger.Warn().Err(issue).Str("channel", ch.Name).Str("room_type", cfg.RoomType).Msg("pricing rule skipped")
			}
			push.Prices = append(push.Prices, channels.DatePrice{
				Date:  date.Format(dateLayout),
				Price: res.Price,
			})
		}

		if err := adapter.PushRates(ctx, push); err != nil {
			o.markRateSync(ctx, cfg, "error", err.Error())
			return false, err
		}
		o.markRateSync(ctx, cfg, "success", "")
	}
	return true, nil
}

func (o *Orchestrator) pushAvailability(ctx context.Context, adapter channels.Adapter, scope Scope, ch *models.Channel) (bool, error) {
	configs, codes, err := o.roomTypes(ctx, scope, ch)
	if err != nil {
		return false, err
	}
	if len(codes) == 0 {
		return false, nil
	}

	for _, code := range codes {
		cfg := configs[code]
		push := channels.AvailabilityPush{
			HotelCode:    ch.Credentials.HotelCode,
			RoomTypeCode: code,
		}
		for date := scope.Start; date.Before(scope.End); date = date.AddDate(0, 0, 1) {
			free, err := o.db.AvailableRoomCount(ctx, scope.HotelID, date, date.AddDate(0, 0, 1))
			if err != nil {
				return false, err
			}
			entry := channels.DateAvailability{Date: date.Format(dateLayout), Available: free}
			if stopSellOn(cfg.RateCalendar, date) {
				entry.Available = 0
				entry.StopSell = true
			}
			push.Dates = append(push.Dates, entry)
		}
		if err := adapter.PushAvailability(ctx, push); err != nil {
			return false, err
		}
	}
	return true, nil
}

// stopSellOn reports a per-date stop-sell override from the rate calendar.
func stopSellOn(calendar []models.RateCalendarEntry, date time.Time) bool {
	for _, entry := range calendar {
		if entry.Restrictions != nil && sameDay(entry.Date, date) {
			return entry.Restrictions.StopSell
		}
	}
	return false
}

func sameDay(a, b time.Time) bool {
	return a.Truncate(24 * time.Hour).Equal(b.Truncate(24 * time.Hour))
}

func (o *Orchestrator) markRateSync(ctx context.Context, cfg *models.RateConfiguration, status, message string) {
	if cfg.ID == 0 {
		return
	}
	mark := models.SyncMark{Status: status, Message: message, At: time.Now()}
	if err := o.db.UpdateRateLastSync(ctx, cfg.ID, mark); err != nil {
		o.logger.Error().Err(err).Int64("rate_config_id", cfg.ID).Msg("failed to mark rate sync")
	}
}

func (o *Orchestrator) recordSuccess(ctx context.Context, feature string, ch *models.Channel) {
	o.resetStreak(ch.ID, feature)
	metrics.IncChannelSync(ch.Name, feature, "success")
	o.appendLog(ctx, ch, feature, "success", "")
	now := time.Now()
	if err := o.db.UpdateChannelLastSync(ctx, ch.ID, feature, now); err != nil {
		o.logger.Error().Err(err).Str("channel", ch.Name).Msg("failed to stamp last sync")
	}
	o.logger.Info().Str("channel", ch.Name).Str("feature", feature).Msg("channel sync ok")
}

func (o *Orchestrator) recordSkip(ctx context.Context, feature string, ch *models.Channel) {
	o.resetStreak(ch.ID, feature)
	o.appendLog(ctx, ch, feature, "skipped", "stop-sell restriction")
	o.logger.Info().Str("channel", ch.Name).Str("feature", feature).Msg("channel skipped: stop-sell")
}

func (o *Orchestrator) recordFailure(ctx context.Context, feature string, ch *models.Channel, cause error) {
	metrics.IncChannelSync(ch.Name, feature, "error")
	o.appendLog(ctx, ch, feature, "error", cause.Error())
	o.logger.Error().Err(cause).Str("channel", ch.Name).Str("feature", feature).Msg("channel sync failed")

	o.mu.Lock()
	key := streakKey(ch.ID, feature)
	o.failures[key]++
	streak := o.failures[key]
	o.mu.Unlock()

	if streak == o.threshold {
		o.notifier.SyncFailure(ch.Name, feature, streak, cause)
	}
}

func (o *Orchestrator) resetStreak(channelID int64, feature string) {
	o.mu.Lock()
	delete(o.failures, streakKey(channelID, feature))
	o.mu.Unlock()
}

func streakKey(channelID int64, feature string) string {
	return fmt.Sprintf("%d|%s", channelID, feature)
}

func (o *Orchestrator) appendLog(ctx context.Context, ch *models.Channel, feature, status, message string) {
	log := &models.SyncLog{ChannelID: ch.ID, Feature: feature, Status: status, Message: message}
	if err := o.db.AppendSyncLog(ctx, log); err != nil {
		o.logger.Error().Err(err).Str("channel", ch.Name).Msg("failed to append sync log")
	}
}
