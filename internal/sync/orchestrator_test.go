package sync

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ratesync/internal/channels"
	"ratesync/internal/config"
	"ratesync/internal/database"
	"ratesync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	name string
	err  error
	wait bool // block until the context is done

	mu           sync.Mutex
	rates        []channels.RatePush
	availability []channels.AvailabilityPush
	inventory    []channels.InventoryPush
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) do(ctx context.Context, record func()) error {
	if f.wait {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	record()
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) PushRates(ctx context.Context, push channels.RatePush) error {
	return f.do(ctx, func() { f.rates = append(f.rates, push) })
}

func (f *fakeAdapter) PushAvailability(ctx context.Context, push channels.AvailabilityPush) error {
	return f.do(ctx, func() { f.availability = append(f.availability, push) })
}

func (f *fakeAdapter) PushInventory(ctx context.Context, push channels.InventoryPush) error {
	return f.do(ctx, func() { f.inventory = append(f.inventory, push) })
}

func (f *fakeAdapter) Acknowledge(ctx context.Context, ack channels.BookingAck) error {
	return f.do(ctx, func() {})
}

type fakeNotifier struct {
	mu       sync.Mutex
	failures []string
}

func (f *fakeNotifier) SyncFailure(channelName, feature string, consecutive int, lastErr error) {
	f.mu.Lock()
	f.failures = append(f.failures, channelName)
	f.mu.Unlock()
}

func (f *fakeNotifier) IngestRejected(string, string, string) {}

func day(d int) time.Time {
	return time.Date(2024, 7, d, 0, 0, 0, 0, time.UTC)
}

func newTestOrchestrator(t *testing.T, adapters map[string]*fakeAdapter, notifier *fakeNotifier) (*Orchestrator, *database.DB) {
	t.Helper()
	logger := zerolog.New(zerolog.NewConsoleWriter())
	db, err := database.NewDB(filepath.Join(t.TempDir(), "sync.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.SetHotels([]models.Hotel{{ID: "h1", Name: "Test", Rooms: []string{"101", "102"}}})

	for name := range adapters {
		ch := &models.Channel{
			HotelID:  "h1",
			Name:     name,
			Active:   true,
			Endpoint: "https://" + name + ".example.com",
			Mappings: models.ChannelMappings{RoomTypes: map[string]string{"DBL": "standard"}},
		}
		require.NoError(t, db.UpsertChannel(context.Background(), ch))
	}

	cfg := config.SyncConfig{PushTimeoutSeconds: 1, FailureAlertThreshold: 3}
	o := NewOrchestrator(db, cfg, notifier, &logger)
	o.SetAdapterFactory(func(ch *models.Channel) channels.Adapter {
		return adapters[ch.Name]
	})
	return o, db
}

func TestSyncAllIsolatesChannelFailures(t *testing.T) {
	adapters := map[string]*fakeAdapter{
		"airbnb":      {name: "airbnb"},
		"booking.com": {name: "booking.com", err: errors.New("http 503")},
		"expedia":     {name: "expedia"},
	}
	o, db := newTestOrchestrator(t, adapters, &fakeNotifier{})
	ctx := context.Background()

	scope := Scope{HotelID: "h1", Start: day(1), End: day(3)}
	results, err := o.SyncAll(ctx, models.FeatureAvailability, scope)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byName := map[string]models.ChannelResult{}
	for _, r := range results {
		byName[r.ChannelName] = r
	}
	assert.True(t, byName["airbnb"].Success)
	assert.True(t, byName["expedia"].Success)
	assert.False(t, byName["booking.com"].Success)
	assert.Contains(t, byName["booking.com"].Message, "http 503")

	// Healthy channels still pushed both nights.
	require.Len(t, adapters["airbnb"].availability, 1)
	assert.Len(t, adapters["airbnb"].availability[0].Dates, 2)

	// Failure is logged; success stamps last_sync.
	ch, err := db.GetChannelByName(ctx, "h1", "expedia")
	require.NoError(t, err)
	_, stamped := ch.LastSync[models.FeatureAvailability]
	assert.True(t, stamped)

	failed, err := db.GetChannelByName(ctx, "h1", "booking.com")
	require.NoError(t, err)
	_, stamped = failed.LastSync[models.FeatureAvailability]
	assert.False(t, stamped)

	logs, err := db.GetRecentSyncLogs(ctx, failed.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "error", logs[0].Status)
}

func TestSyncAllSkipsStopSellChannel(t *testing.T) {
	adapters := map[string]*fakeAdapter{"booking.com": {name: "booking.com"}}
	o, db := newTestOrchestrator(t, adapters, &fakeNotifier{})
	ctx := context.Background()

	cfg := &models.RateConfiguration{
		HotelID:      "h1",
		RoomType:     "standard",
		Channel:      "booking.com",
		BaseRate:     100,
		Restrictions: models.Restrictions{StopSell: true},
	}
	require.NoError(t, db.SaveRateConfiguration(ctx, cfg))

	results, err := o.SyncAll(ctx, models.FeatureAvailability, Scope{HotelID: "h1", Start: day(1), End: day(2)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, "skipped: stop-sell", results[0].Message)
	assert.Empty(t, adapters["booking.com"].availability)
}

func TestSyncAllPushesResolvedPrices(t *testing.T) {
	adapters := map[string]*fakeAdapter{"booking.com": {name: "booking.com"}}
	o, db := newTestOrchestrator(t, adapters, &fakeNotifier{})
	ctx := context.Background()

	cfg := &models.RateConfiguration{
		HotelID:  "h1",
		RoomType: "standard",
		Channel:  "booking.com",
		BaseRate: 100,
		Currency: "USD",
		DynamicPricing: models.DynamicPricing{
			Enabled: true,
			Rules: []models.PricingRule{{
				Condition:  models.ConditionDayOfWeek,
				Operator:   models.OperatorEqualTo,
				Value:      []float64{1}, // Mondays
				Adjustment: models.Adjustment{Type: models.AdjustPercentage, Value: 10},
			}},
		},
	}
	require.NoError(t, db.SaveRateConfiguration(ctx, cfg))

	// 2024-07-01 is a Monday, 2024-07-02 is not.
	results, err := o.SyncAll(ctx, models.FeaturePrices, Scope{HotelID: "h1", Start: day(1), End: day(3)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Success, results[0].Message)

	require.Len(t, adapters["booking.com"].rates, 1)
	push := adapters["booking.com"].rates[0]
	assert.Equal(t, "DBL", push.RoomTypeCode)
	require.Len(t, push.Prices, 2)
	assert.Equal(t, 110.0, push.Prices[0].Price)
	assert.Equal(t, 100.0, push.Prices[1].Price)

	stored, err := db.GetRateConfiguration(ctx, "h1", "standard", "booking.com")
	require.NoError(t, err)
	require.NotNil(t, stored.LastSync)
	assert.Equal(t, "success", stored.LastSync.Status)
}

func TestRepeatedFailuresTriggerNotifier(t *testing.T) {
	adapters := map[string]*fakeAdapter{"expedia": {name: "expedia", err: errors.New("http 500")}}
	notifier := &fakeNotifier{}
	o, _ := newTestOrchestrator(t, adapters, notifier)
	ctx := context.Background()

	scope := Scope{HotelID: "h1", Start: day(1), End: day(2)}
	for i := 0; i < 5; i++ {
		_, err := o.SyncAll(ctx, models.FeatureInventory, scope)
		require.NoError(t, err)
	}

	// Alert fires once when the streak crosses the threshold, not per failure.
	assert.Equal(t, []string{"expedia"}, notifier.failures)
}

func TestSyncChannelTimesOut(t *testing.T) {
	adapters := map[string]*fakeAdapter{"booking.com": {name: "booking.com", wait: true}}
	o, db := newTestOrchestrator(t, adapters, &fakeNotifier{})
	ctx := context.Background()

	ch, err := db.GetChannelByName(ctx, "h1", "booking.com")
	require.NoError(t, err)

	start := time.Now()
	result, err := o.SyncChannel(ctx, models.FeatureInventory, Scope{HotelID: "h1", Start: day(1), End: day(2)}, ch.ID)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSyncChannelSkipsInactive(t *testing.T) {
	adapters := map[string]*fakeAdapter{"expedia": {name: "expedia"}}
	o, db := newTestOrchestrator(t, adapters, &fakeNotifier{})
	ctx := context.Background()

	ch, err := db.GetChannelByName(ctx, "h1", "expedia")
	require.NoError(t, err)
	require.NoError(t, db.DeactivateChannel(ctx, ch.ID))

	result, err := o.SyncChannel(ctx, models.FeaturePrices, Scope{HotelID: "h1", Start: day(1), End: day(2)}, ch.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "skipped: inactive", result.Message)
	assert.Empty(t, adapters["expedia"].rates)
}
