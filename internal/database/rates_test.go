package database

import (
	"context"
	"testing"

	"ratesync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveRateConfigurationRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	cfg := &models.RateConfiguration{
		HotelID:  "h1",
		RoomType: "standard",
		Channel:  "booking.com",
		BaseRate: 100,
		Currency: "USD",
		DynamicPricing: models.DynamicPricing{
			Enabled: true,
			MinRate: 80,
			MaxRate: 150,
			Rules: []models.PricingRule{{
				Condition:  models.ConditionOccupancy,
				Operator:   models.OperatorGreaterThan,
				Value:      []float64{80},
				Adjustment: models.Adjustment{Type: models.AdjustPercentage, Value: 20},
			}},
		},
		Promotions: []models.Promotion{{Name: "summer"}},
	}
	require.NoError(t, db.SaveRateConfiguration(ctx, cfg))
	assert.NotZero(t, cfg.ID)
	assert.Equal(t, int64(1), cfg.Version)

	stored, err := db.GetRateConfiguration(ctx, "h1", "standard", "booking.com")
	require.NoError(t, err)
	assert.Equal(t, 100.0, stored.BaseRate)
	require.Len(t, stored.DynamicPricing.Rules, 1)
	assert.Equal(t, models.ConditionOccupancy, stored.DynamicPricing.Rules[0].Condition)
	assert.Equal(t, "summer", stored.Promotions[0].Name)

	// Upsert bumps the version.
	cfg.BaseRate = 110
	require.NoError(t, db.SaveRateConfiguration(ctx, cfg))
	assert.Equal(t, int64(2), cfg.Version)
}

func TestSaveRateConfigurationRejectsInvalidBounds(t *testing.T) {
	db := newTestDB(t)

	cfg := &models.RateConfiguration{
		HotelID:  "h1",
		RoomType: "standard",
		Channel:  "expedia",
		BaseRate: 100,
		DynamicPricing: models.DynamicPricing{
			Enabled: true,
			MinRate: 200,
			MaxRate: 100,
		},
	}
	err := db.SaveRateConfiguration(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrInvalidBounds)

	_, err = db.GetRateConfiguration(context.Background(), "h1", "standard", "expedia")
	assert.ErrorIs(t, err, ErrNotFound, "rejected write must leave no row")
}

func TestGetRateConfigurationsPerChannel(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, channel := range []string{"booking.com", "expedia", "airbnb"} {
		cfg := &models.RateConfiguration{
			HotelID:  "h1",
			RoomType: "suite",
			Channel:  channel,
			BaseRate: 200,
		}
		require.NoError(t, db.SaveRateConfiguration(ctx, cfg))
	}

	configs, err := db.GetRateConfigurations(ctx, "h1", "suite")
	require.NoError(t, err)
	assert.Len(t, configs, 3)
}
