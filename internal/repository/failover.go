package repository

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// FailoverDeliveryCache prefers the shared redis cache and degrades to the
// in-process one when redis misbehaves, retrying the primary after a minute.
type FailoverDeliveryCache struct {
	primary   DeliveryCache
	fallback  DeliveryCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64 // unix nanos of the last failed primary call
}

func NewFailoverDeliveryCache(primary, fallback DeliveryCache, logger *zerolog.Logger) *FailoverDeliveryCache {
	return &FailoverDeliveryCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (c *FailoverDeliveryCache) Seen(ctx context.Context, channelID int64, otaBookingID string) (bool, error) {
	if c.tryPrimary() {
		seen, err := c.primary.Seen(ctx, channelID, otaBookingID)
		if err == nil {
			c.isDown.Store(false)
			return seen, nil
		}
		c.markDown(err)
	}
	return c.fallback.Seen(ctx, channelID, otaBookingID)
}

func (c *FailoverDeliveryCache) MarkSeen(ctx context.Context, channelID int64, otaBookingID string) error {
	if c.tryPrimary() {
		err := c.primary.MarkSeen(ctx, channelID, otaBookingID)
		if err == nil {
			c.isDown.Store(false)
			return nil
		}
		c.markDown(err)
	}
	return c.fallback.MarkSeen(ctx, channelID, otaBookingID)
}

func (c *FailoverDeliveryCache) tryPrimary() bool {
	if !c.isDown.Load() {
		return true
	}
	// Probe the primary again after a minute of quarantine.
	return time.Since(time.Unix(0, c.lastCheck.Load())) > time.Minute
}

func (c *FailoverDeliveryCache) markDown(err error) {
	c.logger.Error().Err(err).Msg("delivery cache primary failed, falling back to memory")
	c.isDown.Store(true)
	c.lastCheck.Store(time.Now().UnixNano())
}
