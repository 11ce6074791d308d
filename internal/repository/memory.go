package repository

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DeliveryCache is the fast-path dedupe for inbound OTA deliveries. The sqlite
// UNIQUE constraint stays authoritative; the cache only short-circuits the
// common redelivery case.
type DeliveryCache interface {
	Seen(ctx context.Context, channelID int64, otaBookingID string) (bool, error)
	MarkSeen(ctx context.Context, channelID int64, otaBookingID string) error
}

func deliveryKey(channelID int64, otaBookingID string) string {
	return fmt.Sprintf("delivery:%d:%s", channelID, otaBookingID)
}

// MemoryDeliveryCache is the in-process fallback when redis is unavailable.
type MemoryDeliveryCache struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	ttl     time.Duration
}

func NewMemoryDeliveryCache(ttl time.Duration) *MemoryDeliveryCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryDeliveryCache{
		entries: make(map[string]time.Time),
		ttl:     ttl,
	}
}

func (c *MemoryDeliveryCache) Seen(ctx context.Context, channelID int64, otaBookingID string) (bool, error) {
	key := deliveryKey(channelID, otaBookingID)
	c.mu.RLock()
	expires, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if time.Now().After(expires) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (c *MemoryDeliveryCache) MarkSeen(ctx context.Context, channelID int64, otaBookingID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[deliveryKey(channelID, otaBookingID)] = time.Now().Add(c.ttl)

	// Opportunistic sweep so the map does not grow without bound.
	if len(c.entries) > 10000 {
		now := time.Now()
		for k, exp := range c.entries {
			if now.After(exp) {
				delete(c.entries, k)
			}
		}
	}
	return nil
}
