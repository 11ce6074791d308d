package sync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"ratesync/internal/channels"
	"ratesync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingAdapter struct {
	fakeAdapter
	pushes  atomic.Int64
	release chan struct{} // when set, pushes block until closed
}

func (c *countingAdapter) PushAvailability(ctx context.Context, push channels.AvailabilityPush) error {
	c.pushes.Add(1)
	if c.release != nil {
		select {
		case <-c.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func TestSchedulerRunsEnabledFeatures(t *testing.T) {
	adapter := &countingAdapter{}
	o, db := newTestOrchestrator(t, map[string]*fakeAdapter{"booking.com": {name: "booking.com"}}, &fakeNotifier{})
	o.SetAdapterFactory(func(ch *models.Channel) channels.Adapter { return adapter })

	ctx := context.Background()
	ch, err := db.GetChannelByName(ctx, "h1", "booking.com")
	require.NoError(t, err)
	ch.Settings = models.SyncSettings{AvailabilityInterval: 1}
	require.NoError(t, db.UpsertChannel(ctx, ch))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := o.logger
	s := NewScheduler(o, db, 2, logger)
	require.NoError(t, s.Start(runCtx))

	assert.Eventually(t, func() bool {
		return adapter.pushes.Load() >= 2
	}, 5*time.Second, 50*time.Millisecond)
}

func TestSchedulerSkipsOverlappingTicks(t *testing.T) {
	release := make(chan struct{})
	adapter := &countingAdapter{release: release}
	o, db := newTestOrchestrator(t, map[string]*fakeAdapter{"booking.com": {name: "booking.com"}}, &fakeNotifier{})
	o.SetAdapterFactory(func(ch *models.Channel) channels.Adapter { return adapter })
	o.timeout = 10 * time.Second

	ctx := context.Background()
	ch, err := db.GetChannelByName(ctx, "h1", "booking.com")
	require.NoError(t, err)
	ch.Settings = models.SyncSettings{AvailabilityInterval: 1}
	require.NoError(t, db.UpsertChannel(ctx, ch))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := NewScheduler(o, db, 2, o.logger)
	require.NoError(t, s.Start(runCtx))

	// The first tick blocks in the adapter; later ticks must be skipped, so
	// the push count stays at one.
	assert.Eventually(t, func() bool {
		return adapter.pushes.Load() == 1
	}, 5*time.Second, 50*time.Millisecond)
	time.Sleep(2500 * time.Millisecond)
	assert.Equal(t, int64(1), adapter.pushes.Load())

	close(release)
}
