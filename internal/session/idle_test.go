package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/timax-console/internal/activity"
	"github.com/wolfeidau/timax-console/internal/broadcast"
	"github.com/wolfeidau/timax-console/internal/clock"
)

func TestInactivityMonitor(t *testing.T) {
	newMonitor := func() (*InactivityMonitor, *clock.Fake, *activity.Hub, *[]uint64) {
		clk := clock.NewFake(testStart)
		hub := activity.NewHub(clk.Now)
		var fired []uint64
		m := NewInactivityMonitor(clk, hub, 30*time.Minute, time.Second, func(gen uint64) {
			fired = append(fired, gen)
		})
		return m, clk, hub, &fired
	}

	t.Run("fires once after the timeout", func(t *testing.T) {
		m, clk, _, fired := newMonitor()
		m.Start(7)

		clk.Advance(29 * time.Minute)
		assert.Empty(t, *fired)

		clk.Advance(time.Minute)
		assert.Equal(t, []uint64{7}, *fired)
		assert.False(t, m.Armed())
	})

	t.Run("activity pushes the deadline back", func(t *testing.T) {
		m, clk, hub, fired := newMonitor()
		m.Start(1)

		clk.Advance(29 * time.Minute)
		require.True(t, hub.Report(activity.KindPointerMove))

		clk.Advance(2 * time.Minute)
		assert.Empty(t, *fired)
		assert.Equal(t, 28*time.Minute, m.Remaining())

		clk.Advance(28 * time.Minute)
		assert.Equal(t, []uint64{1}, *fired)
	})

	t.Run("bursts inside the debounce window still count", func(t *testing.T) {
		m, clk, hub, fired := newMonitor()
		m.Start(1)

		clk.Advance(29 * time.Minute)
		hub.Report(activity.KindKeyPress)
		clk.Advance(500 * time.Millisecond)
		hub.Report(activity.KindKeyPress)
		assert.Equal(t, testStart.Add(29*time.Minute+500*time.Millisecond), m.LastActivity())

		clk.Advance(30*time.Minute - time.Millisecond)
		assert.Empty(t, *fired, "timer re-arms for the remainder after the last signal")

		clk.Advance(time.Millisecond)
		assert.Equal(t, []uint64{1}, *fired)
	})

	t.Run("unrecognised signals are ignored", func(t *testing.T) {
		m, clk, hub, fired := newMonitor()
		m.Start(1)

		clk.Advance(29 * time.Minute)
		assert.False(t, hub.Report(activity.KindUnknown))

		clk.Advance(time.Minute)
		assert.Equal(t, []uint64{1}, *fired)
	})

	t.Run("stop unsubscribes and cancels", func(t *testing.T) {
		m, clk, hub, fired := newMonitor()
		m.Start(1)
		require.Equal(t, 1, hub.Len())

		m.Stop()
		assert.Zero(t, hub.Len())
		assert.Zero(t, clk.Pending())
		assert.Zero(t, m.Remaining())

		hub.Report(activity.KindClick)
		clk.Advance(time.Hour)
		assert.Empty(t, *fired)
	})

	t.Run("restart replaces the previous subscription", func(t *testing.T) {
		m, clk, hub, fired := newMonitor()
		m.Start(1)
		m.Start(2)

		assert.Equal(t, 1, hub.Len())
		assert.Equal(t, 1, clk.Pending())

		clk.Advance(30 * time.Minute)
		assert.Equal(t, []uint64{2}, *fired)
	})
}

func TestStore_IdleLogout(t *testing.T) {
	ctx := context.Background()

	t.Run("activity at 29 minutes keeps the session until exactly 59", func(t *testing.T) {
		h := newHarness(DefaultConfig())
		_, err := h.store.Login(ctx, testCreds)
		require.NoError(t, err)

		var reasons []broadcast.Reason
		h.broadcaster.Subscribe(func(_ context.Context, evt broadcast.Event) {
			reasons = append(reasons, evt.Reason)
		})

		h.clock.Advance(29 * time.Minute)
		h.hub.Report(activity.KindClick)

		h.clock.Advance(2 * time.Minute)
		assert.True(t, h.store.IsAuthenticated(), "31m")

		h.clock.Advance(27*time.Minute + 59*time.Second)
		assert.True(t, h.store.IsAuthenticated(), "58m59s")
		assert.Empty(t, reasons)

		h.clock.Advance(time.Second)
		assert.False(t, h.store.IsAuthenticated(), "59m")
		assert.Nil(t, h.storedPair())
		assert.Zero(t, h.clock.Pending())
		assert.Equal(t, []broadcast.Reason{broadcast.ReasonInactivity}, reasons)

		_, _, logouts := h.backend.counts()
		assert.Equal(t, 1, logouts, "inactivity logout notifies the backend")
	})

	t.Run("idle remaining tracks activity", func(t *testing.T) {
		h := newHarness(DefaultConfig())
		_, err := h.store.Login(ctx, testCreds)
		require.NoError(t, err)

		h.clock.Advance(10 * time.Minute)
		assert.Equal(t, 20*time.Minute, h.store.IdleRemaining())

		h.hub.Report(activity.KindScroll)
		assert.Equal(t, 30*time.Minute, h.store.IdleRemaining())
	})
}
