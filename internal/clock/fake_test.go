package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	t.Run("fires due timers in deadline order", func(t *testing.T) {
		clk := NewFake(start)
		var fired []string

		clk.AfterFunc(2*time.Minute, func() { fired = append(fired, "second") })
		clk.AfterFunc(1*time.Minute, func() { fired = append(fired, "first") })
		clk.AfterFunc(10*time.Minute, func() { fired = append(fired, "late") })

		clk.Advance(5 * time.Minute)

		require.Equal(t, []string{"first", "second"}, fired)
		require.Equal(t, 1, clk.Pending())
		require.Equal(t, start.Add(5*time.Minute), clk.Now())
	})

	t.Run("now reflects the deadline inside callbacks", func(t *testing.T) {
		clk := NewFake(start)
		var seen time.Time

		clk.AfterFunc(3*time.Minute, func() { seen = clk.Now() })
		clk.Advance(time.Hour)

		require.Equal(t, start.Add(3*time.Minute), seen)
	})

	t.Run("timers armed by callbacks fire within the window", func(t *testing.T) {
		clk := NewFake(start)
		count := 0

		var rearm func()
		rearm = func() {
			count++
			clk.AfterFunc(10*time.Minute, rearm)
		}
		clk.AfterFunc(10*time.Minute, rearm)

		clk.Advance(35 * time.Minute)

		require.Equal(t, 3, count)
		require.Equal(t, 1, clk.Pending())
	})

	t.Run("stopped timers never fire", func(t *testing.T) {
		clk := NewFake(start)
		fired := false

		tm := clk.AfterFunc(time.Minute, func() { fired = true })
		require.True(t, tm.Stop())
		require.False(t, tm.Stop())

		clk.Advance(time.Hour)
		require.False(t, fired)
		require.Zero(t, clk.Pending())
	})
}
