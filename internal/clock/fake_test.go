package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeAfterFuncFiresInDeadlineOrder(t *testing.T) {
	c := Fake(epoch)
	var order []string
	c.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	c.AfterFunc(time.Second, func() { order = append(order, "a") })
	c.AfterFunc(5*time.Second, func() { order = append(order, "c") })

	c.Advance(3 * time.Second)
	require.Equal(t, []string{"a", "b"}, order)
	require.Equal(t, 1, c.Pending())

	c.Advance(2 * time.Second)
	require.Equal(t, []string{"a", "b", "c"}, order)
	require.Equal(t, 0, c.Pending())
}

func TestFakeStopPreventsCallback(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	require.True(t, timer.Stop())
	require.False(t, timer.Stop())
	c.Advance(time.Minute)
	require.False(t, fired)
}

func TestFakeZeroDelayWaitsForAdvance(t *testing.T) {
	c := Fake(epoch)
	fired := false
	c.AfterFunc(0, func() { fired = true })
	require.False(t, fired)

	c.Advance(0)
	require.True(t, fired)
}

func TestFakeCallbackSchedulesFollowUp(t *testing.T) {
	c := Fake(epoch)
	count := 0
	var tick func()
	tick = func() {
		count++
		c.AfterFunc(time.Second, tick)
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(time.Second)
	require.Equal(t, 1, count)
	// Follow-ups at 2s, 3s and 4s all fall inside this advance.
	c.Advance(3 * time.Second)
	require.Equal(t, 4, count)

	next, ok := c.NextDeadline()
	require.True(t, ok)
	require.Equal(t, time.Second, next)
}

func TestFakeTickerDropsWhenFull(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(time.Second)
	defer ticker.Stop()

	c.Advance(time.Second)
	c.Advance(time.Second)
	<-ticker.C
	select {
	case <-ticker.C:
		t.Fatal("expected the second tick to be dropped")
	default:
	}
}

func TestNilTimerStop(t *testing.T) {
	var timer *Timer
	require.False(t, timer.Stop())
}

func TestFakeNowInsideCallbackIsDeadline(t *testing.T) {
	c := Fake(epoch)
	var seen []time.Time
	c.AfterFunc(2*time.Second, func() {
		seen = append(seen, c.Now())
		c.AfterFunc(3*time.Second, func() { seen = append(seen, c.Now()) })
	})

	c.Advance(10 * time.Second)
	require.Equal(t, []time.Time{epoch.Add(2 * time.Second), epoch.Add(5 * time.Second)}, seen)
	require.Equal(t, epoch.Add(10*time.Second), c.Now())
}
