package pause

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/clock"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestPauseStartsOnceAndExpires(t *testing.T) {
	c := clock.Fake(epoch)
	p := New(c)
	resumed := 0
	p.SetResumeHandler(func() { resumed++ })

	until, started := p.Pause(time.Minute, "keys exhausted")
	require.True(t, started)
	require.Equal(t, epoch.Add(time.Minute), until)

	_, started = p.Pause(30*time.Second, "again")
	require.False(t, started)

	active, remaining := p.Active()
	require.True(t, active)
	require.Equal(t, time.Minute, remaining)

	c.Advance(59 * time.Second)
	active, remaining = p.Active()
	require.True(t, active)
	require.Equal(t, time.Second, remaining)
	require.Zero(t, resumed)

	c.Advance(time.Second)
	active, _ = p.Active()
	require.False(t, active)
	require.Equal(t, 1, resumed)
}

func TestPauseExtendsWithLaterDeadline(t *testing.T) {
	c := clock.Fake(epoch)
	p := New(c)
	resumed := 0
	p.SetResumeHandler(func() { resumed++ })

	p.Pause(10*time.Second, "a")
	until, started := p.Pause(time.Minute, "b")
	require.False(t, started)
	require.Equal(t, epoch.Add(time.Minute), until)
	require.Equal(t, "b", p.State().Reason)

	c.Advance(10 * time.Second)
	require.Zero(t, resumed, "the superseded deadline must not resume")
	c.Advance(50 * time.Second)
	require.Equal(t, 1, resumed)
}

func TestResumeEarly(t *testing.T) {
	c := clock.Fake(epoch)
	p := New(c)
	resumed := 0
	p.SetResumeHandler(func() { resumed++ })

	require.False(t, p.Resume())
	p.Pause(time.Minute, "x")
	require.True(t, p.Resume())
	require.Equal(t, 1, resumed)

	c.Advance(2 * time.Minute)
	require.Equal(t, 1, resumed)
	require.False(t, p.State().Paused)
}

func TestRemaining(t *testing.T) {
	s := State{Paused: true, Until: epoch.Add(5 * time.Second)}
	require.Equal(t, 5*time.Second, s.Remaining(epoch))
	require.Zero(t, s.Remaining(epoch.Add(time.Hour)))
	require.Zero(t, State{}.Remaining(epoch))
}
