package pacing

import (
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixed(v float64) func() float64 {
	return func() float64 { return v }
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func TestDelayZeroWordsIsMinimum(t *testing.T) {
	cfg := DefaultConfig()
	for _, r := range []float64{0, 0.5, 0.999} {
		c := New(cfg, fixed(r))
		require.Equal(t, cfg.MinDelay, c.Delay("", 0))
		require.Equal(t, cfg.MinDelay, c.Delay("   ", cfg.MinDelay))
	}
}

func TestDelayLongTextIsMaximum(t *testing.T) {
	cfg := DefaultConfig()
	c := New(cfg, fixed(0))
	require.Equal(t, cfg.MaxDelay, c.Delay(words(200), 0))
	require.Equal(t, cfg.MaxDelay, c.Delay(words(200), cfg.MinDelay))
	require.Equal(t, cfg.MaxDelay, c.Delay(words(5000), cfg.MaxDelay))
}

func TestDelayEstimatesSpeech(t *testing.T) {
	cfg := DefaultConfig()
	c := New(cfg, fixed(0.5))
	// 20 words at 2.5 w/s = 8s, +1.5s buffer, +0.5s jitter.
	require.Equal(t, 10*time.Second, c.Delay(words(20), 0))
}

func TestDelaySmoothsAgainstPrevious(t *testing.T) {
	cfg := DefaultConfig()
	c := New(cfg, fixed(0))
	// Fresh estimate 9.5s (20 words + buffer), previous 20s.
	got := c.Delay(words(20), 20*time.Second)
	want := time.Duration(0.65*float64(9500*time.Millisecond) + 0.35*float64(20*time.Second))
	require.InDelta(t, float64(want), float64(got), float64(time.Microsecond))
}

func TestDelayAlwaysWithinBounds(t *testing.T) {
	cfg := DefaultConfig()
	rng := rand.New(rand.NewPCG(1, 2))
	c := New(cfg, rng.Float64)
	previous := time.Duration(0)
	for i := 0; i < 2000; i++ {
		d := c.Delay(words(rng.IntN(400)), previous)
		require.GreaterOrEqual(t, d, cfg.MinDelay)
		require.LessOrEqual(t, d, cfg.MaxDelay)
		previous = d
	}
}

func TestWordCount(t *testing.T) {
	require.Equal(t, 0, WordCount(""))
	require.Equal(t, 3, WordCount("  a\tb\nc "))
}
