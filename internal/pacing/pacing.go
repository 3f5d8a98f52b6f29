// Package pacing converts spoken text into the pause before the next turn.
package pacing

import (
	"math/rand/v2"
	"strings"
	"time"
)

// Config holds the speech-timing constants.
type Config struct {
	WordsPerSecond   float64       `yaml:"words_per_second"`
	PostSpeechBuffer time.Duration `yaml:"post_speech_buffer"`
	Jitter           time.Duration `yaml:"jitter"`
	MinDelay         time.Duration `yaml:"min_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	// NewWeight is the share of the fresh estimate when smoothing
	// against the previous delay.
	NewWeight float64 `yaml:"new_weight"`
}

// DefaultConfig returns the tuned production constants.
func DefaultConfig() Config {
	return Config{
		WordsPerSecond:   2.5,
		PostSpeechBuffer: 1500 * time.Millisecond,
		Jitter:           time.Second,
		MinDelay:         4 * time.Second,
		MaxDelay:         20 * time.Second,
		NewWeight:        0.65,
	}
}

// Calculator is safe for concurrent use if its random source is.
type Calculator struct {
	cfg  Config
	rand func() float64
}

// New returns a Calculator. rnd must return values in [0, 1); nil uses
// math/rand/v2.
func New(cfg Config, rnd func() float64) *Calculator {
	if rnd == nil {
		rnd = rand.Float64
	}
	if cfg.WordsPerSecond <= 0 {
		cfg.WordsPerSecond = DefaultConfig().WordsPerSecond
	}
	if cfg.NewWeight <= 0 || cfg.NewWeight > 1 {
		cfg.NewWeight = DefaultConfig().NewWeight
	}
	return &Calculator{cfg: cfg, rand: rnd}
}

// WordCount counts whitespace separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Delay returns how long to wait before the next turn given the text
// just spoken and the previous delay (zero when there is none). The
// result always lies in [MinDelay, MaxDelay].
func (c *Calculator) Delay(text string, previous time.Duration) time.Duration {
	speech := time.Duration(float64(WordCount(text)) / c.cfg.WordsPerSecond * float64(time.Second))
	jitter := time.Duration(c.rand() * float64(c.cfg.Jitter))
	estimate := speech + c.cfg.PostSpeechBuffer + jitter

	if previous > 0 {
		estimate = time.Duration(c.cfg.NewWeight*float64(estimate) + (1-c.cfg.NewWeight)*float64(previous))
	}
	return c.clamp(estimate)
}

func (c *Calculator) clamp(d time.Duration) time.Duration {
	if d < c.cfg.MinDelay {
		return c.cfg.MinDelay
	}
	if d > c.cfg.MaxDelay {
		return c.cfg.MaxDelay
	}
	return d
}
