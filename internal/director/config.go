package director

import (
	"time"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/pacing"
)

// Config holds the director's tuning constants. Zero fields fall back
// to DefaultConfig.
type Config struct {
	// Global pause
	PauseDuration time.Duration `yaml:"pause_duration"`
	PauseBuffer   time.Duration `yaml:"pause_buffer"`

	// Credential backoff: min(RetryBase*RetryFactor^attempt, RetryMax)
	// plus up to RetryJitter.
	MaxRetries  int           `yaml:"max_retries"`
	RetryBase   time.Duration `yaml:"retry_base"`
	RetryFactor float64       `yaml:"retry_factor"`
	RetryMax    time.Duration `yaml:"retry_max"`
	RetryJitter time.Duration `yaml:"retry_jitter"`

	// Cooldown reported for a rate-limited key, grown by 25% per
	// attempt plus up to RateLimitJitter.
	RateLimitCooldown time.Duration `yaml:"rate_limit_cooldown"`
	RateLimitJitter   time.Duration `yaml:"rate_limit_jitter"`

	// Completion
	ContextMessages   int           `yaml:"context_messages"`
	MaxTokens         int           `yaml:"max_tokens"`
	CompletionTimeout time.Duration `yaml:"completion_timeout"`

	// Scheduling
	OpeningDelay      time.Duration `yaml:"opening_delay"`
	ErrorHandoffDelay time.Duration `yaml:"error_handoff_delay"`
	EndGrace          time.Duration `yaml:"end_grace"`
	ResumeStaggerBase time.Duration `yaml:"resume_stagger_base"`
	ResumeStaggerStep time.Duration `yaml:"resume_stagger_step"`

	// Watchdog
	StuckThreshold   time.Duration `yaml:"stuck_threshold"`
	WatchdogInterval time.Duration `yaml:"watchdog_interval"`

	// EndCues are matched case-insensitively against every agent line.
	EndCues []string `yaml:"end_cues"`

	Pacing pacing.Config `yaml:"pacing"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PauseDuration:     60 * time.Second,
		PauseBuffer:       2 * time.Second,
		MaxRetries:        5,
		RetryBase:         2 * time.Second,
		RetryFactor:       2,
		RetryMax:          30 * time.Second,
		RetryJitter:       time.Second,
		RateLimitCooldown: 60 * time.Second,
		RateLimitJitter:   5 * time.Second,
		ContextMessages:   10,
		MaxTokens:         200,
		CompletionTimeout: 30 * time.Second,
		OpeningDelay:      time.Second,
		ErrorHandoffDelay: 3 * time.Second,
		EndGrace:          5 * time.Second,
		ResumeStaggerBase: time.Second,
		ResumeStaggerStep: 1500 * time.Millisecond,
		StuckThreshold:    25 * time.Second,
		WatchdogInterval:  5 * time.Second,
		EndCues: []string{
			"goodbye",
			"good bye",
			"farewell",
			"see you later",
			"see you around",
			"talk to you later",
			"catch you later",
			"gotta go",
			"until next time",
		},
		Pacing: pacing.DefaultConfig(),
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	durations := []struct {
		v   *time.Duration
		def time.Duration
	}{
		{&c.PauseDuration, def.PauseDuration},
		{&c.PauseBuffer, def.PauseBuffer},
		{&c.RetryBase, def.RetryBase},
		{&c.RetryMax, def.RetryMax},
		{&c.RateLimitCooldown, def.RateLimitCooldown},
		{&c.CompletionTimeout, def.CompletionTimeout},
		{&c.ErrorHandoffDelay, def.ErrorHandoffDelay},
		{&c.EndGrace, def.EndGrace},
		{&c.ResumeStaggerStep, def.ResumeStaggerStep},
		{&c.StuckThreshold, def.StuckThreshold},
		{&c.WatchdogInterval, def.WatchdogInterval},
	}
	for _, d := range durations {
		if *d.v <= 0 {
			*d.v = d.def
		}
	}
	// Jitters, OpeningDelay and ResumeStaggerBase may legitimately be
	// zero; only negative values are reset.
	for _, d := range []*time.Duration{&c.RetryJitter, &c.RateLimitJitter, &c.OpeningDelay, &c.ResumeStaggerBase} {
		if *d < 0 {
			*d = 0
		}
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = def.MaxRetries
	case c.MaxRetries < 0: // disables credential retries
		c.MaxRetries = 0
	}
	if c.RetryFactor < 1 {
		c.RetryFactor = def.RetryFactor
	}
	if c.ContextMessages <= 0 {
		c.ContextMessages = def.ContextMessages
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = def.MaxTokens
	}
	if c.EndCues == nil {
		c.EndCues = def.EndCues
	}
	if c.Pacing.MinDelay <= 0 || c.Pacing.MaxDelay < c.Pacing.MinDelay {
		c.Pacing = def.Pacing
	}
	return c
}
