// Package humanize provides human-like timing for browser interaction.
package humanize

import (
	"context"
	"math/rand"
	"time"
)

// TimingConfig contains configuration for humanized timing behavior.
type TimingConfig struct {
	// Poll interval range (milliseconds)
	PollIntervalMinMs int
	PollIntervalMaxMs int

	// Pre-action delays (milliseconds)
	PreActionDelayMinMs int
	PreActionDelayMaxMs int

	// Post-action delays (milliseconds)
	PostActionDelayMinMs int
	PostActionDelayMaxMs int
}

// DefaultTimingConfig returns sensible defaults for human-like timing.
func DefaultTimingConfig() TimingConfig {
	return TimingConfig{
		PollIntervalMinMs:    500,
		PollIntervalMaxMs:    1500,
		PreActionDelayMinMs:  100,
		PreActionDelayMaxMs:  400,
		PostActionDelayMinMs: 150,
		PostActionDelayMaxMs: 500,
	}
}

// Timing provides humanized timing utilities.
type Timing struct {
	config TimingConfig
}

// NewTiming creates a new timing utility with default config.
func NewTiming() *Timing {
	return &Timing{
		config: DefaultTimingConfig(),
	}
}

// NewTimingWithConfig creates a new timing utility with custom config.
func NewTimingWithConfig(config TimingConfig) *Timing {
	return &Timing{
		config: config,
	}
}

// RandomPollInterval returns a random duration between the configured poll
// bounds. Replaces a fixed poll interval in the solve loop.
func (t *Timing) RandomPollInterval() time.Duration {
	return RandomDuration(t.config.PollIntervalMinMs, t.config.PollIntervalMaxMs)
}

// PreActionDelay returns a random delay to use before performing an action.
// Simulates the natural pause before a human takes action.
func (t *Timing) PreActionDelay() time.Duration {
	return RandomDuration(t.config.PreActionDelayMinMs, t.config.PreActionDelayMaxMs)
}

// PostActionDelay returns a random delay to use after performing an action.
// Simulates the natural dwell time after a human completes an action.
func (t *Timing) PostActionDelay() time.Duration {
	return RandomDuration(t.config.PostActionDelayMinMs, t.config.PostActionDelayMaxMs)
}

// RandomDuration returns a random duration between min and max milliseconds.
func RandomDuration(minMs, maxMs int) time.Duration {
	if maxMs <= minMs {
		return time.Duration(minMs) * time.Millisecond
	}
	ms := minMs + rand.Intn(maxMs-minMs+1)
	return time.Duration(ms) * time.Millisecond
}

// RandomPollInterval returns a random poll interval between 0.5s and 1.5s.
func RandomPollInterval() time.Duration {
	return RandomDuration(500, 1500)
}

// sleepWithContext sleeps for the specified duration or until context is
// canceled. Returns true if the sleep completed normally. Uses
// time.NewTimer instead of time.After to prevent timer leak.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// SleepWithContext sleeps for the specified duration or until context is
// canceled. Returns true if the sleep completed normally.
func SleepWithContext(ctx context.Context, d time.Duration) bool {
	return sleepWithContext(ctx, d)
}

// SleepWithJitter sleeps for the given duration plus/minus a random jitter.
// jitterPercent is the maximum jitter as a percentage (0.0 to 1.0).
// For example, SleepWithJitter(ctx, 1*time.Second, 0.2) sleeps for 0.8s-1.2s.
func SleepWithJitter(ctx context.Context, base time.Duration, jitterPercent float64) bool {
	if jitterPercent < 0 {
		jitterPercent = 0
	}
	if jitterPercent > 1 {
		jitterPercent = 1
	}

	jitterRange := float64(base) * jitterPercent
	jitter := (rand.Float64()*2 - 1) * jitterRange

	duration := time.Duration(float64(base) + jitter)
	if duration < 0 {
		duration = 0
	}

	return sleepWithContext(ctx, duration)
}

// RandomWait waits for a random duration between min and max.
func RandomWait(ctx context.Context, minMs, maxMs int) bool {
	return sleepWithContext(ctx, RandomDuration(minMs, maxMs))
}

// HumanDelay returns a human-like delay based on the action type.
// Action types: "click", "navigate"
func HumanDelay(action string) time.Duration {
	switch action {
	case "click":
		return RandomDuration(100, 300)
	case "navigate":
		return RandomDuration(500, 1000)
	default:
		return RandomDuration(100, 300)
	}
}
