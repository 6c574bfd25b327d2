package limiter

import "time"

// BackoffState tracks the limiter's calculation cadence: at most one
// calculation per BackoffMs, doubling after every tick that produces no
// limit change, resetting the moment the limit does change (§4.6 step 9).
type BackoffState struct {
	CurrentMs   int64
	lastCalc    time.Time
	initialized bool
}

// BackoffConfig holds the tunable bounds.
type BackoffConfig struct {
	DefaultMs int64 // 128
	MaxMs     int64 // 1024
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{DefaultMs: 128, MaxMs: 1024}
}

// Ready reports whether enough time has passed since the last calculation
// to run another one.
func (b *BackoffState) Ready(now time.Time, cfg BackoffConfig) bool {
	if !b.initialized {
		b.CurrentMs = cfg.DefaultMs
		b.initialized = true
		return true
	}
	return now.Sub(b.lastCalc) >= time.Duration(b.CurrentMs)*time.Millisecond
}

// RecordStable marks that a calculation ran but produced no limit change,
// doubling the backoff up to MaxMs.
func (b *BackoffState) RecordStable(now time.Time, cfg BackoffConfig) {
	b.lastCalc = now
	b.CurrentMs *= 2
	if b.CurrentMs > cfg.MaxMs {
		b.CurrentMs = cfg.MaxMs
	}
}

// RecordChange marks that a calculation ran and changed the limit,
// resetting the backoff to its default.
func (b *BackoffState) RecordChange(now time.Time, cfg BackoffConfig) {
	b.lastCalc = now
	b.CurrentMs = cfg.DefaultMs
}
