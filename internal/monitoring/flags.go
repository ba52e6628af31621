// Package monitoring - flags.go flags operational anomalies.
//
// DESIGN: Flagger logs notable conditions at appropriate levels:
//   - FlagTailStalled:    Warn when the tailer has read nothing for too long
//   - FlagSinkFailing:    Warn when webhook deliveries fail consecutively
//   - FlagParseNoise:     Warn when malformed lines dominate recent input
//   - FlagTruncation:     Info when the watched file shrinks under the cursor
//
// Flags never interrupt the pipeline; they only surface problems an operator
// should look at. Each flag self-limits so a sustained condition does not
// flood the log.
package monitoring

import (
	"time"
)

// Flagger flags operational anomalies.
type Flagger struct {
	logger *Logger
	config FlagConfig

	lastStallFlag time.Time
	lastNoiseFlag time.Time
}

// NewFlagger creates a new anomaly flagger, filling unset thresholds with
// defaults.
func NewFlagger(logger *Logger, cfg FlagConfig) *Flagger {
	if cfg.TailStallThreshold == 0 {
		cfg.TailStallThreshold = 60 * time.Second
	}
	if cfg.SinkFailureStreak == 0 {
		cfg.SinkFailureStreak = 3
	}
	if cfg.ParseNoiseRatio == 0 {
		cfg.ParseNoiseRatio = 0.5
	}
	return &Flagger{logger: logger, config: cfg}
}

// FlagTailStalled logs when no line arrived for longer than the stall
// threshold. At most one flag per threshold interval.
func (f *Flagger) FlagTailStalled(path string, idle time.Duration) {
	if idle < f.config.TailStallThreshold {
		return
	}
	if time.Since(f.lastStallFlag) < f.config.TailStallThreshold {
		return
	}
	f.lastStallFlag = time.Now()
	f.logger.Warn().
		Str("path", path).
		Dur("idle", idle).
		Msg("tail_stalled")
}

// FlagSinkFailing logs when consecutive webhook deliveries fail.
func (f *Flagger) FlagSinkFailing(streak int, lastErr error) {
	if streak < f.config.SinkFailureStreak {
		return
	}
	f.logger.Warn().
		Int("streak", streak).
		Err(lastErr).
		Msg("sink_failing")
}

// FlagParseNoise logs when the malformed share of recent lines exceeds the
// configured ratio. At most one flag per minute.
func (f *Flagger) FlagParseNoise(malformed, total int64) {
	if total == 0 {
		return
	}
	ratio := float64(malformed) / float64(total)
	if ratio < f.config.ParseNoiseRatio {
		return
	}
	if time.Since(f.lastNoiseFlag) < time.Minute {
		return
	}
	f.lastNoiseFlag = time.Now()
	f.logger.Warn().
		Int64("malformed", malformed).
		Int64("total", total).
		Float64("ratio", ratio).
		Msg("parse_noise")
}

// FlagTruncation logs a detected truncation of the watched file.
func (f *Flagger) FlagTruncation(path string, oldOffset, newSize int64) {
	f.logger.Info().
		Str("path", path).
		Int64("old_offset", oldOffset).
		Int64("new_size", newSize).
		Msg("file_truncated")
}
