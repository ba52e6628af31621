// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by the watcher pipeline, the event journal,
// and the status surface. Defined here ONCE to avoid duplication and
// circular imports.
//
// TYPES:
//   - AlertEntry / ReopenEntry: journal records written as JSONL
//   - Config types:            EventLogConfig, LoggerConfig, FlagConfig
package monitoring

import "time"

// =============================================================================
// JOURNAL ENTRIES - Structured data for the JSONL event journal
// =============================================================================

// AlertEntry captures one emitted alert.
type AlertEntry struct {
	Type      string    `json:"type"` // always "alert"
	Timestamp time.Time `json:"timestamp"`
	AlertID   string    `json:"alert_id"`
	Kind      string    `json:"kind"` // failover | high_error_rate
	Pool      string    `json:"pool,omitempty"`
	PrevPool  string    `json:"prev_pool,omitempty"`
	Release   string    `json:"release,omitempty"`
	Rate      float64   `json:"rate,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	WindowLen int       `json:"window_len,omitempty"`
	Upstream  string    `json:"upstream,omitempty"`
	Status    int       `json:"status,omitempty"`
}

// ReopenEntry captures a tailer reopen (rotation, truncation, recreation).
type ReopenEntry struct {
	Type      string    `json:"type"` // always "tail_reopen"
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
	Reason    string    `json:"reason"` // rotated | truncated | recreated
	Offset    int64     `json:"offset"`
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// EventLogConfig contains event journal configuration.
type EventLogConfig struct {
	Enabled bool
	Path    string
}

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// FlagConfig contains thresholds for operational anomaly flags.
type FlagConfig struct {
	TailStallThreshold time.Duration // how long without a successful read before flagging
	SinkFailureStreak  int           // consecutive delivery failures before flagging
	ParseNoiseRatio    float64       // malformed share of recent lines before flagging
}
