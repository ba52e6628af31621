// Package monitoring - events.go records watcher events to a JSONL journal.
//
// DESIGN: EventLog writes structured events as JSONL (one JSON object per line):
//   - AlertEntry:  every alert the engine emits, whether or not delivery succeeds
//   - ReopenEntry: every tailer reopen (rotation, truncation, recreation)
//
// Events are appended immediately after each event for real-time inspection.
// The journal is strictly diagnostic: a write failure is logged and dropped,
// and the watcher never reads it back.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// EventLog appends watcher events to a JSONL file.
type EventLog struct {
	config EventLogConfig
	mu     sync.Mutex
	count  int
}

// NewEventLog creates a new event journal. A config with Enabled=false (or an
// empty path) yields a no-op journal so callers never need a nil check.
func NewEventLog(cfg EventLogConfig) (*EventLog, error) {
	e := &EventLog{config: cfg}

	if !cfg.Enabled || cfg.Path == "" {
		e.config.Enabled = false
		return e, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
		return nil, err
	}
	// Create empty file if it doesn't exist
	if _, err := os.Stat(cfg.Path); os.IsNotExist(err) {
		if f, err := os.Create(cfg.Path); err == nil {
			f.Close()
		}
	}

	return e, nil
}

// Enabled reports whether the journal is writing.
func (e *EventLog) Enabled() bool { return e.config.Enabled }

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// RecordAlert journals an emitted alert.
func (e *EventLog) RecordAlert(entry AlertEntry) {
	if !e.config.Enabled {
		return
	}
	entry.Type = "alert"

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := appendJSONL(e.config.Path, entry); err != nil {
		log.Error().Err(err).Str("path", e.config.Path).Msg("events: failed to write alert entry")
	} else {
		e.count++
	}
}

// RecordReopen journals a tailer reopen.
func (e *EventLog) RecordReopen(entry ReopenEntry) {
	if !e.config.Enabled {
		return
	}
	entry.Type = "tail_reopen"

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := appendJSONL(e.config.Path, entry); err != nil {
		log.Error().Err(err).Str("path", e.config.Path).Msg("events: failed to write reopen entry")
	} else {
		e.count++
	}
}

// Close logs a session summary. The file handle is per-write, so there is
// nothing to release.
func (e *EventLog) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.config.Enabled && e.count > 0 {
		log.Info().
			Str("path", e.config.Path).
			Int("events", e.count).
			Msg("events: session complete")
	}

	return nil
}
