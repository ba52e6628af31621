// Package alert turns aggregate window state into gated alert events.
//
// DESIGN: The engine is a pure decision function over (state, record, now).
// The clock is always passed in, never read, so cooldown behavior is
// deterministic under test. Gate state is a small map from alert kind to
// last-fired time, touched only when an event is actually emitted.
//
// Maintenance mode suppresses evaluation entirely and leaves the gates
// alone: a condition that was cooling down before maintenance began is
// still cooling down after it ends, and a gate that expired naturally
// during maintenance can fire again immediately.
package alert

import (
	"time"

	"github.com/google/uuid"

	"github.com/whotterre/log-watcher/internal/accesslog"
	"github.com/whotterre/log-watcher/internal/monitoring"
	"github.com/whotterre/log-watcher/internal/window"
)

// Kind identifies an alert type.
type Kind string

const (
	KindFailover      Kind = "failover"
	KindHighErrorRate Kind = "high_error_rate"
)

// Event is one emitted alert occurrence.
type Event struct {
	ID        string           // unique per occurrence
	Kind      Kind             //
	At        time.Time        // evaluation time that fired the gate
	Pool      string           // pool serving traffic when the event fired
	PrevPool  string           // pool before the switch, failover only
	Release   string           // release identifier of the triggering record
	Rate      float64          // observed error rate percent, high_error_rate only
	Threshold float64          // configured threshold, high_error_rate only
	WindowLen int              // records the rate was computed over
	Record    accesslog.Record // the record that triggered the evaluation
	Line      string           // raw log line, quoted in the failover message
}

// Config holds the engine's decision inputs.
type Config struct {
	ErrorRateThreshold float64       // percent; rate must exceed this strictly
	Cooldown           time.Duration // minimum gap between events of one kind
	MaintenanceMode    bool          // true disables evaluation entirely
}

// Engine evaluates window state after each observed record.
type Engine struct {
	cfg       Config
	logger    *monitoring.Logger
	lastFired map[Kind]time.Time
}

// NewEngine creates an engine with all gates open ("never fired").
func NewEngine(cfg Config, logger *monitoring.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		logger:    logger,
		lastFired: make(map[Kind]time.Time),
	}
}

// Evaluate runs both alert checks against the state produced by the latest
// observation. Both checks are independent and may both emit for the same
// record. A sustained condition keeps re-emitting every cooldown period
// until it clears; there is no recovery event.
func (e *Engine) Evaluate(st window.State, rec accesslog.Record, line string, now time.Time) []Event {
	if e.cfg.MaintenanceMode {
		if st.Transition || st.ErrorRate > e.cfg.ErrorRateThreshold {
			e.logger.Debug().
				Bool("transition", st.Transition).
				Float64("error_rate", st.ErrorRate).
				Msg("maintenance mode on, suppressing alert evaluation")
		}
		return nil
	}

	var events []Event

	if st.Transition {
		if e.gateOpen(KindFailover, now) {
			events = append(events, Event{
				ID:       uuid.New().String(),
				Kind:     KindFailover,
				At:       now,
				Pool:     st.CurrentPool,
				PrevPool: st.PreviousPool,
				Release:  rec.Release,
				Record:   rec,
				Line:     line,
			})
			e.lastFired[KindFailover] = now
		} else {
			e.logger.Debug().
				Str("prev_pool", st.PreviousPool).
				Str("pool", st.CurrentPool).
				Msg("failover detected but in cooldown, skipping")
		}
	}

	if st.ErrorRate > e.cfg.ErrorRateThreshold {
		if e.gateOpen(KindHighErrorRate, now) {
			events = append(events, Event{
				ID:        uuid.New().String(),
				Kind:      KindHighErrorRate,
				At:        now,
				Pool:      st.CurrentPool,
				Rate:      st.ErrorRate,
				Threshold: e.cfg.ErrorRateThreshold,
				WindowLen: st.Len,
				Record:    rec,
				Line:      line,
			})
			e.lastFired[KindHighErrorRate] = now
		} else {
			e.logger.Debug().
				Float64("error_rate", st.ErrorRate).
				Float64("threshold", e.cfg.ErrorRateThreshold).
				Msg("error rate high but in cooldown, skipping")
		}
	}

	return events
}

// gateOpen reports whether an alert of the given kind may fire at now.
// A gate that never fired is open; otherwise the full cooldown must have
// elapsed since the last firing.
func (e *Engine) gateOpen(kind Kind, now time.Time) bool {
	last, ok := e.lastFired[kind]
	if !ok {
		return true
	}
	return now.Sub(last) >= e.cfg.Cooldown
}

// LastFired returns when the given kind last fired, if ever.
func (e *Engine) LastFired(kind Kind) (time.Time, bool) {
	t, ok := e.lastFired[kind]
	return t, ok
}

// Gates returns a copy of the per-kind last-fired map.
func (e *Engine) Gates() map[Kind]time.Time {
	out := make(map[Kind]time.Time, len(e.lastFired))
	for k, v := range e.lastFired {
		out[k] = v
	}
	return out
}
