// Package watcher wires the pipeline together: tail, parse, observe,
// evaluate, dispatch.
//
// DESIGN: One consumer goroutine processes lines strictly in arrival order,
// because failover detection compares consecutive records. Only delivery
// runs concurrently, behind the dispatcher's bounded queue. A mutex guards
// the window and the engine gates so the status surface can read them while
// ingestion continues.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/whotterre/log-watcher/internal/accesslog"
	"github.com/whotterre/log-watcher/internal/alert"
	"github.com/whotterre/log-watcher/internal/config"
	"github.com/whotterre/log-watcher/internal/monitoring"
	"github.com/whotterre/log-watcher/internal/notify"
	"github.com/whotterre/log-watcher/internal/tail"
	"github.com/whotterre/log-watcher/internal/window"
)

// shutdownGrace bounds how long queued alerts may delay process exit.
const shutdownGrace = 5 * time.Second

// maxLoggedLine keeps unparsable input from blowing up log records.
const maxLoggedLine = 200

// Watcher runs the full log-watching pipeline for one log file.
type Watcher struct {
	cfg     *config.Config
	logger  *monitoring.Logger
	metrics *monitoring.MetricsCollector
	flagger *monitoring.Flagger
	events  *monitoring.EventLog

	tailer     *tail.Tailer
	sink       *notify.Slack
	dispatcher *notify.Dispatcher

	mu     sync.Mutex // guards win and engine
	win    *window.Window
	engine *alert.Engine

	startedAt time.Time
}

// Snapshot is a point-in-time view of the pipeline for the status surface.
type Snapshot struct {
	StartedAt     time.Time `json:"started_at"`
	LogPath       string    `json:"log_path"`
	Maintenance   bool      `json:"maintenance_mode"`
	NotifyEnabled bool      `json:"notify_enabled"`

	WindowLen    int     `json:"window_len"`
	WindowCap    int     `json:"window_cap"`
	ErrorRate    float64 `json:"error_rate"`
	ErrorCount   int     `json:"error_count"`
	CurrentPool  string  `json:"current_pool,omitempty"`
	PreviousPool string  `json:"previous_pool,omitempty"`

	LastFailoverAlert  *time.Time `json:"last_failover_alert,omitempty"`
	LastErrorRateAlert *time.Time `json:"last_error_rate_alert,omitempty"`
	QueuedAlerts       int        `json:"queued_alerts"`
}

// New assembles the pipeline from the configuration. Nothing starts running
// until Run is called.
func New(cfg *config.Config, logger *monitoring.Logger) (*Watcher, error) {
	metrics := monitoring.NewMetricsCollector()
	flagger := monitoring.NewFlagger(logger.Component("flags"), monitoring.FlagConfig{})

	events, err := monitoring.NewEventLog(monitoring.EventLogConfig{
		Enabled: cfg.EventsLogPath != "",
		Path:    cfg.EventsLogPath,
	})
	if err != nil {
		return nil, err
	}

	tailer := tail.New(tail.Config{
		Path:          cfg.LogPath,
		PollInterval:  cfg.PollInterval,
		ReadFromStart: cfg.StartAt == "start",
	}, logger.Component("tail"), metrics, flagger, events)

	sink := notify.NewSlack(notify.SlackConfig{
		WebhookURL: cfg.WebhookURL,
		Timeout:    cfg.NotifyTimeout,
		Retries:    cfg.NotifyRetries,
	}, logger.Component("slack"))

	dispatcher := notify.NewDispatcher(sink, cfg.QueueSize,
		logger.Component("dispatch"), metrics, flagger)

	engine := alert.NewEngine(alert.Config{
		ErrorRateThreshold: cfg.ErrorRateThreshold,
		Cooldown:           cfg.AlertCooldown,
		MaintenanceMode:    cfg.MaintenanceMode,
	}, logger.Component("engine"))

	return &Watcher{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		flagger:    flagger,
		events:     events,
		tailer:     tailer,
		sink:       sink,
		dispatcher: dispatcher,
		win:        window.New(cfg.WindowSize),
		engine:     engine,
		startedAt:  time.Now(),
	}, nil
}

// Metrics exposes the pipeline counters.
func (w *Watcher) Metrics() *monitoring.MetricsCollector { return w.metrics }

// Run consumes the log until ctx is canceled, then drains queued alerts
// within a bounded grace period. Pipeline-internal failures (unreadable
// file, malformed lines, undeliverable alerts) never end the run.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info().
		Str("log_path", w.cfg.LogPath).
		Int("window_size", w.cfg.WindowSize).
		Float64("error_rate_threshold", w.cfg.ErrorRateThreshold).
		Dur("cooldown", w.cfg.AlertCooldown).
		Bool("maintenance_mode", w.cfg.MaintenanceMode).
		Msg("log watcher starting")

	if !w.sink.Enabled() {
		w.logger.Warn().Msg("no webhook configured, alerts will only be logged")
	}
	if w.cfg.MaintenanceMode {
		w.logger.Warn().Msg("maintenance mode enabled, alerting is suppressed")
	}

	w.dispatcher.Start()

	tailDone := make(chan error, 1)
	go func() {
		tailDone <- w.tailer.Run(ctx)
	}()

	for line := range w.tailer.Lines() {
		w.process(line)
	}
	err := <-tailDone

	w.dispatcher.Close(shutdownGrace)
	_ = w.events.Close()

	stats := w.metrics.Stats()
	w.logger.Info().
		Int64("lines", stats["lines"]).
		Int64("records", stats["records"]).
		Int64("parse_failures", stats["parse_failures"]).
		Int64("alerts_emitted", stats["alerts_emitted"]).
		Int64("alerts_delivered", stats["alerts_delivered"]).
		Int64("alerts_dropped", stats["alerts_dropped"]).
		Msg("log watcher stopped")
	return err
}

// process pushes one raw line through parse, observe and evaluate.
func (w *Watcher) process(line string) {
	rec, err := accesslog.Parse(line)
	if err != nil {
		w.metrics.RecordParse(false)
		w.flagger.FlagParseNoise(w.metrics.ParseFailures(), w.metrics.Lines())
		w.logger.Debug().Str("line", clip(line)).Msg("skipping unparsable line")
		return
	}
	w.metrics.RecordParse(true)

	w.mu.Lock()
	st := w.win.Observe(rec)
	events := w.engine.Evaluate(st, rec, line, time.Now())
	w.mu.Unlock()

	w.logger.Debug().
		Str("pool", rec.Pool).
		Int("status", rec.Status).
		Float64("error_rate", st.ErrorRate).
		Int("window_len", st.Len).
		Bool("transition", st.Transition).
		Msg("record observed")

	for _, ev := range events {
		w.emit(ev)
	}
}

// emit journals an alert event and hands it to the dispatcher.
func (w *Watcher) emit(ev alert.Event) {
	w.metrics.RecordAlertEmitted()

	w.logger.Warn().
		Str("kind", string(ev.Kind)).
		Str("alert_id", ev.ID).
		Str("pool", ev.Pool).
		Str("prev_pool", ev.PrevPool).
		Float64("error_rate", ev.Rate).
		Int("window_len", ev.WindowLen).
		Msg("alert raised")

	w.events.RecordAlert(monitoring.AlertEntry{
		Timestamp: ev.At.UTC(),
		AlertID:   ev.ID,
		Kind:      string(ev.Kind),
		Pool:      ev.Pool,
		PrevPool:  ev.PrevPool,
		Release:   ev.Release,
		Rate:      ev.Rate,
		Threshold: ev.Threshold,
		WindowLen: ev.WindowLen,
		Upstream:  ev.Record.Upstream,
		Status:    ev.Record.Status,
	})

	if w.sink.Enabled() {
		w.dispatcher.Enqueue(ev)
	}
}

// Snapshot returns the current pipeline state for the status surface.
func (w *Watcher) Snapshot() Snapshot {
	w.mu.Lock()
	st := w.win.State()
	gates := w.engine.Gates()
	w.mu.Unlock()

	snap := Snapshot{
		StartedAt:     w.startedAt,
		LogPath:       w.cfg.LogPath,
		Maintenance:   w.cfg.MaintenanceMode,
		NotifyEnabled: w.sink.Enabled(),
		WindowLen:     st.Len,
		WindowCap:     w.win.Cap(),
		ErrorRate:     st.ErrorRate,
		ErrorCount:    st.ErrorCount,
		CurrentPool:   st.CurrentPool,
		PreviousPool:  st.PreviousPool,
		QueuedAlerts:  w.dispatcher.QueueLen(),
	}
	if t, ok := gates[alert.KindFailover]; ok {
		snap.LastFailoverAlert = &t
	}
	if t, ok := gates[alert.KindHighErrorRate]; ok {
		snap.LastErrorRateAlert = &t
	}
	return snap
}

// clip bounds a raw line for logging.
func clip(line string) string {
	if len(line) <= maxLoggedLine {
		return line
	}
	return line[:maxLoggedLine] + "..."
}
