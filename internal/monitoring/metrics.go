// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - lines/records/parse_failures: ingestion throughput and input quality
//   - alerts_*:                     emitted vs delivered vs dropped alerts
//   - reopens/truncations:          log file lifecycle events seen by the tailer
//
// For production, export these to Prometheus or similar.
package monitoring

import "sync/atomic"

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	lines           atomic.Int64
	records         atomic.Int64
	parseFailures   atomic.Int64
	alertsEmitted   atomic.Int64
	alertsDelivered atomic.Int64
	alertsDropped   atomic.Int64
	notifyFailures  atomic.Int64
	reopens         atomic.Int64
	truncations     atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RecordLine records one raw line read from the log.
func (mc *MetricsCollector) RecordLine() { mc.lines.Add(1) }

// RecordParse records a parse outcome.
func (mc *MetricsCollector) RecordParse(ok bool) {
	if ok {
		mc.records.Add(1)
	} else {
		mc.parseFailures.Add(1)
	}
}

// RecordAlertEmitted records an alert produced by the engine.
func (mc *MetricsCollector) RecordAlertEmitted() { mc.alertsEmitted.Add(1) }

// RecordAlertDelivered records a successful sink delivery.
func (mc *MetricsCollector) RecordAlertDelivered() { mc.alertsDelivered.Add(1) }

// RecordAlertDropped records an alert dropped because the queue was full
// or the dispatcher was shutting down.
func (mc *MetricsCollector) RecordAlertDropped() { mc.alertsDropped.Add(1) }

// RecordNotifyFailure records a delivery that exhausted its retries.
func (mc *MetricsCollector) RecordNotifyFailure() { mc.notifyFailures.Add(1) }

// RecordReopen records a tailer reopen (rotation or recreation).
func (mc *MetricsCollector) RecordReopen() { mc.reopens.Add(1) }

// RecordTruncation records an in-place truncation of the log file.
func (mc *MetricsCollector) RecordTruncation() { mc.truncations.Add(1) }

// Lines returns the raw line count.
func (mc *MetricsCollector) Lines() int64 { return mc.lines.Load() }

// ParseFailures returns the malformed line count.
func (mc *MetricsCollector) ParseFailures() int64 { return mc.parseFailures.Load() }

// Records returns the parsed record count.
func (mc *MetricsCollector) Records() int64 { return mc.records.Load() }

// Stats returns current metrics.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"lines":            mc.lines.Load(),
		"records":          mc.records.Load(),
		"parse_failures":   mc.parseFailures.Load(),
		"alerts_emitted":   mc.alertsEmitted.Load(),
		"alerts_delivered": mc.alertsDelivered.Load(),
		"alerts_dropped":   mc.alertsDropped.Load(),
		"notify_failures":  mc.notifyFailures.Load(),
		"reopens":          mc.reopens.Load(),
		"truncations":      mc.truncations.Load(),
	}
}
