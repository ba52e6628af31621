// Package notify - dispatcher.go decouples delivery from ingestion.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/whotterre/log-watcher/internal/alert"
	"github.com/whotterre/log-watcher/internal/monitoring"
)

// Sink delivers one alert event to its destination. Implementations must
// honor ctx cancellation so shutdown stays bounded.
type Sink interface {
	Deliver(ctx context.Context, ev alert.Event) error
}

// Dispatcher feeds queued alert events to a Sink from a single background
// worker. One worker keeps deliveries in emission order. When the queue is
// full the newest event is dropped: the queue already holds older alerts
// that describe the same unhealthy stretch, and delivery order stays intact.
type Dispatcher struct {
	sink    Sink
	queue   chan alert.Event
	logger  *monitoring.Logger
	metrics *monitoring.MetricsCollector
	flagger *monitoring.Flagger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	failStreak int // consecutive failed deliveries, worker goroutine only
}

// NewDispatcher creates a dispatcher with the given queue capacity.
func NewDispatcher(sink Sink, queueSize int, logger *monitoring.Logger, metrics *monitoring.MetricsCollector, flagger *monitoring.Flagger) *Dispatcher {
	if queueSize < 1 {
		queueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		sink:       sink,
		queue:      make(chan alert.Event, queueSize),
		logger:     logger,
		metrics:    metrics,
		flagger:    flagger,
		baseCtx:    ctx,
		baseCancel: cancel,
		stopChan:   make(chan struct{}),
	}
}

// Start launches the delivery worker. Safe to call once.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	d.wg.Add(1)
	go d.run()
	d.logger.Info().Int("queue_capacity", cap(d.queue)).Msg("alert dispatcher started")
}

// Enqueue hands an event to the delivery worker without blocking. Returns
// false when the queue is full and the event was dropped.
func (d *Dispatcher) Enqueue(ev alert.Event) bool {
	select {
	case d.queue <- ev:
		return true
	default:
		d.metrics.RecordAlertDropped()
		d.logger.Warn().
			Str("kind", string(ev.Kind)).
			Str("alert_id", ev.ID).
			Msg("alert queue full, dropping alert")
		return false
	}
}

// QueueLen returns the number of events waiting for delivery.
func (d *Dispatcher) QueueLen() int { return len(d.queue) }

// Close stops the worker, draining queued events for at most grace. In-flight
// deliveries are canceled once the grace period expires.
func (d *Dispatcher) Close(grace time.Duration) {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopChan)
	d.mu.Unlock()

	// Cut delivery attempts short if the drain outlives the grace period.
	timer := time.AfterFunc(grace, d.baseCancel)
	defer timer.Stop()
	defer d.baseCancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info().Msg("alert dispatcher stopped")
	case <-time.After(grace + time.Second):
		d.logger.Warn().Int("queued", len(d.queue)).Msg("alert dispatcher shutdown grace expired")
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopChan:
			d.drain()
			return
		case ev := <-d.queue:
			d.deliver(ev)
		}
	}
}

// drain delivers whatever is still queued at shutdown. The base context
// cancellation bounds how long this can take.
func (d *Dispatcher) drain() {
	for {
		if d.baseCtx.Err() != nil {
			return
		}
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ev alert.Event) {
	err := d.sink.Deliver(d.baseCtx, ev)
	if err != nil {
		d.failStreak++
		d.metrics.RecordNotifyFailure()
		d.logger.Error().
			Err(err).
			Str("kind", string(ev.Kind)).
			Str("alert_id", ev.ID).
			Msg("alert delivery failed, alert dropped")
		d.flagger.FlagSinkFailing(d.failStreak, err)
		return
	}
	d.failStreak = 0
	d.metrics.RecordAlertDelivered()
}
