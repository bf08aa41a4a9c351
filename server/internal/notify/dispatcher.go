package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clientledger/clientledger/server/internal/metrics"
)

// Options sizes a Dispatcher.
type Options struct {
	Workers     int
	QueueSize   int
	MaxAttempts int

	// RetryInitial is the first retry delay; zero uses the package default.
	RetryInitial time.Duration
}

// Dispatcher delivers messages to every sink from a bounded queue drained
// by a fixed worker pool. Send never blocks the caller.
//
// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	opts  Options
	sinks []Sink
	queue chan Message
	admin atomic.Pointer[string]
	m     *metrics.Metrics
}

// NewDispatcher creates a Dispatcher. Call Run to start the workers.
func NewDispatcher(opts Options, sinks []Sink, m *metrics.Metrics) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	d := &Dispatcher{
		opts:  opts,
		sinks: sinks,
		queue: make(chan Message, opts.QueueSize),
		m:     m,
	}
	d.SetAdmin("")
	return d
}

// SetAdmin changes the address used for messages without a recipient.
func (d *Dispatcher) SetAdmin(addr string) {
	d.admin.Store(&addr)
}

// Admin returns the current administrator address.
func (d *Dispatcher) Admin() string {
	return *d.admin.Load()
}

// Send enqueues msg and reports whether it was accepted. A full queue drops
// the message.
func (d *Dispatcher) Send(msg Message) bool {
	if msg.To == "" {
		msg.To = d.Admin()
	}
	select {
	case d.queue <- msg:
		d.m.NotifyQueued.Inc()
		return true
	default:
		d.m.NotifyDropped.Inc()
		slog.Warn("notify: queue full, dropping message",
			"event", msg.Event, "queue_cap", cap(d.queue))
		return false
	}
}

// Run starts the workers and blocks until ctx is cancelled and every worker
// has finished its current message. Messages still queued are discarded.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx)
		}()
	}
	slog.Info("notify: dispatcher started",
		"workers", d.opts.Workers, "queue_size", d.opts.QueueSize, "sinks", len(d.sinks))
	wg.Wait()
	if n := len(d.queue); n > 0 {
		slog.Warn("notify: discarding queued messages on shutdown", "count", n)
	}
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.queue:
			d.m.NotifyQueued.Dec()
			for _, s := range d.sinks {
				d.deliver(ctx, s, msg)
			}
		}
	}
}

// deliver retries one sink with exponential backoff. Errors are logged but
// do not affect other sinks.
func (d *Dispatcher) deliver(ctx context.Context, s Sink, msg Message) {
	bo := newBackoff(d.opts.RetryInitial)
	for attempt := 1; ; attempt++ {
		err := s.Deliver(ctx, msg)
		if err == nil {
			d.m.NotifyDelivered.WithLabelValues(s.Name(), "ok").Inc()
			slog.Debug("notify: delivered", "sink", s.Name(), "event", msg.Event, "attempt", attempt)
			return
		}
		if attempt >= d.opts.MaxAttempts || ctx.Err() != nil {
			d.m.NotifyDelivered.WithLabelValues(s.Name(), "error").Inc()
			slog.Error("notify: delivery failed",
				"sink", s.Name(), "event", msg.Event, "attempts", attempt, "err", err)
			return
		}
		wait := bo.next()
		slog.Warn("notify: delivery failed, will retry",
			"sink", s.Name(), "event", msg.Event, "err", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			d.m.NotifyDelivered.WithLabelValues(s.Name(), "error").Inc()
			return
		case <-time.After(wait):
		}
	}
}
