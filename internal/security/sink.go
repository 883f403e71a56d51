package security

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	defaultDispatchBuffer = 1024
	defaultPublishTimeout = 5 * time.Second
	defaultDrainTimeout   = 10 * time.Second
)

// Sink persists or publishes security events outside the process.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Dispatcher fans events out to sinks from a background goroutine. Forward
// never blocks: events are dropped when the buffer is full.
type Dispatcher struct {
	logger  *slog.Logger
	sinks   []Sink
	queue   chan Event
	timeout time.Duration
	dropped atomic.Uint64
	closed  atomic.Bool
}

// NewDispatcher constructs a dispatcher with the given buffer size.
func NewDispatcher(logger *slog.Logger, buffer int, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = defaultDispatchBuffer
	}
	return &Dispatcher{
		logger:  logger,
		sinks:   sinks,
		queue:   make(chan Event, buffer),
		timeout: defaultPublishTimeout,
	}
}

// Forward enqueues event for publication.
func (d *Dispatcher) Forward(event Event) {
	if d == nil || len(d.sinks) == 0 || d.closed.Load() {
		return
	}
	select {
	case d.queue <- event:
	default:
		if n := d.dropped.Add(1); n == 1 || n%100 == 0 {
			d.logger.Warn("security event dropped", slog.Uint64("dropped_total", n), slog.String("event_id", event.ID))
		}
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Run publishes queued events until ctx is cancelled, then drains what is
// left within a bounded time.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d == nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return nil
		case event := <-d.queue:
			d.publish(ctx, event)
		}
	}
}

func (d *Dispatcher) drain() {
	d.closed.Store(true)
	ctx, cancel := context.WithTimeout(context.Background(), defaultDrainTimeout)
	defer cancel()
	for {
		select {
		case event := <-d.queue:
			d.publish(ctx, event)
		default:
			return
		}
		if ctx.Err() != nil {
			d.logger.Warn("security event drain timed out", slog.Int("remaining", len(d.queue)))
			return
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, event Event) {
	for _, sink := range d.sinks {
		pctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := sink.Publish(pctx, event)
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("publish security event", slog.String("event_id", event.ID), slog.Any("error", err))
		}
	}
}

var _ Forwarder = (*Dispatcher)(nil)
