package tunzadent

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher decouples engine operations from the sink. Events are
// queued on a buffered channel and delivered by a single goroutine; the
// DropIfFull policy decides whether a full buffer drops or backpressures.
type auditDispatcher struct {
	sink    AuditSink
	events  chan AuditEvent
	block   bool
	dropped atomic.Uint64

	mu      sync.RWMutex
	closed  bool
	drained chan struct{}
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = 1
	}

	d := &auditDispatcher{
		sink:    sink,
		events:  make(chan AuditEvent, buffer),
		block:   !cfg.DropIfFull,
		drained: make(chan struct{}),
	}
	go d.pump()
	return d
}

// pump owns the sink. Ranging over the queue doubles as the shutdown
// drain: Close closes the channel, pump finishes the backlog and signals
// drained.
func (d *auditDispatcher) pump() {
	for event := range d.events {
		d.sink.Emit(context.Background(), event)
	}
	close(d.drained)
}

// Emit queues an event. A nil dispatcher (auditing disabled) and a closed
// dispatcher are both silent no-ops.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if !d.block {
		select {
		case d.events <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.events <- event:
	case <-ctx.Done():
	}
}

// Close stops intake, waits for the backlog to reach the sink, and
// returns. Safe to call more than once.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()

	<-d.drained
}

// Dropped reports how many events were discarded because the buffer was
// full.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
