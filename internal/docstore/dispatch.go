package docstore

import (
	"context"
	"log/slog"
	"sync"
)

// Dispatcher delivers snapshots to a Handler from one goroutine, in the order
// they were enqueued. Handlers may therefore write back into the store that
// feeds them without deadlocking.
type Dispatcher struct {
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Snapshot
	closed bool
}

// NewDispatcher starts a dispatcher. The handler context is cancelled by Close.
func NewDispatcher(h Handler, logger *slog.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{handler: h, ctx: ctx, cancel: cancel, logger: logger}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// Enqueue schedules snap for delivery. It never blocks on the handler.
func (d *Dispatcher) Enqueue(snap Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, snap)
	d.cond.Signal()
}

// Close stops delivery and drops anything still queued. It does not wait for a
// running handler, so it is safe to call from inside one.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.queue = nil
	d.cond.Broadcast()
	d.mu.Unlock()
	d.cancel()
}

// Done is closed once Close has been called.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.ctx.Done()
}

func (d *Dispatcher) next() (Snapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.queue) == 0 && !d.closed {
		d.cond.Wait()
	}
	if d.closed {
		return Snapshot{}, false
	}
	snap := d.queue[0]
	d.queue = d.queue[1:]
	return snap, true
}

func (d *Dispatcher) run() {
	for {
		snap, ok := d.next()
		if !ok {
			return
		}
		d.deliver(snap)
	}
}

func (d *Dispatcher) deliver(snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Panic in live query handler", "panic", r)
		}
	}()
	d.handler(d.ctx, snap)
}
