package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultDropLogEvery is how many drops pass between Warn lines once the
// first drop has been reported.
const DefaultDropLogEvery = 100

// Config controls dispatcher buffering and drop reporting.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// DropLogEvery logs every Nth dropped event after the first.
	// Zero means DefaultDropLogEvery.
	DropLogEvery uint64
}

// Dispatcher relays audit events to a sink from a single background
// goroutine so that submissions never wait on sink I/O.
type Dispatcher struct {
	cfg    Config
	sink   Sink
	logger *zap.Logger

	queue   chan Event
	stop    chan struct{}
	stopped sync.WaitGroup

	dropped    atomic.Uint64
	lastLogged atomic.Uint64
	closed     atomic.Bool
	closeOnce  sync.Once
}

// NewDispatcher starts a dispatcher, or returns nil when auditing is
// disabled. A nil *Dispatcher accepts every call as a no-op.
func NewDispatcher(cfg Config, sink Sink, logger *zap.Logger) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.DropLogEvery == 0 {
		cfg.DropLogEvery = DefaultDropLogEvery
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		cfg:    cfg,
		sink:   sink,
		logger: logger.Named("audit"),
		queue:  make(chan Event, cfg.BufferSize),
		stop:   make(chan struct{}),
	}

	d.stopped.Add(1)
	go d.loop()

	return d
}

func (d *Dispatcher) loop() {
	defer d.stopped.Done()

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	d.sink.Emit(context.Background(), event)
}

// Emit queues event. With DropIfFull a full queue drops the event and
// reports it; otherwise Emit waits for space, ctx cancellation or Close.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.recordDrop(event)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.stop:
	}
}

func (d *Dispatcher) recordDrop(event Event) {
	total := d.dropped.Add(1)
	if total != 1 && total%d.cfg.DropLogEvery != 0 {
		return
	}
	d.lastLogged.Store(total)
	d.logger.Warn("audit event dropped",
		zap.String("event_type", event.EventType),
		zap.Uint64("dropped_total", total),
		zap.Int("buffer_size", d.cfg.BufferSize),
	)
}

// Close stops accepting events, flushes what is queued and reports drops
// that were not yet logged. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.stopped.Wait()

		total := d.dropped.Load()
		if unlogged := total - d.lastLogged.Load(); unlogged > 0 {
			d.logger.Warn("audit dispatcher closed with unreported drops",
				zap.Uint64("dropped_total", total),
				zap.Uint64("unreported", unlogged),
			)
		}
	})
}

// Dropped returns how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
