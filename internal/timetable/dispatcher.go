package timetable

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultQueueSize is the dispatcher queue length used when none is configured.
	DefaultQueueSize = 256

	// sinkTimeout bounds a single sink call.
	sinkTimeout = 5 * time.Second
)

// Sink consumes state updates off the dispatcher queue.
// Sinks run sequentially on the dispatcher goroutine and may block on I/O.
type Sink interface {
	Name() string
	Handle(ctx context.Context, update StateUpdate) error
}

// DropRecorder is notified when the queue is full and an update is discarded.
type DropRecorder interface {
	RecordDropped(id string)
}

// Dispatcher implements Publisher with a bounded queue drained by a single
// worker that calls each sink in order. Publish never blocks: when the queue
// is full the update is dropped and a warning logged.
//
// Thread Safety: Publish is safe for concurrent use.
type Dispatcher struct {
	queue   chan StateUpdate
	sinks   []Sink
	logger  Logger
	dropped DropRecorder

	stop     chan struct{}
	done     chan struct{}
	startMu  sync.Mutex
	started  bool
	stopOnce sync.Once
}

// NewDispatcher creates a dispatcher with the given queue length
// (DefaultQueueSize when not positive). Call Start to begin draining.
func NewDispatcher(queueSize int, logger Logger, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{
		queue:  make(chan StateUpdate, queueSize),
		sinks:  sinks,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// SetDropRecorder sets the recorder told about dropped updates.
// Must be called before Start.
func (d *Dispatcher) SetDropRecorder(r DropRecorder) {
	d.dropped = r
}

// Publish enqueues an update without blocking.
func (d *Dispatcher) Publish(update StateUpdate) {
	select {
	case <-d.stop:
		d.logger.Debug("dispatcher stopped, discarding update", "timetable_id", update.ID)
		return
	default:
	}

	select {
	case d.queue <- update:
	default:
		d.logger.Warn("dispatcher queue full, dropping update",
			"timetable_id", update.ID,
			"cause", string(update.Cause),
		)
		if d.dropped != nil {
			d.dropped.RecordDropped(update.ID)
		}
	}
}

// Start launches the worker goroutine. It is a no-op if already started.
func (d *Dispatcher) Start() {
	d.startMu.Lock()
	defer d.startMu.Unlock()
	if d.started {
		return
	}
	d.started = true
	go d.run()
}

// Stop stops accepting updates, delivers whatever is already queued and
// waits for the worker to exit or ctx to expire.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() { close(d.stop) })

	d.startMu.Lock()
	started := d.started
	d.startMu.Unlock()
	if !started {
		return nil
	}

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case update := <-d.queue:
			d.deliver(update)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

// drain delivers updates queued before Stop.
func (d *Dispatcher) drain() {
	for {
		select {
		case update := <-d.queue:
			d.deliver(update)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(update StateUpdate) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		err := sink.Handle(ctx, update)
		cancel()
		if err != nil {
			d.logger.Error("state sink failed",
				"sink", sink.Name(),
				"timetable_id", update.ID,
				"error", err,
			)
		}
	}
}
