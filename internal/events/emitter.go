package events

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Default emitter settings.
const (
	DefaultBuffer     = 1024
	DefaultRetryDelay = 500 * time.Millisecond

	// handlerTimeout bounds a single handler attempt.
	handlerTimeout = 10 * time.Second
)

// Options configures an Emitter. A zero Buffer or RetryDelay selects the
// default; RetryAttempts is taken as given, zero meaning a single attempt.
type Options struct {
	Buffer        int
	RetryAttempts int
	RetryDelay    time.Duration
}

type subscriber struct {
	name    string
	handler Handler
}

// Emitter queues events and dispatches them to subscribers in order.
//
// Thread Safety: all methods are safe for concurrent use.
type Emitter struct {
	opts   Options
	logger Logger
	queue  chan DeviceRegistered

	subsMu sync.RWMutex
	subs   []subscriber

	// closeMu orders Close after in-flight Notify calls so nothing is
	// enqueued once draining has begun.
	closeMu sync.RWMutex
	closed  bool
	closing chan struct{}
	stopped chan struct{}
}

// NewEmitter creates an emitter and starts its dispatch goroutine.
func NewEmitter(opts Options, logger Logger) *Emitter {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if logger == nil {
		logger = noopLogger{}
	}

	e := &Emitter{
		opts:    opts,
		logger:  logger,
		queue:   make(chan DeviceRegistered, opts.Buffer),
		closing: make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go e.run()
	return e
}

// Subscribe registers a named handler. Handlers are called in
// subscription order.
func (e *Emitter) Subscribe(name string, h Handler) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	e.subs = append(e.subs, subscriber{name: name, handler: h})
}

// Subscribers returns the registered subscriber names.
func (e *Emitter) Subscribers() []string {
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()
	names := make([]string, len(e.subs))
	for i, s := range e.subs {
		names[i] = s.name
	}
	return names
}

// Notify enqueues ev. It blocks while the queue is full and returns the
// context error if ctx ends first, or ErrClosed after Close.
func (e *Emitter) Notify(ctx context.Context, ev DeviceRegistered) error {
	e.closeMu.RLock()
	defer e.closeMu.RUnlock()

	if e.closed {
		return ErrClosed
	}

	select {
	case e.queue <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events, delivers everything already queued and
// waits for the dispatcher to exit.
func (e *Emitter) Close() {
	e.closeMu.Lock()
	if !e.closed {
		e.closed = true
		close(e.closing)
	}
	e.closeMu.Unlock()

	<-e.stopped
}

func (e *Emitter) run() {
	defer close(e.stopped)
	for {
		select {
		case ev := <-e.queue:
			e.dispatch(ev)
		case <-e.closing:
			for {
				select {
				case ev := <-e.queue:
					e.dispatch(ev)
				default:
					return
				}
			}
		}
	}
}

func (e *Emitter) dispatch(ev DeviceRegistered) {
	e.subsMu.RLock()
	subs := make([]subscriber, len(e.subs))
	copy(subs, e.subs)
	e.subsMu.RUnlock()

	for _, s := range subs {
		e.deliver(s, ev)
	}
}

// deliver runs one subscriber with retries. Failures are logged and the
// event is dropped for this subscriber.
func (e *Emitter) deliver(s subscriber, ev DeviceRegistered) {
	var err error
	for attempt := 0; attempt <= e.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(e.opts.RetryDelay)
		}
		if err = e.call(s, ev); err == nil {
			return
		}
		e.logger.Debug("event handler failed",
			"subscriber", s.name,
			"device_id", ev.ID.String(),
			"attempt", attempt+1,
			"error", err,
		)
	}

	e.logger.Error("dropping event after retries",
		"subscriber", s.name,
		"device_id", ev.ID.String(),
		"owner", string(ev.Owner),
		"attempts", e.opts.RetryAttempts+1,
		"error", err,
	)
}

// call invokes a handler, converting a panic into an error so one faulty
// subscriber cannot kill the dispatcher.
func (e *Emitter) call(s subscriber, ev DeviceRegistered) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("events: handler %s panicked: %v", s.name, r)
		}
	}()
	return s.handler(ctx, ev)
}
