package sequencer

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

// ErrStopped is returned by Do after the Loop has been closed.
var ErrStopped = errors.New("sequencer: stopped")

// Slot identifies a call's position in the sequence.
type Slot struct {
	Round uint64
	Index uint32
}

// Sequencer runs work one call at a time.
type Sequencer interface {
	// Do runs fn with the next slot. If ctx is done before fn starts, fn
	// is not run and the context error is returned. Once fn has started it
	// runs to completion and its error is returned.
	Do(ctx context.Context, fn func(Slot) error) error
}

type job struct {
	ctx    context.Context
	fn     func(Slot) error
	result chan error
}

// Loop executes work on a single goroutine. The round is derived from the
// wall clock (Unix milliseconds / interval), so it keeps increasing across
// restarts.
type Loop struct {
	interval time.Duration
	now      func() time.Time

	jobs chan job
	done chan struct{}
	wg   sync.WaitGroup

	startOnce sync.Once
	closeOnce sync.Once

	// Owned by the run goroutine.
	round uint64
	index uint32
}

// NewLoop returns a Loop whose round advances every interval. Call Start
// before submitting work.
func NewLoop(interval time.Duration) *Loop {
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	return &Loop{
		interval: interval,
		now:      time.Now,
		jobs:     make(chan job),
		done:     make(chan struct{}),
	}
}

// Start launches the executing goroutine.
func (l *Loop) Start() {
	l.startOnce.Do(func() {
		l.wg.Add(1)
		go l.run()
	})
}

// Close stops accepting work and waits for the running call to finish.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
}

// Do submits fn and waits for its result.
func (l *Loop) Do(ctx context.Context, fn func(Slot) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j := job{ctx: ctx, fn: fn, result: make(chan error, 1)}
	select {
	case l.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
	return <-j.result
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			return
		case j := <-l.jobs:
			if err := j.ctx.Err(); err != nil {
				j.result <- err
				continue
			}
			j.result <- j.fn(l.next())
		}
	}
}

// next advances to the slot for the current call.
func (l *Loop) next() Slot {
	current := uint64(l.now().UnixMilli()) / uint64(l.interval.Milliseconds()) //nolint:gosec // Unix time is positive
	switch {
	case current > l.round:
		l.round, l.index = current, 0
	case l.index == math.MaxUint32:
		// Index space for this round is spent; borrow the next round.
		l.round, l.index = l.round+1, 0
	}

	slot := Slot{Round: l.round, Index: l.index}
	l.index++
	return slot
}

// Manual is a deterministic Sequencer. Rounds change only through
// NextRound; calls are serialised by a mutex.
type Manual struct {
	mu    sync.Mutex
	round uint64
	index uint32
}

// NewManual returns a Manual sequencer starting at round.
func NewManual(round uint64) *Manual {
	return &Manual{round: round}
}

// Do runs fn with the next slot of the current round.
func (m *Manual) Do(ctx context.Context, fn func(Slot) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	slot := Slot{Round: m.round, Index: m.index}
	m.index++
	return fn(slot)
}

// NextRound advances to the next round and resets the call index.
func (m *Manual) NextRound() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.round++
	m.index = 0
}
