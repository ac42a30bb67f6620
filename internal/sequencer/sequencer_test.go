package sequencer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLoop(t *testing.T, interval time.Duration) (*Loop, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.UnixMilli(60_000)}
	l := NewLoop(interval)
	l.now = clock.Now
	l.Start()
	t.Cleanup(l.Close)
	return l, clock
}

func slotOf(t *testing.T, s Sequencer) Slot {
	t.Helper()
	var got Slot
	if err := s.Do(context.Background(), func(slot Slot) error {
		got = slot
		return nil
	}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	return got
}

func TestLoop_SlotsWithinRound(t *testing.T) {
	l, _ := newTestLoop(t, 6*time.Second)

	for i := uint32(0); i < 3; i++ {
		slot := slotOf(t, l)
		if slot.Round != 10 {
			t.Errorf("call %d round = %d, want 10", i, slot.Round)
		}
		if slot.Index != i {
			t.Errorf("call %d index = %d, want %d", i, slot.Index, i)
		}
	}
}

func TestLoop_RoundAdvanceResetsIndex(t *testing.T) {
	l, clock := newTestLoop(t, 6*time.Second)

	slotOf(t, l)
	slotOf(t, l)
	clock.Advance(6 * time.Second)

	slot := slotOf(t, l)
	if slot != (Slot{Round: 11, Index: 0}) {
		t.Errorf("slot after advance = %+v, want {Round:11 Index:0}", slot)
	}
}

func TestLoop_ClockGoingBackwards(t *testing.T) {
	l, clock := newTestLoop(t, 6*time.Second)

	slotOf(t, l)
	clock.Advance(-time.Minute)

	slot := slotOf(t, l)
	if slot != (Slot{Round: 10, Index: 1}) {
		t.Errorf("slot = %+v, want round to hold at 10 with index 1", slot)
	}
}

func TestLoop_ReturnsWorkError(t *testing.T) {
	l, _ := newTestLoop(t, time.Second)
	wantErr := errors.New("boom")

	if err := l.Do(context.Background(), func(Slot) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Errorf("Do() error = %v, want %v", err, wantErr)
	}
}

func TestLoop_CancelledBeforeStart(t *testing.T) {
	l, _ := newTestLoop(t, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := l.Do(ctx, func(Slot) error {
		ran = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if ran {
		t.Error("work ran despite cancelled context")
	}

	// A rejected call does not consume a slot.
	if slot := slotOf(t, l); slot.Index != 0 {
		t.Errorf("next slot index = %d, want 0", slot.Index)
	}
}

func TestLoop_StartedWorkCompletes(t *testing.T) {
	l, _ := newTestLoop(t, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	err := l.Do(ctx, func(Slot) error {
		cancel()
		return nil
	})
	if err != nil {
		t.Errorf("Do() error = %v, want nil for work that had started", err)
	}
}

func TestLoop_Closed(t *testing.T) {
	l := NewLoop(time.Second)
	l.Start()
	l.Close()
	l.Close()

	err := l.Do(context.Background(), func(Slot) error { return nil })
	if !errors.Is(err, ErrStopped) {
		t.Errorf("Do() after Close error = %v, want ErrStopped", err)
	}
}

func TestLoop_Serialises(t *testing.T) {
	l, _ := newTestLoop(t, time.Hour)

	var (
		inFlight atomic.Int32
		wg       sync.WaitGroup
		mu       sync.Mutex
		seen     = make(map[Slot]bool)
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Do(context.Background(), func(slot Slot) error {
				if n := inFlight.Add(1); n != 1 {
					t.Errorf("%d calls in flight", n)
				}
				defer inFlight.Add(-1)

				mu.Lock()
				defer mu.Unlock()
				if seen[slot] {
					t.Errorf("slot %+v handed out twice", slot)
				}
				seen[slot] = true
				return nil
			})
			if err != nil {
				t.Errorf("Do() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Errorf("saw %d distinct slots, want 50", len(seen))
	}
}

func TestManual(t *testing.T) {
	m := NewManual(7)

	if got := slotOf(t, m); got != (Slot{Round: 7, Index: 0}) {
		t.Errorf("first slot = %+v", got)
	}
	if got := slotOf(t, m); got != (Slot{Round: 7, Index: 1}) {
		t.Errorf("second slot = %+v", got)
	}

	m.NextRound()
	if got := slotOf(t, m); got != (Slot{Round: 8, Index: 0}) {
		t.Errorf("slot after NextRound = %+v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Do(ctx, func(Slot) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("Do() with cancelled ctx error = %v", err)
	}
}
