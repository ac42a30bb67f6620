package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-registry/internal/device"
)

func testEvent(b byte) DeviceRegistered {
	var id device.ID
	id[0] = b
	return DeviceRegistered{ID: id, Owner: "alice", RegisteredAt: time.Unix(1700000000, 0).UTC()}
}

// recorder collects delivered events.
type recorder struct {
	mu     sync.Mutex
	events []DeviceRegistered
}

func (r *recorder) handle(_ context.Context, ev DeviceRegistered) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) snapshot() []DeviceRegistered {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DeviceRegistered(nil), r.events...)
}

func TestEmitter_DeliversInOrder(t *testing.T) {
	e := NewEmitter(Options{Buffer: 4}, nil)

	var first, second recorder
	e.Subscribe("first", first.handle)
	e.Subscribe("second", second.handle)

	for i := byte(1); i <= 20; i++ {
		if err := e.Notify(context.Background(), testEvent(i)); err != nil {
			t.Fatalf("Notify(%d) error = %v", i, err)
		}
	}
	e.Close()

	for name, r := range map[string]*recorder{"first": &first, "second": &second} {
		got := r.snapshot()
		if len(got) != 20 {
			t.Fatalf("%s received %d events, want 20", name, len(got))
		}
		for i, ev := range got {
			if ev.ID[0] != byte(i+1) {
				t.Errorf("%s event %d has id byte %d, want %d", name, i, ev.ID[0], i+1)
			}
		}
	}

	if names := e.Subscribers(); len(names) != 2 || names[0] != "first" || names[1] != "second" {
		t.Errorf("Subscribers() = %v", names)
	}
}

func TestEmitter_Retry(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		attempts  int
		wantCalls int32
	}{
		{name: "succeeds first time", failures: 0, attempts: 3, wantCalls: 1},
		{name: "succeeds on retry", failures: 2, attempts: 3, wantCalls: 3},
		{name: "gives up after budget", failures: 100, attempts: 2, wantCalls: 3},
		{name: "no retries", failures: 100, attempts: 0, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEmitter(Options{RetryAttempts: tt.attempts, RetryDelay: time.Millisecond}, nil)

			var calls atomic.Int32
			e.Subscribe("flaky", func(context.Context, DeviceRegistered) error {
				if calls.Add(1) <= tt.failures {
					return errors.New("unavailable")
				}
				return nil
			})

			if err := e.Notify(context.Background(), testEvent(1)); err != nil {
				t.Fatalf("Notify() error = %v", err)
			}
			e.Close()

			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("handler called %d times, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestEmitter_FailingSubscriberDoesNotBlockOthers(t *testing.T) {
	e := NewEmitter(Options{RetryAttempts: 1, RetryDelay: time.Millisecond}, nil)

	var good recorder
	e.Subscribe("broken", func(context.Context, DeviceRegistered) error {
		return errors.New("always fails")
	})
	e.Subscribe("panics", func(context.Context, DeviceRegistered) error {
		panic("subscriber bug")
	})
	e.Subscribe("good", good.handle)

	for i := byte(1); i <= 3; i++ {
		if err := e.Notify(context.Background(), testEvent(i)); err != nil {
			t.Fatalf("Notify() error = %v", err)
		}
	}
	e.Close()

	if got := len(good.snapshot()); got != 3 {
		t.Errorf("good subscriber received %d events, want 3", got)
	}
}

func TestEmitter_NotifyAfterClose(t *testing.T) {
	e := NewEmitter(Options{}, nil)
	e.Close()
	e.Close()

	if err := e.Notify(context.Background(), testEvent(1)); !errors.Is(err, ErrClosed) {
		t.Errorf("Notify() after Close error = %v, want ErrClosed", err)
	}
}

func TestEmitter_NotifyBlocksWhenFull(t *testing.T) {
	e := NewEmitter(Options{Buffer: 1}, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	e.Subscribe("slow", func(context.Context, DeviceRegistered) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	})

	if err := e.Notify(context.Background(), testEvent(1)); err != nil {
		t.Fatalf("Notify(1) error = %v", err)
	}
	<-started // event 1 is in the handler, the queue is empty

	if err := e.Notify(context.Background(), testEvent(2)); err != nil {
		t.Fatalf("Notify(2) error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := e.Notify(ctx, testEvent(3)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Notify(3) error = %v, want context.DeadlineExceeded", err)
	}

	close(release)
	e.Close()
}
