package mint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/nerrad567/gray-logic-registry/internal/device"
	"github.com/nerrad567/gray-logic-registry/internal/entropy"
	"github.com/nerrad567/gray-logic-registry/internal/events"
	"github.com/nerrad567/gray-logic-registry/internal/sequencer"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.DeviceRegistered
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev events.DeviceRegistered) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) snapshot() []events.DeviceRegistered {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]events.DeviceRegistered(nil), n.events...)
}

type failingSource struct{}

func (failingSource) Draw([]byte) ([]byte, error) { return nil, errors.New("entropy pool empty") }

// stubStore returns a fixed TryCommit error and counts calls.
type stubStore struct {
	device.Store
	commitErr error
	commits   int
}

func (s *stubStore) TryCommit(context.Context, device.Record) error {
	s.commits++
	return s.commitErr
}

type fixture struct {
	svc      *Service
	store    *device.MemoryStore
	src      *entropy.SeededSource
	notifier *recordingNotifier
}

func newFixture(t *testing.T, maxOwned int, opts ...Option) fixture {
	t.Helper()
	f := fixture{
		store:    device.NewMemoryStore(maxOwned),
		src:      entropy.NewSeededSource([]byte(t.Name())),
		notifier: &recordingNotifier{},
	}
	opts = append([]Option{WithNotifier(f.notifier)}, opts...)
	f.svc = NewService(f.store, f.src, sequencer.NewManual(1), Config{MaxOwned: maxOwned}, opts...)
	return f
}

func TestRegister_OwnershipScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	i1, err := f.svc.Register(ctx, "A")
	if err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	i2, err := f.svc.Register(ctx, "A")
	if err != nil {
		t.Fatalf("second Register() error = %v", err)
	}
	if i1 == i2 {
		t.Fatal("two registrations returned the same id")
	}

	owned, err := f.svc.OwnedBy(ctx, "A")
	if err != nil {
		t.Fatalf("OwnedBy() error = %v", err)
	}
	if len(owned) != 2 || owned[0] != i1 || owned[1] != i2 {
		t.Errorf("OwnedBy(A) = %v, want [%s %s]", owned, i1, i2)
	}

	if _, err := f.svc.Register(ctx, "A"); !errors.Is(err, device.ErrOwnershipLimitExceeded) {
		t.Fatalf("third Register() error = %v, want ErrOwnershipLimitExceeded", err)
	}
	if n, _ := f.svc.Count(ctx); n != 2 { //nolint:errcheck // MemoryStore never errors
		t.Errorf("Count() = %d, want 2", n)
	}

	i4, err := f.svc.Register(ctx, "B")
	if err != nil {
		t.Fatalf("Register(B) error = %v", err)
	}
	if n, _ := f.svc.Count(ctx); n != 3 { //nolint:errcheck // MemoryStore never errors
		t.Errorf("Count() = %d, want 3", n)
	}

	got := f.notifier.snapshot()
	if len(got) != 3 {
		t.Fatalf("notified %d events, want 3", len(got))
	}
	for i, want := range []device.Record{{ID: i1, Owner: "A"}, {ID: i2, Owner: "A"}, {ID: i4, Owner: "B"}} {
		if got[i].ID != want.ID || got[i].Owner != want.Owner {
			t.Errorf("event %d = %s/%s, want %s/%s", i, got[i].ID, got[i].Owner, want.ID, want.Owner)
		}
	}
}

func TestRegister_DerivesIDFromSlotAndEntropy(t *testing.T) {
	ctx := context.Background()
	store := device.NewMemoryStore(5)
	svc := NewService(store, entropy.NewSeededSource([]byte("seed")), sequencer.NewManual(42),
		Config{MaxOwned: 5, ContextTag: "iot-auth"})

	id, err := svc.Register(ctx, "alice")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	replay := entropy.NewSeededSource([]byte("seed"))
	draw, err := replay.Draw([]byte("iot-auth"))
	if err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	want := device.NewGenerator().Generate(draw, 0, 42, []byte("iot-auth"))
	if id != want {
		t.Errorf("Register() = %s, want %s", id, want)
	}

	rec, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Owner != "alice" {
		t.Errorf("Get().Owner = %q, want alice", rec.Owner)
	}
}

func TestRegister_InvalidOwner(t *testing.T) {
	f := newFixture(t, 2)

	_, err := f.svc.Register(context.Background(), "")
	if !errors.Is(err, device.ErrInvalidOwner) {
		t.Fatalf("Register(\"\") error = %v, want ErrInvalidOwner", err)
	}
	if f.src.Draws() != 0 {
		t.Error("entropy was drawn for an invalid owner")
	}
	if len(f.notifier.snapshot()) != 0 {
		t.Error("event emitted for an invalid owner")
	}
}

func TestRegister_StoreErrorsReturnedUnchanged(t *testing.T) {
	sentinels := []error{
		device.ErrDuplicateID,
		device.ErrCounterOverflow,
		device.ErrOwnershipLimitExceeded,
	}

	for _, sentinel := range sentinels {
		t.Run(sentinel.Error(), func(t *testing.T) {
			store := &stubStore{commitErr: sentinel}
			notifier := &recordingNotifier{}
			svc := NewService(store, entropy.NewSeededSource(nil), sequencer.NewManual(0),
				Config{MaxOwned: 2}, WithNotifier(notifier))

			_, err := svc.Register(context.Background(), "alice")
			if err != sentinel { //nolint:errorlint // Must be the identical value
				t.Errorf("Register() error = %v, want %v", err, sentinel)
			}
			if store.commits != 1 {
				t.Errorf("TryCommit called %d times, want exactly 1 (no retry)", store.commits)
			}
			if len(notifier.snapshot()) != 0 {
				t.Error("event emitted for a failed registration")
			}
		})
	}
}

func TestRegister_EntropyFailure(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store, failingSource{}, sequencer.NewManual(0), Config{MaxOwned: 2})

	if _, err := svc.Register(context.Background(), "alice"); err == nil {
		t.Fatal("Register() expected error when entropy fails")
	}
	if store.commits != 0 {
		t.Error("store touched after entropy failure")
	}
}

func TestRegister_CancelledContext(t *testing.T) {
	f := newFixture(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.svc.Register(ctx, "alice"); !errors.Is(err, context.Canceled) {
		t.Errorf("Register() error = %v, want context.Canceled", err)
	}
	if n, _ := f.store.Count(context.Background()); n != 0 { //nolint:errcheck // MemoryStore never errors
		t.Errorf("Count() = %d, want 0", n)
	}
}

func TestRegister_NotifyFailureDoesNotFailRegistration(t *testing.T) {
	f := newFixture(t, 2)
	f.notifier.err = events.ErrClosed

	id, err := f.svc.Register(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if ok, _ := f.svc.Contains(context.Background(), id); !ok { //nolint:errcheck // MemoryStore never errors
		t.Error("device not committed")
	}
}

func TestMint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	id := device.ID{0x01, 0x02}

	if err := f.svc.Mint(ctx, "alice", id); err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if err := f.svc.Mint(ctx, "bob", id); !errors.Is(err, device.ErrDuplicateID) {
		t.Errorf("second Mint() error = %v, want ErrDuplicateID", err)
	}
	if err := f.svc.Mint(ctx, "", device.ID{0x03}); !errors.Is(err, device.ErrInvalidOwner) {
		t.Errorf("Mint(\"\") error = %v, want ErrInvalidOwner", err)
	}

	rec, err := f.svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Owner != "alice" {
		t.Errorf("owner = %q, want alice", rec.Owner)
	}
	if got := len(f.notifier.snapshot()); got != 1 {
		t.Errorf("notified %d events, want 1", got)
	}
}

func TestRegister_EventTimestamp(t *testing.T) {
	fixed := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, 2, WithClock(func() time.Time { return fixed }))

	if _, err := f.svc.Register(context.Background(), "alice"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if got := f.notifier.snapshot()[0].RegisteredAt; !got.Equal(fixed) {
		t.Errorf("RegisteredAt = %v, want %v", got, fixed)
	}
}

func TestRegister_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { tp.Shutdown(context.Background()) }) //nolint:errcheck // Test cleanup

	f := newFixture(t, 1, WithTracerProvider(tp))
	ctx := context.Background()

	id, err := f.svc.Register(ctx, "alice")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := f.svc.Register(ctx, "alice"); err == nil {
		t.Fatal("second Register() should exceed the limit")
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}

	ok := spans[0]
	if ok.Name() != "mint.Register" {
		t.Errorf("span name = %q, want mint.Register", ok.Name())
	}
	var gotID string
	for _, kv := range ok.Attributes() {
		if kv.Key == "device.id" {
			gotID = kv.Value.AsString()
		}
	}
	if gotID != id.String() {
		t.Errorf("device.id attribute = %q, want %q", gotID, id)
	}

	if spans[1].Status().Code != codes.Error {
		t.Errorf("failed span status = %v, want Error", spans[1].Status().Code)
	}
}

func TestRegister_ConcurrentCallers(t *testing.T) {
	loop := sequencer.NewLoop(time.Second)
	loop.Start()
	t.Cleanup(loop.Close)

	store := device.NewMemoryStore(1)
	svc := NewService(store, entropy.NewCryptoSource(), loop, Config{MaxOwned: 1})

	const callers = 25
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[device.ID]bool)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(owner device.Owner) {
			defer wg.Done()
			id, err := svc.Register(context.Background(), owner)
			if err != nil {
				t.Errorf("Register(%s) error = %v", owner, err)
				return
			}
			mu.Lock()
			ids[id] = true
			mu.Unlock()
		}(device.Owner(fmt.Sprintf("owner-%d", i)))
	}
	wg.Wait()

	if len(ids) != callers {
		t.Errorf("got %d distinct ids, want %d", len(ids), callers)
	}
	if n, _ := svc.Count(context.Background()); n != callers { //nolint:errcheck // MemoryStore never errors
		t.Errorf("Count() = %d, want %d", n, callers)
	}
	if svc.MaxOwned() != 1 {
		t.Errorf("MaxOwned() = %d, want 1", svc.MaxOwned())
	}
}
