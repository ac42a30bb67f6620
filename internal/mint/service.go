package mint

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/nerrad567/gray-logic-registry/internal/device"
	"github.com/nerrad567/gray-logic-registry/internal/entropy"
	"github.com/nerrad567/gray-logic-registry/internal/events"
	"github.com/nerrad567/gray-logic-registry/internal/sequencer"
)

// TracerName is the instrumentation name of the service's spans.
const TracerName = "github.com/nerrad567/gray-logic-registry/internal/mint"

// Notifier receives an event for every committed registration.
type Notifier interface {
	Notify(ctx context.Context, ev events.DeviceRegistered) error
}

// Logger defines the logging interface used by the Service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, events.DeviceRegistered) error { return nil }

// Config holds the registry parameters the service reports and uses.
type Config struct {
	// MaxOwned is the per-owner device limit. The store enforces it; the
	// service only reports it.
	MaxOwned int

	// ContextTag is mixed into entropy draws and identifiers.
	ContextTag string
}

// Option customises a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithNotifier sets the receiver of DeviceRegistered events.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithTracerProvider takes the service tracer from tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(TracerName)
		}
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service mints device identities.
//
// Thread Safety: all methods are safe for concurrent use; writes are
// serialised by the sequencer.
type Service struct {
	store     device.Store
	entropy   entropy.Source
	seq       sequencer.Sequencer
	generator *device.Generator
	cfg       Config
	tag       []byte

	notifier Notifier
	logger   Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewService wires a Service. An empty ContextTag falls back to
// device.DefaultContextTag.
func NewService(store device.Store, src entropy.Source, seq sequencer.Sequencer, cfg Config, opts ...Option) *Service {
	if cfg.ContextTag == "" {
		cfg.ContextTag = device.DefaultContextTag
	}

	s := &Service{
		store:     store,
		entropy:   src,
		seq:       seq,
		generator: device.NewGenerator(),
		cfg:       cfg,
		tag:       []byte(cfg.ContextTag),
		notifier:  noopNotifier{},
		logger:    noopLogger{},
		tracer:    noop.NewTracerProvider().Tracer(TracerName),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxOwned returns the configured per-owner limit.
func (s *Service) MaxOwned() int {
	return s.cfg.MaxOwned
}

// Register mints a new device for caller and returns its identifier.
//
// Errors:
//   - device.ErrInvalidOwner for an empty caller
//   - device.ErrDuplicateID, device.ErrCounterOverflow,
//     device.ErrOwnershipLimitExceeded from the store, unchanged
//   - the context error if ctx ended before the call was sequenced
func (s *Service) Register(ctx context.Context, caller device.Owner) (device.ID, error) {
	ctx, span := s.tracer.Start(ctx, "mint.Register",
		trace.WithAttributes(attribute.String("device.owner", string(caller))))
	defer span.End()

	if err := caller.Validate(); err != nil {
		recordError(span, err)
		return device.ID{}, err
	}

	var minted device.ID
	err := s.seq.Do(ctx, func(slot sequencer.Slot) error {
		seed, err := s.entropy.Draw(s.tag)
		if err != nil {
			return fmt.Errorf("drawing entropy: %w", err)
		}

		candidate := s.generator.Generate(seed, slot.Index, slot.Round, s.tag)
		span.SetAttributes(
			attribute.Int64("sequencer.round", int64(slot.Round)), //nolint:gosec // Attribute only
			attribute.Int64("sequencer.index", int64(slot.Index)),
		)

		if err := s.commit(ctx, device.Record{ID: candidate, Owner: caller}); err != nil {
			return err
		}
		minted = candidate
		return nil
	})
	if err != nil {
		recordError(span, err)
		return device.ID{}, err
	}

	span.SetAttributes(attribute.String("device.id", minted.String()))
	return minted, nil
}

// Mint commits a caller-supplied identifier for owner with the same
// checks and notification as Register.
func (s *Service) Mint(ctx context.Context, owner device.Owner, id device.ID) error {
	ctx, span := s.tracer.Start(ctx, "mint.Mint",
		trace.WithAttributes(
			attribute.String("device.owner", string(owner)),
			attribute.String("device.id", id.String()),
		))
	defer span.End()

	if err := owner.Validate(); err != nil {
		recordError(span, err)
		return err
	}

	err := s.seq.Do(ctx, func(sequencer.Slot) error {
		return s.commit(ctx, device.Record{ID: id, Owner: owner})
	})
	if err != nil {
		recordError(span, err)
		return err
	}
	return nil
}

// commit runs inside a sequencer slot. Once started it is not cut short
// by the caller's context.
func (s *Service) commit(ctx context.Context, rec device.Record) error {
	ctx = context.WithoutCancel(ctx)

	if err := s.store.TryCommit(ctx, rec); err != nil {
		s.logger.Warn("device registration rejected",
			"owner", string(rec.Owner),
			"id", rec.ID.String(),
			"error", err,
		)
		return err
	}

	s.logger.Info("device registered", "owner", string(rec.Owner), "id", rec.ID.String())

	ev := events.DeviceRegistered{ID: rec.ID, Owner: rec.Owner, RegisteredAt: s.now().UTC()}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		// The record is committed; only the announcement is lost.
		s.logger.Error("failed to emit device registered event",
			"id", rec.ID.String(),
			"error", err,
		)
	}
	return nil
}

// Get returns the record for id.
func (s *Service) Get(ctx context.Context, id device.ID) (device.Record, error) {
	return s.store.Get(ctx, id)
}

// Contains reports whether id is registered.
func (s *Service) Contains(ctx context.Context, id device.ID) (bool, error) {
	return s.store.Contains(ctx, id)
}

// OwnedBy returns owner's devices in registration order.
func (s *Service) OwnedBy(ctx context.Context, owner device.Owner) ([]device.ID, error) {
	return s.store.OwnedBy(ctx, owner)
}

// Count returns the number of registered devices.
func (s *Service) Count(ctx context.Context) (uint64, error) {
	return s.store.Count(ctx)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
