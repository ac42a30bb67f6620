package events

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-registry/internal/device"
)

// TypeDeviceRegistered names the only event the registry emits.
const TypeDeviceRegistered = "device_registered"

// DeviceRegistered is emitted once per committed registration.
type DeviceRegistered struct {
	ID           device.ID    `json:"id"`
	Owner        device.Owner `json:"owner"`
	RegisteredAt time.Time    `json:"registered_at"`
}

// Envelope is the wire form published to external subscribers.
type Envelope struct {
	EventType string           `json:"event_type"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   DeviceRegistered `json:"payload"`
}

// NewEnvelope wraps ev for publishing.
func NewEnvelope(ev DeviceRegistered) Envelope {
	return Envelope{
		EventType: TypeDeviceRegistered,
		Timestamp: ev.RegisteredAt,
		Payload:   ev,
	}
}

// Handler receives events from the emitter. A returned error triggers a
// retry.
type Handler func(ctx context.Context, ev DeviceRegistered) error

// Logger is the logging interface used by the emitter.
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
