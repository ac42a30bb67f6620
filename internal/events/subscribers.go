package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChannelDeviceRegistered is the WebSocket channel registrations are broadcast on.
const ChannelDeviceRegistered = "device.registered"

// MQTTPublisher is the subset of the MQTT client used by MQTTHandler.
type MQTTPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTHandler publishes each event as a JSON envelope to topic.
func MQTTHandler(client MQTTPublisher, topic string, qos byte) Handler {
	return func(_ context.Context, ev DeviceRegistered) error {
		payload, err := json.Marshal(NewEnvelope(ev))
		if err != nil {
			return fmt.Errorf("encoding event: %w", err)
		}
		if err := client.Publish(topic, payload, qos, false); err != nil {
			return fmt.Errorf("publishing to %s: %w", topic, err)
		}
		return nil
	}
}

// RedisPublisher is the subset of the go-redis client used by RedisHandler.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisHandler publishes each event as a JSON envelope on a pub/sub channel.
func RedisHandler(client RedisPublisher, channel string) Handler {
	return func(ctx context.Context, ev DeviceRegistered) error {
		payload, err := json.Marshal(NewEnvelope(ev))
		if err != nil {
			return fmt.Errorf("encoding event: %w", err)
		}
		if err := client.Publish(ctx, channel, payload).Err(); err != nil {
			return fmt.Errorf("publishing to %s: %w", channel, err)
		}
		return nil
	}
}

// Broadcaster is the WebSocket hub interface.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// BroadcastHandler forwards each event to WebSocket clients. Broadcast
// never fails, so neither does the handler.
func BroadcastHandler(hub Broadcaster) Handler {
	return func(_ context.Context, ev DeviceRegistered) error {
		hub.Broadcast(ChannelDeviceRegistered, ev)
		return nil
	}
}

// MetricsRecorder is the time-series writer interface.
type MetricsRecorder interface {
	RecordRegistration(owner string, at time.Time)
}

// MetricsHandler records a registration data point per event.
func MetricsHandler(rec MetricsRecorder) Handler {
	return func(_ context.Context, ev DeviceRegistered) error {
		rec.RecordRegistration(string(ev.Owner), ev.RegisteredAt)
		return nil
	}
}
