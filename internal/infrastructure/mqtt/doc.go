// Package mqtt connects the registry to an MQTT broker.
//
// The registry only publishes: every committed registration is announced
// on registry/core/event/device_registered, and the service's own
// liveness is kept in the retained registry/system/status topic (online on
// connect, offline on graceful shutdown, and an offline Last Will for
// crashes).
//
// The client wraps eclipse/paho.mqtt.golang with automatic reconnection,
// input validation and sentinel errors:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Publish(mqtt.Topics{}.CoreEvent("device_registered"), payload, 1, false)
package mqtt
