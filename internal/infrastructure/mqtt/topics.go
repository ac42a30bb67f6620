package mqtt

import "fmt"

// Topic prefixes.
const (
	// TopicPrefixCore is the base for registry events.
	TopicPrefixCore = "registry/core"

	// TopicPrefixSystem is the base for service status topics.
	TopicPrefixSystem = "registry/system"
)

// Topics builds registry MQTT topics.
//
//	topic := mqtt.Topics{}.CoreEvent("device_registered")
//	// registry/core/event/device_registered
type Topics struct{}

// CoreEvent returns the topic for a registry event type.
func (Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, eventType)
}

// AllCoreEvents is the wildcard matching every registry event.
func (Topics) AllCoreEvents() string {
	return TopicPrefixCore + "/event/+"
}

// SystemStatus returns the retained liveness topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
