// Package events delivers registry notifications to subscribers.
//
// The mint service calls Emitter.Notify after a device has been committed.
// A single dispatch goroutine hands each event to every subscriber in the
// order the commits happened. Subscribers never run on the caller's
// goroutine, so a slow MQTT broker or audit write cannot stall
// registration.
//
// Delivery is at-least-once within the retry budget: a failing handler is
// retried RetryAttempts times, RetryDelay apart, then the failure is
// logged and the event dropped for that subscriber only.
//
// Subscriber adapters for MQTT, Redis pub/sub, WebSocket broadcast and
// metrics live in subscribers.go; the audit subscriber lives in the audit
// package.
package events
