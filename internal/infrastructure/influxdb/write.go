package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementRegistrations is the measurement written per registration.
const MeasurementRegistrations = "device_registrations"

// RecordRegistration writes one registration point for owner at the given
// time. Non-blocking; dropped silently when disconnected.
func (c *Client) RecordRegistration(owner string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(registrationPoint(owner, at))
}

func registrationPoint(owner string, at time.Time) *write.Point {
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(
		MeasurementRegistrations,
		map[string]string{"owner": owner},
		map[string]any{"count": int64(1)},
		at,
	)
}
