package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementActuation = "relay_actuation"
	measurementSession   = "relay_session"
)

// WriteActuation records one applied actuation.
//
// The point carries tag pin and fields state (1 High, 0 Low), level
// (the state name) and topic. The write is non-blocking.
//
// Example:
//
//	client.WriteActuation("17", "High", "home/relay")
func (c *Client) WriteActuation(pin, state, topic string) {
	if !c.IsConnected() {
		return
	}

	level := 0
	if state == "High" {
		level = 1
	}

	c.writeAPI.WritePoint(write.NewPoint(
		measurementActuation,
		map[string]string{"pin": pin},
		map[string]interface{}{
			"state": level,
			"level": state,
			"topic": topic,
		},
		time.Now(),
	))
}

// WriteSessionEvent records a broker session transition such as
// "SubscriptionActive" or "Disconnected".
func (c *Client) WriteSessionEvent(clientID, state string) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		measurementSession,
		map[string]string{"client_id": clientID},
		map[string]interface{}{"state": state},
		time.Now(),
	))
}
