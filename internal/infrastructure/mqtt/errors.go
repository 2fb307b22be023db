package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when an operation needs an active session.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the connect handshake fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrSubscribeFailed is returned when the broker rejects or never acknowledges a subscription.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrNotSubscribed is reported for a message delivered while no subscription is active.
	ErrNotSubscribed = errors.New("mqtt: message delivered without an active subscription")

	// ErrConnectionLost wraps the cause reported by the transport when the connection drops.
	ErrConnectionLost = errors.New("mqtt: connection lost")

	// ErrReconnectExhausted is reported when the reconnect policy runs out of attempts.
	ErrReconnectExhausted = errors.New("mqtt: reconnect attempts exhausted")

	// ErrHandlerPanic wraps a panic recovered from a message handler.
	ErrHandlerPanic = errors.New("mqtt: handler panic")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("mqtt: session closed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when a topic filter is empty or malformed.
	ErrInvalidTopic = errors.New("mqtt: invalid topic filter")
)
