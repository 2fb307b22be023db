package relay

import "errors"

// Domain-specific errors for relay operations.
var (
	// ErrHardwareUnavailable is returned when a GPIO pin cannot be claimed.
	ErrHardwareUnavailable = errors.New("relay: hardware unavailable")

	// ErrReleased is returned when a GPIO actuator is driven after Shutdown.
	ErrReleased = errors.New("relay: pin already released")

	// ErrUnknownMode is returned by Open for an unsupported actuation mode.
	ErrUnknownMode = errors.New("relay: unknown actuation mode")
)
