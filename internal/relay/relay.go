package relay

import (
	"fmt"
	"strings"
)

// State is the logical level of the relay output.
type State int

const (
	// Unknown is the state before the first command has been applied.
	Unknown State = iota

	// Low means the output is driven low.
	Low

	// High means the output is driven high.
	High
)

// String returns the state name used in log events ("actuation: High").
func (s State) String() string {
	switch s {
	case Low:
		return "Low"
	case High:
		return "High"
	default:
		return "Unknown"
	}
}

// Mode selects the actuator variant.
type Mode string

const (
	// ModeSimulated records commands without touching hardware.
	ModeSimulated Mode = "simulated"

	// ModeGPIO drives a real GPIO pin.
	ModeGPIO Mode = "gpio"
)

// ParseMode converts a configuration string to a Mode.
//
// Matching is case-insensitive. "real" is accepted as an alias for gpio.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeSimulated):
		return ModeSimulated, nil
	case string(ModeGPIO), "real":
		return ModeGPIO, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Actuator is the capability the agent uses to drive the relay.
//
// Implementations must be safe for concurrent use, although the agent only
// ever has one writer at a time.
type Actuator interface {
	// SetHigh drives the output high. Applying it twice leaves the output high.
	SetHigh() error

	// SetLow drives the output low.
	SetLow() error

	// Shutdown releases any claimed hardware. Calling it more than once is a no-op.
	Shutdown() error

	// State returns the last applied logical state.
	State() State

	// Pin returns the configured pin identifier.
	Pin() string

	// Mode returns the actuator variant.
	Mode() Mode
}

// Logger is the logging interface used by actuators.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger discards everything.
type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Open constructs the actuator for the given mode.
//
// Parameters:
//   - pin: Pin identifier (GPIO number, chip name or header alias)
//   - mode: ModeGPIO or ModeSimulated
//   - logger: Optional logger (nil discards)
//
// Returns:
//   - Actuator: Ready actuator with state Unknown
//   - error: Wrapping ErrHardwareUnavailable if a GPIO pin cannot be claimed
func Open(pin string, mode Mode, logger Logger) (Actuator, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	switch mode {
	case ModeSimulated:
		return NewSimulated(pin, logger), nil
	case ModeGPIO:
		return NewGPIO(pin, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}
