package relay

import (
	"fmt"
	"strings"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	host "periph.io/x/host/v3"
)

// hostInit loads the periph host drivers. Replaced in tests.
var hostInit = func() error {
	_, err := host.Init()
	return err
}

// GPIO is an Actuator backed by a real digital output pin.
type GPIO struct {
	pin    string
	io     gpio.PinIO
	logger Logger

	mu       sync.Mutex
	state    State
	released bool
}

// NewGPIO claims the named pin.
//
// The pin level is left untouched until the first SetHigh/SetLow so the
// relay does not switch at startup.
//
// Parameters:
//   - pin: Pin identifier understood by gpioreg.ByName
//   - logger: Optional logger (nil discards)
//
// Returns:
//   - *GPIO: Claimed pin with state Unknown
//   - error: Wrapping ErrHardwareUnavailable when drivers fail or the pin is unknown
func NewGPIO(pin string, logger Logger) (*GPIO, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	name := strings.TrimSpace(pin)
	if name == "" {
		return nil, fmt.Errorf("%w: pin identifier is empty", ErrHardwareUnavailable)
	}

	if err := hostInit(); err != nil {
		return nil, fmt.Errorf("%w: loading host drivers: %w", ErrHardwareUnavailable, err)
	}

	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: no GPIO pin named %q", ErrHardwareUnavailable, name)
	}

	return newGPIO(pin, p, logger), nil
}

func newGPIO(pin string, p gpio.PinIO, logger Logger) *GPIO {
	logger.Info("GPIO relay claimed", "pin", pin, "gpio", p.Name(), "number", p.Number())
	return &GPIO{pin: pin, io: p, logger: logger}
}

// SetHigh drives the pin high.
func (g *GPIO) SetHigh() error {
	return g.set(High, gpio.High)
}

// SetLow drives the pin low.
func (g *GPIO) SetLow() error {
	return g.set(Low, gpio.Low)
}

func (g *GPIO) set(state State, level gpio.Level) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.released {
		return ErrReleased
	}
	if err := g.io.Out(level); err != nil {
		return fmt.Errorf("driving %s %s: %w", g.io.Name(), state, err)
	}
	g.state = state
	return nil
}

// Shutdown halts the pin. Subsequent calls return nil without touching it again.
func (g *GPIO) Shutdown() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.released {
		return nil
	}
	g.released = true

	if err := g.io.Halt(); err != nil {
		return fmt.Errorf("halting %s: %w", g.io.Name(), err)
	}
	g.logger.Info("GPIO relay released", "pin", g.pin)
	return nil
}

// State returns the last level successfully driven.
func (g *GPIO) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Pin returns the configured pin identifier.
func (g *GPIO) Pin() string { return g.pin }

// Mode returns ModeGPIO.
func (g *GPIO) Mode() Mode { return ModeGPIO }
