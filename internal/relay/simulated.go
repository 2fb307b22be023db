package relay

import "sync"

// Simulated is an Actuator that never touches hardware.
//
// It accepts any pin identifier, and SetHigh/SetLow never fail, even after
// Shutdown. Requested states are recorded and logged.
type Simulated struct {
	pin    string
	logger Logger

	mu       sync.Mutex
	state    State
	released bool
	history  []State
}

// NewSimulated creates a simulated actuator for the given pin identifier.
func NewSimulated(pin string, logger Logger) *Simulated {
	if logger == nil {
		logger = noopLogger{}
	}
	logger.Info("simulated relay configured", "pin", pin)
	return &Simulated{pin: pin, logger: logger}
}

// SetHigh records the High state.
func (s *Simulated) SetHigh() error {
	s.set(High)
	return nil
}

// SetLow records the Low state.
func (s *Simulated) SetLow() error {
	s.set(Low)
	return nil
}

func (s *Simulated) set(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
	s.history = append(s.history, state)
	s.logger.Info("simulated relay state", "pin", s.pin, "state", state.String())
}

// Shutdown marks the actuator released. Only the first call logs.
func (s *Simulated) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil
	}
	s.released = true
	s.logger.Info("simulated relay shutdown", "pin", s.pin)
	return nil
}

// State returns the last recorded state.
func (s *Simulated) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Released reports whether Shutdown has been called.
func (s *Simulated) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// History returns every state recorded so far, oldest first.
func (s *Simulated) History() []State {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]State, len(s.history))
	copy(out, s.history)
	return out
}

// Pin returns the configured pin identifier.
func (s *Simulated) Pin() string { return s.pin }

// Mode returns ModeSimulated.
func (s *Simulated) Mode() Mode { return ModeSimulated }
