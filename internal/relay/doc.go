// Package relay drives the single digital output that switches the relay.
//
// Two variants implement the Actuator capability and are selected once at
// construction time by Open:
//
//   - GPIO: a real pin resolved through periph.io host drivers
//   - Simulated: no hardware access, state is only recorded and logged
//
// The reaction path never branches on the mode; it only sees an Actuator.
//
// # Ownership
//
// An Actuator is owned by exactly one agent. Every state transition is
// guarded by the actuator's own mutex, and Shutdown is idempotent so it can
// be called on every exit path, including fatal ones.
//
// # Pin identifiers
//
// GPIO pins are resolved with gpioreg.ByName, which accepts a GPIO number
// ("17"), a chip name ("GPIO17") or a header alias ("P1_11").
package relay
