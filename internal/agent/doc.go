// Package agent orchestrates the relay agent: it connects the broker
// session, subscribes to the command topic, applies decoded commands to the
// relay and tears everything down on stop or connection loss.
//
// Lifecycle:
//
//	Idle -> Connecting -> Subscribing -> Listening -> Closing -> Closed
//
// Connect and subscribe failures go straight to Closed. A fatal connection
// loss also moves Listening directly to Closed without the graceful Closing
// step. On every path the session is closed and the actuator is shut down
// exactly once, after any in-flight reaction has returned.
//
// Run never exits the process. It returns an error and the caller maps it
// to a status with ExitCode.
package agent
