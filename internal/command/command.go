// Package command decodes relay command payloads received from the broker.
//
// Decoding is pure and total: every payload maps to exactly one Command and
// nothing is ever returned as an error. Payloads that do not match a known
// keyword decode to NoOp, which callers treat as "ignore this message".
//
// Recognised payloads (case-insensitive, surrounding whitespace ignored):
//
//	ON, 1   -> SetHigh
//	OFF, 0  -> SetLow
package command

import (
	"bytes"
	"strings"
)

// Command is the actuation requested by a single message.
type Command int

const (
	// NoOp means the payload was not recognised and must be ignored.
	NoOp Command = iota

	// SetHigh drives the relay output high.
	SetHigh

	// SetLow drives the relay output low.
	SetLow
)

// String returns the command name used in logs and the journal.
func (c Command) String() string {
	switch c {
	case SetHigh:
		return "SetHigh"
	case SetLow:
		return "SetLow"
	default:
		return "NoOp"
	}
}

// Decode maps a raw payload to a Command.
//
// Parameters:
//   - payload: Message payload as delivered by the broker (may be nil)
//
// Returns:
//   - Command: SetHigh, SetLow, or NoOp for anything unrecognised
func Decode(payload []byte) Command {
	text := string(bytes.TrimSpace(payload))

	switch {
	case strings.EqualFold(text, "ON"), text == "1":
		return SetHigh
	case strings.EqualFold(text, "OFF"), text == "0":
		return SetLow
	default:
		return NoOp
	}
}
