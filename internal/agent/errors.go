package agent

import (
	"errors"

	"github.com/michalvitousek/miot/internal/infrastructure/config"
)

// Domain errors for the agent lifecycle.
var (
	// ErrConnect wraps a failure to establish the broker session.
	ErrConnect = errors.New("agent: connect failed")

	// ErrSubscribe wraps a rejected or failed subscription.
	ErrSubscribe = errors.New("agent: subscribe failed")

	// ErrConnectionLost wraps a fatal loss of the broker connection.
	ErrConnectionLost = errors.New("agent: connection lost")

	// ErrAlreadyStarted is returned when Run is called more than once.
	ErrAlreadyStarted = errors.New("agent: already started")
)

// Process exit statuses.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfigError = 2
)

// ExitCode maps an error returned by startup or Run to a process status:
// 0 for nil, 2 for configuration errors, 1 for everything else.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, config.ErrInvalidConfig):
		return ExitConfigError
	default:
		return ExitFailure
	}
}
