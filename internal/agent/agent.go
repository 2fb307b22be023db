package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/michalvitousek/miot/internal/infrastructure/config"
	"github.com/michalvitousek/miot/internal/infrastructure/mqtt"
	"github.com/michalvitousek/miot/internal/journal"
	"github.com/michalvitousek/miot/internal/metrics"
	"github.com/michalvitousek/miot/internal/relay"
)

// journalTimeout bounds a single journal write from the reaction path.
const journalTimeout = 2 * time.Second

// State is the agent lifecycle state.
type State int

// Agent states.
const (
	StateIdle State = iota
	StateConnecting
	StateSubscribing
	StateListening
	StateClosing
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateSubscribing:
		return "Subscribing"
	case StateListening:
		return "Listening"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Logger is the logging interface used by the agent.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Session is the broker session the agent drives. *mqtt.Session implements it.
type Session interface {
	SetLogger(logger mqtt.Logger)
	SetOnConnectionLost(callback func(err error))
	SetOnDisconnect(callback func(err error))
	SetOnHandlerError(callback func(msg mqtt.Message, err error))
	SetOnStateChange(callback func(mqtt.State))
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, topic string, qos byte, handler mqtt.Handler) error
	Close() error
	State() mqtt.State
	HealthCheck(ctx context.Context) error
}

// Journal records applied actuations. *journal.SQLiteRepository implements it.
type Journal interface {
	Record(ctx context.Context, e *journal.Entry) error
	Latest(ctx context.Context, pin string) (*journal.Entry, error)
}

// Telemetry receives actuation and session events. *influxdb.Client implements it.
type Telemetry interface {
	WriteActuation(pin, state, topic string)
	WriteSessionEvent(clientID, state string)
}

// Deps holds the agent's collaborators.
// Config and Actuator are required; everything else is optional.
type Deps struct {
	Config    *config.Config
	Actuator  relay.Actuator
	Logger    Logger
	Session   Session
	Journal   Journal
	Telemetry Telemetry
	Metrics   *metrics.Metrics
}

// Agent connects one broker session to one relay.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Run may be called once.
type Agent struct {
	cfg       *config.Config
	actuator  relay.Actuator
	session   Session
	logger    Logger
	journal   Journal
	telemetry Telemetry
	metrics   *metrics.Metrics

	mu    sync.Mutex
	state State

	// actMu guards actuator transitions and shutdown.
	actMu    sync.Mutex
	released bool

	lost         chan error
	teardownOnce sync.Once

	applied       atomic.Uint64
	ignored       atomic.Uint64
	rejected      atomic.Uint64
	failed        atomic.Uint64
	lastActuation atomic.Int64
}

// New creates an idle agent. The agent owns the actuator from here on and
// shuts it down when it stops.
//
// Returns:
//   - *Agent: Agent in StateIdle
//   - error: If Config or Actuator is missing
func New(deps Deps) (*Agent, error) {
	if deps.Config == nil {
		return nil, errors.New("agent: config is required")
	}
	if deps.Actuator == nil {
		return nil, errors.New("agent: actuator is required")
	}

	a := &Agent{
		cfg:       deps.Config,
		actuator:  deps.Actuator,
		session:   deps.Session,
		logger:    deps.Logger,
		journal:   deps.Journal,
		telemetry: deps.Telemetry,
		metrics:   deps.Metrics,
		lost:      make(chan error, 1),
	}
	if a.logger == nil {
		a.logger = noopLogger{}
	}
	if a.session == nil {
		a.session = mqtt.New(deps.Config.MQTT)
	}

	a.session.SetLogger(a.logger)
	a.session.SetOnConnectionLost(a.handleConnectionLost)
	a.session.SetOnDisconnect(a.handleDisconnect)
	a.session.SetOnHandlerError(a.handleReactionError)
	a.session.SetOnStateChange(a.handleSessionState)

	return a, nil
}

// Run starts the agent and blocks until it stops.
//
// Cancelling ctx is the external stop request: the agent moves through
// Closing to Closed and Run returns nil. A stop requested while still
// connecting or subscribing is also a graceful stop.
//
// Returns:
//   - nil: Graceful stop
//   - error: Wrapping ErrConnect, ErrSubscribe or ErrConnectionLost
func (a *Agent) Run(ctx context.Context) error {
	if !a.transition(StateIdle, StateConnecting) {
		return ErrAlreadyStarted
	}

	a.logLastActuation(ctx)

	mcfg := a.cfg.MQTT
	if err := a.session.Connect(ctx); err != nil {
		a.teardown()
		a.setState(StateClosed)
		if ctx.Err() != nil {
			a.logger.Info("agent stopped", "reason", "stop requested while connecting")
			return nil
		}
		a.logger.Error("mqtt connect failed", "broker", mcfg.BrokerURL(), "error", err)
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}

	a.setState(StateSubscribing)
	if err := a.session.Subscribe(ctx, mcfg.Topic, byte(mcfg.QoS), a.react); err != nil {
		a.teardown()
		a.setState(StateClosed)
		if ctx.Err() != nil {
			a.logger.Info("agent stopped", "reason", "stop requested while subscribing")
			return nil
		}
		a.logger.Error("subscribe failed", "topic", mcfg.Topic, "qos", mcfg.QoS, "error", err)
		return fmt.Errorf("%w: %w", ErrSubscribe, err)
	}

	a.setState(StateListening)
	a.logger.Info("listening",
		"topic", mcfg.Topic,
		"pin", a.actuator.Pin(),
		"mode", string(a.actuator.Mode()),
		"on_connection_lost", mcfg.OnLost,
	)

	select {
	case <-ctx.Done():
		a.setState(StateClosing)
		a.teardown()
		a.setState(StateClosed)
		a.logger.Info("agent stopped", "reason", "stop requested")
		return nil

	case cause := <-a.lost:
		a.setState(StateClosed)
		a.teardown()
		a.logger.Error("agent stopped", "reason", "connection lost", "error", cause)
		return fmt.Errorf("%w: %w", ErrConnectionLost, cause)
	}
}

// Close stops an agent that is not running, or releases resources early.
// It is idempotent and safe to call after Run has returned.
func (a *Agent) Close() error {
	a.teardown()
	a.setState(StateClosed)
	return nil
}

// State returns the current agent state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// HealthCheck reports whether the agent is listening with an active
// subscription.
func (a *Agent) HealthCheck(ctx context.Context) error {
	if state := a.State(); state != StateListening {
		return fmt.Errorf("agent: %s", state)
	}
	return a.session.HealthCheck(ctx)
}

// teardown closes the session, which waits for any in-flight reaction,
// then shuts the actuator down. It runs once.
func (a *Agent) teardown() {
	a.teardownOnce.Do(func() {
		if err := a.session.Close(); err != nil {
			a.logger.Warn("closing mqtt session", "error", err)
		}

		a.actMu.Lock()
		a.released = true
		err := a.actuator.Shutdown()
		a.actMu.Unlock()
		if err != nil {
			a.logger.Warn("relay shutdown failed", "pin", a.actuator.Pin(), "error", err)
			return
		}
		a.logger.Info("relay released", "pin", a.actuator.Pin())
	})
}

func (a *Agent) handleConnectionLost(err error) {
	select {
	case a.lost <- err:
	default:
	}
}

func (a *Agent) handleDisconnect(error) {
	if a.metrics != nil {
		a.metrics.ObserveConnectionLost()
	}
}

func (a *Agent) handleSessionState(state mqtt.State) {
	if a.metrics != nil {
		a.metrics.SetSessionState(int(state))
	}
	if a.telemetry != nil {
		a.telemetry.WriteSessionEvent(a.cfg.MQTT.Broker.ClientID, state.String())
	}
}

// logLastActuation reports the last journaled state for the pin. The state
// is informational only and never re-applied.
func (a *Agent) logLastActuation(ctx context.Context) {
	if a.journal == nil {
		return
	}

	entry, err := a.journal.Latest(ctx, a.actuator.Pin())
	switch {
	case errors.Is(err, journal.ErrNotFound):
		a.logger.Debug("no journaled actuation", "pin", a.actuator.Pin())
	case err != nil:
		a.logger.Warn("reading actuation journal", "error", err)
	default:
		a.logger.Info("last journaled actuation",
			"pin", entry.Pin,
			"state", entry.State,
			"at", entry.CreatedAt,
		)
	}
}

func (a *Agent) transition(from, to State) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != from {
		return false
	}
	a.state = to
	return true
}

func (a *Agent) setState(state State) {
	a.mu.Lock()
	a.state = state
	a.mu.Unlock()
}
