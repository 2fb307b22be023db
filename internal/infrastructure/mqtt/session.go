package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/michalvitousek/miot/internal/infrastructure/config"
)

// State is the lifecycle state of a Session.
type State int

// Session states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSubscriptionActive
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateSubscriptionActive:
		return "SubscriptionActive"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Logger interface for optional logging support.
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

// pahoClient is the subset of pahomqtt.Client used by Session.
type pahoClient interface {
	IsConnected() bool
	Connect() pahomqtt.Token
	Disconnect(quiesce uint)
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
}

// subscribeResulter is implemented by *pahomqtt.SubscribeToken.
type subscribeResulter interface {
	Result() map[string]byte
}

// subscription is the single filter a Session listens on.
type subscription struct {
	topic   string
	qos     byte
	handler Handler
}

// Session owns one broker connection and at most one subscription.
//
// Messages are handed to the registered Handler one at a time, in the order
// the transport delivers them. Close waits for an in-flight handler before
// returning, so resources used by the handler can be released afterwards.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Close must not be called from inside a Handler.
type Session struct {
	cfg       config.MQTTConfig
	newClient func(*pahomqtt.ClientOptions) pahoClient

	mu       sync.Mutex
	state    State
	client   pahoClient
	opts     *pahomqtt.ClientOptions
	sub      *subscription
	pending  pahomqtt.Token
	attempts int

	// dispatchMu serialises handler calls and is the barrier used by Close.
	dispatchMu sync.Mutex
	lostOnce   sync.Once

	logger         Logger
	onLost         func(error)
	onDisconnect   func(error)
	onHandlerError func(Message, error)
	onStateChange  func(State)
}

// New creates a disconnected Session for the given configuration.
// Callback setters must be called before Connect.
func New(cfg config.MQTTConfig) *Session {
	return &Session{
		cfg:    cfg,
		logger: noopLogger{},
		newClient: func(o *pahomqtt.ClientOptions) pahoClient {
			return pahomqtt.NewClient(o)
		},
	}
}

// SetLogger sets the logger used for session events.
func (s *Session) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetOnConnectionLost sets the fatal callback. It is invoked at most once:
// on the first connection loss under the exit policy (ErrConnectionLost),
// or when the reconnect policy gives up (ErrReconnectExhausted).
func (s *Session) SetOnConnectionLost(callback func(err error)) {
	s.onLost = callback
}

// SetOnDisconnect sets a callback invoked on every connection loss,
// fatal or not.
func (s *Session) SetOnDisconnect(callback func(err error)) {
	s.onDisconnect = callback
}

// SetOnHandlerError sets the callback receiving handler errors, recovered
// panics and messages rejected with ErrNotSubscribed.
func (s *Session) SetOnHandlerError(callback func(msg Message, err error)) {
	s.onHandlerError = callback
}

// SetOnStateChange sets a callback invoked after every state transition.
func (s *Session) SetOnStateChange(callback func(State)) {
	s.onStateChange = callback
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect establishes the broker connection and blocks until the handshake
// completes, fails, or ctx is done.
//
// Returns:
//   - error: Wrapping ErrConnectionFailed (session back to Disconnected),
//     or ErrClosed if Close was called
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateDisconnected:
	case StateClosed:
		s.mu.Unlock()
		return ErrClosed
	default:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: session already %s", ErrConnectionFailed, state)
	}

	opts, err := buildClientOptions(s.cfg)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		s.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.handleConnectionLost(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		s.handleReconnecting()
	})

	client := s.newClient(opts)
	s.opts = opts
	s.client = client
	s.state = StateConnecting
	s.mu.Unlock()
	s.notifyState(StateConnecting)

	broker := s.cfg.BrokerURL()
	s.logger.Debug("mqtt connecting", "broker", broker, "client_id", s.cfg.Broker.ClientID)

	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		s.transition(StateConnecting, StateDisconnected)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}

	if err := token.Error(); err != nil {
		s.transition(StateConnecting, StateDisconnected)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if !s.transition(StateConnecting, StateConnected) {
		if s.State() == StateClosed {
			return ErrClosed
		}
		return fmt.Errorf("%w: connection dropped during handshake", ErrConnectionFailed)
	}

	s.logger.Info("mqtt connected",
		"broker", broker,
		"client_id", s.cfg.Broker.ClientID,
		"clean_session", s.cfg.CleanSession,
	)
	return nil
}

// Subscribe registers the session's single subscription and blocks until
// the broker acknowledges it or ctx is done.
//
// Messages published above qos are downgraded by the broker; the granted
// level is logged when it differs from the request.
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected, or wrapping ErrSubscribeFailed
func (s *Session) Subscribe(ctx context.Context, topic string, qos byte, handler Handler) error {
	if err := ValidateFilter(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	s.mu.Lock()
	if s.state == StateSubscriptionActive || s.sub != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: session already has a subscription", ErrSubscribeFailed)
	}
	if s.state != StateConnected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.sub = &subscription{topic: topic, qos: qos, handler: handler}
	client := s.client
	s.mu.Unlock()

	token := client.Subscribe(topic, qos, s.deliver)
	s.mu.Lock()
	s.pending = token
	s.mu.Unlock()

	select {
	case <-token.Done():
	case <-ctx.Done():
		s.clearSubscription()
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, ctx.Err())
	}

	granted, err := checkSuback(token, topic)
	if err != nil {
		s.clearSubscription()
		return err
	}

	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
	if !s.transition(StateConnected, StateSubscriptionActive) && s.State() != StateSubscriptionActive {
		return fmt.Errorf("%w: session %s before subscription completed", ErrSubscribeFailed, s.State())
	}

	if granted >= 0 && byte(granted) < qos {
		s.logger.Warn("subscription granted at lower QoS", "topic", topic, "requested", qos, "granted", granted)
	}
	s.logger.Info("subscribed", "topic", topic, "qos", qos, "wildcard", HasWildcard(topic))
	return nil
}

// checkSuback inspects a completed subscribe token. It returns the granted
// QoS, or -1 when the token does not expose SUBACK codes.
func checkSuback(token pahomqtt.Token, topic string) (int, error) {
	if err := token.Error(); err != nil {
		return -1, fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	st, ok := token.(subscribeResulter)
	if !ok {
		return -1, nil
	}
	code, ok := st.Result()[topic]
	if !ok {
		return -1, nil
	}
	if code == subscribeFailure {
		return -1, fmt.Errorf("%w: broker rejected %q", ErrSubscribeFailed, topic)
	}
	return int(code), nil
}

func (s *Session) clearSubscription() {
	s.mu.Lock()
	s.sub = nil
	s.pending = nil
	s.mu.Unlock()
}

// deliver is the paho message callback. It runs on paho's router goroutine.
func (s *Session) deliver(_ pahomqtt.Client, pm pahomqtt.Message) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	msg := fromPaho(pm)

	state, sub := s.activeSubscription()
	if state != StateSubscriptionActive || sub == nil {
		s.reportHandlerError(msg, fmt.Errorf("%w: session %s", ErrNotSubscribed, state))
		return
	}

	if err := invoke(sub.handler, msg); err != nil {
		s.reportHandlerError(msg, err)
	}
}

// activeSubscription returns the current state and subscription. A message
// routed after the SUBACK but before Subscribe has resumed promotes the
// session to SubscriptionActive here.
func (s *Session) activeSubscription() (State, *subscription) {
	s.mu.Lock()
	if s.state == StateConnected && s.pending != nil {
		select {
		case <-s.pending.Done():
			if s.sub != nil {
				if _, err := checkSuback(s.pending, s.sub.topic); err == nil {
					s.state = StateSubscriptionActive
					s.pending = nil
					state, sub := s.state, s.sub
					s.mu.Unlock()
					s.notifyState(state)
					return state, sub
				}
			}
		default:
		}
	}
	state, sub := s.state, s.sub
	s.mu.Unlock()
	return state, sub
}

// invoke calls handler, converting a panic into ErrHandlerPanic.
func invoke(handler Handler, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return handler(msg)
}

func (s *Session) reportHandlerError(msg Message, err error) {
	if s.onHandlerError != nil {
		s.onHandlerError(msg, err)
		return
	}
	s.logger.Warn("MQTT handler returned error", "topic", msg.Topic, "error", err)
}

// handleConnect runs on every successful (re)connection.
func (s *Session) handleConnect() {
	s.mu.Lock()
	s.attempts = 0
	restore := s.state == StateDisconnected && s.sub != nil
	if restore {
		s.state = StateConnected
	}
	s.mu.Unlock()

	if restore {
		s.notifyState(StateConnected)
		s.logger.Info("mqtt reconnected", "broker", s.cfg.BrokerURL())
		s.restoreSubscription()
	}
}

// restoreSubscription re-subscribes after an automatic reconnect.
func (s *Session) restoreSubscription() {
	s.mu.Lock()
	if s.state != StateConnected || s.sub == nil {
		s.mu.Unlock()
		return
	}
	sub, client := s.sub, s.client
	s.mu.Unlock()

	token := client.Subscribe(sub.topic, sub.qos, s.deliver)
	s.mu.Lock()
	s.pending = token
	s.mu.Unlock()

	if !token.WaitTimeout(defaultResubscribeTimeout) {
		s.fatal(fmt.Errorf("%w: restoring subscription: SUBACK timeout", ErrConnectionLost))
		return
	}
	if _, err := checkSuback(token, sub.topic); err != nil {
		s.fatal(fmt.Errorf("%w: restoring subscription: %w", ErrConnectionLost, err))
		return
	}

	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
	if s.transition(StateConnected, StateSubscriptionActive) {
		s.logger.Info("subscription restored", "topic", sub.topic, "qos", sub.qos)
	}
}

// handleConnectionLost is the paho connection-lost callback.
func (s *Session) handleConnectionLost(cause error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	s.pending = nil
	s.mu.Unlock()
	s.notifyState(StateDisconnected)

	s.logger.Warn("connection lost", "error", cause, "policy", s.cfg.OnLost)
	if s.onDisconnect != nil {
		s.onDisconnect(cause)
	}

	if s.cfg.OnLost != config.PolicyReconnect {
		s.fatal(fmt.Errorf("%w: %w", ErrConnectionLost, cause))
	}
}

// handleReconnecting counts reconnect attempts under the reconnect policy.
func (s *Session) handleReconnecting() {
	s.mu.Lock()
	s.attempts++
	attempt := s.attempts
	s.mu.Unlock()

	limit := s.cfg.Reconnect.MaxAttempts
	s.logger.Info("mqtt reconnecting", "attempt", attempt, "max_attempts", limit)
	if limit > 0 && attempt > limit {
		s.fatal(fmt.Errorf("%w: gave up after %d attempts", ErrReconnectExhausted, limit))
	}
}

// fatal invokes the connection-lost callback at most once.
func (s *Session) fatal(err error) {
	s.lostOnce.Do(func() {
		s.logger.Error("mqtt session unusable", "error", err)
		if s.onLost != nil {
			s.onLost(err)
		}
	})
}

// transition moves from one state to another if the session is still in
// from. It reports whether the move happened.
func (s *Session) transition(from, to State) bool {
	s.mu.Lock()
	if s.state != from {
		s.mu.Unlock()
		return false
	}
	s.state = to
	s.mu.Unlock()
	s.notifyState(to)
	return true
}

func (s *Session) notifyState(state State) {
	if s.onStateChange != nil {
		s.onStateChange(state)
	}
}

// Close disconnects from the broker. The subscription ends with the session.
//
// Close is idempotent and safe after a connection loss. It returns once any
// in-flight handler has finished; later deliveries are rejected.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	client := s.client
	s.sub = nil
	s.pending = nil
	s.mu.Unlock()
	s.notifyState(StateClosed)

	if client != nil {
		client.Disconnect(defaultDisconnectQuiesce)
	}

	// Barrier: wait for an in-flight handler
	s.dispatchMu.Lock()
	s.dispatchMu.Unlock() //nolint:staticcheck // empty critical section is the barrier

	s.logger.Info("mqtt session closed")
	return nil
}

// HealthCheck reports whether the session is connected and subscribed.
func (s *Session) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	state, client := s.state, s.client
	s.mu.Unlock()

	if state != StateSubscriptionActive || client == nil || !client.IsConnected() {
		return fmt.Errorf("%w: session %s", ErrNotConnected, state)
	}
	return nil
}
