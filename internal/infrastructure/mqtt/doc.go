// Package mqtt provides the broker session used by the relay agent.
//
// A Session owns one paho connection and at most one subscription:
//
//	Disconnected -> Connecting -> Connected -> SubscriptionActive -> Closed
//
// # Delivery
//
// paho runs with ordered delivery, and every handler call additionally
// holds the session's dispatch lock, so handlers never overlap and see
// messages in transport order. A message that arrives while no subscription
// is active is rejected with ErrNotSubscribed. Handler errors and panics
// are reported through SetOnHandlerError and do not end the session.
//
// # Connection loss
//
// Under the "exit" policy the first loss invokes the SetOnConnectionLost
// callback with ErrConnectionLost. Under "reconnect" paho reconnects with
// backoff, the subscription is restored, and the callback fires only when
// max_attempts is exceeded (ErrReconnectExhausted).
//
// # Security Considerations
//
//   - TLS (ssl://) uses TLS 1.2 or later, optionally pinned to a CA bundle
//   - Two sessions sharing a client ID evict each other at the broker
//
// # Usage
//
//	s := mqtt.New(cfg.MQTT)
//	s.SetOnConnectionLost(func(err error) { lost <- err })
//	if err := s.Connect(ctx); err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	err := s.Subscribe(ctx, cfg.MQTT.Topic, byte(cfg.MQTT.QoS),
//	    func(m mqtt.Message) error {
//	        return react(m.Payload)
//	    })
package mqtt
