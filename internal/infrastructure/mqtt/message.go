package mqtt

import pahomqtt "github.com/eclipse/paho.mqtt.golang"

// Message is one delivered publication. It is valid only for the duration
// of the handler call that receives it; Payload must not be retained.
type Message struct {
	Topic     string
	Payload   []byte
	QoS       byte
	Retained  bool
	Duplicate bool
	MessageID uint16
}

// Handler reacts to one delivered message.
//
// Handlers run one at a time in delivery order. A returned error (or a
// recovered panic) is reported through the handler-error callback and the
// session keeps delivering.
type Handler func(Message) error

func fromPaho(m pahomqtt.Message) Message {
	return Message{
		Topic:     m.Topic(),
		Payload:   m.Payload(),
		QoS:       m.Qos(),
		Retained:  m.Retained(),
		Duplicate: m.Duplicate(),
		MessageID: m.MessageID(),
	}
}
