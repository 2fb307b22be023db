package agent

import "time"

// Status is a point-in-time snapshot of the agent.
type Status struct {
	State         string     `json:"state"`
	Session       string     `json:"session"`
	Relay         string     `json:"relay"`
	Pin           string     `json:"pin"`
	Mode          string     `json:"mode"`
	Topic         string     `json:"topic"`
	ClientID      string     `json:"client_id"`
	LastActuation *time.Time `json:"last_actuation,omitempty"`
	Applied       uint64     `json:"applied"`
	Ignored       uint64     `json:"ignored"`
	Rejected      uint64     `json:"rejected"`
	Failed        uint64     `json:"failed"`
}

// Status returns the current snapshot.
func (a *Agent) Status() Status {
	st := Status{
		State:    a.State().String(),
		Session:  a.session.State().String(),
		Relay:    a.actuator.State().String(),
		Pin:      a.actuator.Pin(),
		Mode:     string(a.actuator.Mode()),
		Topic:    a.cfg.MQTT.Topic,
		ClientID: a.cfg.MQTT.Broker.ClientID,
		Applied:  a.applied.Load(),
		Ignored:  a.ignored.Load(),
		Rejected: a.rejected.Load(),
		Failed:   a.failed.Load(),
	}
	if ms := a.lastActuation.Load(); ms != 0 {
		t := time.UnixMilli(ms).UTC()
		st.LastActuation = &t
	}
	return st
}
