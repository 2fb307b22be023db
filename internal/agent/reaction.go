package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/michalvitousek/miot/internal/command"
	"github.com/michalvitousek/miot/internal/infrastructure/mqtt"
	"github.com/michalvitousek/miot/internal/journal"
	"github.com/michalvitousek/miot/internal/metrics"
	"github.com/michalvitousek/miot/internal/relay"
)

// errReleased is returned by the reaction once the actuator has been shut down.
var errReleased = errors.New("agent: actuator released")

// react is the session handler: decode, apply, record.
// The session serialises calls, so there is one reaction at a time.
func (a *Agent) react(msg mqtt.Message) error {
	start := time.Now()

	cmd := command.Decode(msg.Payload)
	if cmd == command.NoOp {
		a.ignored.Add(1)
		if a.metrics != nil {
			a.metrics.ObserveMessage(metrics.ResultIgnored)
		}
		a.logger.Debug("ignoring payload", "topic", msg.Topic, "size", len(msg.Payload))
		return nil
	}

	state, err := a.apply(cmd)
	if err != nil {
		return fmt.Errorf("applying %s: %w", cmd, err)
	}

	now := time.Now()
	a.applied.Add(1)
	a.lastActuation.Store(now.UnixMilli())

	pin := a.actuator.Pin()
	a.logger.Info("actuation",
		"state", state.String(),
		"command", cmd.String(),
		"pin", pin,
		"topic", msg.Topic,
	)

	if a.metrics != nil {
		a.metrics.ObserveMessage(metrics.ResultActuated)
		a.metrics.ObserveActuation(state.String(), time.Since(start))
	}
	if a.telemetry != nil {
		a.telemetry.WriteActuation(pin, state.String(), msg.Topic)
	}
	a.record(&journal.Entry{
		Pin:       pin,
		State:     state.String(),
		Command:   cmd.String(),
		Topic:     msg.Topic,
		CreatedAt: now.UTC(),
	})

	return nil
}

// apply changes the actuator under actMu and returns the resulting state.
func (a *Agent) apply(cmd command.Command) (relay.State, error) {
	a.actMu.Lock()
	defer a.actMu.Unlock()

	if a.released {
		return relay.Unknown, errReleased
	}

	var err error
	switch cmd {
	case command.SetHigh:
		err = a.actuator.SetHigh()
	case command.SetLow:
		err = a.actuator.SetLow()
	}
	if err != nil {
		return relay.Unknown, err
	}
	return a.actuator.State(), nil
}

func (a *Agent) record(e *journal.Entry) {
	if a.journal == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	if err := a.journal.Record(ctx, e); err != nil {
		a.logger.Warn("journaling actuation", "pin", e.Pin, "error", err)
	}
}

// handleReactionError receives rejected messages, reaction errors and
// recovered panics from the session. None of them stop the agent.
func (a *Agent) handleReactionError(msg mqtt.Message, err error) {
	if errors.Is(err, mqtt.ErrNotSubscribed) {
		a.rejected.Add(1)
		if a.metrics != nil {
			a.metrics.ObserveMessage(metrics.ResultRejected)
		}
		a.logger.Warn("message rejected", "topic", msg.Topic, "error", err)
		return
	}

	a.failed.Add(1)
	if a.metrics != nil {
		a.metrics.ObserveMessage(metrics.ResultFailed)
	}
	a.logger.Error("reaction failed", "topic", msg.Topic, "error", err)
}
