package session

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/elegoo-bridge/core/model"
)

// FSM events driving the Session lifecycle (spec.md §4.6's state diagram).
const (
	evtDiscovered = "discovered"
	evtConnect    = "connect"
	evtRegistered = "registered"
	evtReady      = "ready"
	evtDegrade    = "degrade"
	evtReconnect  = "reconnect"
	evtClose      = "close"
)

// nonTerminalStates lists every state evtClose can fire from — every state
// except StateClosed itself.
var nonTerminalStates = []string{
	string(model.StateIdle),
	string(model.StateDiscovering),
	string(model.StateConnecting),
	string(model.StateRegistering),
	string(model.StateReady),
	string(model.StateDegraded),
	string(model.StateReconnecting),
}

func (s *Session) buildFSM() *fsm.FSM {
	events := []fsm.EventDesc{
		{Name: evtDiscovered, Src: []string{string(model.StateIdle)}, Dst: string(model.StateDiscovering)},
		{Name: evtConnect, Src: []string{string(model.StateDiscovering), string(model.StateReconnecting)}, Dst: string(model.StateConnecting)},
		{Name: evtRegistered, Src: []string{string(model.StateConnecting)}, Dst: string(model.StateRegistering)},
		{Name: evtReady, Src: []string{string(model.StateRegistering)}, Dst: string(model.StateReady)},
		{Name: evtDegrade, Src: []string{string(model.StateReady)}, Dst: string(model.StateDegraded)},
		{Name: evtReconnect, Src: []string{
			string(model.StateDegraded),
			string(model.StateConnecting),
			string(model.StateRegistering),
			string(model.StateReady),
		}, Dst: string(model.StateReconnecting)},
		{Name: evtClose, Src: nonTerminalStates, Dst: string(model.StateClosed)},
	}

	callbacks := fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			s.logger.Info("session state transition", "from", e.Src, "to", e.Dst, "event", e.Event)
		},
	}

	return fsm.NewFSM(string(model.StateIdle), events, callbacks)
}

func (s *Session) fire(ctx context.Context, event string, args ...interface{}) error {
	if err := s.sm.Event(ctx, event, args...); err != nil {
		if _, ok := err.(fsm.NoTransitionError); ok {
			return nil
		}
		s.logger.Warn("session fsm transition rejected", "event", event, "current", s.sm.Current(), "error", err)
		return err
	}
	return nil
}
