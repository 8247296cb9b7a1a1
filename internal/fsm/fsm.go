// Package fsm defines the routing engine lifecycle state machine.
package fsm

import "fmt"

type State string

type Event string

const (
	StateStopped    State = "stopped"
	StateConnecting State = "connecting"
	StateRunning    State = "running"
	StateFailed     State = "failed"
)

const (
	EventStart         Event = "start"
	EventConnected     Event = "connected"
	EventConnectFailed Event = "connect_failed"
	EventCancel        Event = "cancel"
	EventLinkLost      Event = "link_lost"
)

// States lists every state in lifecycle order.
var States = []State{StateStopped, StateConnecting, StateRunning, StateFailed}

// Transition returns the state reached by applying event to current.
// StateFailed is terminal.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateStopped:
		switch event {
		case EventStart:
			return StateConnecting, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateConnecting:
		switch event {
		case EventConnected:
			return StateRunning, nil
		case EventConnectFailed:
			return StateFailed, nil
		case EventCancel:
			return StateStopped, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRunning:
		switch event {
		case EventCancel:
			return StateStopped, nil
		case EventLinkLost:
			return StateFailed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateFailed:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
