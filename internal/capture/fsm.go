// Package capture drives the microphone recording lifecycle from device
// acquisition to a processed command.
package capture

import "fmt"

type State string

type Event string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateComplete   State = "complete"
	StateError      State = "error"
)

const (
	EventStart   Event = "start"
	EventGranted Event = "granted"
	EventStop    Event = "stop"
	EventCancel  Event = "cancel"
	EventSucceed Event = "succeed"
	EventFail    Event = "fail"
	EventReset   Event = "reset"
)

// Transition validates one state change. Only idle and error accept a new
// recording; fail is accepted from anywhere.
func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		return StateError, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateRequesting, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRequesting:
		switch event {
		case EventGranted:
			return StateListening, nil
		case EventCancel:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListening:
		switch event {
		case EventStop:
			return StateProcessing, nil
		case EventCancel:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateProcessing:
		switch event {
		case EventSucceed:
			return StateComplete, nil
		case EventCancel:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateComplete:
		switch event {
		case EventReset:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateError:
		switch event {
		case EventStart:
			return StateRequesting, nil
		case EventReset:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
