package runner

import "fmt"

// State is the lifecycle position of one model process.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateTimedOut
}

// Event drives a lifecycle transition.
type Event int

const (
	EventStarted Event = iota
	EventSpawnFailed
	EventExited        // exit code 0
	EventExitedFailure // non-zero exit or wait error
	EventTimerFired
	EventCancelled
)

func (e Event) String() string {
	switch e {
	case EventStarted:
		return "started"
	case EventSpawnFailed:
		return "spawn_failed"
	case EventExited:
		return "exited"
	case EventExitedFailure:
		return "exited_failure"
	case EventTimerFired:
		return "timer_fired"
	case EventCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

var transitions = map[State]map[Event]State{
	StateStarting: {
		EventStarted:     StateRunning,
		EventSpawnFailed: StateFailed,
	},
	StateRunning: {
		EventExited:        StateSucceeded,
		EventExitedFailure: StateFailed,
		EventTimerFired:    StateTimedOut,
		EventCancelled:     StateFailed,
	},
}

// lifecycle is the explicit state machine behind Run. It is owned by a
// single Run call and is not safe for concurrent use.
type lifecycle struct {
	state   State
	history []State
}

func newLifecycle() *lifecycle {
	return &lifecycle{state: StateStarting, history: []State{StateStarting}}
}

// fire applies e and returns the new state. Events that have no transition
// from the current state, including every event once terminal, are rejected
// and leave the state unchanged.
func (l *lifecycle) fire(e Event) (State, error) {
	next, ok := transitions[l.state][e]
	if !ok {
		return l.state, fmt.Errorf("invalid transition: %s on %s", l.state, e)
	}
	l.state = next
	l.history = append(l.history, next)
	return next, nil
}
