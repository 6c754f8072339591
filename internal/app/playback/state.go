// Package playback provides the playback engine: the lifecycle and refill
// state machines and the control façade that drives the audio hardware.
package playback

// State represents the playback lifecycle state.
type State int

const (
	StateIdle    State = iota // No file chosen yet
	StateReady                // File chosen, transport stopped
	StatePlaying              // Transport running
	StatePaused               // Transport paused mid-track
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Trigger is an input to the lifecycle state machine.
type Trigger int

const (
	TriggerFileChosen Trigger = iota
	TriggerResume
	TriggerPause
	TriggerStop
)

// String returns the string representation of the trigger.
func (t Trigger) String() string {
	switch t {
	case TriggerFileChosen:
		return "file_chosen"
	case TriggerResume:
		return "resume"
	case TriggerPause:
		return "pause"
	case TriggerStop:
		return "stop"
	default:
		return "unknown"
	}
}

// transitions lists every legal (state, trigger) pair. Anything else is a no-op.
var transitions = map[State]map[Trigger]State{
	StateIdle: {
		TriggerFileChosen: StateReady,
	},
	StateReady: {
		TriggerResume: StatePlaying,
	},
	StatePlaying: {
		TriggerPause: StatePaused,
		TriggerStop:  StateReady,
	},
	StatePaused: {
		TriggerResume: StatePlaying,
		TriggerStop:   StateReady,
	},
}

// Lifecycle is the playback lifecycle state machine. The zero value is Idle.
// It is not safe for concurrent use; the Engine serializes access.
type Lifecycle struct {
	state State
}

// State returns the current state.
func (l *Lifecycle) State() State {
	return l.state
}

// Can reports whether t is accepted in the current state.
func (l *Lifecycle) Can(t Trigger) bool {
	_, ok := transitions[l.state][t]
	return ok
}

// Fire applies t. It returns the resulting state and whether a transition
// happened.
func (l *Lifecycle) Fire(t Trigger) (State, bool) {
	next, ok := transitions[l.state][t]
	if !ok {
		return l.state, false
	}
	l.state = next
	return next, true
}

// Chosen reports whether a file has been chosen at least once.
func (l *Lifecycle) Chosen() bool {
	return l.state != StateIdle
}
