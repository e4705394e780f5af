package probe

import (
	"fmt"

	"github.com/arloliu/go-ptu/logger"
)

// State is a handshake state.
type State uint32

// Handshake states. Idle is initial; Ready, Degraded and Failed end an attempt.
const (
	// StateIdle indicates that the handshake has not started.
	StateIdle State = iota
	// StateSyncing indicates that sync markers are being sent.
	StateSyncing
	// StateInitializing indicates that the initialization ladder is being walked.
	StateInitializing
	// StateReady indicates that the device answered; the heartbeat cycle runs in this state.
	StateReady
	// StateDegraded indicates that the device answered initialization but no heartbeat.
	StateDegraded
	// StateFailed indicates that no frame was received, a transport error occurred, or the attempt was aborted.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsOutcome reports whether s is a possible final outcome of an attempt.
func (s State) IsOutcome() bool {
	return s == StateReady || s == StateDegraded || s == StateFailed
}

// ParseState converts a state name back into a State.
func ParseState(name string) (State, bool) {
	for s := StateIdle; s <= StateFailed; s++ {
		if s.String() == name {
			return s, true
		}
	}

	return StateIdle, false
}

// transitions lists the allowed moves. Any non-final state may fail.
var transitions = map[State][]State{
	StateIdle:         {StateSyncing, StateFailed},
	StateSyncing:      {StateInitializing, StateFailed},
	StateInitializing: {StateReady, StateFailed},
	StateReady:        {StateDegraded, StateFailed},
}

// StateChangeHandler is invoked synchronously after every state change.
type StateChangeHandler func(prev State, next State)

// stateMachine owns the state of one handshake. It is not goroutine-safe.
type stateMachine struct {
	state    State
	handlers []StateChangeHandler
	logger   logger.Logger
}

func newStateMachine(l logger.Logger) *stateMachine {
	return &stateMachine{state: StateIdle, logger: l}
}

// canTransition reports whether the table allows from -> to.
func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}

	return false
}

func (sm *stateMachine) transition(to State) error {
	from := sm.state
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	sm.state = to
	sm.logger.Debug("handshake state changed", "from", from.String(), "to", to.String())
	for _, h := range sm.handlers {
		h(from, to)
	}

	return nil
}
