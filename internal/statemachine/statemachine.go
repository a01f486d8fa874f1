// Package statemachine implements the session lifecycle state machine
// (spec §4.2), encoded as a transition table the way the teacher encodes
// ClientState transitions in internal/ws/client.go's isValidClientTransition,
// rather than as scattered conditionals (spec §9, "State-machine encoding").
package statemachine

import "sync/atomic"

type State int32

const (
	NotInitialized State = iota
	Initializing
	InteractivityDisabled
	InteractivityPending
	InteractivityEnabled
)

func (s State) String() string {
	switch s {
	case NotInitialized:
		return "not_initialized"
	case Initializing:
		return "initializing"
	case InteractivityDisabled:
		return "interactivity_disabled"
	case InteractivityPending:
		return "interactivity_pending"
	case InteractivityEnabled:
		return "interactivity_enabled"
	default:
		return "unknown"
	}
}

// validTransitions encodes every edge in spec §4.2's table. Transitions to
// NotInitialized are allowed from any state (fatal error, close, re-init),
// handled as a special case in isValid rather than listed per-row.
var validTransitions = map[State][]State{
	NotInitialized:        {Initializing},
	Initializing:          {InteractivityDisabled},
	InteractivityDisabled: {InteractivityPending},
	InteractivityPending:  {InteractivityEnabled, InteractivityDisabled},
	InteractivityEnabled:  {InteractivityPending},
}

func isValid(from, to State) bool {
	if to == NotInitialized {
		return true
	}
	for _, candidate := range validTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Machine is a CAS-guarded state holder, mirroring Client.state/transitionTo
// in the teacher but generalized to the five-state interactivity lifecycle.
type Machine struct {
	state   atomic.Int32
	onEnter func(old, new State)
}

// New creates a Machine starting at NotInitialized.
func New(onEnter func(old, new State)) *Machine {
	m := &Machine{onEnter: onEnter}
	m.state.Store(int32(NotInitialized))
	return m
}

// Current returns the current state.
func (m *Machine) Current() State {
	return State(m.state.Load())
}

// SetOnEnter installs the callback invoked on every accepted transition,
// for callers (the engine) that need to build the Machine before the
// callback's other dependencies exist.
func (m *Machine) SetOnEnter(onEnter func(old, new State)) {
	m.onEnter = onEnter
}

// TryTransition attempts to move to newState, returning false (and logging
// nothing itself — the caller logs) if the edge is not in the table. Invalid
// transitions leave state unchanged, per spec §4.2.
func (m *Machine) TryTransition(newState State) bool {
	for {
		current := State(m.state.Load())
		if !isValid(current, newState) {
			return false
		}
		if m.state.CompareAndSwap(int32(current), int32(newState)) {
			if m.onEnter != nil {
				m.onEnter(current, newState)
			}
			return true
		}
	}
}

// Force unconditionally sets the state, used only for the "any -> not_initialized"
// edge on fatal error/close/re-init, which is valid from every state.
func (m *Machine) Force(newState State) {
	old := State(m.state.Swap(int32(newState)))
	if old != newState && m.onEnter != nil {
		m.onEnter(old, newState)
	}
}
