package entities

import "time"

// Kind discriminates the tagged Control variant (spec §3, Control).
type Kind string

const (
	KindButton   Kind = "button"
	KindJoystick Kind = "joystick"
)

// ButtonState is the per-participant edge-detected state of a button (spec
// §3). IsDown/IsUp are true only on the transition frame; IsPressed holds
// for the duration of the press.
type ButtonState struct {
	IsDown    bool
	IsPressed bool
	IsUp      bool
}

// JoystickState is the per-participant last-reported stick position.
type JoystickState struct {
	X, Y float64
}

// Control is the tagged {Button | Joystick} variant. Only the fields for
// the control's Kind are meaningful; this mirrors the teacher's preference
// for a single flat wire struct (ControlWire in internal/protocol) over a
// Go sum type, since the wire format itself is untagged by shape.
type Control struct {
	ID            string
	ParentSceneID string
	Etag          string
	Kind          Kind
	Disabled      bool

	// Button fields.
	Cost             uint32
	CooldownDeadline int64 // ms, absolute server-clock time
	ButtonStates     map[string]*ButtonState

	// Joystick fields.
	X, Y           float64
	JoystickStates map[string]*JoystickState
}

func newButton(id, sceneID string) *Control {
	return &Control{
		ID:            id,
		ParentSceneID: sceneID,
		Kind:          KindButton,
		ButtonStates:  make(map[string]*ButtonState),
	}
}

func newJoystick(id, sceneID string) *Control {
	return &Control{
		ID:             id,
		ParentSceneID:  sceneID,
		Kind:           KindJoystick,
		JoystickStates: make(map[string]*JoystickState),
	}
}

// ButtonStateFor returns (creating if absent) the per-participant button
// state, tolerating first-input insertion per spec §9 ("must tolerate
// insertion on first input for a participant").
func (c *Control) ButtonStateFor(participantID string) *ButtonState {
	s, ok := c.ButtonStates[participantID]
	if !ok {
		s = &ButtonState{}
		c.ButtonStates[participantID] = s
	}
	return s
}

// JoystickStateFor returns (creating if absent) the per-participant stick
// position.
func (c *Control) JoystickStateFor(participantID string) *JoystickState {
	s, ok := c.JoystickStates[participantID]
	if !ok {
		s = &JoystickState{}
		c.JoystickStates[participantID] = s
	}
	return s
}

// ClearButtonEdges resets every participant's IsDown/IsUp edge flags to
// false, leaving IsPressed untouched (spec §4.6, host tick). Joystick state
// is never cleared here — it must persist across ticks (spec §4.6 rationale).
func (c *Control) ClearButtonEdges() {
	for _, s := range c.ButtonStates {
		s.IsDown = false
		s.IsUp = false
	}
}

// CooldownRemaining is a convenience getter over the mirrored cooldown
// deadline (spec §12 supplemented feature): how long until the button is
// interactive again, given the service's clock (now expressed in the same
// server-time-offset-adjusted space as CooldownDeadline).
func (c *Control) CooldownRemaining(serverNowMs int64) time.Duration {
	remaining := c.CooldownDeadline - serverNowMs
	if remaining <= 0 {
		return 0
	}
	return time.Duration(remaining) * time.Millisecond
}

// PruneParticipant removes a participant's per-control state as an
// optimization at participant-leave (spec §9: "entries are never deleted by
// the core" is the floor; pruning on leave is the permitted optimization).
func (c *Control) PruneParticipant(participantID string) {
	delete(c.ButtonStates, participantID)
	delete(c.JoystickStates, participantID)
}
