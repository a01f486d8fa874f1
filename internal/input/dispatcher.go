// Package input implements the giveInput dispatcher (spec §4.8): parsing
// service-forwarded input, deriving per-participant button edge events and
// joystick positions, and emitting the corresponding Events. Transactions
// are deliberately not auto-captured here — that stays a host decision via
// the mutator API (spec §4.8, last paragraph).
package input

import (
	"log/slog"
	"time"

	"github.com/mixer/interactive-go/internal/constants"
	"github.com/mixer/interactive-go/internal/entities"
	"github.com/mixer/interactive-go/internal/events"
	"github.com/mixer/interactive-go/internal/protocol"
	"github.com/mixer/interactive-go/internal/statemachine"
)

// Dispatcher wires a Mirror and event Queue together to process giveInput
// frames. Callers must hold the session mutex while calling Dispatch, since
// it mutates Mirror state.
type Dispatcher struct {
	mirror *entities.Mirror
	queue  *events.Queue
}

// New builds a Dispatcher over mirror, pushing derived events onto queue.
func New(mirror *entities.Mirror, queue *events.Queue) *Dispatcher {
	return &Dispatcher{mirror: mirror, queue: queue}
}

// Dispatch processes one giveInput call. state is the session's current
// lifecycle state; inputs are dropped unless it is InteractivityEnabled
// (spec §4.8 precondition).
func (d *Dispatcher) Dispatch(state statemachine.State, in protocol.GiveInputParams) {
	if state != statemachine.InteractivityEnabled {
		slog.Warn("input: dropped, interactivity not enabled", "component", "input", "state", state.String())
		return
	}

	control, ok := d.mirror.Controls[in.ControlID]
	if !ok {
		slog.Warn("input: unknown control", "component", "input", "control_id", in.ControlID)
		return
	}

	participant, ok := d.mirror.BySessionID(in.ParticipantID)
	if !ok {
		slog.Warn("input: unknown participant", "component", "input", "participant_id", in.ParticipantID)
		return
	}
	if participant.Disabled {
		slog.Warn("input: participant disabled, dropping", "component", "input", "participant_id", in.ParticipantID)
		return
	}

	participant.LastInputAt = time.Now()

	switch control.Kind {
	case entities.KindButton:
		d.dispatchButton(control, participant, in)
	case entities.KindJoystick:
		d.dispatchJoystick(control, participant, in)
	default:
		slog.Warn("input: control has unknown kind", "component", "input", "control_id", in.ControlID)
	}
}

func (d *Dispatcher) dispatchButton(control *entities.Control, participant *entities.Participant, in protocol.GiveInputParams) {
	switch in.Event {
	case constants.InputEventMouseDown, constants.InputEventKeyDown:
		state := control.ButtonStateFor(participant.SessionID)
		wasPressed := state.IsPressed
		state.IsDown = !wasPressed
		state.IsPressed = true
		state.IsUp = false

		e := events.Event{
			Kind:               events.KindButton,
			ControlID:          control.ID,
			ParticipantMixerID: participant.MixerID,
			IsPressed:          true,
		}
		if in.TransactionID != "" {
			e.TransactionID = in.TransactionID
			e.Cost = control.Cost
		}
		d.queue.Push(e)

	case constants.InputEventMouseUp, constants.InputEventKeyUp:
		state := control.ButtonStateFor(participant.SessionID)
		state.IsDown = false
		state.IsPressed = false
		state.IsUp = true

		d.queue.Push(events.Event{
			Kind:               events.KindButton,
			ControlID:          control.ID,
			ParticipantMixerID: participant.MixerID,
			IsPressed:          false,
		})

	default:
		slog.Warn("input: unexpected event for button", "component", "input", "event", in.Event, "control_id", control.ID)
	}
}

func (d *Dispatcher) dispatchJoystick(control *entities.Control, participant *entities.Participant, in protocol.GiveInputParams) {
	if in.Event != constants.InputEventMove {
		slog.Warn("input: unexpected event for joystick", "component", "input", "event", in.Event, "control_id", control.ID)
		return
	}

	state := control.JoystickStateFor(participant.SessionID)
	state.X, state.Y = in.X, in.Y
	control.X, control.Y = in.X, in.Y

	d.queue.Push(events.Event{
		Kind:               events.KindJoystick,
		ControlID:          control.ID,
		ParticipantMixerID: participant.MixerID,
		X:                  in.X,
		Y:                  in.Y,
	})
}
