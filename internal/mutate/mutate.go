// Package mutate implements the host-facing mutator API (spec §4.9):
// translating host requests into outbound RPC and/or local mirror and
// state-machine updates. Every exported method that touches the mirror or
// the auth-token fields locks the session mutex itself (the same one Engine
// uses to guard the mirror from its own reply/method handlers), since the
// mutator is called directly off the host's own goroutine with nothing else
// enforcing that ordering. StartInteractive/SuspendInteractive never take
// it, and StopInteractive releases it before forcing a state transition:
// the state machine's onEnter callback runs synchronously and may call back
// into the host, which could call back into another Mutator method, so that
// path must never run with the mutex already held.
//
// Preconditions are enforced here rather than deeper in the stack (spec §7):
// a mutator that fails its precondition pushes an Error event and returns
// without mutating anything or touching the pipeline.
package mutate

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mixer/interactive-go/internal/authtoken"
	"github.com/mixer/interactive-go/internal/constants"
	"github.com/mixer/interactive-go/internal/entities"
	"github.com/mixer/interactive-go/internal/events"
	"github.com/mixer/interactive-go/internal/pipeline"
	"github.com/mixer/interactive-go/internal/protocol"
	"github.com/mixer/interactive-go/internal/statemachine"
	"github.com/mixer/interactive-go/internal/transport"
)

// Mutator wires the state machine, mirror, pipeline and event queue together
// behind the host-facing operations of spec §4.9. It shares Engine's session
// mutex (passed in at construction) so its writes serialize against the
// engine's own reply/method handlers, which run on the background pipeline
// worker's goroutine rather than the host's.
type Mutator struct {
	mu          *sync.Mutex
	state       *statemachine.Machine
	mirror      *entities.Mirror
	pipe        *pipeline.Pipeline
	queue       *events.Queue
	tr          transport.Transport
	serverNowMs func() int64

	authToken string
	authWatch *authtoken.Watcher
}

// New builds a Mutator over the given collaborators, locking mu (Engine.mu)
// around every exported method. serverNowMs returns the current absolute
// server-clock time in milliseconds (wall clock adjusted by the session's
// serverTimeOffset), used by TriggerCooldown (spec §4.9).
func New(mu *sync.Mutex, state *statemachine.Machine, mirror *entities.Mirror, pipe *pipeline.Pipeline, queue *events.Queue, tr transport.Transport, serverNowMs func() int64) *Mutator {
	return &Mutator{mu: mu, state: state, mirror: mirror, pipe: pipe, queue: queue, tr: tr, serverNowMs: serverNowMs}
}

func (m *Mutator) fail(code, message string) error {
	err := fmt.Errorf("mutate: %s: %s", code, message)
	m.queue.Push(events.Event{Kind: events.KindError, ErrorCode: code, ErrorMessage: message})
	slog.Warn("mutate: precondition failed", "component", "mutate", "code", code, "message", message)
	return err
}

// AuthToken returns the currently configured auth token, for the engine to
// use when building websocket headers.
func (m *Mutator) AuthToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authToken
}

// SetAuthToken is valid only in NotInitialized or InteractivityDisabled
// (spec §4.9); any other state returns an error event without mutating. If
// the token carries a readable `exp` claim, a Watcher warns the host with an
// error event once it lapses, generalizing the teacher's
// scheduleAuthExpiry/handleAuthExpired (internal/ws/client.go) from a
// server-driven session kill to a client-side early warning.
func (m *Mutator) SetAuthToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state.Current() {
	case statemachine.NotInitialized, statemachine.InteractivityDisabled:
		if m.authWatch != nil {
			m.authWatch.Stop()
			m.authWatch = nil
		}
		m.authToken = token
		w, err := authtoken.Watch(token, m.onAuthTokenExpired)
		switch {
		case err == nil:
			m.authWatch = w
		case errors.Is(err, authtoken.ErrNoExpiry):
			// Token never expires (or the host isn't using JWTs); nothing to watch.
		default:
			slog.Debug("mutate: auth token not watchable", "component", "mutate", "error", err)
		}
		return nil
	default:
		return m.fail(constants.ErrCodeInvalidState, "set_auth_token requires not_initialized or interactivity_disabled")
	}
}

func (m *Mutator) onAuthTokenExpired() {
	slog.Warn("mutate: auth token expired", "component", "mutate")
	m.queue.Push(events.Event{
		Kind:         events.KindError,
		ErrorCode:    constants.ErrCodeAuthExpired,
		ErrorMessage: "auth token has expired; call set_auth_token with a fresh token before the next request",
	})
}

// StartInteractive requires a connected transport and InteractivityDisabled
// state; transitions to InteractivityPending and sends ready(true).
// m.mu is deliberately not held here: TryTransition invokes the state
// machine's onEnter callback synchronously (Engine.onStateEnter, which may
// call the host's Handlers.StateChanged), and that callback is free to call
// back into another Mutator method. Holding m.mu across it would deadlock
// the calling goroutine the moment a host ever did that. state.Current/
// TryTransition and m.tr.State/m.pipe.Enqueue already serialize themselves
// (atomic state word, internal mutexes), so no lock is needed here at all.
func (m *Mutator) StartInteractive() error {
	if m.tr.State() != transport.StateConnected && m.tr.State() != transport.StateActivated {
		return m.fail(constants.ErrCodeNotConnected, "start_interactive requires a connected transport")
	}
	if m.state.Current() != statemachine.InteractivityDisabled {
		return m.fail(constants.ErrCodeInvalidState, "start_interactive requires interactivity_disabled")
	}
	if !m.state.TryTransition(statemachine.InteractivityPending) {
		return m.fail(constants.ErrCodeInvalidState, "start_interactive: invalid transition")
	}
	_, err := m.pipe.Enqueue(constants.MethodReady, protocol.ReadyParams{IsReady: true}, false)
	return err
}

// SuspendInteractive sends ready(false) from {enabled, pending}; trivially
// succeeds (no RPC) from {not_initialized, disabled} per spec §4.9.
func (m *Mutator) SuspendInteractive() error {
	switch m.state.Current() {
	case statemachine.InteractivityEnabled, statemachine.InteractivityPending:
		_, err := m.pipe.Enqueue(constants.MethodReady, protocol.ReadyParams{IsReady: false}, false)
		return err
	default:
		return nil
	}
}

// StopInteractive closes the transport and forces the state machine back to
// NotInitialized. Best-effort: in-flight awaiting-reply entries are
// abandoned (spec §5, "Cancellation"). m.mu is released before Force, which
// invokes the state machine's onEnter callback synchronously and must never
// run with m.mu held (see StartInteractive).
func (m *Mutator) StopInteractive() {
	m.mu.Lock()
	if m.authWatch != nil {
		m.authWatch.Stop()
		m.authWatch = nil
	}
	m.mu.Unlock()
	m.tr.Close()
	m.state.Force(statemachine.NotInitialized)
}

// TrySetCurrentScene fails with no_such_file_or_directory if sceneID is
// unknown; otherwise updates the mirror locally (fixing the source's
// try_set_current_scene bug, spec §9/§13) and enqueues updateGroups.
func (m *Mutator) TrySetCurrentScene(sceneID, groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.mirror.SetGroupScene(groupID, sceneID); err != nil {
		return m.fail(constants.ErrCodeNoSuchFileOrDir, err.Error())
	}
	group := m.mirror.Groups[groupID]
	_, err := m.pipe.Enqueue(constants.MethodUpdateGroups, protocol.CreateOrUpdateGroupsParams{
		Groups: []protocol.GroupWire{{ID: group.ID, SceneID: group.SceneID, Etag: group.Etag}},
	}, false)
	return err
}

// SetDisabled enqueues updateControls with the control's current etag
// (spec §4.9).
func (m *Mutator) SetDisabled(controlID string, disabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	control, ok := m.mirror.Controls[controlID]
	if !ok {
		return m.fail(constants.ErrCodePropertyNotFound, "unknown control: "+controlID)
	}
	return m.enqueueControlUpdate(control, protocol.ControlWire{
		ControlID: control.ID,
		Kind:      string(control.Kind),
		Etag:      control.Etag,
		Disabled:  &disabled,
	})
}

// SetProgress enqueues updateControls with a new progress value for a
// button control.
func (m *Mutator) SetProgress(controlID string, progress float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	control, ok := m.mirror.Controls[controlID]
	if !ok {
		return m.fail(constants.ErrCodePropertyNotFound, "unknown control: "+controlID)
	}
	return m.enqueueControlUpdate(control, protocol.ControlWire{
		ControlID: control.ID,
		Kind:      string(control.Kind),
		Etag:      control.Etag,
		Progress:  &progress,
	})
}

// TriggerCooldown computes the deadline as now - serverTimeOffset + cooldown
// (absolute server-clock ms, spec §4.9) and enqueues updateControls.
func (m *Mutator) TriggerCooldown(controlID string, cooldownMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	control, ok := m.mirror.Controls[controlID]
	if !ok {
		return m.fail(constants.ErrCodePropertyNotFound, "unknown control: "+controlID)
	}
	deadline := m.serverNowMs() + cooldownMs
	return m.enqueueControlUpdate(control, protocol.ControlWire{
		ControlID:        control.ID,
		Kind:             string(control.Kind),
		Etag:             control.Etag,
		CooldownDeadline: &deadline,
	})
}

func (m *Mutator) enqueueControlUpdate(control *entities.Control, wire protocol.ControlWire) error {
	_, err := m.pipe.Enqueue(constants.MethodUpdateControls, protocol.UpdateControlsParams{
		SceneID:  control.ParentSceneID,
		Controls: []protocol.ControlWire{wire},
	}, false)
	return err
}

// MoveParticipantGroup rewrites the group index and enqueues
// updateParticipants (spec §4.9).
func (m *Mutator) MoveParticipantGroup(mixerID uint32, oldGroupID, newGroupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	participant, ok := m.mirror.ByMixerID(mixerID)
	if !ok {
		return m.fail(constants.ErrCodePropertyNotFound, "unknown participant")
	}
	if err := m.mirror.MoveParticipantGroup(participant, oldGroupID, newGroupID); err != nil {
		return m.fail(constants.ErrCodeNoSuchFileOrDir, err.Error())
	}
	_, err := m.pipe.Enqueue(constants.MethodUpdateParticipants, protocol.UpdateParticipantsParams{
		Participants: []protocol.ParticipantWire{{
			SessionID: participant.SessionID,
			UserID:    participant.MixerID,
			Username:  participant.Username,
			Level:     participant.Level,
			GroupID:   participant.GroupID,
			Disabled:  participant.Disabled,
			Etag:      participant.Etag,
		}},
	}, false)
	return err
}

// CaptureTransaction enqueues a capture RPC for a transaction surfaced by
// the input dispatcher (spec §4.8, last paragraph).
func (m *Mutator) CaptureTransaction(transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.pipe.Enqueue(constants.MethodCapture, protocol.CaptureParams{TransactionID: transactionID}, false)
	return err
}

// SendRPCMessage is the free-form escape hatch (spec §4.9).
func (m *Mutator) SendRPCMessage(method string, paramsJSON json.RawMessage, discard bool) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pipe.Enqueue(method, paramsJSON, discard)
}

// ControlBatch accumulates several control mutations between Begin and
// Commit into a single outbound updateControls call (spec §12.2: "the
// original groups several updateControls mutations emitted between begin
// and commit into a single outbound RPC call").
type ControlBatch struct {
	mutator  *Mutator
	sceneID  string
	controls []protocol.ControlWire
	open     bool
}

// Begin starts a batch for controls belonging to sceneID.
func (m *Mutator) Begin(sceneID string) *ControlBatch {
	return &ControlBatch{mutator: m, sceneID: sceneID, open: true}
}

// Add queues one control's wire delta into the batch without sending
// anything yet.
func (b *ControlBatch) Add(wire protocol.ControlWire) error {
	if !b.open {
		return fmt.Errorf("mutate: control batch already closed")
	}
	b.controls = append(b.controls, wire)
	return nil
}

// Commit sends every queued control delta as a single updateControls call,
// then closes the batch.
func (b *ControlBatch) Commit() error {
	if !b.open {
		return fmt.Errorf("mutate: control batch already closed")
	}
	b.open = false
	if len(b.controls) == 0 {
		return nil
	}
	_, err := b.mutator.pipe.Enqueue(constants.MethodUpdateControls, protocol.UpdateControlsParams{
		SceneID:  b.sceneID,
		Controls: b.controls,
	}, false)
	return err
}

// Close discards a batch without sending, for callers that decide
// mid-build not to commit.
func (b *ControlBatch) Close() {
	b.open = false
	b.controls = nil
}
