// Package interactive is a client library that connects a game or title to
// a remote interactive-broadcast service over a JSON-RPC websocket session,
// mirroring scenes, groups, controls and participants locally and
// dispatching viewer input back to the host.
package interactive

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mixer/interactive-go/internal/config"
	"github.com/mixer/interactive-go/internal/constants"
	"github.com/mixer/interactive-go/internal/entities"
	"github.com/mixer/interactive-go/internal/events"
	"github.com/mixer/interactive-go/internal/mutate"
	"github.com/mixer/interactive-go/internal/protocol"
	"github.com/mixer/interactive-go/internal/ratelimit"
	"github.com/mixer/interactive-go/internal/statemachine"

	"github.com/mixer/interactive-go/internal/engine"
)

// State is the session's lifecycle state, re-exported so hosts don't need to
// import an internal package to compare against it.
type State = statemachine.State

const (
	StateNotInitialized        = statemachine.NotInitialized
	StateInitializing          = statemachine.Initializing
	StateInteractivityDisabled = statemachine.InteractivityDisabled
	StateInteractivityPending  = statemachine.InteractivityPending
	StateInteractivityEnabled  = statemachine.InteractivityEnabled
)

// Event is a host-visible occurrence drained on Run (spec §3, §4.6).
type Event = events.Event

// Scene, Group, Control and Participant mirror authoritative service state
// (spec §3). Returned by the query methods below; callers must not mutate
// them.
type Scene = entities.Scene
type Group = entities.Group
type Control = entities.Control
type Participant = entities.Participant

// Handlers is the set of host callbacks registered once at Open time (spec
// §6, "Handlers (set once)").
type Handlers = engine.Handlers

// Session owns one transport, one pipeline and one mirror (spec §3,
// Session). Exactly one Session exists per open_session/close_session pair.
type Session struct {
	eng *engine.Engine
	cfg *config.Config
}

// Open constructs a Session. configPath may be empty to use defaults and
// environment overrides only (spec §10.2).
func Open(configPath string, handlers Handlers) (*Session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return &Session{eng: engine.New(cfg, handlers), cfg: cfg}, nil
}

// SetAuthToken installs the host-provided auth header value. Valid only in
// not_initialized or interactivity_disabled (spec §4.9).
func (s *Session) SetAuthToken(token string) error {
	return s.eng.Mutate.SetAuthToken(token)
}

// Connect runs the initialization coordinator to completion (spec §4.3):
// bootstrap discovery, websocket connect, handshake, and optional
// auto-ready. Intended to be called on its own goroutine — it blocks until
// the handshake succeeds, fails, or ctx is canceled.
func (s *Session) Connect(ctx context.Context, versionID, shareCode string, goInteractive bool) error {
	return s.eng.Initialize(ctx, http.DefaultClient, versionID, shareCode, goInteractive)
}

// Run is the host tick (do_work, spec §4.6). Callable only by the host
// thread; clears button edge flags and returns up to maxEventsToDrain
// buffered events (0 means unbounded). The message pipeline is drained by
// the engine's background worker, not here.
func (s *Session) Run(maxEventsToDrain int) []Event {
	return s.eng.Run(maxEventsToDrain)
}

// SetReady is a convenience wrapper equivalent to StartInteractive/
// SuspendInteractive depending on isReady (spec §6, "set_ready(bool)").
func (s *Session) SetReady(isReady bool) error {
	if isReady {
		return s.eng.Mutate.StartInteractive()
	}
	return s.eng.Mutate.SuspendInteractive()
}

// Close stops the background message-pipeline worker, stops interactivity
// and tears down the transport (spec §6, "close_session").
func (s *Session) Close() {
	s.eng.Close()
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	return s.eng.State()
}

// GetScenes returns every scene currently mirrored (spec §6, get_scenes).
func (s *Session) GetScenes() []*Scene {
	mirror := s.eng.Mirror()
	out := make([]*Scene, 0, len(mirror.Scenes))
	for _, scene := range mirror.Scenes {
		out = append(out, scene)
	}
	return out
}

// GetGroups returns every group currently mirrored (spec §6, get_groups).
func (s *Session) GetGroups() []*Group {
	mirror := s.eng.Mirror()
	out := make([]*Group, 0, len(mirror.Groups))
	for _, group := range mirror.Groups {
		out = append(out, group)
	}
	return out
}

// GetParticipants returns every participant currently mirrored (spec §6,
// get_participants).
func (s *Session) GetParticipants() []*Participant {
	return s.eng.Mirror().Participants()
}

// GetControl looks up a control by id across all scenes.
func (s *Session) GetControl(controlID string) (*Control, bool) {
	c, ok := s.eng.Mirror().Controls[controlID]
	return c, ok
}

// CreateGroup enqueues a createGroups call for a brand-new group (spec §6,
// "create_group").
func (s *Session) CreateGroup(groupID, sceneID string) error {
	_, err := s.eng.Mutate.SendRPCMessage(constants.MethodCreateGroups, mustJSON(protocol.CreateOrUpdateGroupsParams{
		Groups: []protocol.GroupWire{{ID: groupID, SceneID: sceneID}},
	}), false)
	return err
}

// GroupSetScene is the host-facing name for try_set_current_scene (spec §6,
// "group_set_scene"; spec §4.9, §9/§13 bug fix).
func (s *Session) GroupSetScene(groupID, sceneID string) error {
	return s.eng.Mutate.TrySetCurrentScene(sceneID, groupID)
}

// ParticipantSetGroup moves a participant between groups (spec §6,
// "participant_set_group").
func (s *Session) ParticipantSetGroup(mixerID uint32, oldGroupID, newGroupID string) error {
	return s.eng.Mutate.MoveParticipantGroup(mixerID, oldGroupID, newGroupID)
}

// SetControlDisabled enqueues an updateControls call toggling disabled.
func (s *Session) SetControlDisabled(controlID string, disabled bool) error {
	return s.eng.Mutate.SetDisabled(controlID, disabled)
}

// SetControlProgress enqueues an updateControls call setting progress.
func (s *Session) SetControlProgress(controlID string, progress float64) error {
	return s.eng.Mutate.SetProgress(controlID, progress)
}

// ControlTriggerCooldown enqueues an updateControls call setting a cooldown
// deadline cooldownMs in the future (spec §6, "control_trigger_cooldown").
func (s *Session) ControlTriggerCooldown(controlID string, cooldownMs int64) error {
	return s.eng.Mutate.TriggerCooldown(controlID, cooldownMs)
}

// CaptureTransaction enqueues a capture call for a transaction surfaced by
// an input event (spec §6, "capture_transaction").
func (s *Session) CaptureTransaction(transactionID string) error {
	return s.eng.Mutate.CaptureTransaction(transactionID)
}

// ControlBatch begins a batched set of control mutations for one scene
// (spec §6, "control batch builder (begin/add/commit/close)").
func (s *Session) ControlBatch(sceneID string) *mutate.ControlBatch {
	return s.eng.Mutate.Begin(sceneID)
}

// SendRPCMessage is the free-form escape hatch (spec §4.9).
func (s *Session) SendRPCMessage(method string, params any, discard bool) (uint32, error) {
	return s.eng.Mutate.SendRPCMessage(method, mustJSON(params), discard)
}

// SetBandwidthThrottle configures an advisory outbound rate limiter for one
// method category (spec §6, "set_bandwidth_throttle"). maxBytes<=0 clears
// the throttle for that category.
func (s *Session) SetBandwidthThrottle(category string, maxBytes int, bytesPerSec float64) {
	s.eng.Throttle.Set(ratelimit.Category(category), maxBytes, bytesPerSec)
}

// Latency returns the one-shot getTime round-trip latency (spec §12.3).
func (s *Session) Latency() (int64, bool) {
	l := s.eng.Latency()
	return l.Milliseconds(), l != 0
}

// ServerTimeOffset returns wallclock-minus-serverclock in milliseconds
// (spec §12.3).
func (s *Session) ServerTimeOffset() int64 {
	return s.eng.ServerTimeOffset()
}

// DebugInjectParticipant synthesizes a participant join or leave locally
// without a live service connection (spec §12.1). Intended for demo/test
// hosts only.
func (s *Session) DebugInjectParticipant(join bool, mixerID uint32, sessionID, username string) {
	s.eng.DebugInjectParticipant(join, mixerID, sessionID, username)
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return raw
}
