package mutate

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/mixer/interactive-go/internal/constants"
	"github.com/mixer/interactive-go/internal/entities"
	"github.com/mixer/interactive-go/internal/events"
	"github.com/mixer/interactive-go/internal/pipeline"
	"github.com/mixer/interactive-go/internal/protocol"
	"github.com/mixer/interactive-go/internal/statemachine"
	"github.com/mixer/interactive-go/internal/transport"
)

type fakeTransport struct {
	state transport.State
	sent  [][]byte
}

func (f *fakeTransport) SetURI(string, map[string]string)            {}
func (f *fakeTransport) EnsureConnected()                             {}
func (f *fakeTransport) Close()                                      { f.state = transport.StateDisconnected }
func (f *fakeTransport) State() transport.State                      { return f.state }
func (f *fakeTransport) OnStateChange(func(old, new transport.State)) {}
func (f *fakeTransport) OnText(func([]byte))                          {}
func (f *fakeTransport) Send(text []byte) error {
	f.sent = append(f.sent, text)
	return nil
}

func newTestMutator(t *testing.T, initialState statemachine.State, connected bool) (*Mutator, *statemachine.Machine, *entities.Mirror, *events.Queue) {
	t.Helper()
	tr := &fakeTransport{}
	if connected {
		tr.state = transport.StateConnected
	}
	mirror := entities.New()
	queue := &events.Queue{}
	state := statemachine.New(nil)
	if initialState != statemachine.NotInitialized {
		state.Force(initialState)
	}
	pipe := pipeline.New(&protocol.IDGenerator{}, tr, constants.PipelineChunkSize, constants.ReplyTimeout, constants.MaxMessageRetries)
	m := New(&sync.Mutex{}, state, mirror, pipe, queue, tr, func() int64 { return 1000 })
	return m, state, mirror, queue
}

func TestSetAuthTokenRejectedWhenEnabled(t *testing.T) {
	m, _, _, queue := newTestMutator(t, statemachine.InteractivityEnabled, true)

	if err := m.SetAuthToken("tok"); err == nil {
		t.Fatalf("expected error setting auth token while interactivity_enabled")
	}
	if queue.Len() != 1 {
		t.Fatalf("expected one error event pushed, got %d", queue.Len())
	}
}

func TestSetAuthTokenAllowedWhenDisabled(t *testing.T) {
	m, _, _, _ := newTestMutator(t, statemachine.InteractivityDisabled, true)

	if err := m.SetAuthToken("tok"); err != nil {
		t.Fatalf("SetAuthToken: %v", err)
	}
	if m.AuthToken() != "tok" {
		t.Fatalf("AuthToken() = %q, want tok", m.AuthToken())
	}
}

func TestStartInteractiveRequiresConnectedTransport(t *testing.T) {
	m, _, _, _ := newTestMutator(t, statemachine.InteractivityDisabled, false)

	if err := m.StartInteractive(); err == nil {
		t.Fatalf("expected error starting interactive without a connected transport")
	}
}

func TestStartInteractiveTransitionsToPendingAndSendsReady(t *testing.T) {
	m, state, _, _ := newTestMutator(t, statemachine.InteractivityDisabled, true)

	if err := m.StartInteractive(); err != nil {
		t.Fatalf("StartInteractive: %v", err)
	}
	if state.Current() != statemachine.InteractivityPending {
		t.Fatalf("state = %s, want interactivity_pending", state.Current())
	}
}

func TestSuspendInteractiveTrivialFromDisabled(t *testing.T) {
	m, state, _, _ := newTestMutator(t, statemachine.InteractivityDisabled, true)

	if err := m.SuspendInteractive(); err != nil {
		t.Fatalf("SuspendInteractive: %v", err)
	}
	if state.Current() != statemachine.InteractivityDisabled {
		t.Fatalf("state changed to %s, want unchanged interactivity_disabled", state.Current())
	}
}

func TestTrySetCurrentSceneFixesMirrorLocallyBeforeSending(t *testing.T) {
	m, _, mirror, _ := newTestMutator(t, statemachine.InteractivityDisabled, true)
	mirror.Scenes["arena"] = &entities.Scene{ID: "arena", Controls: map[string]*entities.Control{}}

	if err := m.TrySetCurrentScene("arena", "default"); err != nil {
		t.Fatalf("TrySetCurrentScene: %v", err)
	}
	if mirror.Groups["default"].SceneID != "arena" {
		t.Fatalf("group scene = %q, want arena (should update locally, not just enqueue)", mirror.Groups["default"].SceneID)
	}
}

func TestTrySetCurrentSceneUnknownSceneFails(t *testing.T) {
	m, _, mirror, _ := newTestMutator(t, statemachine.InteractivityDisabled, true)

	if err := m.TrySetCurrentScene("nonexistent", "default"); err == nil {
		t.Fatalf("expected error for unknown scene")
	}
	if mirror.Groups["default"].SceneID != "default" {
		t.Fatalf("group scene changed despite unknown target scene")
	}
}

func TestTriggerCooldownComputesAbsoluteDeadline(t *testing.T) {
	m, _, mirror, _ := newTestMutator(t, statemachine.InteractivityDisabled, true)
	mirror.Scenes["default"].Controls["btn"] = &entities.Control{ID: "btn", ParentSceneID: "default", Kind: entities.KindButton, ButtonStates: map[string]*entities.ButtonState{}}
	mirror.Controls["btn"] = mirror.Scenes["default"].Controls["btn"]

	if err := m.TriggerCooldown("btn", 500); err != nil {
		t.Fatalf("TriggerCooldown: %v", err)
	}
	// serverNowMs() is stubbed to 1000, so the deadline should be 1500.
	pending, _, _ := m.pipe.PendingCounts()
	if pending != 1 {
		t.Fatalf("expected one pending updateControls call, got %d", pending)
	}

	m.pipe.Drain(true)
	tr := m.tr.(*fakeTransport)
	if len(tr.sent) != 1 {
		t.Fatalf("expected one sent frame, got %d", len(tr.sent))
	}
	var msg protocol.Message
	if err := json.Unmarshal(tr.sent[0], &msg); err != nil {
		t.Fatalf("decoding sent frame: %v", err)
	}
	var params protocol.UpdateControlsParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		t.Fatalf("decoding updateControls params: %v", err)
	}
	if len(params.Controls) != 1 || params.Controls[0].CooldownDeadline == nil || *params.Controls[0].CooldownDeadline != 1500 {
		t.Fatalf("cooldown deadline in %+v, want 1500", params.Controls)
	}
}

func TestControlBatchCommitsAsSingleCall(t *testing.T) {
	m, _, mirror, _ := newTestMutator(t, statemachine.InteractivityDisabled, true)
	mirror.Scenes["default"].Controls["a"] = &entities.Control{ID: "a", ParentSceneID: "default", Kind: entities.KindButton}
	mirror.Scenes["default"].Controls["b"] = &entities.Control{ID: "b", ParentSceneID: "default", Kind: entities.KindButton}

	batch := m.Begin("default")
	disabledA := true
	if err := batch.Add(protocol.ControlWire{ControlID: "a", Kind: "button", Disabled: &disabledA}); err != nil {
		t.Fatalf("Add a: %v", err)
	}
	disabledB := false
	if err := batch.Add(protocol.ControlWire{ControlID: "b", Kind: "button", Disabled: &disabledB}); err != nil {
		t.Fatalf("Add b: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	pending, _, _ := m.pipe.PendingCounts()
	if pending != 1 {
		t.Fatalf("expected exactly one enqueued updateControls call for the batch, got %d", pending)
	}

	if err := batch.Add(protocol.ControlWire{ControlID: "a"}); err == nil {
		t.Fatalf("expected error adding to a committed batch")
	}
}
