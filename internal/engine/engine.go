// Package engine is the initialization coordinator and tick-driven runtime
// that wires transport, pipeline, state machine, mirror, input dispatcher,
// mutator, event queue and rate limiter together (spec §4.3, §5). It owns
// the session mutex; the mirror and input dispatcher assume their caller
// already holds it, the same "Locked"-suffix-free convention the teacher
// uses for Hub-owned state guarded by Hub.mu (internal/ws/hub.go). The
// mutator takes the same mutex itself around its exported methods, and the
// pipeline, event queue and state machine synchronize themselves.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mixer/interactive-go/internal/bootstrap"
	"github.com/mixer/interactive-go/internal/config"
	"github.com/mixer/interactive-go/internal/constants"
	"github.com/mixer/interactive-go/internal/entities"
	"github.com/mixer/interactive-go/internal/events"
	"github.com/mixer/interactive-go/internal/input"
	"github.com/mixer/interactive-go/internal/mutate"
	"github.com/mixer/interactive-go/internal/pipeline"
	"github.com/mixer/interactive-go/internal/protocol"
	"github.com/mixer/interactive-go/internal/ratelimit"
	"github.com/mixer/interactive-go/internal/statemachine"
	"github.com/mixer/interactive-go/internal/transport"
)

// Handlers groups the host callbacks set once at construction time (spec
// §6, "Handlers (set once)"). Any nil handler is simply not invoked.
type Handlers struct {
	StateChanged        func(old, new statemachine.State)
	Input               func(e events.Event)
	ParticipantsChanged func(action string, p *entities.Participant)
	ControlChanged      func(c *entities.Control)
	TransactionComplete func(transactionID string)
	UnhandledMethod     func(method string, raw json.RawMessage)
	Error               func(code, message string)
	Debug               func(msg string)
}

// Engine is the session-owned coordinator: exactly one transport, one
// pipeline, one mirror per session (spec §3).
type Engine struct {
	cfg      *config.Config
	tr       transport.Transport
	ids      *protocol.IDGenerator
	pipe     *pipeline.Pipeline
	state    *statemachine.Machine
	mirror   *entities.Mirror
	queue    *events.Queue
	dispatch *input.Dispatcher
	Mutate   *mutate.Mutator
	Throttle *ratelimit.Table

	handlers Handlers

	mu               sync.Mutex
	initScenesDone   bool
	initGroupsDone   bool
	initServerTimeOK bool
	serverTimeOffset int64 // ms
	latency          time.Duration

	stopWorker chan struct{}
	workerDone chan struct{}
	closeOnce  sync.Once
}

// New builds an Engine over a real websocket transport, wiring every
// reply/method handler described in spec §4.7.
func New(cfg *config.Config, h Handlers) *Engine {
	return newEngine(cfg, h, transport.NewWebsocketTransport())
}

// newEngine is the shared constructor; tests substitute a fake Transport to
// drive the handshake and dispatch logic without a real socket.
func newEngine(cfg *config.Config, h Handlers, tr transport.Transport) *Engine {
	ids := &protocol.IDGenerator{}
	pipe := pipeline.New(ids, tr, cfg.Pipeline.ChunkSize, cfg.Pipeline.ReplyTimeout, cfg.Pipeline.MaxRetries)
	mirror := entities.New()
	queue := &events.Queue{}
	state := statemachine.New(nil)

	e := &Engine{
		cfg:        cfg,
		tr:         tr,
		ids:        ids,
		pipe:       pipe,
		state:      state,
		mirror:     mirror,
		queue:      queue,
		dispatch:   input.New(mirror, queue),
		Throttle:   ratelimit.NewTable(),
		handlers:   h,
		stopWorker: make(chan struct{}),
		workerDone: make(chan struct{}),
	}
	e.Mutate = mutate.New(&e.mu, state, mirror, pipe, queue, tr, e.ServerNowMs)
	state.SetOnEnter(e.onStateEnter)

	for _, rule := range cfg.Throttle {
		e.Throttle.Set(ratelimit.Category(rule.Category), rule.MaxBytes, float64(rule.BytesPerSec))
	}
	pipe.SetThrottle(e.allowSend)

	e.registerHandlers()
	go e.runPipelineWorker()
	return e
}

// runPipelineWorker is the message-pipeline worker (spec §5): it runs for
// the life of the session on its own cadence, independent of however often
// the host thread calls Run/do_work. The host tick only ever moves out
// events and clears button edges; sending, receiving and retrying RPC
// traffic happens here, mirroring the teacher's Hub.Run goroutine
// (internal/ws/hub.go) more than the original SDK's busy-spinning
// process_messages_worker.
func (e *Engine) runPipelineWorker() {
	defer close(e.workerDone)
	ticker := time.NewTicker(constants.PipelineTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopWorker:
			return
		case <-ticker.C:
			e.tr.EnsureConnected()
			connected := e.tr.State() == transport.StateConnected || e.tr.State() == transport.StateActivated
			e.pipe.Drain(connected)
		}
	}
}

// Close stops the background pipeline worker and tears down the transport,
// forcing the session back to not_initialized (spec §6, close_session). It
// waits for the worker goroutine to actually exit before closing the
// transport, so a worker tick that's already past the select (mid-
// EnsureConnected/Drain) can't redial the transport Close is about to tear
// down. Safe to call more than once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.stopWorker)
	})
	<-e.workerDone
	e.Mutate.StopInteractive()
}

// allowSend maps an outbound method to its bandwidth-throttle category and
// consults the Table (spec §6, set_bandwidth_throttle). Methods with no
// category mapping are never throttled.
func (e *Engine) allowSend(method string, nBytes int) bool {
	var category ratelimit.Category
	switch method {
	case constants.MethodUpdateParticipants:
		category = ratelimit.CategoryParticipantUpdate
	case constants.MethodCapture:
		category = ratelimit.CategoryInput
	default:
		return true
	}
	return e.Throttle.AllowN(category, nBytes)
}

func (e *Engine) onStateEnter(old, new statemachine.State) {
	e.queue.Push(events.Event{Kind: events.KindInteractivityStateChanged, State: new.String()})
	if e.handlers.StateChanged != nil {
		e.handlers.StateChanged(old, new)
	}
}

func (e *Engine) registerHandlers() {
	e.pipe.RegisterReply(constants.MethodGetTime, e.onGetTimeReply)
	e.pipe.RegisterReply(constants.MethodGetGroups, e.onGetGroupsReply)
	e.pipe.RegisterReply(constants.MethodGetScenes, e.onGetScenesReply)
	e.pipe.RegisterReply(constants.MethodCreateGroups, e.onUpsertGroupsReply)
	e.pipe.RegisterReply(constants.MethodUpdateGroups, e.onUpsertGroupsReply)
	e.pipe.RegisterReply(constants.MethodUpdateControls, e.onUpdateControlsReply)
	e.pipe.RegisterReply(constants.MethodUpdateParticipants, e.onUpdateParticipantsReply)
	e.pipe.RegisterReply(constants.MethodCapture, e.onCaptureReply)

	e.pipe.RegisterMethod(constants.MethodOnParticipantJoin, e.onParticipantJoin)
	e.pipe.RegisterMethod(constants.MethodOnParticipantLeave, e.onParticipantLeave)
	e.pipe.RegisterMethod(constants.MethodOnParticipantUpdate, e.onParticipantUpdate)
	e.pipe.RegisterMethod(constants.MethodOnReady, e.onReady)
	e.pipe.RegisterMethod(constants.MethodOnGroupCreate, e.onGroupCreateOrUpdate)
	e.pipe.RegisterMethod(constants.MethodOnGroupUpdate, e.onGroupCreateOrUpdate)
	e.pipe.RegisterMethod(constants.MethodOnControlUpdate, e.onControlUpdate)
	e.pipe.RegisterMethod(constants.MethodGiveInput, e.onGiveInput)

	e.pipe.OnUnknownMethod(func(frame *protocol.InboundFrame) {
		if e.handlers.UnhandledMethod != nil {
			e.handlers.UnhandledMethod(frame.Method, frame.Params)
		}
	})
	e.pipe.OnReplyError(func(method string, sent *protocol.Message, replyErr *protocol.ReplyError) {
		if e.handlers.Error != nil {
			e.handlers.Error(fmt.Sprintf("%d", replyErr.Code), replyErr.Message)
		}
	})
	e.pipe.OnRetryDropped(func(sent *protocol.Message) {
		e.queue.Push(events.Event{Kind: events.KindError, ErrorCode: constants.ErrCodeNotConnected, ErrorMessage: "message retries exhausted: " + sent.Method})
	})
}

// --- reply handlers (spec §4.7) ---

func (e *Engine) onGetTimeReply(method string, sent *protocol.Message, frame *protocol.InboundFrame) {
	var result protocol.GetTimeResult
	if err := json.Unmarshal(frame.Result, &result); err != nil {
		slog.Warn("engine: malformed getTime reply", "component", "engine", "error", err)
		return
	}
	now := time.Now().UnixMilli()
	latency := (now - sent.Timestamp) / 2

	e.mu.Lock()
	e.latency = time.Duration(latency) * time.Millisecond
	e.serverTimeOffset = now - result.Time - latency
	e.initServerTimeOK = true
	e.mu.Unlock()
}

func (e *Engine) onGetGroupsReply(method string, sent *protocol.Message, frame *protocol.InboundFrame) {
	var result protocol.GetGroupsResult
	if err := json.Unmarshal(frame.Result, &result); err != nil {
		slog.Warn("engine: malformed getGroups reply", "component", "engine", "error", err)
		return
	}
	e.mu.Lock()
	e.mirror.ApplyGetGroups(result.Groups)
	e.initGroupsDone = true
	e.mu.Unlock()
}

func (e *Engine) onGetScenesReply(method string, sent *protocol.Message, frame *protocol.InboundFrame) {
	var result protocol.GetScenesResult
	if err := json.Unmarshal(frame.Result, &result); err != nil {
		slog.Warn("engine: malformed getScenes reply", "component", "engine", "error", err)
		return
	}
	e.mu.Lock()
	e.mirror.ApplyGetScenes(result.Scenes)
	e.initScenesDone = true
	e.mu.Unlock()
}

func (e *Engine) onUpsertGroupsReply(method string, sent *protocol.Message, frame *protocol.InboundFrame) {
	var params protocol.CreateOrUpdateGroupsParams
	if err := json.Unmarshal(sent.Params, &params); err != nil {
		return
	}
	e.mu.Lock()
	e.mirror.UpsertGroups(params.Groups)
	e.mu.Unlock()
}

func (e *Engine) onUpdateControlsReply(method string, sent *protocol.Message, frame *protocol.InboundFrame) {
	var params protocol.UpdateControlsParams
	if err := json.Unmarshal(sent.Params, &params); err != nil {
		return
	}
	e.mu.Lock()
	e.mirror.UpdateControls(params.Controls)
	e.mu.Unlock()
}

func (e *Engine) onUpdateParticipantsReply(method string, sent *protocol.Message, frame *protocol.InboundFrame) {
	var params protocol.UpdateParticipantsParams
	if err := json.Unmarshal(sent.Params, &params); err != nil {
		return
	}
	e.mu.Lock()
	for _, pw := range params.Participants {
		if p, ok := e.mirror.ByMixerID(pw.UserID); ok {
			e.mirror.UpdateParticipant(p, pw)
		}
	}
	e.mu.Unlock()
}

func (e *Engine) onCaptureReply(method string, sent *protocol.Message, frame *protocol.InboundFrame) {
	var params protocol.CaptureParams
	if err := json.Unmarshal(sent.Params, &params); err != nil {
		return
	}
	if e.handlers.TransactionComplete != nil {
		e.handlers.TransactionComplete(params.TransactionID)
	}
}

// --- method handlers (spec §4.7) ---

func (e *Engine) onParticipantJoin(frame *protocol.InboundFrame) {
	var params protocol.OnParticipantJoinParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		slog.Warn("engine: malformed onParticipantJoin", "component", "engine", "error", err)
		return
	}
	e.mu.Lock()
	var joined []*entities.Participant
	for _, pw := range params.Participants {
		joined = append(joined, e.mirror.JoinParticipant(pw))
	}
	e.mu.Unlock()

	for _, p := range joined {
		e.queue.Push(events.Event{Kind: events.KindParticipantStateChanged, ParticipantMixerID: p.MixerID, ParticipantAction: "joined"})
		if e.handlers.ParticipantsChanged != nil {
			e.handlers.ParticipantsChanged("joined", p)
		}
	}
}

func (e *Engine) onParticipantLeave(frame *protocol.InboundFrame) {
	var params protocol.OnParticipantLeaveParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		slog.Warn("engine: malformed onParticipantLeave", "component", "engine", "error", err)
		return
	}
	e.mu.Lock()
	var left []*entities.Participant
	for _, pw := range params.Participants {
		if p := e.mirror.LeaveParticipant(pw.SessionID); p != nil {
			left = append(left, p)
			for _, c := range e.mirror.Controls {
				c.PruneParticipant(p.SessionID)
			}
		}
	}
	e.mu.Unlock()

	for _, p := range left {
		e.queue.Push(events.Event{Kind: events.KindParticipantStateChanged, ParticipantMixerID: p.MixerID, ParticipantAction: "left"})
		if e.handlers.ParticipantsChanged != nil {
			e.handlers.ParticipantsChanged("left", p)
		}
	}
}

func (e *Engine) onParticipantUpdate(frame *protocol.InboundFrame) {
	var params protocol.OnParticipantUpdateParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		slog.Warn("engine: malformed onParticipantUpdate", "component", "engine", "error", err)
		return
	}
	e.mu.Lock()
	var updated []*entities.Participant
	for _, pw := range params.Participants {
		if p, ok := e.mirror.BySessionID(pw.SessionID); ok {
			e.mirror.UpdateParticipant(p, pw)
			updated = append(updated, p)
		}
	}
	e.mu.Unlock()

	for _, p := range updated {
		e.queue.Push(events.Event{Kind: events.KindParticipantStateChanged, ParticipantMixerID: p.MixerID, ParticipantAction: "updated"})
		if e.handlers.ParticipantsChanged != nil {
			e.handlers.ParticipantsChanged("updated", p)
		}
	}
}

func (e *Engine) onReady(frame *protocol.InboundFrame) {
	var params protocol.OnReadyParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		slog.Warn("engine: malformed onReady", "component", "engine", "error", err)
		return
	}
	target := statemachine.InteractivityDisabled
	if params.IsReady {
		target = statemachine.InteractivityEnabled
	}
	if !e.state.TryTransition(target) {
		slog.Warn("engine: onReady invalid transition", "component", "engine", "from", e.state.Current().String(), "to", target.String())
	}
}

func (e *Engine) onGroupCreateOrUpdate(frame *protocol.InboundFrame) {
	var params protocol.CreateOrUpdateGroupsParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		slog.Warn("engine: malformed group notification", "component", "engine", "error", err)
		return
	}
	e.mu.Lock()
	e.mirror.UpsertGroups(params.Groups)
	e.mu.Unlock()
}

func (e *Engine) onControlUpdate(frame *protocol.InboundFrame) {
	var params protocol.UpdateControlsParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		slog.Warn("engine: malformed onControlUpdate", "component", "engine", "error", err)
		return
	}
	e.mu.Lock()
	e.mirror.UpdateControls(params.Controls)
	e.mu.Unlock()

	if e.handlers.ControlChanged != nil {
		for _, cw := range params.Controls {
			if c, ok := e.mirror.Controls[cw.ControlID]; ok {
				e.handlers.ControlChanged(c)
			}
		}
	}
}

func (e *Engine) onGiveInput(frame *protocol.InboundFrame) {
	var params protocol.GiveInputParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		slog.Warn("engine: malformed giveInput", "component", "engine", "error", err)
		return
	}
	e.mu.Lock()
	e.dispatch.Dispatch(e.state.Current(), params)
	e.mu.Unlock()
}

// DebugInjectParticipant synthesizes a participant join or leave locally,
// without a live service connection (spec §12.1: "build_participant_state_
// change_mock_data"). Demo/test-only — not part of the public host-facing
// mutator contract.
func (e *Engine) DebugInjectParticipant(join bool, mixerID uint32, sessionID, username string) {
	e.mu.Lock()
	var p *entities.Participant
	if join {
		p = e.mirror.JoinParticipant(protocol.ParticipantWire{
			SessionID:   sessionID,
			UserID:      mixerID,
			Username:    username,
			GroupID:     constants.DefaultGroupID,
			ConnectedAt: time.Now().UnixMilli(),
		})
	} else {
		p = e.mirror.LeaveParticipant(sessionID)
	}
	e.mu.Unlock()

	if p == nil {
		return
	}
	action := "left"
	if join {
		action = "joined"
	}
	e.queue.Push(events.Event{Kind: events.KindParticipantStateChanged, ParticipantMixerID: p.MixerID, ParticipantAction: action})
	if e.handlers.ParticipantsChanged != nil {
		e.handlers.ParticipantsChanged(action, p)
	}
}

// ServerNowMs returns the current absolute server-clock time in
// milliseconds, derived from the last getTime round trip (spec §4.9,
// trigger_cooldown).
func (e *Engine) ServerNowMs() int64 {
	e.mu.Lock()
	offset := e.serverTimeOffset
	e.mu.Unlock()
	return time.Now().UnixMilli() - offset
}

// Latency returns the one-shot getTime round-trip latency (spec §12.3).
func (e *Engine) Latency() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latency
}

// ServerTimeOffset returns wallclock-minus-serverclock in milliseconds
// (spec §12.3).
func (e *Engine) ServerTimeOffset() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.serverTimeOffset
}

// State returns the session's current lifecycle state.
func (e *Engine) State() statemachine.State {
	return e.state.Current()
}

// Mirror exposes the read-only query surface (spec §6, get_scenes/
// get_groups/get_participants); callers must not mutate returned maps.
func (e *Engine) Mirror() *entities.Mirror {
	return e.mirror
}

// Initialize runs the init coordinator to completion (spec §4.3); intended
// to be called on its own goroutine by the host-facing Session.
func (e *Engine) Initialize(ctx context.Context, bootstrapHTTP *http.Client, versionID, shareCode string, goInteractive bool) error {
	if e.Mutate.AuthToken() == "" {
		return e.fail(constants.ErrCodeOperationCanceled, "initialize requires a non-empty auth token")
	}
	if !e.state.TryTransition(statemachine.Initializing) {
		return e.fail(constants.ErrCodeInvalidState, "initialize: invalid starting state")
	}

	uri, err := bootstrap.Discover(ctx, bootstrapHTTP, e.cfg.BootstrapURL)
	if err != nil {
		e.state.Force(statemachine.NotInitialized)
		return e.fail(constants.ErrCodeConnectionRefused, err.Error())
	}
	e.debugf("bootstrap resolved host %s", uri)

	e.tr.SetURI(uri, map[string]string{
		"Authorization":           "Bearer " + e.Mutate.AuthToken(),
		"X-Interactive-Version":   versionID,
		"X-Interactive-Sharecode": shareCode,
		"X-Protocol-Version":      constants.ProtocolVersion,
	})
	e.tr.EnsureConnected()

	if err := e.pollBackoff(ctx, func() (bool, bool) {
		switch e.tr.State() {
		case transport.StateConnected, transport.StateActivated:
			return true, false
		case transport.StateDisconnected:
			return false, true
		default:
			return false, false
		}
	}); err != nil {
		e.state.Force(statemachine.NotInitialized)
		return e.fail(constants.ErrCodeConnectionRefused, "handshake: transport never connected")
	}

	if _, err := e.pipe.Enqueue(constants.MethodGetTime, struct{}{}, false); err != nil {
		return err
	}
	if _, err := e.pipe.Enqueue(constants.MethodGetGroups, struct{}{}, false); err != nil {
		return err
	}
	if _, err := e.pipe.Enqueue(constants.MethodGetScenes, struct{}{}, false); err != nil {
		return err
	}

	if err := e.pollBackoff(ctx, func() (bool, bool) {
		e.mu.Lock()
		done := e.initScenesDone && e.initGroupsDone && e.initServerTimeOK
		e.mu.Unlock()
		return done, false
	}); err != nil {
		e.state.Force(statemachine.NotInitialized)
		return e.fail(constants.ErrCodeOperationCanceled, "handshake: getTime/getGroups/getScenes did not complete")
	}

	if !e.state.TryTransition(statemachine.InteractivityDisabled) {
		return e.fail(constants.ErrCodeInvalidState, "initialize: could not reach interactivity_disabled")
	}
	e.debugf("handshake complete, offset=%dms latency=%s", e.ServerTimeOffset(), e.Latency())

	if goInteractive {
		return e.Mutate.StartInteractive()
	}
	return nil
}

func (e *Engine) fail(code, message string) error {
	e.queue.Push(events.Event{Kind: events.KindError, ErrorCode: code, ErrorMessage: message})
	if e.handlers.Error != nil {
		e.handlers.Error(code, message)
	}
	return fmt.Errorf("engine: %s: %s", code, message)
}

func (e *Engine) debugf(format string, args ...any) {
	if e.handlers.Debug == nil {
		return
	}
	e.handlers.Debug(fmt.Sprintf(format, args...))
}

// pollBackoff polls cond with exponential backoff (spec §4.3: 100ms * 3^n,
// capped at 60s, up to 7 retries) until it reports done, or a hard failure.
func (e *Engine) pollBackoff(ctx context.Context, cond func() (done bool, failed bool)) error {
	delay := e.cfg.Handshake.BaseDelay
	for attempt := 0; attempt <= e.cfg.Handshake.MaxRetries; attempt++ {
		done, failed := cond()
		if done {
			return nil
		}
		if failed {
			return fmt.Errorf("engine: handshake poll failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= time.Duration(e.cfg.Handshake.Backoff)
		if delay > e.cfg.Handshake.MaxDelay {
			delay = e.cfg.Handshake.MaxDelay
		}
	}
	return fmt.Errorf("engine: handshake poll exhausted retries")
}

// Run is the host tick (do_work, spec §4.6): moves out the buffered events
// and clears button edge flags. Callable only by the host thread. It never
// touches the message pipeline — that is runPipelineWorker's job, running
// independently for the life of the session (spec §5).
func (e *Engine) Run(maxEventsToDrain int) []events.Event {
	e.mu.Lock()
	for _, c := range e.mirror.Controls {
		if c.Kind == entities.KindButton {
			c.ClearButtonEdges()
		}
	}
	drained := e.queue.DrainAll()
	e.mu.Unlock()

	if maxEventsToDrain > 0 && len(drained) > maxEventsToDrain {
		drained = drained[:maxEventsToDrain]
	}
	for _, ev := range drained {
		if e.handlers.Input != nil && (ev.Kind == events.KindButton || ev.Kind == events.KindJoystick) {
			e.handlers.Input(ev)
		}
	}
	return drained
}
