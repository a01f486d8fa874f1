// Package pipeline implements the two in-flight queues plus the incoming
// queue and the tick-driven drain loop described in spec §4.5: pending-send,
// awaiting-reply (with timeout-based retry), and incoming (parsed frames
// awaiting dispatch). It is the most concurrency-sensitive piece of the
// engine, mirroring the channel/mutex discipline of the teacher's Hub.Run
// loop (internal/ws/hub.go) but driven by an explicit tick instead of a
// select over channels, since the spec calls for chunked, bounded-per-tick
// draining rather than one-event-at-a-time handling.
package pipeline

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mixer/interactive-go/internal/protocol"
	"github.com/mixer/interactive-go/internal/transport"
)

// ReplyHandler processes a reply frame for a message whose outbound method
// is known (stored at send time) — spec §4.5, "Correlation": the method
// name for dispatch comes from the stored outbound message, not the reply.
type ReplyHandler func(method string, sent *protocol.Message, frame *protocol.InboundFrame)

// MethodHandler processes an inbound "method" frame (a service-initiated
// notification such as onControlUpdate or giveInput).
type MethodHandler func(frame *protocol.InboundFrame)

// Pipeline owns the three queues and the messages-mutex (spec §5: "A
// separate messages-mutex serializes the three queues"). It never acquires
// the session mutex itself; callers (the engine) are responsible for lock
// ordering (session-mutex before messages-mutex, never the reverse).
type Pipeline struct {
	ids *protocol.IDGenerator
	tr  transport.Transport

	chunkSize    int
	replyTimeout time.Duration
	maxRetries   int

	mu            sync.Mutex
	pendingSend   []*protocol.Message
	awaitingReply []*protocol.Message
	awaitingByID  map[uint32]*protocol.Message
	incoming      [][]byte

	onReply        map[string]ReplyHandler
	onMethod       map[string]MethodHandler
	onUnknown      MethodHandler
	onReplyError   func(method string, sent *protocol.Message, replyErr *protocol.ReplyError)
	onRetryDropped func(sent *protocol.Message)

	allowSend func(method string, nBytes int) bool
}

// New builds an empty Pipeline bound to ids and tr, tuned by chunkSize,
// replyTimeout and maxRetries (config.Config.Pipeline, spec §10.2). Handlers
// are registered after construction via RegisterReply/RegisterMethod.
func New(ids *protocol.IDGenerator, tr transport.Transport, chunkSize int, replyTimeout time.Duration, maxRetries int) *Pipeline {
	p := &Pipeline{
		ids:          ids,
		tr:           tr,
		chunkSize:    chunkSize,
		replyTimeout: replyTimeout,
		maxRetries:   maxRetries,
		awaitingByID: make(map[uint32]*protocol.Message),
		onReply:      make(map[string]ReplyHandler),
		onMethod:     make(map[string]MethodHandler),
	}
	tr.OnText(p.FeedIncoming)
	return p
}

// RegisterReply binds a handler for replies to messages sent with the given
// outbound method name.
func (p *Pipeline) RegisterReply(method string, h ReplyHandler) {
	p.onReply[method] = h
}

// RegisterMethod binds a handler for inbound service-initiated method
// frames of the given name.
func (p *Pipeline) RegisterMethod(method string, h MethodHandler) {
	p.onMethod[method] = h
}

// OnUnknownMethod sets the fallback for inbound method frames with no
// registered handler (spec §6, "unhandled-method" host handler).
func (p *Pipeline) OnUnknownMethod(h MethodHandler) {
	p.onUnknown = h
}

// OnReplyError sets the handler invoked when a reply carries an `error`
// payload (spec §4.5: "log and drop silently — no retry").
func (p *Pipeline) OnReplyError(h func(method string, sent *protocol.Message, replyErr *protocol.ReplyError)) {
	p.onReplyError = h
}

// OnRetryDropped sets the handler invoked when a message exhausts its retry
// budget (spec §4.5 retry phase, §8 invariant (b)).
func (p *Pipeline) OnRetryDropped(h func(sent *protocol.Message)) {
	p.onRetryDropped = h
}

// SetThrottle installs the advisory bandwidth gate consulted in the send
// phase (spec §6, set_bandwidth_throttle). A message whose category is over
// budget is left in pending-send for a later tick rather than dropped.
func (p *Pipeline) SetThrottle(allow func(method string, nBytes int) bool) {
	p.allowSend = allow
}

// Enqueue assigns a fresh id, builds the outbound message, and appends it to
// the pending-send queue. Returns the assigned id.
func (p *Pipeline) Enqueue(method string, params any, discard bool) (uint32, error) {
	id := p.ids.Next()
	msg, err := protocol.NewMessage(id, method, params, discard)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	p.pendingSend = append(p.pendingSend, msg)
	p.mu.Unlock()
	return id, nil
}

// FeedIncoming appends a raw received frame to the incoming queue. Safe to
// call from the transport's own goroutine (spec §5, "Suspension points").
func (p *Pipeline) FeedIncoming(raw []byte) {
	p.mu.Lock()
	p.incoming = append(p.incoming, raw)
	p.mu.Unlock()
}

// Drain runs one iteration of the inbound, send and retry phases, each
// bounded to chunkSize items (spec §4.5). connected reports whether the
// transport is currently usable for the send phase.
func (p *Pipeline) Drain(connected bool) {
	p.drainInbound()
	if connected {
		p.drainSend()
	}
	p.drainRetry()
}

func (p *Pipeline) drainInbound() {
	batch := p.popIncoming(p.chunkSize)
	for _, raw := range batch {
		frame, err := protocol.Decode(raw)
		if err != nil {
			slog.Warn("pipeline: malformed frame", "component", "pipeline", "error", err)
			continue
		}
		switch frame.Type {
		case protocol.FrameReply:
			p.dispatchReply(frame)
		case protocol.FrameMethod:
			p.dispatchMethod(frame)
		default:
			slog.Warn("pipeline: unknown frame type", "component", "pipeline", "type", frame.Type)
		}
	}
}

func (p *Pipeline) popIncoming(n int) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.incoming) == 0 {
		return nil
	}
	if n > len(p.incoming) {
		n = len(p.incoming)
	}
	batch := p.incoming[:n]
	p.incoming = p.incoming[n:]
	return batch
}

func (p *Pipeline) dispatchReply(frame *protocol.InboundFrame) {
	p.mu.Lock()
	sent, ok := p.awaitingByID[frame.ID]
	if ok {
		delete(p.awaitingByID, frame.ID)
		p.awaitingReply = removeByID(p.awaitingReply, frame.ID)
	}
	p.mu.Unlock()

	if !ok {
		slog.Warn("pipeline: reply for unknown id", "component", "pipeline", "id", frame.ID)
		return
	}

	if frame.Error != nil {
		slog.Warn("pipeline: reply error", "component", "pipeline", "method", sent.Method, "code", frame.Error.Code, "message", frame.Error.Message)
		if p.onReplyError != nil {
			p.onReplyError(sent.Method, sent, frame.Error)
		}
		return
	}

	if h, ok := p.onReply[sent.Method]; ok {
		h(sent.Method, sent, frame)
	}
}

func (p *Pipeline) dispatchMethod(frame *protocol.InboundFrame) {
	if h, ok := p.onMethod[frame.Method]; ok {
		h(frame)
		return
	}
	slog.Warn("pipeline: unhandled method", "component", "pipeline", "method", frame.Method)
	if p.onUnknown != nil {
		p.onUnknown(frame)
	}
}

func (p *Pipeline) drainSend() {
	batch := p.popPendingSend(p.chunkSize)
	now := time.Now().UnixMilli()
	for _, msg := range batch {
		encoded, err := msg.Encode()
		if err != nil {
			slog.Error("pipeline: encode failed", "component", "pipeline", "method", msg.Method, "error", err)
			continue
		}

		if p.allowSend != nil && !p.allowSend(msg.Method, len(encoded)) {
			// Over the advisory byte budget for this method's category;
			// retry the same message next tick instead of dropping it.
			p.mu.Lock()
			p.pendingSend = append(p.pendingSend, msg)
			p.mu.Unlock()
			continue
		}

		if !msg.Discard {
			msg.Timestamp = now
			p.mu.Lock()
			p.awaitingReply = append(p.awaitingReply, msg)
			p.awaitingByID[msg.ID] = msg
			p.mu.Unlock()
		}

		if err := p.tr.Send(encoded); err != nil {
			// Leave the entry in awaiting-reply (if non-discard); the
			// retry phase's timeout will requeue it (spec §4.5, send phase).
			slog.Warn("pipeline: send failed, will retry on timeout", "component", "pipeline", "method", msg.Method, "error", err)
		}
	}
}

func (p *Pipeline) popPendingSend(n int) []*protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pendingSend) == 0 {
		return nil
	}
	if n > len(p.pendingSend) {
		n = len(p.pendingSend)
	}
	batch := p.pendingSend[:n]
	p.pendingSend = p.pendingSend[n:]
	return batch
}

func (p *Pipeline) drainRetry() {
	now := time.Now().UnixMilli()

	p.mu.Lock()
	n := p.chunkSize
	if n > len(p.awaitingReply) {
		n = len(p.awaitingReply)
	}
	var toRetry, toDrop []*protocol.Message
	var kept []*protocol.Message
	kept = append(kept, p.awaitingReply[n:]...)
	for _, msg := range p.awaitingReply[:n] {
		elapsed := time.Duration(now-msg.Timestamp) * time.Millisecond
		if elapsed <= p.replyTimeout {
			kept = append(kept, msg)
			continue
		}
		delete(p.awaitingByID, msg.ID)
		if int(msg.Retries) < p.maxRetries {
			msg.Retries++
			toRetry = append(toRetry, msg)
		} else {
			toDrop = append(toDrop, msg)
		}
	}
	p.awaitingReply = kept
	p.pendingSend = append(p.pendingSend, toRetry...)
	p.mu.Unlock()

	for _, msg := range toDrop {
		slog.Error("pipeline: message retries exhausted, dropping", "component", "pipeline", "method", msg.Method, "id", msg.ID)
		if p.onRetryDropped != nil {
			p.onRetryDropped(msg)
		}
	}
}

func removeByID(list []*protocol.Message, id uint32) []*protocol.Message {
	for i, m := range list {
		if m.ID == id {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// PendingCounts returns queue depths, useful for diagnostics/tests.
func (p *Pipeline) PendingCounts() (pending, awaiting, inbound int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pendingSend), len(p.awaitingReply), len(p.incoming)
}
