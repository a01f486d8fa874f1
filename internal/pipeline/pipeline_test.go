package pipeline

import (
	"strconv"
	"testing"
	"time"

	"github.com/mixer/interactive-go/internal/constants"
	"github.com/mixer/interactive-go/internal/protocol"
	"github.com/mixer/interactive-go/internal/transport"
)

// fakeTransport is an in-memory transport.Transport for pipeline tests; it
// never actually connects, it just records sent frames.
type fakeTransport struct {
	state    transport.State
	sent     [][]byte
	sendErr  error
	onText   func([]byte)
}

func (f *fakeTransport) SetURI(string, map[string]string) {}
func (f *fakeTransport) EnsureConnected()                 { f.state = transport.StateConnected }
func (f *fakeTransport) Close()                           { f.state = transport.StateDisconnected }
func (f *fakeTransport) State() transport.State           { return f.state }
func (f *fakeTransport) OnStateChange(func(old, new transport.State)) {}
func (f *fakeTransport) OnText(fn func([]byte))           { f.onText = fn }
func (f *fakeTransport) Send(text []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func newTestPipeline() (*Pipeline, *fakeTransport) {
	tr := &fakeTransport{state: transport.StateConnected}
	p := New(&protocol.IDGenerator{}, tr, constants.PipelineChunkSize, constants.ReplyTimeout, constants.MaxMessageRetries)
	return p, tr
}

func TestEnqueueAndDrainSendInsertsAwaitingReplyBeforeSend(t *testing.T) {
	p, tr := newTestPipeline()

	id, err := p.Enqueue("updateGroups", map[string]string{"groupID": "default"}, false)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	p.Drain(true)

	if len(tr.sent) != 1 {
		t.Fatalf("expected 1 sent frame, got %d", len(tr.sent))
	}
	pending, awaiting, _ := p.PendingCounts()
	if pending != 0 || awaiting != 1 {
		t.Fatalf("pending=%d awaiting=%d, want 0,1", pending, awaiting)
	}
	if _, ok := p.awaitingByID[id]; !ok {
		t.Fatalf("message %d not in awaitingByID after send", id)
	}
}

func TestDiscardMessagesNeverAwaitReply(t *testing.T) {
	p, _ := newTestPipeline()

	if _, err := p.Enqueue("ready", map[string]bool{"isReady": true}, true); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	p.Drain(true)

	_, awaiting, _ := p.PendingCounts()
	if awaiting != 0 {
		t.Fatalf("awaiting = %d, want 0 for a discard message", awaiting)
	}
}

func TestReplyDispatchRemovesFromAwaitingReply(t *testing.T) {
	p, tr := newTestPipeline()

	var gotMethod string
	p.RegisterReply("getTime", func(method string, sent *protocol.Message, frame *protocol.InboundFrame) {
		gotMethod = method
	})

	id, _ := p.Enqueue("getTime", struct{}{}, false)
	p.Drain(true)

	tr.onText([]byte(`{"id":` + strconv.FormatUint(uint64(id), 10) + `,"type":"reply","result":{"time":100}}`))
	p.Drain(true)

	if gotMethod != "getTime" {
		t.Fatalf("reply handler not invoked, gotMethod = %q", gotMethod)
	}
	_, awaiting, _ := p.PendingCounts()
	if awaiting != 0 {
		t.Fatalf("awaiting = %d after reply, want 0", awaiting)
	}
}

func TestReplyErrorDropsWithoutRetry(t *testing.T) {
	p, tr := newTestPipeline()

	var errCalled bool
	p.OnReplyError(func(method string, sent *protocol.Message, replyErr *protocol.ReplyError) {
		errCalled = true
	})

	id, _ := p.Enqueue("updateControls", struct{}{}, false)
	p.Drain(true)

	tr.onText([]byte(`{"id":` + strconv.FormatUint(uint64(id), 10) + `,"type":"reply","error":{"code":5000,"message":"nope"}}`))
	p.Drain(true)

	if !errCalled {
		t.Fatalf("OnReplyError handler not invoked")
	}
	_, awaiting, _ := p.PendingCounts()
	if awaiting != 0 {
		t.Fatalf("awaiting = %d after error reply, want 0 (no retry)", awaiting)
	}
}

func TestRetryRequeuesUntilExhausted(t *testing.T) {
	p, _ := newTestPipeline()

	var dropped bool
	p.OnRetryDropped(func(sent *protocol.Message) { dropped = true })

	p.Enqueue("updateGroups", struct{}{}, false)
	p.Drain(true) // send phase moves it into awaitingReply

	// Each retry takes two Drains: one times the message out and requeues
	// it, the next resends it into awaitingReply.
	for attempt := 0; attempt <= 2*constants.MaxMessageRetries; attempt++ {
		p.mu.Lock()
		for _, msg := range p.awaitingReply {
			msg.Timestamp = time.Now().Add(-constants.ReplyTimeout - time.Second).UnixMilli()
		}
		p.mu.Unlock()
		p.Drain(true)
	}

	if !dropped {
		t.Fatalf("expected message to be dropped after exhausting retries")
	}
	pending, awaiting, _ := p.PendingCounts()
	if pending != 0 || awaiting != 0 {
		t.Fatalf("pending=%d awaiting=%d after drop, want 0,0", pending, awaiting)
	}
}

func TestMethodDispatchFallsBackToUnknown(t *testing.T) {
	p, tr := newTestPipeline()

	var gotMethod string
	p.OnUnknownMethod(func(frame *protocol.InboundFrame) { gotMethod = frame.Method })

	tr.onText([]byte(`{"id":1,"type":"method","method":"onSomethingNew","params":{}}`))
	p.Drain(true)

	if gotMethod != "onSomethingNew" {
		t.Fatalf("unknown method handler got %q, want onSomethingNew", gotMethod)
	}
}
