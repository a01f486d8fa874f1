package transport

import (
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 45 * time.Second
	pingPeriod     = 20 * time.Second
	maxMessageSize = 65536
	sendBufferSize = 256
)

// WebsocketTransport is the default Transport, a thin client-side analogue
// of the teacher's internal/ws Client read/write pumps (internal/ws/client.go),
// turned around to dial out instead of accept connections.
type WebsocketTransport struct {
	dialer *websocket.Dialer

	mu      sync.Mutex
	uri     string
	headers http.Header
	conn    *websocket.Conn

	state atomic.Int32

	stateMu  sync.Mutex
	onState  []func(old, new State)
	onText   []func(message []byte)
	closeCh  chan struct{}
	closeErr sync.Once

	send chan []byte
}

// NewWebsocketTransport constructs a Transport backed by gorilla/websocket.
func NewWebsocketTransport() *WebsocketTransport {
	t := &WebsocketTransport{
		dialer: &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		send:   make(chan []byte, sendBufferSize),
	}
	t.state.Store(int32(StateDisconnected))
	return t
}

func (t *WebsocketTransport) SetURI(uri string, headers map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uri = uri
	h := make(http.Header, len(headers))
	for k, v := range headers {
		h.Set(k, v)
	}
	t.headers = h
}

func (t *WebsocketTransport) State() State {
	return State(t.state.Load())
}

func (t *WebsocketTransport) OnStateChange(fn func(old, new State)) {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	t.onState = append(t.onState, fn)
}

func (t *WebsocketTransport) OnText(fn func(message []byte)) {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	t.onText = append(t.onText, fn)
}

func (t *WebsocketTransport) setState(new State) {
	old := State(t.state.Swap(int32(new)))
	if old == new {
		return
	}
	t.stateMu.Lock()
	callbacks := append([]func(old, new State){}, t.onState...)
	t.stateMu.Unlock()
	for _, cb := range callbacks {
		cb(old, new)
	}
}

func (t *WebsocketTransport) EnsureConnected() {
	switch t.State() {
	case StateConnected, StateConnecting, StateActivated:
		return
	}
	t.mu.Lock()
	uri := t.uri
	headers := t.headers
	t.mu.Unlock()
	if uri == "" {
		slog.Warn("transport: EnsureConnected called with no URI", "component", "transport")
		return
	}
	t.setState(StateConnecting)
	attemptID := uuid.NewString()
	go t.dial(uri, headers, attemptID)
}

// dial runs one connection attempt. attemptID tags every log line from this
// attempt so reconnects can be told apart in a host's aggregated logs.
func (t *WebsocketTransport) dial(uri string, headers http.Header, attemptID string) {
	if _, err := url.Parse(uri); err != nil {
		slog.Error("transport: invalid uri", "component", "transport", "attempt_id", attemptID, "error", err)
		t.setState(StateDisconnected)
		return
	}
	conn, _, err := t.dialer.Dial(uri, headers)
	if err != nil {
		slog.Error("transport: dial failed", "component", "transport", "attempt_id", attemptID, "error", err)
		t.setState(StateDisconnected)
		return
	}
	slog.Info("transport: connected", "component", "transport", "attempt_id", attemptID)

	t.mu.Lock()
	t.conn = conn
	t.closeCh = make(chan struct{})
	t.closeErr = sync.Once{}
	t.mu.Unlock()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	t.setState(StateConnected)

	go t.writePump(conn)
	t.readPump(conn)
}

func (t *WebsocketTransport) readPump(conn *websocket.Conn) {
	defer t.teardown(conn)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("transport: read error", "component", "transport", "error", err)
			}
			return
		}
		t.stateMu.Lock()
		callbacks := append([]func([]byte){}, t.onText...)
		t.stateMu.Unlock()
		for _, cb := range callbacks {
			cb(message)
		}
	}
}

func (t *WebsocketTransport) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	t.mu.Lock()
	closeCh := t.closeCh
	t.mu.Unlock()

	for {
		select {
		case data, ok := <-t.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Error("transport: write error", "component", "transport", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closeCh:
			return
		}
	}
}

func (t *WebsocketTransport) teardown(conn *websocket.Conn) {
	conn.Close()
	t.setState(StateDisconnected)
}

// Send enqueues a text frame for the write pump. Non-blocking: if the
// outbound buffer is full, the frame is dropped and an error returned so the
// pipeline's send phase can leave the message in awaiting-reply for retry.
func (t *WebsocketTransport) Send(text []byte) error {
	if t.State() != StateConnected && t.State() != StateActivated {
		return errNotConnected
	}
	select {
	case t.send <- text:
		return nil
	default:
		return errSendBufferFull
	}
}

func (t *WebsocketTransport) Close() {
	t.mu.Lock()
	conn := t.conn
	closeCh := t.closeCh
	t.mu.Unlock()

	if closeCh != nil {
		t.closeErr.Do(func() { close(closeCh) })
	}
	if conn != nil {
		conn.Close()
	}
	t.setState(StateDisconnected)
}
