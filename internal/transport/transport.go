// Package transport abstracts the duplex text-frame channel to the service
// (spec §4.1). The core only depends on this interface; the default
// implementation in this package dials a real websocket, but hosts embedding
// the engine in a test harness can swap in a fake.
package transport

// State is the transport's observable connection state. The core maps these
// onto its own reduced set (disconnected/connecting/connected) and ignores
// Activated, per spec §4.1.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateActivated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateActivated:
		return "activated"
	default:
		return "unknown"
	}
}

// Transport is the duplex channel the pipeline drains/feeds.
type Transport interface {
	// SetURI configures the endpoint to dial; must be called before
	// EnsureConnected.
	SetURI(uri string, headers map[string]string)

	// EnsureConnected starts connecting if not already connected or
	// connecting. Non-blocking; observe State()/OnStateChange for progress.
	EnsureConnected()

	// Send writes one text frame. Returns an error if the underlying write
	// fails; the caller (pipeline send phase) is responsible for retry.
	Send(text []byte) error

	// Close tears down the connection. Best-effort.
	Close()

	// State returns the current connection state.
	State() State

	// OnStateChange registers a callback invoked on every transition. Must
	// not be called while holding the session or messages mutex.
	OnStateChange(fn func(old, new State))

	// OnText registers a callback invoked for every received text frame.
	// Must only append to the incoming queue or update transport state
	// (spec §5, "Suspension points").
	OnText(fn func(message []byte))
}
