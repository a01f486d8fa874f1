// Package constants holds wire-level names and tuning values shared across
// the session engine, mirroring how the teacher keeps transport-agnostic
// error codes and protocol numbers in one place.
package constants

import "time"

// ProtocolVersion is the exact client/service wire protocol version sent on
// the websocket handshake via X-Protocol-Version.
const ProtocolVersion = "2.0"

// Outbound RPC methods (client -> service).
const (
	MethodGetTime            = "getTime"
	MethodGetGroups          = "getGroups"
	MethodGetScenes          = "getScenes"
	MethodCreateGroups       = "createGroups"
	MethodUpdateGroups       = "updateGroups"
	MethodUpdateParticipants = "updateParticipants"
	MethodUpdateControls     = "updateControls"
	MethodReady              = "ready"
	MethodCapture            = "capture"
)

// Inbound RPC methods (service -> client).
const (
	MethodOnParticipantJoin   = "onParticipantJoin"
	MethodOnParticipantLeave  = "onParticipantLeave"
	MethodOnParticipantUpdate = "onParticipantUpdate"
	MethodOnReady             = "onReady"
	MethodOnGroupCreate       = "onGroupCreate"
	MethodOnGroupUpdate       = "onGroupUpdate"
	MethodOnControlUpdate     = "onControlUpdate"
	MethodGiveInput           = "giveInput"
)

// Control kinds.
const (
	ControlKindButton   = "button"
	ControlKindJoystick = "joystick"
)

// giveInput event names.
const (
	InputEventMouseDown = "mousedown"
	InputEventKeyDown   = "keydown"
	InputEventMouseUp   = "mouseup"
	InputEventKeyUp     = "keyup"
	InputEventMove      = "move"
)

// Default bootstrap endpoint for discovering the websocket host.
const DefaultBootstrapURL = "https://beam.pro/api/v1/interactive/hosts"

// Pipeline tuning (§4.5 of the spec). These are the defaults config.Load
// falls back to; the live Pipeline is built from config.Config.Pipeline, not
// these constants directly.
const (
	PipelineChunkSize = 10
	ReplyTimeout      = 10 * time.Second
	MaxMessageRetries = 10
)

// PipelineTickInterval paces the background message-pipeline worker (spec
// §5: a worker distinct from the host's own do_work cadence).
const PipelineTickInterval = 20 * time.Millisecond

// Handshake polling (§4.3 of the spec): exponential backoff 100ms * 3^n,
// capped at 60s, up to 7 retries.
const (
	HandshakeBaseDelay   = 100 * time.Millisecond
	HandshakeBackoffBase = 3
	HandshakeMaxDelay    = 60 * time.Second
	HandshakeMaxRetries  = 7
)

// Error codes surfaced to the host (§6/§7 of the spec).
const (
	ErrCodeOK                = "OK"
	ErrCodeNotConnected      = "NOT_CONNECTED"
	ErrCodeBufferSize        = "BUFFER_SIZE"
	ErrCodePropertyNotFound  = "PROPERTY_NOT_FOUND"
	ErrCodeOperationCanceled = "operation_canceled"
	ErrCodeConnectionRefused = "connection_refused"
	ErrCodeNoSuchFileOrDir   = "no_such_file_or_directory"
	ErrCodeInvalidState      = "invalid_state"
	ErrCodeAuthExpired       = "auth_expired"
)

// DefaultGroupID and DefaultSceneID are the well-known default cohort that
// every participant lands in absent any mutation.
const (
	DefaultGroupID = "default"
	DefaultSceneID = "default"
)
