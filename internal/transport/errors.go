package transport

import "errors"

var (
	errNotConnected   = errors.New("transport: not connected")
	errSendBufferFull = errors.New("transport: send buffer full")
)
