package connection

import (
	"errors"
	"fmt"

	"github.com/coder/websocket"
)

var (
	// ErrRetriesExhausted marks the FAILED state: automatic reconnects are
	// used up and only a manual Retry reopens the session.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

	// ErrNotConnected is returned when input is sent without an open socket.
	ErrNotConnected = errors.New("session not connected")

	// ErrClosed is returned by every call after Disconnect.
	ErrClosed = errors.New("connection controller closed")

	// ErrSendQueueFull means the socket is not draining outbound messages.
	ErrSendQueueFull = errors.New("send queue full")
)

// TransportError is a socket-level failure: dial, connect timeout, read or
// write error, or a close frame from the peer.
type TransportError struct {
	Op   string
	URL  string // token already redacted
	Code websocket.StatusCode
	Err  error
}

func (e *TransportError) Error() string {
	msg := e.Op
	if e.Code > 0 {
		msg = fmt.Sprintf("%s (close %d)", msg, int(e.Code))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// Clean reports whether the close was normal (1000) or carried no status
// (1005). Clean closes are never retried.
func (e *TransportError) Clean() bool {
	return !shouldReconnect(e.Code)
}

// ApplicationError is an error reported by the backend in-band. It never
// closes the transport.
type ApplicationError struct {
	Message   string
	Graphical bool
}

func (e *ApplicationError) Error() string {
	if e.Graphical {
		return "remote desktop error: " + e.Message
	}
	return "server error: " + e.Message
}
