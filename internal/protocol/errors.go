package protocol

import "fmt"

// ProtocolError reports a frame that could not be decoded. The frame is
// dropped; the session keeps running.
type ProtocolError struct {
	// Frame is a short preview of the offending frame.
	Frame  string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := "protocol error: " + e.Reason
	if e.Frame != "" {
		msg += fmt.Sprintf(" (frame %q)", e.Frame)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }
