package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FrameKind is the <KIND> part of a graphical text frame.
type FrameKind string

const (
	FrameConnected  FrameKind = "CONNECTED"
	FrameConnect    FrameKind = "CONNECT"
	FrameInfo       FrameKind = "INFO"
	FrameScreenshot FrameKind = "SCREENSHOT"
	FrameError      FrameKind = "ERROR"
	FrameNotice     FrameKind = "NOTICE"
	FrameKeepAlive  FrameKind = "KEEP_ALIVE"
)

// Frame is one message received from the socket.
type Frame struct {
	Binary bool
	Data   []byte
}

// Message is the decoded form of an inbound frame. It is one of Opaque,
// RawStream, ScreenUpdate, ScreenReady, ServerError, Notice, Ignored or
// ControlMessage.
type Message interface {
	isMessage()
}

// Opaque is a binary inbound frame. No binary inbound kind is defined yet.
type Opaque struct {
	Data []byte
}

// RawStream is terminal output for the text sink.
type RawStream struct {
	Data []byte
}

// ScreenUpdate is one full-frame image for a graphical session.
type ScreenUpdate struct {
	Width  int
	Height int
	Image  []byte
}

// ScreenReady marks a graphical session's screen output as live.
type ScreenReady struct {
	Kind FrameKind
}

// ServerError is an application error sent by the backend. It does not
// close the transport.
type ServerError struct {
	Message string
	// Graphical is true when the error came from a <PROTO>_ERROR frame.
	Graphical bool
}

// Notice is a transient informational message.
type Notice struct {
	Text string
}

// Ignored is a recognised-but-inert frame (INFO, KEEP_ALIVE) or a graphical
// frame of unknown kind.
type Ignored struct {
	Kind FrameKind
}

// ControlMessage is any other JSON object the backend sends.
type ControlMessage struct {
	Type   string
	Fields map[string]json.RawMessage
}

func (Opaque) isMessage()         {}
func (RawStream) isMessage()      {}
func (ScreenUpdate) isMessage()   {}
func (ScreenReady) isMessage()    {}
func (ServerError) isMessage()    {}
func (Notice) isMessage()         {}
func (Ignored) isMessage()        {}
func (ControlMessage) isMessage() {}

// Decode classifies an inbound frame for a session speaking kind. Rules are
// applied in order:
//  1. binary frames are Opaque
//  2. text starting with "<PROTO>_" for the session's protocol is a graphical frame
//  3. a JSON object is a control message (error, or data forwarded as RawStream)
//  4. anything else is RawStream, verbatim
//
// A non-nil error is always a *ProtocolError and means the frame must be dropped.
func Decode(f Frame, kind Kind) (Message, error) {
	if f.Binary {
		return Opaque{Data: f.Data}, nil
	}

	if kind.Graphical() && hasPrefixFold(f.Data, kind.framePrefix()) {
		return decodeGraphical(string(f.Data), kind)
	}

	if msg, ok := decodeControl(f.Data); ok {
		return msg, nil
	}

	return RawStream{Data: f.Data}, nil
}

func hasPrefixFold(data []byte, prefix string) bool {
	return len(data) >= len(prefix) && strings.EqualFold(string(data[:len(prefix)]), prefix)
}

func decodeGraphical(text string, kind Kind) (Message, error) {
	parts := strings.Split(text, ":")
	frameKind := FrameKind(strings.ToUpper(parts[0][len(kind.framePrefix()):]))

	switch frameKind {
	case FrameScreenshot:
		return decodeScreenshot(text, parts)
	case FrameConnected, FrameConnect:
		return ScreenReady{Kind: frameKind}, nil
	case FrameError:
		return ServerError{Message: strings.Join(parts[1:], ":"), Graphical: true}, nil
	case FrameNotice:
		return Notice{Text: strings.Join(parts[1:], ":")}, nil
	default:
		// INFO, KEEP_ALIVE and unknown kinds carry nothing we act on.
		return Ignored{Kind: frameKind}, nil
	}
}

func decodeScreenshot(text string, parts []string) (Message, error) {
	preview := text
	if len(preview) > 48 {
		preview = preview[:48]
	}
	if len(parts) < 4 {
		return nil, &ProtocolError{Frame: preview, Reason: fmt.Sprintf("screenshot frame has %d fields, want at least 4", len(parts))}
	}
	width, err := strconv.Atoi(parts[1])
	if err != nil || width <= 0 {
		return nil, &ProtocolError{Frame: preview, Reason: "invalid screenshot width", Err: err}
	}
	height, err := strconv.Atoi(parts[2])
	if err != nil || height <= 0 {
		return nil, &ProtocolError{Frame: preview, Reason: "invalid screenshot height", Err: err}
	}
	img, err := decodeImagePayload(strings.Join(parts[3:], ":"))
	if err != nil {
		return nil, &ProtocolError{Frame: preview, Reason: "invalid screenshot payload", Err: err}
	}
	return ScreenUpdate{Width: width, Height: height, Image: img}, nil
}

// decodeImagePayload accepts bare base64 or a data URL
// ("data:image/png;base64,....").
func decodeImagePayload(payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:") {
		i := strings.Index(payload, ",")
		if i < 0 {
			return nil, fmt.Errorf("data url without payload")
		}
		payload = payload[i+1:]
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("empty payload")
	}
	if strings.HasSuffix(payload, "=") || len(payload)%4 == 0 {
		return base64.StdEncoding.DecodeString(payload)
	}
	return base64.RawStdEncoding.DecodeString(payload)
}

// decodeControl returns ok=false when data is not a JSON object, in which
// case the caller treats it as plain terminal output.
func decodeControl(data []byte) (Message, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, false
	}

	var typ string
	if raw, ok := fields["type"]; ok {
		_ = json.Unmarshal(raw, &typ)
	}

	if typ == TypeError {
		return ServerError{Message: errorText(fields)}, true
	}

	if raw, ok := fields["data"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return RawStream{Data: []byte(s)}, true
		}
		return RawStream{Data: []byte(raw)}, true
	}

	return ControlMessage{Type: typ, Fields: fields}, true
}

func errorText(fields map[string]json.RawMessage) string {
	for _, key := range []string{"message", "error", "detail"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		return string(raw)
	}
	return "unknown server error"
}
