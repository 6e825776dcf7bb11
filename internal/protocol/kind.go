// Package protocol encodes and decodes every message shape exchanged with the
// console backend over a session WebSocket.
//
// The wire format is hybrid:
//   - JSON control messages ({"type":"auth"|"init"|"resize"|"error",...})
//   - raw terminal bytes for text sessions
//   - fixed-layout binary input events (keyboard, pointer, refresh)
//   - colon-delimited graphical text frames, "<RDP|VNC>_<KIND>:field:...:payload"
//
// Everything in this package is pure: no I/O, no shared state.
package protocol

import (
	"fmt"
	"strings"
)

// Kind is the remote protocol a session speaks.
type Kind string

const (
	KindSSH    Kind = "ssh"
	KindTelnet Kind = "telnet"
	KindRDP    Kind = "rdp"
	KindVNC    Kind = "vnc"
)

// ParseKind accepts a protocol name in any case.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindSSH, KindTelnet, KindRDP, KindVNC:
		return k, nil
	default:
		return "", fmt.Errorf("unknown protocol %q", s)
	}
}

// Graphical reports whether sessions of this kind render a screen instead of
// a text stream.
func (k Kind) Graphical() bool {
	return k == KindRDP || k == KindVNC
}

// framePrefix is the "<PROTO>_" prefix graphical text frames carry.
func (k Kind) framePrefix() string {
	return strings.ToUpper(string(k)) + "_"
}

func (k Kind) String() string { return string(k) }

// Size is a terminal grid (Width=cols, Height=rows) for text sessions or a
// pixel box for graphical sessions.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsZero reports whether no size has been recorded yet.
func (s Size) IsZero() bool { return s.Width == 0 && s.Height == 0 }

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }
