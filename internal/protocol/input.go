package protocol

import (
	"encoding/binary"
	"fmt"
)

// Binary input event tags (first byte of every outbound binary frame).
const (
	TagKeyboard byte = 1
	TagPointer  byte = 2
	TagRefresh  byte = 3
)

const (
	keyboardFrameLen = 4
	pointerFrameLen  = 6
	refreshFrameLen  = 1
)

// Buttons is the pointer button bitmask.
type Buttons uint8

const (
	ButtonLeft   Buttons = 1 << 0
	ButtonMiddle Buttons = 1 << 1
	ButtonRight  Buttons = 1 << 2
)

// Input is one outbound binary event: Keyboard, Pointer or RefreshRequest.
type Input interface {
	// Encode returns the fixed-layout wire bytes for the event.
	Encode() []byte
}

// Keyboard is a key press or release.
type Keyboard struct {
	Down    bool
	KeyCode uint16
}

// Encode returns [1, down, keyCode hi, keyCode lo].
func (k Keyboard) Encode() []byte {
	b := make([]byte, keyboardFrameLen)
	b[0] = TagKeyboard
	if k.Down {
		b[1] = 1
	}
	binary.BigEndian.PutUint16(b[2:4], k.KeyCode)
	return b
}

// Pointer is an absolute pointer position with the buttons held.
type Pointer struct {
	X, Y    uint16
	Buttons Buttons
}

// NewPointer clamps surface coordinates into the 16-bit wire range.
func NewPointer(x, y int, buttons Buttons) Pointer {
	return Pointer{X: clamp16(x), Y: clamp16(y), Buttons: buttons}
}

// Encode returns [2, x hi, x lo, y hi, y lo, buttons].
func (p Pointer) Encode() []byte {
	b := make([]byte, pointerFrameLen)
	b[0] = TagPointer
	binary.BigEndian.PutUint16(b[1:3], p.X)
	binary.BigEndian.PutUint16(b[3:5], p.Y)
	b[5] = byte(p.Buttons)
	return b
}

// RefreshRequest asks a graphical backend for a full screen update.
type RefreshRequest struct{}

// Encode returns [3].
func (RefreshRequest) Encode() []byte { return []byte{TagRefresh} }

// DecodeInput parses an outbound binary event, as the backend does. It is
// the inverse of Encode for every Input type.
func DecodeInput(b []byte) (Input, error) {
	if len(b) == 0 {
		return nil, &ProtocolError{Reason: "empty input frame"}
	}
	switch b[0] {
	case TagKeyboard:
		if len(b) != keyboardFrameLen {
			return nil, &ProtocolError{Frame: previewBytes(b), Reason: fmt.Sprintf("keyboard frame length %d", len(b))}
		}
		return Keyboard{Down: b[1] == 1, KeyCode: binary.BigEndian.Uint16(b[2:4])}, nil
	case TagPointer:
		if len(b) != pointerFrameLen {
			return nil, &ProtocolError{Frame: previewBytes(b), Reason: fmt.Sprintf("pointer frame length %d", len(b))}
		}
		return Pointer{
			X:       binary.BigEndian.Uint16(b[1:3]),
			Y:       binary.BigEndian.Uint16(b[3:5]),
			Buttons: Buttons(b[5]),
		}, nil
	case TagRefresh:
		if len(b) != refreshFrameLen {
			return nil, &ProtocolError{Frame: previewBytes(b), Reason: fmt.Sprintf("refresh frame length %d", len(b))}
		}
		return RefreshRequest{}, nil
	default:
		return nil, &ProtocolError{Frame: previewBytes(b), Reason: fmt.Sprintf("unknown input tag %d", b[0])}
	}
}

func clamp16(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v)
}

func previewBytes(b []byte) string {
	if len(b) > 16 {
		b = b[:16]
	}
	return fmt.Sprintf("% x", b)
}
