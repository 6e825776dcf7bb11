package connection

import (
	"time"

	"github.com/gluk-w/claworc/webconsole/internal/protocol"
)

// Level is a notification severity.
type Level string

const (
	LevelError  Level = "error"
	LevelNotice Level = "notice"
)

// Notification is a user-visible message: a server error, a transient
// notice, or a failure diagnostic.
type Notification struct {
	Level Level     `json:"level"`
	Text  string    `json:"text"`
	Time  time.Time `json:"time"`
}

// Sink receives a session's decoded output. Methods run on the controller
// goroutine and must not call back into the controller synchronously.
type Sink interface {
	// Text receives raw terminal output, verbatim.
	Text(data []byte)
	// Screen receives a full-frame screen update. A returned error means the
	// frame could not be rendered and was dropped.
	Screen(u protocol.ScreenUpdate) error
	// Notify surfaces errors and notices.
	Notify(n Notification)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Text([]byte)                        {}
func (NopSink) Screen(protocol.ScreenUpdate) error { return nil }
func (NopSink) Notify(Notification)                {}
