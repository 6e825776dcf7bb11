package session

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gluk-w/claworc/webconsole/internal/connection"
	"github.com/gluk-w/claworc/webconsole/internal/logutil"
	"github.com/gluk-w/claworc/webconsole/internal/protocol"
	"github.com/gluk-w/claworc/webconsole/internal/resize"
	"github.com/gluk-w/claworc/webconsole/internal/screen"
)

// maxNotifications is how many recent notifications a tab keeps.
const maxNotifications = 20

// ErrNoSurface is returned when a screen update reaches a text session.
var ErrNoSurface = errors.New("session has no screen surface")

// Session is one tab: a (connection, session) pair with its own controller
// and UI surface. Text sessions write into an Output; graphical sessions
// render into a screen.Renderer.
type Session struct {
	Key          string
	ConnectionID string
	SessionID    string
	Descriptor   protocol.ConnectionDescriptor
	CreatedAt    time.Time

	ctrl     *connection.Controller
	output   *Output
	renderer *screen.Renderer
	resizer  *resize.Coordinator

	mu    sync.Mutex
	notes []connection.Notification
}

// Kind returns the session protocol.
func (s *Session) Kind() protocol.Kind { return s.Descriptor.Protocol }

// Graphical reports whether the session renders a remote desktop.
func (s *Session) Graphical() bool { return s.Descriptor.Protocol.Graphical() }

// Title is the tab label.
func (s *Session) Title() string { return s.Descriptor.Title() }

// Controller returns the session's connection controller.
func (s *Session) Controller() *connection.Controller { return s.ctrl }

// Output returns the text output buffer. Graphical sessions use it for
// state and notice updates only.
func (s *Session) Output() *Output { return s.output }

// Renderer returns the screen surface, or nil for text sessions.
func (s *Session) Renderer() *screen.Renderer { return s.renderer }

// Resizer returns the session's resize coordinator.
func (s *Session) Resizer() *resize.Coordinator { return s.resizer }

// Notifications returns the most recent notifications, oldest first.
func (s *Session) Notifications() []connection.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]connection.Notification, len(s.notes))
	copy(out, s.notes)
	return out
}

func (s *Session) addNotification(n connection.Notification) {
	s.mu.Lock()
	s.notes = append(s.notes, n)
	if len(s.notes) > maxNotifications {
		s.notes = s.notes[len(s.notes)-maxNotifications:]
	}
	s.mu.Unlock()
}

// close tears down the controller and detaches the surface.
func (s *Session) close() {
	s.ctrl.Disconnect()
	s.output.Close()
}

// Info is a point-in-time view of a tab for APIs.
type Info struct {
	Key           string                    `json:"key"`
	ConnectionID  string                    `json:"connection_id"`
	SessionID     string                    `json:"session_id"`
	Protocol      protocol.Kind             `json:"protocol"`
	Title         string                    `json:"title"`
	Graphical     bool                      `json:"graphical"`
	Active        bool                      `json:"active"`
	CreatedAt     time.Time                 `json:"created_at"`
	Viewers       int                       `json:"viewers"`
	Status        connection.Status         `json:"status"`
	Notifications []connection.Notification `json:"notifications,omitempty"`
	Frame         *screen.FrameInfo         `json:"frame,omitempty"`
}

func (s *Session) info(active bool) Info {
	in := Info{
		Key:           s.Key,
		ConnectionID:  s.ConnectionID,
		SessionID:     s.SessionID,
		Protocol:      s.Kind(),
		Title:         s.Title(),
		Graphical:     s.Graphical(),
		Active:        active,
		CreatedAt:     s.CreatedAt,
		Viewers:       s.output.Viewers(),
		Status:        s.ctrl.Status(),
		Notifications: s.Notifications(),
	}
	if s.renderer != nil {
		f := s.renderer.Info()
		in.Frame = &f
	}
	return in
}

// sink adapts a Session to connection.Sink.
type sink struct{ s *Session }

func (k sink) Text(data []byte) {
	k.s.output.Write(data)
}

func (k sink) Screen(u protocol.ScreenUpdate) error {
	if k.s.renderer == nil {
		return ErrNoSurface
	}
	_, err := k.s.renderer.Render(u)
	return err
}

func (k sink) Notify(n connection.Notification) {
	log.Printf("[registry] %s %s: %s", k.s.Key, n.Level, logutil.SanitizeForLog(n.Text))
	k.s.addNotification(n)
	note := n
	k.s.output.Publish(Update{Kind: UpdateNotice, Note: &note, Time: n.Time})
}
