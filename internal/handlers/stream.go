package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/gluk-w/claworc/webconsole/internal/connection"
	"github.com/gluk-w/claworc/webconsole/internal/logutil"
	"github.com/gluk-w/claworc/webconsole/internal/protocol"
	"github.com/gluk-w/claworc/webconsole/internal/session"
)

// streamReadLimit bounds one viewer message.
const streamReadLimit = 1024 * 1024

// Viewer close codes in the private range.
const (
	closeTabNotFound websocket.StatusCode = 4004
	closeTabClosed   websocket.StatusCode = 4410
	closeUnavailable websocket.StatusCode = 4500
)

type streamControlMsg struct {
	Type   string `json:"type"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type tabInfoMsg struct {
	Type string       `json:"type"`
	Tab  session.Info `json:"tab"`
}

// StreamTab attaches a browser viewer to a tab.
//
// The viewer first receives a tab_info text message, then the buffered
// output as one binary message. After that, output arrives as binary
// messages and state, notice and frame updates as JSON text messages.
//
// Inbound binary messages are keystrokes for text tabs and encoded input
// events for graphical tabs. Inbound text messages are JSON control messages:
// {"type":"resize","width":W,"height":H} reports the viewer's container box in
// pixels, {"type":"retry"} reconnects the tab.
//
// Closing the viewer does not close the tab.
// GET /api/tabs/{key}/stream
func StreamTab(w http.ResponseWriter, r *http.Request) {
	clientConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[api] failed to accept viewer websocket: %v", err)
		return
	}
	defer clientConn.CloseNow()

	if Tabs == nil {
		clientConn.Close(closeUnavailable, "Tab registry not available")
		return
	}
	key := chi.URLParam(r, "key")
	s := Tabs.Get(key)
	if s == nil {
		clientConn.Close(closeTabNotFound, "Tab not found")
		return
	}
	info, err := Tabs.Info(key)
	if err != nil {
		clientConn.Close(closeTabNotFound, "Tab not found")
		return
	}

	ctx := r.Context()
	clientConn.SetReadLimit(streamReadLimit)

	hello, _ := json.Marshal(tabInfoMsg{Type: "tab_info", Tab: info})
	if err := clientConn.Write(ctx, websocket.MessageText, hello); err != nil {
		return
	}

	history, updates, detach := s.Output().Attach()
	defer detach()
	log.Printf("[api] viewer attached: tab=%s", logutil.SanitizeForLog(key))
	defer log.Printf("[api] viewer detached: tab=%s", logutil.SanitizeForLog(key))

	if len(history) > 0 {
		if err := clientConn.Write(ctx, websocket.MessageBinary, history); err != nil {
			return
		}
	}

	relayCtx, relayCancel := context.WithCancel(ctx)
	defer relayCancel()

	// Tab -> browser
	go func() {
		defer relayCancel()
		for {
			select {
			case u, ok := <-updates:
				if !ok {
					if s.Output().IsClosed() {
						clientConn.Close(closeTabClosed, "Tab closed")
					} else {
						clientConn.Close(websocket.StatusTryAgainLater, "Viewer fell behind")
					}
					return
				}
				if err := writeUpdate(relayCtx, clientConn, u); err != nil {
					return
				}
			case <-relayCtx.Done():
				return
			}
		}
	}()

	// Browser -> tab
	func() {
		defer relayCancel()
		for {
			msgType, data, err := clientConn.Read(relayCtx)
			if err != nil {
				return
			}
			if msgType == websocket.MessageBinary {
				if err := forwardInput(s, data); err != nil && errors.Is(err, connection.ErrClosed) {
					return
				}
				continue
			}
			var msg streamControlMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			switch msg.Type {
			case "resize":
				if msg.Width > 0 && msg.Height > 0 {
					Tabs.Resize(s.Key, protocol.Size{Width: msg.Width, Height: msg.Height})
				}
			case "retry":
				Tabs.Retry(s.Key)
			}
		}
	}()

	clientConn.Close(websocket.StatusNormalClosure, "")
}

func writeUpdate(ctx context.Context, c *websocket.Conn, u session.Update) error {
	if u.Kind == session.UpdateOutput {
		return c.Write(ctx, websocket.MessageBinary, u.Text)
	}
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return c.Write(ctx, websocket.MessageText, data)
}

// forwardInput routes one binary viewer message to the tab. Errors other
// than a closed controller are logged and the message dropped.
func forwardInput(s *session.Session, data []byte) error {
	var err error
	if s.Graphical() {
		var in protocol.Input
		in, err = protocol.DecodeInput(data)
		if err == nil {
			err = Tabs.SendInput(s.Key, in)
		}
	} else {
		err = Tabs.SendText(s.Key, data)
	}
	if err != nil && !errors.Is(err, connection.ErrClosed) {
		log.Printf("[api] viewer input dropped: tab=%s: %v", logutil.SanitizeForLog(s.Key), err)
	}
	return err
}
