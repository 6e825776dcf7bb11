package connection

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coder/websocket"

	"github.com/gluk-w/claworc/webconsole/internal/config"
	"github.com/gluk-w/claworc/webconsole/internal/protocol"
)

// defaultReadLimit bounds one inbound message. Screenshots arrive as base64
// text frames, so this is well above coder/websocket's 32KiB default.
const defaultReadLimit = 16 * 1024 * 1024

// Conn is the part of *websocket.Conn the controller uses.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Dialer opens session sockets. Tests substitute their own.
type Dialer interface {
	Dial(ctx context.Context, target string) (Conn, error)
}

// WebSocketDialer dials with coder/websocket.
type WebSocketDialer struct {
	HTTPClient *http.Client
	ReadLimit  int64
}

// Dial opens the socket. ctx bounds the handshake only.
func (d WebSocketDialer) Dial(ctx context.Context, target string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, target, &websocket.DialOptions{HTTPClient: d.HTTPClient})
	if err != nil {
		return nil, err
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	c.SetReadLimit(limit)
	return c, nil
}

// SessionURL builds ws(s)://host:port/ws/<protocol>/<sessionId>?token=<token>.
func SessionURL(ep config.Endpoint, kind protocol.Kind, sessionID, token string) string {
	return fmt.Sprintf("%s/ws/%s/%s?token=%s",
		ep.WSBase(), kind, url.PathEscape(sessionID), url.QueryEscape(token))
}
