package protocol

import (
	"encoding/json"
	"fmt"
)

// Control message types.
const (
	TypeAuth   = "auth"
	TypeInit   = "init"
	TypeResize = "resize"
	TypeError  = "error"
)

// ConnectionInfo is the descriptor summary sent with the auth message.
type ConnectionInfo struct {
	Protocol  Kind   `json:"protocol"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	SessionID string `json:"sessionId"`
}

type authMessage struct {
	Type           string         `json:"type"`
	Token          string         `json:"token"`
	ConnectionInfo ConnectionInfo `json:"connectionInfo"`
}

type initMessage struct {
	Type         string `json:"type"`
	Protocol     Kind   `json:"protocol"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	ConnectionID string `json:"connectionId"`
	SessionID    string `json:"sessionId"`
}

type textResizeMessage struct {
	Type string `json:"type"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

type screenResizeMessage struct {
	Type   string `json:"type"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// EncodeAuth builds the first message sent after the socket opens.
func EncodeAuth(token string, info ConnectionInfo) ([]byte, error) {
	b, err := json.Marshal(authMessage{Type: TypeAuth, Token: token, ConnectionInfo: info})
	if err != nil {
		return nil, fmt.Errorf("marshal auth: %w", err)
	}
	return b, nil
}

// EncodeInit builds the graphical session init message carrying the initial
// display size.
func EncodeInit(kind Kind, size Size, connectionID, sessionID string) ([]byte, error) {
	b, err := json.Marshal(initMessage{
		Type:         TypeInit,
		Protocol:     kind,
		Width:        size.Width,
		Height:       size.Height,
		ConnectionID: connectionID,
		SessionID:    sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal init: %w", err)
	}
	return b, nil
}

// EncodeResize builds a resize message: {cols,rows} for text sessions and
// {width,height} for graphical ones.
func EncodeResize(kind Kind, size Size) ([]byte, error) {
	var v interface{}
	if kind.Graphical() {
		v = screenResizeMessage{Type: TypeResize, Width: size.Width, Height: size.Height}
	} else {
		v = textResizeMessage{Type: TypeResize, Cols: size.Width, Rows: size.Height}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal resize: %w", err)
	}
	return b, nil
}
