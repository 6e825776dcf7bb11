package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gluk-w/claworc/webconsole/internal/connection"
	"github.com/gluk-w/claworc/webconsole/internal/protocol"
	"github.com/gluk-w/claworc/webconsole/internal/session"
)

// Tabs is set from main.go during serve.
var Tabs *session.Registry

// Monitor is set from main.go during serve. Nil disables backend health in
// GET /api/health.
var Monitor *HealthMonitor

// teardownTimeout bounds the backend calls made by DELETE /api/tabs.
var teardownTimeout = 15 * time.Second

type openTabRequest struct {
	ConnectionID string `json:"connection_id"`
	SessionID    string `json:"session_id"`
}

// ListTabs returns every open tab.
// GET /api/tabs
func ListTabs(w http.ResponseWriter, r *http.Request) {
	if Tabs == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"tabs": []session.Info{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tabs":   Tabs.Infos(),
		"active": Tabs.ActiveKey(),
	})
}

// OpenTab adds a tab for a connection, creating a backend session unless
// session_id is given. Opening an existing pair activates it.
// POST /api/tabs
func OpenTab(w http.ResponseWriter, r *http.Request) {
	if Tabs == nil {
		writeError(w, http.StatusServiceUnavailable, "Tab registry not available")
		return
	}
	var req openTabRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ConnectionID == "" {
		writeError(w, http.StatusBadRequest, "connection_id is required")
		return
	}

	before := Tabs.Len()
	key, err := Tabs.Open(r.Context(), req.ConnectionID, req.SessionID)
	if err != nil {
		log.Printf("[api] open tab for %s: %v", req.ConnectionID, err)
		writeError(w, errorStatus(err), err.Error())
		return
	}
	info, err := Tabs.Info(key)
	if err != nil {
		writeError(w, http.StatusNotFound, "Tab not found")
		return
	}
	status := http.StatusOK
	if Tabs.Len() > before {
		status = http.StatusCreated
	}
	writeJSON(w, status, info)
}

// CloseAllTabs closes every tab and tears down their backend sessions.
// DELETE /api/tabs
func CloseAllTabs(w http.ResponseWriter, r *http.Request) {
	if Tabs == nil {
		writeJSON(w, http.StatusOK, map[string]int{"closed": 0})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	writeJSON(w, http.StatusOK, map[string]int{"closed": Tabs.CloseAll(ctx)})
}

// GetTab returns one tab.
// GET /api/tabs/{key}
func GetTab(w http.ResponseWriter, r *http.Request) {
	s := tabFromRequest(w, r)
	if s == nil {
		return
	}
	info, err := Tabs.Info(s.Key)
	if err != nil {
		writeError(w, http.StatusNotFound, "Tab not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// CloseTab closes one tab's socket and removes it.
// DELETE /api/tabs/{key}
func CloseTab(w http.ResponseWriter, r *http.Request) {
	s := tabFromRequest(w, r)
	if s == nil {
		return
	}
	if err := Tabs.CloseTab(s.Key); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// ActivateTab makes a tab the presented one.
// PUT /api/tabs/{key}/active
func ActivateTab(w http.ResponseWriter, r *http.Request) {
	s := tabFromRequest(w, r)
	if s == nil {
		return
	}
	if err := Tabs.SetActiveTab(s.Key); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active": s.Key})
}

// RetryTab reconnects a tab with its attempt counter reset.
// POST /api/tabs/{key}/retry
func RetryTab(w http.ResponseWriter, r *http.Request) {
	s := tabFromRequest(w, r)
	if s == nil {
		return
	}
	if err := Tabs.Retry(s.Key); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retrying"})
}

// inputRequest carries exactly one of: text, a key event, a pointer event or
// a refresh request.
type inputRequest struct {
	Text    *string `json:"text"`
	KeyCode *int    `json:"key_code"`
	Down    bool    `json:"down"`
	X       *int    `json:"x"`
	Y       *int    `json:"y"`
	Buttons uint8   `json:"buttons"`
	Refresh bool    `json:"refresh"`
}

// SendTabInput forwards keyboard, pointer or text input to a tab.
// POST /api/tabs/{key}/input
func SendTabInput(w http.ResponseWriter, r *http.Request) {
	s := tabFromRequest(w, r)
	if s == nil {
		return
	}
	var req inputRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var err error
	switch {
	case req.Text != nil:
		err = Tabs.SendText(s.Key, []byte(*req.Text))
	case req.KeyCode != nil:
		if *req.KeyCode < 0 || *req.KeyCode > 0xFFFF {
			writeError(w, http.StatusBadRequest, "key_code out of range")
			return
		}
		err = Tabs.SendInput(s.Key, protocol.Keyboard{Down: req.Down, KeyCode: uint16(*req.KeyCode)})
	case req.X != nil && req.Y != nil:
		err = Tabs.SendInput(s.Key, protocol.NewPointer(*req.X, *req.Y, protocol.Buttons(req.Buttons)))
	case req.Refresh:
		err = Tabs.SendInput(s.Key, protocol.RefreshRequest{})
	default:
		writeError(w, http.StatusBadRequest, "one of text, key_code, x/y or refresh is required")
		return
	}

	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, connection.ErrNotConnected), errors.Is(err, connection.ErrClosed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, connection.ErrSendQueueFull):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		writeError(w, errorStatus(err), err.Error())
	}
}

type resizeRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ResizeTab reports a new container box for a tab.
// POST /api/tabs/{key}/resize
func ResizeTab(w http.ResponseWriter, r *http.Request) {
	s := tabFromRequest(w, r)
	if s == nil {
		return
	}
	var req resizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Width <= 0 || req.Height <= 0 {
		writeError(w, http.StatusBadRequest, "width and height must be positive")
		return
	}
	size, sent, err := Tabs.Resize(s.Key, protocol.Size{Width: req.Width, Height: req.Height})
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"size":    size,
		"changed": sent,
	})
}

// TabScreen returns a graphical tab's canvas as PNG.
// GET /api/tabs/{key}/screen.png
func TabScreen(w http.ResponseWriter, r *http.Request) {
	s := tabFromRequest(w, r)
	if s == nil {
		return
	}
	if s.Renderer() == nil {
		writeError(w, http.StatusNotFound, "Tab has no screen")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	s.Renderer().WritePNG(w)
}

// TabHistory returns a tab's state transitions and events.
// GET /api/tabs/{key}/history
func TabHistory(w http.ResponseWriter, r *http.Request) {
	s := tabFromRequest(w, r)
	if s == nil {
		return
	}
	ctrl := s.Controller()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":         s.Key,
		"state":       ctrl.State(),
		"transitions": ctrl.History(),
		"events":      ctrl.Events(),
	})
}
