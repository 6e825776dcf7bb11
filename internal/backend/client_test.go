package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gluk-w/claworc/webconsole/internal/config"
	"github.com/gluk-w/claworc/webconsole/internal/protocol"
)

func endpointFor(t *testing.T, srv *httptest.Server) config.Endpoint {
	t.Helper()
	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	p, _ := strconv.Atoi(port)
	return config.Endpoint{Host: host, Port: p}
}

func setupMockBackend(t *testing.T) (*Client, func()) {
	t.Helper()

	mux := http.NewServeMux()
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer test-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			h(w, r)
		}
	}

	mux.HandleFunc("GET /api/connections/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "c1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "c1", "protocol": "SSH", "host": "10.0.0.2", "port": 22, "username": "root", "display_name": "Box",
		})
	}))
	mux.HandleFunc("GET /api/connections", authed(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": "c1", "protocol": "ssh", "host": "a"},
			{"id": "c2", "protocol": "vnc", "host": "b"},
			{"id": "c3", "protocol": "gopher", "host": "c"},
		})
	}))
	mux.HandleFunc("POST /api/sessions", authed(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["connection_id"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"session_id": "s-" + body["connection_id"]})
	}))
	mux.HandleFunc("DELETE /api/sessions/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "gone" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.PathValue("id") == "boom" {
			http.Error(w, "teardown failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("GET /api/health", authed(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))

	srv := httptest.NewServer(mux)
	c := NewClient(endpointFor(t, srv), "test-token")
	return c, srv.Close
}

func TestGetConnection(t *testing.T) {
	c, cleanup := setupMockBackend(t)
	defer cleanup()

	d, err := c.GetConnection(context.Background(), "c1")
	if err != nil {
		t.Fatalf("GetConnection() error: %v", err)
	}
	want := protocol.ConnectionDescriptor{ID: "c1", Protocol: protocol.KindSSH, Host: "10.0.0.2", Port: 22, Username: "root", DisplayName: "Box"}
	if d != want {
		t.Errorf("GetConnection() = %+v, want %+v", d, want)
	}

	_, err = c.GetConnection(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetConnection(missing) error = %v, want ErrNotFound", err)
	}
}

func TestListConnections_SkipsUnknownProtocols(t *testing.T) {
	c, cleanup := setupMockBackend(t)
	defer cleanup()

	list, err := c.ListConnections(context.Background())
	if err != nil {
		t.Fatalf("ListConnections() error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[1].Protocol != protocol.KindVNC {
		t.Errorf("list[1].Protocol = %q", list[1].Protocol)
	}
}

func TestCreateAndCloseSession(t *testing.T) {
	c, cleanup := setupMockBackend(t)
	defer cleanup()
	ctx := context.Background()

	sid, err := c.CreateSession(ctx, "c1")
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}
	if sid != "s-c1" {
		t.Errorf("session id = %q, want s-c1", sid)
	}

	if err := c.CloseSession(ctx, sid); err != nil {
		t.Errorf("CloseSession() error: %v", err)
	}
	if err := c.CloseSession(ctx, "gone"); err != nil {
		t.Errorf("CloseSession(gone) should tolerate 404, got %v", err)
	}
	if err := c.CloseSession(ctx, "boom"); err == nil {
		t.Error("CloseSession(boom) expected error")
	}
}

func TestUnauthorized(t *testing.T) {
	c, cleanup := setupMockBackend(t)
	defer cleanup()
	c.Token = "wrong"

	if _, err := c.CreateSession(context.Background(), "c1"); err == nil {
		t.Error("expected error with wrong token")
	}
	h := c.Probe(context.Background())
	if h.OK || h.Status != http.StatusUnauthorized {
		t.Errorf("Probe() = %+v, want 401", h)
	}
}

func TestProbe(t *testing.T) {
	c, cleanup := setupMockBackend(t)

	h := c.Probe(context.Background())
	if !h.OK || h.Status != http.StatusOK {
		t.Errorf("Probe() = %+v, want healthy", h)
	}
	if h.CheckedAt.IsZero() {
		t.Error("CheckedAt not set")
	}

	cleanup()
	h = c.Probe(context.Background())
	if h.OK || h.Error == "" {
		t.Errorf("Probe() after shutdown = %+v, want unreachable", h)
	}
	if got := h.String(); len(got) < len("backend unreachable") || got[:19] != "backend unreachable" {
		t.Errorf("String() = %q", got)
	}
}

func TestHealth_String_NotChecked(t *testing.T) {
	if got := (Health{}).String(); got != "not checked" {
		t.Errorf("String() = %q", got)
	}
}
