package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gluk-w/claworc/webconsole/internal/backend"
	"github.com/gluk-w/claworc/webconsole/internal/connection"
	"github.com/gluk-w/claworc/webconsole/internal/database"
	"github.com/gluk-w/claworc/webconsole/internal/protocol"
	"github.com/gluk-w/claworc/webconsole/internal/resize"
	"github.com/gluk-w/claworc/webconsole/internal/session"
)

// --- In-memory session sockets ---

type stubConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written []string
}

func newStubConn() *stubConn {
	return &stubConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *stubConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case b := <-c.in:
		return websocket.MessageText, b, nil
	case <-c.closed:
		return 0, nil, websocket.CloseError{Code: websocket.StatusNormalClosure}
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (c *stubConn) Write(_ context.Context, _ websocket.MessageType, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, string(p))
	return nil
}

func (c *stubConn) Close(websocket.StatusCode, string) error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *stubConn) sent(msg string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.written {
		if w == msg {
			return true
		}
	}
	return false
}

type stubDialer struct {
	mu    sync.Mutex
	conns []*stubConn
}

func (d *stubDialer) Dial(ctx context.Context, target string) (connection.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := newStubConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *stubDialer) conn(i int) *stubConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

// --- Backend collaborators ---

type fakeBackend struct {
	descriptors map[string]protocol.ConnectionDescriptor

	mu      sync.Mutex
	created int
	closed  []string
}

func (b *fakeBackend) GetConnection(_ context.Context, id string) (protocol.ConnectionDescriptor, error) {
	d, ok := b.descriptors[id]
	if !ok {
		return d, fmt.Errorf("connection %s: %w", id, backend.ErrNotFound)
	}
	return d, nil
}

func (b *fakeBackend) ListConnections(context.Context) ([]protocol.ConnectionDescriptor, error) {
	out := make([]protocol.ConnectionDescriptor, 0, len(b.descriptors))
	for _, d := range b.descriptors {
		out = append(out, d)
	}
	return out, nil
}

func (b *fakeBackend) CreateSession(_ context.Context, connectionID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.created++
	return fmt.Sprintf("s-%d", b.created), nil
}

func (b *fakeBackend) CloseSession(_ context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, sessionID)
	return nil
}

func (b *fakeBackend) closedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.closed)
}

type fakeProber struct {
	mu sync.Mutex
	ok bool
	n  int
}

func (p *fakeProber) Probe(context.Context) backend.Health {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	h := backend.Health{OK: p.ok, CheckedAt: time.Now()}
	if p.ok {
		h.Status = http.StatusOK
	} else {
		h.Error = "connection refused"
	}
	return h
}

func (p *fakeProber) probes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}

// --- Setup helpers ---

func testBackend() *fakeBackend {
	return &fakeBackend{descriptors: map[string]protocol.ConnectionDescriptor{
		"c1":  {ID: "c1", Protocol: protocol.KindSSH, Host: "10.0.0.5", Port: 22, Username: "ops"},
		"c2":  {ID: "c2", Protocol: protocol.KindTelnet, Host: "10.0.0.7", Port: 23},
		"rdp": {ID: "rdp", Protocol: protocol.KindRDP, Host: "10.0.0.6", Port: 3389},
	}}
}

// setupTabs installs a registry backed by stub sockets as Tabs.
func setupTabs(t *testing.T, b *fakeBackend) *stubDialer {
	t.Helper()
	d := &stubDialer{}
	Tabs = session.NewRegistry(session.Options{
		Token:     "tok",
		Backend:   b,
		Dialer:    d,
		Cells:     resize.CellGrid,
		BaseDelay: 50 * time.Millisecond,
	})
	t.Cleanup(func() {
		Tabs.CloseAll(context.Background())
		Tabs = nil
	})
	return d
}

func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		sqlDB.Close()
		database.DB = prev
	})
}

func doRequest(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	NewRouter().ServeHTTP(w, req)
	return w
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
