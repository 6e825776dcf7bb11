package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/gluk-w/claworc/webconsole/internal/backend"
	"github.com/gluk-w/claworc/webconsole/internal/protocol"
)

type fakeMsg struct {
	typ  websocket.MessageType
	data []byte
}

// fakeConn is an in-memory socket. Tests push inbound frames with deliver and
// simulate the peer closing with peerClose.
type fakeConn struct {
	in     chan fakeMsg
	closed chan struct{}
	once   sync.Once

	mu        sync.Mutex
	written   []fakeMsg
	readErr   error
	closeCode websocket.StatusCode
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan fakeMsg, 16), closed: make(chan struct{})}
}

func (f *fakeConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case m := <-f.in:
		return m.typ, m.data, nil
	case <-f.closed:
		f.mu.Lock()
		defer f.mu.Unlock()
		return 0, nil, f.readErr
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (f *fakeConn) Write(ctx context.Context, typ websocket.MessageType, p []byte) error {
	select {
	case <-f.closed:
		return errors.New("write on closed conn")
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, fakeMsg{typ: typ, data: append([]byte(nil), p...)})
	return nil
}

func (f *fakeConn) Close(code websocket.StatusCode, reason string) error {
	f.shut(code, websocket.CloseError{Code: code, Reason: reason})
	return nil
}

// peerClose simulates the server sending a close frame.
func (f *fakeConn) peerClose(code websocket.StatusCode) {
	f.shut(0, websocket.CloseError{Code: code})
}

// drop simulates the TCP connection vanishing.
func (f *fakeConn) drop() {
	f.shut(0, errors.New("unexpected EOF"))
}

func (f *fakeConn) shut(code websocket.StatusCode, readErr error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.closeCode = code
		f.readErr = readErr
		f.mu.Unlock()
		close(f.closed)
	})
}

func (f *fakeConn) deliver(text string) {
	f.in <- fakeMsg{typ: websocket.MessageText, data: []byte(text)}
}

func (f *fakeConn) writes() []fakeMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeMsg(nil), f.written...)
}

func (f *fakeConn) localCloseCode() websocket.StatusCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCode
}

// fakeDialer hands out results from dialFn and records every target.
type fakeDialer struct {
	mu      sync.Mutex
	targets []string
	dialFn  func(ctx context.Context, n int) (Conn, error)
}

func (d *fakeDialer) Dial(ctx context.Context, target string) (Conn, error) {
	d.mu.Lock()
	d.targets = append(d.targets, target)
	n := len(d.targets)
	fn := d.dialFn
	d.mu.Unlock()
	return fn(ctx, n)
}

func (d *fakeDialer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.targets)
}

func (d *fakeDialer) setDial(fn func(ctx context.Context, n int) (Conn, error)) {
	d.mu.Lock()
	d.dialFn = fn
	d.mu.Unlock()
}

func refusingDialer() *fakeDialer {
	return &fakeDialer{dialFn: func(context.Context, int) (Conn, error) {
		return nil, errors.New("dial tcp 127.0.0.1:8080: connect: connection refused")
	}}
}

func connDialer(conns ...*fakeConn) *fakeDialer {
	return &fakeDialer{dialFn: func(_ context.Context, n int) (Conn, error) {
		if n > len(conns) {
			return nil, errors.New("no more fake conns")
		}
		return conns[n-1], nil
	}}
}

type fakeProber struct {
	health backend.Health
}

func (p fakeProber) Probe(context.Context) backend.Health { return p.health }

// recordSink collects everything a controller emits.
type recordSink struct {
	mu        sync.Mutex
	text      []byte
	screens   []protocol.ScreenUpdate
	notes     []Notification
	screenErr error
}

func (s *recordSink) Text(b []byte) {
	s.mu.Lock()
	s.text = append(s.text, b...)
	s.mu.Unlock()
}

func (s *recordSink) Screen(u protocol.ScreenUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.screenErr != nil {
		return s.screenErr
	}
	s.screens = append(s.screens, u)
	return nil
}

func (s *recordSink) Notify(n Notification) {
	s.mu.Lock()
	s.notes = append(s.notes, n)
	s.mu.Unlock()
}

func (s *recordSink) output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.text)
}

func (s *recordSink) notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.notes...)
}

func (s *recordSink) screenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.screens)
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

func waitState(t *testing.T, c *Controller, want State) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool { return c.State() == want })
}

func testOptions(kind protocol.Kind, d Dialer, sink Sink) Options {
	return Options{
		Key:          "tab-1",
		ConnectionID: "c1",
		SessionID:    "s1",
		Descriptor:   protocol.ConnectionDescriptor{ID: "c1", Protocol: kind, Host: "10.0.0.9", Port: 22, Username: "ops"},
		Token:        "tok",
		Dialer:       d,
		Sink:         sink,
		BaseDelay:    5 * time.Millisecond,
	}
}
