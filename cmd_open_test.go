package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gluk-w/claworc/webconsole/internal/connection"
	"github.com/gluk-w/claworc/webconsole/internal/protocol"
	"github.com/gluk-w/claworc/webconsole/internal/session"
)

func TestKeyFilter(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   string
		action keyAction
	}{
		{"plain", []string{"ls -la\r"}, "ls -la\r", keyNone},
		{"quit", []string{"exit\x1dq"}, "exit", keyQuit},
		{"quit with dot", []string{"\x1d."}, "", keyQuit},
		{"retry", []string{"\x1dr"}, "", keyRetry},
		{"literal escape", []string{"a\x1d\x1db"}, "a\x1db", keyNone},
		{"unknown escape passes through", []string{"\x1dx"}, "\x1dx", keyNone},
		{"escape split across reads", []string{"top\x1d", "q"}, "top", keyQuit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f keyFilter
			var got []byte
			action := keyNone
			for _, c := range tt.chunks {
				out, a := f.feed([]byte(c))
				got = append(got, out...)
				if a != keyNone {
					action = a
				}
			}
			if string(got) != tt.want {
				t.Errorf("sent %q, want %q", got, tt.want)
			}
			if action != tt.action {
				t.Errorf("action = %d, want %d", action, tt.action)
			}
		})
	}
}

type refuseDialer struct{}

func (refuseDialer) Dial(context.Context, string) (connection.Conn, error) {
	return nil, errors.New("connection refused")
}

type recordingBackend struct {
	mu     sync.Mutex
	closed []string
}

func (b *recordingBackend) GetConnection(_ context.Context, id string) (protocol.ConnectionDescriptor, error) {
	return protocol.ConnectionDescriptor{ID: id, Protocol: protocol.KindSSH, Host: "10.0.0.5", Port: 22}, nil
}

func (b *recordingBackend) CreateSession(context.Context, string) (string, error) {
	return "created-1", nil
}

func (b *recordingBackend) CloseSession(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, id)
	return nil
}

func (b *recordingBackend) closedSessions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.closed...)
}

func TestCloseOpened(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
		want      int
	}{
		{"created session is torn down", "", 1},
		{"attached session is left running", "existing", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &recordingBackend{}
			tabs := session.NewRegistry(session.Options{Backend: b, Dialer: refuseDialer{}, BaseDelay: time.Hour})
			key, err := tabs.Open(context.Background(), "c1", tt.sessionID)
			if err != nil {
				t.Fatalf("Open() error: %v", err)
			}

			closeOpened(tabs, key, tt.sessionID == "")

			if tabs.Len() != 0 {
				t.Errorf("Len() = %d after close", tabs.Len())
			}
			if got := b.closedSessions(); len(got) != tt.want {
				t.Errorf("backend teardown = %v, want %d call(s)", got, tt.want)
			}
		})
	}
}
