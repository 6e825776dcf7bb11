// Package session holds the tab registry: every open (connection, session)
// pair, which one is active, and the routing of input, resize and output
// between a tab's surface and its connection controller.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gluk-w/claworc/webconsole/internal/config"
	"github.com/gluk-w/claworc/webconsole/internal/connection"
	"github.com/gluk-w/claworc/webconsole/internal/protocol"
	"github.com/gluk-w/claworc/webconsole/internal/resize"
	"github.com/gluk-w/claworc/webconsole/internal/screen"
)

// ErrNotFound is returned for an unknown tab key.
var ErrNotFound = errors.New("tab not found")

// Lookup resolves connection descriptors.
type Lookup interface {
	GetConnection(ctx context.Context, id string) (protocol.ConnectionDescriptor, error)
}

// Sessions creates and tears down backend sessions.
type Sessions interface {
	CreateSession(ctx context.Context, connectionID string) (string, error)
	CloseSession(ctx context.Context, sessionID string) error
}

// Backend is the connection-management collaborator. *backend.Client and
// *database.Catalog implement it.
type Backend interface {
	Lookup
	Sessions
}

// Options configures a Registry and the controllers it creates. Zero values
// fall back to the connection package defaults.
type Options struct {
	Endpoint config.Endpoint
	Token    string
	Backend  Backend

	Dialer connection.Dialer
	Prober connection.Prober

	// Cells maps container boxes to terminal grids for text sessions.
	Cells resize.TerminalAdapter
	// ScreenSize is the initial canvas for graphical sessions.
	ScreenSize protocol.Size
	OutputSize int

	ConnectTimeout    time.Duration
	RDPConnectTimeout time.Duration
	MaxAttempts       int
	BaseDelay         time.Duration
	ProbeTimeout      time.Duration
	InputRate         float64
	InputBurst        int
}

// OptionsFromConfig maps settings onto registry options.
func OptionsFromConfig(s config.Settings, b Backend, p connection.Prober) Options {
	return Options{
		Endpoint:          s.Backend(),
		Token:             s.Token,
		Backend:           b,
		Prober:            p,
		ConnectTimeout:    s.ConnectTimeout,
		RDPConnectTimeout: s.RDPConnectTimeout,
		MaxAttempts:       s.MaxReconnectAttempts,
		BaseDelay:         s.ReconnectBaseDelay,
		ProbeTimeout:      s.HealthProbeTimeout,
		InputRate:         s.InputRate,
		InputBurst:        s.InputBurst,
	}
}

type pairKey struct {
	connectionID string
	sessionID    string
}

// Registry tracks all open tabs. It is the only place tabs are added or
// removed, and every mutation happens under one lock so readers never see a
// half-added tab.
type Registry struct {
	opts Options

	mu     sync.RWMutex
	tabs   map[string]*Session // tab key → session
	pairs  map[pairKey]string  // (connection, session) → tab key
	order  []string
	active string
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:  opts,
		tabs:  make(map[string]*Session),
		pairs: make(map[pairKey]string),
	}
}

// Open resolves connectionID, creates a backend session when sessionID is
// empty, and adds the tab.
func (r *Registry) Open(ctx context.Context, connectionID, sessionID string) (string, error) {
	if r.opts.Backend == nil {
		return "", fmt.Errorf("open %s: no connection backend configured", connectionID)
	}
	d, err := r.opts.Backend.GetConnection(ctx, connectionID)
	if err != nil {
		return "", fmt.Errorf("look up connection: %w", err)
	}
	if sessionID == "" {
		sessionID, err = r.opts.Backend.CreateSession(ctx, connectionID)
		if err != nil {
			return "", fmt.Errorf("create session: %w", err)
		}
	}
	return r.AddTab(connectionID, sessionID, d)
}

// AddTab creates a tab for the pair and starts connecting it, or activates
// and returns the existing tab for the same pair.
func (r *Registry) AddTab(connectionID, sessionID string, d protocol.ConnectionDescriptor) (string, error) {
	if connectionID == "" || sessionID == "" {
		return "", fmt.Errorf("add tab: connection id and session id are required")
	}
	if d.ID == "" {
		d.ID = connectionID
	}
	if err := d.Normalize(); err != nil {
		return "", fmt.Errorf("add tab: %w", err)
	}

	pair := pairKey{connectionID, sessionID}

	r.mu.Lock()
	if key, ok := r.pairs[pair]; ok {
		r.active = key
		r.mu.Unlock()
		log.Printf("[registry] reusing tab %s for connection %s session %s", key, connectionID, sessionID)
		return key, nil
	}
	s := r.newSession(uuid.New().String(), connectionID, sessionID, d)
	r.tabs[s.Key] = s
	r.pairs[pair] = s.Key
	r.order = append(r.order, s.Key)
	r.active = s.Key
	r.mu.Unlock()

	log.Printf("[registry] added tab %s (%s %s, session %s)", s.Key, d.Protocol, d.Title(), sessionID)
	s.ctrl.Connect()
	return s.Key, nil
}

// newSession wires a session's surface, resize coordinator and controller.
func (r *Registry) newSession(key, connectionID, sessionID string, d protocol.ConnectionDescriptor) *Session {
	s := &Session{
		Key:          key,
		ConnectionID: connectionID,
		SessionID:    sessionID,
		Descriptor:   d,
		CreatedAt:    time.Now(),
		output:       NewOutput(r.opts.OutputSize),
	}

	var initial protocol.Size
	var surface resize.Surface
	if d.Protocol.Graphical() {
		initial = r.opts.ScreenSize
		if initial.IsZero() {
			initial = protocol.Size{Width: screen.DefaultWidth, Height: screen.DefaultHeight}
		}
		s.renderer = screen.NewRenderer(initial.Width, initial.Height)
		s.renderer.OnFrame(func(f screen.FrameInfo) {
			s.output.Publish(Update{Kind: UpdateFrame, Frame: &f})
		})
		surface = s.renderer
	}

	timeout := r.opts.ConnectTimeout
	if d.Protocol == protocol.KindRDP && r.opts.RDPConnectTimeout > 0 {
		timeout = r.opts.RDPConnectTimeout
	}

	s.ctrl = connection.New(connection.Options{
		Key:            key,
		ConnectionID:   connectionID,
		SessionID:      sessionID,
		Descriptor:     d,
		Endpoint:       r.opts.Endpoint,
		Token:          r.opts.Token,
		Dialer:         r.opts.Dialer,
		Prober:         r.opts.Prober,
		Sink:           sink{s},
		InitialSize:    initial,
		ConnectTimeout: timeout,
		MaxAttempts:    r.opts.MaxAttempts,
		BaseDelay:      r.opts.BaseDelay,
		ProbeTimeout:   r.opts.ProbeTimeout,
		InputRate:      r.opts.InputRate,
		InputBurst:     r.opts.InputBurst,
	})
	s.ctrl.OnStateChange(func(_ string, from, to connection.State) {
		s.output.Publish(Update{Kind: UpdateState, From: from.String(), To: to.String()})
	})
	s.resizer = resize.New(d.Protocol, r.opts.Cells, surface, func(size protocol.Size) {
		if err := s.ctrl.Resize(size); err != nil {
			log.Printf("[registry] %s resize: %v", key, err)
		}
	})
	return s
}

// CloseTab removes the tab, then disconnects its controller (cancelling any
// pending reconnect) and closes its output. The tab leaves every index in one
// step, so a concurrent AddTab for the same pair gets a fresh tab.
func (r *Registry) CloseTab(key string) error {
	r.mu.Lock()
	s, ok := r.tabs[key]
	if ok {
		r.removeLocked(s)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("close tab %s: %w", key, ErrNotFound)
	}

	s.close()
	log.Printf("[registry] closed tab %s", key)
	return nil
}

// removeLocked drops s from every index. Caller must hold r.mu.
func (r *Registry) removeLocked(s *Session) {
	if r.tabs[s.Key] != s {
		return
	}
	delete(r.tabs, s.Key)
	delete(r.pairs, pairKey{s.ConnectionID, s.SessionID})
	for i, k := range r.order {
		if k == s.Key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.active == s.Key {
		r.active = ""
		if n := len(r.order); n > 0 {
			r.active = r.order[n-1]
		}
	}
}

// SetActiveTab changes which tab is presented. Connection state is untouched.
func (r *Registry) SetActiveTab(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tabs[key]; !ok {
		return fmt.Errorf("activate tab %s: %w", key, ErrNotFound)
	}
	r.active = key
	return nil
}

// CloseAll empties the registry in one step, then closes every removed tab and
// asks the backend to tear each session down.
// Teardown failures are logged and do not stop the rest. It returns the
// number of tabs closed.
func (r *Registry) CloseAll(ctx context.Context) int {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.order))
	for _, k := range r.order {
		all = append(all, r.tabs[k])
	}
	r.tabs = make(map[string]*Session)
	r.pairs = make(map[pairKey]string)
	r.order = nil
	r.active = ""
	r.mu.Unlock()

	for _, s := range all {
		s.close()
	}

	if r.opts.Backend != nil {
		for _, s := range all {
			if err := r.opts.Backend.CloseSession(ctx, s.SessionID); err != nil {
				log.Printf("[registry] teardown of session %s (tab %s) failed: %v", s.SessionID, s.Key, err)
			}
		}
	}
	log.Printf("[registry] closed all %d tab(s)", len(all))
	return len(all)
}

// Get returns a tab by key, or nil if not found.
func (r *Registry) Get(key string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tabs[key]
}

// Active returns the active tab, or nil when there are none.
func (r *Registry) Active() *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tabs[r.active]
}

// ActiveKey returns the active tab key.
func (r *Registry) ActiveKey() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// List returns the tabs in the order they were added.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.tabs[k])
	}
	return out
}

// Infos snapshots every tab.
func (r *Registry) Infos() []Info {
	r.mu.RLock()
	tabs := make([]*Session, 0, len(r.order))
	for _, k := range r.order {
		tabs = append(tabs, r.tabs[k])
	}
	active := r.active
	r.mu.RUnlock()

	out := make([]Info, 0, len(tabs))
	for _, s := range tabs {
		out = append(out, s.info(s.Key == active))
	}
	return out
}

// Info snapshots one tab.
func (r *Registry) Info(key string) (Info, error) {
	r.mu.RLock()
	s, ok := r.tabs[key]
	active := r.active
	r.mu.RUnlock()
	if !ok {
		return Info{}, fmt.Errorf("tab %s: %w", key, ErrNotFound)
	}
	return s.info(key == active), nil
}

// Len returns the number of open tabs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tabs)
}

func (r *Registry) lookup(key string) (*Session, error) {
	if s := r.Get(key); s != nil {
		return s, nil
	}
	return nil, fmt.Errorf("tab %s: %w", key, ErrNotFound)
}

// SendText routes terminal input to a tab.
func (r *Registry) SendText(key string, data []byte) error {
	s, err := r.lookup(key)
	if err != nil {
		return err
	}
	return s.ctrl.SendText(data)
}

// SendInput routes a keyboard, pointer or refresh event to a tab.
func (r *Registry) SendInput(key string, in protocol.Input) error {
	s, err := r.lookup(key)
	if err != nil {
		return err
	}
	return s.ctrl.SendInput(in)
}

// Resize reports a tab's new container box. It returns the size the
// controller was told about, or false when nothing changed.
func (r *Registry) Resize(key string, box protocol.Size) (protocol.Size, bool, error) {
	s, err := r.lookup(key)
	if err != nil {
		return protocol.Size{}, false, err
	}
	size, sent := s.resizer.Observe(box)
	return size, sent, nil
}

// Retry manually reconnects a tab with its attempt counter reset.
func (r *Registry) Retry(key string) error {
	s, err := r.lookup(key)
	if err != nil {
		return err
	}
	s.ctrl.Retry()
	return nil
}
