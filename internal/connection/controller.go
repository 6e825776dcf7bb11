// Package connection owns one session's WebSocket and drives its lifecycle:
// handshake, inbound demux, resize notifications and reconnection.
//
// Each Controller runs a single goroutine that serialises everything that
// can happen to the session (API calls, dial results, inbound frames, socket
// closes, timers, health probes) through one inbox channel. Socket reads and
// writes happen on per-socket goroutines that only post events, so ordering
// within a session is preserved and no two events are handled concurrently.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/gluk-w/claworc/webconsole/internal/backend"
	"github.com/gluk-w/claworc/webconsole/internal/config"
	"github.com/gluk-w/claworc/webconsole/internal/logutil"
	"github.com/gluk-w/claworc/webconsole/internal/protocol"
)

const (
	inboxSize     = 64
	sendQueueSize = 256
)

// defaultScreenSize is sent in the init message when no surface size is known.
var defaultScreenSize = protocol.Size{Width: 1024, Height: 768}

// Options configures a Controller. Zero durations and counts fall back to
// the package defaults.
type Options struct {
	Key          string
	ConnectionID string
	SessionID    string
	Descriptor   protocol.ConnectionDescriptor
	Endpoint     config.Endpoint
	Token        string

	Dialer Dialer
	Prober Prober
	Sink   Sink

	// InitialSize seeds the surface size used by the first init/resize.
	InitialSize protocol.Size

	ConnectTimeout time.Duration
	MaxAttempts    int
	BaseDelay      time.Duration
	ProbeTimeout   time.Duration

	// Pointer moves beyond this rate are dropped. Zero disables limiting.
	InputRate  float64
	InputBurst int
}

// Controller is the state machine for one session's connection.
type Controller struct {
	key  string
	kind protocol.Kind
	opts Options
	sink Sink

	connectTimeout time.Duration
	maxAttempts    int
	baseDelay      time.Duration
	probeTimeout   time.Duration
	limiter        *rate.Limiter

	state  stateTracker
	events eventLog

	inbox  chan interface{}
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	// mu guards the fields read by other goroutines.
	mu         sync.RWMutex
	attempts   int
	lastKnown  protocol.Size
	screenLive bool
	lastURL    string
	diag       *Diagnostic
	health     backend.Health

	// Owned by the run goroutine.
	gen           uint64
	conn          Conn
	connCancel    context.CancelFunc
	dialCancel    context.CancelFunc
	out           chan outbound
	timer         *time.Timer
	timerGen      uint64
	surface       protocol.Size
	lastButtons   protocol.Buttons
	throttling    bool
	probing       bool
	pendingReport bool
	lastErr       error
}

type outbound struct {
	typ  websocket.MessageType
	data []byte
}

// Inbox events.
type (
	connectCmd    struct{ manual bool }
	disconnectCmd struct{ reply chan struct{} }
	resizeCmd     struct{ size protocol.Size }
	sendCmd       struct {
		typ   websocket.MessageType
		data  []byte
		reply chan error
	}
	inputCmd struct {
		in    protocol.Input
		reply chan error
	}
	dialed struct {
		gen  uint64
		conn Conn
		err  error
	}
	frameReceived struct {
		gen   uint64
		frame protocol.Frame
	}
	socketClosed struct {
		gen uint64
		op  string
		err error
	}
	timerFired struct{ gen uint64 }
	probed     struct{ health backend.Health }
)

// New creates a controller in IDLE and starts its goroutine. Call Connect to
// open the socket and Disconnect to release everything.
func New(opts Options) *Controller {
	kind := opts.Descriptor.Protocol
	c := &Controller{
		key:            opts.Key,
		kind:           kind,
		opts:           opts,
		sink:           opts.Sink,
		connectTimeout: opts.ConnectTimeout,
		maxAttempts:    opts.MaxAttempts,
		baseDelay:      opts.BaseDelay,
		probeTimeout:   opts.ProbeTimeout,
		inbox:          make(chan interface{}, inboxSize),
		done:           make(chan struct{}),
		surface:        opts.InitialSize,
	}
	if c.sink == nil {
		c.sink = NopSink{}
	}
	if c.opts.Dialer == nil {
		c.opts.Dialer = WebSocketDialer{}
	}
	if c.connectTimeout <= 0 {
		c.connectTimeout = defaultConnectTimeout
		if kind == protocol.KindRDP {
			c.connectTimeout = defaultRDPConnectTimeout
		}
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxReconnectAttempts
	}
	if c.baseDelay <= 0 {
		c.baseDelay = defaultReconnectBaseDelay
	}
	if c.probeTimeout <= 0 {
		c.probeTimeout = defaultProbeTimeout
	}
	if opts.InputRate > 0 {
		burst := opts.InputBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.InputRate), burst)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	go c.run()
	return c
}

// Key returns the tab key this controller serves.
func (c *Controller) Key() string { return c.key }

// Kind returns the session protocol.
func (c *Controller) Kind() protocol.Kind { return c.kind }

// Done is closed once the controller has reached CLOSED.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Connect opens the socket from IDLE or DISCONNECTED. Calls in any other
// state are ignored.
func (c *Controller) Connect() {
	c.submit(connectCmd{})
}

// Retry reconnects from FAILED, DISCONNECTED or RECONNECTING with the attempt
// counter reset.
func (c *Controller) Retry() {
	c.submit(connectCmd{manual: true})
}

// Disconnect cancels any pending reconnect, closes the socket with 1000 and
// moves to CLOSED. It returns once the controller has stopped.
func (c *Controller) Disconnect() {
	reply := make(chan struct{})
	if err := c.submit(disconnectCmd{reply: reply}); err != nil {
		return
	}
	select {
	case <-reply:
	case <-c.done:
	}
	<-c.done
}

// Resize reports a new surface size: terminal cells for text sessions,
// pixels for graphical ones. A resize message is sent when CONNECTED and the
// size differs from the last one sent.
func (c *Controller) Resize(size protocol.Size) error {
	return c.submit(resizeCmd{size: size})
}

// SendText writes raw terminal input as a text frame.
func (c *Controller) SendText(data []byte) error {
	reply := make(chan error, 1)
	if err := c.submit(sendCmd{typ: websocket.MessageText, data: data, reply: reply}); err != nil {
		return err
	}
	return c.await(reply)
}

// SendInput writes a binary input event. Pointer moves with unchanged buttons
// may be dropped by the rate limiter; keyboard and refresh events never are.
func (c *Controller) SendInput(in protocol.Input) error {
	reply := make(chan error, 1)
	if err := c.submit(inputCmd{in: in, reply: reply}); err != nil {
		return err
	}
	return c.await(reply)
}

func (c *Controller) await(reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrClosed
	}
}

// submit posts an event, failing once the controller is closed.
func (c *Controller) submit(ev interface{}) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.inbox <- ev:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// post is submit for background goroutines, which just give up when closed.
func (c *Controller) post(ev interface{}) {
	c.submit(ev)
}

// Attempts returns the consecutive reconnect attempts since the last open.
func (c *Controller) Attempts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attempts
}

func (c *Controller) setAttempts(n int) {
	c.mu.Lock()
	c.attempts = n
	c.mu.Unlock()
}

// LastKnownSize returns the size most recently sent to the backend.
func (c *Controller) LastKnownSize() protocol.Size {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastKnown
}

func (c *Controller) setLastKnown(s protocol.Size) {
	c.mu.Lock()
	c.lastKnown = s
	c.mu.Unlock()
}

// ScreenLive reports whether a graphical session's screen output is live.
func (c *Controller) ScreenLive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.screenLive
}

func (c *Controller) setScreenLive(v bool) {
	c.mu.Lock()
	c.screenLive = v
	c.mu.Unlock()
}

// LastURL returns the last URL dialled, token redacted.
func (c *Controller) LastURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastURL
}

func (c *Controller) setState(s State, reason string) {
	c.state.set(c.key, s, reason)
}

// Status is a point-in-time view of a controller for APIs.
type Status struct {
	Key           string        `json:"key"`
	State         State         `json:"state"`
	Attempts      int           `json:"attempts"`
	LastKnownSize protocol.Size `json:"last_known_size"`
	ScreenLive    bool          `json:"screen_live"`
	LastURL       string        `json:"last_url,omitempty"`
	Diagnostic    *Diagnostic   `json:"diagnostic,omitempty"`
}

// Status snapshots the controller.
func (c *Controller) Status() Status {
	st := c.State()
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Status{
		Key:           c.key,
		State:         st,
		Attempts:      c.attempts,
		LastKnownSize: c.lastKnown,
		ScreenLive:    c.screenLive,
		LastURL:       c.lastURL,
	}
	if st == StateFailed && c.diag != nil {
		d := *c.diag
		s.Diagnostic = &d
	}
	return s
}

func (c *Controller) run() {
	defer close(c.done)
	defer c.cancel()
	for ev := range c.inbox {
		if c.handle(ev) {
			return
		}
	}
}

// handle processes one inbox event and reports whether the controller closed.
func (c *Controller) handle(ev interface{}) bool {
	switch ev := ev.(type) {
	case connectCmd:
		c.onConnect(ev)
	case disconnectCmd:
		c.onDisconnect()
		close(ev.reply)
		return true
	case resizeCmd:
		c.onResize(ev.size)
	case sendCmd:
		ev.reply <- c.enqueue(ev.typ, ev.data)
	case inputCmd:
		ev.reply <- c.onInput(ev.in)
	case dialed:
		c.onDialed(ev)
	case frameReceived:
		if ev.gen == c.gen && c.conn != nil {
			c.dispatch(ev.frame)
		}
	case socketClosed:
		c.onSocketClosed(ev)
	case timerFired:
		c.onTimer(ev)
	case probed:
		c.onProbed(ev)
	}
	return false
}

func (c *Controller) onConnect(ev connectCmd) {
	switch st := c.State(); st {
	case StateIdle, StateDisconnected:
		// A DISCONNECTED controller whose budget is spent fails instead of dialling.
		if !ev.manual && c.Attempts() >= c.maxAttempts {
			c.fail(nil)
			return
		}
		if ev.manual {
			c.setAttempts(0)
		}
		c.dial("connect")
	case StateFailed, StateReconnecting:
		if !ev.manual {
			return
		}
		c.stopTimer()
		c.setAttempts(0)
		c.dial("manual retry")
	}
}

// dial moves to CONNECTING and opens the socket in the background, bounded
// by the connect timeout.
func (c *Controller) dial(reason string) {
	c.gen++
	gen := c.gen

	target := SessionURL(c.opts.Endpoint, c.kind, c.opts.SessionID, c.opts.Token)
	redacted := logutil.RedactToken(target)
	c.mu.Lock()
	c.lastURL = redacted
	c.diag = nil
	c.mu.Unlock()
	c.pendingReport = false

	c.setState(StateConnecting, reason)
	c.emit(EventConnecting, redacted)
	log.Printf("[conn] %s connecting to %s (%s)", c.key, redacted, reason)

	ctx, cancel := context.WithTimeout(c.ctx, c.connectTimeout)
	c.dialCancel = cancel
	dialer := c.opts.Dialer
	go func() {
		conn, err := dialer.Dial(ctx, target)
		if c.submit(dialed{gen: gen, conn: conn, err: err}) != nil && conn != nil {
			conn.Close(websocket.StatusNormalClosure, "session closed")
		}
	}()
}

func (c *Controller) onDialed(ev dialed) {
	if ev.gen != c.gen || c.State() != StateConnecting {
		if ev.conn != nil {
			go ev.conn.Close(websocket.StatusNormalClosure, "superseded")
		}
		return
	}
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	if ev.err != nil {
		op := "dial"
		if c.ctx.Err() == nil && errors.Is(ev.err, context.DeadlineExceeded) {
			op = "connect timeout"
		}
		c.lost(&TransportError{Op: op, URL: c.LastURL(), Code: websocket.StatusAbnormalClosure, Err: ev.err})
		return
	}
	c.opened(ev.conn)
}

// opened runs the handshake: auth, then init for graphical sessions. Input
// is accepted as soon as the socket is open, so the controller moves
// straight through AUTHENTICATING to CONNECTED.
func (c *Controller) opened(conn Conn) {
	// Not derived from c.ctx: Disconnect must be able to finish the close
	// handshake after the run goroutine has exited.
	ctx, cancel := context.WithCancel(context.Background())
	c.conn, c.connCancel = conn, cancel
	c.out = make(chan outbound, sendQueueSize)
	c.lastButtons = 0
	c.setAttempts(0)
	c.setLastKnown(protocol.Size{})
	c.setScreenLive(false)
	c.lastErr = nil

	c.setState(StateAuthenticating, "socket open")
	c.emit(EventOpened, c.LastURL())
	log.Printf("[conn] %s open, authenticating", c.key)

	go c.readLoop(ctx, c.gen, conn)
	go c.writeLoop(ctx, c.gen, conn, c.out)

	auth, err := protocol.EncodeAuth(c.opts.Token, c.opts.Descriptor.Info(c.opts.SessionID))
	if err == nil {
		err = c.enqueue(websocket.MessageText, auth)
	}
	if err != nil {
		log.Printf("[conn] %s send auth: %v", c.key, err)
		return
	}

	if c.kind.Graphical() {
		size := c.surface
		if size.IsZero() {
			size = defaultScreenSize
		}
		initMsg, err := protocol.EncodeInit(c.kind, size, c.opts.ConnectionID, c.opts.SessionID)
		if err == nil {
			err = c.enqueue(websocket.MessageText, initMsg)
		}
		if err != nil {
			log.Printf("[conn] %s send init: %v", c.key, err)
			return
		}
		c.setLastKnown(size)
	}

	c.setState(StateConnected, "auth sent")
	if !c.kind.Graphical() && !c.surface.IsZero() {
		c.sendResize(c.surface)
	}
}

func (c *Controller) readLoop(ctx context.Context, gen uint64, conn Conn) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			c.post(socketClosed{gen: gen, op: "read", err: err})
			return
		}
		c.post(frameReceived{gen: gen, frame: protocol.Frame{Binary: typ == websocket.MessageBinary, Data: data}})
	}
}

func (c *Controller) writeLoop(ctx context.Context, gen uint64, conn Conn, out <-chan outbound) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-out:
			if err := conn.Write(ctx, m.typ, m.data); err != nil {
				c.post(socketClosed{gen: gen, op: "write", err: err})
				return
			}
		}
	}
}

// enqueue hands a message to the socket's writer in order.
func (c *Controller) enqueue(typ websocket.MessageType, data []byte) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	select {
	case c.out <- outbound{typ: typ, data: data}:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (c *Controller) onInput(in protocol.Input) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	if p, ok := in.(protocol.Pointer); ok && c.limiter != nil {
		if p.Buttons == c.lastButtons && !c.limiter.Allow() {
			if !c.throttling {
				c.throttling = true
				c.emit(EventInputThrottled, "pointer moves dropped")
			}
			return nil
		}
		c.throttling = false
		c.lastButtons = p.Buttons
	}
	return c.enqueue(websocket.MessageBinary, in.Encode())
}

func (c *Controller) onResize(size protocol.Size) {
	if size.IsZero() {
		return
	}
	c.surface = size
	if c.conn == nil || c.State() != StateConnected {
		return
	}
	if size == c.LastKnownSize() {
		return
	}
	c.sendResize(size)
}

func (c *Controller) sendResize(size protocol.Size) {
	msg, err := protocol.EncodeResize(c.kind, size)
	if err == nil {
		err = c.enqueue(websocket.MessageText, msg)
	}
	if err != nil {
		log.Printf("[conn] %s send resize: %v", c.key, err)
		return
	}
	c.setLastKnown(size)
	c.emit(EventResizeSent, size.String())
}

// dispatch routes one decoded inbound frame.
func (c *Controller) dispatch(f protocol.Frame) {
	msg, err := protocol.Decode(f, c.kind)
	if err != nil {
		c.dropFrame(err)
		return
	}

	switch m := msg.(type) {
	case protocol.RawStream:
		c.sink.Text(m.Data)
	case protocol.ScreenUpdate:
		if !c.ScreenLive() {
			c.markScreenLive("first screen update")
		}
		if err := c.sink.Screen(m); err != nil {
			c.dropFrame(&protocol.ProtocolError{Frame: "SCREENSHOT", Reason: "undecodable image", Err: err})
		}
	case protocol.ScreenReady:
		c.markScreenLive(string(m.Kind))
	case protocol.ServerError:
		appErr := &ApplicationError{Message: m.Message, Graphical: m.Graphical}
		log.Printf("[conn] %s %s", c.key, logutil.SanitizeForLog(appErr.Error()))
		c.emit(EventServerError, m.Message)
		c.sink.Notify(Notification{Level: LevelError, Text: appErr.Error(), Time: time.Now()})
	case protocol.Notice:
		c.emit(EventNotice, m.Text)
		c.sink.Notify(Notification{Level: LevelNotice, Text: m.Text, Time: time.Now()})
	case protocol.Opaque:
		log.Printf("[conn] %s ignoring %d-byte binary frame", c.key, len(m.Data))
	case protocol.Ignored, protocol.ControlMessage:
	}
}

func (c *Controller) dropFrame(err error) {
	msg := logutil.Truncate(logutil.SanitizeForLog(err.Error()), 200)
	log.Printf("[conn] %s dropped frame: %s", c.key, msg)
	c.emit(EventProtocolError, msg)
}

func (c *Controller) markScreenLive(reason string) {
	if c.ScreenLive() {
		return
	}
	c.setScreenLive(true)
	c.emit(EventScreenLive, reason)
}

func (c *Controller) onSocketClosed(ev socketClosed) {
	if ev.gen != c.gen || c.conn == nil {
		return
	}
	c.releaseConn()
	c.lost(&TransportError{Op: ev.op, URL: c.LastURL(), Code: closeCode(ev.err), Err: ev.err})
}

// releaseConn stops the socket goroutines. The read context being cancelled
// makes coder/websocket close the connection.
func (c *Controller) releaseConn() Conn {
	conn := c.conn
	if c.connCancel != nil {
		c.connCancel()
	}
	c.conn, c.connCancel, c.out = nil, nil, nil
	return conn
}

// lost handles any transport failure: DISCONNECTED, then reconnect or FAILED
// unless the close was clean.
func (c *Controller) lost(cause *TransportError) {
	c.lastErr = cause
	c.setScreenLive(false)
	c.setState(StateDisconnected, cause.Error())
	c.emit(EventDisconnected, cause.Error())
	log.Printf("[conn] %s disconnected: %s", c.key, logutil.SanitizeForLog(cause.Error()))

	if cause.Clean() {
		return
	}
	c.probe()
	c.scheduleReconnect(cause)
}

func (c *Controller) onDisconnect() {
	c.stopTimer()
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	if conn := c.conn; conn != nil {
		cancel := c.connCancel
		c.conn, c.connCancel, c.out = nil, nil, nil
		go func() {
			conn.Close(websocket.StatusNormalClosure, "session closed")
			cancel()
		}()
	}
	c.gen++
	c.setState(StateClosed, "disconnect")
	c.emit(EventClosed, fmt.Sprintf("after %d attempt(s)", c.Attempts()))
	log.Printf("[conn] %s closed", c.key)
}
