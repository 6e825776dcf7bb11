package session

import (
	"log"
	"sync"
	"time"

	"github.com/gluk-w/claworc/webconsole/internal/connection"
	"github.com/gluk-w/claworc/webconsole/internal/screen"
)

// defaultOutputSize is the default maximum output tail kept per tab (256 KB).
const defaultOutputSize = 256 * 1024

// viewerQueueSize bounds the updates buffered for one viewer. A viewer that
// falls this far behind is detached.
const viewerQueueSize = 256

// UpdateKind tags an Update.
type UpdateKind string

const (
	UpdateOutput UpdateKind = "output"
	UpdateState  UpdateKind = "state"
	UpdateNotice UpdateKind = "notice"
	UpdateFrame  UpdateKind = "frame"
)

// Update is one item pushed to a tab's viewers.
type Update struct {
	Kind  UpdateKind               `json:"kind"`
	Text  []byte                   `json:"-"`
	From  string                   `json:"from,omitempty"`
	To    string                   `json:"to,omitempty"`
	Note  *connection.Notification `json:"note,omitempty"`
	Frame *screen.FrameInfo        `json:"frame,omitempty"`
	Time  time.Time                `json:"time"`
}

// Output keeps the tail of a text session's output and fans updates out to
// attached viewers. When the tail exceeds maxLen, older data is trimmed from
// the front. It is in-memory only.
type Output struct {
	mu      sync.Mutex
	data    []byte
	maxLen  int
	closed  bool
	viewers map[int]chan Update
	nextID  int
}

// NewOutput creates an output buffer with the given maximum tail size.
// If maxLen <= 0, defaultOutputSize is used.
func NewOutput(maxLen int) *Output {
	if maxLen <= 0 {
		maxLen = defaultOutputSize
	}
	return &Output{
		maxLen:  maxLen,
		viewers: make(map[int]chan Update),
	}
}

// Write appends p to the tail and forwards it to viewers.
func (o *Output) Write(p []byte) {
	data := make([]byte, len(p))
	copy(data, p)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.data = append(o.data, data...)
	if len(o.data) > o.maxLen {
		o.data = o.data[len(o.data)-o.maxLen:]
	}
	o.broadcastLocked(Update{Kind: UpdateOutput, Text: data, Time: time.Now()})
}

// Publish forwards a non-output update to viewers.
func (o *Output) Publish(u Update) {
	if u.Time.IsZero() {
		u.Time = time.Now()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.broadcastLocked(u)
}

func (o *Output) broadcastLocked(u Update) {
	for id, ch := range o.viewers {
		select {
		case ch <- u:
		default:
			log.Printf("[registry] viewer %d fell behind, detaching", id)
			close(ch)
			delete(o.viewers, id)
		}
	}
}

// Attach registers a viewer. It returns the current tail for replay, the
// channel carrying every later update, and a detach func. The channel is
// closed on detach, when the viewer falls behind, or when the output closes.
func (o *Output) Attach() ([]byte, <-chan Update, func()) {
	ch := make(chan Update, viewerQueueSize)

	o.mu.Lock()
	defer o.mu.Unlock()
	history := make([]byte, len(o.data))
	copy(history, o.data)
	if o.closed {
		close(ch)
		return history, ch, func() {}
	}
	id := o.nextID
	o.nextID++
	o.viewers[id] = ch

	var once sync.Once
	detach := func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if c, ok := o.viewers[id]; ok {
				close(c)
				delete(o.viewers, id)
			}
		})
	}
	return history, ch, detach
}

// Viewers returns the number of attached viewers.
func (o *Output) Viewers() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.viewers)
}

// Close detaches every viewer. Later writes are discarded.
func (o *Output) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	for id, ch := range o.viewers {
		close(ch)
		delete(o.viewers, id)
	}
}

// Snapshot returns a copy of the current tail.
func (o *Output) Snapshot() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	result := make([]byte, len(o.data))
	copy(result, o.data)
	return result
}

// Len returns the current tail length.
func (o *Output) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.data)
}

// IsClosed returns whether the output has been closed.
func (o *Output) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
