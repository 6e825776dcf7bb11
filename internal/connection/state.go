// state.go implements connection state tracking for the connection package.
//
// Each Controller moves through Idle → Connecting → Authenticating →
// Connected → Disconnected → (Reconnecting → Connecting)* → Failed | Closed.
// Transitions are recorded in a per-controller ring buffer (50 entries) for
// debugging, and registered callbacks are invoked on every state change.

package connection

import (
	"fmt"
	"sync"
	"time"
)

// State is the lifecycle state of one session's connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticating
	StateConnected
	StateDisconnected
	StateReconnecting
	StateFailed
	StateClosed
)

// String returns the human-readable name of the connection state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText lets states appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateIdle; st <= StateClosed; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", b)
}

// Terminal reports whether no further automatic transitions happen from s.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateClosed
}

// transitionBufferSize is the maximum number of state transitions stored
// per controller for debugging.
const transitionBufferSize = 50

// Transition records a single state change.
type Transition struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

// StateChangeCallback is called when a controller changes state. Callbacks
// run synchronously on the controller goroutine; long-running handlers
// should spawn goroutines.
type StateChangeCallback func(key string, from, to State)

// stateTracker holds the current state, its transition history and the
// registered callbacks for one controller.
type stateTracker struct {
	mu          sync.RWMutex
	current     State
	transitions [transitionBufferSize]Transition
	head        int // next write position
	count       int // entries written, capped at buffer size
	callbacks   []StateChangeCallback
}

// set updates the state, records the transition and invokes callbacks.
// Setting the current state again is a no-op.
func (st *stateTracker) set(key string, to State, reason string) bool {
	st.mu.Lock()
	from := st.current
	if from == to {
		st.mu.Unlock()
		return false
	}
	st.current = to
	st.transitions[st.head] = Transition{From: from, To: to, Timestamp: time.Now(), Reason: reason}
	st.head = (st.head + 1) % transitionBufferSize
	if st.count < transitionBufferSize {
		st.count++
	}

	cbs := make([]StateChangeCallback, len(st.callbacks))
	copy(cbs, st.callbacks)
	st.mu.Unlock()

	for _, cb := range cbs {
		cb(key, from, to)
	}
	return true
}

func (st *stateTracker) get() State {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.current
}

// history returns the transitions in chronological order (oldest first).
func (st *stateTracker) history() []Transition {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.count == 0 {
		return nil
	}
	result := make([]Transition, st.count)
	if st.count < transitionBufferSize {
		copy(result, st.transitions[:st.count])
	} else {
		// Buffer is full; head is the oldest entry.
		n := copy(result, st.transitions[st.head:])
		copy(result[n:], st.transitions[:st.head])
	}
	return result
}

func (st *stateTracker) onChange(cb StateChangeCallback) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.callbacks = append(st.callbacks, cb)
}

// State returns the controller's current state.
func (c *Controller) State() State {
	return c.state.get()
}

// History returns up to the last 50 state transitions, oldest first.
func (c *Controller) History() []Transition {
	return c.state.history()
}

// OnStateChange registers a callback invoked on every state change.
func (c *Controller) OnStateChange(cb StateChangeCallback) {
	c.state.onChange(cb)
}
