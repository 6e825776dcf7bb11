// events.go implements the connection event log for the connection package.
//
// Events record individual actions and their outcomes (dial, open, close,
// retry scheduled, server error, notice, dropped frame, health probe) while
// state.go records the state changes themselves. Events are kept in a
// per-controller ring buffer (100 entries) and pushed to listeners.

package connection

import (
	"sync"
	"time"
)

// eventBufferSize is the maximum number of events stored per controller.
const eventBufferSize = 100

// EventType identifies what happened.
type EventType string

const (
	EventConnecting     EventType = "connecting"
	EventOpened         EventType = "opened"
	EventDisconnected   EventType = "disconnected"
	EventReconnecting   EventType = "reconnecting"
	EventFailed         EventType = "failed"
	EventClosed         EventType = "closed"
	EventScreenLive     EventType = "screen_live"
	EventServerError    EventType = "server_error"
	EventNotice         EventType = "notice"
	EventProtocolError  EventType = "protocol_error"
	EventHealthProbed   EventType = "health_probed"
	EventResizeSent     EventType = "resize_sent"
	EventInputThrottled EventType = "input_throttled"
)

// Event is one entry in a controller's event log.
type Event struct {
	Key       string    `json:"key"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details"`
}

// EventListener receives every event a controller emits. Listeners run
// synchronously on the controller goroutine.
type EventListener func(Event)

// eventLog is a fixed-size ring buffer of events plus listeners.
type eventLog struct {
	mu        sync.RWMutex
	events    [eventBufferSize]Event
	head      int
	count     int
	listeners []EventListener
}

func (el *eventLog) record(e Event) {
	el.mu.Lock()
	el.events[el.head] = e
	el.head = (el.head + 1) % eventBufferSize
	if el.count < eventBufferSize {
		el.count++
	}
	listeners := make([]EventListener, len(el.listeners))
	copy(listeners, el.listeners)
	el.mu.Unlock()

	for _, l := range listeners {
		l(e)
	}
}

// history returns events in chronological order (oldest first).
func (el *eventLog) history() []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()
	if el.count == 0 {
		return nil
	}
	result := make([]Event, el.count)
	if el.count < eventBufferSize {
		copy(result, el.events[:el.count])
	} else {
		n := copy(result, el.events[el.head:])
		copy(result[n:], el.events[:el.head])
	}
	return result
}

func (el *eventLog) listen(l EventListener) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.listeners = append(el.listeners, l)
}

// emit records an event for this controller.
func (c *Controller) emit(t EventType, details string) {
	c.events.record(Event{Key: c.key, Type: t, Timestamp: time.Now(), Details: details})
}

// Events returns up to the last 100 events, oldest first.
func (c *Controller) Events() []Event {
	return c.events.history()
}

// OnEvent registers a listener for this controller's events.
func (c *Controller) OnEvent(l EventListener) {
	c.events.listen(l)
}
