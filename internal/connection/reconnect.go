// reconnect.go holds the reconnection policy for the connection package.
//
// After an abnormal close the controller waits BackoffDelay(attempts) and
// dials again, at most maxReconnectAttempts times in a row (1s, 2s, 4s with
// the default base). A close with 1000 or 1005 never reconnects. A
// successful open resets the counter; exhausting it moves the controller to
// FAILED, where only a manual Retry starts over.

package connection

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/coder/websocket"
)

// Defaults for Options fields left zero. Package-level vars so tests can override.
var (
	defaultReconnectBaseDelay   = 1 * time.Second
	defaultMaxReconnectAttempts = 3
	defaultConnectTimeout       = 5 * time.Second
	defaultRDPConnectTimeout    = 10 * time.Second
	defaultProbeTimeout         = 3 * time.Second
)

// BackoffDelay returns 2^attempt * base.
func BackoffDelay(attempt int, base time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return base << uint(attempt)
}

// shouldReconnect reports whether a close with this code is retried.
func shouldReconnect(code websocket.StatusCode) bool {
	return code != websocket.StatusNormalClosure && code != websocket.StatusNoStatusRcvd
}

// closeCode extracts the close status from a read or write error. Errors that
// carry no close frame (dropped TCP, timeouts) count as abnormal closure.
func closeCode(err error) websocket.StatusCode {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.StatusAbnormalClosure
}

// scheduleReconnect decides what follows an abnormal close: another attempt
// after a backoff, or FAILED.
func (c *Controller) scheduleReconnect(cause *TransportError) {
	attempts := c.Attempts()
	if attempts >= c.maxAttempts {
		c.fail(cause)
		return
	}
	delay := BackoffDelay(attempts, c.baseDelay)
	c.setAttempts(attempts + 1)

	reason := fmt.Sprintf("retry %d/%d in %s", attempts+1, c.maxAttempts, delay)
	c.setState(StateReconnecting, reason)
	c.emit(EventReconnecting, reason)
	log.Printf("[conn] %s reconnecting: %s", c.key, reason)
	c.startTimer(delay)
}

// startTimer arms the reconnect timer. A fired timer whose generation no
// longer matches is ignored, so Stop racing the callback is harmless.
func (c *Controller) startTimer(d time.Duration) {
	c.stopTimer()
	gen := c.timerGen
	c.timer = time.AfterFunc(d, func() {
		c.post(timerFired{gen: gen})
	})
}

// stopTimer cancels any pending reconnect.
func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}

func (c *Controller) onTimer(ev timerFired) {
	if ev.gen != c.timerGen || c.State() != StateReconnecting {
		return
	}
	c.timer = nil
	c.dial(fmt.Sprintf("reconnect attempt %d", c.Attempts()))
}
