// health.go builds the failure diagnostics for the connection package.
//
// When a socket fails abnormally the controller fires one best-effort probe
// of the backend's /api/health. The result is folded into the Diagnostic
// shown once retries are exhausted. It never influences state transitions.

package connection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"

	"github.com/gluk-w/claworc/webconsole/internal/backend"
)

// Prober checks backend reachability. *backend.Client implements it.
type Prober interface {
	Probe(ctx context.Context) backend.Health
}

// Diagnostic summarises why a session ended up FAILED.
type Diagnostic struct {
	Reason       string         `json:"reason"`
	LikelyCauses []string       `json:"likely_causes"`
	LastURL      string         `json:"last_url"`
	CloseCode    int            `json:"close_code,omitempty"`
	Attempts     int            `json:"attempts"`
	Health       backend.Health `json:"health"`
}

// String renders the diagnostic for a notification or the CLI.
func (d Diagnostic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Connection failed: %s\n", d.Reason)
	if d.LastURL != "" {
		fmt.Fprintf(&b, "Last URL: %s\n", d.LastURL)
	}
	if d.CloseCode > 0 {
		fmt.Fprintf(&b, "Close code: %d after %d reconnect attempt(s)\n", d.CloseCode, d.Attempts)
	}
	if len(d.LikelyCauses) > 0 {
		b.WriteString("Likely causes:\n")
		for _, c := range d.LikelyCauses {
			fmt.Fprintf(&b, "  - %s\n", c)
		}
	}
	fmt.Fprintf(&b, "Backend health: %s", d.Health)
	return b.String()
}

// likelyCauses maps a transport failure to human hints.
func likelyCauses(err *TransportError, target string) []string {
	var causes []string
	if err == nil {
		return []string{"reconnect attempts were already used up; use retry to start over"}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		causes = append(causes,
			"backend did not accept the WebSocket within the connect timeout",
			"a firewall or proxy is dropping the upgrade request")
	case errors.Is(err, syscall.ECONNREFUSED):
		causes = append(causes, "nothing is listening on "+hostOf(target)+"; check the backend host and port settings")
	}

	if err.Err != nil {
		msg := err.Err.Error()
		if strings.Contains(msg, "401") || strings.Contains(msg, "403") {
			causes = append(causes, "the auth token was rejected; sign in again or update the token")
		}
		if strings.Contains(msg, "no such host") {
			causes = append(causes, "backend host name does not resolve")
		}
	}

	switch err.Code {
	case websocket.StatusPolicyViolation:
		causes = append(causes, "backend refused the session (auth or permissions)")
	case websocket.StatusInternalError:
		causes = append(causes, "backend failed while handling the session")
	case websocket.StatusGoingAway:
		causes = append(causes, "backend is restarting")
	case websocket.StatusAbnormalClosure:
		if len(causes) == 0 {
			causes = append(causes, "network interruption or an idle timeout in a proxy")
		}
	}
	if len(causes) == 0 {
		causes = append(causes, "remote host unreachable from the backend")
	}
	return causes
}

func hostOf(target string) string {
	rest := target
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// probe starts one health probe unless one is already running.
func (c *Controller) probe() {
	if c.opts.Prober == nil || c.probing {
		return
	}
	c.probing = true
	ctx, cancel := context.WithTimeout(c.ctx, c.probeTimeout)
	go func() {
		defer cancel()
		c.post(probed{health: c.opts.Prober.Probe(ctx)})
	}()
}

func (c *Controller) onProbed(ev probed) {
	c.probing = false
	c.mu.Lock()
	c.health = ev.health
	if c.diag != nil {
		c.diag.Health = ev.health
	}
	c.mu.Unlock()

	c.emit(EventHealthProbed, ev.health.String())
	if !ev.health.OK {
		log.Printf("[conn] %s health probe: %s", c.key, ev.health)
	}
	if c.pendingReport {
		c.report()
	}
}

// fail enters FAILED and reports the diagnostic, waiting for an in-flight
// probe so the report includes its result.
func (c *Controller) fail(cause *TransportError) {
	if cause == nil {
		if te, ok := c.lastErr.(*TransportError); ok {
			cause = te
		}
	}

	c.mu.Lock()
	d := &Diagnostic{
		Reason:       ErrRetriesExhausted.Error(),
		LikelyCauses: likelyCauses(cause, c.lastURL),
		LastURL:      c.lastURL,
		Attempts:     c.attempts,
		Health:       c.health,
	}
	if cause != nil {
		d.Reason = cause.Error()
		d.CloseCode = int(cause.Code)
	}
	c.diag = d
	c.mu.Unlock()

	c.setState(StateFailed, d.Reason)
	c.emit(EventFailed, d.Reason)
	log.Printf("[conn] %s failed after %d attempt(s): %s", c.key, d.Attempts, d.Reason)

	if c.probing {
		c.pendingReport = true
		return
	}
	c.report()
}

func (c *Controller) report() {
	c.pendingReport = false
	d := c.Diagnostic()
	if d == nil {
		return
	}
	c.sink.Notify(Notification{Level: LevelError, Text: d.String(), Time: time.Now()})
}

// Diagnostic returns the failure summary, or nil unless the controller is FAILED.
func (c *Controller) Diagnostic() *Diagnostic {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.diag == nil {
		return nil
	}
	d := *c.diag
	return &d
}
