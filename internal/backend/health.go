package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNotFound is returned when the backend has no such connection.
var ErrNotFound = errors.New("not found")

// Health is the outcome of one probe of GET /api/health.
type Health struct {
	OK        bool          `json:"ok"`
	Status    int           `json:"status,omitempty"`
	Error     string        `json:"error,omitempty"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checked_at"`
}

// String renders the probe result for diagnostics.
func (h Health) String() string {
	switch {
	case h.CheckedAt.IsZero():
		return "not checked"
	case h.OK:
		return fmt.Sprintf("backend healthy (HTTP %d in %s)", h.Status, h.Latency.Round(time.Millisecond))
	case h.Status != 0:
		return fmt.Sprintf("backend unhealthy (HTTP %d)", h.Status)
	default:
		return "backend unreachable: " + h.Error
	}
}

// Probe performs one health request. It never returns an error; failures are
// described in the result.
func (c *Client) Probe(ctx context.Context) Health {
	start := time.Now()
	h := Health{}
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/health", nil)
	h.CheckedAt = time.Now()
	h.Latency = h.CheckedAt.Sub(start)
	if err != nil {
		h.Error = err.Error()
		return h
	}
	defer resp.Body.Close()
	h.Status = resp.StatusCode
	h.OK = resp.StatusCode >= 200 && resp.StatusCode < 300
	return h
}
