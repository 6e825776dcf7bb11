package handlers

import (
	"net/http"
	"strconv"

	"github.com/gluk-w/claworc/webconsole/internal/connection"
	"github.com/gluk-w/claworc/webconsole/internal/logging"
)

const (
	defaultLogLines = 200
	maxLogLines     = 5000
)

type logsResponse struct {
	Logs   string             `json:"logs"`
	Tab    string             `json:"tab,omitempty"`
	Events []connection.Event `json:"events,omitempty"`
}

// GetServerLogs returns the tail of the server log. With ?tab=KEY only lines
// mentioning that tab are returned, together with its controller events when
// the tab is still open.
// GET /api/logs?lines=N&tab=KEY
func GetServerLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lines := defaultLogLines
	if v := q.Get("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "lines must be a positive integer")
			return
		}
		lines = min(n, maxLogLines)
	}

	resp := logsResponse{Tab: q.Get("tab")}
	content, err := logging.ReadTailMatching(lines, resp.Tab)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp.Logs = content
	if resp.Tab != "" && Tabs != nil {
		if s := Tabs.Get(resp.Tab); s != nil {
			resp.Events = s.Controller().Events()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ClearServerLogs truncates the server log.
// DELETE /api/logs
func ClearServerLogs(w http.ResponseWriter, r *http.Request) {
	if err := logging.Clear(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
