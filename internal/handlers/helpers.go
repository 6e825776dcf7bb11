package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gluk-w/claworc/webconsole/internal/backend"
	"github.com/gluk-w/claworc/webconsole/internal/session"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// errorStatus maps registry and collaborator errors onto HTTP statuses.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

// tabFromRequest resolves {key}, writing a 404 when it is unknown.
func tabFromRequest(w http.ResponseWriter, r *http.Request) *session.Session {
	if Tabs == nil {
		writeError(w, http.StatusServiceUnavailable, "Tab registry not available")
		return nil
	}
	s := Tabs.Get(chi.URLParam(r, "key"))
	if s == nil {
		writeError(w, http.StatusNotFound, "Tab not found")
		return nil
	}
	return s
}
