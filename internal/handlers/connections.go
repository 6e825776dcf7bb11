package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gluk-w/claworc/webconsole/internal/database"
	"github.com/gluk-w/claworc/webconsole/internal/protocol"
)

// ConnectionLister is the read side of a connection source.
type ConnectionLister interface {
	ListConnections(ctx context.Context) ([]protocol.ConnectionDescriptor, error)
}

// Connections is set from main.go during serve.
var Connections ConnectionLister

// LocalCatalog enables the write endpoints. It is true when connections come
// from the local database.
var LocalCatalog bool

// ListConnections returns the connections tabs can be opened on.
// GET /api/connections
func ListConnections(w http.ResponseWriter, r *http.Request) {
	if Connections == nil {
		writeJSON(w, http.StatusOK, []protocol.ConnectionDescriptor{})
		return
	}
	conns, err := Connections.ListConnections(r.Context())
	if err != nil {
		log.Printf("[api] list connections: %v", err)
		writeError(w, http.StatusBadGateway, "Failed to list connections")
		return
	}
	if conns == nil {
		conns = []protocol.ConnectionDescriptor{}
	}
	writeJSON(w, http.StatusOK, conns)
}

func requireLocalCatalog(w http.ResponseWriter) bool {
	if !LocalCatalog {
		writeError(w, http.StatusConflict, "Connections are managed by the backend")
		return false
	}
	return true
}

// SaveConnection creates or replaces a local connection.
// POST /api/connections
func SaveConnection(w http.ResponseWriter, r *http.Request) {
	if !requireLocalCatalog(w) {
		return
	}
	var d protocol.ConnectionDescriptor
	if !decodeJSON(w, r, &d) {
		return
	}
	if err := database.SaveConnection(d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := database.GetConnection(d.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load connection")
		return
	}
	writeJSON(w, http.StatusOK, c.Descriptor())
}

// DeleteConnection removes a local connection. Open tabs on it stay open.
// DELETE /api/connections/{id}
func DeleteConnection(w http.ResponseWriter, r *http.Request) {
	if !requireLocalCatalog(w) {
		return
	}
	if err := database.DeleteConnection(chi.URLParam(r, "id")); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportConnections loads YAML profiles from the request body.
// POST /api/connections/import
func ImportConnections(w http.ResponseWriter, r *http.Request) {
	if !requireLocalCatalog(w) {
		return
	}
	ds, err := database.ParseProfiles(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := database.ImportProfiles(ds)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Printf("[api] imported %d connection profiles", n)
	writeJSON(w, http.StatusOK, map[string]int{"imported": n})
}
