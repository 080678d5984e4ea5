package server

import (
	"encoding/json"
	"net/http"
)

// Handlers bundles the dependencies the HTTP surface needs: the event hub
// for reads and the engine's command intake for writes.
type Handlers struct {
	hub    *Hub
	sender CommandSender
}

// HandleStatus serves the current connection status snapshot.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.hub.Status())
}
