package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/onnwee/chat-relay/chat"
)

// sendRequest is the JSON body accepted by POST /send.
type sendRequest struct {
	Type    string `json:"type"` // say | join | part | raw
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text,omitempty"`
	Line    string `json:"line,omitempty"`
}

// HandleSend submits an operator command to the engine. Accepted commands
// are queued, not guaranteed sent: the engine's bounded-queue drop policy
// applies downstream.
func (h *Handlers) HandleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.hub.Halted() {
		http.Error(w, "relay halted on credential failure; update credentials first", http.StatusServiceUnavailable)
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	var cmd chat.Command
	switch strings.ToLower(req.Type) {
	case "say":
		if req.Channel == "" || req.Text == "" {
			http.Error(w, "say requires channel and text", http.StatusBadRequest)
			return
		}
		cmd = chat.SendMessage{Channel: req.Channel, Text: req.Text}
	case "join":
		if req.Channel == "" {
			http.Error(w, "join requires channel", http.StatusBadRequest)
			return
		}
		cmd = chat.JoinChannel{Channel: req.Channel}
	case "part":
		if req.Channel == "" {
			http.Error(w, "part requires channel", http.StatusBadRequest)
			return
		}
		cmd = chat.LeaveChannel{Channel: req.Channel}
	case "raw":
		if req.Line == "" {
			http.Error(w, "raw requires line", http.StatusBadRequest)
			return
		}
		cmd = chat.RawSend{Line: req.Line}
	default:
		http.Error(w, "unknown command type", http.StatusBadRequest)
		return
	}

	if err := h.sender.Send(r.Context(), cmd); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
}
