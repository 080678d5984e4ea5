package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/chat-relay/chat"
)

// keepaliveInterval spaces SSE comment lines so idle proxies keep the
// stream open.
const keepaliveInterval = 15 * time.Second

// HandleEvents streams live chat events using Server-Sent Events.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, cancel := h.hub.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	enc := json.NewEncoder(w)
	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-events:
			if _, err := w.Write([]byte("data: ")); err != nil {
				slog.Warn("failed to write SSE data prefix", slog.Any("err", err))
				return
			}
			if err := enc.Encode(eventJSON(ev)); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n")); err != nil {
				slog.Warn("failed to write SSE newline", slog.Any("err", err))
				return
			}
			flusher.Flush()
		}
	}
}

// eventJSON flattens an engine event into the wire shape streamed to SSE
// consumers, with a "type" discriminator.
func eventJSON(ev chat.Event) map[string]any {
	switch e := ev.(type) {
	case chat.ChatMessage:
		return map[string]any{
			"type":        "message",
			"channel":     e.Channel,
			"sender":      e.Sender,
			"text":        e.Text,
			"tags":        e.Tags,
			"received_at": e.ReceivedAt,
		}
	case chat.SystemNotice:
		return map[string]any{
			"type":    "notice",
			"channel": e.Channel,
			"text":    e.Text,
			"tags":    e.Tags,
		}
	case chat.Join:
		return map[string]any{"type": "join", "channel": e.Channel, "nick": e.Nick}
	case chat.Part:
		return map[string]any{"type": "part", "channel": e.Channel, "nick": e.Nick}
	case chat.RoomStateChange:
		return map[string]any{"type": "room_state", "channel": e.Channel, "tags": e.Tags}
	case chat.PingDiagnostic:
		return map[string]any{"type": "ping", "payload": e.Payload}
	case chat.ConnectionOpened:
		return map[string]any{"type": "connection_opened", "session_id": e.SessionID}
	case chat.ConnectionLost:
		out := map[string]any{"type": "connection_lost", "session_id": e.SessionID, "fatal": e.Fatal}
		if e.Cause != nil {
			out["cause"] = e.Cause.Error()
		}
		return out
	case chat.ReconnectScheduled:
		return map[string]any{"type": "reconnect_scheduled", "attempt": e.Attempt, "delay_ms": e.Delay.Milliseconds()}
	case chat.CommandDropped:
		return map[string]any{"type": "command_dropped"}
	default:
		return map[string]any{"type": "unknown"}
	}
}
