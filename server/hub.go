package server

import (
	"sync"
	"time"

	"github.com/onnwee/chat-relay/chat"
	"github.com/onnwee/chat-relay/telemetry"
)

// subscriberBuffer bounds each SSE subscriber. A subscriber that falls this
// far behind loses events rather than stalling the relay.
const subscriberBuffer = 64

// Hub fans the engine's event stream out to SSE subscribers and keeps the
// connection status snapshot served by /status and /readyz. The engine knows
// nothing about it; main feeds it from the supervisor's event channel.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan chat.Event
	nextID int
	status Status
}

// Status is the JSON shape served by /status.
type Status struct {
	State            string    `json:"state"`
	SessionID        string    `json:"session_id,omitempty"`
	ReconnectAttempt int       `json:"reconnect_attempt,omitempty"`
	NextDelayMS      int64     `json:"next_delay_ms,omitempty"`
	Fatal            bool      `json:"fatal,omitempty"`
	LastError        string    `json:"last_error,omitempty"`
	Channels         []string  `json:"channels"`
	MessagesSeen     uint64    `json:"messages_seen"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func NewHub(channels []string) *Hub {
	return &Hub{
		subs: make(map[int]chan chat.Event),
		status: Status{
			State:    "disconnected",
			Channels: channels,
		},
	}
}

// Publish records the event in the status snapshot and forwards it to every
// subscriber. Slow subscribers drop events; the relay never blocks here.
func (h *Hub) Publish(ev chat.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.status.UpdatedAt = time.Now().UTC()
	switch e := ev.(type) {
	case chat.ConnectionOpened:
		h.status.State = "connected"
		h.status.SessionID = e.SessionID
		h.status.ReconnectAttempt = 0
		h.status.NextDelayMS = 0
		h.status.Fatal = false
		h.status.LastError = ""
	case chat.ConnectionLost:
		h.status.State = "disconnected"
		h.status.Fatal = e.Fatal
		if e.Cause != nil {
			h.status.LastError = e.Cause.Error()
		}
	case chat.ReconnectScheduled:
		h.status.State = "reconnecting"
		h.status.ReconnectAttempt = e.Attempt
		h.status.NextDelayMS = e.Delay.Milliseconds()
	case chat.ChatMessage:
		h.status.MessagesSeen++
	}

	for _, sub := range h.subs {
		select {
		case sub <- ev:
		default:
		}
	}
}

// Subscribe registers an SSE consumer. The returned cancel func must be
// called when the consumer goes away.
func (h *Hub) Subscribe() (<-chan chat.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan chat.Event, subscriberBuffer)
	h.subs[id] = ch
	telemetry.SetSSESubscribers(len(h.subs))
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
		telemetry.SetSSESubscribers(len(h.subs))
	}
}

// Status returns a copy of the current snapshot.
func (h *Hub) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Ready reports whether the relay currently has a live chat connection.
func (h *Hub) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status.State == "connected"
}

// Halted reports a fatal credential failure requiring operator action.
func (h *Hub) Halted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status.Fatal
}
