// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ConnectsStarted   prometheus.Counter
	ConnectsSucceeded prometheus.Counter
	ConnectsFailed    prometheus.Counter
	Reconnects        prometheus.Counter
	MessagesReceived  prometheus.Counter
	MessagesSent      prometheus.Counter
	PingsAnswered     prometheus.Counter
	CommandsDropped   prometheus.Counter
	LinesDropped      prometheus.Counter

	// Histograms (seconds)
	ConnectDuration prometheus.Observer

	// Gauges
	CommandQueueGauge    prometheus.Gauge
	ConnectionStateGauge prometheus.Gauge // chat.State numeric value
	SSESubscribersGauge  prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ConnectsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_connects_started_total", Help: "Number of connect attempts started"})
		ConnectsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_connects_succeeded_total", Help: "Number of connect attempts that reached steady state"})
		ConnectsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_connects_failed_total", Help: "Number of connect attempts that failed before steady state"})
		Reconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_reconnects_scheduled_total", Help: "Number of reconnects scheduled after a retryable failure"})
		MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_received_total", Help: "Number of parsed inbound protocol messages"})
		MessagesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_sent_total", Help: "Number of outbound commands written to the wire"})
		PingsAnswered = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_pings_answered_total", Help: "Number of PING challenges answered with PONG"})
		CommandsDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_commands_dropped_total", Help: "Number of commands dropped from a full queue (oldest-first)"})
		LinesDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_lines_dropped_total", Help: "Number of inbound lines dropped as unparseable"})
		ConnectDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_connect_duration_seconds", Help: "Dial-to-ready duration seconds", Buckets: prometheus.DefBuckets})
		CommandQueueGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_command_queue_depth", Help: "Current number of rate-limited commands waiting to send"})
		ConnectionStateGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_connection_state", Help: "Connection state as a numeric enum (4=ready)"})
		SSESubscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_sse_subscribers", Help: "Current number of SSE event stream subscribers"})
	})
}

// The engine increments through nil-safe helpers so packages stay usable in
// tests that never call Init.

func IncConnectsStarted() { inc(ConnectsStarted) }

func IncConnectsSucceeded() { inc(ConnectsSucceeded) }

func IncConnectsFailed() { inc(ConnectsFailed) }

func IncReconnects() { inc(Reconnects) }

func IncMessagesReceived() { inc(MessagesReceived) }

func IncMessagesSent() { inc(MessagesSent) }

func IncPingsAnswered() { inc(PingsAnswered) }

func IncCommandsDropped() { inc(CommandsDropped) }

func IncLinesDropped() { inc(LinesDropped) }

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// ObserveConnectDuration records dial-to-ready latency.
func ObserveConnectDuration(d time.Duration) {
	if ConnectDuration != nil {
		ConnectDuration.Observe(d.Seconds())
	}
}

// SetCommandQueueDepth records the current overflow queue size.
func SetCommandQueueDepth(n int) {
	if CommandQueueGauge != nil {
		CommandQueueGauge.Set(float64(n))
	}
}

// SetConnectionState records the current chat.State numeric value.
func SetConnectionState(state int) {
	if ConnectionStateGauge != nil {
		ConnectionStateGauge.Set(float64(state))
	}
}

// SetSSESubscribers records the current subscriber count.
func SetSSESubscribers(n int) {
	if SSESubscribersGauge != nil {
		SSESubscribersGauge.Set(float64(n))
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
