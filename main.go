// Command chat-relay maintains a persistent connection to Twitch chat and
// relays it over HTTP. It:
//   - Loads configuration and initializes structured logging.
//   - Starts the connection supervisor: TLS session, handshake, reconnects
//     with backoff, outbound rate limiting.
//   - Streams chat events to SSE subscribers and accepts commands via /send.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/chat-relay/chat"
	"github.com/onnwee/chat-relay/config"
	"github.com/onnwee/chat-relay/ratelimit"
	"github.com/onnwee/chat-relay/server"
	"github.com/onnwee/chat-relay/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("chat-relay", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Credentials: authenticated when configured, anonymous read-only otherwise.
	var creds chat.Credentials
	if err := cfg.ValidateAuthenticated(); err == nil {
		creds = chat.Credentials{
			Nickname: cfg.TwitchNick,
			Token:    cfg.TwitchOAuthToken,
			Channels: cfg.TwitchChannels,
		}
	} else {
		slog.Info("twitch creds not set; connecting anonymously (read-only)")
		creds = chat.Anonymous(cfg.TwitchChannels...)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sup := chat.NewSupervisor(chat.Options{
		Credentials:   creds,
		ReconnectBase: cfg.ReconnectBase,
		ReconnectCap:  cfg.ReconnectCap,
		AuthTimeout:   cfg.AuthTimeout,
		JoinGrace:     cfg.JoinGrace,
		QueueDepth:    cfg.QueueDepth,
		EventBuffer:   cfg.EventBuffer,
		MaxLineLen:    cfg.MaxLineLen,
		Diagnostics:   cfg.Diagnostics,
		Limits: ratelimit.Limits{
			PerWindow:         cfg.RateMsgsPerWindow,
			ElevatedPerWindow: cfg.RateElevatedMsgsPerWindow,
			Window:            cfg.RateWindow,
		},
	})

	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		if err := sup.Run(ctx); err != nil {
			slog.Error("supervisor exited with error", slog.Any("err", err))
		}
	}()

	// Relay engine events to the SSE hub and the log.
	hub := server.NewHub(cfg.TwitchChannels)
	go func() {
		for ev := range sup.Events() {
			hub.Publish(ev)
			logEvent(ev)
		}
	}()

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			// Use an http.Server with timeouts to satisfy G114 and avoid DoS risks
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics/events/send)
	go func() {
		if err := server.Start(ctx, hub, sup, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal, then wait for the engine's final events.
	<-ctx.Done()
	slog.Info("shutting down")
	<-supDone
}

// logEvent mirrors the event stream into the structured log so the relay is
// useful headless, without any SSE consumer attached.
func logEvent(ev chat.Event) {
	switch e := ev.(type) {
	case chat.ChatMessage:
		slog.Info("chat", slog.String("channel", e.Channel), slog.String("sender", e.Sender), slog.String("text", e.Text))
	case chat.SystemNotice:
		slog.Info("notice", slog.String("channel", e.Channel), slog.String("text", e.Text))
	case chat.Join:
		slog.Debug("join", slog.String("channel", e.Channel), slog.String("nick", e.Nick))
	case chat.Part:
		slog.Debug("part", slog.String("channel", e.Channel), slog.String("nick", e.Nick))
	case chat.RoomStateChange:
		slog.Debug("room state", slog.String("channel", e.Channel))
	case chat.PingDiagnostic:
		slog.Debug("ping answered", slog.String("payload", e.Payload))
	case chat.ConnectionOpened:
		slog.Info("connected", slog.String("session", e.SessionID))
	case chat.ConnectionLost:
		slog.Warn("connection lost", slog.Any("cause", e.Cause), slog.Bool("fatal", e.Fatal))
	case chat.ReconnectScheduled:
		slog.Info("reconnect scheduled", slog.Int("attempt", e.Attempt), slog.Duration("delay", e.Delay))
	case chat.CommandDropped:
		slog.Warn("command dropped from full queue")
	}
}
