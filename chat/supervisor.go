package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/onnwee/chat-relay/ratelimit"
	"github.com/onnwee/chat-relay/telemetry"
)

// Options configures the supervisor. Zero values select defaults.
type Options struct {
	Credentials Credentials

	// Dial opens the transport; defaults to DialTwitch.
	Dial DialFunc

	// Limits sizes the outbound rate-limit buckets.
	Limits ratelimit.Limits

	ReconnectBase time.Duration // first retry delay, default 1s
	ReconnectCap  time.Duration // delay ceiling, default 1m
	AuthTimeout   time.Duration // handshake deadline, default 5s
	JoinGrace     time.Duration // silent-join tolerance, default 2s

	MaxLineLen  int // inbound line cap, default irc.DefaultMaxLineLen
	QueueDepth  int // bounded command queue, default 32
	EventBuffer int // outward event channel capacity, default 256

	// Diagnostics surfaces answered PINGs as PingDiagnostic events.
	Diagnostics bool

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Dial == nil {
		o.Dial = DialTwitch
	}
	if o.ReconnectBase <= 0 {
		o.ReconnectBase = time.Second
	}
	if o.ReconnectCap <= 0 {
		o.ReconnectCap = time.Minute
	}
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = 5 * time.Second
	}
	if o.JoinGrace <= 0 {
		o.JoinGrace = 2 * time.Second
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = 32
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 256
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Supervisor owns zero-or-one live session and the operator-facing channel
// pair that outlives any individual session. It is the only value external
// code holds; everything else is engine-internal.
type Supervisor struct {
	opts     Options
	events   chan Event
	commands chan Command
	credCh   chan Credentials
}

// NewSupervisor builds a supervisor; call Run to start connecting.
func NewSupervisor(opts Options) *Supervisor {
	opts = opts.withDefaults()
	return &Supervisor{
		opts:     opts,
		events:   make(chan Event, opts.EventBuffer),
		commands: make(chan Command, opts.QueueDepth),
		credCh:   make(chan Credentials),
	}
}

// Events is the outward event stream. Closed after Run returns; consumers
// should range over it.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// Send submits an operator command. It blocks only while the intake buffer
// is full; queueing and the drop policy happen inside the engine.
func (s *Supervisor) Send(ctx context.Context, cmd Command) error {
	select {
	case s.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateCredentials replaces the credential snapshot. The next session uses
// it; if the engine is halted on an auth failure, this restarts connecting.
func (s *Supervisor) UpdateCredentials(ctx context.Context, creds Credentials) error {
	select {
	case s.credCh <- creds:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives connect attempts until ctx is canceled, relaying events outward
// and commands to whichever session is current. Retryable session failures
// reconnect after min(base*2^attempt, cap) plus jitter; an AuthError halts
// everything until UpdateCredentials supplies a new snapshot. Always emits a
// final ConnectionLost before closing the event channel.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.events)

	log := s.opts.Logger.With(slog.String("component", "chat_supervisor"))
	creds := s.opts.Credentials
	limiter := ratelimit.NewBucket(s.opts.Limits)
	pending := newCommandQueue(s.opts.QueueDepth)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.ReconnectBase
	bo.MaxInterval = s.opts.ReconnectCap
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.5

	var (
		sessID    string
		sessCmds  chan Command
		sessReady chan struct{}
		sessDone  chan error
		ready     bool
		halted    bool
		attempt   int
	)

	start := func() {
		sessID = uuid.New().String()
		sessCmds = make(chan Command, s.opts.QueueDepth)
		sessReady = make(chan struct{})
		sessDone = make(chan error, 1)
		ready = false
		cfg := sessionConfig{
			id:          sessID,
			creds:       creds,
			dial:        s.opts.Dial,
			limiter:     limiter,
			authTimeout: s.opts.AuthTimeout,
			joinGrace:   s.opts.JoinGrace,
			maxLineLen:  s.opts.MaxLineLen,
			queueDepth:  s.opts.QueueDepth,
			diagnostics: s.opts.Diagnostics,
			log:         s.opts.Logger,
		}
		done := sessDone
		go func() { done <- runSession(ctx, cfg, s.events, sessCmds, sessReady) }()
	}

	// flushPending drains parked commands into the session intake, oldest
	// first, stopping at the first one that does not fit. While anything is
	// parked, new commands queue behind it so submission order holds.
	flushPending := func() {
		if !ready {
			return
		}
		for {
			cmd, ok := pending.peek()
			if !ok {
				return
			}
			select {
			case sessCmds <- cmd:
				pending.pop()
			default:
				return
			}
		}
	}

	flushTick := time.NewTicker(flushInterval)
	defer flushTick.Stop()

	var retry *time.Timer
	var retryC <-chan time.Time
	defer func() {
		if retry != nil {
			retry.Stop()
		}
	}()

	start()
	for {
		select {
		case <-ctx.Done():
			// With no session live (halted, or waiting out a backoff delay)
			// the last session already reported its loss; only a session
			// still unwinding gets the final ConnectionLost.
			if sessDone != nil {
				err := <-sessDone
				s.finalEvent(sessID, err)
			}
			log.Info("chat supervisor stopped")
			return nil

		case cmd := <-s.commands:
			if ready && pending.len() == 0 {
				select {
				case sessCmds <- cmd:
					continue
				default:
					// Session intake stalled; park rather than block the
					// operator. Later commands queue behind this one.
				}
			}
			if evicted, dropped := pending.push(cmd); dropped {
				telemetry.IncCommandsDropped()
				s.relay(ctx, CommandDropped{Cmd: evicted})
			}
			flushPending()

		case <-flushTick.C:
			flushPending()

		case newCreds := <-s.credCh:
			creds = newCreds
			log.Info("credentials updated", slog.String("nick", creds.Nickname))
			if halted {
				halted = false
				attempt = 0
				bo.Reset()
				start()
			}

		case <-sessReady:
			sessReady = nil
			ready = true
			attempt = 0
			bo.Reset()
			flushPending()

		case err := <-sessDone:
			sessDone = nil
			sessReady = nil
			ready = false
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				s.finalEvent(sessID, err)
				log.Info("chat supervisor stopped")
				return nil
			}
			fatal := !Retryable(err)
			log.Warn("chat session ended",
				slog.Any("err", err),
				slog.String("class", Classify(err).String()),
				slog.String("session", sessID))
			s.relay(ctx, ConnectionLost{SessionID: sessID, Cause: err, Fatal: fatal})
			if fatal {
				halted = true
				log.Error("halting reconnects until credentials are updated", slog.Any("err", err))
				continue
			}
			attempt++
			delay := bo.NextBackOff()
			telemetry.IncReconnects()
			telemetry.SetConnectionState(int(StateReconnecting))
			s.relay(ctx, ReconnectScheduled{Attempt: attempt, Delay: delay})
			log.Info("reconnect scheduled",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))
			retry = time.NewTimer(delay)
			retryC = retry.C

		case <-retryC:
			retryC = nil
			start()
		}
	}
}

// relay emits a lifecycle event without wedging shutdown.
func (s *Supervisor) relay(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// finalEvent emits the closing ConnectionLost for a session that has not yet
// reported its loss. The event channel is buffered and about to be closed, so
// a plain send with a fallback is enough.
func (s *Supervisor) finalEvent(sessionID string, cause error) {
	select {
	case s.events <- ConnectionLost{SessionID: sessionID, Cause: cause}:
	default:
	}
}
