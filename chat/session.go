package chat

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/chat-relay/irc"
	"github.com/onnwee/chat-relay/ratelimit"
	"github.com/onnwee/chat-relay/telemetry"
)

// capabilities requested before auth: tags carry message metadata, commands
// unlock ROOMSTATE/USERSTATE/CLEARCHAT and friends.
const capabilities = "twitch.tv/commands twitch.tv/tags"

// flushInterval is how often the write loop retries rate-limited commands
// sitting in the overflow queue.
const flushInterval = 100 * time.Millisecond

type sessionConfig struct {
	id          string
	creds       Credentials
	dial        DialFunc
	limiter     *ratelimit.Bucket
	authTimeout time.Duration
	joinGrace   time.Duration
	maxLineLen  int
	queueDepth  int
	diagnostics bool
	log         *slog.Logger
}

// session owns exactly one live connection: the handshake, the concurrent
// read and write loops, and the in-flight parse buffer. A session is created
// per connect attempt and discarded on disconnect; the supervisor decides
// what happens next.
type session struct {
	cfg       sessionConfig
	conn      net.Conn
	rd        *irc.LineReader
	wr        *irc.LineWriter
	state     *stateVar
	startedAt time.Time
	events    chan<- Event
	commands  <-chan Command
	ready     chan<- struct{}

	// pongs carries PING payloads from the read loop to the write loop so
	// the read path never blocks on a write.
	pongs chan string

	// queue buffers commands the rate limiter rejected. Touched only by the
	// write loop.
	queue *commandQueue
}

// runSession drives one connection attempt to its terminal state and returns
// the cause. A nil or context error means the engine is shutting down;
// anything else is classified by the supervisor.
func runSession(ctx context.Context, cfg sessionConfig, events chan<- Event, commands <-chan Command, ready chan<- struct{}) error {
	s := &session{
		cfg:      cfg,
		state:    &stateVar{},
		events:   events,
		commands: commands,
		ready:    ready,
		pongs:    make(chan string, 4),
		queue:    newCommandQueue(cfg.queueDepth),
	}
	return s.run(ctx)
}

func (s *session) run(ctx context.Context) error {
	log := s.cfg.log.With(slog.String("session", s.cfg.id))

	sctx, span := telemetry.StartSpan(ctx, "chat-engine", "session.connect",
		telemetry.SessionAttr(s.cfg.id))

	s.transition(log, StateConnecting)
	telemetry.IncConnectsStarted()
	s.startedAt = time.Now()

	conn, err := s.cfg.dial(sctx)
	if err != nil {
		telemetry.RecordError(span, err)
		span.End()
		telemetry.IncConnectsFailed()
		s.transition(log, StateErrored)
		if sctx.Err() != nil {
			return sctx.Err()
		}
		return &TransportError{Op: "dial", Err: err}
	}
	s.conn = conn
	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Debug("connection close", slog.Any("err", err))
		}
	}()
	s.rd = irc.NewLineReader(conn, s.cfg.maxLineLen)
	s.wr = irc.NewLineWriter(conn)

	s.transition(log, StateAuthenticating)
	if err := s.handshake(sctx, log); err != nil {
		telemetry.RecordError(span, err)
		span.End()
		telemetry.IncConnectsFailed()
		s.transition(log, StateErrored)
		return err
	}

	s.transition(log, StateJoiningChannels)
	if err := s.joinChannels(sctx, log); err != nil {
		telemetry.RecordError(span, err)
		span.End()
		telemetry.IncConnectsFailed()
		s.transition(log, StateErrored)
		return err
	}

	telemetry.SetSpanSuccess(span)
	span.End()

	// Ready is entered on our own JOIN echo or, for servers that succeed
	// silently, after a grace period. ConnectionOpened is emitted there, not
	// here: consumers read it as "steady state", and the session is still
	// JoiningChannels until the acknowledgment.
	grace := time.AfterFunc(s.cfg.joinGrace, func() { s.becomeReady(ctx, log) })
	defer grace.Stop()

	g, gctx := errgroup.WithContext(ctx)
	// Unblock the read loop when either side fails or the engine shuts down.
	watch := context.AfterFunc(gctx, func() { _ = conn.Close() })
	defer watch()

	g.Go(func() error { return s.readLoop(gctx, log) })
	g.Go(func() error { return s.writeLoop(gctx, log) })
	err = g.Wait()

	if ctx.Err() != nil {
		s.transition(log, StateClosing)
		return ctx.Err()
	}
	s.transition(log, StateErrored)
	return err
}

// handshake sends CAP/PASS/NICK and waits for the server verdict: 001 means
// authenticated, a NOTICE naming an auth failure means rejected credentials,
// any other NOTICE is a protocol violation. CAP acks, PINGs, and stray
// numerics are tolerated in between. The whole exchange runs under one
// deadline.
func (s *session) handshake(ctx context.Context, log *slog.Logger) error {
	if err := s.conn.SetDeadline(time.Now().Add(s.cfg.authTimeout)); err != nil {
		return &TransportError{Op: "deadline", Err: err}
	}
	defer func() { _ = s.conn.SetDeadline(time.Time{}) }()

	log.Debug("handshake", slog.String("nick", s.cfg.creds.Nickname), slog.String("cap", capabilities))
	for _, line := range []string{
		irc.CapReq(capabilities),
		irc.Pass(s.cfg.creds.Token),
		irc.Nick(s.cfg.creds.Nickname),
	} {
		if err := s.wr.WriteLine(line); err != nil {
			return s.transportErr(ctx, "handshake write", err)
		}
	}

	for {
		line, err := s.rd.ReadLine()
		if err != nil {
			return s.transportErr(ctx, "handshake read", err)
		}
		msg, err := irc.ParseMessage(line)
		if err != nil {
			log.Debug("unparseable handshake line", slog.String("line", line))
			continue
		}
		switch msg.Command {
		case irc.CmdWelcome:
			log.Debug("authenticated")
			return nil
		case irc.CmdNotice:
			if isAuthFailure(msg.Trailing()) {
				return &AuthError{Notice: msg.Trailing()}
			}
			return &ProtocolViolation{Line: line}
		case irc.CmdPing:
			if err := s.wr.WriteLine(irc.Pong(msg.Trailing())); err != nil {
				return s.transportErr(ctx, "handshake write", err)
			}
		default:
			// CAP ACK, GLOBALUSERSTATE, MOTD numerics: fine, keep waiting.
		}
	}
}

func isAuthFailure(notice string) bool {
	lower := strings.ToLower(notice)
	return strings.Contains(lower, "authentication failed") ||
		strings.Contains(lower, "improperly formatted auth") ||
		strings.Contains(lower, "login unsuccessful")
}

// joinChannels issues a JOIN for every channel in the credential snapshot,
// gated by the rate limiter like any other outbound traffic.
func (s *session) joinChannels(ctx context.Context, log *slog.Logger) error {
	for _, channel := range s.cfg.creds.Channels {
		if err := s.acquire(ctx); err != nil {
			return err
		}
		log.Debug("joining", slog.String("channel", channel))
		if err := s.wr.WriteLine(irc.Join(channel)); err != nil {
			return s.transportErr(ctx, "join write", err)
		}
	}
	return nil
}

// acquire blocks until the rate limiter admits one send or ctx ends. Used
// only during the join phase; the steady-state write loop queues instead.
func (s *session) acquire(ctx context.Context) error {
	for !s.cfg.limiter.TryAcquire() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(flushInterval):
		}
	}
	return nil
}

// readLoop turns wire lines into events until the connection dies. It shares
// nothing with the write loop beyond the pong channel and the state cell.
func (s *session) readLoop(ctx context.Context, log *slog.Logger) error {
	for {
		line, err := s.rd.ReadLine()
		if err != nil {
			var framing *irc.FramingError
			switch {
			case errors.As(err, &framing):
				return framing
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				return &TransportError{Op: "read", Err: err}
			}
		}
		msg, err := irc.ParseMessage(line)
		if err != nil {
			// Unrecognized: swallowed, never fatal.
			telemetry.IncLinesDropped()
			log.Debug("dropping unparseable line", slog.String("line", line))
			continue
		}
		if err := s.dispatch(ctx, log, msg); err != nil {
			return err
		}
	}
}

// dispatch maps one parsed line onto the closed event set. The keyword set
// is fixed by the protocol, so this is a plain switch.
func (s *session) dispatch(ctx context.Context, log *slog.Logger, msg irc.Message) error {
	telemetry.IncMessagesReceived()
	switch msg.Command {
	case irc.CmdPing:
		select {
		case s.pongs <- msg.Trailing():
		default:
			log.Warn("pong backlog full, dropping ping", slog.String("payload", msg.Trailing()))
		}
		if s.cfg.diagnostics {
			s.emit(ctx, PingDiagnostic{Payload: msg.Trailing()})
		}
	case irc.CmdPrivmsg:
		s.emit(ctx, ChatMessage{
			Channel:    strings.TrimPrefix(msg.Param(0), "#"),
			Sender:     msg.Nick(),
			Text:       msg.Trailing(),
			Tags:       msg.Tags,
			ReceivedAt: time.Now().UTC(),
		})
	case irc.CmdJoin:
		nick := msg.Nick()
		s.emit(ctx, Join{Channel: strings.TrimPrefix(msg.Param(0), "#"), Nick: nick})
		if strings.EqualFold(nick, s.cfg.creds.Nickname) {
			s.becomeReady(ctx, log)
		}
	case irc.CmdPart:
		s.emit(ctx, Part{Channel: strings.TrimPrefix(msg.Param(0), "#"), Nick: msg.Nick()})
	case irc.CmdRoomState:
		s.emit(ctx, RoomStateChange{Channel: strings.TrimPrefix(msg.Param(0), "#"), Tags: msg.Tags})
	case irc.CmdUserState:
		elevated := isElevated(msg.Tags)
		s.cfg.limiter.SetElevated(elevated)
		log.Debug("userstate", slog.String("channel", msg.Param(0)), slog.Bool("elevated", elevated))
		s.emit(ctx, RoomStateChange{Channel: strings.TrimPrefix(msg.Param(0), "#"), Tags: msg.Tags})
	case irc.CmdNotice, irc.CmdUserNotice, irc.CmdClearChat, irc.CmdClearMsg:
		s.emit(ctx, SystemNotice{
			Channel: strings.TrimPrefix(msg.Param(0), "#"),
			Text:    msg.Trailing(),
			Tags:    msg.Tags,
		})
	case irc.CmdReconnect:
		// The server is about to drop us; fail retryably and let the
		// supervisor bring up a fresh session.
		return &TransportError{Op: "read", Err: errServerReconnect}
	default:
		// GLOBALUSERSTATE, CAP, PONG, MOTD numerics: no domain meaning.
	}
	return nil
}

// isElevated reports moderator or broadcaster status from USERSTATE tags,
// which unlocks the larger send bucket.
func isElevated(tags map[string]string) bool {
	if tags["mod"] == "1" {
		return true
	}
	return strings.Contains(tags["badges"], "broadcaster/")
}

// writeLoop is the only goroutine that touches the wire after the handshake:
// pong replies, operator commands, and periodic retries of the rate-limited
// overflow queue.
func (s *session) writeLoop(ctx context.Context, log *slog.Logger) error {
	flush := time.NewTicker(flushInterval)
	defer flush.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-s.pongs:
			if err := s.wr.WriteLine(irc.Pong(payload)); err != nil {
				return s.transportErr(ctx, "pong write", err)
			}
			telemetry.IncPingsAnswered()
		case cmd := <-s.commands:
			s.enqueue(ctx, cmd)
			if err := s.drain(ctx); err != nil {
				return err
			}
		case <-flush.C:
			if err := s.drain(ctx); err != nil {
				return err
			}
		}
	}
}

// enqueue admits a command to the overflow queue, reporting a head drop as a
// diagnostic event.
func (s *session) enqueue(ctx context.Context, cmd Command) {
	if evicted, dropped := s.queue.push(cmd); dropped {
		telemetry.IncCommandsDropped()
		s.emit(ctx, CommandDropped{Cmd: evicted})
	}
	telemetry.SetCommandQueueDepth(s.queue.len())
}

// drain sends queued commands oldest-first while the session is Ready and
// the rate limiter admits them.
func (s *session) drain(ctx context.Context) error {
	for s.queue.len() > 0 {
		if s.state.load() != StateReady {
			return nil
		}
		if !s.cfg.limiter.TryAcquire() {
			return nil
		}
		cmd, _ := s.queue.pop()
		telemetry.SetCommandQueueDepth(s.queue.len())
		if err := s.writeCommand(cmd); err != nil {
			return s.transportErr(ctx, "command write", err)
		}
	}
	return nil
}

func (s *session) writeCommand(cmd Command) error {
	var line string
	switch c := cmd.(type) {
	case SendMessage:
		line = irc.Privmsg(c.Channel, c.Text)
	case JoinChannel:
		line = irc.Join(c.Channel)
	case LeaveChannel:
		line = irc.Part(c.Channel)
	case RawSend:
		line = c.Line
	default:
		return nil
	}
	if err := s.wr.WriteLine(line); err != nil {
		return err
	}
	telemetry.IncMessagesSent()
	return nil
}

// becomeReady performs the JoiningChannels -> Ready transition exactly once,
// announces the session with ConnectionOpened, and signals the supervisor.
// Safe against the grace timer and the join echo racing each other.
func (s *session) becomeReady(ctx context.Context, log *slog.Logger) {
	if s.state.compareAndSwap(StateJoiningChannels, StateReady) {
		log.Info("chat session ready", slog.String("session", s.cfg.id))
		telemetry.SetConnectionState(int(StateReady))
		telemetry.IncConnectsSucceeded()
		telemetry.ObserveConnectDuration(time.Since(s.startedAt))
		s.emit(ctx, ConnectionOpened{SessionID: s.cfg.id})
		close(s.ready)
	}
}

func (s *session) transition(log *slog.Logger, next State) {
	prev := s.state.swap(next)
	if prev != next {
		log.Debug("state transition", slog.String("from", prev.String()), slog.String("to", next.String()))
		telemetry.SetConnectionState(int(next))
	}
}

// emit delivers an event without wedging shutdown: if the engine is closing
// and the consumer is gone, the event is dropped with the session.
func (s *session) emit(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// transportErr classifies a raw I/O failure, preferring cancellation and
// timeout causes over the generic transport error.
func (s *session) transportErr(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &TransportTimeout{Stage: op}
	}
	return &TransportError{Op: op, Err: err}
}
