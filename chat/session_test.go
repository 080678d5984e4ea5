package chat

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/chat-relay/irc"
	"github.com/onnwee/chat-relay/ratelimit"
)

// fakeServer scripts the remote end of a net.Pipe connection. Its expect and
// send helpers run inside the server goroutine, so they report failures with
// assert rather than aborting the test from the wrong goroutine.
type fakeServer struct {
	t    *testing.T
	conn net.Conn
	rd   *bufio.Reader
}

func newFakeServer(t *testing.T) (*fakeServer, DialFunc) {
	t.Helper()
	serverEnd, clientEnd := net.Pipe()
	t.Cleanup(func() {
		_ = serverEnd.Close()
		_ = clientEnd.Close()
	})
	fs := &fakeServer{t: t, conn: serverEnd, rd: bufio.NewReader(serverEnd)}
	dial := func(ctx context.Context) (net.Conn, error) { return clientEnd, nil }
	return fs, dial
}

func (f *fakeServer) expect(want string) bool {
	_ = f.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := f.rd.ReadString('\n')
	if !assert.NoError(f.t, err, "reading while expecting %q", want) {
		return false
	}
	return assert.Equal(f.t, want, strings.TrimRight(line, "\r\n"))
}

func (f *fakeServer) send(line string) {
	_ = f.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := f.conn.Write([]byte(line + "\r\n")); err != nil {
		f.t.Logf("fake server write %q: %v", line, err)
	}
}

// acceptHandshake consumes the CAP/PASS/NICK opening and replies with the
// welcome numeric.
func (f *fakeServer) acceptHandshake(pass, nick string) bool {
	ok := f.expect("CAP REQ :twitch.tv/commands twitch.tv/tags")
	ok = f.expect("PASS "+pass) && ok
	ok = f.expect("NICK "+nick) && ok
	f.send(":tmi.twitch.tv 001 " + nick + " :Welcome, GLHF!")
	return ok
}

type sessionHarness struct {
	cfg      sessionConfig
	events   chan Event
	commands chan Command
	ready    chan struct{}
	done     chan error
}

func newSessionHarness(dial DialFunc) *sessionHarness {
	return &sessionHarness{
		cfg: sessionConfig{
			id:    "sess-test",
			creds: Credentials{Nickname: "relaybot", Token: "secret", Channels: []string{"#lobby"}},
			dial:  dial,
			limiter: ratelimit.NewBucket(ratelimit.Limits{
				PerWindow: 50, ElevatedPerWindow: 100, Window: time.Hour,
			}),
			authTimeout: 2 * time.Second,
			joinGrace:   5 * time.Second,
			queueDepth:  8,
			log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
		events:   make(chan Event, 32),
		commands: make(chan Command, 8),
		ready:    make(chan struct{}),
		done:     make(chan error, 1),
	}
}

func (h *sessionHarness) start(ctx context.Context) {
	go func() {
		h.done <- runSession(ctx, h.cfg, h.events, h.commands, h.ready)
	}()
}

func (h *sessionHarness) waitEvent(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-h.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func (h *sessionHarness) waitReady(t *testing.T) {
	t.Helper()
	select {
	case <-h.ready:
	case <-time.After(2 * time.Second):
		t.Fatal("session never became ready")
	}
}

func (h *sessionHarness) waitDone(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("session never returned")
		return nil
	}
}

func TestSessionHandshakeJoinAndMessages(t *testing.T) {
	fs, dial := newFakeServer(t)
	h := newSessionHarness(dial)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(ctx)

	go func() {
		fs.acceptHandshake("oauth:secret", "relaybot")
		fs.expect("JOIN #lobby")
		fs.send(":relaybot!relaybot@relaybot.tmi.twitch.tv JOIN #lobby")
		fs.send("@display-name=Friend;color=#FF4500 :friend!friend@friend.tmi.twitch.tv PRIVMSG #lobby :hi there")
	}()

	join, ok := h.waitEvent(t).(Join)
	require.True(t, ok, "first event must be the Join echo")
	assert.Equal(t, "lobby", join.Channel)
	assert.Equal(t, "relaybot", join.Nick)

	opened, ok := h.waitEvent(t).(ConnectionOpened)
	require.True(t, ok, "expected ConnectionOpened once the join is acknowledged")
	assert.Equal(t, "sess-test", opened.SessionID)
	h.waitReady(t)

	msg, ok := h.waitEvent(t).(ChatMessage)
	require.True(t, ok, "expected ChatMessage event")
	assert.Equal(t, "lobby", msg.Channel)
	assert.Equal(t, "friend", msg.Sender)
	assert.Equal(t, "hi there", msg.Text)
	assert.Equal(t, "Friend", msg.Tags["display-name"])
	assert.False(t, msg.ReceivedAt.IsZero())

	cancel()
	assert.ErrorIs(t, h.waitDone(t), context.Canceled)
}

func TestSessionAnswersPingWithoutEvent(t *testing.T) {
	fs, dial := newFakeServer(t)
	h := newSessionHarness(dial)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(ctx)

	pongSeen := make(chan struct{})
	go func() {
		fs.acceptHandshake("oauth:secret", "relaybot")
		fs.expect("JOIN #lobby")
		fs.send(":relaybot!relaybot@relaybot.tmi.twitch.tv JOIN #lobby")
		fs.send("PING :tmi.twitch.tv")
		if fs.expect("PONG :tmi.twitch.tv") {
			close(pongSeen)
		}
	}()

	select {
	case <-pongSeen:
	case <-time.After(2 * time.Second):
		t.Fatal("server never received PONG")
	}

	cancel()
	h.waitDone(t)
	for {
		select {
		case ev := <-h.events:
			_, isPing := ev.(PingDiagnostic)
			assert.False(t, isPing, "ping handling must not surface a consumer event")
		default:
			return
		}
	}
}

func TestSessionPingDiagnosticsOptIn(t *testing.T) {
	fs, dial := newFakeServer(t)
	h := newSessionHarness(dial)
	h.cfg.diagnostics = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(ctx)

	go func() {
		fs.acceptHandshake("oauth:secret", "relaybot")
		fs.expect("JOIN #lobby")
		fs.send(":relaybot!relaybot@relaybot.tmi.twitch.tv JOIN #lobby")
		fs.send("PING :keepalive")
		fs.expect("PONG :keepalive")
	}()

	for {
		ev := h.waitEvent(t)
		if ping, ok := ev.(PingDiagnostic); ok {
			assert.Equal(t, "keepalive", ping.Payload)
			break
		}
	}
	cancel()
	h.waitDone(t)
}

func TestSessionAuthRejected(t *testing.T) {
	fs, dial := newFakeServer(t)
	h := newSessionHarness(dial)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(ctx)

	go func() {
		fs.expect("CAP REQ :twitch.tv/commands twitch.tv/tags")
		fs.expect("PASS oauth:secret")
		fs.expect("NICK relaybot")
		fs.send(":tmi.twitch.tv NOTICE * :Login authentication failed")
	}()

	err := h.waitDone(t)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Notice, "authentication failed")
	assert.Equal(t, ErrorClassFatal, Classify(err))
}

func TestSessionHandshakeToleratesInterleavedReplies(t *testing.T) {
	fs, dial := newFakeServer(t)
	h := newSessionHarness(dial)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(ctx)

	go func() {
		fs.expect("CAP REQ :twitch.tv/commands twitch.tv/tags")
		fs.expect("PASS oauth:secret")
		fs.expect("NICK relaybot")
		fs.send(":tmi.twitch.tv CAP * ACK :twitch.tv/commands twitch.tv/tags")
		fs.send("PING :mid-handshake")
		fs.expect("PONG :mid-handshake")
		fs.send(":tmi.twitch.tv 001 relaybot :Welcome, GLHF!")
		fs.expect("JOIN #lobby")
		fs.send(":relaybot!relaybot@relaybot.tmi.twitch.tv JOIN #lobby")
	}()

	h.waitReady(t)
	cancel()
	h.waitDone(t)
}

func TestSessionOversizedLineTearsDown(t *testing.T) {
	fs, dial := newFakeServer(t)
	h := newSessionHarness(dial)
	h.cfg.maxLineLen = 128
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(ctx)

	go func() {
		fs.acceptHandshake("oauth:secret", "relaybot")
		fs.expect("JOIN #lobby")
		fs.send(":relaybot!relaybot@relaybot.tmi.twitch.tv JOIN #lobby")
		fs.send(strings.Repeat("x", 300))
	}()

	err := h.waitDone(t)
	var framing *irc.FramingError
	require.ErrorAs(t, err, &framing)
	assert.Equal(t, 128, framing.Limit)
	assert.True(t, Retryable(err))
}

func TestSessionCommandOrdering(t *testing.T) {
	fs, dial := newFakeServer(t)
	h := newSessionHarness(dial)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(ctx)

	sent := make(chan struct{})
	go func() {
		fs.acceptHandshake("oauth:secret", "relaybot")
		fs.expect("JOIN #lobby")
		fs.send(":relaybot!relaybot@relaybot.tmi.twitch.tv JOIN #lobby")
		ok := fs.expect("PRIVMSG #lobby :one")
		ok = fs.expect("PRIVMSG #lobby :two") && ok
		ok = fs.expect("PRIVMSG #lobby :three") && ok
		if ok {
			close(sent)
		}
	}()

	h.waitReady(t)
	h.commands <- SendMessage{Channel: "#lobby", Text: "one"}
	h.commands <- SendMessage{Channel: "#lobby", Text: "two"}
	h.commands <- SendMessage{Channel: "#lobby", Text: "three"}

	select {
	case <-sent:
	case <-time.After(2 * time.Second):
		t.Fatal("server never received commands in order")
	}
	cancel()
	h.waitDone(t)
}

func TestSessionServerReconnect(t *testing.T) {
	fs, dial := newFakeServer(t)
	h := newSessionHarness(dial)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(ctx)

	go func() {
		fs.acceptHandshake("oauth:secret", "relaybot")
		fs.expect("JOIN #lobby")
		fs.send(":relaybot!relaybot@relaybot.tmi.twitch.tv JOIN #lobby")
		fs.send(":tmi.twitch.tv RECONNECT")
	}()

	err := h.waitDone(t)
	assert.ErrorIs(t, err, errServerReconnect)
	assert.True(t, Retryable(err))
}

func TestSessionReadyAfterSilentJoinGrace(t *testing.T) {
	fs, dial := newFakeServer(t)
	h := newSessionHarness(dial)
	h.cfg.joinGrace = 50 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(ctx)

	go func() {
		fs.acceptHandshake("oauth:secret", "relaybot")
		fs.expect("JOIN #lobby")
		// Never echoed; the grace timer stands in for the join ack.
	}()

	opened, ok := h.waitEvent(t).(ConnectionOpened)
	require.True(t, ok)
	assert.Equal(t, "sess-test", opened.SessionID)
	h.waitReady(t)
	cancel()
	h.waitDone(t)
}

func TestSessionOpenedAfterJoinAcknowledged(t *testing.T) {
	fs, dial := newFakeServer(t)
	h := newSessionHarness(dial)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(ctx)

	echo := make(chan struct{})
	go func() {
		fs.acceptHandshake("oauth:secret", "relaybot")
		fs.expect("JOIN #lobby")
		<-echo
		fs.send(":relaybot!relaybot@relaybot.tmi.twitch.tv JOIN #lobby")
	}()

	// Joins are written but unacknowledged: no ConnectionOpened yet, so a
	// readiness check keyed on it cannot report ready early.
	select {
	case ev := <-h.events:
		t.Fatalf("event before join acknowledgment: %#v", ev)
	case <-time.After(150 * time.Millisecond):
	}

	close(echo)
	_, ok := h.waitEvent(t).(Join)
	require.True(t, ok)
	_, ok = h.waitEvent(t).(ConnectionOpened)
	require.True(t, ok)
	h.waitReady(t)

	cancel()
	h.waitDone(t)
}

func TestSessionUserStateElevatesLimiter(t *testing.T) {
	fs, dial := newFakeServer(t)
	h := newSessionHarness(dial)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(ctx)

	go func() {
		fs.acceptHandshake("oauth:secret", "relaybot")
		fs.expect("JOIN #lobby")
		fs.send(":relaybot!relaybot@relaybot.tmi.twitch.tv JOIN #lobby")
		fs.send("@mod=1;badges=moderator/1 :tmi.twitch.tv USERSTATE #lobby")
	}()

	require.False(t, h.cfg.limiter.Elevated())
	for {
		ev := h.waitEvent(t)
		if _, ok := ev.(RoomStateChange); ok {
			break
		}
	}
	assert.True(t, h.cfg.limiter.Elevated())

	cancel()
	h.waitDone(t)
}

func TestSessionDialFailure(t *testing.T) {
	dialErr := errors.New("connection refused")
	h := newSessionHarness(func(ctx context.Context) (net.Conn, error) { return nil, dialErr })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(ctx)

	err := h.waitDone(t)
	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, "dial", transport.Op)
	assert.ErrorIs(t, err, dialErr)
	assert.True(t, Retryable(err))
}
