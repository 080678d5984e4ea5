package chat

import "time"

// Event is the closed set of things the engine reports outward. Every wire
// event maps to exactly one Event; the lifecycle variants (ConnectionOpened,
// ConnectionLost, ReconnectScheduled) and the backpressure diagnostic
// (CommandDropped) are synthetic markers, not wire data.
type Event interface {
	isEvent()
}

// ChatMessage is a user message in a channel (PRIVMSG).
type ChatMessage struct {
	Channel    string
	Sender     string
	Text       string
	Tags       map[string]string
	ReceivedAt time.Time
}

// SystemNotice is a server- or moderation-originated notice: NOTICE,
// USERNOTICE (subs, raids), CLEARCHAT (bans, timeouts), CLEARMSG.
type SystemNotice struct {
	Channel string
	Text    string
	Tags    map[string]string
}

// Join reports a user entering a channel.
type Join struct {
	Channel string
	Nick    string
}

// Part reports a user leaving a channel.
type Part struct {
	Channel string
	Nick    string
}

// RoomStateChange carries ROOMSTATE/USERSTATE tag updates (slow mode,
// emote-only, moderator status) for a channel.
type RoomStateChange struct {
	Channel string
	Tags    map[string]string
}

// PingDiagnostic surfaces an answered PING challenge. Emitted only when
// diagnostics are enabled; the reply itself happens regardless.
type PingDiagnostic struct {
	Payload string
}

// ConnectionOpened marks a session reaching its steady read/write state.
type ConnectionOpened struct {
	SessionID string
}

// ConnectionLost marks a session ending. Fatal means the supervisor will not
// retry until credentials are replaced.
type ConnectionLost struct {
	SessionID string
	Cause     error
	Fatal     bool
}

// ReconnectScheduled announces the delay before the next connect attempt.
type ReconnectScheduled struct {
	Attempt int
	Delay   time.Duration
}

// CommandDropped reports a command discarded from the head of a full queue.
// This is the bounded-backpressure policy working as intended, not an error.
type CommandDropped struct {
	Cmd Command
}

func (ChatMessage) isEvent()        {}
func (SystemNotice) isEvent()       {}
func (Join) isEvent()               {}
func (Part) isEvent()               {}
func (RoomStateChange) isEvent()    {}
func (PingDiagnostic) isEvent()     {}
func (ConnectionOpened) isEvent()   {}
func (ConnectionLost) isEvent()     {}
func (ReconnectScheduled) isEvent() {}
func (CommandDropped) isEvent()     {}

// Command is the closed set of operator requests routed onto the wire.
type Command interface {
	isCommand()
}

// SendMessage posts text to a channel.
type SendMessage struct {
	Channel string
	Text    string
}

// JoinChannel subscribes to a channel's traffic.
type JoinChannel struct {
	Channel string
}

// LeaveChannel unsubscribes from a channel.
type LeaveChannel struct {
	Channel string
}

// RawSend writes a pre-formed protocol line verbatim. Escape hatch for
// commands the typed variants do not cover.
type RawSend struct {
	Line string
}

func (SendMessage) isCommand()  {}
func (JoinChannel) isCommand()  {}
func (LeaveChannel) isCommand() {}
func (RawSend) isCommand()      {}
