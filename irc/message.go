package irc

import "strings"

// Command keywords and numerics used by Twitch chat. The set is closed:
// anything outside it is passed through as-is and handled generically.
const (
	CmdWelcome         = "001" // RPL_WELCOME, ends a successful handshake
	CmdCap             = "CAP"
	CmdPing            = "PING"
	CmdPong            = "PONG"
	CmdJoin            = "JOIN"
	CmdPart            = "PART"
	CmdPrivmsg         = "PRIVMSG"
	CmdNotice          = "NOTICE"
	CmdRoomState       = "ROOMSTATE"
	CmdUserState       = "USERSTATE"
	CmdGlobalUserState = "GLOBALUSERSTATE"
	CmdUserNotice      = "USERNOTICE"
	CmdClearChat       = "CLEARCHAT"
	CmdClearMsg        = "CLEARMSG"
	CmdReconnect       = "RECONNECT"
)

// Message is a single parsed protocol line. Tags may be nil when the line
// carried no tag block. Params holds positional parameters with the trailing
// parameter (after " :") last.
type Message struct {
	Tags    map[string]string
	Prefix  string
	Command string
	Params  []string
}

// Nick extracts the nickname portion of the prefix (nick!user@host).
// Returns the whole prefix when it carries no user/host part.
func (m Message) Nick() string {
	if i := strings.IndexByte(m.Prefix, '!'); i >= 0 {
		return m.Prefix[:i]
	}
	if i := strings.IndexByte(m.Prefix, '@'); i >= 0 {
		return m.Prefix[:i]
	}
	return m.Prefix
}

// Param returns the i-th parameter or "" when absent.
func (m Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// Trailing returns the last parameter, conventionally the free-form text.
func (m Message) Trailing() string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}

// Tag returns the value for a tag key, or "" when the tag is absent.
func (m Message) Tag(key string) string {
	return m.Tags[key]
}
