package chat

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Credentials is an immutable snapshot of who we connect as and which
// channels to (re)join after every connect. Replaced wholesale via
// Supervisor.UpdateCredentials, never mutated in place.
type Credentials struct {
	Nickname string
	Token    string
	Channels []string
}

// Anonymous returns a read-only justinfan identity. Twitch accepts any
// password for these accounts; they cannot send messages.
func Anonymous(channels ...string) Credentials {
	return Credentials{
		Nickname: fmt.Sprintf("justinfan%d", rand.IntN(90000)+10000),
		Token:    "just_a_lil_guy",
		Channels: channels,
	}
}

// IsAnonymous reports whether the nickname is a justinfan identity.
func (c Credentials) IsAnonymous() bool {
	return strings.HasPrefix(strings.ToLower(c.Nickname), "justinfan")
}
