package chat

import (
	"context"
	"crypto/tls"
	"net"
)

// TwitchAddr is the TLS chat endpoint.
const TwitchAddr = "irc.chat.twitch.tv:6697"

// DialFunc opens the transport for one session attempt. Injected so tests
// can hand the engine an in-memory pipe instead of a live socket.
type DialFunc func(ctx context.Context) (net.Conn, error)

// DialTwitch opens a TLS connection to the production chat endpoint using
// the system trust store.
func DialTwitch(ctx context.Context) (net.Conn, error) {
	d := &tls.Dialer{NetDialer: &net.Dialer{}}
	return d.DialContext(ctx, "tcp", TwitchAddr)
}
