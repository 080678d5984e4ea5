// Package irc implements the slice of the IRC line protocol that Twitch chat
// speaks: IRCv3 tag-prefixed message parsing, CRLF line framing over a byte
// stream, and builders for the outbound commands the engine sends.
//
// Parsing is pure and never fails the connection: a garbled line yields
// ErrMalformed and the caller drops it. Framing is the only stateful part
// (a partial line buffered across reads) and enforces a maximum line length
// so a misbehaving server cannot grow the buffer without bound.
package irc
