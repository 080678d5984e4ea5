package irc

import "strings"

// Builders for the outbound lines the engine sends. Kept here so the exact
// wire text lives next to the parser that reads the replies.

// CapReq requests protocol capabilities (tags, commands) before auth.
func CapReq(caps ...string) string {
	return "CAP REQ :" + strings.Join(caps, " ")
}

// Pass carries the OAuth token. Twitch requires the "oauth:" prefix; add it
// when the caller supplied a bare token.
func Pass(token string) string {
	if token != "" && !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}
	return "PASS " + token
}

func Nick(nick string) string {
	return "NICK " + nick
}

func Join(channel string) string {
	return "JOIN " + normalizeChannel(channel)
}

func Part(channel string) string {
	return "PART " + normalizeChannel(channel)
}

func Privmsg(channel, text string) string {
	return "PRIVMSG " + normalizeChannel(channel) + " :" + text
}

// Pong answers a PING challenge, echoing its payload.
func Pong(payload string) string {
	if payload == "" {
		return "PONG"
	}
	return "PONG :" + payload
}

// normalizeChannel lowercases and ensures the leading '#' the wire expects.
func normalizeChannel(channel string) string {
	channel = strings.ToLower(strings.TrimSpace(channel))
	if !strings.HasPrefix(channel, "#") {
		channel = "#" + channel
	}
	return channel
}
