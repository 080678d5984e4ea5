package irc

import (
	"errors"
	"strings"
)

// ErrMalformed reports a line that does not fit the protocol grammar.
// Callers treat such lines as unrecognized and drop them; a degraded
// connection producing garbage must never take the engine down.
var ErrMalformed = errors.New("irc: malformed message")

// ParseMessage parses one raw protocol line (without its CRLF delimiter)
// into a Message. The grammar is:
//
//	['@' tags SP] [':' prefix SP] command {SP param} [SP ':' trailing]
func ParseMessage(line string) (Message, error) {
	var m Message

	rest := line
	if strings.HasPrefix(rest, "@") {
		block, remainder, ok := strings.Cut(rest[1:], " ")
		if !ok || block == "" {
			return Message{}, ErrMalformed
		}
		m.Tags = parseTags(block)
		rest = remainder
	}

	rest = strings.TrimLeft(rest, " ")
	if strings.HasPrefix(rest, ":") {
		prefix, remainder, ok := strings.Cut(rest[1:], " ")
		if !ok || prefix == "" {
			return Message{}, ErrMalformed
		}
		m.Prefix = prefix
		rest = remainder
	}

	rest = strings.TrimLeft(rest, " ")
	if rest == "" {
		return Message{}, ErrMalformed
	}

	// Split off the trailing parameter first so embedded spaces survive.
	var trailing string
	hasTrailing := false
	if strings.HasPrefix(rest, ":") {
		trailing, hasTrailing = rest[1:], true
		rest = ""
	} else if head, tail, ok := strings.Cut(rest, " :"); ok {
		trailing, hasTrailing = tail, true
		rest = head
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return Message{}, ErrMalformed
	}
	m.Command = strings.ToUpper(fields[0])
	m.Params = fields[1:]
	if hasTrailing {
		m.Params = append(m.Params, trailing)
	}
	return m, nil
}

// parseTags splits an IRCv3 tag block ("k=v;k2=v2") into a map, unescaping
// values. Duplicate keys keep the last occurrence; keys without '=' map to "".
func parseTags(block string) map[string]string {
	tags := make(map[string]string)
	for _, pair := range strings.Split(block, ";") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		tags[key] = unescapeTagValue(value)
	}
	return tags
}

// unescapeTagValue applies the IRCv3 message-tags escaping rules:
// \: -> ';'  \s -> ' '  \\ -> '\'  \r -> CR  \n -> LF.
// A dangling backslash at the end of the value is dropped.
func unescapeTagValue(v string) string {
	if !strings.ContainsRune(v, '\\') {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(v) {
			break
		}
		switch v[i] {
		case ':':
			b.WriteByte(';')
		case 's':
			b.WriteByte(' ')
		case '\\':
			b.WriteByte('\\')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		default:
			// Unknown escape: IRCv3 says drop the backslash.
			b.WriteByte(v[i])
		}
	}
	return b.String()
}
