package irc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrivmsgWithTags(t *testing.T) {
	line := "@badge-info=;badges=moderator/1;color=#FF4500;display-name=Somebody;mod=1;room-id=123;tmi-sent-ts=1680000000000 :somebody!somebody@somebody.tmi.twitch.tv PRIVMSG #channel :hello there"
	msg, err := ParseMessage(line)
	require.NoError(t, err)

	assert.Equal(t, "PRIVMSG", msg.Command)
	assert.Equal(t, "somebody", msg.Nick())
	assert.Equal(t, "#channel", msg.Param(0))
	assert.Equal(t, "hello there", msg.Trailing())
	assert.Equal(t, "1", msg.Tag("mod"))
	assert.Equal(t, "Somebody", msg.Tag("display-name"))
	assert.Equal(t, "", msg.Tag("badge-info"))
}

func TestParseTagValueEscapes(t *testing.T) {
	msg, err := ParseMessage(`@system-msg=10\sraiders\sfrom\sSomewhere;semi=a\:b;back=a\\b;cr=a\rb;nl=a\nb;dangling=a\ :tmi.twitch.tv USERNOTICE #channel`)
	require.NoError(t, err)

	assert.Equal(t, "10 raiders from Somewhere", msg.Tag("system-msg"))
	assert.Equal(t, "a;b", msg.Tag("semi"))
	assert.Equal(t, `a\b`, msg.Tag("back"))
	assert.Equal(t, "a\rb", msg.Tag("cr"))
	assert.Equal(t, "a\nb", msg.Tag("nl"))
	assert.Equal(t, "a", msg.Tag("dangling"))
}

func TestParsePing(t *testing.T) {
	msg, err := ParseMessage("PING :tmi.twitch.tv")
	require.NoError(t, err)
	assert.Equal(t, "PING", msg.Command)
	assert.Equal(t, "tmi.twitch.tv", msg.Trailing())
}

func TestParseNumericWelcome(t *testing.T) {
	msg, err := ParseMessage(":tmi.twitch.tv 001 mynick :Welcome, GLHF!")
	require.NoError(t, err)
	assert.Equal(t, CmdWelcome, msg.Command)
	assert.Equal(t, []string{"mynick", "Welcome, GLHF!"}, msg.Params)
}

func TestParseJoinWithoutTrailing(t *testing.T) {
	msg, err := ParseMessage(":nick!nick@nick.tmi.twitch.tv JOIN #channel")
	require.NoError(t, err)
	assert.Equal(t, "JOIN", msg.Command)
	assert.Equal(t, "nick", msg.Nick())
	assert.Equal(t, "#channel", msg.Param(0))
}

func TestParseCommandLowercased(t *testing.T) {
	msg, err := ParseMessage(":tmi.twitch.tv reconnect")
	require.NoError(t, err)
	assert.Equal(t, CmdReconnect, msg.Command)
}

func TestParseMalformed(t *testing.T) {
	for _, line := range []string{
		"",
		"   ",
		"@tags-only",
		"@tags ",
		":prefix-only",
		":prefix ",
	} {
		_, err := ParseMessage(line)
		assert.ErrorIs(t, err, ErrMalformed, "line %q", line)
	}
}

func TestParseDeterministic(t *testing.T) {
	line := "@id=abc;mod=0 :a!a@a.tmi.twitch.tv PRIVMSG #c :x y z"
	first, err := ParseMessage(line)
	require.NoError(t, err)
	second, err := ParseMessage(line)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParamOutOfRange(t *testing.T) {
	msg, err := ParseMessage("PING :x")
	require.NoError(t, err)
	assert.Equal(t, "", msg.Param(5))
	assert.Equal(t, "", msg.Param(-1))
}
