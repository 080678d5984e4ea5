package chat

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/onnwee/chat-relay/irc"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"auth rejection", &AuthError{Notice: "Login authentication failed"}, ErrorClassFatal},
		{"wrapped auth rejection", fmt.Errorf("session: %w", &AuthError{Notice: "Improperly formatted auth"}), ErrorClassFatal},
		{"transport failure", &TransportError{Op: "dial", Err: io.EOF}, ErrorClassRetryable},
		{"handshake timeout", &TransportTimeout{Stage: "authentication"}, ErrorClassRetryable},
		{"oversized line", &irc.FramingError{Limit: 4096}, ErrorClassRetryable},
		{"garbled handshake", &ProtocolViolation{Line: "???"}, ErrorClassRetryable},
		{"server reconnect", errServerReconnect, ErrorClassRetryable},
		{"unknown error", errors.New("something else"), ErrorClassRetryable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
			assert.Equal(t, tc.want == ErrorClassRetryable, Retryable(tc.err))
		})
	}
}

func TestTransportErrorUnwrap(t *testing.T) {
	err := &TransportError{Op: "read", Err: io.ErrUnexpectedEOF}
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "retryable", ErrorClassRetryable.String())
	assert.Equal(t, "fatal", ErrorClassFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}
