package chat

import "sync/atomic"

// State is the connection lifecycle of the engine. Exactly one value is
// current at any time; transitions are the only mutation.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateJoiningChannels
	StateReady
	StateClosing
	StateErrored
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateJoiningChannels:
		return "joining_channels"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateErrored:
		return "errored"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// stateVar is the single shared ConnectionState cell. Only the session's
// transition logic writes it; the write path reads it before any Ready-gated
// behavior.
type stateVar struct {
	v atomic.Int32
}

func (sv *stateVar) load() State {
	return State(sv.v.Load())
}

func (sv *stateVar) swap(next State) State {
	return State(sv.v.Swap(int32(next)))
}

func (sv *stateVar) compareAndSwap(old, next State) bool {
	return sv.v.CompareAndSwap(int32(old), int32(next))
}
