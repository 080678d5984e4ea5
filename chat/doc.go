// Package chat contains the Twitch chat connection engine: a Session state
// machine owning one TLS connection, and a Supervisor that keeps exactly one
// Session alive across reconnects.
//
// It provides one entrypoint:
//   - NewSupervisor + Run: maintains an authenticated, rate-limited
//     connection to Twitch IRC, translates wire traffic into Event values on
//     a bounded channel, and accepts Command values to route back onto the
//     wire. Retryable failures reconnect with capped exponential backoff and
//     jitter; credential rejection halts retries until UpdateCredentials is
//     called.
//
// Credentials: the engine requires a nickname and an OAuth token with
// chat:read/chat:edit scopes, or an anonymous justinfan identity for
// read-only use. Consumers interact only through the event and command
// channels; everything behind them is engine-internal.
package chat
