// Package ratelimit gates outbound chat traffic with token buckets sized to
// Twitch's published send limits. Two buckets exist side by side: the
// regular-account bucket and a larger one for accounts with moderator or
// broadcaster status in the joined channel. Which bucket is consulted is a
// mode flag flipped from USERSTATE notices; the buckets themselves keep
// refilling regardless of mode so a demotion mid-stream does not grant a
// fresh burst.
package ratelimit

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limits describes bucket sizing: how many sends each account class may make
// per rolling window. These are platform policy, not protocol structure, so
// they are configuration with defaults matching the limits Twitch publishes.
type Limits struct {
	PerWindow         int           // regular accounts
	ElevatedPerWindow int           // moderator / broadcaster accounts
	Window            time.Duration // rolling window the counts apply to
}

// DefaultLimits returns the published Twitch chat limits: 20 messages per
// 30 seconds for regular accounts, 100 for moderators and broadcasters.
func DefaultLimits() Limits {
	return Limits{PerWindow: 20, ElevatedPerWindow: 100, Window: 30 * time.Second}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.PerWindow <= 0 {
		l.PerWindow = d.PerWindow
	}
	if l.ElevatedPerWindow <= 0 {
		l.ElevatedPerWindow = d.ElevatedPerWindow
	}
	if l.Window <= 0 {
		l.Window = d.Window
	}
	return l
}

// Bucket is the outbound send gate. TryAcquire is called only from the
// session's write path; SetElevated may be called from the read path, which
// is why the mode is an atomic rather than part of the bucket state.
type Bucket struct {
	regular  *rate.Limiter
	elevated *rate.Limiter
	mode     atomic.Bool // true -> elevated bucket active
}

// NewBucket builds both buckets full, so a fresh connection can burst its
// initial JOINs without waiting on refill.
func NewBucket(l Limits) *Bucket {
	l = l.withDefaults()
	return &Bucket{
		regular:  rate.NewLimiter(rate.Every(l.Window/time.Duration(l.PerWindow)), l.PerWindow),
		elevated: rate.NewLimiter(rate.Every(l.Window/time.Duration(l.ElevatedPerWindow)), l.ElevatedPerWindow),
	}
}

// TryAcquire consumes one token from the active bucket. It never blocks;
// a false return means the caller queues the send.
func (b *Bucket) TryAcquire() bool {
	if b.mode.Load() {
		return b.elevated.Allow()
	}
	return b.regular.Allow()
}

// SetElevated switches between the regular and elevated bucket.
func (b *Bucket) SetElevated(elevated bool) {
	b.mode.Store(elevated)
}

// Elevated reports the active mode.
func (b *Bucket) Elevated() bool {
	return b.mode.Load()
}
