// internal/util/backoff.go
// Lightweight exponential-with-jitter back-off helper used by the remote
// proxy's Unix socket accept loop (internal/remoteproxy/proxy.go) to space
// out retries after a transient accept() error. The gRPC channel client
// uses the fuller cenkalti/backoff policy for reconnecting to the host
// gateway instead, since it needs max-elapsed-time and an explicit Reset;
// this one-line retry delay doesn't warrant pulling that in a second time.
package util

import (
	"math/rand"
	"time"
)

// Backoff is a stateful exponential back-off calculator with full jitter:
//
//	next = rand(0, cap) where cap = min(base*2^attempt, max)
//
// All fields are exported so callers can tweak them; changing fields after
// the first Next() call is safe and affects subsequent calculations.
type Backoff struct {
	// Base is the initial duration multiplied by 2^attempt. Default 100ms.
	Base time.Duration
	// Max is the upper bound for the random cap. Default 30s.
	Max time.Duration
	// Attempt counts calls to Next() and can be reset manually.
	Attempt int

	rng *rand.Rand
}

// NewBackoff returns a Backoff with sane defaults.
func NewBackoff() *Backoff {
	return &Backoff{
		Base: 100 * time.Millisecond,
		Max:  30 * time.Second,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next back-off duration using full jitter.
func (b *Backoff) Next() time.Duration {
	if b.Base <= 0 {
		b.Base = 100 * time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 30 * time.Second
	}
	capDur := b.Max
	if b.Attempt < 63 && b.Base <= b.Max>>uint(b.Attempt) {
		capDur = b.Base << uint(b.Attempt) // base * 2^attempt, known not to exceed Max
	}
	dur := time.Duration(b.rng.Int63n(int64(capDur) + 1))
	b.Attempt++
	return dur
}

// Reset sets Attempt to zero so the next Next() returns a duration within
// [0,Base].
func (b *Backoff) Reset() { b.Attempt = 0 }
