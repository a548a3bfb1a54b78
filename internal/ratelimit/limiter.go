// Package ratelimit tracks upstream quota state published via response
// headers and gates request bursts on it. The limiter is advisory: stale
// state lets a request through, and the upstream's own enforcement is the
// backstop.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atkit/botfleet/internal/atproto"
	"github.com/atkit/botfleet/internal/clock"
	"github.com/atkit/botfleet/internal/metrics"
)

// Defaults used until the upstream publishes real quota headers.
const (
	DefaultLimit     = 3000
	DefaultRemaining = 3000
)

// State is the quota snapshot for one host.
type State struct {
	Limit     int
	Remaining int
	// ResetAt is the unix-seconds timestamp when the quota window renews.
	ResetAt int64
}

// Limiter holds per-host quota state. Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	states map[string]State
	clock  clock.Clock
}

// New builds a Limiter. A nil clock uses the system clock.
func New(clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.System{}
	}
	return &Limiter{
		states: make(map[string]State),
		clock:  clk,
	}
}

// Update refreshes the host's state from response metadata. Absent metadata
// leaves the last known state untouched.
func (l *Limiter) Update(host string, meta atproto.RateLimitMeta) {
	if !meta.Present {
		return
	}
	l.mu.Lock()
	l.states[host] = State{Limit: meta.Limit, Remaining: meta.Remaining, ResetAt: meta.Reset}
	l.mu.Unlock()
}

// StateFor returns the host's current quota snapshot.
func (l *Limiter) StateFor(host string) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.states[host]
	if !ok {
		return State{Limit: DefaultLimit, Remaining: DefaultRemaining}
	}
	return st
}

// WaitN blocks until the host has quota for n requests: if remaining <= n
// and the reset timestamp is in the future, it sleeps until the reset. It
// never rejects; a stale optimistic pass-through is by contract acceptable.
func (l *Limiter) WaitN(ctx context.Context, host string, n int) error {
	st := l.StateFor(host)
	if st.Remaining > n {
		return nil
	}
	now := l.clock.Now().Unix()
	if st.ResetAt <= now {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	wait := time.Duration(st.ResetAt-now) * time.Second
	metrics.ObserveRateLimitDelay(host, wait)
	l.clock.Sleep(ctx, wait)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}
