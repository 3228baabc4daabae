// Package ratelimit implements the per-connection fixed-window counter
// that gates abusive driver producers (§4.2 of the connection engine).
package ratelimit

import (
	"sync"
	"time"

	"github.com/example/fleetrelay/internal/clock"
	"github.com/example/fleetrelay/internal/models"
)

// Gate is a per-connection fixed-window counter. Buckets are keyed by
// connection handle, matching the source's observed (and preserved)
// behavior of gating on the transport link rather than the account.
type Gate struct {
	mu      sync.Mutex
	buckets map[models.ConnHandle]*models.RateBucket
	limit   int
	window  time.Duration
	clock   clock.Clock
}

func New(limit int, window time.Duration, c clock.Clock) *Gate {
	return &Gate{
		buckets: make(map[models.ConnHandle]*models.RateBucket),
		limit:   limit,
		window:  window,
		clock:   c,
	}
}

// Allow increments the bucket for handle and reports whether the event
// is admitted. On rejection no state is mutated beyond what was already
// recorded for prior admitted events in the window.
func (g *Gate) Allow(handle models.ConnHandle) bool {
	now := g.clock.Now()
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.buckets[handle]
	if !ok || now.After(b.ResetAt) || now.Equal(b.ResetAt) {
		b = &models.RateBucket{Count: 0, ResetAt: now.Add(g.window)}
		g.buckets[handle] = b
	}

	if b.Count >= g.limit {
		return false
	}
	b.Count++
	return true
}

// Reset clears the bucket for handle, used on (re)registration so a
// preempted or reconnecting session starts with a clean window.
func (g *Gate) Reset(handle models.ConnHandle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.buckets, handle)
}

// Drop tears down the bucket for handle. The transport's disconnect path
// does not call it; a disconnected handle's bucket stays until Sweep
// finds its reset time has passed.
func (g *Gate) Drop(handle models.ConnHandle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.buckets, handle)
}

// Sweep drops every bucket whose reset time has passed, independent of
// whether the connection is still live. Called by the reaper.
func (g *Gate) Sweep() int {
	now := g.clock.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	dropped := 0
	for h, b := range g.buckets {
		if now.After(b.ResetAt) {
			delete(g.buckets, h)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of live buckets, for tests and metrics.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.buckets)
}
