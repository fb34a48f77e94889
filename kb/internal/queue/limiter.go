// CLAUDE:SUMMARY Per-host token buckets with exponential backoff, the only cross-worker coordination outside the stores.
package queue

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Backoff window bounds for misbehaving hosts.
const (
	backoffInitial = 2 * time.Second
	backoffMax     = 60 * time.Second
)

// hostLimiter gates fetches per host: a token bucket emitting at the
// configured rate (burst 1), plus an exponential backoff window applied on
// 429s and sustained transient failures. One host backing off never blocks
// another.
type hostLimiter struct {
	perSecond float64

	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	deadline map[string]time.Time
	window   map[string]time.Duration
}

func newHostLimiter(perSecond float64) *hostLimiter {
	if perSecond <= 0 {
		perSecond = 1.0
	}
	return &hostLimiter{
		perSecond: perSecond,
		buckets:   make(map[string]*rate.Limiter),
		deadline:  make(map[string]time.Time),
		window:    make(map[string]time.Duration),
	}
}

// Wait blocks until the host's backoff window has passed and a token is
// available, or the context ends.
func (h *hostLimiter) Wait(ctx context.Context, host string) error {
	h.mu.Lock()
	bucket, ok := h.buckets[host]
	if !ok {
		bucket = rate.NewLimiter(rate.Limit(h.perSecond), 1)
		h.buckets[host] = bucket
	}
	until := h.deadline[host]
	h.mu.Unlock()

	if wait := time.Until(until); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return bucket.Wait(ctx)
}

// Backoff doubles the host's penalty window, starting at 2s, capped at 60s.
func (h *hostLimiter) Backoff(host string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w := h.window[host]
	if w == 0 {
		w = backoffInitial
	} else {
		w *= 2
		if w > backoffMax {
			w = backoffMax
		}
	}
	h.window[host] = w
	h.deadline[host] = time.Now().Add(w)
}

// Reset clears the host's penalty after a success.
func (h *hostLimiter) Reset(host string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.window, host)
	delete(h.deadline, host)
}

// penalty reports the current backoff window (tests).
func (h *hostLimiter) penalty(host string) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.window[host]
}
