// Package ratelimit implements the keyed token-bucket rate limiter the
// pipeline consults before forwarding a request (spec.md §4.5). Each
// key gets its own bucket, lazily created on first use and backed by
// golang.org/x/time/rate, the same limiter library the teacher uses
// for its GitHub API client (pkg/auth/github_provider.go).
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	oagwerrors "github.com/stacklok/oagw/pkg/errors"
	"github.com/stacklok/oagw/pkg/oagw"
)

// idleGCFactor is the multiplier on (capacity/refill) seconds a bucket
// must sit unused before GC reclaims it (spec.md §4.5 "idle GC at
// >=10x the time to refill from empty to full").
const idleGCFactor = 10

type bucket struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// Limiter is the process-wide keyed rate limiter. One Limiter instance
// is shared across every request; buckets are created lazily per key.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// New constructs an empty Limiter.
func New() *Limiter {
	return &Limiter{buckets: make(map[string]*bucket), now: time.Now}
}

// Acquire reserves cost tokens from the bucket identified by key,
// configured by spec, waiting up to deadline for capacity to free up.
// A RefillPerSec of 0 makes the bucket a fixed pool: once its Capacity
// tokens are spent they never replenish until the bucket is removed and
// recreated (spec.md §4.5 "refill = 0 behaves as a fixed pool").
func (l *Limiter) Acquire(ctx context.Context, key string, spec oagw.RateBucket, cost int64) error {
	b := l.bucketFor(key, spec)

	deadlineCtx := ctx
	if dl, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		deadlineCtx, cancel = context.WithDeadline(ctx, dl)
		defer cancel()
	}

	reservation := b.limiter.ReserveN(l.now(), int(cost))
	if !reservation.OK() {
		return oagwerrors.NewThrottledError("requested cost exceeds bucket capacity", 0)
	}
	delay := reservation.DelayFrom(l.now())
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-deadlineCtx.Done():
		reservation.Cancel()
		return oagwerrors.NewThrottledError("rate limit wait exceeded deadline", delay.Milliseconds())
	}
}

func (l *Limiter) bucketFor(key string, spec oagw.RateBucket) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(spec.RefillPerSec), int(spec.Capacity))}
		l.buckets[key] = b
	}
	b.lastUsed = l.now()
	return b
}

// GCIdle evicts every bucket whose spec implies it is fully idle: no
// activity for idleGCFactor times the time it takes to refill that
// bucket's configured capacity from empty, given its own refill rate.
// Buckets with RefillPerSec == 0 (fixed pools) are never reclaimed by
// time alone — callers must evict them explicitly (e.g. on route/
// upstream deletion) since there is no refill interval to measure.
func (l *Limiter) GCIdle(specs map[string]oagw.RateBucket) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, b := range l.buckets {
		spec, ok := specs[key]
		if !ok || spec.RefillPerSec <= 0 {
			continue
		}
		refillSeconds := float64(spec.Capacity) / spec.RefillPerSec
		idleThreshold := time.Duration(idleGCFactor * refillSeconds * float64(time.Second))
		if now.Sub(b.lastUsed) >= idleThreshold {
			delete(l.buckets, key)
		}
	}
}

// Remove evicts the bucket for key unconditionally, whatever its spec;
// it is the only way a fixed-pool bucket is evicted.
func (l *Limiter) Remove(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}
