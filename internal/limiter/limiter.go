// Package limiter throttles repeated operations per key (owner address, action name).
package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter decides whether an operation keyed by key may run now.
type Limiter interface {
	// Allow reports whether key may proceed now and, if not, how long until it may.
	Allow(key string) (bool, time.Duration)
	// Reset forgets the history of key.
	Reset(key string)
}

// Keyed keeps one token bucket per key. Buckets idle longer than the refill period are pruned.
type Keyed struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idle    time.Duration
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// New allows burst operations per key, refilling one every interval.
// A non-positive interval disables limiting.
func New(every time.Duration, burst int) *Keyed {
	if burst < 1 {
		burst = 1
	}
	k := &Keyed{burst: burst, buckets: make(map[string]*bucket), now: time.Now, limit: rate.Inf}
	if every > 0 {
		k.limit = rate.Every(every)
		k.idle = every * time.Duration(burst)
	}
	return k
}

// Allow consumes one token of key if available.
func (k *Keyed) Allow(key string) (bool, time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()
	now := k.now()
	b := k.bucket(key, now)
	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// Wait blocks until key may proceed or ctx is done.
func (k *Keyed) Wait(ctx context.Context, key string) error {
	k.mu.Lock()
	b := k.bucket(key, k.now())
	k.mu.Unlock()
	return b.lim.Wait(ctx)
}

// Reset drops the bucket of key.
func (k *Keyed) Reset(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.buckets, key)
}

func (k *Keyed) bucket(key string, now time.Time) *bucket {
	if k.idle > 0 {
		for key2, b := range k.buckets {
			if key2 != key && now.Sub(b.seen) > k.idle {
				delete(k.buckets, key2)
			}
		}
	}
	b, ok := k.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(k.limit, k.burst)}
		k.buckets[key] = b
	}
	b.seen = now
	return b
}
