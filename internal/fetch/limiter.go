package fetch

import (
	"context"
	"sync"
	"time"
)

// HostLimiter enforces a minimum interval between the *start* of successive
// requests to the same host. It is an explicit, injectable dependency rather
// than process-global state, backed by a plain map guarded by a short
// critical section.
type HostLimiter struct {
	mu          sync.Mutex
	nextAllowed map[string]time.Time
	minInterval time.Duration
	// now is overridable in tests.
	now func() time.Time
}

// NewHostLimiter builds a limiter enforcing minInterval between request
// starts to the same host. minInterval <= 0 disables throttling.
func NewHostLimiter(minInterval time.Duration) *HostLimiter {
	return &HostLimiter{
		nextAllowed: make(map[string]time.Time),
		minInterval: minInterval,
		now:         time.Now,
	}
}

// Wait blocks until it is this host's turn to start a request, or ctx is
// canceled. It reserves the next slot atomically so concurrent callers for
// the same host are serialized min-interval apart.
func (l *HostLimiter) Wait(ctx context.Context, host string) {
	if l.minInterval <= 0 {
		return
	}
	for {
		wait := l.reserve(host)
		if wait <= 0 {
			return
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
			return
		}
	}
}

// reserve grants the caller the next available slot for host and returns
// how long the caller must additionally sleep, if any slot was already
// claimed by a racing goroutine in the meantime (should be effectively 0 in
// practice since the whole decision is made inside the lock).
func (l *HostLimiter) reserve(host string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	next, ok := l.nextAllowed[host]
	var wait time.Duration
	if ok && next.After(now) {
		wait = next.Sub(now)
	}
	start := now.Add(wait)
	l.nextAllowed[host] = start.Add(l.minInterval)
	return wait
}
