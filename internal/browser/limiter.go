package browser

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter paces navigations per host.
type HostLimiter struct {
	hosts map[string]*host
	mu    sync.Mutex
	rate  rate.Limit
	burst int
}

type host struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewHostLimiter allows perMinute navigations per host with the given burst.
// perMinute <= 0 disables pacing.
func NewHostLimiter(perMinute, burst int) *HostLimiter {
	r := rate.Inf
	if perMinute > 0 {
		r = rate.Every(time.Minute / time.Duration(perMinute))
	}
	if burst <= 0 {
		burst = 1
	}
	return &HostLimiter{hosts: make(map[string]*host), rate: r, burst: burst}
}

// Limiter returns the limiter for name, creating it on first use.
func (hl *HostLimiter) Limiter(name string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	now := time.Now()
	h, ok := hl.hosts[name]
	if !ok {
		h = &host{limiter: rate.NewLimiter(hl.rate, hl.burst)}
		hl.hosts[name] = h
	}
	h.lastSeen = now

	// Hosts idle for a while start over with a full bucket.
	for k, v := range hl.hosts {
		if k != name && now.Sub(v.lastSeen) > 30*time.Minute {
			delete(hl.hosts, k)
		}
	}
	return h.limiter
}

// Wait blocks until a navigation to name is allowed or ctx ends.
func (hl *HostLimiter) Wait(ctx context.Context, name string) error {
	return hl.Limiter(name).Wait(ctx)
}
