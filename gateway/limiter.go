package gateway

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedLimiter holds one token bucket per key (sender address or client IP).
// A non-positive rate disables limiting.
type KeyedLimiter struct {
	perMinute int
	burst     int

	mu      sync.Mutex
	clients map[string]*limitedClient
}

type limitedClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter allows perMinute events per key with the given burst.
func NewKeyedLimiter(perMinute, burst int) *KeyedLimiter {
	if burst <= 0 {
		burst = 1
	}

	return &KeyedLimiter{
		perMinute: perMinute,
		burst:     burst,
		clients:   make(map[string]*limitedClient),
	}
}

// Allow reports whether an event for key may happen now.
func (l *KeyedLimiter) Allow(key string) bool {
	if l == nil || l.perMinute <= 0 {
		return true
	}

	l.mu.Lock()
	c, ok := l.clients[key]
	if !ok {
		c = &limitedClient{limiter: rate.NewLimiter(rate.Limit(float64(l.perMinute)/60.0), l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = time.Now()
	limiter := c.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

// Len returns the number of tracked keys.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Sweep forgets keys idle for longer than idle.
func (l *KeyedLimiter) Sweep(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, c := range l.clients {
		if time.Since(c.lastSeen) > idle {
			delete(l.clients, key)
		}
	}
}

// Run sweeps idle keys every minute until ctx is done.
func (l *KeyedLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep(3 * time.Minute)
		case <-ctx.Done():
			return
		}
	}
}
