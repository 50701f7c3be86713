// Package ratelimiter throttles requests per key with an in-memory token bucket.
package ratelimiter

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrInvalidConfig = errors.New("ratelimiter: invalid configuration")

// Config describes one bucket: Burst tokens, refilled by Refill every Interval.
type Config struct {
	Burst    int           `env:"AUTH_RATE_BURST" envDefault:"10"`
	Refill   int           `env:"AUTH_RATE_REFILL" envDefault:"1"`
	Interval time.Duration `env:"AUTH_RATE_INTERVAL" envDefault:"6s"`
}

func (c Config) validate() error {
	switch {
	case c.Burst <= 0:
		return fmt.Errorf("%w: burst must be positive, got %d", ErrInvalidConfig, c.Burst)
	case c.Refill <= 0:
		return fmt.Errorf("%w: refill must be positive, got %d", ErrInvalidConfig, c.Refill)
	case c.Interval <= 0:
		return fmt.Errorf("%w: interval must be positive, got %v", ErrInvalidConfig, c.Interval)
	}
	return nil
}

// Result is the bucket state after a take.
type Result struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	Allowed   bool
}

// RetryAfter is zero for allowed results.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed {
		return 0
	}
	return max(r.ResetAt.Sub(now), 0)
}

type bucket struct {
	tokens     int
	lastRefill time.Time
	lastSeen   time.Time
}

// Limiter keeps one bucket per key. Buckets idle for longer than the time to
// refill completely are dropped lazily on Take.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

func New(cfg Config, opts ...Option) (*Limiter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	l := &Limiter{cfg: cfg, now: time.Now, buckets: map[string]*bucket{}}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.now()
	return l, nil
}

// Take consumes one token for key.
func (l *Limiter) Take(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.cfg.Burst, lastRefill: now}
		l.buckets[key] = b
	}
	b.lastSeen = now

	if n := int(now.Sub(b.lastRefill) / l.cfg.Interval); n > 0 {
		b.tokens = min(b.tokens+n*l.cfg.Refill, l.cfg.Burst)
		b.lastRefill = b.lastRefill.Add(time.Duration(n) * l.cfg.Interval)
	}

	res := Result{Limit: l.cfg.Burst, ResetAt: b.lastRefill.Add(l.cfg.Interval)}
	if b.tokens > 0 {
		b.tokens--
		res.Allowed = true
	}
	res.Remaining = b.tokens
	return res
}

func (l *Limiter) sweep(now time.Time) {
	idle := time.Duration((l.cfg.Burst+l.cfg.Refill-1)/l.cfg.Refill) * l.cfg.Interval
	if now.Sub(l.lastSweep) < idle {
		return
	}
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > idle {
			delete(l.buckets, k)
		}
	}
	l.lastSweep = now
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
