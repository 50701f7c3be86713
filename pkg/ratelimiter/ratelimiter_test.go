package ratelimiter_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kathanp/emailbot/pkg/ratelimiter"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newLimiter(t *testing.T, cfg ratelimiter.Config) (*ratelimiter.Limiter, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	l, err := ratelimiter.New(cfg, ratelimiter.WithClock(c.now))
	require.NoError(t, err)
	return l, c
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	for _, cfg := range []ratelimiter.Config{
		{Burst: 0, Refill: 1, Interval: time.Second},
		{Burst: 1, Refill: 0, Interval: time.Second},
		{Burst: 1, Refill: 1},
	} {
		_, err := ratelimiter.New(cfg)
		assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
	}
}

func TestTake(t *testing.T) {
	t.Parallel()

	l, c := newLimiter(t, ratelimiter.Config{Burst: 3, Refill: 1, Interval: 10 * time.Second})

	for i := range 3 {
		res := l.Take("ip")
		assert.True(t, res.Allowed, "take %d", i)
		assert.Equal(t, 2-i, res.Remaining)
	}
	denied := l.Take("ip")
	assert.False(t, denied.Allowed)
	assert.Equal(t, 10*time.Second, denied.RetryAfter(c.now()))

	assert.True(t, l.Take("other").Allowed, "keys are independent")

	c.advance(10 * time.Second)
	assert.True(t, l.Take("ip").Allowed)
	assert.False(t, l.Take("ip").Allowed)

	c.advance(time.Hour)
	res := l.Take("ip")
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining, "refill is capped at burst")
}

func TestIdleBucketsAreSwept(t *testing.T) {
	t.Parallel()

	l, c := newLimiter(t, ratelimiter.Config{Burst: 2, Refill: 1, Interval: time.Second})
	l.Take("a")
	l.Take("b")
	assert.Equal(t, 2, l.Len())

	c.advance(time.Minute)
	l.Take("c")
	assert.Equal(t, 1, l.Len())
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	l, _ := newLimiter(t, ratelimiter.Config{Burst: 1, Refill: 1, Interval: time.Minute})
	key := func(r *http.Request) string { return r.Header.Get("X-Key") }
	h := ratelimiter.Middleware(l, key, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(k string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		if k != "" {
			r.Header.Set("X-Key", k)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	first := do("k")
	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	second := do("k")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, do("").Code, "empty key bypasses")
}
