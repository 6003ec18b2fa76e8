// Package admission implements the fixed-window request limiter that guards
// the externally billed embedding and generation calls.
//
// State is process-local and reset on restart. Windows that have expired are
// evicted opportunistically, so memory grows with the number of distinct
// clients seen within one window.
package admission

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultMaxRequests = 30
	DefaultWindow      = 60 * time.Second

	// sweepEvery bounds how many decisions may pass between eviction sweeps.
	sweepEvery = 256
)

type window struct {
	start time.Time
	count int
}

// Decision is the outcome of a single admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Controller struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	window  time.Duration
	now     func() time.Time
	sweep   rate.Sometimes
}

type Option func(*Controller)

// WithClock replaces the wall clock, letting tests move time explicitly.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

func NewController(limit int, window time.Duration, opts ...Option) *Controller {
	if limit <= 0 {
		limit = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	c := &Controller{
		windows: make(map[string]*window),
		limit:   limit,
		window:  window,
		now:     time.Now,
		sweep:   rate.Sometimes{First: 1, Every: sweepEvery, Interval: window},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Allow(clientID string) bool {
	return c.Decide(clientID).Allowed
}

// Decide counts the request against the client's current window. Denied
// requests are counted too, so a client hammering the endpoint stays denied
// until its window expires.
func (c *Controller) Decide(clientID string) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweep.Do(func() { c.evictExpired(now) })

	w, ok := c.windows[clientID]
	if !ok || now.Sub(w.start) >= c.window {
		w = &window{start: now}
		c.windows[clientID] = w
	}
	w.count++

	if w.count > c.limit {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: w.start.Add(c.window).Sub(now),
		}
	}
	return Decision{Allowed: true, Remaining: c.limit - w.count}
}

// Len reports how many client windows are currently tracked.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

func (c *Controller) Limit() int {
	return c.limit
}

// evictExpired must be called with mu held.
func (c *Controller) evictExpired(now time.Time) {
	for id, w := range c.windows {
		if now.Sub(w.start) >= c.window {
			delete(c.windows, id)
		}
	}
}
