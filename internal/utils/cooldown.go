package utils

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Cooldown allows a burst of uses per key, refilled evenly over window.
type Cooldown struct {
	mu       sync.Mutex
	uses     int
	window   time.Duration
	limiters map[string]*rate.Limiter
}

func NewCooldown(uses int, window time.Duration) *Cooldown {
	if uses < 1 {
		uses = 1
	}
	return &Cooldown{uses: uses, window: window, limiters: make(map[string]*rate.Limiter)}
}

func (c *Cooldown) Allow(key string, now time.Time) bool {
	if c.window <= 0 {
		return true
	}
	return c.getLimiter(key).AllowN(now, 1)
}

func (c *Cooldown) getLimiter(key string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	limiter := c.limiters[key]
	if limiter == nil {
		every := rate.Every(c.window / time.Duration(c.uses))
		limiter = rate.NewLimiter(every, c.uses)
		c.limiters[key] = limiter
	}
	return limiter
}
