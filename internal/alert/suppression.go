package alert

import (
	"sync"
	"time"
)

// SuppressionCache remembers when each (category, title) pair was last
// delivered so repeats inside the suppression window are dropped.
// Stale entries are pruned on write to bound memory.
type SuppressionCache struct {
	mu       sync.Mutex
	window   time.Duration
	lastSent map[string]time.Time
	now      func() time.Time
}

// NewSuppressionCache creates a cache with the given cooldown window.
func NewSuppressionCache(window time.Duration) *SuppressionCache {
	return &SuppressionCache{
		window:   window,
		lastSent: make(map[string]time.Time),
		now:      time.Now,
	}
}

func suppressionKey(category, title string) string {
	return category + ":" + title
}

// IsSuppressed reports whether an alert with this (category, title) was
// delivered within the suppression window.
func (c *SuppressionCache) IsSuppressed(category, title string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.lastSent[suppressionKey(category, title)]
	if !ok {
		return false
	}
	return c.now().Sub(last) < c.window
}

// Touch records a delivery and prunes entries older than the window.
func (c *SuppressionCache) Touch(category, title string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.lastSent[suppressionKey(category, title)] = now

	cutoff := now.Add(-c.window)
	for key, ts := range c.lastSent {
		if ts.Before(cutoff) {
			delete(c.lastSent, key)
		}
	}
}
