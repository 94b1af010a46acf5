package alert

import (
	"sync"
	"time"
)

// windowDurations maps configured window names to their spans.
// Unknown window names in the config are ignored.
var windowDurations = map[string]time.Duration{
	"per_minute": time.Minute,
	"per_hour":   time.Hour,
	"per_day":    24 * time.Hour,
}

// RateLimiter enforces per-category sliding-window limits. Each configured
// window is evaluated independently: a category can be minute-blocked while
// still having hour and day budget left.
type RateLimiter struct {
	mu     sync.Mutex
	limits map[string]int
	events map[string][]time.Time
	now    func() time.Time
}

// NewRateLimiter creates a limiter for the given window limits
// (e.g. {"per_minute": 10, "per_hour": 100}).
func NewRateLimiter(limits map[string]int) *RateLimiter {
	return &RateLimiter{
		limits: limits,
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Check reports whether the category has budget in every configured window.
// On acceptance the event is recorded; on rejection nothing is recorded.
// Entries older than the longest configured window are pruned lazily here,
// never by a background sweep.
func (l *RateLimiter) Check(category string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	events := l.prune(category, now)

	for period, limit := range l.limits {
		window, ok := windowDurations[period]
		if !ok {
			continue
		}
		cutoff := now.Add(-window)
		count := 0
		for _, ts := range events {
			if ts.After(cutoff) {
				count++
			}
		}
		if count >= limit {
			return false
		}
	}

	l.events[category] = append(events, now)
	return true
}

// prune drops entries older than the longest configured window and returns
// the surviving slice.
func (l *RateLimiter) prune(category string, now time.Time) []time.Time {
	longest := time.Duration(0)
	for period := range l.limits {
		if window, ok := windowDurations[period]; ok && window > longest {
			longest = window
		}
	}
	if longest == 0 {
		longest = 24 * time.Hour
	}

	cutoff := now.Add(-longest)
	events := l.events[category]
	kept := events[:0]
	for _, ts := range events {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.events[category] = kept
	return kept
}
