// Package events provides a small typed event bus. The surrounding system
// observes the monitoring core ("issue added", "alert sent") by subscribing
// callbacks with an explicit priority; callbacks are error-isolated so one
// failing observer never affects another or the publisher.
package events

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Event names published by the monitoring core.
const (
	EventIssueAdded = "issue_added"
	EventAlertSent  = "alert_sent"
	EventCycleDone  = "check_cycle_completed"
)

// Event is a tagged payload delivered to subscribers.
type Event struct {
	// Name identifies the event type
	Name string
	// Time is when the event was published
	Time time.Time
	// Payload carries the event data (an Issue, an Alert, ...)
	Payload any
}

// HandlerFunc receives published events.
type HandlerFunc func(Event)

type subscription struct {
	priority int
	seq      int
	fn       HandlerFunc
}

// Bus dispatches events to subscribers in priority order.
// Safe for concurrent use.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]subscription
	seq  int
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// Subscribe registers fn for the named event. Lower priority values run
// first; equal priorities run in registration order. The wildcard name "*"
// receives every event.
func (b *Bus) Subscribe(name string, priority int, fn HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	subs := append(b.subs[name], subscription{priority: priority, seq: b.seq, fn: fn})
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].priority != subs[j].priority {
			return subs[i].priority < subs[j].priority
		}
		return subs[i].seq < subs[j].seq
	})
	b.subs[name] = subs
}

// Publish delivers the event to all matching subscribers synchronously.
// A panicking callback is logged and skipped.
func (b *Bus) Publish(name string, payload any) {
	ev := Event{Name: name, Time: time.Now(), Payload: payload}

	b.mu.RLock()
	handlers := make([]subscription, 0, len(b.subs[name])+len(b.subs["*"]))
	handlers = append(handlers, b.subs[name]...)
	handlers = append(handlers, b.subs["*"]...)
	b.mu.RUnlock()

	for _, sub := range handlers {
		b.invoke(sub, ev)
	}
}

func (b *Bus) invoke(sub subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("event", ev.Name).Any("panic", r).Msg("event handler panicked")
		}
	}()
	sub.fn(ev)
}
