// Package alert implements the alert delivery subsystem: alert
// construction, sliding-window rate limiting, suppression, severity-gated
// dispatch across pluggable channels, and alert history with summaries.
package alert

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/events"
	"github.com/driftwatch/driftwatch/internal/types"
)

// Handler observes delivered alerts for a category (or "*" for all).
type Handler func(types.Alert)

// HistoryStore optionally persists delivered alerts across restarts.
type HistoryStore interface {
	SaveAlert(ctx context.Context, a types.Alert) error
}

// Manager owns alert gating and fan-out. It is constructed by the monitor
// at start and torn down at stop; there are no package-level singletons.
// History is in-memory and append-only for the process lifetime; pass
// WithHistoryStore for persistence across restarts.
type Manager struct {
	cfg         config.AlertConfig
	channels    []Channel
	limiter     *RateLimiter
	suppression *SuppressionCache

	mu          sync.Mutex
	history     []types.Alert
	occurrences map[string][]time.Time
	handlers    map[string][]Handler

	store HistoryStore
	bus   *events.Bus
	now   func() time.Time
}

// Option configures optional manager collaborators.
type Option func(*Manager)

// WithHistoryStore persists delivered alerts to the given store.
func WithHistoryStore(store HistoryStore) Option {
	return func(m *Manager) { m.store = store }
}

// WithBus publishes an alert_sent event for every delivered alert.
func WithBus(bus *events.Bus) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithChannel adds a pre-built channel, replacing any configured channel
// of the same name. Used for custom sinks and for tests.
func WithChannel(ch Channel) Option {
	return func(m *Manager) {
		for i, existing := range m.channels {
			if existing.Name() == ch.Name() {
				m.channels[i] = ch
				return
			}
		}
		m.channels = append(m.channels, ch)
	}
}

// NewManager builds a manager from config. Misconfigured channels are
// logged and disabled; they are never fatal.
func NewManager(cfg config.AlertConfig, opts ...Option) *Manager {
	m := &Manager{
		cfg:         cfg,
		limiter:     NewRateLimiter(cfg.RateLimits),
		suppression: NewSuppressionCache(cfg.SuppressionWindow),
		occurrences: make(map[string][]time.Time),
		handlers:    make(map[string][]Handler),
		now:         time.Now,
	}
	m.initChannels()
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) initChannels() {
	for _, name := range m.cfg.EnabledChannels {
		ch, err := m.buildChannel(name)
		if err != nil {
			log.Warn().Err(err).Str("channel", name).Msg("alert channel disabled")
			continue
		}
		m.channels = append(m.channels, ch)
	}
}

func (m *Manager) buildChannel(name string) (Channel, error) {
	switch name {
	case "log":
		return LogChannel{}, nil
	case "file":
		return NewFileChannel(m.cfg.AlertFile)
	case "console":
		return NewConsoleChannel(), nil
	case "email":
		if m.cfg.Email == nil {
			return nil, fmt.Errorf("email channel enabled without email config")
		}
		return NewEmailChannel(*m.cfg.Email), nil
	case "webhook":
		if m.cfg.Webhook == nil {
			return nil, fmt.Errorf("webhook channel enabled without webhook config")
		}
		return NewWebhookChannel(*m.cfg.Webhook)
	default:
		return nil, fmt.Errorf("unknown alert channel %q", name)
	}
}

// CreateAlert constructs an alert with a unique id and timestamp.
// It does not dispatch.
func (m *Manager) CreateAlert(severity types.Severity, title, description, source, category string, details map[string]any) types.Alert {
	if details == nil {
		details = map[string]any{}
	}
	return types.Alert{
		AlertID:     uuid.NewString(),
		Timestamp:   m.now(),
		Severity:    severity,
		Title:       title,
		Description: description,
		Source:      source,
		Category:    category,
		Details:     details,
		Metadata:    map[string]any{},
	}
}

// SendAlert gates and dispatches the alert. It returns true only when at
// least one channel accepted it. Gates are evaluated in order: rate limit,
// suppression, severity threshold. The alert under evaluation counts toward
// its own severity threshold, so the Nth occurrence is the one delivered.
func (m *Manager) SendAlert(ctx context.Context, a types.Alert) bool {
	if !m.limiter.Check(a.Category) {
		log.Warn().Str("category", a.Category).Str("title", a.Title).Msg("alert rate limit exceeded")
		return false
	}

	if m.suppression.IsSuppressed(a.Category, a.Title) {
		log.Debug().Str("category", a.Category).Str("title", a.Title).Msg("alert suppressed")
		return false
	}

	if count, threshold := m.recordOccurrence(a), m.cfg.ThresholdFor(a.Severity); count < threshold {
		log.Debug().
			Str("title", a.Title).
			Int("occurrences", count).
			Int("threshold", threshold).
			Msg("alert below severity threshold")
		return false
	}

	if !m.dispatch(ctx, a) {
		return false
	}

	m.mu.Lock()
	m.history = append(m.history, a)
	m.mu.Unlock()

	m.suppression.Touch(a.Category, a.Title)

	if m.store != nil {
		if err := m.store.SaveAlert(ctx, a); err != nil {
			log.Error().Err(err).Str("alert_id", a.AlertID).Msg("persisting alert failed")
		}
	}

	m.callHandlers(a)
	if m.bus != nil {
		m.bus.Publish(events.EventAlertSent, a)
	}
	return true
}

// recordOccurrence notes this (category, title) occurrence and returns how
// many occurrences, including this one, fell within the last hour.
// Occurrences are counted whether or not the alert is ultimately delivered.
func (m *Manager) recordOccurrence(a types.Alert) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := a.Category + ":" + a.Title
	cutoff := m.now().Add(-time.Hour)

	kept := m.occurrences[key][:0]
	for _, ts := range m.occurrences[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, m.now())
	m.occurrences[key] = kept
	return len(kept)
}

// dispatch fans the alert out to every channel concurrently. Failures are
// logged per channel; success requires at least one acceptance.
func (m *Manager) dispatch(ctx context.Context, a types.Alert) bool {
	if len(m.channels) == 0 {
		log.Warn().Str("alert_id", a.AlertID).Msg("no alert channels configured")
		return false
	}

	var accepted atomic.Int32
	g, ctx := errgroup.WithContext(ctx)
	for _, ch := range m.channels {
		ch := ch
		g.Go(func() error {
			if err := ch.Send(ctx, a); err != nil {
				log.Error().Err(err).Str("channel", ch.Name()).Str("alert_id", a.AlertID).Msg("channel send failed")
				return nil // isolated: one channel failing never blocks the rest
			}
			accepted.Add(1)
			return nil
		})
	}
	g.Wait()
	return accepted.Load() > 0
}

// RegisterHandler subscribes a handler to delivered alerts of a category.
// Use "*" to observe every delivered alert.
func (m *Manager) RegisterHandler(category string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[category] = append(m.handlers[category], h)
}

func (m *Manager) callHandlers(a types.Alert) {
	m.mu.Lock()
	handlers := make([]Handler, 0, len(m.handlers[a.Category])+len(m.handlers["*"]))
	handlers = append(handlers, m.handlers[a.Category]...)
	handlers = append(handlers, m.handlers["*"]...)
	m.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("category", a.Category).Any("panic", r).Msg("alert handler panicked")
				}
			}()
			h(a)
		}()
	}
}

// History returns a copy of the delivered alert history.
func (m *Manager) History() []types.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Alert, len(m.history))
	copy(out, m.history)
	return out
}

// GetAlertSummary aggregates delivered alerts from the last N hours:
// counts by severity, category and source, plus an hourly timeline.
func (m *Manager) GetAlertSummary(hours int) types.AlertSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-time.Duration(hours) * time.Hour)

	summary := types.AlertSummary{
		BySeverity: make(map[string]int),
		ByCategory: make(map[string]int),
		BySource:   make(map[string]int),
	}
	for _, sev := range types.Severities() {
		summary.BySeverity[string(sev)] = 0
	}

	var recent []types.Alert
	for _, a := range m.history {
		if a.Timestamp.After(cutoff) {
			recent = append(recent, a)
		}
	}

	summary.TotalAlerts = len(recent)
	for _, a := range recent {
		summary.BySeverity[string(a.Severity)]++
		summary.ByCategory[a.Category]++
		summary.BySource[a.Source]++
	}

	for hour := 0; hour < hours; hour++ {
		start := now.Add(-time.Duration(hour+1) * time.Hour)
		end := now.Add(-time.Duration(hour) * time.Hour)
		count := 0
		for _, a := range recent {
			if !a.Timestamp.Before(start) && a.Timestamp.Before(end) {
				count++
			}
		}
		summary.Timeline = append(summary.Timeline, types.TimelineBucket{
			Hour:  start.Format("2006-01-02 15:00"),
			Count: count,
		})
	}

	return summary
}
