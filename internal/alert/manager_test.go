package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/events"
	"github.com/driftwatch/driftwatch/internal/types"
)

// captureChannel records every alert it accepts.
type captureChannel struct {
	name string
	sent []types.Alert
	fail bool
}

func (c *captureChannel) Name() string {
	if c.name == "" {
		return "capture"
	}
	return c.name
}

func (c *captureChannel) Send(_ context.Context, a types.Alert) error {
	if c.fail {
		return assert.AnError
	}
	c.sent = append(c.sent, a)
	return nil
}

// newTestManager builds a manager with a capture channel and a fake clock
// wired through the limiter and suppression cache.
func newTestManager(cfg config.AlertConfig) (*Manager, *captureChannel, *fakeClock) {
	cfg.EnabledChannels = nil
	capture := &captureChannel{}
	m := NewManager(cfg, WithChannel(capture))

	clock := newFakeClock()
	m.now = clock.Now
	m.limiter.now = clock.Now
	m.suppression.now = clock.Now
	return m, capture, clock
}

func warnAlert(m *Manager, title string) types.Alert {
	return m.CreateAlert(types.SeverityWarning, title, "description", "test", "monitoring", nil)
}

func TestCreateAlert(t *testing.T) {
	m, _, _ := newTestManager(config.DefaultAlertConfig())

	a := m.CreateAlert(types.SeverityError, "title", "desc", "src", "cat", map[string]any{"k": "v"})
	b := m.CreateAlert(types.SeverityError, "title", "desc", "src", "cat", nil)

	assert.NotEmpty(t, a.AlertID)
	assert.NotEqual(t, a.AlertID, b.AlertID)
	assert.Equal(t, types.SeverityError, a.Severity)
	assert.Equal(t, "v", a.Details["k"])
	assert.NotNil(t, b.Details)
	// creation never dispatches
	assert.Empty(t, m.History())
}

func TestSendAlertRateLimited(t *testing.T) {
	// per_minute 2, three alerts in one minute
	cfg := config.DefaultAlertConfig()
	cfg.RateLimits = map[string]int{"per_minute": 2}
	cfg.SeverityThresholds = map[types.Severity]int{types.SeverityWarning: 1}
	cfg.SuppressionWindow = 0
	m, capture, _ := newTestManager(cfg)

	ctx := context.Background()
	assert.True(t, m.SendAlert(ctx, warnAlert(m, "first")))
	assert.True(t, m.SendAlert(ctx, warnAlert(m, "second")))
	assert.False(t, m.SendAlert(ctx, warnAlert(m, "third")))
	assert.Len(t, capture.sent, 2)
}

func TestSendAlertSuppression(t *testing.T) {
	// suppression_window 60s, same title back to back
	cfg := config.DefaultAlertConfig()
	cfg.SeverityThresholds = map[types.Severity]int{types.SeverityWarning: 1}
	cfg.SuppressionWindow = 60 * time.Second
	m, capture, clock := newTestManager(cfg)

	ctx := context.Background()
	assert.True(t, m.SendAlert(ctx, warnAlert(m, "Duplicate Alert")))
	assert.False(t, m.SendAlert(ctx, warnAlert(m, "Duplicate Alert")))
	assert.Len(t, capture.sent, 1)

	// eligible again after the window elapses
	clock.Advance(61 * time.Second)
	assert.True(t, m.SendAlert(ctx, warnAlert(m, "Duplicate Alert")))
	assert.Len(t, capture.sent, 2)
}

func TestSendAlertSeverityThreshold(t *testing.T) {
	// error threshold 2, so the second identical alert is the first delivered
	cfg := config.DefaultAlertConfig()
	cfg.SeverityThresholds = map[types.Severity]int{types.SeverityError: 2}
	cfg.SuppressionWindow = 0
	m, capture, _ := newTestManager(cfg)

	ctx := context.Background()
	a1 := m.CreateAlert(types.SeverityError, "disk failing", "desc", "test", "hardware", nil)
	a2 := m.CreateAlert(types.SeverityError, "disk failing", "desc", "test", "hardware", nil)

	assert.False(t, m.SendAlert(ctx, a1))
	assert.True(t, m.SendAlert(ctx, a2))
	assert.Len(t, capture.sent, 1)
}

func TestSeverityThresholdWindowExpires(t *testing.T) {
	cfg := config.DefaultAlertConfig()
	cfg.SeverityThresholds = map[types.Severity]int{types.SeverityError: 2}
	cfg.SuppressionWindow = 0
	m, _, clock := newTestManager(cfg)

	ctx := context.Background()
	assert.False(t, m.SendAlert(ctx, m.CreateAlert(types.SeverityError, "t", "d", "s", "c", nil)))

	// the first occurrence ages out of the one-hour window
	clock.Advance(2 * time.Hour)
	assert.False(t, m.SendAlert(ctx, m.CreateAlert(types.SeverityError, "t", "d", "s", "c", nil)))
	assert.True(t, m.SendAlert(ctx, m.CreateAlert(types.SeverityError, "t", "d", "s", "c", nil)))
}

func TestCriticalAlwaysPassesThreshold(t *testing.T) {
	cfg := config.DefaultAlertConfig()
	cfg.SeverityThresholds = map[types.Severity]int{
		types.SeverityError:    5,
		types.SeverityCritical: 9, // ignored: critical is always 1
	}
	m, capture, _ := newTestManager(cfg)

	ok := m.SendAlert(context.Background(),
		m.CreateAlert(types.SeverityCritical, "meltdown", "d", "s", "c", nil))

	assert.True(t, ok)
	assert.Len(t, capture.sent, 1)
}

func TestDispatchRequiresOneAcceptance(t *testing.T) {
	cfg := config.DefaultAlertConfig()
	cfg.SeverityThresholds = map[types.Severity]int{types.SeverityWarning: 1}
	cfg.EnabledChannels = nil

	failing := &captureChannel{name: "failing", fail: true}
	working := &captureChannel{name: "working"}
	m := NewManager(cfg, WithChannel(failing), WithChannel(working))

	assert.True(t, m.SendAlert(context.Background(), warnAlert(m, "t")))
	assert.Len(t, working.sent, 1)

	// all channels failing means the alert is not delivered
	working.fail = true
	assert.False(t, m.SendAlert(context.Background(), warnAlert(m, "other")))
	assert.Empty(t, m.History()[1:])
}

func TestHandlersInvokedWithIsolation(t *testing.T) {
	cfg := config.DefaultAlertConfig()
	cfg.SeverityThresholds = map[types.Severity]int{types.SeverityWarning: 1}
	m, _, _ := newTestManager(cfg)

	var categoryHits, wildcardHits int
	m.RegisterHandler("monitoring", func(types.Alert) { panic("handler bug") })
	m.RegisterHandler("monitoring", func(types.Alert) { categoryHits++ })
	m.RegisterHandler("*", func(types.Alert) { wildcardHits++ })

	assert.NotPanics(t, func() {
		assert.True(t, m.SendAlert(context.Background(), warnAlert(m, "t")))
	})
	assert.Equal(t, 1, categoryHits)
	assert.Equal(t, 1, wildcardHits)
}

func TestBusReceivesAlertSent(t *testing.T) {
	cfg := config.DefaultAlertConfig()
	cfg.SeverityThresholds = map[types.Severity]int{types.SeverityWarning: 1}
	cfg.EnabledChannels = nil

	bus := events.NewBus()
	var seen []string
	bus.Subscribe(events.EventAlertSent, 0, func(ev events.Event) {
		seen = append(seen, ev.Payload.(types.Alert).Title)
	})

	m := NewManager(cfg, WithChannel(&captureChannel{}), WithBus(bus))
	assert.True(t, m.SendAlert(context.Background(), warnAlert(m, "observed")))
	assert.Equal(t, []string{"observed"}, seen)
}

func TestGetAlertSummary(t *testing.T) {
	cfg := config.DefaultAlertConfig()
	cfg.SeverityThresholds = map[types.Severity]int{
		types.SeverityWarning: 1,
		types.SeverityError:   1,
	}
	cfg.SuppressionWindow = 0
	m, _, clock := newTestManager(cfg)
	ctx := context.Background()

	require.True(t, m.SendAlert(ctx, m.CreateAlert(types.SeverityWarning, "w1", "d", "git", "vcs", nil)))
	clock.Advance(30 * time.Minute)
	require.True(t, m.SendAlert(ctx, m.CreateAlert(types.SeverityError, "e1", "d", "quality", "code", nil)))
	clock.Advance(time.Minute)

	summary := m.GetAlertSummary(2)

	assert.Equal(t, 2, summary.TotalAlerts)
	assert.Equal(t, 1, summary.BySeverity["warning"])
	assert.Equal(t, 1, summary.BySeverity["error"])
	assert.Equal(t, 0, summary.BySeverity["critical"])
	assert.Equal(t, 1, summary.ByCategory["vcs"])
	assert.Equal(t, 1, summary.BySource["quality"])
	assert.Len(t, summary.Timeline, 2)

	total := 0
	for _, bucket := range summary.Timeline {
		total += bucket.Count
	}
	assert.Equal(t, 2, total)
}

func TestFileChannelAppendsNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts", "alerts.ndjson")
	ch, err := NewFileChannel(path)
	require.NoError(t, err)

	m, _, _ := newTestManager(config.DefaultAlertConfig())
	a := m.CreateAlert(types.SeverityInfo, "one", "d", "s", "c", nil)
	b := m.CreateAlert(types.SeverityInfo, "two", "d", "s", "c", nil)
	require.NoError(t, ch.Send(context.Background(), a))
	require.NoError(t, ch.Send(context.Background(), b))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var decoded types.Alert
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &decoded))
	assert.Equal(t, "one", decoded.Title)
	assert.Equal(t, a.AlertID, decoded.AlertID)
}

func TestConsoleChannelOutput(t *testing.T) {
	var buf strings.Builder
	ch := &ConsoleChannel{Out: &buf}

	m, _, _ := newTestManager(config.DefaultAlertConfig())
	a := m.CreateAlert(types.SeverityCritical, "meltdown", "core overheating", "sensor", "hw", nil)
	require.NoError(t, ch.Send(context.Background(), a))

	out := buf.String()
	assert.Contains(t, out, "CRITICAL")
	assert.Contains(t, out, "meltdown")
	assert.Contains(t, out, "core overheating")
	assert.Contains(t, out, "Source: sensor")
}

func TestWebhookChannel(t *testing.T) {
	var got types.Alert
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch, err := NewWebhookChannel(config.WebhookConfig{URL: srv.URL, BearerToken: "tok"})
	require.NoError(t, err)

	m, _, _ := newTestManager(config.DefaultAlertConfig())
	a := m.CreateAlert(types.SeverityError, "hook me", "d", "s", "c", nil)
	require.NoError(t, ch.Send(context.Background(), a))

	assert.Equal(t, a.AlertID, got.AlertID)
	assert.Equal(t, "Bearer tok", auth)
}

func TestWebhookChannelErrors(t *testing.T) {
	_, err := NewWebhookChannel(config.WebhookConfig{})
	assert.Error(t, err, "missing URL is a configuration error")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ch, err := NewWebhookChannel(config.WebhookConfig{URL: srv.URL})
	require.NoError(t, err)

	m, _, _ := newTestManager(config.DefaultAlertConfig())
	err = ch.Send(context.Background(), m.CreateAlert(types.SeverityError, "t", "d", "s", "c", nil))
	assert.Error(t, err)
}

func TestMisconfiguredChannelDisabledNotFatal(t *testing.T) {
	cfg := config.DefaultAlertConfig()
	cfg.EnabledChannels = []string{"webhook", "email", "file", "log"}
	// webhook has no URL, email has no config, file has no path

	m := NewManager(cfg)
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	assert.Equal(t, []string{"log"}, names)
}

func TestEmailChannelNoRecipientsIsNoOp(t *testing.T) {
	ch := NewEmailChannel(config.EmailConfig{SMTPHost: "smtp.example.com"})
	m, _, _ := newTestManager(config.DefaultAlertConfig())

	err := ch.Send(context.Background(), m.CreateAlert(types.SeverityInfo, "t", "d", "s", "c", nil))
	assert.NoError(t, err)
}
