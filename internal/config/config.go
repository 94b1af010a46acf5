// Package config holds the monitor and alerting configuration.
// Configuration is immutable for the process lifetime; the surrounding
// tooling loads it once at startup and hands it to the monitor.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/driftwatch/driftwatch/internal/types"
)

// MonitorConfig configures the background monitor.
type MonitorConfig struct {
	// CheckInterval is the pause between check cycles
	CheckInterval time.Duration `yaml:"check_interval"`
	// EnableGit enables git state monitoring
	EnableGit bool `yaml:"enable_git_monitoring"`
	// EnableCode enables code quality monitoring
	EnableCode bool `yaml:"enable_code_monitoring"`
	// EnablePerformance enables performance monitoring
	EnablePerformance bool `yaml:"enable_performance_monitoring"`
	// EnableDrift enables drift detection
	EnableDrift bool `yaml:"enable_drift_detection"`
	// AlertThreshold is the per-cycle issue count that triggers a batch alert
	AlertThreshold int `yaml:"alert_threshold"`
	// LogFile receives one JSON issue per line when set
	LogFile string `yaml:"log_file"`
	// MetricsFile receives the metrics snapshot each cycle when set
	MetricsFile string `yaml:"metrics_file"`
	// StopTimeout bounds how long Stop waits for the worker to exit
	StopTimeout time.Duration `yaml:"stop_timeout"`

	Alert AlertConfig `yaml:"alert"`
}

// AlertConfig configures the alert manager and its delivery channels.
type AlertConfig struct {
	// EnabledChannels lists active channels: log, file, console, email, webhook
	EnabledChannels []string `yaml:"enabled_channels"`
	// AlertFile is the newline-delimited JSON alert log (file channel)
	AlertFile string `yaml:"alert_file"`
	// Email configures the email channel; nil disables it
	Email *EmailConfig `yaml:"email"`
	// Webhook configures the webhook channel; nil disables it
	Webhook *WebhookConfig `yaml:"webhook"`
	// SeverityThresholds maps severity to the minimum recent-occurrence
	// count required before an alert of that severity is first delivered
	SeverityThresholds map[types.Severity]int `yaml:"severity_thresholds"`
	// RateLimits maps window names (per_minute, per_hour, per_day) to the
	// maximum alert count per category within that window
	RateLimits map[string]int `yaml:"rate_limits"`
	// SuppressionWindow is the cooldown during which a repeat of the same
	// (category, title) alert is silently dropped
	SuppressionWindow time.Duration `yaml:"suppression_window"`
}

// EmailConfig configures SMTP delivery.
type EmailConfig struct {
	SMTPHost     string   `yaml:"smtp_host"`
	SMTPPort     int      `yaml:"smtp_port"`
	SMTPUser     string   `yaml:"smtp_user"`
	SMTPPassword string   `yaml:"smtp_password"`
	FromEmail    string   `yaml:"from_email"`
	ToEmails     []string `yaml:"to_emails"`
	UseTLS       bool     `yaml:"use_tls"`
	// Timeout bounds the whole SMTP session, dial included
	Timeout time.Duration `yaml:"timeout"`
}

// WebhookConfig configures HTTP POST delivery.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`
	// BearerToken is sent as an Authorization header when set
	BearerToken string `yaml:"bearer_token"`
	// BasicUser/BasicPassword enable basic auth when BasicUser is set
	BasicUser     string `yaml:"basic_user"`
	BasicPassword string `yaml:"basic_password"`
}

// DefaultMonitorConfig returns the monitor defaults: five-minute cycles,
// all checks enabled, batch alert after three issues in one cycle.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		CheckInterval:     5 * time.Minute,
		EnableGit:         true,
		EnableCode:        true,
		EnablePerformance: true,
		EnableDrift:       true,
		AlertThreshold:    3,
		StopTimeout:       10 * time.Second,
		Alert:             DefaultAlertConfig(),
	}
}

// DefaultAlertConfig returns the alerting defaults.
func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		EnabledChannels: []string{"log", "file"},
		SeverityThresholds: map[types.Severity]int{
			types.SeverityInfo:     10,
			types.SeverityWarning:  5,
			types.SeverityError:    2,
			types.SeverityCritical: 1,
		},
		RateLimits: map[string]int{
			"per_minute": 10,
			"per_hour":   100,
			"per_day":    500,
		},
		SuppressionWindow: 5 * time.Minute,
	}
}

// Load reads a YAML config file, layering it over the defaults.
func Load(path string) (MonitorConfig, error) {
	cfg := DefaultMonitorConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the monitor cannot run with.
func (c *MonitorConfig) Validate() error {
	if c.CheckInterval <= 0 {
		return fmt.Errorf("check_interval must be positive, got %s", c.CheckInterval)
	}
	if c.AlertThreshold < 1 {
		return fmt.Errorf("alert_threshold must be at least 1, got %d", c.AlertThreshold)
	}
	for period := range c.Alert.RateLimits {
		switch period {
		case "per_minute", "per_hour", "per_day":
		default:
			return fmt.Errorf("unknown rate limit window %q", period)
		}
	}
	return nil
}

// ThresholdFor returns the configured severity threshold, defaulting to 1.
// Critical always has an effective threshold of 1.
func (c *AlertConfig) ThresholdFor(sev types.Severity) int {
	if sev == types.SeverityCritical {
		return 1
	}
	if t, ok := c.SeverityThresholds[sev]; ok && t > 0 {
		return t
	}
	return 1
}
