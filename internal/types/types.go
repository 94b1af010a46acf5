// Package types defines the shared data model for the monitoring pipeline:
// issues, alerts, drift reports, and the metrics the monitor accumulates.
package types

import "time"

// Severity classifies issues and alerts.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordering weight of a severity. Higher is more severe.
// Unknown severities rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityError:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Severities lists all alert severities in ascending order.
func Severities() []Severity {
	return []Severity{SeverityInfo, SeverityWarning, SeverityError, SeverityCritical}
}

// MonitoringStatus is the lifecycle state of the background monitor.
type MonitoringStatus string

const (
	StatusIdle    MonitoringStatus = "idle"
	StatusRunning MonitoringStatus = "running"
	StatusStopped MonitoringStatus = "stopped"
	StatusError   MonitoringStatus = "error"
)

// Issue is a single finding from a monitoring check. Issues are immutable
// once created; they drive the metrics counters and may escalate into alerts.
type Issue struct {
	// Timestamp is when the issue was detected
	Timestamp time.Time `json:"timestamp"`
	// Type is a stable machine-readable identifier (e.g. "git_uncommitted_changes")
	Type string `json:"type"`
	// Description is a human-readable summary
	Description string `json:"description"`
	// Severity classifies the issue
	Severity Severity `json:"severity"`
	// Details carries check-specific structured data
	Details map[string]any `json:"details"`
}

// MonitoringMetrics holds the counters accumulated by the monitor.
// A snapshot is persisted at the end of every check cycle.
type MonitoringMetrics struct {
	LastCheck               time.Time `json:"last_check"`
	ChecksCompleted         int       `json:"checks_completed"`
	IssuesDetected          int       `json:"issues_detected"`
	AlertsSent              int       `json:"alerts_sent"`
	CodeChanges             int       `json:"code_changes"`
	PerformanceDegradations int       `json:"performance_degradations"`
	DriftDetections         int       `json:"drift_detections"`
}
