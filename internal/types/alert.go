package types

import "time"

// Alert is the unit of dispatch and history in the alerting subsystem.
// Alerts are immutable once created.
type Alert struct {
	// AlertID uniquely identifies the alert
	AlertID string `json:"alert_id"`
	// Timestamp is when the alert was created
	Timestamp time.Time `json:"timestamp"`
	// Severity classifies the alert
	Severity Severity `json:"severity"`
	// Title is a short one-line summary. Together with Category it forms
	// the deduplication key for suppression and severity thresholds.
	Title string `json:"title"`
	// Description is the full alert text
	Description string `json:"description"`
	// Source names the component that raised the alert
	Source string `json:"source"`
	// Category groups alerts for rate limiting and handler dispatch
	Category string `json:"category"`
	// Details carries alert-specific structured data
	Details map[string]any `json:"details"`
	// Metadata carries transport or routing hints
	Metadata map[string]any `json:"metadata"`
}

// AlertSummary is a read-only aggregation over recent alert history.
type AlertSummary struct {
	TotalAlerts int              `json:"total_alerts"`
	BySeverity  map[string]int   `json:"by_severity"`
	ByCategory  map[string]int   `json:"by_category"`
	BySource    map[string]int   `json:"by_source"`
	Timeline    []TimelineBucket `json:"timeline"`
}

// TimelineBucket counts alerts within a single hour of the summary window.
type TimelineBucket struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}
