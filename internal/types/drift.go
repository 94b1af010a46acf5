package types

import "time"

// DriftType identifies the category of drift a check can detect.
type DriftType string

const (
	DriftCodeStructure DriftType = "code_structure"
	DriftAPIContract   DriftType = "api_contract"
	DriftDocumentation DriftType = "documentation"
	DriftFeatureSpec   DriftType = "feature_spec"
	DriftArchitecture  DriftType = "architecture"
	DriftDependency    DriftType = "dependency"
	DriftSecurity      DriftType = "security"
	DriftPerformance   DriftType = "performance"
)

// DriftSeverity classifies how serious a drift item is.
// Drift uses its own scale, distinct from issue/alert Severity.
type DriftSeverity string

const (
	DriftLow      DriftSeverity = "low"
	DriftMedium   DriftSeverity = "medium"
	DriftHigh     DriftSeverity = "high"
	DriftCritical DriftSeverity = "critical"
)

// IssueSeverity maps a drift severity onto the issue/alert severity scale.
func (s DriftSeverity) IssueSeverity() Severity {
	switch s {
	case DriftLow:
		return SeverityInfo
	case DriftMedium:
		return SeverityWarning
	case DriftHigh:
		return SeverityError
	case DriftCritical:
		return SeverityCritical
	default:
		return SeverityInfo
	}
}

// DriftItem is a single detected mismatch between a project's declared
// specification and its implementation.
type DriftItem struct {
	DriftType   DriftType     `json:"drift_type"`
	Description string        `json:"description"`
	Severity    DriftSeverity `json:"severity"`
	// FilePath locates the drift, when known
	FilePath string `json:"file_path,omitempty"`
	// LineNumber is 1-based, 0 when unknown
	LineNumber int    `json:"line_number,omitempty"`
	Expected   string `json:"expected,omitempty"`
	Actual     string `json:"actual,omitempty"`
	// SpecReference names the specification source that was violated
	SpecReference string `json:"spec_reference,omitempty"`
}

// DriftReport collects all drift found in one detection pass.
type DriftReport struct {
	ProjectPath  string      `json:"project_path"`
	Timestamp    time.Time   `json:"timestamp"`
	Drifts       []DriftItem `json:"drifts"`
	CheckedSpecs []string    `json:"checked_specs"`
	FilesChecked int         `json:"files_checked"`
}

// Add appends a drift item to the report.
func (r *DriftReport) Add(item DriftItem) {
	r.Drifts = append(r.Drifts, item)
}

// DriftSummary holds on-demand counts over a report. It is computed by
// Summary and never stored.
type DriftSummary struct {
	TotalDrifts int            `json:"total_drifts"`
	ByType      map[string]int `json:"by_type"`
	BySeverity  map[string]int `json:"by_severity"`
}

// Summary computes aggregate counts for the report.
func (r *DriftReport) Summary() DriftSummary {
	s := DriftSummary{
		TotalDrifts: len(r.Drifts),
		ByType:      make(map[string]int),
		BySeverity:  make(map[string]int),
	}
	for _, d := range r.Drifts {
		s.ByType[string(d.DriftType)]++
		s.BySeverity[string(d.Severity)]++
	}
	return s
}
