// Package monitor implements the background monitoring pipeline: a single
// worker runs periodic check cycles (git, code quality, performance, drift),
// converts findings into issues, escalates them through the alert manager,
// and persists a metrics snapshot each cycle.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/driftwatch/driftwatch/internal/alert"
	"github.com/driftwatch/driftwatch/internal/analysis"
	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/drift"
	"github.com/driftwatch/driftwatch/internal/events"
	"github.com/driftwatch/driftwatch/internal/git"
	"github.com/driftwatch/driftwatch/internal/types"
)

// recentIssueCount is how many issues the status surface exposes.
const recentIssueCount = 10

// errorCycleLimit is how many consecutive fully-failed cycles move the
// monitor into the error state.
const errorCycleLimit = 3

// Monitor owns the check-cycle lifecycle. Control methods (Start, Stop,
// GetStatus, Rebaseline) are safe to call from any goroutine while the
// worker runs.
type Monitor struct {
	projectPath string
	cfg         config.MonitorConfig

	gitState git.StateProvider
	analyzer analysis.Analyzer
	detector *drift.Detector
	alerts   *alert.Manager
	bus      *events.Bus

	mu           sync.Mutex
	status       types.MonitoringStatus
	metrics      types.MonitoringMetrics
	issues       []types.Issue
	baseline     *Baseline
	lastCommit   string
	failedCycles int

	cancel context.CancelFunc
	done   chan struct{}

	now func() time.Time
}

// Option overrides a monitor collaborator.
type Option func(*Monitor)

// WithGit sets the git state provider. Without one, git monitoring is
// skipped even when enabled.
func WithGit(g git.StateProvider) Option {
	return func(m *Monitor) { m.gitState = g }
}

// WithAnalyzer replaces the default heuristic code analyzer.
func WithAnalyzer(a analysis.Analyzer) Option {
	return func(m *Monitor) { m.analyzer = a }
}

// WithAlertManager replaces the monitor-owned alert manager.
func WithAlertManager(am *alert.Manager) Option {
	return func(m *Monitor) { m.alerts = am }
}

// WithBus sets the event bus issue and cycle events are published on.
func WithBus(b *events.Bus) Option {
	return func(m *Monitor) { m.bus = b }
}

// New builds a monitor for the project. The monitor owns its alert manager
// and event bus unless options supply them.
func New(projectPath string, cfg config.MonitorConfig, opts ...Option) *Monitor {
	m := &Monitor{
		projectPath: projectPath,
		cfg:         cfg,
		status:      types.StatusIdle,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.analyzer == nil {
		m.analyzer = analysis.NewHeuristic()
	}
	if m.bus == nil {
		m.bus = events.NewBus()
	}
	if m.alerts == nil {
		m.alerts = alert.NewManager(cfg.Alert, alert.WithBus(m.bus))
	}
	m.detector = drift.NewDetector(projectPath, m.analyzer)
	return m
}

// Bus returns the event bus the monitor publishes on.
func (m *Monitor) Bus() *events.Bus { return m.bus }

// Alerts returns the monitor-owned alert manager.
func (m *Monitor) Alerts() *alert.Manager { return m.alerts }

// Start captures the baseline if needed and launches the worker. Calling
// Start while already running is a no-op.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == types.StatusRunning {
		m.mu.Unlock()
		log.Debug().Msg("monitor already running")
		return nil
	}
	if m.baseline == nil {
		b, err := m.captureBaseline(ctx)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("capturing baseline: %w", err)
		}
		m.baseline = b
		m.lastCommit = b.GitState.LastCommit
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.status = types.StatusRunning
	m.failedCycles = 0
	m.mu.Unlock()

	log.Info().
		Str("project", m.projectPath).
		Dur("interval", m.cfg.CheckInterval).
		Msg("monitor started")
	go m.loop(runCtx, m.done)
	return nil
}

// Stop cancels the worker and blocks until it exits or StopTimeout
// elapses, then forces the state to stopped. Safe to call when not
// running, and idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	select {
	case <-done:
	case <-time.After(m.cfg.StopTimeout):
		log.Warn().Dur("timeout", m.cfg.StopTimeout).Msg("monitor worker did not confirm stop")
	}

	m.mu.Lock()
	m.status = types.StatusStopped
	m.mu.Unlock()
	log.Info().Msg("monitor stopped")
}

// loop runs check cycles until canceled. The inter-cycle wait is
// interruptible so Stop returns promptly instead of waiting out the
// interval.
func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	wait := time.NewTimer(m.cfg.CheckInterval)
	defer wait.Stop()

	for {
		m.runCycle(ctx)

		if !wait.Stop() {
			select {
			case <-wait.C:
			default:
			}
		}
		wait.Reset(m.cfg.CheckInterval)

		select {
		case <-ctx.Done():
			return
		case <-wait.C:
		}
	}
}

// RunOnce captures the baseline if needed and runs a single check cycle
// without starting the worker.
func (m *Monitor) RunOnce(ctx context.Context) error {
	m.mu.Lock()
	if m.baseline == nil {
		b, err := m.captureBaseline(ctx)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("capturing baseline: %w", err)
		}
		m.baseline = b
		m.lastCommit = b.GitState.LastCommit
	}
	m.mu.Unlock()

	m.runCycle(ctx)
	return nil
}

type checkFunc func(context.Context) error

// runCycle runs the enabled checks in fixed order, requests a batch alert
// when the cycle's issue count crosses the threshold, and persists metrics.
// A failing check is contained: it becomes a critical analysis_error issue
// and the cycle continues.
func (m *Monitor) runCycle(ctx context.Context) {
	m.mu.Lock()
	issuesBefore := len(m.issues)
	m.mu.Unlock()

	checks := []struct {
		name    string
		enabled bool
		fn      checkFunc
	}{
		{"git", m.cfg.EnableGit && m.gitState != nil, m.checkGit},
		{"code", m.cfg.EnableCode, m.checkCode},
		{"performance", m.cfg.EnablePerformance, m.checkPerformance},
		{"drift", m.cfg.EnableDrift, m.checkDrift},
	}

	attempted, failed := 0, 0
	for _, c := range checks {
		if !c.enabled {
			continue
		}
		attempted++
		if err := m.runCheck(ctx, c.name, c.fn); err != nil {
			failed++
		}
	}

	m.mu.Lock()
	cycle := append([]types.Issue(nil), m.issues[issuesBefore:]...)
	m.mu.Unlock()

	if len(cycle) >= m.cfg.AlertThreshold {
		m.sendBatchAlert(ctx, cycle)
	}

	m.mu.Lock()
	m.metrics.ChecksCompleted++
	m.metrics.LastCheck = m.now()
	enteredError := false
	if attempted > 0 && failed == attempted {
		m.failedCycles++
		if m.failedCycles >= errorCycleLimit && m.status != types.StatusError {
			m.status = types.StatusError
			enteredError = true
		}
	} else {
		m.failedCycles = 0
		if m.status == types.StatusError {
			m.status = types.StatusRunning
		}
	}
	failedCycles := m.failedCycles
	metrics := m.metrics
	m.mu.Unlock()

	if enteredError {
		m.sendSelfHealthAlert(ctx, failedCycles)
	}

	m.saveMetrics()
	m.bus.Publish(events.EventCycleDone, metrics)
}

// runCheck contains a single check's failure: errors and panics are logged
// and converted into a critical analysis_error issue. They never cross the
// cycle boundary.
func (m *Monitor) runCheck(ctx context.Context, name string, fn checkFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s check panicked: %v", name, r)
		}
		if err != nil {
			log.Error().Err(err).Str("check", name).Msg("check failed")
			m.addIssue(ctx, types.Issue{
				Type:        "analysis_error",
				Description: fmt.Sprintf("%s check failed: %v", name, err),
				Severity:    types.SeverityCritical,
				Details:     map[string]any{"check": name},
			})
		}
	}()
	return fn(ctx)
}

func (m *Monitor) checkGit(ctx context.Context) error {
	branch, err := m.gitState.CurrentBranch(ctx, m.projectPath)
	if err != nil {
		return fmt.Errorf("reading branch: %w", err)
	}
	commit, err := m.gitState.LatestCommit(ctx, m.projectPath)
	if err != nil {
		return fmt.Errorf("reading latest commit: %w", err)
	}
	dirty, err := m.gitState.HasUncommittedChanges(ctx, m.projectPath)
	if err != nil {
		return fmt.Errorf("reading working tree state: %w", err)
	}

	m.mu.Lock()
	baseBranch := m.baseline.GitState.Branch
	lastCommit := m.lastCommit
	if commit != lastCommit {
		m.lastCommit = commit
		m.metrics.CodeChanges++
	}
	m.mu.Unlock()

	if dirty {
		m.addIssue(ctx, types.Issue{
			Type:        "git_uncommitted_changes",
			Description: "Working tree has uncommitted changes",
			Severity:    types.SeverityInfo,
			Details:     map[string]any{"branch": branch},
		})
	}
	if baseBranch != "" && branch != baseBranch {
		m.addIssue(ctx, types.Issue{
			Type:        "git_branch_changed",
			Description: fmt.Sprintf("Branch changed from %q to %q", baseBranch, branch),
			Severity:    types.SeverityWarning,
			Details:     map[string]any{"baseline_branch": baseBranch, "current_branch": branch},
		})
	}
	if lastCommit != "" && commit != lastCommit {
		m.addIssue(ctx, types.Issue{
			Type:        "git_new_commit",
			Description: "New commit detected since last check",
			Severity:    types.SeverityInfo,
			Details:     map[string]any{"commit": commit},
		})
	}
	return nil
}

// Degradation margins for the code quality check. Small fluctuations stay
// below these so routine edits do not raise issues.
const (
	maintainabilityDropMargin = 10.0
	complexityRiseMargin      = 2.0
	coverageDropMargin        = 10.0
)

func (m *Monitor) checkCode(ctx context.Context) error {
	pa, err := m.analyzer.AnalyzeProject(ctx, m.projectPath)
	if err != nil {
		return fmt.Errorf("analyzing project: %w", err)
	}

	m.mu.Lock()
	base := m.baseline.CodeMetrics
	m.mu.Unlock()

	cur := pa.Metrics
	if cur.MaintainabilityIndex < base.MaintainabilityIndex-maintainabilityDropMargin {
		m.addIssue(ctx, types.Issue{
			Type: "maintainability_degradation",
			Description: fmt.Sprintf("Maintainability index dropped from %.1f to %.1f",
				base.MaintainabilityIndex, cur.MaintainabilityIndex),
			Severity: types.SeverityWarning,
			Details:  map[string]any{"baseline": base.MaintainabilityIndex, "current": cur.MaintainabilityIndex},
		})
	}
	if cur.AverageComplexity > base.AverageComplexity+complexityRiseMargin {
		m.addIssue(ctx, types.Issue{
			Type: "complexity_increase",
			Description: fmt.Sprintf("Average complexity rose from %.1f to %.1f",
				base.AverageComplexity, cur.AverageComplexity),
			Severity: types.SeverityWarning,
			Details:  map[string]any{"baseline": base.AverageComplexity, "current": cur.AverageComplexity},
		})
	}
	if cur.TestCoverage < base.TestCoverage-coverageDropMargin {
		m.addIssue(ctx, types.Issue{
			Type: "test_coverage_drop",
			Description: fmt.Sprintf("Test coverage dropped from %.1f%% to %.1f%%",
				base.TestCoverage, cur.TestCoverage),
			Severity: types.SeverityWarning,
			Details:  map[string]any{"baseline": base.TestCoverage, "current": cur.TestCoverage},
		})
	}
	return nil
}

func (m *Monitor) checkPerformance(ctx context.Context) error {
	sample, _ := m.measurePerformance(ctx)

	m.mu.Lock()
	base := m.baseline.Performance
	m.mu.Unlock()

	if base.FileIOTime > 0 && sample.FileIOTime > base.FileIOTime*2 {
		m.mu.Lock()
		m.metrics.PerformanceDegradations++
		m.mu.Unlock()
		m.addIssue(ctx, types.Issue{
			Type: "file_io_degradation",
			Description: fmt.Sprintf("File I/O time %.3fs exceeds twice the baseline %.3fs",
				sample.FileIOTime, base.FileIOTime),
			Severity: types.SeverityWarning,
			Details:  map[string]any{"baseline_seconds": base.FileIOTime, "current_seconds": sample.FileIOTime},
		})
	}
	if base.MemoryUsage > 0 && sample.MemoryUsage > base.MemoryUsage+base.MemoryUsage/2 {
		m.mu.Lock()
		m.metrics.PerformanceDegradations++
		m.mu.Unlock()
		m.addIssue(ctx, types.Issue{
			Type: "memory_increase",
			Description: fmt.Sprintf("Process memory %d bytes is more than 1.5x the baseline %d",
				sample.MemoryUsage, base.MemoryUsage),
			Severity: types.SeverityWarning,
			Details:  map[string]any{"baseline_bytes": base.MemoryUsage, "current_bytes": sample.MemoryUsage},
		})
	}
	return nil
}

func (m *Monitor) checkDrift(ctx context.Context) error {
	report := m.detector.CheckDrift(ctx)

	m.mu.Lock()
	m.metrics.DriftDetections += len(report.Drifts)
	m.mu.Unlock()

	m.escalateDrift(ctx, report)
	return nil
}

// escalateDrift converts high and critical drift into issues. Lower
// severities stay in the report for downstream consumers without raising
// issues.
func (m *Monitor) escalateDrift(ctx context.Context, report *types.DriftReport) {
	for _, d := range report.Drifts {
		if d.Severity != types.DriftHigh && d.Severity != types.DriftCritical {
			continue
		}
		m.addIssue(ctx, types.Issue{
			Type:        "drift_" + string(d.DriftType),
			Description: d.Description,
			Severity:    d.Severity.IssueSeverity(),
			Details: map[string]any{
				"drift_type": string(d.DriftType),
				"file_path":  d.FilePath,
				"expected":   d.Expected,
				"actual":     d.Actual,
			},
		})
	}
}

// addIssue records a finding: it updates the issue log and counters,
// writes the issue to the log file, and escalates critical issues into an
// immediate alert.
func (m *Monitor) addIssue(ctx context.Context, issue types.Issue) {
	if issue.Timestamp.IsZero() {
		issue.Timestamp = m.now()
	}
	if issue.Details == nil {
		issue.Details = map[string]any{}
	}

	m.mu.Lock()
	m.issues = append(m.issues, issue)
	m.metrics.IssuesDetected++
	m.mu.Unlock()

	m.logIssue(issue)
	m.appendIssueLog(issue)

	if issue.Severity == types.SeverityCritical {
		a := m.alerts.CreateAlert(issue.Severity, issue.Type, issue.Description,
			"monitor", "monitoring", issue.Details)
		if m.alerts.SendAlert(ctx, a) {
			m.mu.Lock()
			m.metrics.AlertsSent++
			m.mu.Unlock()
		}
	}

	m.bus.Publish(events.EventIssueAdded, issue)
}

func (m *Monitor) logIssue(issue types.Issue) {
	ev := log.Info()
	switch issue.Severity {
	case types.SeverityWarning:
		ev = log.Warn()
	case types.SeverityError, types.SeverityCritical:
		ev = log.Error()
	}
	ev.Str("type", issue.Type).Str("severity", string(issue.Severity)).Msg(issue.Description)
}

// appendIssueLog writes the issue as one JSON line to the configured log
// file. Log failures are logged and swallowed.
func (m *Monitor) appendIssueLog(issue types.Issue) {
	if m.cfg.LogFile == "" {
		return
	}
	data, err := json.Marshal(issue)
	if err != nil {
		log.Error().Err(err).Msg("encoding issue for log file")
		return
	}
	f, err := os.OpenFile(m.cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Error().Err(err).Str("file", m.cfg.LogFile).Msg("opening issue log")
		return
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Error().Err(err).Str("file", m.cfg.LogFile).Msg("writing issue log")
	}
}

func (m *Monitor) sendBatchAlert(ctx context.Context, cycle []types.Issue) {
	highest := types.SeverityInfo
	for _, issue := range cycle {
		if issue.Severity.Rank() > highest.Rank() {
			highest = issue.Severity
		}
	}
	a := m.alerts.CreateAlert(types.SeverityWarning, "Issue threshold exceeded",
		fmt.Sprintf("%d issues detected in one check cycle", len(cycle)),
		"monitor", "monitoring",
		map[string]any{
			"issue_count":      len(cycle),
			"threshold":        m.cfg.AlertThreshold,
			"highest_severity": string(highest),
		})
	if m.alerts.SendAlert(ctx, a) {
		m.mu.Lock()
		m.metrics.AlertsSent++
		m.mu.Unlock()
	}
}

func (m *Monitor) sendSelfHealthAlert(ctx context.Context, failedCycles int) {
	a := m.alerts.CreateAlert(types.SeverityCritical, "Monitoring degraded",
		fmt.Sprintf("%d consecutive check cycles failed completely", failedCycles),
		"monitor", "self_health",
		map[string]any{"failed_cycles": failedCycles})
	if m.alerts.SendAlert(ctx, a) {
		m.mu.Lock()
		m.metrics.AlertsSent++
		m.mu.Unlock()
	}
}

// issuesSummary is the aggregate block in the persisted metrics file.
type issuesSummary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
}

// metricsSnapshot is the persisted metrics file layout.
type metricsSnapshot struct {
	Metrics       types.MonitoringMetrics `json:"metrics"`
	IssuesSummary issuesSummary           `json:"issues_summary"`
}

// saveMetrics overwrites the metrics file with the current snapshot.
func (m *Monitor) saveMetrics() {
	if m.cfg.MetricsFile == "" {
		return
	}

	m.mu.Lock()
	snapshot := metricsSnapshot{
		Metrics: m.metrics,
		IssuesSummary: issuesSummary{
			Total:      len(m.issues),
			BySeverity: make(map[string]int),
		},
	}
	for _, sev := range types.Severities() {
		snapshot.IssuesSummary.BySeverity[string(sev)] = 0
	}
	for _, issue := range m.issues {
		snapshot.IssuesSummary.BySeverity[string(issue.Severity)]++
	}
	m.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("encoding metrics snapshot")
		return
	}
	if err := os.WriteFile(m.cfg.MetricsFile, data, 0644); err != nil {
		log.Error().Err(err).Str("file", m.cfg.MetricsFile).Msg("writing metrics snapshot")
	}
}

// StatusConfig is the configuration block of the status surface.
type StatusConfig struct {
	CheckInterval   string          `json:"check_interval"`
	AlertThreshold  int             `json:"alert_threshold"`
	EnabledMonitors map[string]bool `json:"enabled_monitors"`
}

// Status is the read-only snapshot surface for external tooling.
type Status struct {
	Status       types.MonitoringStatus  `json:"status"`
	Metrics      types.MonitoringMetrics `json:"metrics"`
	Config       StatusConfig            `json:"config"`
	RecentIssues []types.Issue           `json:"recent_issues"`
}

// GetStatus returns a snapshot of the monitor's state: lifecycle status,
// metrics, effective configuration, and the most recent issues.
func (m *Monitor) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	recent := m.issues
	if len(recent) > recentIssueCount {
		recent = recent[len(recent)-recentIssueCount:]
	}
	issues := make([]types.Issue, len(recent))
	copy(issues, recent)

	return Status{
		Status:  m.status,
		Metrics: m.metrics,
		Config: StatusConfig{
			CheckInterval:  m.cfg.CheckInterval.String(),
			AlertThreshold: m.cfg.AlertThreshold,
			EnabledMonitors: map[string]bool{
				"git":         m.cfg.EnableGit,
				"code":        m.cfg.EnableCode,
				"performance": m.cfg.EnablePerformance,
				"drift":       m.cfg.EnableDrift,
			},
		},
		RecentIssues: issues,
	}
}

// GetIssues returns the recorded issues, filtered by severity when one is
// given.
func (m *Monitor) GetIssues(severity types.Severity) []types.Issue {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []types.Issue
	for _, issue := range m.issues {
		if severity == "" || issue.Severity == severity {
			out = append(out, issue)
		}
	}
	return out
}

// Rebaseline recaptures the baseline snapshot and reloads the drift
// detector's specification sources.
func (m *Monitor) Rebaseline(ctx context.Context) error {
	b, err := m.captureBaseline(ctx)
	if err != nil {
		return fmt.Errorf("capturing baseline: %w", err)
	}

	m.mu.Lock()
	m.baseline = b
	m.lastCommit = b.GitState.LastCommit
	m.mu.Unlock()

	m.detector.ReloadSources()
	return nil
}

// CheckDrift runs an on-demand drift detection pass outside the cycle.
func (m *Monitor) CheckDrift(ctx context.Context) *types.DriftReport {
	return m.detector.CheckDrift(ctx)
}
