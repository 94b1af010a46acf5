// Package drift detects mismatches between a project's declared
// specifications and its implementation. All checks are conservative
// text and structure heuristics: false negatives are acceptable, false
// positives should be rare.
package drift

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/driftwatch/driftwatch/internal/analysis"
	"github.com/driftwatch/driftwatch/internal/types"
)

// Detector runs independent drift checks against whatever specification
// sources the project carries.
type Detector struct {
	projectPath string
	analyzer    analysis.Analyzer
	sources     Sources
}

// NewDetector creates a detector and loads the project's specification
// sources once. Call ReloadSources to pick up spec changes.
func NewDetector(projectPath string, analyzer analysis.Analyzer) *Detector {
	return &Detector{
		projectPath: projectPath,
		analyzer:    analyzer,
		sources:     LoadSources(projectPath),
	}
}

// ReloadSources re-reads the specification sources from disk.
func (d *Detector) ReloadSources() {
	d.sources = LoadSources(d.projectPath)
}

// CheckDrift runs every applicable check over the whole project. Checks
// whose specification source is absent are skipped. Run twice against an
// unchanged project, the resulting drift set is identical.
func (d *Detector) CheckDrift(ctx context.Context) *types.DriftReport {
	report := &types.DriftReport{
		ProjectPath:  d.projectPath,
		Timestamp:    time.Now(),
		CheckedSpecs: append([]string{}, d.sources.Names()...),
	}

	corpus := d.collectSources(ctx)
	report.FilesChecked = len(corpus)

	if d.sources.Project != nil {
		d.checkFeatureDrift(report)
	}
	if d.sources.OpenAPI != nil {
		d.checkAPIDrift(report, corpus)
	}
	if d.sources.Architecture != "" {
		d.checkArchitectureDrift(report)
	}
	if d.sources.Readme != "" {
		d.checkDocumentationDrift(report, corpus)
	}

	// structure and dependency checks need no spec source
	d.checkCodeStructureDrift(report, corpus)
	d.checkDependencyDrift(report, corpus)

	// security and performance share one project analysis
	pa, err := d.analyzer.AnalyzeProject(ctx, d.projectPath)
	if err != nil {
		log.Error().Err(err).Msg("code analysis failed, skipping security and performance drift")
		return report
	}
	d.checkSecurityDrift(report, pa)
	d.checkPerformanceDrift(report, pa, corpus)

	return report
}

// CheckFile runs the per-file subset of checks against a single file,
// for on-demand use by the file watcher and the CLI.
func (d *Detector) CheckFile(ctx context.Context, path string) *types.DriftReport {
	report := &types.DriftReport{
		ProjectPath:  d.projectPath,
		Timestamp:    time.Now(),
		CheckedSpecs: []string{},
		FilesChecked: 1,
	}

	if !sourceExtensions[filepath.Ext(path)] {
		return report
	}

	content, err := os.ReadFile(path)
	if err != nil {
		log.Error().Err(err).Str("file", path).Msg("reading file for drift check")
		return report
	}

	if d.sources.OpenAPI != nil && looksLikeAPIFile(path) {
		d.checkAPIFileDrift(report, path, string(content))
		report.CheckedSpecs = append(report.CheckedSpecs, "openapi")
	}

	fa, err := d.analyzer.AnalyzeFile(ctx, path)
	if err != nil {
		log.Error().Err(err).Str("file", path).Msg("analyzing file for drift check")
		return report
	}

	for _, issue := range fa.SecurityIssues {
		report.Add(securityDriftItem(issue))
	}

	if fa.Metrics.AverageComplexity > complexityCeiling {
		report.Add(complexityDriftItem(path, fa.Metrics.AverageComplexity))
	}

	return report
}

// GetDriftSummary runs a full check and returns only its summary counts.
func (d *Detector) GetDriftSummary(ctx context.Context) types.DriftSummary {
	return d.CheckDrift(ctx).Summary()
}

// sourceFile is one implementation file loaded for text heuristics.
type sourceFile struct {
	path    string
	rel     string
	content string
}

var sourceExtensions = map[string]bool{
	".go": true,
	".py": true,
	".js": true,
	".ts": true,
}

var excludedDirs = map[string]bool{
	".git":         true,
	"vendor":       true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
}

// collectSources loads all implementation files once per detection pass so
// the text checks share a single read of the tree. Walk order is lexical,
// which keeps reports deterministic.
func (d *Detector) collectSources(ctx context.Context) []sourceFile {
	var corpus []sourceFile
	err := filepath.WalkDir(d.projectPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			if excludedDirs[entry.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !sourceExtensions[filepath.Ext(path)] {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(d.projectPath, path)
		corpus = append(corpus, sourceFile{path: path, rel: rel, content: string(data)})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("project", d.projectPath).Msg("walking project tree")
	}
	return corpus
}

func looksLikeAPIFile(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	for _, marker := range []string{"api", "routes", "endpoints", "handler"} {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}
