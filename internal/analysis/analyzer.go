// Package analysis provides heuristic code metrics and a pattern-based
// security scan. It is the CodeAnalyzer collaborator the monitor and the
// drift detector consume; the heuristics favor stability over precision.
package analysis

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// CodeMetrics summarizes project or file level code quality.
type CodeMetrics struct {
	AverageComplexity    float64 `json:"average_complexity"`
	MaintainabilityIndex float64 `json:"maintainability_index"`
	TestCoverage         float64 `json:"test_coverage"`
	DocCoverage          float64 `json:"documentation_coverage"`
}

// SecurityIssue is a single finding from the security scan.
type SecurityIssue struct {
	VulnerabilityType string `json:"vulnerability_type"`
	Description       string `json:"description"`
	// Severity is the scanner's own scale: HIGH, MEDIUM or LOW
	Severity   string `json:"severity"`
	FilePath   string `json:"file_path"`
	LineNumber int    `json:"line_number"`
}

// FileAnalysis is the result of analyzing a single file.
type FileAnalysis struct {
	Path           string
	Lines          int
	Metrics        CodeMetrics
	SecurityIssues []SecurityIssue
}

// ProjectAnalysis is the result of analyzing a whole project.
type ProjectAnalysis struct {
	Metrics        CodeMetrics
	SecurityIssues []SecurityIssue
	FilesAnalyzed  int
}

// Analyzer is the code-analysis contract consumed by the monitor and the
// drift detector. Implementations must be safe for concurrent use.
type Analyzer interface {
	AnalyzeProject(ctx context.Context, root string) (*ProjectAnalysis, error)
	AnalyzeFile(ctx context.Context, path string) (*FileAnalysis, error)
}

// sourceExtensions are the file types the analyzer inspects.
var sourceExtensions = map[string]bool{
	".go": true,
	".py": true,
	".js": true,
	".ts": true,
}

// excludedDirs are never descended into.
var excludedDirs = map[string]bool{
	".git":         true,
	"vendor":       true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
}

// Heuristic implements Analyzer with line-based heuristics: branch keyword
// counting for complexity, comment ratios for documentation coverage, and a
// fixed pattern table for security findings.
type Heuristic struct{}

// NewHeuristic creates a heuristic analyzer.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// AnalyzeProject walks the project tree and aggregates per-file results.
func (h *Heuristic) AnalyzeProject(ctx context.Context, root string) (*ProjectAnalysis, error) {
	result := &ProjectAnalysis{}

	var (
		totalComplexity float64
		totalLines      int
		commentLines    int
		codeLines       int
		sourceFiles     int
		testFiles       int
	)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if excludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !sourceExtensions[filepath.Ext(path)] {
			return nil
		}

		if isTestFile(path) {
			testFiles++
			return nil
		}
		sourceFiles++

		fa, err := h.AnalyzeFile(ctx, path)
		if err != nil {
			// unreadable files are skipped, not fatal
			return nil
		}

		result.FilesAnalyzed++
		totalComplexity += fa.Metrics.AverageComplexity
		totalLines += fa.Lines
		stats := countLineKinds(path)
		commentLines += stats.comment
		codeLines += stats.code
		result.SecurityIssues = append(result.SecurityIssues, fa.SecurityIssues...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("analyzing project %s: %w", root, err)
	}

	if result.FilesAnalyzed > 0 {
		result.Metrics.AverageComplexity = totalComplexity / float64(result.FilesAnalyzed)
		avgLines := float64(totalLines) / float64(result.FilesAnalyzed)
		result.Metrics.MaintainabilityIndex = clamp(100-3*result.Metrics.AverageComplexity-avgLines/20, 0, 100)
	} else {
		result.Metrics.MaintainabilityIndex = 100
	}
	if sourceFiles > 0 {
		result.Metrics.TestCoverage = clamp(float64(testFiles)/float64(sourceFiles)*100, 0, 100)
	}
	if codeLines > 0 {
		result.Metrics.DocCoverage = clamp(float64(commentLines)/float64(codeLines)*100, 0, 100)
	}

	return result, nil
}

// AnalyzeFile computes per-file complexity and runs the security scan.
func (h *Heuristic) AnalyzeFile(ctx context.Context, path string) (*FileAnalysis, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	content := string(data)
	lines := strings.Split(content, "\n")

	fa := &FileAnalysis{
		Path:  path,
		Lines: len(lines),
	}

	funcs := countFunctions(content)
	branches := countBranches(content)
	if funcs < 1 {
		funcs = 1
	}
	fa.Metrics.AverageComplexity = 1 + float64(branches)/float64(funcs)
	fa.Metrics.MaintainabilityIndex = clamp(100-3*fa.Metrics.AverageComplexity-float64(len(lines))/20, 0, 100)

	stats := lineKinds(lines, filepath.Ext(path))
	if stats.code > 0 {
		fa.Metrics.DocCoverage = clamp(float64(stats.comment)/float64(stats.code)*100, 0, 100)
	}

	fa.SecurityIssues = scanSecurity(path, lines)

	return fa, nil
}

func isTestFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, "_test.go") ||
		strings.HasPrefix(base, "test_") ||
		strings.HasSuffix(strings.TrimSuffix(base, filepath.Ext(base)), ".test") ||
		strings.HasSuffix(strings.TrimSuffix(base, filepath.Ext(base)), ".spec")
}

var branchKeywords = []string{"if ", "for ", "while ", "case ", "elif ", "except ", "catch ", "&&", "||"}

func countBranches(content string) int {
	n := 0
	for _, kw := range branchKeywords {
		n += strings.Count(content, kw)
	}
	return n
}

var funcKeywords = []string{"func ", "def ", "function "}

func countFunctions(content string) int {
	n := 0
	for _, kw := range funcKeywords {
		n += strings.Count(content, kw)
	}
	return n
}

type lineStats struct {
	code    int
	comment int
}

func lineKinds(lines []string, ext string) lineStats {
	var s lineStats
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		switch {
		case strings.HasPrefix(trimmed, "//"), strings.HasPrefix(trimmed, "#") && ext == ".py":
			s.comment++
		default:
			s.code++
		}
	}
	return s
}

func countLineKinds(path string) lineStats {
	f, err := os.Open(path)
	if err != nil {
		return lineStats{}
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lineKinds(lines, filepath.Ext(path))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
