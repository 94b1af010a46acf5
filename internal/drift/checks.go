package drift

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"

	"github.com/driftwatch/driftwatch/internal/analysis"
	"github.com/driftwatch/driftwatch/internal/types"
)

// complexityCeiling is the average cyclomatic complexity above which a
// performance drift item is raised.
const complexityCeiling = 10.0

// checkFeatureDrift compares the declared feature spec against the
// persisted feature graph, which records the implementation's state.
func (d *Detector) checkFeatureDrift(report *types.DriftReport) {
	spec := d.sources.Project.Features

	implemented := map[string]FeatureNode{}
	if d.sources.FeatureGraph != nil {
		implemented = d.sources.FeatureGraph.Features
	}

	for _, id := range sortedKeys(spec) {
		fs := spec[id]
		node, ok := implemented[id]
		if !ok {
			report.Add(types.DriftItem{
				DriftType:     types.DriftFeatureSpec,
				Description:   fmt.Sprintf("Feature %q specified but not implemented", id),
				Severity:      types.DriftHigh,
				Expected:      "Feature: " + featureName(id, fs),
				Actual:        "Feature not found in implementation",
				SpecReference: "driftwatch.yaml",
			})
			continue
		}

		wantStatus := fs.Status
		if wantStatus == "" {
			wantStatus = "planned"
		}
		if node.Status != wantStatus {
			report.Add(types.DriftItem{
				DriftType:     types.DriftFeatureSpec,
				Description:   fmt.Sprintf("Feature %q status mismatch", id),
				Severity:      types.DriftMedium,
				Expected:      "Status: " + wantStatus,
				Actual:        "Status: " + node.Status,
				SpecReference: "driftwatch.yaml",
			})
		}
	}

	for _, id := range sortedKeys(implemented) {
		if _, ok := spec[id]; !ok {
			report.Add(types.DriftItem{
				DriftType:     types.DriftFeatureSpec,
				Description:   fmt.Sprintf("Feature %q implemented but not specified", id),
				Severity:      types.DriftMedium,
				Expected:      "Feature specification not found",
				Actual:        "Feature: " + implemented[id].Name,
				SpecReference: "driftwatch.yaml",
			})
		}
	}
}

var httpMethods = map[string]bool{
	"get": true, "post": true, "put": true, "delete": true,
	"patch": true, "head": true, "options": true,
}

// checkAPIDrift verifies that every (method, path) in the OpenAPI spec has
// a matching handler somewhere in the implementation.
func (d *Detector) checkAPIDrift(report *types.DriftReport, corpus []sourceFile) {
	for _, path := range sortedKeys(d.sources.OpenAPI.Paths) {
		methods := d.sources.OpenAPI.Paths[path]
		for _, method := range sortedKeys(methods) {
			if !httpMethods[strings.ToLower(method)] {
				continue
			}
			if endpointImplemented(corpus, method, path) {
				continue
			}
			report.Add(types.DriftItem{
				DriftType:     types.DriftAPIContract,
				Description:   fmt.Sprintf("API endpoint %s %s not implemented", strings.ToUpper(method), path),
				Severity:      types.DriftHigh,
				Expected:      strings.ToUpper(method) + " " + path,
				Actual:        "Endpoint not found",
				SpecReference: "openapi",
			})
		}
	}
}

// checkAPIFileDrift is the per-file variant used by CheckFile.
func (d *Detector) checkAPIFileDrift(report *types.DriftReport, filePath, content string) {
	single := []sourceFile{{path: filePath, content: content}}
	for _, path := range sortedKeys(d.sources.OpenAPI.Paths) {
		methods := d.sources.OpenAPI.Paths[path]
		for _, method := range sortedKeys(methods) {
			if !httpMethods[strings.ToLower(method)] {
				continue
			}
			if endpointImplemented(single, method, path) {
				continue
			}
			report.Add(types.DriftItem{
				DriftType:     types.DriftAPIContract,
				Description:   fmt.Sprintf("API endpoint %s %s not implemented in this file", strings.ToUpper(method), path),
				Severity:      types.DriftMedium,
				FilePath:      filePath,
				Expected:      strings.ToUpper(method) + " " + path,
				Actual:        "Endpoint not found in file",
				SpecReference: "openapi",
			})
		}
	}
}

// endpointImplemented looks for the route path together with its method in
// any implementation file. This matches router registrations, mux patterns
// and handler decorators without parsing any particular framework.
func endpointImplemented(corpus []sourceFile, method, path string) bool {
	method = strings.ToLower(method)
	for _, f := range corpus {
		content := strings.ToLower(f.content)
		if strings.Contains(content, strings.ToLower(path)) && strings.Contains(content, method) {
			return true
		}
	}
	return false
}

// checkDocumentationDrift extracts bullet claims from the README's
// Features section and verifies keyword overlap with the implementation.
func (d *Detector) checkDocumentationDrift(report *types.DriftReport, corpus []sourceFile) {
	for _, claim := range extractFeatureClaims(d.sources.Readme) {
		if claimImplemented(corpus, claim) {
			continue
		}
		report.Add(types.DriftItem{
			DriftType:     types.DriftDocumentation,
			Description:   fmt.Sprintf("README claims feature %q but implementation not found", claim),
			Severity:      types.DriftMedium,
			Expected:      "Feature: " + claim,
			Actual:        "Feature not found in codebase",
			SpecReference: "README.md",
		})
	}
}

// extractFeatureClaims collects bullet items under a "Features" heading.
func extractFeatureClaims(readme string) []string {
	var claims []string
	inFeatures := false
	for _, line := range strings.Split(readme, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			inFeatures = strings.Contains(trimmed, "Features")
			continue
		}
		if !inFeatures {
			continue
		}
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") || strings.HasPrefix(trimmed, "+ ") {
			claim := strings.TrimSpace(trimmed[2:])
			if claim != "" {
				claims = append(claims, claim)
			}
		}
	}
	return claims
}

var wordPattern = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// claimImplemented checks whether the claim's first three keywords all
// appear in some implementation file.
func claimImplemented(corpus []sourceFile, claim string) bool {
	words := wordPattern.FindAllString(strings.ToLower(claim), 3)
	if len(words) == 0 {
		return true
	}
	for _, f := range corpus {
		content := strings.ToLower(f.content)
		all := true
		for _, w := range words {
			if !strings.Contains(content, w) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

var componentMarkers = []string{"module:", "component:", "service:", "layer:"}

// checkArchitectureDrift compares component names declared in the
// architecture doc against the project's actual top-level packages.
func (d *Detector) checkArchitectureDrift(report *types.DriftReport) {
	expected := extractComponents(d.sources.Architecture)
	actual := d.actualComponents()

	for _, component := range expected {
		if actual[component] {
			continue
		}
		report.Add(types.DriftItem{
			DriftType:     types.DriftArchitecture,
			Description:   fmt.Sprintf("Expected component %q not found", component),
			Severity:      types.DriftMedium,
			Expected:      "Component: " + component,
			Actual:        "Component not found in project structure",
			SpecReference: "ARCHITECTURE.md",
		})
	}
}

// extractComponents pulls component names from marker lines like
// "Component: scheduler" in the architecture doc.
func extractComponents(doc string) []string {
	seen := map[string]bool{}
	var components []string
	for _, line := range strings.Split(doc, "\n") {
		lower := strings.ToLower(line)
		for _, marker := range componentMarkers {
			idx := strings.Index(lower, marker)
			if idx < 0 {
				continue
			}
			rest := strings.Fields(lower[idx+len(marker):])
			if len(rest) == 0 {
				continue
			}
			name := strings.Trim(rest[0], "`*_")
			if name != "" && !seen[name] {
				seen[name] = true
				components = append(components, name)
			}
		}
	}
	sort.Strings(components)
	return components
}

// actualComponents lists directories that contain source files: top-level
// directories plus the children of cmd, internal, pkg and src.
func (d *Detector) actualComponents() map[string]bool {
	components := map[string]bool{}

	addChildren := func(dir string) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, entry := range entries {
			if !entry.IsDir() || excludedDirs[entry.Name()] {
				continue
			}
			if dirHasSource(filepath.Join(dir, entry.Name())) {
				components[strings.ToLower(entry.Name())] = true
			}
		}
	}

	addChildren(d.projectPath)
	for _, parent := range []string{"cmd", "internal", "pkg", "src"} {
		addChildren(filepath.Join(d.projectPath, parent))
	}
	return components
}

func dirHasSource(dir string) bool {
	found := false
	filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() && excludedDirs[entry.Name()] {
			return filepath.SkipDir
		}
		if !entry.IsDir() && sourceExtensions[filepath.Ext(path)] {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// structureRule declares a file the project is expected to carry when its
// tree looks a certain way.
type structureRule struct {
	filename    string
	description string
	applies     func(d *Detector, corpus []sourceFile) bool
}

var structureRules = []structureRule{
	{"go.mod", "Go module definition", func(d *Detector, c []sourceFile) bool { return hasExt(c, ".go") }},
	{"requirements.txt", "Python dependencies", func(d *Detector, c []sourceFile) bool { return hasExt(c, ".py") }},
	{"setup.py", "Python package setup file", func(d *Detector, c []sourceFile) bool { return hasExt(c, ".py") }},
	{"package.json", "Node.js package file", func(d *Detector, c []sourceFile) bool { return hasExt(c, ".js") }},
	{"Dockerfile", "Docker configuration", func(d *Detector, c []sourceFile) bool {
		return fileExists(filepath.Join(d.projectPath, "docker-compose.yml"))
	}},
	{".gitignore", "Git ignore patterns", func(d *Detector, c []sourceFile) bool {
		return fileExists(filepath.Join(d.projectPath, ".git"))
	}},
}

// checkCodeStructureDrift applies the fixed rule table: file X is expected
// when the project looks like Y.
func (d *Detector) checkCodeStructureDrift(report *types.DriftReport, corpus []sourceFile) {
	for _, rule := range structureRules {
		path := filepath.Join(d.projectPath, rule.filename)
		if fileExists(path) || !rule.applies(d, corpus) {
			continue
		}
		report.Add(types.DriftItem{
			DriftType:   types.DriftCodeStructure,
			Description: fmt.Sprintf("Expected file %q not found", rule.filename),
			Severity:    types.DriftLow,
			FilePath:    path,
			Expected:    rule.description,
			Actual:      "File not found",
		})
	}
}

func hasExt(corpus []sourceFile, ext string) bool {
	for _, f := range corpus {
		if filepath.Ext(f.path) == ext {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

var goImportPattern = regexp.MustCompile(`(?m)^\s*(?:[\w.]+\s+)?"([^"]+)"`)

// checkDependencyDrift compares go.mod requirements against the imports
// actually present in the Go sources.
func (d *Detector) checkDependencyDrift(report *types.DriftReport, corpus []sourceFile) {
	modPath := filepath.Join(d.projectPath, "go.mod")
	data, err := os.ReadFile(modPath)
	if err != nil {
		return
	}
	mod, err := modfile.Parse("go.mod", data, nil)
	if err != nil || mod.Module == nil {
		return
	}

	imports := map[string]bool{}
	for _, f := range corpus {
		if filepath.Ext(f.path) != ".go" {
			continue
		}
		for _, imp := range goImports(f.content) {
			imports[imp] = true
		}
	}

	var required []string
	for _, req := range mod.Require {
		if req.Indirect {
			continue
		}
		required = append(required, req.Mod.Path)
	}
	sort.Strings(required)

	for _, reqPath := range required {
		used := false
		for imp := range imports {
			if imp == reqPath || strings.HasPrefix(imp, reqPath+"/") {
				used = true
				break
			}
		}
		if !used {
			report.Add(types.DriftItem{
				DriftType:     types.DriftDependency,
				Description:   fmt.Sprintf("Dependency %q declared but never imported", reqPath),
				Severity:      types.DriftLow,
				FilePath:      modPath,
				Expected:      "Dependency imported by the implementation",
				Actual:        "No import found",
				SpecReference: "go.mod",
			})
		}
	}
}

// goImports extracts import paths from a Go file without full parsing.
func goImports(content string) []string {
	var paths []string
	lines := strings.Split(content, "\n")
	inBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && trimmed == ")":
			inBlock = false
		case inBlock:
			if m := goImportPattern.FindStringSubmatch(trimmed); m != nil {
				paths = append(paths, m[1])
			}
		case strings.HasPrefix(trimmed, "import "):
			if m := goImportPattern.FindStringSubmatch(strings.TrimPrefix(trimmed, "import ")); m != nil {
				paths = append(paths, m[1])
			}
		}
	}
	return paths
}

// checkSecurityDrift converts analyzer security findings into drift items.
func (d *Detector) checkSecurityDrift(report *types.DriftReport, pa *analysis.ProjectAnalysis) {
	for _, issue := range pa.SecurityIssues {
		report.Add(securityDriftItem(issue))
	}
}

func securityDriftItem(issue analysis.SecurityIssue) types.DriftItem {
	severity := types.DriftHigh
	if issue.Severity == "HIGH" {
		severity = types.DriftCritical
	}
	return types.DriftItem{
		DriftType:   types.DriftSecurity,
		Description: "Security vulnerability: " + issue.VulnerabilityType,
		Severity:    severity,
		FilePath:    issue.FilePath,
		LineNumber:  issue.LineNumber,
		Expected:    "Secure code without vulnerabilities",
		Actual:      issue.Description,
	}
}

// checkPerformanceDrift applies pattern heuristics: per-item queries inside
// loops, blocking I/O in async functions, and high average complexity.
func (d *Detector) checkPerformanceDrift(report *types.DriftReport, pa *analysis.ProjectAnalysis, corpus []sourceFile) {
	for _, f := range corpus {
		lines := strings.Split(strings.ToLower(f.content), "\n")
		for i := 0; i+1 < len(lines); i++ {
			if strings.Contains(lines[i], "for ") && strings.Contains(lines[i+1], "query(") {
				report.Add(types.DriftItem{
					DriftType:   types.DriftPerformance,
					Description: "Potential N+1 query pattern detected",
					Severity:    types.DriftMedium,
					FilePath:    f.path,
					LineNumber:  i + 1,
					Expected:    "Batch query or join",
					Actual:      "Query inside loop",
				})
			}
		}

		if strings.Contains(f.content, "async def") {
			for _, pattern := range []string{"open(", ".read(", ".write("} {
				if strings.Contains(f.content, pattern) {
					report.Add(types.DriftItem{
						DriftType:   types.DriftPerformance,
						Description: fmt.Sprintf("Synchronous I/O %q in async context", pattern),
						Severity:    types.DriftMedium,
						FilePath:    f.path,
						Expected:    "Asynchronous I/O operation",
						Actual:      "Synchronous " + pattern,
					})
				}
			}
		}
	}

	if pa.Metrics.AverageComplexity > complexityCeiling {
		report.Add(complexityDriftItem(d.projectPath, pa.Metrics.AverageComplexity))
	}
}

func complexityDriftItem(path string, complexity float64) types.DriftItem {
	return types.DriftItem{
		DriftType:   types.DriftPerformance,
		Description: fmt.Sprintf("High code complexity: %.1f", complexity),
		Severity:    types.DriftMedium,
		FilePath:    path,
		Expected:    fmt.Sprintf("Complexity < %.0f", complexityCeiling),
		Actual:      fmt.Sprintf("Complexity: %.1f", complexity),
	}
}

func featureName(id string, fs FeatureSpec) string {
	if fs.Name != "" {
		return fs.Name
	}
	return id
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
