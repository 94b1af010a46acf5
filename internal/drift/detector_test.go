package drift

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftwatch/driftwatch/internal/analysis"
	"github.com/driftwatch/driftwatch/internal/types"
)

func writeProjectFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newTestDetector(t *testing.T, dir string) *Detector {
	t.Helper()
	return NewDetector(dir, analysis.NewHeuristic())
}

func driftsOfType(report *types.DriftReport, dt types.DriftType) []types.DriftItem {
	var out []types.DriftItem
	for _, d := range report.Drifts {
		if d.DriftType == dt {
			out = append(out, d)
		}
	}
	return out
}

func TestFeatureStatusMismatch(t *testing.T) {
	// declared completed, implementation graph says in_progress
	dir := t.TempDir()
	writeProjectFile(t, dir, "driftwatch.yaml", `
features:
  billing:
    name: Billing
    status: completed
`)
	writeProjectFile(t, dir, ".driftwatch/feature_graph.json",
		`{"features": {"billing": {"name": "Billing", "status": "in_progress"}}}`)

	report := newTestDetector(t, dir).CheckDrift(context.Background())

	items := driftsOfType(report, types.DriftFeatureSpec)
	require.Len(t, items, 1)
	assert.Equal(t, types.DriftMedium, items[0].Severity)
	assert.Contains(t, items[0].Description, "status mismatch")
	assert.Equal(t, "Status: completed", items[0].Expected)
	assert.Equal(t, "Status: in_progress", items[0].Actual)

	// both sides of the comparison count as checked specs
	assert.ElementsMatch(t, []string{"project", "feature_graph"}, report.CheckedSpecs)
}

func TestFeatureUnimplementedAndUnspecified(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "driftwatch.yaml", `
features:
  search:
    name: Search
    status: completed
`)
	writeProjectFile(t, dir, ".driftwatch/feature_graph.json",
		`{"features": {"export": {"name": "Export", "status": "completed"}}}`)

	report := newTestDetector(t, dir).CheckDrift(context.Background())
	items := driftsOfType(report, types.DriftFeatureSpec)
	require.Len(t, items, 2)

	bySeverity := map[types.DriftSeverity]string{}
	for _, item := range items {
		bySeverity[item.Severity] = item.Description
	}
	assert.Contains(t, bySeverity[types.DriftHigh], "specified but not implemented")
	assert.Contains(t, bySeverity[types.DriftMedium], "implemented but not specified")
}

func TestMissingRequirementsFile(t *testing.T) {
	// Python source without a requirements file
	dir := t.TempDir()
	writeProjectFile(t, dir, "app.py", "def main():\n    pass\n")

	report := newTestDetector(t, dir).CheckDrift(context.Background())

	items := driftsOfType(report, types.DriftCodeStructure)
	var found *types.DriftItem
	for i := range items {
		if items[i].FilePath == filepath.Join(dir, "requirements.txt") {
			found = &items[i]
		}
	}
	require.NotNil(t, found, "expected a drift item for the missing requirements.txt")
	assert.Equal(t, types.DriftLow, found.Severity)
}

func TestAPIDrift(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "openapi.yaml", `
paths:
  /users:
    get:
      summary: list users
    post:
      summary: create user
  /health:
    get:
      summary: health check
`)
	writeProjectFile(t, dir, "routes.go", `package main

func routes() {
	mux.HandleFunc("GET /users", listUsers)
	mux.HandleFunc("POST /users", createUser)
}
`)

	report := newTestDetector(t, dir).CheckDrift(context.Background())

	items := driftsOfType(report, types.DriftAPIContract)
	require.Len(t, items, 1)
	assert.Equal(t, types.DriftHigh, items[0].Severity)
	assert.Contains(t, items[0].Description, "GET /health")
	assert.Contains(t, report.CheckedSpecs, "openapi")
}

func TestDocumentationDrift(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "README.md", `# App

## Features

- fast indexed search
- teleportation across dimensions

## Install
`)
	writeProjectFile(t, dir, "search.go", "package app\n\n// fast indexed search implementation\nfunc Search() {}\n")

	report := newTestDetector(t, dir).CheckDrift(context.Background())

	items := driftsOfType(report, types.DriftDocumentation)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Description, "teleportation")
	assert.Equal(t, types.DriftMedium, items[0].Severity)
}

func TestArchitectureDrift(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "ARCHITECTURE.md", `# Architecture

Component: scheduler
Component: ghostmodule
`)
	writeProjectFile(t, dir, "scheduler/loop.go", "package scheduler\n")

	report := newTestDetector(t, dir).CheckDrift(context.Background())

	items := driftsOfType(report, types.DriftArchitecture)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Description, "ghostmodule")
}

func TestDependencyDrift(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "go.mod", `module example.com/app

go 1.22

require (
	github.com/google/uuid v1.6.0
	github.com/unused/dep v1.0.0
)
`)
	writeProjectFile(t, dir, "main.go", `package main

import (
	"fmt"

	"github.com/google/uuid"
)

func main() { fmt.Println(uuid.NewString()) }
`)

	report := newTestDetector(t, dir).CheckDrift(context.Background())

	items := driftsOfType(report, types.DriftDependency)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Description, "github.com/unused/dep")
	assert.Equal(t, types.DriftLow, items[0].Severity)
}

func TestSecurityDrift(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "unsafe.py", "password = \"supersecret1\"\n")

	report := newTestDetector(t, dir).CheckDrift(context.Background())

	items := driftsOfType(report, types.DriftSecurity)
	require.NotEmpty(t, items)
	// HIGH analyzer findings become critical drift
	assert.Equal(t, types.DriftCritical, items[0].Severity)
	assert.Equal(t, filepath.Join(dir, "unsafe.py"), items[0].FilePath)
	assert.Equal(t, 1, items[0].LineNumber)
}

func TestPerformanceDrift(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "slow.py", `async def handler(items):
    for item in items:
        db.query(item)
    data = open("f").read()
`)

	report := newTestDetector(t, dir).CheckDrift(context.Background())

	items := driftsOfType(report, types.DriftPerformance)
	descriptions := map[string]bool{}
	for _, item := range items {
		descriptions[item.Description] = true
	}
	assert.True(t, descriptions["Potential N+1 query pattern detected"])

	foundSyncIO := false
	for desc := range descriptions {
		if len(desc) > 0 && desc[0] == 'S' {
			foundSyncIO = true
		}
	}
	assert.True(t, foundSyncIO, "expected a synchronous I/O drift item")
}

func TestCheckDriftDeterministic(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "driftwatch.yaml", `
features:
  a: {name: A, status: completed}
  b: {name: B, status: completed}
`)
	writeProjectFile(t, dir, "app.py", "def run():\n    pass\n")

	d := newTestDetector(t, dir)
	first := d.CheckDrift(context.Background())
	second := d.CheckDrift(context.Background())

	extract := func(r *types.DriftReport) []string {
		var out []string
		for _, item := range r.Drifts {
			out = append(out, item.Description)
		}
		sort.Strings(out)
		return out
	}
	assert.Equal(t, extract(first), extract(second))
	assert.NotEmpty(t, first.Drifts)
}

func TestCheckFileSkipsNonSource(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "notes.txt", "hello")

	report := newTestDetector(t, dir).CheckFile(context.Background(), filepath.Join(dir, "notes.txt"))
	assert.Empty(t, report.Drifts)
	assert.Equal(t, 1, report.FilesChecked)
}

func TestCheckFileSecurity(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "cfg.go", "package cfg\n\nvar apiKey = \"sk-1234567890\"\n")

	report := newTestDetector(t, dir).CheckFile(context.Background(), filepath.Join(dir, "cfg.go"))

	items := driftsOfType(report, types.DriftSecurity)
	require.NotEmpty(t, items)
	assert.Equal(t, types.DriftCritical, items[0].Severity)
}

func TestChecksSkippedWithoutSources(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "main.go", "package main\n\nfunc main() {}\n")
	writeProjectFile(t, dir, "go.mod", "module example.com/empty\n\ngo 1.22\n")

	report := newTestDetector(t, dir).CheckDrift(context.Background())

	assert.Empty(t, report.CheckedSpecs)
	assert.Empty(t, driftsOfType(report, types.DriftFeatureSpec))
	assert.Empty(t, driftsOfType(report, types.DriftAPIContract))
	assert.Empty(t, driftsOfType(report, types.DriftDocumentation))
}

func TestMalformedSpecSkipped(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "driftwatch.yaml", "features: [not: valid: yaml:\n")
	writeProjectFile(t, dir, "README.md", "# ok\n")
	writeProjectFile(t, dir, "main.go", "package main\n")

	d := newTestDetector(t, dir)
	report := d.CheckDrift(context.Background())

	// malformed project spec is absent; readme still evaluated
	assert.NotContains(t, report.CheckedSpecs, "project")
	assert.Contains(t, report.CheckedSpecs, "readme")
}

func TestGetDriftSummary(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "app.py", "def main():\n    pass\n")

	d := newTestDetector(t, dir)
	summary := d.GetDriftSummary(context.Background())
	want := d.CheckDrift(context.Background()).Summary()

	assert.Equal(t, want.TotalDrifts, summary.TotalDrifts)
	assert.Equal(t, want.ByType, summary.ByType)
	assert.Equal(t, want.BySeverity, summary.BySeverity)
}
