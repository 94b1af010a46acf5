package analysis

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestAnalyzeFileComplexity(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "main.go", `package main

// entry point
func main() {
	if true {
		for i := 0; i < 10; i++ {
		}
	}
}
`)

	a := NewHeuristic()
	fa, err := a.AnalyzeFile(context.Background(), path)
	require.NoError(t, err)

	// one function, two branch keywords
	assert.InDelta(t, 3.0, fa.Metrics.AverageComplexity, 0.01)
	assert.Greater(t, fa.Metrics.DocCoverage, 0.0)
}

func TestAnalyzeFileMissing(t *testing.T) {
	a := NewHeuristic()
	_, err := a.AnalyzeFile(context.Background(), filepath.Join(t.TempDir(), "nope.go"))
	assert.Error(t, err)
}

func TestSecurityScan(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.py", `import os
password = "hunter2secret"
os.system("rm -rf " + target)
url = "http://example.com/api"
local = "http://localhost:8080"
`)

	a := NewHeuristic()
	fa, err := a.AnalyzeFile(context.Background(), path)
	require.NoError(t, err)

	types := make(map[string]int)
	for _, issue := range fa.SecurityIssues {
		types[issue.VulnerabilityType]++
		assert.Equal(t, path, issue.FilePath)
		assert.Greater(t, issue.LineNumber, 0)
	}

	assert.Equal(t, 1, types["hardcoded_credential"])
	assert.Equal(t, 1, types["command_injection"])
	// localhost URL is exempt
	assert.Equal(t, 1, types["insecure_transport"])
}

func TestAnalyzeProject(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.go", "package app\n\nfunc Run() {\n\tif ready {\n\t\tgo serve()\n\t}\n}\n")
	writeFile(t, dir, "app_test.go", "package app\n\nfunc TestRun(t *testing.T) {}\n")
	writeFile(t, dir, "vendor/dep.go", "package dep\n") // excluded
	writeFile(t, dir, "notes.txt", "not source\n")

	a := NewHeuristic()
	pa, err := a.AnalyzeProject(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, pa.FilesAnalyzed)
	assert.Greater(t, pa.Metrics.AverageComplexity, 0.0)
	// one test file for one source file
	assert.InDelta(t, 100.0, pa.Metrics.TestCoverage, 0.01)
}

func TestAnalyzeProjectEmpty(t *testing.T) {
	a := NewHeuristic()
	pa, err := a.AnalyzeProject(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 0, pa.FilesAnalyzed)
	assert.Equal(t, 100.0, pa.Metrics.MaintainabilityIndex)
}
