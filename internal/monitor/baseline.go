package monitor

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/driftwatch/driftwatch/internal/analysis"
)

// Baseline is the reference snapshot all relative checks compare against.
// It is captured once before the first cycle and mutated only by an
// explicit Rebaseline call, never by the checks themselves.
type Baseline struct {
	CodeMetrics analysis.CodeMetrics `json:"code_metrics"`
	GitState    GitState             `json:"git_state"`
	Performance PerformanceSample    `json:"performance"`
	TakenAt     time.Time            `json:"taken_at"`
}

// GitState is the repository state recorded in the baseline.
type GitState struct {
	Branch     string `json:"branch"`
	LastCommit string `json:"last_commit"`
	FileCount  int    `json:"file_count"`
}

// PerformanceSample is one measurement of the probe the performance check
// runs: how long a full tree walk takes and the process's resident memory.
type PerformanceSample struct {
	// FileIOTime is the tree walk duration in seconds
	FileIOTime float64 `json:"file_io_time"`
	// MemoryUsage is the process RSS in bytes
	MemoryUsage uint64 `json:"memory_usage"`
}

var skipDirs = map[string]bool{
	".git":         true,
	"vendor":       true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
}

// captureBaseline takes the initial snapshot. Individual probes are
// best-effort: a failing probe leaves its section zeroed and is logged,
// so a project without git still gets a usable baseline.
func (m *Monitor) captureBaseline(ctx context.Context) (*Baseline, error) {
	if _, err := os.Stat(m.projectPath); err != nil {
		return nil, err
	}

	b := &Baseline{TakenAt: m.now()}

	if pa, err := m.analyzer.AnalyzeProject(ctx, m.projectPath); err != nil {
		log.Warn().Err(err).Msg("baseline code analysis failed")
	} else {
		b.CodeMetrics = pa.Metrics
	}

	if m.cfg.EnableGit && m.gitState != nil {
		if branch, err := m.gitState.CurrentBranch(ctx, m.projectPath); err != nil {
			log.Warn().Err(err).Msg("baseline git state unavailable")
		} else {
			b.GitState.Branch = branch
			if commit, err := m.gitState.LatestCommit(ctx, m.projectPath); err == nil {
				b.GitState.LastCommit = commit
			}
		}
	}

	sample, fileCount := m.measurePerformance(ctx)
	b.Performance = sample
	b.GitState.FileCount = fileCount

	log.Info().
		Str("project", m.projectPath).
		Int("files", fileCount).
		Float64("maintainability", b.CodeMetrics.MaintainabilityIndex).
		Msg("baseline captured")
	return b, nil
}

// measurePerformance times a stat-everything walk of the project tree and
// reads the process's resident memory. Returns the sample and the number of
// files seen.
func (m *Monitor) measurePerformance(ctx context.Context) (PerformanceSample, int) {
	start := time.Now()
	count := 0
	filepath.WalkDir(m.projectPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			if skipDirs[entry.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		entry.Info()
		count++
		return nil
	})

	sample := PerformanceSample{FileIOTime: time.Since(start).Seconds()}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfo(); err == nil {
			sample.MemoryUsage = mi.RSS
		}
	}
	return sample, count
}
