// Package git provides the read-only git state used by the monitor to
// detect repository changes relative to its baseline.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// StateProvider exposes the repository state the monitor compares against
// its baseline. Implementations must be safe for concurrent use.
type StateProvider interface {
	// CurrentBranch returns the checked-out branch name.
	CurrentBranch(ctx context.Context, repoPath string) (string, error)

	// LatestCommit returns the hash of HEAD.
	LatestCommit(ctx context.Context, repoPath string) (string, error)

	// HasUncommittedChanges reports whether there are staged or unstaged changes.
	HasUncommittedChanges(ctx context.Context, repoPath string) (bool, error)
}

// Git implements StateProvider using the git CLI.
type Git struct {
	// gitPath is the path to the git executable
	gitPath string
}

// New creates a Git instance, verifying that git is available.
func New(ctx context.Context) (*Git, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, gitPath, "version")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}

	return &Git{gitPath: gitPath}, nil
}

// CurrentBranch returns the checked-out branch name.
func (g *Git) CurrentBranch(ctx context.Context, repoPath string) (string, error) {
	out, err := g.run(ctx, repoPath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolving current branch in %s: %w", repoPath, err)
	}
	return out, nil
}

// LatestCommit returns the hash of HEAD. An empty repository yields an error.
func (g *Git) LatestCommit(ctx context.Context, repoPath string) (string, error) {
	out, err := g.run(ctx, repoPath, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolving HEAD in %s: %w", repoPath, err)
	}
	return out, nil
}

// HasUncommittedChanges reports whether git status shows any changes,
// including untracked files.
func (g *Git) HasUncommittedChanges(ctx context.Context, repoPath string) (bool, error) {
	// --porcelain gives machine-readable output, one line per change
	out, err := g.run(ctx, repoPath, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("checking uncommitted changes in %s: %w", repoPath, err)
	}
	return out != "", nil
}

// IsRepository reports whether repoPath is inside a git work tree.
func (g *Git) IsRepository(ctx context.Context, repoPath string) bool {
	out, err := g.run(ctx, repoPath, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

func (g *Git) run(ctx context.Context, repoPath string, args ...string) (string, error) {
	full := append([]string{"-C", repoPath}, args...)
	cmd := exec.CommandContext(ctx, g.gitPath, full...)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
