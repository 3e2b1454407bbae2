// Package worktree is a thin facade: it wraps the underlying VCS's
// worktree primitives with the two non-trivial operations the scheduler
// and status sync actually need — admission-time creation under the git
// lock, and merge detection — while every mutating call funnels through
// internal/gitlock.
package worktree

import (
	"fmt"
	"os"
	"time"

	"github.com/tubular-health/mobius/internal/git"
	"github.com/tubular-health/mobius/internal/gitlock"
)

// VCS is the subset of internal/git.Client the Manager depends on,
// exposed as an interface so tests can substitute a fake.
type VCS interface {
	AddWorktree(repoDir, path, branch, base string) error
	RemoveWorktree(repoDir, path string) error
	ListWorktrees(repoDir string) ([]string, error)
	IsIssueMergedIntoBase(repoDir, branch, identifier, base string) (git.MergeStatus, error)
}

// Manager creates, removes, and enumerates worktrees for one repository.
type Manager struct {
	RepoDir     string
	LockTimeout time.Duration
	vcs         VCS
}

// New returns a Manager backed by the real git.Client.
func New(repoDir string) *Manager {
	return &Manager{RepoDir: repoDir, LockTimeout: gitlock.DefaultTimeout, vcs: git.NewClient()}
}

// NewWithVCS injects a VCS implementation, for tests.
func NewWithVCS(repoDir string, vcs VCS) *Manager {
	return &Manager{RepoDir: repoDir, LockTimeout: gitlock.DefaultTimeout, vcs: vcs}
}

// Create admits a task: acquires the repo's git lock, creates the
// worktree at path on branch (branching from base if new), and releases
// the lock before returning. Every VCS-mutating operation runs inside
// with_lock(repo_root).
func (m *Manager) Create(path, branch, base string) error {
	return gitlock.WithLock(m.RepoDir, m.LockTimeout, func() error {
		return m.vcs.AddWorktree(m.RepoDir, path, branch, base)
	})
}

// Remove releases any lock first, then best-effort removes the worktree.
func (m *Manager) Remove(path string) error {
	// If a stale lock was left inside the worktree by a crashed agent,
	// clear it before asking git to remove the tree; git refuses to
	// remove a worktree containing files it doesn't recognize as clean,
	// but an orphaned .git-lock directory is ours to clear.
	_ = os.RemoveAll(path + "/.git-lock")

	return gitlock.WithLock(m.RepoDir, m.LockTimeout, func() error {
		return m.vcs.RemoveWorktree(m.RepoDir, path)
	})
}

// Enumerate lists every worktree path currently registered.
func (m *Manager) Enumerate() ([]string, error) {
	return m.vcs.ListWorktrees(m.RepoDir)
}

// IsMerged reports whether identifier's branch has landed in base.
func (m *Manager) IsMerged(branch, identifier, base string) (git.MergeStatus, error) {
	return m.vcs.IsIssueMergedIntoBase(m.RepoDir, branch, identifier, base)
}

// SweepAbandoned removes any worktree on disk under root that does not
// match one of the currentIdentifiers — part of Fresh mode: clear
// abandoned worktrees left by a previous, uncleanly terminated run.
func (m *Manager) SweepAbandoned(root string, currentIdentifiers map[string]bool) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("worktree: read %s: %w", root, err)
	}
	for _, e := range entries {
		if !e.IsDir() || currentIdentifiers[e.Name()] {
			continue
		}
		if err := m.Remove(root + "/" + e.Name()); err != nil {
			return fmt.Errorf("worktree: sweep %s: %w", e.Name(), err)
		}
	}
	return nil
}
