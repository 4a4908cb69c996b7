// Package gitx provides helpers for executing git commands and parsing
// their output. It shells out to the installed git binary.
package gitx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Runner executes git commands in a given repo directory.
// This interface allows mocking in tests.
type Runner interface {
	// Run executes a git command in the given directory and returns
	// combined stdout/stderr output.
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// GitRunner is the default Runner implementation that shells out to git.
type GitRunner struct {
	// GitBin is the path to the git binary. Defaults to "git".
	GitBin string
}

// Run executes a git command.
func (g *GitRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	bin := g.GitBin
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// ErrDetachedHead is returned when a repository has no current branch.
var ErrDetachedHead = errors.New("detached HEAD")

// IsRepo checks whether the given path is inside a git working tree.
func IsRepo(ctx context.Context, r Runner, dir string) bool {
	out, err := r.Run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// CurrentBranch returns the checked-out branch name.
func CurrentBranch(ctx context.Context, r Runner, dir string) (string, error) {
	out, err := r.Run(ctx, dir, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		return "", ErrDetachedHead
	}
	return strings.TrimSpace(out), nil
}

// IsDirty reports whether the working tree has staged, unstaged, or
// untracked changes.
func IsDirty(ctx context.Context, r Runner, dir string) (bool, error) {
	out, err := r.Run(ctx, dir, "status", "--porcelain=v1")
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return ParsePorcelainDirty(out), nil
}

// Fetch runs a safe fetch with pruning and submodule recursion disabled.
func Fetch(ctx context.Context, r Runner, dir string) error {
	out, err := r.Run(ctx, dir, "-c", "fetch.recurseSubmodules=false", "fetch", "--all", "--prune", "--no-recurse-submodules")
	if err != nil {
		return fmt.Errorf("git fetch: %s: %w", out, err)
	}
	return nil
}

// Checkout switches the working tree to the given branch.
func Checkout(ctx context.Context, r Runner, dir, branch string) error {
	out, err := r.Run(ctx, dir, "checkout", branch)
	if err != nil {
		return fmt.Errorf("git checkout %s: %s: %w", branch, out, err)
	}
	return nil
}

// PullFastForward updates the current branch with fast-forward-only
// semantics. A pull that would require a merge commit fails.
func PullFastForward(ctx context.Context, r Runner, dir string) error {
	out, err := r.Run(ctx, dir, "pull", "--ff-only", "--no-recurse-submodules")
	if err != nil {
		return fmt.Errorf("git pull --ff-only: %s: %w", out, err)
	}
	return nil
}

// RevParse resolves a ref to its commit hash.
func RevParse(ctx context.Context, r Runner, dir, ref string) (string, error) {
	out, err := r.Run(ctx, dir, "rev-parse", ref)
	if err != nil {
		return "", fmt.Errorf("git rev-parse %s: %w", ref, err)
	}
	return strings.TrimSpace(out), nil
}

// StashPush stashes local changes, including untracked files, under the
// given message. Returns false when there was nothing to stash.
func StashPush(ctx context.Context, r Runner, dir, message string) (bool, error) {
	out, err := r.Run(ctx, dir, "stash", "push", "--include-untracked", "-m", message)
	if err != nil {
		return false, fmt.Errorf("git stash push: %s: %w", out, err)
	}
	if strings.Contains(out, "No local changes to save") {
		return false, nil
	}
	return true, nil
}

// StashPop re-applies and drops the most recent stash entry.
func StashPop(ctx context.Context, r Runner, dir string) error {
	out, err := r.Run(ctx, dir, "stash", "pop")
	if err != nil {
		return fmt.Errorf("git stash pop: %s: %w", out, err)
	}
	return nil
}

// Rebase rebases the current branch onto the given ref.
func Rebase(ctx context.Context, r Runner, dir, onto string) error {
	out, err := r.Run(ctx, dir, "rebase", onto)
	if err != nil {
		return fmt.Errorf("git rebase %s: %s: %w", onto, out, err)
	}
	return nil
}

// RebaseAbort aborts an in-progress rebase.
func RebaseAbort(ctx context.Context, r Runner, dir string) error {
	out, err := r.Run(ctx, dir, "rebase", "--abort")
	if err != nil {
		return fmt.Errorf("git rebase --abort: %s: %w", out, err)
	}
	return nil
}

// RebaseInProgress reports whether git rebase state directories exist.
func RebaseInProgress(dir string) bool {
	for _, sub := range []string{"rebase-merge", "rebase-apply"} {
		if _, err := os.Stat(filepath.Join(dir, ".git", sub)); err == nil {
			return true
		}
	}
	return false
}

// RemoveRebaseState forcibly removes lingering rebase state directories.
// Last-resort cleanup for when rebase --abort did not clear them.
func RemoveRebaseState(dir string) error {
	var firstErr error
	for _, sub := range []string{"rebase-merge", "rebase-apply"} {
		if err := os.RemoveAll(filepath.Join(dir, ".git", sub)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ResetHard discards all working tree and index changes.
func ResetHard(ctx context.Context, r Runner, dir string) error {
	out, err := r.Run(ctx, dir, "reset", "--hard")
	if err != nil {
		return fmt.Errorf("git reset --hard: %s: %w", out, err)
	}
	return nil
}

// MergeBase returns the best common ancestor of two refs.
func MergeBase(ctx context.Context, r Runner, dir, a, b string) (string, error) {
	out, err := r.Run(ctx, dir, "merge-base", a, b)
	if err != nil {
		return "", fmt.Errorf("git merge-base %s %s: %w", a, b, err)
	}
	return strings.TrimSpace(out), nil
}

// MergeTreeConflicts simulates a three-way merge of branch and target on
// top of base without touching the working tree, and reports whether the
// simulated result contains conflict markers.
func MergeTreeConflicts(ctx context.Context, r Runner, dir, base, branch, target string) (bool, error) {
	out, err := r.Run(ctx, dir, "merge-tree", base, branch, target)
	if err != nil {
		return false, fmt.Errorf("git merge-tree: %s: %w", out, err)
	}
	return HasConflictMarkers(out), nil
}

// BranchExists reports whether a local branch ref exists.
func BranchExists(ctx context.Context, r Runner, dir, branch string) bool {
	_, err := r.Run(ctx, dir, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// LocalBranches returns all local branch names.
func LocalBranches(ctx context.Context, r Runner, dir string) ([]string, error) {
	out, err := r.Run(ctx, dir, "for-each-ref", "refs/heads", "--format=%(refname:short)")
	if err != nil {
		return nil, fmt.Errorf("git for-each-ref: %w", err)
	}
	var branches []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			branches = append(branches, line)
		}
	}
	return branches, nil
}

// AheadCount counts commits on branch that are not reachable from base.
func AheadCount(ctx context.Context, r Runner, dir, branch, base string) (int, error) {
	out, err := r.Run(ctx, dir, "rev-list", "--count", base+".."+branch)
	if err != nil {
		return 0, fmt.Errorf("git rev-list --count: %w", err)
	}
	return ParseCount(out)
}

// ForcePush force-pushes a branch to the given remote, refusing to
// clobber work that appeared upstream since the last fetch.
func ForcePush(ctx context.Context, r Runner, dir, remote, branch string) error {
	out, err := r.Run(ctx, dir, "push", "--force-with-lease", remote, branch)
	if err != nil {
		return fmt.Errorf("git push --force-with-lease %s %s: %s: %w", remote, branch, out, err)
	}
	return nil
}

// DeleteLocalBranch deletes a local branch, gracefully first and forcing
// only when force is set.
func DeleteLocalBranch(ctx context.Context, r Runner, dir, branch string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	out, err := r.Run(ctx, dir, "branch", flag, branch)
	if err != nil {
		return fmt.Errorf("git branch %s %s: %s: %w", flag, branch, out, err)
	}
	return nil
}

// DeleteRemoteBranch deletes a branch on the given remote.
func DeleteRemoteBranch(ctx context.Context, r Runner, dir, remote, branch string) error {
	out, err := r.Run(ctx, dir, "push", remote, "--delete", branch)
	if err != nil {
		return fmt.Errorf("git push %s --delete %s: %s: %w", remote, branch, out, err)
	}
	return nil
}

// RemoteBranchExists reports whether a branch exists on the given remote.
func RemoteBranchExists(ctx context.Context, r Runner, dir, remote, branch string) bool {
	_, err := r.Run(ctx, dir, "ls-remote", "--exit-code", "--heads", remote, branch)
	return err == nil
}

// RemoteURL returns the fetch URL configured for the given remote.
func RemoteURL(ctx context.Context, r Runner, dir, remote string) (string, error) {
	out, err := r.Run(ctx, dir, "remote", "get-url", remote)
	if err != nil {
		return "", fmt.Errorf("git remote get-url %s: %w", remote, err)
	}
	return strings.TrimSpace(out), nil
}
