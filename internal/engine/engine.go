// SPDX-License-Identifier: MIT

// Package engine orchestrates the core operations: base updates, safe
// branch rebases, tracking refresh, and cleanup. It coordinates between
// gitx, locate, forge, and ledger.
package engine

import (
	"context"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/skaphos/rebasekeeper/internal/forge"
	"github.com/skaphos/rebasekeeper/internal/gitx"
	"github.com/skaphos/rebasekeeper/internal/ledger"
	"github.com/skaphos/rebasekeeper/internal/locate"
	"github.com/skaphos/rebasekeeper/internal/model"
)

const defaultAbortRetryDelay = 500 * time.Millisecond

// Options configures a run.
type Options struct {
	// Remote is the remote used for pushes and remote branch deletion.
	Remote string
	// Push force-pushes (with lease) after every successful rebase.
	Push bool
	// ForceRebase rebases even when the base branch did not advance.
	ForceRebase bool
	// Matcher selects feature branches during automatic candidate selection.
	Matcher locate.Matcher
	// AbortRetryDelay is the pause before the second rebase --abort attempt.
	AbortRetryDelay time.Duration
	// Now supplies timestamps for stash messages. Defaults to time.Now.
	Now func() time.Time
}

// Engine is the core orchestrator for RebaseKeeper operations.
type Engine struct {
	runner gitx.Runner
	forge  forge.Client
	opts   Options
}

// New creates an Engine. forgeClient may be nil, in which case status
// inference works from local git state only.
func New(runner gitx.Runner, forgeClient forge.Client, opts Options) *Engine {
	if runner == nil {
		runner = &gitx.GitRunner{}
	}
	if opts.Remote == "" {
		opts.Remote = "origin"
	}
	if len(opts.Matcher.Patterns) == 0 {
		opts.Matcher = locate.DefaultMatcher()
	}
	if opts.AbortRetryDelay == 0 {
		opts.AbortRetryDelay = defaultAbortRetryDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{runner: runner, forge: forgeClient, opts: opts}
}

// Runner returns the git runner used by the engine.
func (e *Engine) Runner() gitx.Runner { return e.runner }

// BaseBranch returns the repository's trunk branch: the first of the
// protected set that exists locally.
func (e *Engine) BaseBranch(ctx context.Context, repo model.Repository) (string, bool) {
	for _, name := range model.ProtectedBranches {
		if gitx.BranchExists(ctx, e.runner, repo.Path, name) {
			return name, true
		}
	}
	return "", false
}

// Task is one unit of work for Run: a repository plus an optional explicit
// branch list. An empty list means automatic candidate selection; Discover
// adds candidate selection on top of an explicit list, for batch runs
// seeded from the tracking ledger.
type Task struct {
	Repo     model.Repository
	Branches []string
	Discover bool
}

// Run processes tasks sequentially and aggregates the results. A canceled
// context stops the run between repositories; repositories already
// processed stay in the summary.
func (e *Engine) Run(ctx context.Context, tasks []Task) model.Summary {
	var summary model.Summary
	for _, task := range tasks {
		if ctx.Err() != nil {
			logger.Warnf("run interrupted, %d of %d repositories processed", len(summary.Repos), len(tasks))
			break
		}
		logger.Infof("processing %s", task.Repo.Path)
		summary.Repos = append(summary.Repos, e.ProcessRepo(ctx, task))
	}
	return summary
}

// SeedBranches returns the ledger branches a batch run must attempt for
// repo: entries pinned to the repository by name, plus unpinned entries
// whose branch exists locally. Entries in a terminal state or flagged for
// cleanup are not rebase work and are skipped.
func (e *Engine) SeedBranches(ctx context.Context, led *ledger.Ledger, repo model.Repository) []string {
	var seeds []string
	for _, entry := range led.Entries() {
		if model.IsProtectedBranch(entry.Branch) || entry.Status.Terminal() || entry.NeedsCleanup() {
			continue
		}
		switch {
		case strings.EqualFold(entry.Repo, repo.Name):
			seeds = append(seeds, entry.Branch)
		case entry.Repo == "" || entry.Repo == ledger.RepoMultiple:
			if gitx.BranchExists(ctx, e.runner, repo.Path, entry.Branch) {
				seeds = append(seeds, entry.Branch)
			}
		}
	}
	return seeds
}

// ProcessRepo updates the base branch of one repository and rebases the
// task's branches on top of it. The initial branch and any stashed changes
// are restored before returning, whatever happened in between.
func (e *Engine) ProcessRepo(ctx context.Context, task Task) model.RepoResult {
	repo := task.Repo
	result := model.RepoResult{Repo: repo}

	state, err := e.Snapshot(ctx, repo)
	if err != nil {
		result.Err = err.Error()
		result.ErrClass = gitx.ClassifyError(err)
		return result
	}

	// The closure sees the state mutations made below, in particular the
	// stash bookkeeping; deferring the call directly would snapshot the
	// pre-update state.
	defer func() { e.Restore(ctx, repo, state) }()

	if err := e.Update(ctx, repo, &state); err != nil {
		result.Err = err.Error()
		result.ErrClass = gitx.ClassifyError(err)
		return result
	}
	result.BaseAdvanced = state.BaseAdvanced

	branches := task.Branches
	if task.Discover || len(branches) == 0 {
		candidates, err := locate.CandidateBranches(ctx, e.runner, repo, state.BaseBranch, e.opts.Matcher)
		if err != nil {
			result.Err = err.Error()
			result.ErrClass = gitx.ClassifyError(err)
			return result
		}
		branches = mergeBranches(branches, candidates)
		if len(branches) == 0 {
			logger.Infof("%s: no feature branches to rebase", repo.Name)
		}
	}

	for _, branch := range branches {
		result.Branches = append(result.Branches, e.RebaseBranch(ctx, repo, &state, branch))
	}
	return result
}

// mergeBranches appends discovered branches to the seeded ones, keeping
// order and dropping duplicates.
func mergeBranches(seeds, discovered []string) []string {
	merged := make([]string, 0, len(seeds)+len(discovered))
	seen := make(map[string]struct{}, len(seeds)+len(discovered))
	for _, branch := range append(seeds, discovered...) {
		if _, ok := seen[branch]; ok {
			continue
		}
		seen[branch] = struct{}{}
		merged = append(merged, branch)
	}
	return merged
}
