// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"github.com/skaphos/rebasekeeper/internal/gitx"
	"github.com/skaphos/rebasekeeper/internal/model"
)

// Snapshot captures the repository state exactly once, before anything is
// mutated. InitialBranch is what Restore returns to at the end of the run.
func (e *Engine) Snapshot(ctx context.Context, repo model.Repository) (model.RepoState, error) {
	branch, err := gitx.CurrentBranch(ctx, e.runner, repo.Path)
	if err != nil {
		return model.RepoState{}, fmt.Errorf("%s: %w", repo.Name, err)
	}
	dirty, err := gitx.IsDirty(ctx, e.runner, repo.Path)
	if err != nil {
		return model.RepoState{}, fmt.Errorf("%s: %w", repo.Name, err)
	}
	return model.RepoState{
		CurrentBranch:         branch,
		InitialBranch:         branch,
		HasUncommittedChanges: dirty,
	}, nil
}

// Update brings the base branch up to date: stash local changes when the
// tree is dirty, fetch, switch to the base branch, and fast-forward it.
// BaseAdvanced is set from a before/after tip comparison. Any failure here
// is fatal for the repository; no branch is rebased on a stale base.
func (e *Engine) Update(ctx context.Context, repo model.Repository, state *model.RepoState) error {
	base, ok := e.BaseBranch(ctx, repo)
	if !ok {
		return fmt.Errorf("%s: no base branch (master or main) found", repo.Name)
	}
	state.BaseBranch = base

	if state.HasUncommittedChanges {
		message := fmt.Sprintf("rebasekeeper auto-stash %s %s", state.CurrentBranch, e.opts.Now().Format("20060102T150405"))
		created, err := gitx.StashPush(ctx, e.runner, repo.Path, message)
		if err != nil {
			return fmt.Errorf("%s: %w", repo.Name, err)
		}
		state.StashCreated = created
		state.StashMessage = message
		if created {
			logger.Debugf("%s: stashed local changes (%s)", repo.Name, message)
		}
	}

	if err := gitx.Fetch(ctx, e.runner, repo.Path); err != nil {
		return fmt.Errorf("%s: %w", repo.Name, err)
	}

	if state.CurrentBranch != base {
		if err := gitx.Checkout(ctx, e.runner, repo.Path, base); err != nil {
			return fmt.Errorf("%s: %w", repo.Name, err)
		}
		state.CurrentBranch = base
	}

	before, err := gitx.RevParse(ctx, e.runner, repo.Path, base)
	if err != nil {
		return fmt.Errorf("%s: %w", repo.Name, err)
	}
	if err := gitx.PullFastForward(ctx, e.runner, repo.Path); err != nil {
		return fmt.Errorf("%s: %w", repo.Name, err)
	}
	after, err := gitx.RevParse(ctx, e.runner, repo.Path, base)
	if err != nil {
		return fmt.Errorf("%s: %w", repo.Name, err)
	}

	state.BaseAdvanced = before != after
	if state.BaseAdvanced {
		logger.Infof("%s: %s advanced %.8s -> %.8s", repo.Name, base, before, after)
	} else {
		logger.Debugf("%s: %s already up to date", repo.Name, base)
	}
	return nil
}

// Restore returns the repository to its initial branch and re-applies the
// stash created during Update. Best effort: failures are logged, never
// propagated, and a stash that fails to pop stays in the stash list.
func (e *Engine) Restore(ctx context.Context, repo model.Repository, state model.RepoState) {
	current, err := gitx.CurrentBranch(ctx, e.runner, repo.Path)
	onInitial := err == nil && current == state.InitialBranch
	if !onInitial && state.InitialBranch != "" {
		if err := gitx.Checkout(ctx, e.runner, repo.Path, state.InitialBranch); err != nil {
			logger.Warnf("%s: could not restore branch %s: %v", repo.Name, state.InitialBranch, err)
			if state.StashCreated {
				logger.Warnf("%s: leaving stash %q in place", repo.Name, state.StashMessage)
			}
			return
		}
	}
	if state.StashCreated {
		if err := gitx.StashPop(ctx, e.runner, repo.Path); err != nil {
			logger.Warnf("%s: could not pop stash %q: %v", repo.Name, state.StashMessage, err)
		}
	}
}
