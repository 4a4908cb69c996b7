// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/skaphos/rebasekeeper/internal/gitx"
	"github.com/skaphos/rebasekeeper/internal/model"
)

// WouldConflict simulates rebasing branch onto base without touching the
// working tree. It reports upToDate when the base tip is already an
// ancestor of the branch, or when the branch has no commits of its own
// beyond the base, and conflict when the merge simulation produces
// conflict markers.
func (e *Engine) WouldConflict(ctx context.Context, repo model.Repository, branch, base string) (conflict, upToDate bool, err error) {
	baseHash, err := gitx.RevParse(ctx, e.runner, repo.Path, base)
	if err != nil {
		return false, false, err
	}
	branchHash, err := gitx.RevParse(ctx, e.runner, repo.Path, branch)
	if err != nil {
		return false, false, err
	}
	mergeBase, err := gitx.MergeBase(ctx, e.runner, repo.Path, base, branch)
	if err != nil {
		return false, false, err
	}
	// A branch whose tip is the merge base has nothing to replay; running
	// the rebase anyway would move its pointer to the base tip.
	if mergeBase == baseHash || mergeBase == branchHash {
		return false, true, nil
	}
	conflict, err = gitx.MergeTreeConflicts(ctx, e.runner, repo.Path, mergeBase, branch, base)
	if err != nil {
		return false, false, err
	}
	return conflict, false, nil
}

// RebaseBranch rebases one branch onto the repository's base branch.
// Conflicts are detected by simulation before the rebase starts; a rebase
// that fails anyway is aborted and the repository is returned to the base
// branch with no rebase state left behind.
func (e *Engine) RebaseBranch(ctx context.Context, repo model.Repository, state *model.RepoState, branch string) model.BranchResult {
	result := model.BranchResult{Branch: branch}
	base := state.BaseBranch

	if model.IsProtectedBranch(branch) {
		result.Outcome = model.OutcomeRebaseFailed
		result.Error = "refusing to rebase protected branch " + branch
		return result
	}
	if !gitx.BranchExists(ctx, e.runner, repo.Path, branch) {
		result.Outcome = model.OutcomeNotFound
		return result
	}
	if !state.BaseAdvanced && !e.opts.ForceRebase {
		result.Outcome = model.OutcomeSkippedBaseUnchanged
		return result
	}

	conflict, upToDate, err := e.WouldConflict(ctx, repo, branch, base)
	if err != nil {
		result.Outcome = model.OutcomeRebaseFailed
		result.Error = err.Error()
		result.ErrorClass = gitx.ClassifyError(err)
		return result
	}
	if upToDate {
		result.Outcome = model.OutcomeUpToDate
		return result
	}
	if conflict {
		logger.Warnf("%s: %s would conflict with %s, skipping rebase", repo.Name, branch, base)
		result.Outcome = model.OutcomeConflictDetected
		return result
	}

	if err := gitx.Checkout(ctx, e.runner, repo.Path, branch); err != nil {
		result.Outcome = model.OutcomeCheckoutFailed
		result.Error = err.Error()
		result.ErrorClass = gitx.ClassifyError(err)
		return result
	}
	state.CurrentBranch = branch

	if err := gitx.Rebase(ctx, e.runner, repo.Path, base); err != nil {
		logger.Warnf("%s: rebase of %s onto %s failed: %v", repo.Name, branch, base, err)
		e.abortRebase(ctx, repo, base)
		state.CurrentBranch = base
		result.Outcome = model.OutcomeRebaseFailed
		result.Error = err.Error()
		result.ErrorClass = gitx.ClassifyError(err)
		return result
	}

	if e.opts.Push {
		if err := gitx.ForcePush(ctx, e.runner, repo.Path, e.opts.Remote, branch); err != nil {
			logger.Warnf("%s: rebased %s but push failed: %v", repo.Name, branch, err)
			result.Outcome = model.OutcomeRebasedPushFailed
			result.Error = err.Error()
			result.ErrorClass = gitx.ClassifyError(err)
			return result
		}
	}

	logger.Infof("%s: rebased %s onto %s", repo.Name, branch, base)
	result.Outcome = model.OutcomeRebased
	return result
}

// abortRebase unwinds a failed rebase. The abort is retried once after a
// short delay, the working tree is hard-reset, the base branch is checked
// out, and any rebase state directories that survived are removed. Every
// step runs regardless of earlier failures.
func (e *Engine) abortRebase(ctx context.Context, repo model.Repository, base string) {
	if err := gitx.RebaseAbort(ctx, e.runner, repo.Path); err != nil {
		logger.Debugf("%s: rebase --abort failed, retrying: %v", repo.Name, err)
		e.sleep(ctx, e.opts.AbortRetryDelay)
		if err := gitx.RebaseAbort(ctx, e.runner, repo.Path); err != nil {
			logger.Warnf("%s: rebase --abort failed twice: %v", repo.Name, err)
		}
	}
	if err := gitx.ResetHard(ctx, e.runner, repo.Path); err != nil {
		logger.Warnf("%s: reset --hard failed: %v", repo.Name, err)
	}
	if err := gitx.Checkout(ctx, e.runner, repo.Path, base); err != nil {
		logger.Warnf("%s: checkout %s failed: %v", repo.Name, base, err)
	}
	if gitx.RebaseInProgress(repo.Path) {
		if err := gitx.RemoveRebaseState(repo.Path); err != nil {
			logger.Warnf("%s: could not remove rebase state: %v", repo.Name, err)
		}
	}
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
