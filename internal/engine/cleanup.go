// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"errors"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"github.com/skaphos/rebasekeeper/internal/gitx"
	"github.com/skaphos/rebasekeeper/internal/ledger"
	"github.com/skaphos/rebasekeeper/internal/model"
)

// ErrCleanupNotConfirmed is returned when a destructive cleanup is
// requested without a dry-run or an explicit confirmation.
var ErrCleanupNotConfirmed = errors.New("cleanup requires --dry-run or confirmation")

// CleanupOptions configures a cleanup pass over the ledger.
type CleanupOptions struct {
	// DryRun reports what would be deleted without deleting anything.
	DryRun bool
	// Confirmed authorizes the deletions.
	Confirmed bool
	// Branch restricts the pass to a single branch.
	Branch string
	// DeleteLocal also deletes the local branch, gracefully first and
	// forced on a second attempt.
	DeleteLocal bool
}

// CleanupResult is the outcome for one ledger entry.
type CleanupResult struct {
	Branch string `json:"branch"`
	Repo   string `json:"repo,omitempty"`
	// LocalDeleted and RemoteDeleted report deletions performed, or planned
	// when DryRun is set.
	LocalDeleted  bool `json:"local_deleted"`
	RemoteDeleted bool `json:"remote_deleted"`
	// Removed reports that the ledger entry was dropped.
	Removed bool     `json:"removed"`
	DryRun  bool     `json:"dry_run,omitempty"`
	Errs    []string `json:"errors,omitempty"`
}

// OK reports whether the entry was handled without failures.
func (c CleanupResult) OK() bool { return len(c.Errs) == 0 }

// Cleanup deletes the branches the ledger marked CLEANUP_NEEDED. The
// ledger entry is removed only when every deletion attempted for it
// succeeded; a partial failure keeps the entry for the next pass. The
// caller is responsible for saving the ledger afterwards.
func (e *Engine) Cleanup(ctx context.Context, led *ledger.Ledger, repos []model.Repository, opts CleanupOptions) ([]CleanupResult, error) {
	if !opts.DryRun && !opts.Confirmed {
		return nil, ErrCleanupNotConfirmed
	}

	var results []CleanupResult
	for _, entry := range led.CleanupCandidates(opts.Branch) {
		if model.IsProtectedBranch(entry.Branch) {
			continue
		}
		result := CleanupResult{Branch: entry.Branch, DryRun: opts.DryRun}

		repo, ok := e.resolveEntryRepo(ctx, entry, repos)
		if !ok {
			result.Errs = append(result.Errs, fmt.Sprintf("repository %q not found", entry.Repo))
			results = append(results, result)
			continue
		}
		result.Repo = repo.Name

		localExists := gitx.BranchExists(ctx, e.runner, repo.Path, entry.Branch)
		remoteExists := gitx.RemoteBranchExists(ctx, e.runner, repo.Path, e.opts.Remote, entry.Branch)

		if opts.DryRun {
			result.LocalDeleted = opts.DeleteLocal && localExists
			result.RemoteDeleted = remoteExists
			result.Removed = true
			results = append(results, result)
			continue
		}

		if opts.DeleteLocal && localExists {
			err := gitx.DeleteLocalBranch(ctx, e.runner, repo.Path, entry.Branch, false)
			if err != nil {
				logger.Debugf("%s: graceful delete of %s failed, forcing: %v", repo.Name, entry.Branch, err)
				err = gitx.DeleteLocalBranch(ctx, e.runner, repo.Path, entry.Branch, true)
			}
			if err != nil {
				result.Errs = append(result.Errs, err.Error())
			} else {
				result.LocalDeleted = true
				logger.Infof("%s: deleted local branch %s", repo.Name, entry.Branch)
			}
		}

		if remoteExists {
			if err := gitx.DeleteRemoteBranch(ctx, e.runner, repo.Path, e.opts.Remote, entry.Branch); err != nil {
				result.Errs = append(result.Errs, err.Error())
			} else {
				result.RemoteDeleted = true
				logger.Infof("%s: deleted remote branch %s/%s", repo.Name, e.opts.Remote, entry.Branch)
			}
		}

		if result.OK() {
			led.Remove(entry.Branch)
			result.Removed = true
		}
		results = append(results, result)
	}
	return results, nil
}
