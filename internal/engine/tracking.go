// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"fmt"
	"strings"

	logger "github.com/sirupsen/logrus"

	"github.com/skaphos/rebasekeeper/internal/forge"
	"github.com/skaphos/rebasekeeper/internal/gitx"
	"github.com/skaphos/rebasekeeper/internal/ledger"
	"github.com/skaphos/rebasekeeper/internal/model"
)

// StatusOf infers the tracking status of a branch. A known PR URL is
// authoritative; failing that, a branch whose tip is already contained in
// the base branch counts as merged; failing that, a live PR lookup by head
// branch; anything still undecided is active. Network failures degrade to
// local inference, never to an error.
func (e *Engine) StatusOf(ctx context.Context, repo model.Repository, branch string, entry *ledger.Entry) (ledger.Status, string) {
	if !gitx.BranchExists(ctx, e.runner, repo.Path, branch) {
		return ledger.StatusNotFound, ""
	}

	if entry != nil && entry.PRURL != ledger.PRAuto && entry.PRURL != ledger.PRNone && entry.PRURL != "" {
		if ref, err := forge.ParsePRURL(entry.PRURL); err == nil && e.forge != nil {
			pr, err := e.forge.PRByNumber(ctx, ref.Owner, ref.Repo, ref.Number)
			if err != nil {
				logger.Warnf("%s: could not query %s: %v", repo.Name, entry.PRURL, err)
			} else if pr != nil {
				return pr.Status(), pr.URL
			}
		}
	}

	if merged := e.mergedIntoBase(ctx, repo, branch); merged {
		return ledger.StatusMerged, ""
	}

	if e.forge != nil && repo.Slug() != "" {
		pr, err := e.forge.PRForBranch(ctx, repo.Owner, repo.RemoteName, branch)
		if err != nil {
			logger.Warnf("%s: could not look up PR for %s: %v", repo.Name, branch, err)
		} else if pr != nil {
			return pr.Status(), pr.URL
		}
	}

	return ledger.StatusActive, ""
}

// mergedIntoBase reports whether every commit of branch is reachable from
// the base branch tip.
func (e *Engine) mergedIntoBase(ctx context.Context, repo model.Repository, branch string) bool {
	base, ok := e.BaseBranch(ctx, repo)
	if !ok {
		return false
	}
	branchHash, err := gitx.RevParse(ctx, e.runner, repo.Path, branch)
	if err != nil {
		return false
	}
	mergeBase, err := gitx.MergeBase(ctx, e.runner, repo.Path, base, branch)
	if err != nil {
		return false
	}
	return mergeBase == branchHash
}

// TrackBranch refreshes the ledger entry for one branch. A branch that no
// longer exists locally is reported but leaves the ledger untouched.
func (e *Engine) TrackBranch(ctx context.Context, led *ledger.Ledger, repo model.Repository, branch string) (ledger.Status, error) {
	if model.IsProtectedBranch(branch) {
		return "", fmt.Errorf("refusing to track protected branch %q", branch)
	}
	status, prURL := e.StatusOf(ctx, repo, branch, led.Find(branch))
	if status == ledger.StatusNotFound {
		return status, nil
	}
	if err := led.Upsert(branch, repo.Name, prURL, status); err != nil {
		return status, err
	}
	return status, nil
}

// TrackResult is the outcome of refreshing one ledger entry.
type TrackResult struct {
	Branch string        `json:"branch"`
	Repo   string        `json:"repo,omitempty"`
	Status ledger.Status `json:"status"`
	Err    string        `json:"error,omitempty"`
}

// RefreshTracking refreshes every ledger entry against the known
// repositories. Entries whose repository can no longer be resolved are
// reported with an error and left as they are.
func (e *Engine) RefreshTracking(ctx context.Context, led *ledger.Ledger, repos []model.Repository) []TrackResult {
	var results []TrackResult
	for _, entry := range led.Entries() {
		repo, ok := e.resolveEntryRepo(ctx, entry, repos)
		if !ok {
			logger.Warnf("ledger entry %s: repository %q not found", entry.Branch, entry.Repo)
			results = append(results, TrackResult{
				Branch: entry.Branch,
				Repo:   entry.Repo,
				Status: entry.Status,
				Err:    fmt.Sprintf("repository %q not found", entry.Repo),
			})
			continue
		}
		status, err := e.TrackBranch(ctx, led, repo, entry.Branch)
		result := TrackResult{Branch: entry.Branch, Repo: repo.Name, Status: status}
		if err != nil {
			result.Err = err.Error()
		}
		results = append(results, result)
	}
	return results
}

// resolveEntryRepo maps a ledger entry to one of the known repositories.
// Entries recorded as "multiple" fall back to scanning for the branch.
func (e *Engine) resolveEntryRepo(ctx context.Context, entry ledger.Entry, repos []model.Repository) (model.Repository, bool) {
	if entry.Repo != "" && entry.Repo != ledger.RepoMultiple {
		for _, repo := range repos {
			if strings.EqualFold(repo.Name, entry.Repo) {
				return repo, true
			}
		}
		return model.Repository{}, false
	}
	for _, repo := range repos {
		if gitx.BranchExists(ctx, e.runner, repo.Path, entry.Branch) {
			return repo, true
		}
	}
	return model.Repository{}, false
}
