// Package model defines the core data types used throughout RebaseKeeper.
package model

import "strings"

// ProtectedBranches is the fixed set of branches that are never rebased,
// force-pushed, or deleted, regardless of configuration.
var ProtectedBranches = []string{"master", "main"}

// IsProtectedBranch reports whether branch is in the protected set.
func IsProtectedBranch(branch string) bool {
	branch = strings.TrimSpace(branch)
	for _, p := range ProtectedBranches {
		if branch == p {
			return true
		}
	}
	return false
}

// Repository identifies a single local clone managed by a run.
type Repository struct {
	// Path is the absolute filesystem path to the working tree.
	Path string `json:"path"`
	// Name is the basename of Path.
	Name string `json:"name"`
	// Owner is the remote owner parsed from the origin URL ("" when unknown).
	Owner string `json:"owner,omitempty"`
	// RemoteName is the remote repository name parsed from the origin URL.
	RemoteName string `json:"remote_name,omitempty"`
}

// Slug returns the "owner/name" pair for the origin remote, or "" when the
// remote URL could not be parsed.
func (r Repository) Slug() string {
	if r.Owner == "" || r.RemoteName == "" {
		return ""
	}
	return r.Owner + "/" + r.RemoteName
}

// RepoState is the per-run snapshot and mutation record for one repository.
// InitialBranch is captured exactly once and never reassigned; StashCreated
// implies a stash entry exists that must be popped before the run ends.
type RepoState struct {
	// CurrentBranch is the branch checked out at snapshot time.
	CurrentBranch string
	// InitialBranch is the branch to restore at the end of processing.
	InitialBranch string
	// HasUncommittedChanges is the dirty flag captured at snapshot time.
	HasUncommittedChanges bool
	// StashCreated is set after a successful pre-update stash.
	StashCreated bool
	// StashMessage is the unique message used for the stash entry.
	StashMessage string
	// BaseBranch is the detected trunk branch (master or main).
	BaseBranch string
	// BaseAdvanced is set when the fast-forward pull moved the base branch.
	BaseAdvanced bool
}

// RebaseOutcome is the typed per-branch result category.
type RebaseOutcome string

const (
	// OutcomeRebased means the branch was rebased onto the base branch.
	OutcomeRebased RebaseOutcome = "rebased"
	// OutcomeRebasedPushFailed means the rebase succeeded but the follow-up
	// force-push did not.
	OutcomeRebasedPushFailed RebaseOutcome = "rebased_push_failed"
	// OutcomeConflictDetected means the pre-detector predicted conflicts and
	// the rebase was never started.
	OutcomeConflictDetected RebaseOutcome = "conflict_detected"
	// OutcomeRebaseFailed means the rebase started, failed, and was aborted.
	OutcomeRebaseFailed RebaseOutcome = "rebase_failed"
	// OutcomeUpToDate means the branch has no commits beyond the base tip.
	OutcomeUpToDate RebaseOutcome = "up_to_date"
	// OutcomeNotFound means the branch does not exist locally.
	OutcomeNotFound RebaseOutcome = "not_found"
	// OutcomeCheckoutFailed means the branch could not be checked out.
	OutcomeCheckoutFailed RebaseOutcome = "checkout_failed"
	// OutcomeSkippedBaseUnchanged means the base branch did not advance and
	// no force-rebase override was given.
	OutcomeSkippedBaseUnchanged RebaseOutcome = "skipped_base_unchanged"
)

// OK reports whether the outcome counts as a success for exit-code purposes.
// A push failure after a clean rebase is a warning, not a failure.
func (o RebaseOutcome) OK() bool {
	switch o {
	case OutcomeRebased, OutcomeUpToDate, OutcomeSkippedBaseUnchanged, OutcomeRebasedPushFailed:
		return true
	default:
		return false
	}
}

// BranchResult pairs a branch name with its outcome for one run.
type BranchResult struct {
	Branch string `json:"branch"`
	// Outcome is the typed result category.
	Outcome RebaseOutcome `json:"outcome"`
	// Error holds the raw failure text for failed/skipped outcomes.
	Error string `json:"error,omitempty"`
	// ErrorClass is a coarse error category for summary/exit handling.
	ErrorClass string `json:"error_class,omitempty"`
}

// RepoResult aggregates everything that happened to one repository.
type RepoResult struct {
	Repo Repository `json:"repo"`
	// BaseAdvanced reports whether the base branch moved during update.
	BaseAdvanced bool `json:"base_advanced"`
	// Branches holds one result per attempted branch.
	Branches []BranchResult `json:"branches"`
	// Err is the per-repository fatal error text (fetch/checkout/ff failure).
	Err string `json:"error,omitempty"`
	// ErrClass is the coarse category for Err.
	ErrClass string `json:"error_class,omitempty"`
}

// OK reports whether the repository processed without fatal or branch failures.
func (r RepoResult) OK() bool {
	if r.Err != "" {
		return false
	}
	for _, b := range r.Branches {
		if !b.Outcome.OK() {
			return false
		}
	}
	return true
}

// Summary is the run-wide aggregate printed at the end of a batch run.
type Summary struct {
	Repos []RepoResult `json:"repos"`
}

// Succeeded counts repositories that processed cleanly.
func (s Summary) Succeeded() int {
	n := 0
	for _, r := range s.Repos {
		if r.OK() {
			n++
		}
	}
	return n
}

// Failed counts repositories with a fatal error or a failed branch.
func (s Summary) Failed() int {
	return len(s.Repos) - s.Succeeded()
}

// FailedRepos returns the results for repositories that did not process
// cleanly, for the mandatory failure listing.
func (s Summary) FailedRepos() []RepoResult {
	var failed []RepoResult
	for _, r := range s.Repos {
		if !r.OK() {
			failed = append(failed, r)
		}
	}
	return failed
}
