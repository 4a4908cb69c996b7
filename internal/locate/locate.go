// SPDX-License-Identifier: MIT

// Package locate resolves user-supplied run targets to concrete
// repositories and branches, and selects rebase candidates.
package locate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/skaphos/rebasekeeper/internal/forge"
	"github.com/skaphos/rebasekeeper/internal/gitx"
	"github.com/skaphos/rebasekeeper/internal/ledger"
	"github.com/skaphos/rebasekeeper/internal/model"
)

// ErrNotFound is returned when a target does not resolve to any known
// repository or branch.
var ErrNotFound = errors.New("target not found")

// ErrAmbiguousTarget is returned when a bare branch name exists in more
// than one known repository.
var ErrAmbiguousTarget = errors.New("ambiguous target")

// Target is the resolved form of a run argument. Branch may be empty when
// the target names a whole repository, and PRURL is set only for pull
// request URL targets whose head branch must be looked up remotely.
type Target struct {
	Repo   *model.Repository
	Branch string
	PRURL  string
}

// Resolve turns a raw target string into a Target. Accepted forms, in
// priority order: GitHub pull request URL, GitHub branch (tree) URL,
// repo:branch, bare repository name, bare branch name. Bare branch names
// are looked up in the ledger first and fall back to scanning the known
// repositories for a matching local branch.
func Resolve(ctx context.Context, r gitx.Runner, raw string, repos []model.Repository, led *ledger.Ledger) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, fmt.Errorf("%w: empty target", ErrNotFound)
	}

	if ref, err := forge.ParsePRURL(raw); err == nil {
		repo := findRepo(repos, ref.Repo)
		if repo == nil {
			return Target{}, fmt.Errorf("%w: no configured repository named %q for %s", ErrNotFound, ref.Repo, raw)
		}
		return Target{Repo: repo, PRURL: raw}, nil
	}

	if ref, err := forge.ParseBranchURL(raw); err == nil {
		repo := findRepo(repos, ref.Repo)
		if repo == nil {
			return Target{}, fmt.Errorf("%w: no configured repository named %q for %s", ErrNotFound, ref.Repo, raw)
		}
		return Target{Repo: repo, Branch: ref.Branch}, nil
	}

	if forge.IsGitHubURL(raw) {
		return Target{}, fmt.Errorf("%w: unsupported GitHub URL %q", ErrNotFound, raw)
	}

	if name, branch, ok := strings.Cut(raw, ":"); ok && name != "" && branch != "" {
		repo := findRepo(repos, name)
		if repo == nil {
			return Target{}, fmt.Errorf("%w: no configured repository named %q", ErrNotFound, name)
		}
		return Target{Repo: repo, Branch: branch}, nil
	}

	if repo := findRepo(repos, raw); repo != nil {
		return Target{Repo: repo}, nil
	}

	return resolveBranch(ctx, r, raw, repos, led)
}

// resolveBranch resolves a bare branch name. The ledger entry, when it
// names a single repository, is authoritative; otherwise every known
// repository is scanned for a local branch of that name.
func resolveBranch(ctx context.Context, r gitx.Runner, branch string, repos []model.Repository, led *ledger.Ledger) (Target, error) {
	if led != nil {
		if entry := led.Find(branch); entry != nil && entry.Repo != "" && entry.Repo != ledger.RepoMultiple {
			if repo := findRepo(repos, entry.Repo); repo != nil {
				return Target{Repo: repo, Branch: branch, PRURL: realPRURL(entry.PRURL)}, nil
			}
		}
	}

	var matches []*model.Repository
	for i := range repos {
		if gitx.BranchExists(ctx, r, repos[i].Path, branch) {
			matches = append(matches, &repos[i])
		}
	}
	switch len(matches) {
	case 0:
		return Target{}, fmt.Errorf("%w: branch %q not found in any configured repository", ErrNotFound, branch)
	case 1:
		return Target{Repo: matches[0], Branch: branch}, nil
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Name
		}
		return Target{}, fmt.Errorf("%w: branch %q exists in %s", ErrAmbiguousTarget, branch, strings.Join(names, ", "))
	}
}

func realPRURL(prURL string) string {
	if prURL == ledger.PRAuto || prURL == ledger.PRNone {
		return ""
	}
	return prURL
}

func findRepo(repos []model.Repository, name string) *model.Repository {
	for i := range repos {
		if strings.EqualFold(repos[i].Name, name) {
			return &repos[i]
		}
	}
	return nil
}

// Matcher decides whether a branch name looks like a feature branch.
type Matcher struct {
	Patterns []string
}

// DefaultMatcher covers the usual prefix conventions plus ticket-style
// names such as PROJ-123.
func DefaultMatcher() Matcher {
	return Matcher{Patterns: []string{
		"feature/**",
		"bugfix/**",
		"hotfix/**",
		"chore/**",
		"[A-Za-z]*-[0-9]*",
	}}
}

// NewMatcher returns a matcher for the given patterns, falling back to
// the defaults when none are configured.
func NewMatcher(patterns []string) Matcher {
	if len(patterns) == 0 {
		return DefaultMatcher()
	}
	return Matcher{Patterns: patterns}
}

// Match reports whether the branch name matches any configured pattern.
// Invalid patterns never match.
func (m Matcher) Match(branch string) bool {
	for _, pattern := range m.Patterns {
		if ok, err := doublestar.Match(pattern, branch); err == nil && ok {
			return true
		}
	}
	return false
}

// CandidateBranches returns the local branches of repo worth rebasing on
// top of base: everything except the protected branches, kept when it
// matches the feature predicate or carries commits not yet on base.
func CandidateBranches(ctx context.Context, r gitx.Runner, repo model.Repository, base string, m Matcher) ([]string, error) {
	branches, err := gitx.LocalBranches(ctx, r, repo.Path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, branch := range branches {
		if model.IsProtectedBranch(branch) || branch == base {
			continue
		}
		if m.Match(branch) {
			out = append(out, branch)
			continue
		}
		ahead, err := gitx.AheadCount(ctx, r, repo.Path, branch, base)
		if err != nil {
			continue
		}
		if ahead > 0 {
			out = append(out, branch)
		}
	}
	return out, nil
}
