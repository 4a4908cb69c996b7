// Package forge provides the pull-request query surface against GitHub,
// abstracting away the underlying REST client.
package forge

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v84/github"
	"golang.org/x/oauth2"

	"github.com/skaphos/rebasekeeper/internal/ledger"
)

// PullRequest is the subset of PR state the core consumes.
type PullRequest struct {
	Number     int
	URL        string
	HeadBranch string
	Draft      bool
	Merged     bool
	// State is "open" or "closed" as reported by the API.
	State string
}

// Status maps the PR state onto the ledger status vocabulary.
func (p *PullRequest) Status() ledger.Status {
	switch {
	case p.Merged:
		return ledger.StatusMerged
	case p.Draft:
		return ledger.StatusDraft
	case p.State == "closed":
		return ledger.StatusClosed
	default:
		return ledger.StatusOpen
	}
}

// Client is the PR-hosting query surface consumed by the engine.
type Client interface {
	// PRForBranch returns the most recent PR whose head is branch, or nil
	// when no PR exists.
	PRForBranch(ctx context.Context, owner, repo, branch string) (*PullRequest, error)
	// PRByNumber returns the PR with the given number.
	PRByNumber(ctx context.Context, owner, repo string, number int) (*PullRequest, error)
}

// GitHubClient implements Client against the GitHub REST API.
type GitHubClient struct {
	rest *github.Client
}

// TokenFromEnv returns the GitHub token from GITHUB_TOKEN or GH_TOKEN.
func TokenFromEnv() string {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		return token
	}
	return os.Getenv("GH_TOKEN")
}

// NewGitHubClient creates a Client with rate-limit-aware transport and an
// optional token. Unauthenticated clients work for public repositories.
func NewGitHubClient(token string) (*GitHubClient, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(time.Minute, nil))
	if err != nil {
		return nil, fmt.Errorf("create rate limit waiter: %w", err)
	}

	httpClient := &http.Client{Transport: rateLimitWaiter}
	if token != "" {
		httpClient.Transport = &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		}
	}
	return &GitHubClient{rest: github.NewClient(httpClient)}, nil
}

// PRForBranch queries PRs by head branch across all states, newest first.
func (g *GitHubClient) PRForBranch(ctx context.Context, owner, repo, branch string) (*PullRequest, error) {
	opts := &github.PullRequestListOptions{
		Head:        owner + ":" + branch,
		State:       "all",
		Sort:        "created",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: 1},
	}
	prs, _, err := g.rest.PullRequests.List(ctx, owner, repo, opts)
	if err != nil {
		return nil, fmt.Errorf("list PRs for %s/%s@%s: %w", owner, repo, branch, err)
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return fromGitHub(prs[0]), nil
}

// PRByNumber fetches a single PR.
func (g *GitHubClient) PRByNumber(ctx context.Context, owner, repo string, number int) (*PullRequest, error) {
	pr, _, err := g.rest.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("get PR %s/%s#%d: %w", owner, repo, number, err)
	}
	return fromGitHub(pr), nil
}

func fromGitHub(pr *github.PullRequest) *PullRequest {
	return &PullRequest{
		Number:     pr.GetNumber(),
		URL:        pr.GetHTMLURL(),
		HeadBranch: pr.GetHead().GetRef(),
		Draft:      pr.GetDraft(),
		Merged:     pr.GetMerged() || pr.MergedAt != nil,
		State:      pr.GetState(),
	}
}
