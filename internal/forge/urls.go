package forge

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// PRRef identifies a pull request by repository and number.
type PRRef struct {
	Owner  string
	Repo   string
	Number int
}

// BranchRef identifies a branch by repository.
type BranchRef struct {
	Owner  string
	Repo   string
	Branch string
}

// ParsePRURL parses a GitHub PR URL of the form
// https://github.com/<owner>/<repo>/pull/<number>.
func ParsePRURL(raw string) (PRRef, error) {
	segments, err := githubPathSegments(raw)
	if err != nil {
		return PRRef{}, err
	}
	if len(segments) < 4 || segments[2] != "pull" {
		return PRRef{}, fmt.Errorf("not a PR URL: %s", raw)
	}
	number, err := strconv.Atoi(segments[3])
	if err != nil {
		return PRRef{}, fmt.Errorf("invalid PR number in %s: %w", raw, err)
	}
	return PRRef{Owner: segments[0], Repo: segments[1], Number: number}, nil
}

// ParseBranchURL parses a GitHub branch URL of the form
// https://github.com/<owner>/<repo>/tree/<branch...>.
func ParseBranchURL(raw string) (BranchRef, error) {
	segments, err := githubPathSegments(raw)
	if err != nil {
		return BranchRef{}, err
	}
	if len(segments) < 4 || segments[2] != "tree" {
		return BranchRef{}, fmt.Errorf("not a branch URL: %s", raw)
	}
	// Branch names may contain slashes (feature/login).
	return BranchRef{
		Owner:  segments[0],
		Repo:   segments[1],
		Branch: strings.Join(segments[3:], "/"),
	}, nil
}

// IsGitHubURL reports whether raw looks like a github.com web URL.
func IsGitHubURL(raw string) bool {
	_, err := githubPathSegments(raw)
	return err == nil
}

func githubPathSegments(raw string) ([]string, error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return nil, fmt.Errorf("not a URL: %s", raw)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse URL %s: %w", raw, err)
	}
	if !strings.EqualFold(parsed.Hostname(), "github.com") {
		return nil, fmt.Errorf("not a github.com URL: %s", raw)
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) < 2 || segments[0] == "" || segments[1] == "" {
		return nil, fmt.Errorf("URL has no owner/repo path: %s", raw)
	}
	return segments, nil
}
