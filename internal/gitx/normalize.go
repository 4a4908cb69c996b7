package gitx

import (
	"net/url"
	"strings"
)

// NormalizeURL converts a git remote URL into a canonical "host/owner/name"
// identity.
//
// Rules:
//   - Strip protocol (https://, git://, ssh://) and user (git@)
//   - Convert git@host:path to host/path
//   - Lowercase the host portion
//   - Strip trailing ".git"
//   - Strip trailing slashes
func NormalizeURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	var host, path string

	// Handle SSH shorthand: git@host:path
	if i := strings.Index(rawURL, "@"); i >= 0 && !strings.Contains(rawURL[:i], "://") {
		rest := rawURL[i+1:]
		if colonIdx := strings.Index(rest, ":"); colonIdx >= 0 {
			host = rest[:colonIdx]
			path = rest[colonIdx+1:]
		}
	} else {
		parsed, err := url.Parse(rawURL)
		if err != nil {
			return rawURL
		}
		host = parsed.Hostname()
		path = strings.TrimPrefix(parsed.Path, "/")
	}

	host = strings.ToLower(host)
	path = strings.TrimSuffix(path, ".git")
	path = strings.TrimRight(path, "/")

	if host == "" {
		return path
	}
	return host + "/" + path
}

// OwnerRepo extracts the remote "owner" and "name" pair from a git remote
// URL. Both are empty when the URL does not carry a two-segment path.
func OwnerRepo(rawURL string) (string, string) {
	normalized := NormalizeURL(rawURL)
	if normalized == "" {
		return "", ""
	}
	parts := strings.Split(normalized, "/")
	if len(parts) < 3 {
		return "", ""
	}
	// host/owner/name; deeper paths (GitLab subgroups) keep the last segment
	// as the repo name and everything between host and it as the owner.
	owner := strings.Join(parts[1:len(parts)-1], "/")
	name := parts[len(parts)-1]
	if owner == "" || name == "" {
		return "", ""
	}
	return owner, name
}
