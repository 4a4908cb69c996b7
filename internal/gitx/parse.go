package gitx

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePorcelainDirty parses `git status --porcelain=v1` output and
// reports whether the working tree has any local modifications (staged,
// unstaged, or untracked).
func ParsePorcelainDirty(output string) bool {
	for _, line := range strings.Split(output, "\n") {
		if len(line) >= 2 {
			return true
		}
	}
	return false
}

// HasConflictMarkers scans three-way `git merge-tree` output for conflict
// marker lines in the simulated merge result. Sections where both sides
// merged cleanly carry no markers, so only real content conflicts match.
func HasConflictMarkers(output string) bool {
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimPrefix(line, "+")
		if strings.HasPrefix(trimmed, "<<<<<<<") {
			return true
		}
	}
	return false
}

// ParseCount parses a single decimal count, as emitted by
// `git rev-list --count`.
func ParseCount(output string) (int, error) {
	output = strings.TrimSpace(output)
	if output == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(output)
	if err != nil {
		return 0, fmt.Errorf("unexpected rev-list count %q: %w", output, err)
	}
	return n, nil
}
