// SPDX-License-Identifier: MIT
// Package ledger handles parsing, mutation, and atomic persistence of the
// branch-tracking ledger file.
package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/skaphos/rebasekeeper/internal/model"
)

// Status is the tracked PR/merge state of a branch.
type Status string

const (
	StatusOpen    Status = "open"
	StatusMerged  Status = "merged"
	StatusClosed  Status = "closed"
	StatusDraft   Status = "draft"
	StatusActive  Status = "active"
	StatusUnknown Status = "unknown"
	// StatusNotFound is returned by status inference when the branch no
	// longer exists locally. It is never persisted.
	StatusNotFound Status = "not_found"
)

// Terminal reports whether the status never transitions again.
func (s Status) Terminal() bool {
	return s == StatusMerged || s == StatusClosed
}

// Well-known notes tags.
const (
	NoteCleanupNeeded = "CLEANUP_NEEDED"
	NoteAutoDetected  = "AUTO_DETECTED"
	NoteLegacy        = "LEGACY"
)

// RepoMultiple marks an entry not restricted to a single repository.
const RepoMultiple = "multiple"

// PRAuto and PRNone are the non-URL pr_url sentinel values.
const (
	PRAuto = "auto"
	PRNone = "none"
)

const dateLayout = "2006-01-02"

// Entry is a single tracked branch in the ledger.
type Entry struct {
	// Branch is the unique key within the ledger.
	Branch string
	// PRURL is "auto", "none", or a concrete PR URL.
	PRURL string
	// Status is the tracked state for the branch.
	Status Status
	// Repo is a repository name or "multiple".
	Repo string
	// CreatedDate is the YYYY-MM-DD date the entry was first recorded.
	CreatedDate string
	// Notes are comma-separated tags (CLEANUP_NEEDED, AUTO_DETECTED, ...).
	Notes []string
	// Legacy marks entries parsed from bare branch-name lines.
	Legacy bool
}

// HasNote reports whether the entry carries the given notes tag.
func (e Entry) HasNote(tag string) bool {
	for _, n := range e.Notes {
		if n == tag {
			return true
		}
	}
	return false
}

// NeedsCleanup reports whether the entry is a cleanup candidate.
func (e Entry) NeedsCleanup() bool {
	return e.HasNote(NoteCleanupNeeded) || e.Status == StatusMerged
}

// Line serializes the entry back into its enhanced-format ledger line.
func (e Entry) Line() string {
	return strings.Join([]string{
		e.Branch,
		e.PRURL,
		string(e.Status),
		e.Repo,
		e.CreatedDate,
		strings.Join(e.Notes, ","),
	}, "|")
}

// ParseLine parses one non-comment ledger line. Enhanced lines have exactly
// six pipe-delimited fields. Lines without a pipe are legacy: a bare branch
// name, or "repo:branch" restricting the branch to one repository. Lines
// with a pipe but the wrong field count are rejected.
func ParseLine(line string) (Entry, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Entry{}, fmt.Errorf("empty ledger line")
	}

	if strings.Contains(line, "|") {
		fields := strings.Split(line, "|")
		if len(fields) != 6 {
			return Entry{}, fmt.Errorf("malformed ledger line (want 6 fields, got %d): %q", len(fields), line)
		}
		entry := Entry{
			Branch:      fields[0],
			PRURL:       fields[1],
			Status:      Status(fields[2]),
			Repo:        fields[3],
			CreatedDate: fields[4],
		}
		if fields[5] != "" {
			entry.Notes = strings.Split(fields[5], ",")
		}
		return entry, nil
	}

	entry := Entry{
		Branch: line,
		PRURL:  PRAuto,
		Status: StatusUnknown,
		Repo:   RepoMultiple,
		Notes:  []string{NoteLegacy},
		Legacy: true,
	}
	if i := strings.Index(line, ":"); i > 0 {
		entry.Repo = line[:i]
		entry.Branch = line[i+1:]
	}
	return entry, nil
}

// line is one physical line of the ledger file. Comments and blank lines
// are preserved verbatim so a rewrite does not destroy user annotations.
type line struct {
	raw     string
	entry   *Entry
	comment bool
}

// Ledger is the typed, order-preserving view of one ledger file.
type Ledger struct {
	lines []line
}

// Load reads and parses the ledger file at path.
func Load(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	l := &Ledger{}
	raw := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(raw) == 1 && raw[0] == "" {
		raw = nil
	}
	for _, text := range raw {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			l.lines = append(l.lines, line{raw: text, comment: true})
			continue
		}
		entry, err := ParseLine(text)
		if err != nil {
			logger.Warnf("%v", err)
			l.lines = append(l.lines, line{raw: text, comment: true})
			continue
		}
		if existing := l.Find(entry.Branch); existing != nil {
			logger.Warnf("duplicate ledger entry for branch %s, keeping first", entry.Branch)
			continue
		}
		l.lines = append(l.lines, line{entry: &entry})
	}
	return l, nil
}

// Save writes the ledger atomically: the content goes to a temporary file
// in the same directory which is then renamed over the original, so a
// crash mid-write never leaves a truncated ledger.
func (l *Ledger) Save(path string) error {
	var b strings.Builder
	for _, ln := range l.lines {
		if ln.comment {
			b.WriteString(ln.raw)
		} else {
			b.WriteString(ln.entry.Line())
		}
		b.WriteByte('\n')
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".ledger-*")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(b.String()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

// Entries returns all tracked entries in file order.
func (l *Ledger) Entries() []Entry {
	var entries []Entry
	for _, ln := range l.lines {
		if ln.entry != nil {
			entries = append(entries, *ln.entry)
		}
	}
	return entries
}

// Find returns the entry for branch, or nil.
func (l *Ledger) Find(branch string) *Entry {
	for i := range l.lines {
		if l.lines[i].entry != nil && l.lines[i].entry.Branch == branch {
			return l.lines[i].entry
		}
	}
	return nil
}

// Upsert records the latest derived state for branch. Existing entries keep
// their CreatedDate; CLEANUP_NEEDED is appended the moment status becomes
// merged. New entries are dated today and tagged AUTO_DETECTED. Terminal
// statuses (merged, closed) never regress to an earlier state. Protected
// branches are rejected outright.
func (l *Ledger) Upsert(branch, repo, prURL string, status Status) error {
	if model.IsProtectedBranch(branch) {
		return fmt.Errorf("refusing to track protected branch %q", branch)
	}
	if status == StatusNotFound {
		return fmt.Errorf("refusing to persist status %q for branch %q", status, branch)
	}

	if existing := l.Find(branch); existing != nil {
		if existing.Status.Terminal() && status != existing.Status {
			logger.Debugf("keeping terminal status %s for %s", existing.Status, existing.Branch)
			status = existing.Status
		}
		becameMerged := status == StatusMerged && existing.Status != StatusMerged
		existing.Status = status
		if prURL != "" {
			existing.PRURL = prURL
		}
		if repo != "" && existing.Repo == RepoMultiple {
			existing.Repo = repo
		}
		if (becameMerged || status == StatusMerged) && !existing.HasNote(NoteCleanupNeeded) {
			existing.Notes = append(existing.Notes, NoteCleanupNeeded)
		}
		existing.Legacy = false
		return nil
	}

	entry := Entry{
		Branch:      branch,
		PRURL:       prURL,
		Status:      status,
		Repo:        repo,
		CreatedDate: time.Now().Format(dateLayout),
		Notes:       []string{NoteAutoDetected},
	}
	if entry.PRURL == "" {
		entry.PRURL = PRAuto
	}
	if entry.Repo == "" {
		entry.Repo = RepoMultiple
	}
	if status == StatusMerged {
		entry.Notes = append(entry.Notes, NoteCleanupNeeded)
	}
	l.lines = append(l.lines, line{entry: &entry})
	return nil
}

// Remove drops the entry for branch. Used by cleanup after successful
// branch deletion.
func (l *Ledger) Remove(branch string) {
	for i := range l.lines {
		if l.lines[i].entry != nil && l.lines[i].entry.Branch == branch {
			l.lines = append(l.lines[:i], l.lines[i+1:]...)
			return
		}
	}
}

// CleanupCandidates returns entries flagged CLEANUP_NEEDED or merged,
// optionally restricted to a single branch.
func (l *Ledger) CleanupCandidates(filterBranch string) []Entry {
	var candidates []Entry
	for _, e := range l.Entries() {
		if filterBranch != "" && e.Branch != filterBranch {
			continue
		}
		if model.IsProtectedBranch(e.Branch) {
			continue
		}
		if e.NeedsCleanup() {
			candidates = append(candidates, e)
		}
	}
	return candidates
}
