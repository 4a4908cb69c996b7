// Package discovery walks a projects root to find git repositories when no
// explicit project list is configured.
package discovery

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/skaphos/rebasekeeper/internal/config"
	"github.com/skaphos/rebasekeeper/internal/gitx"
	"github.com/skaphos/rebasekeeper/internal/model"
)

// Options configures the discovery scan.
type Options struct {
	Root string
	// Exclude holds doublestar patterns of paths to skip.
	Exclude []string
	// RemoteName is used to derive owner/name from the remote URL.
	RemoteName string
	Runner     gitx.Runner
}

// Scan walks the root and returns every git repository found, sorted by
// path. It does not recurse into repositories or excluded directories.
func Scan(ctx context.Context, opts Options) ([]model.Repository, error) {
	if opts.Runner == nil {
		opts.Runner = &gitx.GitRunner{}
	}
	if opts.RemoteName == "" {
		opts.RemoteName = "origin"
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, err
	}

	var repos []model.Repository
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return fs.SkipDir
		}
		if path != root && matchesExclude(path, opts.Exclude) {
			return fs.SkipDir
		}
		if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
			return nil
		}
		repo, err := config.DescribeRepository(ctx, opts.Runner, path, opts.RemoteName)
		if err != nil {
			return nil
		}
		repos = append(repos, repo)
		return fs.SkipDir
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(repos, func(i, j int) bool { return repos[i].Path < repos[j].Path })
	return repos, nil
}

func matchesExclude(path string, patterns []string) bool {
	slashPath := filepath.ToSlash(path)
	for _, pattern := range patterns {
		match, err := doublestar.Match(filepath.ToSlash(pattern), slashPath)
		if err != nil {
			continue
		}
		if match {
			return true
		}
	}
	return false
}
