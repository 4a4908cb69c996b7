package config

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	logger "github.com/sirupsen/logrus"

	"github.com/skaphos/rebasekeeper/internal/gitx"
	"github.com/skaphos/rebasekeeper/internal/model"
)

// LoadRepositories reads the newline-separated repository list at path.
// Blank lines and lines whose first non-whitespace character is '#' are
// ignored. Entries starting with '/' are absolute paths; other entries are
// resolved against projectsRoot. Entries whose resolved path does not exist
// or is not a git repository are skipped with a warning. The call fails
// only when the file is unreadable or no valid repository remains.
func LoadRepositories(ctx context.Context, r gitx.Runner, path, projectsRoot, remoteName string) ([]model.Repository, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open project list: %w", err)
	}
	defer func() { _ = file.Close() }()

	var repos []model.Repository
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		repoPath := line
		if !filepath.IsAbs(repoPath) {
			repoPath = filepath.Join(projectsRoot, repoPath)
		}
		repoPath = filepath.Clean(repoPath)
		if _, ok := seen[repoPath]; ok {
			continue
		}
		seen[repoPath] = struct{}{}

		repo, err := DescribeRepository(ctx, r, repoPath, remoteName)
		if err != nil {
			logger.Warnf("skipping %s: %v", line, err)
			continue
		}
		repos = append(repos, repo)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read project list: %w", err)
	}

	if len(repos) == 0 {
		return nil, fmt.Errorf("no valid repositories in %s", path)
	}
	return repos, nil
}

// DescribeRepository validates that path holds a git working tree and
// derives its name and origin owner/name identity.
func DescribeRepository(ctx context.Context, r gitx.Runner, path, remoteName string) (model.Repository, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.Repository{}, fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return model.Repository{}, fmt.Errorf("%s is not a directory", path)
	}
	if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
		return model.Repository{}, fmt.Errorf("%s is not a git repository", path)
	}
	if !gitx.IsRepo(ctx, r, path) {
		return model.Repository{}, fmt.Errorf("%s is not a git working tree", path)
	}

	repo := model.Repository{
		Path: path,
		Name: filepath.Base(path),
	}
	// The remote identity is best-effort: clones without the configured
	// remote are still processable locally.
	if url, err := gitx.RemoteURL(ctx, r, path, remoteName); err == nil {
		repo.Owner, repo.RemoteName = gitx.OwnerRepo(url)
	}
	return repo, nil
}
