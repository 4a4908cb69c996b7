// SPDX-License-Identifier: MIT
package rebasekeeper

import (
	"context"
	"errors"
	"os"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/skaphos/rebasekeeper/internal/config"
	"github.com/skaphos/rebasekeeper/internal/discovery"
	"github.com/skaphos/rebasekeeper/internal/forge"
	"github.com/skaphos/rebasekeeper/internal/gitx"
	"github.com/skaphos/rebasekeeper/internal/ledger"
	"github.com/skaphos/rebasekeeper/internal/model"
)

// loadSettings resolves and loads the settings file. A missing file is not
// an error; defaults apply.
func loadSettings() (*config.Settings, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}
	cfgPath, err := config.ResolveConfigPath(flagConfig, cwd)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			defaults := config.DefaultSettings()
			return &defaults, cfgPath, nil
		}
		return nil, "", err
	}
	return cfg, cfgPath, nil
}

// timeoutRunner bounds every git invocation with the configured timeout.
type timeoutRunner struct {
	inner   gitx.Runner
	timeout time.Duration
}

func (t *timeoutRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return t.inner.Run(ctx, dir, args...)
}

func newRunner(timeoutSeconds int) gitx.Runner {
	return &timeoutRunner{
		inner:   &gitx.GitRunner{},
		timeout: time.Duration(timeoutSeconds) * time.Second,
	}
}

// loadRepositories reads the project list named by the settings, honoring a
// per-command override of the list path. When no list file exists but a
// projects root is configured, the root is scanned for repositories.
func loadRepositories(ctx context.Context, runner gitx.Runner, cfg *config.Settings, cfgPath, listOverride string) ([]model.Repository, error) {
	listPath := listOverride
	if listPath == "" {
		listPath = config.ResolvePath(cfgPath, cfg.ProjectList)
	}
	root := config.ResolvePath(cfgPath, cfg.ProjectsRoot)

	if _, err := os.Stat(listPath); errors.Is(err, os.ErrNotExist) && listOverride == "" && root != "" {
		logger.Debugf("no project list at %s, scanning %s", listPath, root)
		return discovery.Scan(ctx, discovery.Options{
			Root:       root,
			RemoteName: cfg.RemoteName,
			Runner:     runner,
		})
	}
	return config.LoadRepositories(ctx, runner, listPath, root, cfg.RemoteName)
}

// resolveLedgerPath picks the ledger file path, honoring a per-command
// override.
func resolveLedgerPath(cfg *config.Settings, cfgPath, override string) string {
	if override != "" {
		return override
	}
	return config.ResolvePath(cfgPath, cfg.Ledger)
}

// openLedger loads the ledger file, treating a missing file as empty.
func openLedger(path string) (*ledger.Ledger, error) {
	led, err := ledger.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &ledger.Ledger{}, nil
		}
		return nil, err
	}
	return led, nil
}

// newForgeClient builds a GitHub client from the environment token. Errors
// degrade to local-only status inference.
func newForgeClient() forge.Client {
	client, err := forge.NewGitHubClient(forge.TokenFromEnv())
	if err != nil {
		logger.Warnf("github client unavailable, using local inference only: %v", err)
		return nil
	}
	return client
}
