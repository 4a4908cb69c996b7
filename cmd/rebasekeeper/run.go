// SPDX-License-Identifier: MIT
package rebasekeeper

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skaphos/rebasekeeper/internal/engine"
	"github.com/skaphos/rebasekeeper/internal/forge"
	"github.com/skaphos/rebasekeeper/internal/ledger"
	"github.com/skaphos/rebasekeeper/internal/locate"
	"github.com/skaphos/rebasekeeper/internal/model"
)

var runCmd = &cobra.Command{
	Use:   "run [target]",
	Short: "Fast-forward base branches and rebase feature branches on top",
	Long: "Without a target, every repository in the project list is processed. A target " +
		"may be a GitHub pull request URL, a branch URL, repo:branch, a bare repository " +
		"name, or a bare branch name.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		push, _ := cmd.Flags().GetBool("push")
		forceRebase, _ := cmd.Flags().GetBool("force-rebase")
		reposOverride, _ := cmd.Flags().GetString("repos")
		ledgerOverride, _ := cmd.Flags().GetString("ledger")
		timeout, _ := cmd.Flags().GetInt("timeout")
		format, _ := cmd.Flags().GetString("format")

		cfg, cfgPath, err := loadSettings()
		if err != nil {
			return err
		}
		debugf(cmd, "using config %s", cfgPath)
		if timeout == 0 {
			timeout = cfg.TimeoutSeconds
		}

		runner := newRunner(timeout)
		repos, err := loadRepositories(cmd.Context(), runner, cfg, cfgPath, reposOverride)
		if err != nil {
			return err
		}

		ledgerFile := resolveLedgerPath(cfg, cfgPath, ledgerOverride)
		led, err := openLedger(ledgerFile)
		if err != nil {
			return err
		}

		forgeClient := newForgeClient()
		eng := engine.New(runner, forgeClient, engine.Options{
			Remote:      cfg.RemoteName,
			Push:        push,
			ForceRebase: forceRebase,
			Matcher:     locate.NewMatcher(cfg.FeatureBranchPatterns),
		})

		var tasks []engine.Task
		if len(args) == 1 {
			task, err := resolveRunTarget(cmd, eng, forgeClient, args[0], repos, led)
			if err != nil {
				return err
			}
			tasks = []engine.Task{task}
		} else {
			for _, repo := range repos {
				tasks = append(tasks, engine.Task{
					Repo:     repo,
					Branches: eng.SeedBranches(cmd.Context(), led, repo),
					Discover: true,
				})
			}
		}

		summary := eng.Run(cmd.Context(), tasks)

		refreshLedgerAfterRun(cmd, eng, led, summary)
		if err := led.Save(ledgerFile); err != nil {
			infof(cmd, "could not save ledger: %v", err)
			raiseExitCode(1)
		}

		switch format {
		case "json":
			if err := writeJSON(cmd, summary); err != nil {
				return err
			}
		case "table":
			setColorOutputMode(cmd, format)
			writeRunSummary(cmd, summary)
		default:
			return fmt.Errorf("unsupported format %q", format)
		}
		writeRunFailures(cmd, summary)

		for _, repo := range summary.Repos {
			if !repo.OK() {
				raiseExitCode(2)
				continue
			}
			for _, branch := range repo.Branches {
				if branch.Outcome == model.OutcomeRebasedPushFailed {
					raiseExitCode(1)
				}
			}
		}
		infof(cmd, "run completed: %d/%d repositories succeeded", summary.Succeeded(), len(summary.Repos))
		return nil
	},
}

func init() {
	runCmd.Flags().Bool("push", false, "force-push (with lease) each branch after a successful rebase")
	runCmd.Flags().Bool("force-rebase", false, "rebase branches even when the base branch did not advance")
	runCmd.Flags().String("repos", "", "override the project list file path")
	runCmd.Flags().String("ledger", "", "override the tracking ledger file path")
	runCmd.Flags().Int("timeout", 0, "timeout in seconds per git operation")
	runCmd.Flags().StringP("format", "o", "table", "output format: table or json")
	rootCmd.AddCommand(runCmd)
}

// resolveRunTarget turns a single-target argument into a task. PR URL
// targets need a live lookup to learn their head branch.
func resolveRunTarget(cmd *cobra.Command, eng *engine.Engine, forgeClient forge.Client, raw string, repos []model.Repository, led *ledger.Ledger) (engine.Task, error) {
	target, err := locate.Resolve(cmd.Context(), eng.Runner(), raw, repos, led)
	if err != nil {
		return engine.Task{}, err
	}
	if target.Branch == "" && target.PRURL != "" {
		ref, err := forge.ParsePRURL(target.PRURL)
		if err != nil {
			return engine.Task{}, err
		}
		if forgeClient == nil {
			return engine.Task{}, fmt.Errorf("resolving %s requires GitHub access (set GITHUB_TOKEN)", target.PRURL)
		}
		pr, err := forgeClient.PRByNumber(cmd.Context(), ref.Owner, ref.Repo, ref.Number)
		if err != nil {
			return engine.Task{}, err
		}
		if pr == nil {
			return engine.Task{}, fmt.Errorf("pull request %s not found", target.PRURL)
		}
		target.Branch = pr.HeadBranch
		debugf(cmd, "%s resolves to branch %s", target.PRURL, pr.HeadBranch)
	}
	task := engine.Task{Repo: *target.Repo}
	if target.Branch != "" {
		task.Branches = []string{target.Branch}
	}
	return task, nil
}

// refreshLedgerAfterRun updates tracking entries for every branch the run
// touched. Best effort: failures are reported and do not fail the run.
func refreshLedgerAfterRun(cmd *cobra.Command, eng *engine.Engine, led *ledger.Ledger, summary model.Summary) {
	for _, repo := range summary.Repos {
		if repo.Err != "" {
			continue
		}
		for _, branch := range repo.Branches {
			if branch.Outcome == model.OutcomeNotFound {
				continue
			}
			if _, err := eng.TrackBranch(cmd.Context(), led, repo.Repo, branch.Branch); err != nil {
				debugf(cmd, "tracking update for %s failed: %v", branch.Branch, err)
			}
		}
	}
}
