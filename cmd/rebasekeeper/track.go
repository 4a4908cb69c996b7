// SPDX-License-Identifier: MIT
package rebasekeeper

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skaphos/rebasekeeper/internal/engine"
	"github.com/skaphos/rebasekeeper/internal/ledger"
	"github.com/skaphos/rebasekeeper/internal/locate"
)

var trackCmd = &cobra.Command{
	Use:   "track [branch]",
	Short: "Refresh the branch-tracking ledger without rebasing anything",
	Long: "Without an argument, every ledger entry is refreshed against its repository. " +
		"With a branch (or repo:branch, or a GitHub URL), only that branch is refreshed, " +
		"adding it to the ledger when missing.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reposOverride, _ := cmd.Flags().GetString("repos")
		ledgerOverride, _ := cmd.Flags().GetString("ledger")
		format, _ := cmd.Flags().GetString("format")

		cfg, cfgPath, err := loadSettings()
		if err != nil {
			return err
		}
		runner := newRunner(cfg.TimeoutSeconds)
		repos, err := loadRepositories(cmd.Context(), runner, cfg, cfgPath, reposOverride)
		if err != nil {
			return err
		}

		ledgerFile := resolveLedgerPath(cfg, cfgPath, ledgerOverride)
		led, err := openLedger(ledgerFile)
		if err != nil {
			return err
		}

		eng := engine.New(runner, newForgeClient(), engine.Options{
			Remote:  cfg.RemoteName,
			Matcher: locate.NewMatcher(cfg.FeatureBranchPatterns),
		})

		var results []engine.TrackResult
		if len(args) == 1 {
			target, err := locate.Resolve(cmd.Context(), runner, args[0], repos, led)
			if err != nil {
				return err
			}
			if target.Branch == "" {
				return fmt.Errorf("%q does not name a branch", args[0])
			}
			status, err := eng.TrackBranch(cmd.Context(), led, *target.Repo, target.Branch)
			result := engine.TrackResult{Branch: target.Branch, Repo: target.Repo.Name, Status: status}
			if err != nil {
				result.Err = err.Error()
			}
			results = append(results, result)
		} else {
			results = eng.RefreshTracking(cmd.Context(), led, repos)
		}

		if err := led.Save(ledgerFile); err != nil {
			return err
		}

		switch format {
		case "json":
			if err := writeJSON(cmd, results); err != nil {
				return err
			}
		case "table":
			setColorOutputMode(cmd, format)
			writeTrackTable(cmd, results)
		default:
			return fmt.Errorf("unsupported format %q", format)
		}

		for _, result := range results {
			switch {
			case result.Err != "":
				raiseExitCode(2)
			case result.Status == ledger.StatusNotFound:
				raiseExitCode(1)
			}
		}
		infof(cmd, "tracking refreshed: %d entries", len(results))
		return nil
	},
}

func init() {
	trackCmd.Flags().String("repos", "", "override the project list file path")
	trackCmd.Flags().String("ledger", "", "override the tracking ledger file path")
	trackCmd.Flags().StringP("format", "o", "table", "output format: table or json")
	rootCmd.AddCommand(trackCmd)
}
