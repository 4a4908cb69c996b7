// SPDX-License-Identifier: MIT
package rebasekeeper

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skaphos/rebasekeeper/internal/cliio"
	"github.com/skaphos/rebasekeeper/internal/engine"
	"github.com/skaphos/rebasekeeper/internal/locate"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete branches whose pull requests have been merged",
	Long: "Processes ledger entries flagged CLEANUP_NEEDED: deletes the remote branch " +
		"(and, with --delete-local, the local one) and drops the ledger entry once every " +
		"deletion succeeded. Nothing is deleted without --dry-run, --confirm, or an " +
		"interactive yes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, _ := cmd.Flags().GetBool("list")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		confirmed, _ := cmd.Flags().GetBool("confirm")
		branch, _ := cmd.Flags().GetString("branch")
		deleteLocal, _ := cmd.Flags().GetBool("delete-local")
		ledgerOverride, _ := cmd.Flags().GetString("ledger")
		format, _ := cmd.Flags().GetString("format")

		cfg, cfgPath, err := loadSettings()
		if err != nil {
			return err
		}
		runner := newRunner(cfg.TimeoutSeconds)

		ledgerFile := resolveLedgerPath(cfg, cfgPath, ledgerOverride)
		led, err := openLedger(ledgerFile)
		if err != nil {
			return err
		}

		if list {
			setColorOutputMode(cmd, format)
			return writeCleanupCandidates(cmd, format, led.CleanupCandidates(branch))
		}

		repos, err := loadRepositories(cmd.Context(), runner, cfg, cfgPath, "")
		if err != nil {
			return err
		}

		candidates := led.CleanupCandidates(branch)
		if len(candidates) == 0 {
			infof(cmd, "nothing to clean up")
			return nil
		}

		if !dryRun && !confirmed {
			confirmed, err = promptCleanupConfirmation(cmd, len(candidates))
			if err != nil {
				return err
			}
			if !confirmed {
				infof(cmd, "cleanup cancelled")
				return nil
			}
		}

		eng := engine.New(runner, nil, engine.Options{
			Remote:  cfg.RemoteName,
			Matcher: locate.NewMatcher(cfg.FeatureBranchPatterns),
		})
		results, err := eng.Cleanup(cmd.Context(), led, repos, engine.CleanupOptions{
			DryRun:      dryRun,
			Confirmed:   confirmed,
			Branch:      branch,
			DeleteLocal: deleteLocal,
		})
		if err != nil {
			return err
		}

		if !dryRun {
			if err := led.Save(ledgerFile); err != nil {
				return err
			}
		}

		switch format {
		case "json":
			if err := writeJSON(cmd, results); err != nil {
				return err
			}
		case "table":
			setColorOutputMode(cmd, format)
			writeCleanupTable(cmd, results)
		default:
			return fmt.Errorf("unsupported format %q", format)
		}

		for _, result := range results {
			if !result.OK() {
				raiseExitCode(2)
			}
		}
		infof(cmd, "cleanup completed: %d entries processed", len(results))
		return nil
	},
}

func init() {
	cleanupCmd.Flags().Bool("list", false, "list cleanup candidates without deleting anything")
	cleanupCmd.Flags().Bool("dry-run", false, "report what would be deleted without deleting")
	cleanupCmd.Flags().Bool("confirm", false, "authorize deletions without an interactive prompt")
	cleanupCmd.Flags().String("branch", "", "restrict cleanup to a single branch")
	cleanupCmd.Flags().Bool("delete-local", false, "also delete local branches")
	cleanupCmd.Flags().String("ledger", "", "override the tracking ledger file path")
	cleanupCmd.Flags().StringP("format", "o", "table", "output format: table or json")
	rootCmd.AddCommand(cleanupCmd)
}

// promptCleanupConfirmation asks interactively when stdin is a terminal.
// Non-interactive invocations must pass --confirm or --dry-run explicitly.
func promptCleanupConfirmation(cmd *cobra.Command, candidates int) (bool, error) {
	file, ok := cmd.InOrStdin().(*os.File)
	if ok && !isTerminalFD(int(file.Fd())) {
		return false, fmt.Errorf("cleanup would delete %d branches; pass --confirm or --dry-run", candidates)
	}
	prompt := fmt.Sprintf("Delete %d merged branches? [y/N]: ", candidates)
	return cliio.PromptYesNo(cmd.ErrOrStderr(), cmd.InOrStdin(), prompt)
}
