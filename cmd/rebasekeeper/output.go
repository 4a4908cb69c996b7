// SPDX-License-Identifier: MIT
package rebasekeeper

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skaphos/rebasekeeper/internal/engine"
	"github.com/skaphos/rebasekeeper/internal/ledger"
	"github.com/skaphos/rebasekeeper/internal/model"
	"github.com/skaphos/rebasekeeper/internal/tableutil"
	"github.com/skaphos/rebasekeeper/internal/termstyle"
)

func writeJSON(cmd *cobra.Command, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func writeRunSummary(cmd *cobra.Command, summary model.Summary) {
	w := tableutil.New(cmd.OutOrStdout(), true)
	_, _ = fmt.Fprintln(w, "REPO\tBASE_ADVANCED\tBRANCH\tOUTCOME\tERROR_CLASS")
	for _, repo := range summary.Repos {
		advanced := "no"
		if repo.BaseAdvanced {
			advanced = "yes"
		}
		if repo.Err != "" {
			_, _ = fmt.Fprintf(w, "%s\t%s\t-\t%s\t%s\n",
				repo.Repo.Name,
				advanced,
				termstyle.Colorize(colorOutputEnabled, "failed: "+repo.Err, termstyle.Error),
				repo.ErrClass)
			continue
		}
		if len(repo.Branches) == 0 {
			_, _ = fmt.Fprintf(w, "%s\t%s\t-\t%s\t\n",
				repo.Repo.Name,
				advanced,
				termstyle.Colorize(colorOutputEnabled, "no branches", termstyle.Info))
			continue
		}
		for _, branch := range repo.Branches {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				repo.Repo.Name,
				advanced,
				branch.Branch,
				displayOutcome(branch.Outcome),
				branch.ErrorClass)
		}
	}
	logOutputWriteFailure(cmd, "run summary", w.Flush())
	infof(cmd, "%d/%d repositories succeeded", summary.Succeeded(), len(summary.Repos))
}

// writeRunFailures enumerates failed repositories on stderr regardless of
// format and verbosity.
func writeRunFailures(cmd *cobra.Command, summary model.Summary) {
	failed := summary.FailedRepos()
	if len(failed) == 0 {
		return
	}
	_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Failed repositories:")
	w := tableutil.New(cmd.ErrOrStderr(), false)
	_, _ = fmt.Fprintln(w, "REPO\tBRANCH\tOUTCOME\tERROR")
	for _, repo := range failed {
		if repo.Err != "" {
			_, _ = fmt.Fprintf(w, "%s\t-\t-\t%s\n", repo.Repo.Name, repo.Err)
			continue
		}
		for _, branch := range repo.Branches {
			if branch.Outcome.OK() {
				continue
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", repo.Repo.Name, branch.Branch, branch.Outcome, branch.Error)
		}
	}
	logOutputWriteFailure(cmd, "failure summary", w.Flush())
}

func displayOutcome(outcome model.RebaseOutcome) string {
	text := strings.ReplaceAll(string(outcome), "_", " ")
	switch outcome {
	case model.OutcomeRebased:
		return termstyle.Colorize(colorOutputEnabled, text, termstyle.Healthy)
	case model.OutcomeUpToDate, model.OutcomeSkippedBaseUnchanged:
		return termstyle.Colorize(colorOutputEnabled, text, termstyle.Info)
	case model.OutcomeRebasedPushFailed:
		return termstyle.Colorize(colorOutputEnabled, text, termstyle.Warn)
	default:
		return termstyle.Colorize(colorOutputEnabled, text, termstyle.Error)
	}
}

func writeTrackTable(cmd *cobra.Command, results []engine.TrackResult) {
	w := tableutil.New(cmd.OutOrStdout(), true)
	_, _ = fmt.Fprintln(w, "BRANCH\tREPO\tSTATUS\tERROR")
	for _, result := range results {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			result.Branch,
			result.Repo,
			displayStatus(result.Status),
			result.Err)
	}
	logOutputWriteFailure(cmd, "track table", w.Flush())
}

func displayStatus(status ledger.Status) string {
	switch status {
	case ledger.StatusMerged:
		return termstyle.Colorize(colorOutputEnabled, string(status), termstyle.Healthy)
	case ledger.StatusOpen, ledger.StatusDraft, ledger.StatusActive:
		return termstyle.Colorize(colorOutputEnabled, string(status), termstyle.Info)
	case ledger.StatusClosed, ledger.StatusNotFound:
		return termstyle.Colorize(colorOutputEnabled, string(status), termstyle.Warn)
	default:
		return string(status)
	}
}

func writeCleanupCandidates(cmd *cobra.Command, format string, candidates []ledger.Entry) error {
	if format == "json" {
		rows := make([]map[string]string, 0, len(candidates))
		for _, entry := range candidates {
			rows = append(rows, map[string]string{
				"branch":  entry.Branch,
				"pr_url":  entry.PRURL,
				"status":  string(entry.Status),
				"repo":    entry.Repo,
				"created": entry.CreatedDate,
				"notes":   strings.Join(entry.Notes, ","),
			})
		}
		return writeJSON(cmd, rows)
	}
	w := tableutil.New(cmd.OutOrStdout(), true)
	_, _ = fmt.Fprintln(w, "BRANCH\tREPO\tSTATUS\tPR\tCREATED")
	for _, entry := range candidates {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			entry.Branch,
			entry.Repo,
			displayStatus(entry.Status),
			entry.PRURL,
			entry.CreatedDate)
	}
	logOutputWriteFailure(cmd, "cleanup candidates", w.Flush())
	infof(cmd, "%d cleanup candidates", len(candidates))
	return nil
}

func writeCleanupTable(cmd *cobra.Command, results []engine.CleanupResult) {
	w := tableutil.New(cmd.OutOrStdout(), true)
	_, _ = fmt.Fprintln(w, "BRANCH\tREPO\tLOCAL\tREMOTE\tLEDGER\tERROR")
	for _, result := range results {
		action := func(done bool) string {
			if result.DryRun && done {
				return "would delete"
			}
			if done {
				return termstyle.Colorize(colorOutputEnabled, "deleted", termstyle.Healthy)
			}
			return "-"
		}
		removed := "-"
		if result.Removed {
			removed = "removed"
			if result.DryRun {
				removed = "would remove"
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			result.Branch,
			result.Repo,
			action(result.LocalDeleted),
			action(result.RemoteDeleted),
			removed,
			strings.Join(result.Errs, "; "))
	}
	logOutputWriteFailure(cmd, "cleanup table", w.Flush())
}

// logOutputWriteFailure records non-fatal output write/flush failures.
// CLI consumers frequently pipe to tools that close early (for example
// `head`), so we log and continue instead of failing the command.
func logOutputWriteFailure(cmd *cobra.Command, context string, err error) {
	if err == nil {
		return
	}
	debugf(cmd, "ignored output write failure (%s): %v", context, err)
}
