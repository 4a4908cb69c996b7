// SPDX-License-Identifier: MIT
package rebasekeeper

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skaphos/rebasekeeper/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap a RebaseKeeper configuration",
	Long:  "Creates a RebaseKeeper config file in the current directory by default.",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		cfgPath := filepath.Join(cwd, config.LocalConfigFilename)
		if flagConfig != "" {
			cfgPath, err = config.ConfigPath(flagConfig)
			if err != nil {
				return err
			}
		}

		if _, err := os.Stat(cfgPath); err == nil && !force {
			return fmt.Errorf("config already exists at %q (use --force to overwrite)", cfgPath)
		}

		cfg := config.DefaultSettings()
		if err := config.Save(&cfg, cfgPath); err != nil {
			return err
		}
		infof(cmd, "created %s", cfgPath)
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
