package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"filecask/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var jsonOutput bool
	var logLevel string
	var username string

	cmd := &cobra.Command{
		Use:   "filecask",
		Short: "Filecask is a deduplicating per-user file store",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if username != "" {
				cfg.Username = username
			}
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVarP(&username, "user", "u", "", "act as this user")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newInfoCmd(cfg, &jsonOutput),
		newUploadCmd(cfg, &jsonOutput),
		newDownloadCmd(cfg),
		newLinkCmd(cfg, &jsonOutput),
		newLsCmd(cfg, &jsonOutput),
		newRmCmd(cfg, &jsonOutput),
		newMvCmd(cfg, &jsonOutput),
		newCopyCmd(cfg, &jsonOutput),
		newUsageCmd(cfg, &jsonOutput),
		newShareCmd(cfg, &jsonOutput),
		newFolderCmd(cfg, &jsonOutput),
		newAdminCmd(cfg, &jsonOutput),
		newConfigCmd(cfg),
	)

	return cmd
}
