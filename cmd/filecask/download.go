package main

import (
	"os"

	"github.com/spf13/cobra"

	"filecask/internal/api"
	"filecask/internal/config"
)

func newDownloadCmd(cfg *config.Config) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Download file content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				if outPath == "" || outPath == "-" {
					return client.Download(cmd.Context(), args[0], os.Stdout)
				}

				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				if err := client.Download(cmd.Context(), args[0], f); err != nil {
					f.Close()
					os.Remove(outPath)
					return err
				}
				return f.Close()
			})
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write to file instead of stdout")
	return cmd
}
