package main

import (
	"github.com/spf13/cobra"

	"filecask/internal/api"
	"filecask/internal/config"
)

func newInfoCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show server information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GetInfo(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				if err := writePlain("%s %s\n", resp.Name, resp.Version); err != nil {
					return err
				}
				return writePlain("digest algorithm: %s\n", resp.Algorithm)
			})
		},
	}
}
