package main

import (
	"github.com/spf13/cobra"

	"filecask/internal/api"
	"filecask/internal/config"
)

func newShareCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Manage share grants and share links",
	}

	cmd.AddCommand(newShareAddCmd(cfg, jsonOutput))
	cmd.AddCommand(newShareRemoveCmd(cfg))
	cmd.AddCommand(newShareListCmd(cfg, jsonOutput))
	cmd.AddCommand(newShareLinkCmd(cfg, jsonOutput))
	cmd.AddCommand(newShareRevokeCmd(cfg))
	return cmd
}

func newShareAddCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "add <id> <username>",
		Short: "Grant a user read access to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.AddShare(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("shared %s with %s\n", resp.EntryID, resp.Grantee)
			})
		},
	}
}

func newShareRemoveCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id> <username>",
		Short: "Revoke a user's access to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				return client.RemoveShare(cmd.Context(), args[0], args[1])
			})
		},
	}
}

func newShareListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list <id>",
		Short: "List a file's share grants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.ListShares(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				for _, grant := range resp {
					if err := writePlain("%s  since %s\n", grant.Grantee, formatTime(grant.SharedAt)); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newShareLinkCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "link <id>",
		Short: "Create (or fetch) a public share link for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.CreateShareLink(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("%s%s\n", cfg.APIURL, resp.URL)
			})
		},
	}
}

func newShareRevokeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <token>",
		Short: "Revoke a share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				return client.RevokeShareLink(cmd.Context(), args[0])
			})
		},
	}
}
