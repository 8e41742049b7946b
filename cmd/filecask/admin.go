package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"filecask/internal/api"
	"filecask/internal/config"
)

func newAdminCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative operations",
	}

	cmd.AddCommand(newAdminUserCmd(cfg, jsonOutput))
	cmd.AddCommand(newAdminQuotaCmd(cfg, jsonOutput))
	cmd.AddCommand(newAdminStatsCmd(cfg, jsonOutput))
	cmd.AddCommand(newAdminExportCmd(cfg))
	cmd.AddCommand(newAdminImportCmd(cfg, jsonOutput))
	return cmd
}

func newAdminUserCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	var quotaLimit string
	createCmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Provision a user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.UserCreateRequest{Username: args[0]}
			if quotaLimit != "" {
				limit, err := parseByteSize(quotaLimit)
				if err != nil {
					return err
				}
				req.QuotaLimitBytes = limit
			}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.AdminCreateUser(cmd.Context(), req)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("created %s (quota %s)\n",
					resp.Username, humanize.IBytes(uint64(resp.QuotaLimitBytes)))
			})
		},
	}
	createCmd.Flags().StringVar(&quotaLimit, "quota", "", `quota limit, e.g. "100MiB"`)
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.AdminListUsers(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				for _, user := range resp {
					if err := writePlain("%s  %s of %s\n",
						user.Username,
						humanize.IBytes(uint64(user.LogicalBytesUsed)),
						humanize.IBytes(uint64(user.QuotaLimitBytes))); err != nil {
						return err
					}
				}
				return nil
			})
		},
	})

	return cmd
}

func newAdminQuotaCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "quota <username> <limit>",
		Short: "Set a user's quota limit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := parseByteSize(args[1])
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.AdminSetQuota(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("%s quota set to %s\n",
					resp.Username, humanize.IBytes(uint64(resp.QuotaLimitBytes)))
			})
		},
	}
}

func newAdminStatsCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show system-wide storage stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.AdminStats(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				if err := writePlain("users: %d  entries: %d  blobs: %d\n",
					resp.UserCount, resp.EntryCount, resp.BlobCount); err != nil {
					return err
				}
				return writePlain("logical %s, physical %s, saved %s\n",
					humanize.IBytes(uint64(resp.LogicalBytes)),
					humanize.IBytes(uint64(resp.PhysicalBytes)),
					humanize.IBytes(uint64(resp.SavedBytes)))
			})
		},
	}
}

func newAdminExportCmd(cfg *config.Config) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the metadata catalog as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				if outputPath == "" || outputPath == "-" {
					return client.AdminExport(cmd.Context(), os.Stdout)
				}
				f, err := os.Create(outputPath)
				if err != nil {
					return err
				}
				if err := client.AdminExport(cmd.Context(), f); err != nil {
					f.Close()
					os.Remove(outputPath)
					return err
				}
				return f.Close()
			})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newAdminImportCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <catalog.yaml>",
		Short: "Replay an exported metadata catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.AdminImport(cmd.Context(), f, dryRun)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				if err := writePlain("users %d, folders %d, entries %d created; %d skipped, %d errors\n",
					resp.UsersCreated, resp.FoldersCreated, resp.EntriesCreated, resp.Skipped, resp.Errors); err != nil {
					return err
				}
				for _, msg := range resp.Messages {
					if err := writePlain("  %s\n", msg); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate without applying")
	return cmd
}

func parseByteSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(n), nil
}
