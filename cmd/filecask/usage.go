package main

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"filecask/internal/api"
	"filecask/internal/config"
)

func newUsageCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var showStats bool

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show quota usage and deduplication stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				usage, err := client.Usage(cmd.Context())
				if err != nil {
					return err
				}

				if showStats {
					stats, err := client.Stats(cmd.Context())
					if err != nil {
						return err
					}
					if *jsonOutput {
						return writeJSON(map[string]any{"usage": usage, "stats": stats})
					}
					if err := printUsage(usage); err != nil {
						return err
					}
					if err := writePlain("entries: %d\n", stats.EntryCount); err != nil {
						return err
					}
					if err := writePlain("physical: %s\n", humanize.IBytes(uint64(stats.PhysicalBytes))); err != nil {
						return err
					}
					return writePlain("saved by dedup: %s\n", humanize.IBytes(uint64(stats.SavedBytes)))
				}

				if *jsonOutput {
					return writeJSON(usage)
				}
				return printUsage(usage)
			})
		},
	}

	cmd.Flags().BoolVar(&showStats, "stats", false, "include deduplication stats")
	return cmd
}

func printUsage(usage api.UsageResponse) error {
	if err := writePlain("user: %s\n", usage.Username); err != nil {
		return err
	}
	if err := writePlain("used: %s of %s\n",
		humanize.IBytes(uint64(usage.LogicalBytesUsed)),
		humanize.IBytes(uint64(usage.QuotaLimitBytes))); err != nil {
		return err
	}
	if err := writePlain("remaining: %s\n", humanize.IBytes(uint64(usage.RemainingBytes))); err != nil {
		return err
	}
	return writePlain("saved globally: %s\n", humanize.IBytes(uint64(usage.SavedBytesGlobal)))
}
