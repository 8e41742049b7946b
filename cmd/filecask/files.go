package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"filecask/internal/api"
	"filecask/internal/config"
)

func newLinkCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var folderID string
	var visibility string

	cmd := &cobra.Command{
		Use:   "link <digest> <name>",
		Short: "Create a file entry over content already stored",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.Link(cmd.Context(), api.LinkRequest{
					Digest:      args[0],
					DisplayName: args[1],
					FolderID:    folderID,
					Visibility:  visibility,
				})
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("%s\n", resp.ID)
			})
		},
	}

	cmd.Flags().StringVar(&folderID, "folder", "", "place the entry in this folder")
	cmd.Flags().StringVar(&visibility, "visibility", "", "visibility (private, public, shared)")
	return cmd
}

func newLsCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var folderID string
	var shared bool

	cmd := &cobra.Command{
		Use:   "ls [id]",
		Short: "List files, or show one file's metadata",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				if len(args) == 1 {
					resp, err := client.GetFile(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					if *jsonOutput {
						return writeJSON(resp)
					}
					return writeFileDetail(resp)
				}

				if shared {
					resp, err := client.SharedWithMe(cmd.Context())
					if err != nil {
						return err
					}
					if *jsonOutput {
						return writeJSON(resp)
					}
					for _, item := range resp {
						if err := writePlain("%s  (from %s)\n", formatFileLine(item.Entry), item.SharedBy); err != nil {
							return err
						}
					}
					return nil
				}

				resp, err := client.ListFiles(cmd.Context(), folderID)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writeFileList(resp)
			})
		},
	}

	cmd.Flags().StringVar(&folderID, "folder", "", `folder id, or "root" for unfiled entries`)
	cmd.Flags().BoolVar(&shared, "shared", false, "list entries shared with me")
	return cmd
}

func newRmCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>...",
		Short: "Delete files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				for _, id := range args {
					resp, err := client.DeleteFile(cmd.Context(), id)
					if api.IsNotFound(err) {
						return fmt.Errorf("no such file: %s", id)
					}
					if err != nil {
						return err
					}
					if *jsonOutput {
						if err := writeJSON(resp); err != nil {
							return err
						}
						continue
					}
					if resp.BlobCollected {
						if err := writePlain("%s deleted (content reclaimed)\n", resp.ID); err != nil {
							return err
						}
						continue
					}
					if err := writePlain("%s deleted (%d references remain)\n", resp.ID, resp.RemainingRefs); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newMvCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var name string
	var folderID string
	var toRoot bool
	var visibility string

	cmd := &cobra.Command{
		Use:   "mv <id>",
		Short: "Rename or move a file, or change its visibility",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.FileUpdateRequest{}
			if name != "" {
				req.DisplayName = &name
			}
			if toRoot {
				empty := ""
				req.FolderID = &empty
			} else if folderID != "" {
				req.FolderID = &folderID
			}
			if visibility != "" {
				req.Visibility = &visibility
			}

			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.UpdateFile(cmd.Context(), args[0], req)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writeFileDetail(resp)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new display name")
	cmd.Flags().StringVar(&folderID, "folder", "", "move into this folder")
	cmd.Flags().BoolVar(&toRoot, "root", false, "move out of any folder")
	cmd.Flags().StringVar(&visibility, "visibility", "", "visibility (private, public, shared)")
	return cmd
}

func newCopyCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var name string
	var folderID string

	cmd := &cobra.Command{
		Use:   "copy <id>",
		Short: "Copy a readable file into your own namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.CopyFile(cmd.Context(), args[0], api.CopyRequest{
					DisplayName: name,
					FolderID:    folderID,
				})
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("%s\n", resp.ID)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name for the copy")
	cmd.Flags().StringVar(&folderID, "folder", "", "place the copy in this folder")
	return cmd
}
