package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"filecask/internal/api"
	"filecask/internal/config"
)

const uploadConcurrency = 4

type uploadCmdOptions struct {
	folderID   string
	visibility string
	name       string
}

func newUploadCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	opts := &uploadCmdOptions{}
	cmd := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Upload one or more files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.name != "" && len(args) > 1 {
				return errors.New("--name is only valid with a single file")
			}
			return runUpload(cmd, cfg, opts, jsonOutput, args)
		},
	}

	cmd.Flags().StringVar(&opts.folderID, "folder", "", "place uploads in this folder")
	cmd.Flags().StringVar(&opts.visibility, "visibility", "", "visibility (private, public, shared)")
	cmd.Flags().StringVar(&opts.name, "name", "", "display name override")
	return cmd
}

func runUpload(cmd *cobra.Command, cfg *config.Config, opts *uploadCmdOptions, jsonOutput *bool, paths []string) error {
	return withClient(cfg, func(client *api.Client) error {
		var mu sync.Mutex
		results := make([]api.FileResponse, 0, len(paths))

		group, ctx := errgroup.WithContext(cmd.Context())
		group.SetLimit(uploadConcurrency)
		for _, path := range paths {
			group.Go(func() error {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()

				name := opts.name
				if name == "" {
					name = filepath.Base(path)
				}
				resp, err := client.Upload(ctx, name, opts.folderID, opts.visibility, f)
				if api.IsQuotaExceeded(err) {
					return fmt.Errorf("%s: quota exceeded", path)
				}
				if err != nil {
					return err
				}
				mu.Lock()
				results = append(results, resp)
				mu.Unlock()
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}

		if *jsonOutput {
			return writeJSON(results)
		}
		return writeFileList(results)
	})
}
