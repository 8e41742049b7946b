package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"filecask/internal/blobstore"
	"filecask/internal/config"
	"filecask/internal/server"
	"filecask/internal/store"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the filecask API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}
			if cfg.BlobRoot == "" {
				return fmt.Errorf("blob root is required")
			}

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			algo, err := blobstore.ParseAlgorithm(cfg.Storage.Algorithm)
			if err != nil {
				return err
			}

			logger.Info("opening database", "path", cfg.DBPath)
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			bs, err := blobstore.NewLocalCAS(cfg.BlobRoot, algo)
			if err != nil {
				return err
			}

			srv := server.New(addr, st, bs, logger, server.Options{
				MaxUploadBytes:    cfg.Storage.MaxUploadBytes,
				RateLimitOps:      cfg.RateLimit.Ops,
				RateLimitWindow:   time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
				DefaultQuotaBytes: cfg.Storage.DefaultQuotaBytes,
			})
			return srv.ListenAndServe()
		},
	}
}
