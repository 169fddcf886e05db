package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"sitrep/internal/blobstore"
	"sitrep/internal/config"
	"sitrep/internal/models"
	"sitrep/internal/server"
	"sitrep/internal/store"
)

const blobConnectTimeout = 15 * time.Second

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the sitrep API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			policy, err := models.ParseWorkflowPolicy(cfg.Workflow.Policy)
			if err != nil {
				return err
			}
			workflow, err := models.NewWorkflow(policy)
			if err != nil {
				return err
			}
			grace, err := cfg.SweepGracePeriod()
			if err != nil {
				return err
			}

			logger.Info("opening database", "path", cfg.DBPath)
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			blobs, closeBlobs, err := openBlobStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeBlobs()

			srv, err := server.New(st, blobs, server.Config{
				Addr:              addr,
				BlobBackend:       cfg.Blobs.Backend,
				MaxImageBytes:     cfg.Uploads.MaxImageBytes,
				MultipartMemory:   cfg.Uploads.MultipartMaxMemory,
				AllowedMediaTypes: cfg.Uploads.AllowedMediaTypes,
				Workflow:          workflow,
				AdminTokenHash:    cfg.Auth.AdminTokenHash,
				SweepGracePeriod:  grace,
			}, logger)
			if err != nil {
				return err
			}
			return srv.ListenAndServe()
		},
	}
}

// openBlobStore builds the configured image backend. The returned func
// releases backend resources.
func openBlobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (blobstore.BlobStore, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	switch cfg.Blobs.Backend {
	case config.BlobBackendGCS:
		connectCtx, cancel := context.WithTimeout(ctx, blobConnectTimeout)
		defer cancel()
		logger.Info("connecting to gcs", "bucket", cfg.Blobs.GCSBucket)
		gcs, err := blobstore.NewGCSStore(connectCtx, cfg.Blobs.GCSBucket)
		if err != nil {
			return nil, nil, err
		}
		return gcs, func() { _ = gcs.Close() }, nil
	case config.BlobBackendLocal, "":
		logger.Info("using local blob store", "root", cfg.Blobs.Root)
		local, err := blobstore.NewLocalStore(cfg.Blobs.Root, cfg.BaseURL())
		if err != nil {
			return nil, nil, err
		}
		return local, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown blob backend: %s", cfg.Blobs.Backend)
	}
}
