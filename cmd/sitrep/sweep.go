package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sitrep/internal/api"
	"sitrep/internal/config"
)

func newSweepCmd(cfg *config.Config, structured *bool) *cobra.Command {
	var (
		apply bool
		grace string
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Find or remove images no report references",
		Long:  "Lists stored images that no report references and that are older than the grace period. Nothing is deleted unless --apply is set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if grace != "" {
				if d, err := time.ParseDuration(grace); err != nil || d < 0 {
					return fmt.Errorf("invalid --grace %q", grace)
				}
			}

			return withClient(cfg, func(client *api.Client) error {
				req := api.BlobSweepRequest{DryRun: !apply, GracePeriod: grace}
				resp, err := client.SweepBlobs(cmd.Context(), req, apply)
				if err != nil {
					return err
				}
				if *structured {
					return writeData(resp)
				}
				mode := "dry run"
				if !resp.DryRun {
					mode = "applied"
				}
				if err := writePlain("%s: candidates=%d deleted=%d failed=%d reclaimed_bytes=%d\n", mode, resp.CandidateCount, resp.DeletedCount, resp.FailedCount, resp.ReclaimedBytes); err != nil {
					return err
				}
				for _, key := range resp.Keys {
					if err := writePlain("  %s\n", key); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "delete the orphaned images")
	cmd.Flags().StringVar(&grace, "grace", "", "skip images newer than this (default: sweep.grace_period)")
	return cmd
}
