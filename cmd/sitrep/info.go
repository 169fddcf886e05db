package main

import (
	"github.com/spf13/cobra"

	"sitrep/internal/api"
	"sitrep/internal/config"
)

type infoOutput struct {
	api.InfoResponse
	DBPath string `json:"db_path"`
	APIURL string `json:"api_url"`
}

func newInfoCmd(cfg *config.Config, structured *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show database and server info",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GetInfo(cmd.Context())
				if err != nil {
					return err
				}
				out := infoOutput{InfoResponse: resp, DBPath: cfg.DBPath, APIURL: cfg.APIURL}

				if *structured {
					return writeData(out)
				}

				_ = writePlain("api_url: %s\n", out.APIURL)
				_ = writePlain("db_path: %s\n", out.DBPath)
				_ = writePlain("schema_version: %d\n", out.SchemaVersion)
				_ = writePlain("blob_backend: %s\n", out.BlobBackend)
				_ = writePlain("workflow_policy: %s\n", out.WorkflowPolicy)
				_ = writePlain("total_reports: %d\n", out.TotalReports)
				return writeStatusCounts(out.StatusCounts)
			})
		},
	}
}
