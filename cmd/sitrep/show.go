package main

import (
	"github.com/spf13/cobra"

	"sitrep/internal/api"
	"sitrep/internal/config"
)

func newShowCmd(cfg *config.Config, structured *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show report details",
		Args:  requireExactlyArgs(1, "id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseReportID(args[0])
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GetReport(cmd.Context(), id)
				if err != nil {
					return err
				}
				if *structured {
					return writeData(resp)
				}
				return writeReportDetail(resp)
			})
		},
	}
}
