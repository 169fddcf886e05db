package main

import (
	"github.com/spf13/cobra"

	"sitrep/internal/api"
	"sitrep/internal/config"
)

func newStatusCmd(cfg *config.Config, structured *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <pending|reviewed|resolved>",
		Short: "Move a report to a new status",
		Args:  requireExactlyArgs(2, "id and status are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseReportID(args[0])
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.UpdateStatus(cmd.Context(), id, args[1])
				if err != nil {
					return err
				}
				if *structured {
					return writeData(resp)
				}
				return writePlain("report #%d is %s\n", resp.ID, resp.Status)
			})
		},
	}
}
