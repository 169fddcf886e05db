package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sitrep/internal/api"
	"sitrep/internal/config"
)

func newDeleteCmd(cfg *config.Config, structured *bool) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a report and its image",
		Args:  requireExactlyArgs(1, "id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseReportID(args[0])
			if err != nil {
				return err
			}
			if !force {
				return fmt.Errorf("refusing to delete report #%d without --force", id)
			}
			return withClient(cfg, func(client *api.Client) error {
				message, err := client.DeleteReport(cmd.Context(), id)
				if err != nil {
					return err
				}
				if *structured {
					return writeData(map[string]any{"id": id, "message": message})
				}
				return writePlain("%s\n", message)
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "confirm deletion")
	return cmd
}
