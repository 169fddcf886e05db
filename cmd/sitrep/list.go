package main

import (
	"github.com/spf13/cobra"

	"sitrep/internal/api"
	"sitrep/internal/config"
)

func newListCmd(cfg *config.Config, structured *bool) *cobra.Command {
	var query api.ListQuery

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.ListReports(cmd.Context(), query)
				if err != nil {
					return err
				}
				if *structured {
					return writeData(resp)
				}
				return writeReportList(resp)
			})
		},
	}

	cmd.Flags().StringVarP(&query.Query, "query", "q", "", "search contact, description and location")
	cmd.Flags().StringVar(&query.Category, "category", "", "category filter")
	cmd.Flags().StringVar(&query.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&query.Limit, "limit", 0, "limit results")
	cmd.Flags().IntVar(&query.Offset, "offset", 0, "offset results")

	return cmd
}
