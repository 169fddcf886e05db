package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sitrep/internal/config"
	"sitrep/internal/format"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		outputName string
		logLevel   string
		structured bool
	)

	cmd := &cobra.Command{
		Use:           "sitrep",
		Short:         "Sitrep collects incident reports with photos and tracks their review",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}

			switch {
			case outputName != "":
				formatter, err := format.ForName(outputName)
				if err != nil {
					return err
				}
				outputFormatter = formatter
				structured = true
			case jsonOutput:
				outputFormatter = format.JSONFormatter{}
				structured = true
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVarP(&outputName, "output", "o", "", "structured output format (json|yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newSubmitCmd(cfg, &structured),
		newListCmd(cfg, &structured),
		newShowCmd(cfg, &structured),
		newStatusCmd(cfg, &structured),
		newDeleteCmd(cfg, &structured),
		newSweepCmd(cfg, &structured),
		newInfoCmd(cfg, &structured),
		newMigrateCmd(cfg, &structured),
		newConfigCmd(cfg),
		newHashTokenCmd(),
	)

	return cmd
}
