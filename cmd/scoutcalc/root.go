package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scoutcalc",
		Short: "scoutcalc - FRC scouting calculation pipeline",
		Long: `scoutcalc turns scanned scouting QR codes and The Blue Alliance data
into per-match and per-team statistics, predictions and picklists.

Configuration comes from the YAML file named by SCOUT_CONFIG and from
SCOUT_* environment variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newIngestCommand())
	cmd.AddCommand(newBlocklistCommand())
	cmd.AddCommand(newOverrideCommand())
	cmd.AddCommand(newRenderQRCommand())

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}
