package main

import (
	"fmt"
	"os"

	"github.com/bridgeval/engine/cmd/keys"
	"github.com/bridgeval/engine/cmd/run"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var configPath string
	root := &cobra.Command{
		Use:           "engine",
		Short:         "Ceremony engine of a cross-chain validator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML configuration file")

	root.AddCommand(
		run.New(&configPath),
		keys.New(&configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print the engine version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
