package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "dravya",
		Short:         "Dravya identification from sensor readings, with generated descriptions and images",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&globalFlags.configPath, "config", "c", "", "path to dravya config file (defaults plus environment when empty)")
	root.PersistentFlags().StringVar(&globalFlags.envFile, "env-file", ".env", "dotenv file loaded before the config")
	root.PersistentFlags().StringVar(&globalFlags.logLevel, "log-level", "", "override log_level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(),
		newIdentifyCmd(),
		newTrainCmd(),
		newLedgerCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
