package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "soctl",
		Short:        "Operational tooling for the service order API",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newMigrateCommand(),
		newTokenCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
