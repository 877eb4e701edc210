package main

import (
	"os"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:     "skein",
		Short:   "Skein - agent coordination and learning loop",
		Long:    `skein plans user requests into executable sub-tasks, records execution experiences, and mines them for reusable insights.`,
		Version: version,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("SKEIN_CONFIG"), "Path to YAML config file")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newInsightsCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
