package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "kian",
	Short: "AI use-case analysis for small businesses, powered by a local model",
	Long: `kian evaluates AI use cases for small German businesses with a local
LM Studio model: feasibility checks, use-case comparisons and
implementation roadmaps, stored entirely on your machine.

Start the daemon with "kian serve", then use the other commands to
manage profiles, use cases and analysis results.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(usecaseCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(feasibilityCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(roadmapCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
