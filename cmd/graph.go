package cmd

import (
	"github.com/spf13/cobra"

	"github.com/papapumpkin/pulsar/internal/history"
	"github.com/papapumpkin/pulsar/internal/ui"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show the workspace packages, their nesting and dependency edges",
	Args:  cobra.NoArgs,
	RunE:  runGraph,
}

func init() {
	graphCmd.Flags().StringP("output", "o", outputText, "output format: text or yaml")
	rootCmd.AddCommand(graphCmd)
}

func runGraph(cmd *cobra.Command, _ []string) error {
	output, _ := cmd.Flags().GetString("output")
	if err := checkOutput(output, outputText, outputYAML); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := history.Open(cfg.WorkDir)
	if err != nil {
		return err
	}
	g, err := loadGraph(cmd.Context(), cfg, repo.Root())
	if err != nil {
		return err
	}

	if output == outputYAML {
		return ui.RenderGraphYAML(cmd.OutOrStdout(), g)
	}
	return ui.RenderGraphText(cmd.OutOrStdout(), g)
}
