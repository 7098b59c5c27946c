package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/broadband-cli/internal/pipeline"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Compute per-address maximum speeds, tiers, and frequency tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runStages(cmd, pipeline.StageStats)
	},
}

func init() {
	addStageFlags(statsCmd)
	rootCmd.AddCommand(statsCmd)
}
