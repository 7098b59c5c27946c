package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/broadband-cli/internal/pipeline"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Build analysis areas and decompose service keys onto address points",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runStages(cmd, pipeline.StageAnalyze)
	},
}

func init() {
	addStageFlags(analyzeCmd)
	rootCmd.AddCommand(analyzeCmd)
}
