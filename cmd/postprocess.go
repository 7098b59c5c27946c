package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/broadband-cli/internal/pipeline"
)

var postprocessCmd = &cobra.Command{
	Use:   "postprocess",
	Short: "Write the area and county coverage reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runStages(cmd, pipeline.StagePostprocess)
	},
}

func init() {
	addStageFlags(postprocessCmd)
	rootCmd.AddCommand(postprocessCmd)
}
