package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/broadband-cli/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run analyze, stats, and postprocess in order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		names, _ := cmd.Flags().GetStringSlice("stages")
		stages, err := parseStages(names)
		if err != nil {
			return err
		}
		return runStages(cmd, stages...)
	},
}

func parseStages(names []string) ([]pipeline.Stage, error) {
	if len(names) == 0 {
		return nil, eris.New("no stages selected")
	}
	stages := make([]pipeline.Stage, 0, len(names))
	for _, n := range names {
		st, err := pipeline.ParseStage(n)
		if err != nil {
			return nil, err
		}
		stages = append(stages, st)
	}
	return stages, nil
}

func init() {
	all := make([]string, len(pipeline.Stages))
	for i, s := range pipeline.Stages {
		all[i] = string(s)
	}
	runCmd.Flags().StringSlice("stages", all, "stages to run; always executed in analyze, stats, postprocess order")
	addStageFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}
