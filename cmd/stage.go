package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/broadband-cli/internal/pipeline"
)

// addStageFlags registers the flags shared by every stage command.
func addStageFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("continue-on-error", true, "record failed steps and keep going with steps that do not need them")
	cmd.Flags().String("output", "", "directory for reports and the run manifest (overrides output.dir)")
	cmd.Flags().Bool("xlsx", false, "also write report.xlsx (overrides output.xlsx)")
}

// applyStageFlags copies explicitly set flags over the loaded config.
func applyStageFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("continue-on-error") {
		cfg.Pipeline.ContinueOnError, _ = cmd.Flags().GetBool("continue-on-error")
	}
	if cmd.Flags().Changed("output") {
		cfg.Output.Dir, _ = cmd.Flags().GetString("output")
	}
	if cmd.Flags().Changed("xlsx") {
		cfg.Output.XLSX, _ = cmd.Flags().GetBool("xlsx")
	}
}

// runStages opens the store and runs stages until done or interrupted.
func runStages(cmd *cobra.Command, stages ...pipeline.Stage) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applyStageFlags(cmd)

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	p := pipeline.New(cfg, st)
	sum, err := p.Run(ctx, stages...)
	if sum != nil && len(sum.Steps) > 0 {
		writeSummary(os.Stdout, sum)
	}
	if err != nil {
		return eris.Wrap(err, "run stages")
	}
	if n := sum.Failed(); n > 0 {
		zap.L().Warn("steps failed", zap.Int("failed", n), zap.Strings("warnings", sum.Warnings))
	}
	return nil
}

func writeSummary(out io.Writer, sum *pipeline.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tSTEP\tTABLE\tSTATUS\tDURATION_MS")
	_, _ = fmt.Fprintln(w, "-----\t----\t-----\t------\t-----------")
	for _, s := range sum.Steps {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", s.Stage, s.Step, s.Table, s.Status, s.DurationMs)
	}
	_ = w.Flush()

	for _, path := range sum.Reports {
		_, _ = fmt.Fprintf(out, "wrote %s\n", path)
	}
}
