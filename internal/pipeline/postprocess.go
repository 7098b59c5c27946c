package pipeline

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/broadband-cli/internal/report"
	"github.com/sells-group/broadband-cli/internal/stats"
)

// XLSXName is the workbook written when output.xlsx is set.
const XLSXName = "report.xlsx"

func (p *Pipeline) postprocessSteps() []step {
	var steps []step
	var names []string
	for _, o := range reportOptions() {
		name := "report_" + o.Name()
		names = append(names, name)
		steps = append(steps, step{name: name, table: o.Name(), run: func(ctx context.Context) error {
			return p.writeReport(ctx, o)
		}})
	}
	if p.cfg.Output.XLSX {
		steps = append(steps, step{name: "workbook", needs: names, run: p.writeWorkbook})
	}
	return steps
}

func (p *Pipeline) groupField(g report.Geometry) string {
	if g == report.GeometryCounty {
		return p.cfg.Fields.Name
	}
	return nameAreaField
}

// writeReport builds one coverage report from its frequency table and writes
// it as CSV.
func (p *Pipeline) writeReport(ctx context.Context, o report.Options) error {
	freq, err := p.load(ctx, o.Name())
	if err != nil {
		return err
	}
	rows, err := stats.FrequencyRows(freq, p.groupField(o.Geometry), tierField(o.Kind))
	if err != nil {
		return err
	}
	rep, err := report.Build(rows, o)
	if err != nil {
		return err
	}
	path, err := report.WriteCSVFile(p.cfg.Output.Dir, rep)
	if err != nil {
		return err
	}
	p.reports = append(p.reports, rep)
	p.summary.Reports = append(p.summary.Reports, path)
	p.metrics.ReportRows.WithLabelValues(o.Name()).Add(float64(len(rep.Rows)))
	zap.L().Info("pipeline: report written",
		zap.String("run_id", p.runID),
		zap.String("report", o.Name()),
		zap.String("path", path),
		zap.Int("rows", len(rep.Rows)),
	)
	return nil
}

func (p *Pipeline) writeWorkbook(_ context.Context) error {
	if len(p.reports) == 0 {
		return eris.New("pipeline: no reports to write")
	}
	path := filepath.Join(p.cfg.Output.Dir, XLSXName)
	if err := report.WriteXLSX(path, p.reports); err != nil {
		return err
	}
	p.summary.Reports = append(p.summary.Reports, path)
	return nil
}
