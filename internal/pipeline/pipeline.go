// Package pipeline orchestrates the analyze, stats, and postprocess stages
// over an attribute store.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/broadband-cli/internal/config"
	"github.com/sells-group/broadband-cli/internal/engine"
	"github.com/sells-group/broadband-cli/internal/model"
	"github.com/sells-group/broadband-cli/internal/monitoring"
	"github.com/sells-group/broadband-cli/internal/report"
	"github.com/sells-group/broadband-cli/internal/resilience"
	"github.com/sells-group/broadband-cli/internal/store"
)

// Stage is one top-level pipeline command.
type Stage string

// Pipeline stages, in execution order.
const (
	StageAnalyze     Stage = "analyze"
	StageStats       Stage = "stats"
	StagePostprocess Stage = "postprocess"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageAnalyze, StageStats, StagePostprocess}

// ParseStage maps a command name to its Stage.
func ParseStage(s string) (Stage, error) {
	for _, st := range Stages {
		if string(st) == s {
			return st, nil
		}
	}
	return "", eris.Errorf("pipeline: unknown stage %q", s)
}

// step is one unit of work inside a stage. needs names earlier steps of the
// same run whose failure makes this step's inputs unusable.
type step struct {
	name  string
	table string
	needs []string
	run   func(ctx context.Context) error
}

// stageSteps maps each stage to the builder for its steps.
var stageSteps = map[Stage]func(p *Pipeline) []step{
	StageAnalyze:     (*Pipeline).analyzeSteps,
	StageStats:       (*Pipeline).statsSteps,
	StagePostprocess: (*Pipeline).postprocessSteps,
}

// Pipeline runs stages against one store.
type Pipeline struct {
	cfg     *config.Config
	store   store.Store
	engine  engine.Engine
	metrics *monitoring.Metrics
	clock   clockwork.Clock

	runID   string
	tables  map[string]*model.Table
	reports []report.Report
	summary *Summary
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock replaces the wall clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithMetrics records run metrics into m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithEngine replaces the default engine, which only checks that overlay
// outputs are present in the store.
func WithEngine(e engine.Engine) Option {
	return func(p *Pipeline) { p.engine = e }
}

// New creates a Pipeline over st.
func New(cfg *config.Config, st store.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:   cfg,
		store: st,
		clock: clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = monitoring.NewMetrics()
	}
	if p.engine == nil && st != nil {
		p.engine = engine.NewMaterialized(st)
	}
	return p
}

// Metrics returns the run's metrics.
func (p *Pipeline) Metrics() *monitoring.Metrics { return p.metrics }

// Run executes stages in the fixed order analyze, stats, postprocess,
// regardless of the order given. Preconditions are checked before any stage
// runs. A failed step either aborts the run or, with continue_on_error, is
// recorded and only the steps that need it are skipped.
func (p *Pipeline) Run(ctx context.Context, stages ...Stage) (*Summary, error) {
	stages = orderStages(stages)
	p.runID = uuid.New().String()
	p.tables = make(map[string]*model.Table)
	p.reports = nil
	p.summary = &Summary{RunID: p.runID, Stages: stages, StartedAt: p.clock.Now().UTC()}

	log := zap.L().With(zap.String("run_id", p.runID))
	log.Info("pipeline: starting run", zap.Any("stages", stages))

	if err := p.checkPreconditions(ctx, stages); err != nil {
		return p.summary, err
	}

	var runErr error
	for _, st := range stages {
		if err := p.runStage(ctx, st); err != nil {
			runErr = err
			break
		}
	}

	p.summary.FinishedAt = p.clock.Now().UTC()
	p.finish(log)

	if runErr != nil {
		return p.summary, runErr
	}
	log.Info("pipeline: run complete",
		zap.Int("steps", len(p.summary.Steps)),
		zap.Int("failed", p.summary.Failed()),
		zap.Duration("elapsed", p.summary.FinishedAt.Sub(p.summary.StartedAt)),
	)
	return p.summary, nil
}

func orderStages(in []Stage) []Stage {
	var out []Stage
	for _, st := range Stages {
		if slices.Contains(in, st) {
			out = append(out, st)
		}
	}
	return out
}

func (p *Pipeline) runStage(ctx context.Context, st Stage) error {
	log := zap.L().With(zap.String("run_id", p.runID), zap.String("stage", string(st)))
	log.Info("pipeline: stage starting")

	failed := make(map[string]bool)
	for _, s := range stageSteps[st](p) {
		if err := ctx.Err(); err != nil {
			return eris.Wrapf(err, "pipeline: %s interrupted", st)
		}

		if slices.ContainsFunc(s.needs, func(n string) bool { return failed[n] }) {
			failed[s.name] = true
			p.record(st, s, StatusSkipped, 0, errSkipped)
			log.Warn("pipeline: step skipped", zap.String("step", s.name), zap.String("table", s.table))
			continue
		}

		start := p.clock.Now()
		err := s.run(ctx)
		elapsed := p.clock.Since(start)
		p.metrics.StepDuration.WithLabelValues(string(st)).Observe(elapsed.Seconds())

		if err == nil {
			p.record(st, s, StatusOK, elapsed, nil)
			log.Info("pipeline: step complete",
				zap.String("step", s.name),
				zap.String("table", s.table),
				zap.Int64("duration_ms", elapsed.Milliseconds()),
			)
			continue
		}

		stepErr := &StepError{Stage: st, Step: s.name, Table: s.table, Err: err}
		failed[s.name] = true
		p.record(st, s, StatusFailed, elapsed, stepErr)
		if !p.cfg.Pipeline.ContinueOnError {
			log.Error("pipeline: step failed, aborting",
				zap.String("step", s.name),
				zap.String("table", s.table),
				zap.Error(err),
			)
			return stepErr
		}
		p.summary.Warnings = append(p.summary.Warnings, stepErr.Error())
		log.Warn("pipeline: step failed, continuing",
			zap.String("step", s.name),
			zap.String("table", s.table),
			zap.Error(err),
		)
	}
	log.Info("pipeline: stage complete")
	return nil
}

func (p *Pipeline) record(st Stage, s step, status Status, elapsed time.Duration, err error) {
	res := StepResult{
		Stage:      st,
		Step:       s.name,
		Table:      s.table,
		Status:     status,
		DurationMs: elapsed.Milliseconds(),
	}
	if err != nil {
		res.Error = err.Error()
	}
	p.summary.Steps = append(p.summary.Steps, res)
	p.metrics.StepsTotal.WithLabelValues(string(st), string(status)).Inc()
}

// finish writes the manifest and metrics textfile. Failures here are logged,
// never returned, so they cannot mask a step error.
func (p *Pipeline) finish(log *zap.Logger) {
	if p.summary.Failed() == 0 {
		p.metrics.LastRunOK.Set(1)
	} else {
		p.metrics.LastRunOK.Set(0)
	}
	p.metrics.LastRunTime.Set(float64(p.summary.FinishedAt.Unix()))

	if p.cfg.Output.Manifest {
		path := filepath.Join(p.cfg.Output.Dir, ManifestName)
		if err := WriteManifest(path, p.summary); err != nil {
			log.Warn("pipeline: manifest not written", zap.Error(err))
		} else {
			log.Info("pipeline: manifest written", zap.String("path", path))
		}
	}
	if p.cfg.Metrics.Textfile != "" {
		if err := p.metrics.WriteTextfile(p.cfg.Metrics.Textfile); err != nil {
			log.Warn("pipeline: metrics not written", zap.Error(err))
		}
	}
}

// checkPreconditions verifies the store, output directory, and every input
// table not produced by an earlier requested stage.
func (p *Pipeline) checkPreconditions(ctx context.Context, stages []Stage) error {
	if p.store == nil {
		return eris.Wrap(ErrPrecondition, "no attribute store")
	}
	if slices.Contains(stages, StagePostprocess) || p.cfg.Output.Manifest {
		info, err := os.Stat(p.cfg.Output.Dir)
		if err != nil || !info.IsDir() {
			return eris.Wrapf(ErrPrecondition, "output directory %q does not exist", p.cfg.Output.Dir)
		}
	}

	produced := make(map[string]bool)
	for _, st := range stages {
		for _, name := range p.stageInputs(st) {
			if produced[name] {
				continue
			}
			ok, err := p.store.Exists(ctx, name)
			if err != nil {
				return eris.Wrapf(err, "pipeline: check input %s", name)
			}
			if !ok {
				return eris.Wrapf(ErrPrecondition, "%s needs table %s", st, name)
			}
		}
		for _, name := range p.stageOutputs(st) {
			produced[name] = true
		}
	}
	return nil
}

// stageInputs lists tables a stage reads that it does not create itself.
func (p *Pipeline) stageInputs(st Stage) []string {
	t := p.cfg.Tables
	switch st {
	case StageAnalyze:
		return []string{t.BBService, t.AddressPoints, t.Counties, t.Municipal, t.Unincorp}
	case StageStats:
		return []string{t.AddressServiceFinal, t.Counties}
	case StagePostprocess:
		var names []string
		for _, o := range reportOptions() {
			names = append(names, o.Name())
		}
		return names
	}
	return nil
}

// stageOutputs lists tables a stage leaves in the store.
func (p *Pipeline) stageOutputs(st Stage) []string {
	t := p.cfg.Tables
	switch st {
	case StageAnalyze:
		return []string{t.AnalysisAreas, t.ServiceDissolve, t.ServicePairwise,
			t.AddressServiceFinal, t.NoService, t.NoServiceID}
	case StageStats:
		out := []string{t.MSBA, t.AddressCountArea, t.AddressCountType, t.AddressCountCounty}
		for _, o := range reportOptions() {
			out = append(out, o.Name())
		}
		return out
	}
	return nil
}

// load returns the named table, reading it from the store once per run.
func (p *Pipeline) load(ctx context.Context, name string) (*model.Table, error) {
	if t, ok := p.tables[name]; ok {
		return t, nil
	}
	t, err := resilience.DoVal(ctx, p.retry("load", name), func(ctx context.Context) (*model.Table, error) {
		return p.store.Load(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	p.tables[name] = t
	return t, nil
}

// save writes t back to the store and keeps it as the run's copy. On failure
// the cached copy is dropped so later steps reread what the store holds.
func (p *Pipeline) save(ctx context.Context, t *model.Table) error {
	err := resilience.Do(ctx, p.retry("save", t.Name), func(ctx context.Context) error {
		return p.store.Save(ctx, t)
	})
	if err != nil {
		delete(p.tables, t.Name)
		return err
	}
	p.tables[t.Name] = t
	p.metrics.RowsWritten.WithLabelValues(t.Name).Add(float64(t.Len()))
	return nil
}

func (p *Pipeline) retry(op, table string) resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	if p.cfg.Store.Retries > 0 {
		rc.MaxAttempts = p.cfg.Store.Retries
	}
	rc.OnRetry = resilience.RetryLogger(op, table)
	return rc
}

// overlay runs an engine task and drops any cached copy of its output.
func (p *Pipeline) overlay(ctx context.Context, task engine.Task) error {
	delete(p.tables, task.Output)
	return p.engine.Run(ctx, task)
}
