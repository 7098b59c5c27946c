package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/broadband-cli/internal/engine"
	"github.com/sells-group/broadband-cli/internal/model"
)

var runStart = time.Date(2020, 9, 30, 12, 0, 0, 0, time.UTC)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

// findRow returns the report line for a group and tier code.
func findRow(t *testing.T, records [][]string, name, code string) []string {
	t.Helper()
	for _, r := range records[1:] {
		if r[0] == name && r[2] == code {
			return r
		}
	}
	t.Fatalf("no row for %s tier %s", name, code)
	return nil
}

func cell(t *testing.T, tbl *model.Table, row int, field string) model.Value {
	t.Helper()
	v, ok := tbl.Rows()[row].Get(field)
	require.True(t, ok, "field %s", field)
	return v
}

func TestParseStage(t *testing.T) {
	for _, s := range Stages {
		got, err := ParseStage(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStage("cleanup")
	assert.Error(t, err)
}

func TestOrderStages(t *testing.T) {
	assert.Equal(t, []Stage{StageAnalyze, StagePostprocess}, orderStages([]Stage{StagePostprocess, StageAnalyze, StagePostprocess}))
	assert.Empty(t, orderStages(nil))
}

func TestRun_FullPipeline(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.Output.XLSX = true
	cfg.Metrics.Textfile = filepath.Join(dir, "broadband.prom")
	st := newTestStore(t)
	seedStore(t, st, cfg)

	p := New(cfg, st, WithClock(clockwork.NewFakeClockAt(runStart)))
	sum, err := p.Run(ctx, Stages...)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Failed())
	assert.Empty(t, sum.Warnings)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, runStart, sum.StartedAt)
	assert.Len(t, sum.Reports, 5)

	// Composite key built on the service table.
	svc, err := st.Load(ctx, cfg.Tables.BBService)
	require.NoError(t, err)
	assert.Equal(t, "P1|50|100|10", cell(t, svc, 0, "Key").Str())
	assert.Equal(t, "P2|10|25|3", cell(t, svc, 1, "Key").Str())

	// Keys decomposed, coordinates copied, unserved address filled in.
	asf, err := st.Load(ctx, cfg.Tables.AddressServiceFinal)
	require.NoError(t, err)
	assert.Equal(t, "P1", cell(t, asf, 2, "Provider").Str())
	assert.Equal(t, "50", cell(t, asf, 2, "TechType").Str())
	down, _ := cell(t, asf, 2, "MaxDown").Float64()
	assert.Equal(t, 30.0, down)
	x, _ := cell(t, asf, 2, "x").Float64()
	assert.Equal(t, -111.6, x)
	unserved, _ := cell(t, asf, 3, "MaxDown").Float64()
	assert.Equal(t, 0.0, unserved)
	assert.Equal(t, "Lyman", cell(t, asf, 3, "NAME").Str())
	assert.Equal(t, "Unincorporated", cell(t, asf, 3, "AREA_TYPE").Str())

	ns, err := st.Load(ctx, cfg.Tables.NoService)
	require.NoError(t, err)
	assert.Equal(t, 1, ns.Len())

	// One summary row per address.
	msba, err := st.Load(ctx, cfg.Tables.MSBA)
	require.NoError(t, err)
	require.Equal(t, 3, msba.Len())
	assert.Equal(t, "Bicknell|Municipal", cell(t, msba, 0, "Name_Area").Str())
	tierCode, _ := cell(t, msba, 0, "MaxDown_Tier").Int64()
	assert.Equal(t, int64(10), tierCode)
	tierCode, _ = cell(t, msba, 0, "MaxUp_Tier").Int64()
	assert.Equal(t, int64(7), tierCode)

	county, err := st.Load(ctx, "MaxDown_County")
	require.NoError(t, err)
	assert.Equal(t, "Wayne", cell(t, county, 0, "NAME").Str())
	count, _ := cell(t, county, 0, "COUNT_FID_AddressPoints").Int64()
	assert.Equal(t, int64(3), count)

	// Reports.
	area := readCSV(t, filepath.Join(dir, "MaxDown_Area.csv"))
	assert.Equal(t, []string{"AreaName", "AreaType", "NTIA Speed Code", "NTIA Speed Range", "Percentage", "Count", "Address Count"}, area[0])
	assert.Len(t, area, 1+20)
	assert.Equal(t, []string{"Bicknell", "Municipal", "0", "Unserved", "0", "0", "2"}, area[1])
	assert.Equal(t, []string{"Bicknell", "Municipal", "8", "25-49.9 Mbps", "0.5", "1", "2"}, findRow(t, area, "Bicknell", "8"))
	assert.Equal(t, []string{"Lyman", "Unincorporated", "0", "Unserved", "1", "1", "1"}, findRow(t, area, "Lyman", "0"))

	up := readCSV(t, filepath.Join(dir, "MaxUp_Area.csv"))
	assert.Len(t, up, 1+22)
	assert.Equal(t, "0.5", findRow(t, up, "Bicknell", "7")[4])
	assert.Equal(t, "0", findRow(t, up, "Bicknell", "2")[4])

	byCounty := readCSV(t, filepath.Join(dir, "MaxDown_County.csv"))
	assert.Len(t, byCounty, 1+10)
	assert.Equal(t, []string{"Wayne", "County", "10", "100-999 Mbps", "0.333", "1", "3"}, findRow(t, byCounty, "Wayne", "10"))

	assert.FileExists(t, filepath.Join(dir, XLSXName))

	// Manifest and metrics.
	m, err := ReadManifest(filepath.Join(dir, ManifestName))
	require.NoError(t, err)
	assert.Equal(t, sum.RunID, m.RunID)
	assert.Equal(t, runStart, m.StartedAt.UTC())
	assert.Equal(t, []Stage{StageAnalyze, StageStats, StagePostprocess}, m.Stages)
	assert.Len(t, m.Steps, len(sum.Steps))

	assert.Equal(t, 1.0, testutil.ToFloat64(p.Metrics().NullsFilled.WithLabelValues(cfg.Tables.AddressServiceFinal, "MaxDown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Metrics().LastRunOK))
	prom, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "broadband_steps_total")
}

func TestRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := testConfig(dir)
	st := newTestStore(t)
	seedStore(t, st, cfg)

	_, err := New(cfg, st).Run(ctx, Stages...)
	require.NoError(t, err)
	first, err := os.ReadFile(filepath.Join(dir, "MaxUp_County.csv"))
	require.NoError(t, err)

	p := New(cfg, st)
	_, err = p.Run(ctx, Stages...)
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(dir, "MaxUp_County.csv"))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	// Nothing left to normalize on the second pass.
	assert.Equal(t, 0.0, testutil.ToFloat64(p.Metrics().NullsFilled.WithLabelValues(cfg.Tables.AddressServiceFinal, "MaxDown")))
}

func TestRun_StagesRunInFixedOrder(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	st := newTestStore(t)
	seedStore(t, st, cfg)
	ctx := context.Background()

	_, err := New(cfg, st).Run(ctx, StageAnalyze)
	require.NoError(t, err)

	// The frequency tables postprocess reads are produced by stats in the
	// same run, so the precondition check passes.
	sum, err := New(cfg, st).Run(ctx, StagePostprocess, StageStats)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Failed())
	assert.Equal(t, []Stage{StageStats, StagePostprocess}, sum.Stages)
	assert.Equal(t, StageStats, sum.Steps[0].Stage)
	assert.Equal(t, StagePostprocess, sum.Steps[len(sum.Steps)-1].Stage)
}

func TestRun_Preconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("no store", func(t *testing.T) {
		_, err := New(testConfig(t.TempDir()), nil).Run(ctx, StageAnalyze)
		require.ErrorIs(t, err, ErrPrecondition)
	})

	t.Run("missing output dir", func(t *testing.T) {
		cfg := testConfig(filepath.Join(t.TempDir(), "missing"))
		st := newTestStore(t)
		seedStore(t, st, cfg)
		_, err := New(cfg, st).Run(ctx, StagePostprocess)
		require.ErrorIs(t, err, ErrPrecondition)
	})

	t.Run("missing input table", func(t *testing.T) {
		cfg := testConfig(t.TempDir())
		st := newTestStore(t)
		seedStore(t, st, cfg)
		require.NoError(t, st.Drop(ctx, cfg.Tables.Counties))

		eng := &mockEngine{}
		sum, err := New(cfg, st, WithEngine(eng)).Run(ctx, StageAnalyze)
		require.ErrorIs(t, err, ErrPrecondition)
		assert.Contains(t, err.Error(), cfg.Tables.Counties)
		assert.Empty(t, sum.Steps)
		eng.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	})

	t.Run("postprocess alone needs frequency tables", func(t *testing.T) {
		cfg := testConfig(t.TempDir())
		st := newTestStore(t)
		seedStore(t, st, cfg)
		_, err := New(cfg, st).Run(ctx, StagePostprocess)
		require.ErrorIs(t, err, ErrPrecondition)
		assert.Contains(t, err.Error(), "MaxDown_Area")
	})
}

func TestRun_ContinueOnError(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t.TempDir())
	st := newTestStore(t)
	seedStore(t, st, cfg)

	eng := &mockEngine{}
	eng.On("Run", mock.Anything, opIs(engine.OpIdentity, cfg.Tables.AddressServiceFinal)).Return(eris.New("overlay failed"))
	eng.On("Run", mock.Anything, mock.Anything).Return(nil)

	sum, err := New(cfg, st, WithEngine(eng)).Run(ctx, StageAnalyze)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed())
	require.Len(t, sum.Warnings, 1)
	assert.Contains(t, sum.Warnings[0], "analyze/identity")

	status := make(map[string]Status)
	for _, s := range sum.Steps {
		status[s.Step] = s.Status
	}
	assert.Equal(t, StatusOK, status["composite_key"])
	assert.Equal(t, StatusOK, status["pairwise_intersect"])
	assert.Equal(t, StatusFailed, status["identity"])
	for _, name := range []string{"add_keys", "populate_keys", "no_service_normalize", "no_service_table", "no_service_identity", "no_service_join"} {
		assert.Equal(t, StatusSkipped, status[name], name)
	}

	// No dependent overlay was attempted.
	eng.AssertNotCalled(t, "Run", mock.Anything, opIs(engine.OpIdentity, cfg.Tables.NoServiceID))

	// The address table was never rewritten.
	asf, err := st.Load(ctx, cfg.Tables.AddressServiceFinal)
	require.NoError(t, err)
	assert.False(t, asf.HasField("Provider"))
}

func TestRun_AbortOnError(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t.TempDir())
	cfg.Pipeline.ContinueOnError = false
	st := newTestStore(t)
	seedStore(t, st, cfg)

	eng := &mockEngine{}
	eng.On("Run", mock.Anything, opIs(engine.OpIdentity, cfg.Tables.AddressServiceFinal)).Return(eris.New("overlay failed"))
	eng.On("Run", mock.Anything, mock.Anything).Return(nil)

	p := New(cfg, st, WithEngine(eng))
	sum, err := p.Run(ctx, StageAnalyze, StageStats)
	require.Error(t, err)

	var se *StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageAnalyze, se.Stage)
	assert.Equal(t, "identity", se.Step)
	assert.Equal(t, cfg.Tables.AddressServiceFinal, se.Table)

	assert.Len(t, sum.Steps, 5)
	assert.Equal(t, 0.0, testutil.ToFloat64(p.Metrics().LastRunOK))

	m, err := ReadManifest(filepath.Join(cfg.Output.Dir, ManifestName))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, m.Steps[4].Status)
}

func TestRun_MaterializedEngineMissingOutput(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t.TempDir())
	cfg.Pipeline.ContinueOnError = false
	st := newTestStore(t)
	seedStore(t, st, cfg)
	require.NoError(t, st.Drop(ctx, cfg.Tables.ServiceDissolve))

	_, err := New(cfg, st).Run(ctx, StageAnalyze)
	require.ErrorIs(t, err, engine.ErrOutputMissing)

	var ee *engine.Error
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, engine.OpDissolve, ee.Task.Op)
}

func TestRun_Cancelled(t *testing.T) {
	cfg := testConfig(t.TempDir())
	st := newTestStore(t)
	seedStore(t, st, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(cfg, st).Run(ctx, StageStats)
	require.ErrorIs(t, err, context.Canceled)
}
