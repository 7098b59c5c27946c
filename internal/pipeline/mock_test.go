package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/broadband-cli/internal/config"
	"github.com/sells-group/broadband-cli/internal/engine"
	"github.com/sells-group/broadband-cli/internal/model"
	"github.com/sells-group/broadband-cli/internal/store"
)

// --- Engine Mock ---

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Run(ctx context.Context, task engine.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func opIs(op engine.Op, output string) any {
	return mock.MatchedBy(func(task engine.Task) bool {
		return task.Op == op && task.Output == output
	})
}

// --- Fixtures ---

func testConfig(dir string) *config.Config {
	return &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: ":memory:"},
		Tables: config.TablesConfig{
			BBService:           "Utilities_BroadbandService_20200930",
			AddressPoints:       "AddressPoints_20200923",
			Counties:            "county_boundaries",
			Municipal:           "municipal_boundaries",
			Unincorp:            "unincorporated_boundaries",
			AnalysisAreas:       "Analysis_Areas",
			ServiceDissolve:     "BB_Service_Dissolve",
			ServicePairwise:     "BB_Service_Dissolve_Pairwise",
			NoServiceID:         "NoService_Id",
			AddressServiceFinal: "Address_Service_Final",
			NoService:           "NoService",
			MSBA:                "MSBA",
			AddressCountArea:    "AddressCount_AreaName",
			AddressCountType:    "AddressCount_AreaType",
			AddressCountCounty:  "AddressCount_County",
		},
		Fields: config.FieldsConfig{
			AddressID:   "FID_AddressPoints",
			Key:         "Key",
			KeySources:  []string{"UTProvCode", "TRANSTECH", "MAXADDOWN", "MAXADUP"},
			Name:        "NAME",
			AreaType:    "AREA_TYPE",
			CountyNbr:   "COUNTYNBR",
			IdentitySfx: "_1",
		},
		Output:   config.OutputConfig{Dir: dir, Manifest: true},
		Pipeline: config.PipelineConfig{ContinueOnError: true, LogEvery: 2},
	}
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(t.TempDir() + "/broadband.db")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

func saveTable(t *testing.T, st store.Store, name string, fields []model.Field, rows ...[]model.Value) {
	t.Helper()
	tbl := model.NewTable(name, fields...)
	for _, r := range rows {
		_, err := tbl.Append(r...)
		require.NoError(t, err)
	}
	require.NoError(t, st.Save(context.Background(), tbl))
}

func text(name string) model.Field { return model.Field{Name: name, Kind: model.KindText} }
func integer(name string) model.Field { return model.Field{Name: name, Kind: model.KindInteger} }
func float(name string) model.Field { return model.Field{Name: name, Kind: model.KindFloat} }

// seedStore writes the input layers and the overlay outputs an external GIS
// would have produced for three addresses in Wayne County: two served in
// Bicknell, one unserved in unincorporated Lyman.
func seedStore(t *testing.T, st store.Store, cfg *config.Config) {
	t.Helper()
	tb := cfg.Tables
	area := []model.Field{text("NAME")}

	saveTable(t, st, tb.BBService,
		[]model.Field{text("UTProvCode"), integer("TRANSTECH"), float("MAXADDOWN"), float("MAXADUP")},
		[]model.Value{model.Text("P1"), model.Int(50), model.Float(100), model.Float(10)},
		[]model.Value{model.Text("P2"), model.Int(10), model.Float(25), model.Float(3)},
	)
	saveTable(t, st, tb.AddressPoints, []model.Field{integer("OBJECTID")}, []model.Value{model.Int(1)})
	saveTable(t, st, tb.Counties,
		[]model.Field{integer("COUNTYNBR"), text("NAME")},
		[]model.Value{model.Int(28), model.Text("Wayne")},
	)
	saveTable(t, st, tb.Municipal, area, []model.Value{model.Text("Bicknell")})
	saveTable(t, st, tb.Unincorp, area, []model.Value{model.Text("Lyman")})
	saveTable(t, st, tb.AnalysisAreas, area, []model.Value{model.Text("Bicknell")})
	saveTable(t, st, tb.ServiceDissolve, []model.Field{text("Key")}, []model.Value{model.Text("P1|50|100|10")})
	saveTable(t, st, tb.ServicePairwise, []model.Field{text("Key")}, []model.Value{model.Text("P1|50|100|10")})

	saveTable(t, st, tb.AddressServiceFinal,
		[]model.Field{
			integer("FID_AddressPoints"), text("Key"), text("NAME"), text("AREA_TYPE"),
			integer("COUNTYNBR"), float("SHAPE_X"), float("SHAPE_Y"),
		},
		[]model.Value{model.Int(1), model.Text("P1|50|100|10"), model.Text("Bicknell"), model.Text("Municipal"), model.Int(28), model.Float(-111.5), model.Float(38.3)},
		[]model.Value{model.Int(1), model.Text("P2|10|25|3"), model.Text("Bicknell"), model.Text("Municipal"), model.Int(28), model.Float(-111.5), model.Float(38.3)},
		[]model.Value{model.Int(2), model.Text("P1|50|30|5"), model.Text("Bicknell"), model.Text("Municipal"), model.Int(28), model.Float(-111.6), model.Float(38.4)},
		[]model.Value{model.Int(3), model.Null(), model.Null(), model.Null(), model.Null(), model.Float(-111.7), model.Float(38.5)},
	)
	saveTable(t, st, tb.NoServiceID,
		[]model.Field{integer("FID_AddressPoints"), text("NAME_1"), text("AREA_TYPE_1"), integer("COUNTYNBR_1")},
		[]model.Value{model.Int(3), model.Text("Lyman"), model.Text("Unincorporated"), model.Int(28)},
	)
}
