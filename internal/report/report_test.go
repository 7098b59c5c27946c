package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/broadband-cli/internal/stats"
	"github.com/sells-group/broadband-cli/internal/tier"
)

func bicknell() []stats.FrequencyRow {
	return []stats.FrequencyRow{
		{Group: "Bicknell|Municipality", HasGroup: true, Tier: 5, Frequency: 188},
		{Group: "Bicknell|Municipality", HasGroup: true, Tier: 6, Frequency: 199},
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		name         string
		count, total int64
		want         string
	}{
		{"bicknell tier 5", 188, 387, "0.486"},
		{"bicknell tier 6", 199, 387, "0.514"},
		{"zero total", 0, 0, "0"},
		{"zero count", 0, 10, "0"},
		{"whole", 4, 4, "1"},
		{"third", 1, 3, "0.333"},
		{"tie rounds to even", 1, 16, "0.062"},
		{"tie rounds up to even", 3, 16, "0.188"},
		{"eightieth rounds up from binary", 1, 80, "0.013"},
		{"three eightieths rounds down from binary", 3, 80, "0.037"},
		{"seven eightieths rounds down from binary", 7, 80, "0.087"},
		{"forty eightieths", 40, 80, "0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Percentage(tt.count, tt.total).String())
		})
	}
}

func TestAggregate_Bicknell(t *testing.T) {
	rows, err := Aggregate(bicknell(), Options{Kind: tier.KindDownload, Geometry: GeometryArea})
	require.NoError(t, err)

	catalog, err := tier.CatalogFor(tier.KindDownload)
	require.NoError(t, err)
	require.Len(t, rows, len(catalog.Labels))

	for i, r := range rows {
		assert.Equal(t, "Bicknell", r.AreaName)
		assert.Equal(t, "Municipality", r.AreaType)
		assert.Equal(t, catalog.Labels[i].Code, r.Code)
		assert.Equal(t, catalog.Labels[i].Label, r.Label)
		assert.Equal(t, int64(387), r.Total)

		switch r.Code {
		case 5:
			assert.Equal(t, "0.486", r.Percentage.String())
			assert.Equal(t, int64(188), r.Count)
		case 6:
			assert.Equal(t, "0.514", r.Percentage.String())
			assert.Equal(t, int64(199), r.Count)
		default:
			assert.True(t, r.Percentage.IsZero())
			assert.Zero(t, r.Count)
		}
	}
}

func TestAggregate_PercentageLaw(t *testing.T) {
	in := []stats.FrequencyRow{
		{Group: "Alpine|Municipality", HasGroup: true, Tier: 0, Frequency: 3},
		{Group: "Alpine|Municipality", HasGroup: true, Tier: 8, Frequency: 1},
		{Group: "Alpine|Municipality", HasGroup: true, Tier: 10, Frequency: 7},
		{Group: "Empty|Other", HasGroup: true, Tier: 4, Frequency: 0},
	}
	rows, err := Aggregate(in, Options{Kind: tier.KindUpload, Geometry: GeometryArea})
	require.NoError(t, err)

	type tally struct {
		freq, total int64
		pct         decimal.Decimal
		nonzero     int
	}
	byGroup := map[string]*tally{}
	for _, r := range rows {
		g, ok := byGroup[r.AreaName]
		if !ok {
			g = &tally{}
			byGroup[r.AreaName] = g
		}
		g.freq += r.Count
		g.total = r.Total
		g.pct = g.pct.Add(r.Percentage)
		if r.Count > 0 {
			g.nonzero++
		}
	}

	alpine := byGroup["Alpine"]
	assert.Equal(t, alpine.total, alpine.freq)
	tolerance := decimal.RequireFromString("0.0005").Mul(decimal.NewFromInt(int64(alpine.nonzero)))
	assert.True(t, alpine.pct.Sub(decimal.NewFromInt(1)).Abs().LessThanOrEqual(tolerance), "sum %s", alpine.pct)

	empty := byGroup["Empty"]
	assert.Zero(t, empty.total)
	assert.True(t, empty.pct.IsZero())
}

func TestAggregate_SortedAndNullDropped(t *testing.T) {
	in := []stats.FrequencyRow{
		{Group: "Torrey|Municipality", HasGroup: true, Tier: 7, Frequency: 2},
		{HasGroup: false, Tier: 7, Frequency: 50},
		{Group: "Abajo|Unincorporated", HasGroup: true, Tier: 7, Frequency: 1},
		{Group: "Bicknell|Municipality", HasGroup: true, Tier: 7, Frequency: 9},
	}
	rows, err := Aggregate(in, Options{Kind: tier.KindDownload, Geometry: GeometryArea})
	require.NoError(t, err)

	var order []string
	for _, r := range rows {
		if len(order) == 0 || order[len(order)-1] != r.AreaName {
			order = append(order, r.AreaName)
		}
		assert.NotEqual(t, int64(50), r.Total)
	}
	assert.Equal(t, []string{"Abajo", "Bicknell", "Torrey"}, order)
}

func TestAggregate_LastWriteWins(t *testing.T) {
	in := []stats.FrequencyRow{
		{Group: "Wayne", HasGroup: true, Tier: 9, Frequency: 4},
		{Group: "Wayne", HasGroup: true, Tier: 9, Frequency: 6},
	}
	rows, err := Aggregate(in, Options{Kind: tier.KindDownload, Geometry: GeometryCounty})
	require.NoError(t, err)
	for _, r := range rows {
		assert.Equal(t, "Wayne", r.AreaName)
		assert.Equal(t, "County", r.AreaType)
		assert.Equal(t, int64(6), r.Total)
	}
}

func TestAggregate_AreaKeys(t *testing.T) {
	in := []stats.FrequencyRow{
		{Group: "Loa", HasGroup: true, Tier: 0, Frequency: 1},
		{Group: "Fish|Lake|Other", HasGroup: true, Tier: 0, Frequency: 1},
	}
	rows, err := Aggregate(in, Options{Kind: tier.KindDownload, Geometry: GeometryArea})
	require.NoError(t, err)

	assert.Equal(t, "Fish", rows[0].AreaName)
	assert.Equal(t, "Lake|Other", rows[0].AreaType)
	last := rows[len(rows)-1]
	assert.Equal(t, "Loa", last.AreaName)
	assert.Equal(t, "", last.AreaType)
}

func TestAggregate_Errors(t *testing.T) {
	_, err := Aggregate([]stats.FrequencyRow{{Group: "Loa|Municipality", HasGroup: true, Tier: 2, Frequency: 1}},
		Options{Kind: tier.KindDownload, Geometry: GeometryArea})
	var ut *UnknownTierError
	require.True(t, errors.As(err, &ut))
	assert.Equal(t, 2, ut.Code)

	// Code 2 is a valid upload tier.
	_, err = Aggregate([]stats.FrequencyRow{{Group: "Loa|Municipality", HasGroup: true, Tier: 2, Frequency: 1}},
		Options{Kind: tier.KindUpload, Geometry: GeometryArea})
	require.NoError(t, err)

	_, err = Aggregate(nil, Options{Kind: "Latency", Geometry: GeometryArea})
	require.Error(t, err)
	_, err = Aggregate(nil, Options{Kind: tier.KindDownload, Geometry: "Tract"})
	require.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	rows, err := Aggregate(bicknell(), Options{Kind: tier.KindDownload, Geometry: GeometryArea})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, len(rows)+1)
	assert.Equal(t, Header, records[0])
	assert.Equal(t, []string{"Bicknell", "Municipality", "0", "Unserved", "0", "0", "387"}, records[1])
	assert.Equal(t, []string{"Bicknell", "Municipality", "5", "3-5.9 Mbps", "0.486", "188", "387"}, records[4])
}

func TestWriteCSVFile(t *testing.T) {
	dir := t.TempDir()
	rep, err := Build(bicknell(), Options{Kind: tier.KindDownload, Geometry: GeometryArea})
	require.NoError(t, err)

	path, err := WriteCSVFile(dir, rep)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "MaxDown_Area.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "AreaName,AreaType,NTIA Speed Code")
}

func TestWriteXLSX(t *testing.T) {
	down, err := Build(bicknell(), Options{Kind: tier.KindDownload, Geometry: GeometryArea})
	require.NoError(t, err)
	up, err := Build(nil, Options{Kind: tier.KindUpload, Geometry: GeometryCounty})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteXLSX(path, []Report{down, up}))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	sheet, ok := f.Sheet["MaxDown_Area"]
	require.True(t, ok)
	require.Len(t, sheet.Rows, len(down.Rows)+1)
	assert.Equal(t, "AreaName", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "3-5.9 Mbps", sheet.Rows[4].Cells[3].String())

	_, ok = f.Sheet["MaxUp_County"]
	assert.True(t, ok)
}
