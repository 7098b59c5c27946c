// Package report turns tier frequency tables into the percentage-annotated
// coverage reports handed to analysts.
package report

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/broadband-cli/internal/stats"
	"github.com/sells-group/broadband-cli/internal/tier"
)

// Geometry is the kind of area a report groups by.
type Geometry string

// Report geometries.
const (
	GeometryArea   Geometry = "Area"
	GeometryCounty Geometry = "County"
)

// Geometries lists report geometries in output order.
var Geometries = []Geometry{GeometryArea, GeometryCounty}

// countyAreaType fills AreaType on county reports.
const countyAreaType = "County"

// areaSeparator joins area name and area type in an area group key.
const areaSeparator = "|"

// percentPlaces is the number of decimal places kept on percentages.
const percentPlaces = 3

// Row is one (group, tier) line of a report.
type Row struct {
	AreaName   string
	AreaType   string
	Code       int
	Label      string
	Percentage decimal.Decimal
	Count      int64
	Total      int64
}

// Options selects the catalog and group key interpretation.
type Options struct {
	Kind     tier.Kind
	Geometry Geometry
}

// Name returns the report's table and file stem, e.g. "MaxDown_Area".
func (o Options) Name() string {
	return fmt.Sprintf("%s_%s", o.Kind, o.Geometry)
}

// Report is a named, ordered set of rows.
type Report struct {
	Options
	Rows []Row
}

// UnknownTierError reports an observed tier code missing from the catalog.
type UnknownTierError struct {
	Kind  tier.Kind
	Group string
	Code  int
}

func (e *UnknownTierError) Error() string {
	return fmt.Sprintf("report: %s tier %d in group %q is not in the catalog", e.Kind, e.Code, e.Group)
}

// Percentage returns count/total rounded to three places, or zero when total
// is zero. The quotient is rounded as a float64, so a decimal tie that is not
// exact in binary rounds toward the side the binary value lies on.
func Percentage(count, total int64) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	s := strconv.FormatFloat(float64(count)/float64(total), 'f', percentPlaces, 64)
	d, err := decimal.NewFromString(s)
	if err != nil {
		zap.L().Warn("report: unparseable percentage", zap.String("value", s), zap.Error(err))
		return decimal.Zero
	}
	return d
}

// Aggregate groups frequency rows, zero-fills every catalog tier, and emits
// rows sorted by group key then catalog order. Rows with a null group are
// dropped. A later row for the same (group, tier) replaces an earlier one.
func Aggregate(rows []stats.FrequencyRow, opts Options) ([]Row, error) {
	catalog, err := tier.CatalogFor(opts.Kind)
	if err != nil {
		return nil, eris.Wrap(err, "report: aggregate")
	}
	if opts.Geometry != GeometryArea && opts.Geometry != GeometryCounty {
		return nil, eris.Errorf("report: unknown geometry %q", opts.Geometry)
	}

	groups := make(map[string]map[int]int64)
	for _, r := range rows {
		if !r.HasGroup {
			continue
		}
		if _, ok := catalog.Lookup(r.Tier); !ok {
			return nil, &UnknownTierError{Kind: opts.Kind, Group: r.Group, Code: r.Tier}
		}
		g, ok := groups[r.Group]
		if !ok {
			g = make(map[int]int64)
			groups[r.Group] = g
		}
		g[r.Tier] = r.Frequency
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]Row, 0, len(keys)*len(catalog.Labels))
	for _, key := range keys {
		freq := groups[key]
		var total int64
		for _, code := range catalog.Codes() {
			total += freq[code]
		}

		name, areaType := splitGroup(key, opts.Geometry)
		for _, l := range catalog.Labels {
			count := freq[l.Code]
			out = append(out, Row{
				AreaName:   name,
				AreaType:   areaType,
				Code:       l.Code,
				Label:      l.Label,
				Percentage: Percentage(count, total),
				Count:      count,
				Total:      total,
			})
		}
	}
	return out, nil
}

// Build aggregates rows into a named report.
func Build(rows []stats.FrequencyRow, opts Options) (Report, error) {
	out, err := Aggregate(rows, opts)
	if err != nil {
		return Report{}, err
	}
	return Report{Options: opts, Rows: out}, nil
}

// splitGroup separates an area key into name and type on the first
// separator. County keys are plain names.
func splitGroup(key string, geom Geometry) (string, string) {
	if geom == GeometryCounty {
		return key, countyAreaType
	}
	name, areaType, ok := strings.Cut(key, areaSeparator)
	if !ok {
		zap.L().Warn("report: area key has no type", zap.String("group", key))
	}
	return name, areaType
}
