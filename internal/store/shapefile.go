package store

import (
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/broadband-cli/internal/model"
)

// Coordinate columns appended to every imported shapefile table.
const (
	ShapeXField = "SHAPE_X"
	ShapeYField = "SHAPE_Y"
)

// dbfKind maps a DBF field descriptor to a Kind.
func dbfKind(f shp.Field) model.Kind {
	switch f.Fieldtype {
	case 'N':
		if f.Precision == 0 {
			return model.KindInteger
		}
		return model.KindFloat
	case 'F':
		return model.KindFloat
	default:
		return model.KindText
	}
}

// TableName derives a table name from a shapefile path.
func TableName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// ReadShapefile reads the DBF attributes of a shapefile into a table named
// name, plus SHAPE_X and SHAPE_Y. Points contribute their coordinates; other
// shapes contribute the center of their bounds. Empty attributes are null.
func ReadShapefile(path, name string) (*model.Table, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	dbf := reader.Fields()
	fields := make([]model.Field, 0, len(dbf)+2)
	for _, f := range dbf {
		fields = append(fields, model.Field{
			Name: strings.TrimRight(f.String(), "\x00"),
			Kind: dbfKind(f),
		})
	}
	fields = append(fields,
		model.Field{Name: ShapeXField, Kind: model.KindFloat},
		model.Field{Name: ShapeYField, Kind: model.KindFloat},
	)
	t := model.NewTable(name, fields...)

	var bad, noShape int
	vals := make([]model.Value, len(fields))
	for reader.Next() {
		_, shape := reader.Shape()

		for i := range dbf {
			raw := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if raw == "" {
				vals[i] = model.Null()
				continue
			}
			v, err := model.Coerce(model.Text(raw), fields[i].Kind)
			if err != nil {
				bad++
				v = model.Null()
			}
			vals[i] = v
		}

		vals[len(dbf)], vals[len(dbf)+1] = model.Null(), model.Null()
		if x, y, ok := labelPoint(shape); ok {
			vals[len(dbf)], vals[len(dbf)+1] = model.Float(x), model.Float(y)
		} else {
			noShape++
		}

		if _, err := t.Append(vals...); err != nil {
			return nil, eris.Wrapf(err, "store: read shapefile %s", path)
		}
	}

	if bad > 0 || noShape > 0 {
		zap.L().Debug("store: shapefile values left null",
			zap.String("table", name),
			zap.Int("unparsed_attributes", bad),
			zap.Int("missing_shapes", noShape),
		)
	}
	return t, nil
}

// toGeom converts a go-shp shape to a go-geom geometry. It returns nil for
// unsupported or empty shapes.
func toGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.PointZ:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.Polygon:
		return multiPoint(s.Points)
	case *shp.PolyLine:
		return multiPoint(s.Points)
	case *shp.MultiPoint:
		return multiPoint(s.Points)
	default:
		return nil
	}
}

func multiPoint(pts []shp.Point) geom.T {
	if len(pts) == 0 {
		return nil
	}
	flat := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		flat = append(flat, p.X, p.Y)
	}
	return geom.NewMultiPointFlat(geom.XY, flat)
}

// labelPoint returns a representative coordinate for shape.
func labelPoint(shape shp.Shape) (float64, float64, bool) {
	if shape == nil {
		return 0, 0, false
	}
	g := toGeom(shape)
	if g == nil {
		return 0, 0, false
	}
	if p, ok := g.(*geom.Point); ok {
		return p.X(), p.Y(), true
	}
	b := g.Bounds()
	return (b.Min(0) + b.Max(0)) / 2, (b.Min(1) + b.Max(1)) / 2, true
}
