// Package stats computes the grouped summary tables the coverage reports are
// built from: per-address maximum speeds, address counts, and tier
// frequencies.
package stats

import (
	"cmp"
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/broadband-cli/internal/model"
)

// FrequencyField names the row-count column on every summary table.
const FrequencyField = "FREQUENCY"

// group is one distinct combination of grouping values.
type group struct {
	values []model.Value
	rows   []*model.Record
}

// groupBy partitions rows by the given fields, in first-seen order. Nulls form
// their own group.
func groupBy(t *model.Table, fields []string) ([]*group, error) {
	if err := t.RequireFields(fields...); err != nil {
		return nil, err
	}
	idx := make([]int, len(fields))
	for i, f := range fields {
		idx[i] = t.Index(f)
	}

	byKey := make(map[string]*group)
	var order []*group
	var sb strings.Builder
	for _, r := range t.Rows() {
		sb.Reset()
		vals := make([]model.Value, len(idx))
		for i, fi := range idx {
			vals[i] = r.At(fi)
			sb.WriteString(vals[i].Key().String())
			sb.WriteByte(0)
		}
		g, ok := byKey[sb.String()]
		if !ok {
			g = &group{values: vals}
			byKey[sb.String()] = g
			order = append(order, g)
		}
		g.rows = append(g.rows, r)
	}
	return order, nil
}

// MaxByGroup summarizes src by groupField, emitting FREQUENCY and MAX_<field>
// for each of fields. Null values are ignored by MAX; a group with no
// non-null values gets a null maximum.
func MaxByGroup(src *model.Table, groupField string, fields []string, out string) (*model.Table, error) {
	if err := src.RequireFields(fields...); err != nil {
		return nil, eris.Wrap(err, "stats: max")
	}
	groups, err := groupBy(src, []string{groupField})
	if err != nil {
		return nil, eris.Wrap(err, "stats: max")
	}

	gf, _ := src.Field(groupField)
	schema := []model.Field{gf, {Name: FrequencyField, Kind: model.KindInteger}}
	for _, f := range fields {
		schema = append(schema, model.Field{Name: "MAX_" + f, Kind: model.KindFloat})
	}
	tbl := model.NewTable(out, schema...)

	fidx := make([]int, len(fields))
	for i, f := range fields {
		fidx[i] = src.Index(f)
	}
	for _, g := range groups {
		row := []model.Value{g.values[0], model.Int(int64(len(g.rows)))}
		for _, fi := range fidx {
			row = append(row, maxOf(g.rows, fi))
		}
		if _, err := tbl.Append(row...); err != nil {
			return nil, eris.Wrap(err, "stats: max")
		}
	}
	return tbl, nil
}

func maxOf(rows []*model.Record, idx int) model.Value {
	found := false
	var best float64
	for _, r := range rows {
		f, ok := r.At(idx).Float64()
		if !ok {
			continue
		}
		if !found || f > best {
			best = f
			found = true
		}
	}
	if !found {
		return model.Null()
	}
	return model.Float(best)
}

// CountByGroup summarizes src by groupFields, emitting FREQUENCY and
// COUNT_<countField>, the number of non-null countField values.
func CountByGroup(src *model.Table, groupFields []string, countField, out string) (*model.Table, error) {
	if err := src.RequireFields(countField); err != nil {
		return nil, eris.Wrap(err, "stats: count")
	}
	groups, err := groupBy(src, groupFields)
	if err != nil {
		return nil, eris.Wrap(err, "stats: count")
	}

	var schema []model.Field
	for _, f := range groupFields {
		gf, _ := src.Field(f)
		schema = append(schema, gf)
	}
	schema = append(schema,
		model.Field{Name: FrequencyField, Kind: model.KindInteger},
		model.Field{Name: "COUNT_" + countField, Kind: model.KindInteger},
	)
	tbl := model.NewTable(out, schema...)

	ci := src.Index(countField)
	for _, g := range groups {
		var n int64
		for _, r := range g.rows {
			if !r.At(ci).IsNull() {
				n++
			}
		}
		row := append(slices.Clone(g.values), model.Int(int64(len(g.rows))), model.Int(n))
		if _, err := tbl.Append(row...); err != nil {
			return nil, eris.Wrap(err, "stats: count")
		}
	}
	return tbl, nil
}

// Frequency counts rows of src for each distinct combination of fields. The
// output holds FREQUENCY followed by fields and is sorted by fields in order,
// nulls first.
func Frequency(src *model.Table, fields []string, out string) (*model.Table, error) {
	groups, err := groupBy(src, fields)
	if err != nil {
		return nil, eris.Wrap(err, "stats: frequency")
	}
	slices.SortStableFunc(groups, func(a, b *group) int {
		for i := range a.values {
			if c := compareValues(a.values[i], b.values[i]); c != 0 {
				return c
			}
		}
		return 0
	})

	schema := []model.Field{{Name: FrequencyField, Kind: model.KindInteger}}
	for _, f := range fields {
		ff, _ := src.Field(f)
		schema = append(schema, ff)
	}
	tbl := model.NewTable(out, schema...)
	for _, g := range groups {
		row := append([]model.Value{model.Int(int64(len(g.rows)))}, g.values...)
		if _, err := tbl.Append(row...); err != nil {
			return nil, eris.Wrap(err, "stats: frequency")
		}
	}
	return tbl, nil
}

// compareValues orders nulls first, numbers numerically, text bytewise.
func compareValues(a, b model.Value) int {
	switch {
	case a.IsNull() && b.IsNull():
		return 0
	case a.IsNull():
		return -1
	case b.IsNull():
		return 1
	}
	af, aok := a.Float64()
	bf, bok := b.Float64()
	if aok && bok {
		return cmp.Compare(af, bf)
	}
	return strings.Compare(a.Str(), b.Str())
}

// CompositeField writes the values of srcs joined by sep into dst, creating
// dst as a text field if needed. A row with any null source gets a null dst.
func CompositeField(t *model.Table, dst, sep string, srcs ...string) error {
	if err := t.RequireFields(srcs...); err != nil {
		return eris.Wrap(err, "stats: composite")
	}
	t.EnsureField(dst, model.KindText)
	di := t.Index(dst)
	idx := make([]int, len(srcs))
	for i, s := range srcs {
		idx[i] = t.Index(s)
	}

	parts := make([]string, len(srcs))
	for row, r := range t.Rows() {
		v := model.Null()
		complete := true
		for i, si := range idx {
			sv := r.At(si)
			if sv.IsNull() {
				complete = false
				break
			}
			parts[i] = sv.Str()
		}
		if complete {
			v = model.Text(strings.Join(parts, sep))
		}
		if err := r.SetAt(di, v); err != nil {
			return eris.Wrapf(err, "stats: composite row %d", row)
		}
	}
	return nil
}
