// Package normalize rewrites absent numeric values before classification and
// aggregation read them.
package normalize

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/broadband-cli/internal/model"
)

// NormalizeNumeric rewrites every null value of field to zero and returns the
// number of values rewritten. Rows that already hold a value are not touched,
// so a second pass returns 0.
func NormalizeNumeric(t *model.Table, field string) (int, error) {
	idx := t.Index(field)
	if idx < 0 {
		return 0, &model.FieldError{Table: t.Name, Field: field, Reason: "missing"}
	}
	f, _ := t.Field(field)
	if f.Kind != model.KindFloat && f.Kind != model.KindInteger {
		return 0, &model.FieldError{Table: t.Name, Field: field, Reason: "not numeric (" + f.Kind.String() + ")"}
	}

	var n int
	for i, r := range t.Rows() {
		if !r.At(idx).IsNull() {
			continue
		}
		if err := r.SetAt(idx, model.Int(0)); err != nil {
			return n, eris.Wrapf(err, "normalize: %s row %d", t.Name, i)
		}
		n++
	}
	return n, nil
}

// NormalizeFields runs NormalizeNumeric for each field in turn and returns the
// per-field rewrite counts.
func NormalizeFields(t *model.Table, fields ...string) (map[string]int, error) {
	counts := make(map[string]int, len(fields))
	for _, f := range fields {
		n, err := NormalizeNumeric(t, f)
		if err != nil {
			return counts, err
		}
		counts[f] = n
	}
	return counts, nil
}
