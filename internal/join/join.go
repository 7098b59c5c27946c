// Package join copies attribute columns from a source table onto a target
// table by foreign key using a two-pass hash join.
package join

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/broadband-cli/internal/model"
)

// Spec names the key and value columns on both sides of a join.
// SourceFields and TargetFields are matched by position.
type Spec struct {
	SourceKey    string
	SourceFields []string
	TargetKey    string
	TargetFields []string
}

// Result summarizes one join.
type Result struct {
	Indexed    int // distinct keys in the index
	Duplicates int // source rows that overwrote an earlier key
	Matched    int // target rows updated
	Unmatched  int // target rows left unchanged
}

// Op identifies the phase of a join that failed.
type Op string

// Join phases.
const (
	OpValidate Op = "validate"
	OpIndex    Op = "index"
	OpProbe    Op = "probe"
)

// Error reports which table pair and phase of a join failed.
type Error struct {
	Source string
	Target string
	Op     Op
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("join: %s onto %s: %s: %v", e.Source, e.Target, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Index maps a foreign-key value to the tuple of joined values.
type Index struct {
	entries map[model.Key][]model.Value
}

// Lookup returns the tuple for key.
func (ix *Index) Lookup(key model.Value) ([]model.Value, bool) {
	vals, ok := ix.entries[key.Key()]
	return vals, ok
}

// Len returns the number of distinct keys.
func (ix *Index) Len() int { return len(ix.entries) }

// BuildIndex scans source once, keyed by keyField, capturing valueFields in
// order. Null keys are skipped. Later rows overwrite earlier rows with the
// same key; the number of overwrites is returned.
func BuildIndex(source *model.Table, keyField string, valueFields []string) (*Index, int, error) {
	keyIdx := source.Index(keyField)
	if keyIdx < 0 {
		return nil, 0, &model.FieldError{Table: source.Name, Field: keyField, Reason: "missing"}
	}
	valIdx := make([]int, len(valueFields))
	for i, f := range valueFields {
		valIdx[i] = source.Index(f)
		if valIdx[i] < 0 {
			return nil, 0, &model.FieldError{Table: source.Name, Field: f, Reason: "missing"}
		}
	}

	ix := &Index{entries: make(map[model.Key][]model.Value, source.Len())}
	var dups int
	for _, r := range source.Rows() {
		k := r.At(keyIdx)
		if k.IsNull() {
			continue
		}
		tuple := make([]model.Value, len(valIdx))
		for i, vi := range valIdx {
			tuple[i] = r.At(vi)
		}
		key := k.Key()
		if _, ok := ix.entries[key]; ok {
			dups++
		}
		ix.entries[key] = tuple
	}
	return ix, dups, nil
}

// PrepareTarget creates any missing target value fields, copying the kind of
// the matching source field. Existing fields are left alone, so it is safe to
// call repeatedly. It returns the names of the fields it created.
func PrepareTarget(source, target *model.Table, spec Spec) ([]string, error) {
	if err := validateSpec(spec); err != nil {
		return nil, &Error{Source: source.Name, Target: target.Name, Op: OpValidate, Err: err}
	}
	var created []string
	for i, name := range spec.TargetFields {
		kind := model.KindText
		if f, ok := source.Field(spec.SourceFields[i]); ok {
			kind = f.Kind
		}
		if target.EnsureField(name, kind) {
			created = append(created, name)
		}
	}
	return created, nil
}

// HashJoin overwrites spec.TargetFields on every target row whose key is in
// the source, with the source's spec.SourceFields from the last source row
// carrying that key. Rows without a match are left unmodified. The target
// schema must already contain every target field; see PrepareTarget.
func HashJoin(source, target *model.Table, spec Spec) (Result, error) {
	fail := func(op Op, err error) (Result, error) {
		return Result{}, &Error{Source: source.Name, Target: target.Name, Op: op, Err: err}
	}

	if err := validateSpec(spec); err != nil {
		return fail(OpValidate, err)
	}
	if err := target.RequireFields(append([]string{spec.TargetKey}, spec.TargetFields...)...); err != nil {
		return fail(OpValidate, err)
	}

	ix, dups, err := BuildIndex(source, spec.SourceKey, spec.SourceFields)
	if err != nil {
		return fail(OpIndex, err)
	}

	res := Result{Indexed: ix.Len(), Duplicates: dups}
	keyIdx := target.Index(spec.TargetKey)
	dst := make([]int, len(spec.TargetFields))
	for i, f := range spec.TargetFields {
		dst[i] = target.Index(f)
	}

	for row, r := range target.Rows() {
		k := r.At(keyIdx)
		if k.IsNull() {
			res.Unmatched++
			continue
		}
		tuple, ok := ix.Lookup(k)
		if !ok {
			res.Unmatched++
			continue
		}
		for i, di := range dst {
			if err := r.SetAt(di, tuple[i]); err != nil {
				return fail(OpProbe, eris.Wrapf(err, "row %d", row))
			}
		}
		res.Matched++
	}
	return res, nil
}

func validateSpec(spec Spec) error {
	if spec.SourceKey == "" || spec.TargetKey == "" {
		return eris.New("key fields must be named")
	}
	if len(spec.SourceFields) == 0 {
		return eris.New("no value fields")
	}
	if len(spec.SourceFields) != len(spec.TargetFields) {
		return eris.Errorf("%d source fields but %d target fields", len(spec.SourceFields), len(spec.TargetFields))
	}
	return nil
}
