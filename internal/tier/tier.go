// Package tier classifies advertised speeds (Mbps) into the NTIA speed tier
// codes used by the coverage reports.
package tier

import (
	"errors"
	"fmt"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/broadband-cli/internal/model"
)

// Breakpoint starts a tier at Lower (inclusive).
type Breakpoint struct {
	Lower float64
	Code  int
}

// Table maps a measurement to a tier code. Values below the first breakpoint
// get Floor; each breakpoint applies up to (not including) the next one, and
// the last breakpoint is open-ended.
type Table struct {
	Name        string
	Floor       int
	Breakpoints []Breakpoint
}

// Unserved is the tier for speeds below the first breakpoint.
const Unserved = 0

// Codes 1 and 2 are reserved by downstream consumers and never produced.
var speedBreakpoints = []Breakpoint{
	{Lower: 0.768, Code: 3},
	{Lower: 1.5, Code: 4},
	{Lower: 3, Code: 5},
	{Lower: 6, Code: 6},
	{Lower: 10, Code: 7},
	{Lower: 25, Code: 8},
	{Lower: 50, Code: 9},
	{Lower: 100, Code: 10},
	{Lower: 1000, Code: 11},
}

// Download and Upload share breakpoints; only their label catalogs differ.
var (
	Download = Table{Name: "MaxDown", Floor: Unserved, Breakpoints: speedBreakpoints}
	Upload   = Table{Name: "MaxUp", Floor: Unserved, Breakpoints: speedBreakpoints}
)

// Classify returns the tier code for value. Breakpoints must be sorted by
// Lower ascending.
func Classify(value float64, t Table) int {
	code := t.Floor
	for _, bp := range t.Breakpoints {
		if value < bp.Lower {
			break
		}
		code = bp.Code
	}
	return code
}

// NullValueError reports a null measurement reaching the classifier.
type NullValueError struct {
	Table string
	Field string
	Row   int
}

func (e *NullValueError) Error() string {
	return fmt.Sprintf("tier: null %s in %s row %d", e.Field, e.Table, e.Row)
}

// ErrNotNumeric is returned for text or NaN measurements.
var ErrNotNumeric = eris.New("tier: value is not a real number")

// ClassifyValue classifies a record value. Nulls return a *NullValueError
// with only the field unset; callers fill in location.
func ClassifyValue(v model.Value, t Table) (int, error) {
	if v.IsNull() {
		return 0, &NullValueError{Row: -1}
	}
	f, ok := v.Float64()
	if !ok || math.IsNaN(f) {
		return 0, ErrNotNumeric
	}
	return Classify(f, t), nil
}

// ClassifyField writes the tier code for src into dst on every row of tbl.
// dst must exist. A null src stops the pass with a *NullValueError naming the
// row; earlier rows keep their new codes.
func ClassifyField(tbl *model.Table, src, dst string, t Table) error {
	if err := tbl.RequireFields(src, dst); err != nil {
		return eris.Wrap(err, "tier: classify")
	}
	si, di := tbl.Index(src), tbl.Index(dst)
	for i, r := range tbl.Rows() {
		code, err := ClassifyValue(r.At(si), t)
		if err != nil {
			var nv *NullValueError
			if errors.As(err, &nv) {
				return &NullValueError{Table: tbl.Name, Field: src, Row: i}
			}
			return eris.Wrapf(err, "tier: %s row %d", tbl.Name, i)
		}
		if err := r.SetAt(di, model.Int(int64(code))); err != nil {
			return eris.Wrapf(err, "tier: %s row %d", tbl.Name, i)
		}
	}
	return nil
}
